package encoder

import (
	"errors"
	"fmt"
)

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

// ErrUnsupportedFormat is returned when no format on a preference list
// is available. It must surface before any recording starts.
var ErrUnsupportedFormat = errors.New("no supported recording format")

type Encoder interface {
	EncodeBlock(block []int16) error
	Close() error
	Bytes() []byte
	TotalFrames() uint64
}

// Format describes one encodable container: its preference-list name,
// the MIME type stamped on the finished blob, and the upload filename
// extension.
type Format struct {
	Name string
	MIME string
	Ext  string
	New  func() (Encoder, error)
}

// formats is the ordered universe of formats this build can produce.
// Preference lists select among these by name.
var formats = []Format{
	{Name: "flac", MIME: "audio/flac", Ext: "flac", New: func() (Encoder, error) { return NewFlac() }},
	{Name: "wav", MIME: "audio/wav", Ext: "wav", New: func() (Encoder, error) { return NewWav() }},
}

// Pick returns the first format on the preference list this build
// supports, or ErrUnsupportedFormat when none matches.
func Pick(preferences []string) (Format, error) {
	for _, name := range preferences {
		for _, f := range formats {
			if f.Name == name {
				return f, nil
			}
		}
	}
	return Format{}, fmt.Errorf("%w (tried %v)", ErrUnsupportedFormat, preferences)
}

// Encode runs a complete little-endian s16 PCM buffer through a fresh
// encoder of the given format and returns the container bytes.
func Encode(f Format, pcm []byte) ([]byte, error) {
	enc, err := f.New()
	if err != nil {
		return nil, fmt.Errorf("creating %s encoder: %w", f.Name, err)
	}
	samples := bytesToSamples(pcm)
	for i := 0; i < len(samples); i += BlockSize {
		end := min(i+BlockSize, len(samples))
		if err := enc.EncodeBlock(samples[i:end]); err != nil {
			return nil, err
		}
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return enc.Bytes(), nil
}

func bytesToSamples(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8)
	}
	return samples
}
