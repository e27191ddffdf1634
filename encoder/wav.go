package encoder

import (
	"bytes"
	"encoding/binary"
	"sync"
)

const wavHeaderSize = 44

// WavEncoder writes a canonical 44-byte RIFF header followed by raw
// s16le PCM. The size fields are patched in on Close.
type WavEncoder struct {
	buf         bytes.Buffer
	totalFrames uint64
	closed      bool
	mu          sync.Mutex
}

func NewWav() (*WavEncoder, error) {
	e := &WavEncoder{}
	e.buf.Write(make([]byte, wavHeaderSize)) // placeholder, patched on Close
	return e, nil
}

func (e *WavEncoder) EncodeBlock(block []int16) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	data := make([]byte, len(block)*2)
	for i, s := range block {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	e.buf.Write(data)
	e.totalFrames += uint64(len(block))
	return nil
}

func (e *WavEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	raw := e.buf.Bytes()
	dataLen := uint32(len(raw) - wavHeaderSize)
	byteRate := uint32(SampleRate * Channels * BitsPerSample / 8)
	blockAlign := uint16(Channels * BitsPerSample / 8)

	copy(raw[0:4], "RIFF")
	binary.LittleEndian.PutUint32(raw[4:8], 36+dataLen)
	copy(raw[8:12], "WAVE")
	copy(raw[12:16], "fmt ")
	binary.LittleEndian.PutUint32(raw[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(raw[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(raw[22:24], Channels)
	binary.LittleEndian.PutUint32(raw[24:28], SampleRate)
	binary.LittleEndian.PutUint32(raw[28:32], byteRate)
	binary.LittleEndian.PutUint16(raw[32:34], blockAlign)
	binary.LittleEndian.PutUint16(raw[34:36], BitsPerSample)
	copy(raw[36:40], "data")
	binary.LittleEndian.PutUint32(raw[40:44], dataLen)
	return nil
}

func (e *WavEncoder) Bytes() []byte {
	return e.buf.Bytes()
}

func (e *WavEncoder) TotalFrames() uint64 {
	return e.totalFrames
}
