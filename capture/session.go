// Package capture owns the lifecycle of one microphone recording
// attempt: permission request, buffering, the one-second elapsed timer
// with its hard duration cap, and blob assembly on stop. A Session is
// owned by its caller; nothing here is process-global, so several
// sessions can coexist as long as each gets its own audio context.
package capture

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"bioweaver/audio"
	"bioweaver/encoder"
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRequesting
	PhaseRecording
	PhaseStopped
	PhaseCancelled
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRequesting:
		return "requesting"
	case PhaseRecording:
		return "recording"
	case PhaseStopped:
		return "stopped"
	case PhaseCancelled:
		return "cancelled"
	}
	return "unknown"
}

type Permission int

const (
	PermissionPrompt Permission = iota
	PermissionGranted
	PermissionDenied
)

// DefaultMaxSeconds caps a recording at twenty minutes.
const DefaultMaxSeconds = 1200

// DefaultFormats is the encoding preference order: compact container
// first, widely compatible fallback second.
var DefaultFormats = []string{"flac", "wav"}

// Blob is the finished recording, tagged with the media type of the
// format that produced it.
type Blob struct {
	Data    []byte
	MIME    string
	Ext     string
	Seconds int
}

type Options struct {
	Device       *audio.DeviceInfo // nil selects the system default
	Formats      []string          // nil falls back to DefaultFormats
	MaxSeconds   int               // 0 falls back to DefaultMaxSeconds
	TickInterval time.Duration     // 0 falls back to one second; tests stretch it
}

// Session is a finite-state controller over one recording attempt.
//
//	Idle -> Requesting -> Recording -> Stopped -> Idle (Discard)
//	             \            \-> Cancelled
//	              \-> Idle (permission denied / start failure)
//
// Every exit from Recording releases the device and the tick loop
// synchronously; holding the microphone past the session is a
// user-visible leak.
type Session struct {
	actx audio.Context
	opts Options

	mu         sync.Mutex
	phase      Phase
	permission Permission
	elapsed    int
	chunks     [][]byte
	blob       *Blob
	format     encoder.Format
	dev        audio.CaptureDevice
	stopTick   chan struct{}
}

func New(actx audio.Context, opts Options) *Session {
	if len(opts.Formats) == 0 {
		opts.Formats = DefaultFormats
	}
	if opts.MaxSeconds <= 0 {
		opts.MaxSeconds = DefaultMaxSeconds
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	return &Session{actx: actx, opts: opts}
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) Permission() Permission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permission
}

// Elapsed returns whole seconds spent in Recording.
func (s *Session) Elapsed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsed
}

// Blob returns the finished recording, nil unless the session is
// Stopped.
func (s *Session) Blob() *Blob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blob
}

// Format returns the encoding selected for this session. Only
// meaningful once Recording has been entered.
func (s *Session) Format() encoder.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}

// Start requests microphone access and begins recording. On refusal
// the session returns to Idle with Permission() == PermissionDenied —
// terminal for this attempt, the caller must Start again explicitly —
// and the returned error matches audio.ErrPermissionDenied. An
// unusable format preference list fails with
// encoder.ErrUnsupportedFormat before any stream is opened.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.phase != PhaseIdle {
		phase := s.phase
		s.mu.Unlock()
		return fmt.Errorf("start: session is %s, want idle", phase)
	}
	s.phase = PhaseRequesting
	s.mu.Unlock()

	format, err := encoder.Pick(s.opts.Formats)
	if err != nil {
		s.mu.Lock()
		s.phase = PhaseIdle
		s.mu.Unlock()
		return err
	}

	dev, err := s.actx.NewCapture(s.opts.Device, audio.CaptureConfig{
		SampleRate: encoder.SampleRate,
		Channels:   encoder.Channels,
	})
	if err != nil {
		s.startFailed(err)
		return err
	}

	dev.SetCallback(func(data []byte, _ uint32) {
		chunk := make([]byte, len(data))
		copy(chunk, data)
		s.mu.Lock()
		if s.phase == PhaseRequesting || s.phase == PhaseRecording {
			s.chunks = append(s.chunks, chunk)
		}
		s.mu.Unlock()
	})

	if err := dev.Start(); err != nil {
		dev.ClearCallback()
		dev.Close()
		s.startFailed(err)
		return err
	}

	stopTick := make(chan struct{})
	s.mu.Lock()
	// Cancel or Close may have landed while the device was opening;
	// the stream must not outlive that decision.
	if s.phase != PhaseRequesting {
		phase := s.phase
		s.chunks = nil
		s.mu.Unlock()
		release(dev, nil)
		return fmt.Errorf("start: session %s while opening device", phase)
	}
	s.dev = dev
	s.format = format
	s.permission = PermissionGranted
	s.phase = PhaseRecording
	s.stopTick = stopTick
	s.mu.Unlock()

	go s.run(stopTick)
	return nil
}

func (s *Session) startFailed(err error) {
	s.mu.Lock()
	s.phase = PhaseIdle
	s.chunks = nil
	if errors.Is(err, audio.ErrPermissionDenied) {
		s.permission = PermissionDenied
	}
	s.mu.Unlock()
}

func (s *Session) run(stop <-chan struct{}) {
	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick advances the elapsed counter by one second and triggers the
// automatic stop at the duration cap. Driven by run; tests call it
// directly.
func (s *Session) tick() {
	s.mu.Lock()
	if s.phase != PhaseRecording {
		s.mu.Unlock()
		return
	}
	s.elapsed++
	capped := s.elapsed >= s.opts.MaxSeconds
	s.mu.Unlock()

	if capped {
		s.Stop()
	}
}

// Stop ends the recording, releases the microphone and concatenates
// the buffered chunks into the result blob.
func (s *Session) Stop() (*Blob, error) {
	s.mu.Lock()
	if s.phase != PhaseRecording {
		phase := s.phase
		s.mu.Unlock()
		return nil, fmt.Errorf("stop: session is %s, want recording", phase)
	}
	s.phase = PhaseStopped
	dev, stopTick := s.detachLocked()
	s.mu.Unlock()

	release(dev, stopTick)

	s.mu.Lock()
	defer s.mu.Unlock()
	pcm := flatten(s.chunks)
	data, err := encoder.Encode(s.format, pcm)
	if err != nil {
		s.phase = PhaseIdle
		s.chunks = nil
		s.elapsed = 0
		return nil, fmt.Errorf("encoding recording: %w", err)
	}
	s.blob = &Blob{
		Data:    data,
		MIME:    s.format.MIME,
		Ext:     s.format.Ext,
		Seconds: s.elapsed,
	}
	return s.blob, nil
}

// Cancel abandons an in-flight attempt before its natural stop. The
// device and timer are released synchronously; no chunks or blob are
// retained.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.phase != PhaseRequesting && s.phase != PhaseRecording {
		s.mu.Unlock()
		return
	}
	s.phase = PhaseCancelled
	s.blob = nil
	s.chunks = nil
	s.elapsed = 0
	dev, stopTick := s.detachLocked()
	s.mu.Unlock()

	release(dev, stopTick)
}

// Discard drops a finished recording and returns the session to Idle
// for a re-record. Resource release here is defensive; Stop already
// let go of the device.
func (s *Session) Discard() {
	s.mu.Lock()
	if s.phase != PhaseStopped {
		s.mu.Unlock()
		return
	}
	s.phase = PhaseIdle
	s.blob = nil
	s.chunks = nil
	s.elapsed = 0
	dev, stopTick := s.detachLocked()
	s.mu.Unlock()

	release(dev, stopTick)
}

// Close tears the session down from whatever state it is in. Safe to
// call more than once and required on every abandonment path: the
// capture stream and the timer must never outlive the session.
func (s *Session) Close() {
	s.mu.Lock()
	if s.phase == PhaseRequesting || s.phase == PhaseRecording {
		s.phase = PhaseCancelled
		s.chunks = nil
		s.elapsed = 0
	}
	dev, stopTick := s.detachLocked()
	s.mu.Unlock()

	release(dev, stopTick)
}

func (s *Session) detachLocked() (audio.CaptureDevice, chan struct{}) {
	dev := s.dev
	stopTick := s.stopTick
	s.dev = nil
	s.stopTick = nil
	return dev, stopTick
}

// release runs outside the session lock: stopping the device may wait
// on its data callback, and the callback takes the lock.
func release(dev audio.CaptureDevice, stopTick chan struct{}) {
	if stopTick != nil {
		close(stopTick)
	}
	if dev != nil {
		dev.ClearCallback()
		dev.Stop()
		dev.Close()
	}
}

func flatten(chunks [][]byte) []byte {
	var n int
	for _, c := range chunks {
		n += len(c)
	}
	out := make([]byte, 0, n)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}
