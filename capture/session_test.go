package capture

import (
	"errors"
	"testing"
	"time"

	"bioweaver/audio"
	"bioweaver/encoder"
)

// frozen keeps the real ticker from firing so tests drive tick()
// themselves.
const frozen = time.Hour

func fakePCM(n int) []byte {
	pcm := make([]byte, n)
	for i := range pcm {
		pcm[i] = byte(i % 251)
	}
	return pcm
}

func newTestSession(t *testing.T, ctx *audio.FakeContext, opts Options) *Session {
	t.Helper()
	if opts.TickInterval == 0 {
		opts.TickInterval = frozen
	}
	s := New(ctx, opts)
	t.Cleanup(s.Close)
	return s
}

func TestStartThenStopProducesBlob(t *testing.T) {
	ctx := &audio.FakeContext{PCM: fakePCM(8192)}
	s := newTestSession(t, ctx, Options{})

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.Phase() != PhaseRecording {
		t.Fatalf("phase = %s, want recording", s.Phase())
	}
	if s.Permission() != PermissionGranted {
		t.Error("permission should be granted")
	}

	blob, err := s.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if s.Phase() != PhaseStopped {
		t.Errorf("phase = %s, want stopped", s.Phase())
	}
	if blob == nil || len(blob.Data) == 0 {
		t.Fatal("blob should be non-empty")
	}
	if blob.MIME != "audio/flac" {
		t.Errorf("MIME = %q, want audio/flac (first preference)", blob.MIME)
	}
	if ctx.StreamsHeld() != 0 {
		t.Errorf("StreamsHeld = %d after Stop, want 0", ctx.StreamsHeld())
	}
}

func TestCancelRetainsNothing(t *testing.T) {
	ctx := &audio.FakeContext{PCM: fakePCM(4096)}
	s := newTestSession(t, ctx, Options{})

	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	s.tick()
	s.Cancel()

	if s.Phase() != PhaseCancelled {
		t.Errorf("phase = %s, want cancelled", s.Phase())
	}
	if s.Blob() != nil {
		t.Error("cancelled session must not retain a blob")
	}
	if s.Elapsed() != 0 {
		t.Errorf("elapsed = %d, want 0", s.Elapsed())
	}
	s.mu.Lock()
	nChunks := len(s.chunks)
	s.mu.Unlock()
	if nChunks != 0 {
		t.Errorf("chunks = %d, want 0", nChunks)
	}
	if ctx.StreamsHeld() != 0 {
		t.Errorf("StreamsHeld = %d after Cancel, want 0", ctx.StreamsHeld())
	}
}

// gatedContext holds NewCapture open until the gate closes, the way a
// permission prompt holds the device open while the user decides.
type gatedContext struct {
	audio.FakeContext
	gate chan struct{}
}

func (g *gatedContext) NewCapture(dev *audio.DeviceInfo, cfg audio.CaptureConfig) (audio.CaptureDevice, error) {
	<-g.gate
	return g.FakeContext.NewCapture(dev, cfg)
}

func waitPhase(t *testing.T, s *Session, want Phase) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Phase() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for phase %s, got %s", want, s.Phase())
}

func TestCancelWhileDeviceOpeningWins(t *testing.T) {
	ctx := &gatedContext{gate: make(chan struct{})}
	s := New(ctx, Options{TickInterval: frozen})
	t.Cleanup(s.Close)

	startErr := make(chan error, 1)
	go func() { startErr <- s.Start() }()

	waitPhase(t, s, PhaseRequesting)
	s.Cancel()
	close(ctx.gate)

	if err := <-startErr; err == nil {
		t.Fatal("Start must fail after a cancel during the device open")
	}
	if s.Phase() != PhaseCancelled {
		t.Errorf("phase = %s, want cancelled", s.Phase())
	}
	if ctx.StreamsHeld() != 0 {
		t.Errorf("StreamsHeld = %d after cancelled open, want 0", ctx.StreamsHeld())
	}
	if s.Blob() != nil {
		t.Error("cancelled open must not retain a blob")
	}
}

func TestCloseWhileDeviceOpeningWins(t *testing.T) {
	ctx := &gatedContext{gate: make(chan struct{})}
	s := New(ctx, Options{TickInterval: frozen})

	startErr := make(chan error, 1)
	go func() { startErr <- s.Start() }()

	waitPhase(t, s, PhaseRequesting)
	s.Close()
	close(ctx.gate)

	if err := <-startErr; err == nil {
		t.Fatal("Start must fail after a close during the device open")
	}
	if ctx.StreamsHeld() != 0 {
		t.Errorf("StreamsHeld = %d after closed open, want 0", ctx.StreamsHeld())
	}
}

func TestPermissionDenied(t *testing.T) {
	ctx := &audio.FakeContext{DenyPermission: true}
	s := newTestSession(t, ctx, Options{})

	err := s.Start()
	if !errors.Is(err, audio.ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}
	if s.Phase() != PhaseIdle {
		t.Errorf("phase = %s, want idle", s.Phase())
	}
	if s.Permission() != PermissionDenied {
		t.Error("permission should be denied")
	}
	if ctx.StreamsHeld() != 0 {
		t.Error("no stream handle may be held after denial")
	}
}

func TestUnsupportedFormatFailsBeforeRecording(t *testing.T) {
	ctx := &audio.FakeContext{}
	s := newTestSession(t, ctx, Options{Formats: []string{"opus", "aac"}})

	err := s.Start()
	if !errors.Is(err, encoder.ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
	if s.Phase() != PhaseIdle {
		t.Errorf("phase = %s, want idle", s.Phase())
	}
	if ctx.StreamsHeld() != 0 {
		t.Error("format probing must not open a stream")
	}
}

func TestTickIncrementsElapsed(t *testing.T) {
	ctx := &audio.FakeContext{PCM: fakePCM(2048)}
	s := newTestSession(t, ctx, Options{})

	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		s.tick()
	}
	if s.Elapsed() != 5 {
		t.Errorf("elapsed = %d, want 5", s.Elapsed())
	}
}

func TestAutoStopAtMaxDuration(t *testing.T) {
	ctx := &audio.FakeContext{PCM: fakePCM(2048)}
	s := newTestSession(t, ctx, Options{})

	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < DefaultMaxSeconds; i++ {
		s.tick()
	}
	if s.Phase() != PhaseStopped {
		t.Fatalf("phase = %s, want stopped after %d ticks", s.Phase(), DefaultMaxSeconds)
	}
	if s.Blob() == nil {
		t.Fatal("auto-stop must assemble the blob")
	}
	if s.Elapsed() != DefaultMaxSeconds {
		t.Errorf("elapsed = %d, want %d", s.Elapsed(), DefaultMaxSeconds)
	}
	// ticks after the stop change nothing
	s.tick()
	if s.Elapsed() != DefaultMaxSeconds {
		t.Errorf("elapsed advanced after stop: %d", s.Elapsed())
	}
}

func TestDiscardReturnsToIdle(t *testing.T) {
	ctx := &audio.FakeContext{PCM: fakePCM(2048)}
	s := newTestSession(t, ctx, Options{})

	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	s.tick()
	if _, err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	s.Discard()

	if s.Phase() != PhaseIdle {
		t.Errorf("phase = %s, want idle", s.Phase())
	}
	if s.Blob() != nil || s.Elapsed() != 0 {
		t.Error("discard must clear blob and elapsed")
	}

	// the session is re-enterable after a discard
	if err := s.Start(); err != nil {
		t.Fatalf("re-record after discard: %v", err)
	}
	if _, err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	if s.Blob() == nil {
		t.Error("re-record should produce a fresh blob")
	}
}

func TestCloseReleasesMidRecording(t *testing.T) {
	ctx := &audio.FakeContext{PCM: fakePCM(2048)}
	s := New(ctx, Options{TickInterval: frozen})

	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	s.Close()
	if ctx.StreamsHeld() != 0 {
		t.Errorf("StreamsHeld = %d after Close, want 0", ctx.StreamsHeld())
	}
	if s.Phase() != PhaseCancelled {
		t.Errorf("phase = %s, want cancelled", s.Phase())
	}
	s.Close() // idempotent
}

func TestStopOutsideRecordingFails(t *testing.T) {
	ctx := &audio.FakeContext{}
	s := newTestSession(t, ctx, Options{})
	if _, err := s.Stop(); err == nil {
		t.Error("Stop from idle should fail")
	}
}

// chunks non-empty and blob non-nil exactly when the session is
// Stopped.
func TestStoppedInvariant(t *testing.T) {
	ctx := &audio.FakeContext{PCM: fakePCM(4096)}
	s := newTestSession(t, ctx, Options{})

	check := func(stage string) {
		s.mu.Lock()
		phase, blob, nChunks := s.phase, s.blob, len(s.chunks)
		s.mu.Unlock()
		has := nChunks > 0 && blob != nil
		if has != (phase == PhaseStopped) {
			t.Errorf("%s: chunks=%d blob=%v phase=%s violates invariant", stage, nChunks, blob != nil, phase)
		}
	}

	check("idle")
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	check("stopped")
	s.Discard()
	check("discarded")
}

func TestDataEmittedMidRecordingLandsInBlob(t *testing.T) {
	ctx := &audio.FakeContext{}
	s := newTestSession(t, ctx, Options{Formats: []string{"wav"}})

	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	ctx.Last().Emit(fakePCM(2048))

	blob, err := s.Stop()
	if err != nil {
		t.Fatal(err)
	}
	// 44-byte RIFF header plus the emitted samples
	if want := 44 + 2048; len(blob.Data) != want {
		t.Errorf("blob size = %d, want %d", len(blob.Data), want)
	}
}

func TestWavFallbackWhenPreferred(t *testing.T) {
	ctx := &audio.FakeContext{PCM: fakePCM(2048)}
	s := newTestSession(t, ctx, Options{Formats: []string{"wav"}})

	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	blob, err := s.Stop()
	if err != nil {
		t.Fatal(err)
	}
	if blob.MIME != "audio/wav" || blob.Ext != "wav" {
		t.Errorf("blob = %q/%q, want audio/wav", blob.MIME, blob.Ext)
	}
}
