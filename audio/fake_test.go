package audio

import (
	"errors"
	"testing"
)

func TestFakeDeliversScriptedPCM(t *testing.T) {
	pcm := make([]byte, 3*fakeFrameSize*fakeBytesPerFrame+10)
	ctx := &FakeContext{PCM: pcm}

	dev, err := ctx.NewCapture(nil, CaptureConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatal(err)
	}

	var got int
	dev.SetCallback(func(data []byte, _ uint32) { got += len(data) })
	if err := dev.Start(); err != nil {
		t.Fatal(err)
	}
	if got != len(pcm) {
		t.Errorf("delivered %d bytes, want %d", got, len(pcm))
	}

	dev.Stop()
	dev.Close()
	if held := ctx.StreamsHeld(); held != 0 {
		t.Errorf("StreamsHeld = %d after Close, want 0", held)
	}
}

func TestFakeDenyPermission(t *testing.T) {
	ctx := &FakeContext{DenyPermission: true}
	_, err := ctx.NewCapture(nil, CaptureConfig{})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}
	if ctx.StreamsHeld() != 0 {
		t.Error("denied capture must not hold a stream")
	}
}

func TestFakeCloseIdempotent(t *testing.T) {
	ctx := &FakeContext{}
	dev, err := ctx.NewCapture(nil, CaptureConfig{})
	if err != nil {
		t.Fatal(err)
	}
	dev.Close()
	dev.Close()
	if held := ctx.StreamsHeld(); held != 0 {
		t.Errorf("StreamsHeld = %d, want 0", held)
	}
}

func TestPermissionErrorMapping(t *testing.T) {
	if err := permissionError(errors.New("pulse: Access denied")); !errors.Is(err, ErrPermissionDenied) {
		t.Error("access-denied text should map to ErrPermissionDenied")
	}
	plain := errors.New("device busy")
	if err := permissionError(plain); !errors.Is(err, plain) || errors.Is(err, ErrPermissionDenied) {
		t.Error("unrelated errors must pass through unchanged")
	}
	if permissionError(nil) != nil {
		t.Error("nil stays nil")
	}
}
