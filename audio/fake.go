package audio

import (
	"sync"
	"sync/atomic"
)

const (
	fakeFrameSize     = 1024
	fakeBytesPerFrame = 2 // 16-bit mono
)

// FakeContext is a scripted backend for tests. It serves one virtual
// device, can be told to refuse access, and counts open capture
// handles so tests can assert that no stream outlives its session.
type FakeContext struct {
	PCM            []byte // fed to the callback on Start, in fakeFrameSize chunks
	DenyPermission bool

	open atomic.Int32

	mu   sync.Mutex
	last *FakeCapture
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake0", Name: "fake mic"}}, nil
}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	if f.DenyPermission {
		return nil, ErrPermissionDenied
	}
	f.open.Add(1)
	c := &FakeCapture{ctx: f}
	f.mu.Lock()
	f.last = c
	f.mu.Unlock()
	return c, nil
}

func (f *FakeContext) Close() {}

// StreamsHeld reports how many capture handles are currently open.
func (f *FakeContext) StreamsHeld() int { return int(f.open.Load()) }

// Last returns the most recently opened capture handle, so tests can
// push extra data through it mid-recording.
func (f *FakeContext) Last() *FakeCapture {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

type FakeCapture struct {
	ctx *FakeContext

	mu      sync.Mutex
	cb      DataCallback
	started bool
	closed  bool
}

func (c *FakeCapture) SetCallback(cb DataCallback) {
	c.mu.Lock()
	c.cb = cb
	c.mu.Unlock()
}

func (c *FakeCapture) ClearCallback() {
	c.mu.Lock()
	c.cb = nil
	c.mu.Unlock()
}

// Start delivers the scripted PCM synchronously. Deterministic on
// purpose: tests drive time themselves.
func (c *FakeCapture) Start() error {
	c.mu.Lock()
	cb := c.cb
	c.started = true
	c.mu.Unlock()

	if cb == nil {
		return nil
	}
	chunkBytes := fakeFrameSize * fakeBytesPerFrame
	for pos := 0; pos < len(c.ctx.PCM); pos += chunkBytes {
		end := min(pos+chunkBytes, len(c.ctx.PCM))
		chunk := make([]byte, end-pos)
		copy(chunk, c.ctx.PCM[pos:end])
		cb(chunk, uint32(len(chunk)/fakeBytesPerFrame))
	}
	return nil
}

// Emit pushes extra PCM through the callback mid-recording.
func (c *FakeCapture) Emit(pcm []byte) {
	c.mu.Lock()
	cb := c.cb
	c.mu.Unlock()
	if cb != nil {
		cb(pcm, uint32(len(pcm)/fakeBytesPerFrame))
	}
}

func (c *FakeCapture) Stop() {
	c.mu.Lock()
	c.started = false
	c.mu.Unlock()
}

func (c *FakeCapture) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.ctx.open.Add(-1)
	}
}
