package checkin

import (
	"errors"
	"sync"
)

// DecodeHandler receives one decoded QR payload and returns what the
// terminal made of it.
type DecodeHandler func(payload string) ScanResult

// Camera is the decode source owned by a scan session. Open must not invoke
// the handlers synchronously.
type Camera interface {
	Open(onDecode DecodeHandler, onFailure func(err error)) error
	Close() error
}

var errCameraInUse = errors.New("camera already in use")

// RemoteCamera is fed by the operator's browser, which does the actual frame
// decoding and posts the text it read.
type RemoteCamera struct {
	mu        sync.Mutex
	open      bool
	onDecode  DecodeHandler
	onFailure func(error)
}

func NewRemoteCamera() *RemoteCamera {
	return &RemoteCamera{}
}

func (c *RemoteCamera) Open(onDecode DecodeHandler, onFailure func(error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.open {
		return errCameraInUse
	}
	c.open = true
	c.onDecode = onDecode
	c.onFailure = onFailure
	return nil
}

func (c *RemoteCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.open = false
	c.onDecode = nil
	c.onFailure = nil
	return nil
}

func (c *RemoteCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Deliver hands a decoded payload to the session.
func (c *RemoteCamera) Deliver(payload string) (ScanResult, error) {
	c.mu.Lock()
	handler := c.onDecode
	c.mu.Unlock()

	if handler == nil {
		return ScanResult{}, ErrCameraUnavailable
	}
	return handler(payload), nil
}

// Fail reports an unreadable frame.
func (c *RemoteCamera) Fail(err error) error {
	c.mu.Lock()
	handler := c.onFailure
	c.mu.Unlock()

	if handler == nil {
		return ErrCameraUnavailable
	}
	handler(err)
	return nil
}
