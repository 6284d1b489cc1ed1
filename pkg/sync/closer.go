package sync

import "sync"

// Closer implements a concurrency-safe closing mechanism for transmitting a
// single shutdown signal to multiple goroutines.
type Closer struct {
	closeOnce sync.Once
	doneCh    chan struct{}
}

// NewCloser returns a reference to a new Closer.
func NewCloser() *Closer {
	return &Closer{doneCh: make(chan struct{})}
}

// Done returns the closer's internal done channel.
func (c *Closer) Done() <-chan struct{} {
	return c.doneCh
}

// Close closes the done channel. It is safe to call multiple times.
func (c *Closer) Close() {
	c.closeOnce.Do(func() { close(c.doneCh) })
}
