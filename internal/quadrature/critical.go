//go:build !tinygo

package quadrature

import "sync"

type irqState uintptr

// critical serializes edge handlers that may run on several goroutines.
type critical struct {
	mu sync.Mutex
}

func (c *critical) enter() irqState {
	c.mu.Lock()
	return 0
}

func (c *critical) exit(irqState) {
	c.mu.Unlock()
}
