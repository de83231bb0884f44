//go:build tinygo

package quadrature

import "runtime/interrupt"

type irqState = interrupt.State

// critical masks interrupts so a nested edge cannot observe a half-applied
// update of the count and the last phase.
type critical struct{}

func (c *critical) enter() irqState {
	return interrupt.Disable()
}

func (c *critical) exit(s irqState) {
	interrupt.Restore(s)
}
