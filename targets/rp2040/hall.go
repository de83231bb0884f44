//go:build rp2040

package main

import "machine"

// hallLines reads the two hall outputs and interrupts on every change of
// either line.
type hallLines struct {
	a, b machine.Pin
}

func newHallLines(a, b machine.Pin) *hallLines {
	a.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	b.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	return &hallLines{a: a, b: b}
}

func (h *hallLines) Read() (bool, bool) {
	return h.a.Get(), h.b.Get()
}

func (h *hallLines) Notify(fn func()) error {
	handler := func(machine.Pin) { fn() }
	if err := h.a.SetInterrupt(machine.PinToggle, handler); err != nil {
		return err
	}
	return h.b.SetInterrupt(machine.PinToggle, handler)
}

func (h *hallLines) Close() error {
	h.a.SetInterrupt(0, nil)
	h.b.SetInterrupt(0, nil)
	return nil
}
