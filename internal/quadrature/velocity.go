package quadrature

import (
	"sync"
	"time"

	"github.com/san-kum/hallservo/internal/clock"
)

// VelocityWindow is the minimum spacing between two velocity samples.
// Reads inside the window return the previous value.
const VelocityWindow = 50 * time.Millisecond

type velocity struct {
	mu        sync.Mutex
	clk       clock.Clock
	prevCount int64
	prevTime  time.Time
	rpm       float64
}

func (v *velocity) sample(count int64, ppr uint32) float64 {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.clk.Now()
	elapsed := now.Sub(v.prevTime)
	if elapsed < VelocityWindow {
		return v.rpm
	}

	revs := float64(count-v.prevCount) / float64(ppr)
	v.rpm = revs / elapsed.Minutes()
	v.prevCount = count
	v.prevTime = now
	return v.rpm
}

func (v *velocity) reset(count int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.prevCount = count
	v.rpm = 0
	if v.clk != nil {
		v.prevTime = v.clk.Now()
	}
}
