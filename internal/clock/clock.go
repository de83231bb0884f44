// Package clock abstracts the time source of the control loop.
//
// The loop only ever asks for the current time and waits a fixed period
// between cycles, so both a wall clock and a simulated clock fit:
//
//   - [Wall]: real monotonic time, used with hardware
//   - [Virtual]: simulated time that advances only on Sleep, used with the plant model
package clock

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// Since returns the time elapsed on c since t.
func Since(c Clock, t time.Time) time.Duration {
	return c.Now().Sub(t)
}

type Wall struct{}

func (Wall) Now() time.Time        { return time.Now() }
func (Wall) Sleep(d time.Duration) { time.Sleep(d) }

// Virtual is a simulated clock. Sleep advances simulated time immediately
// and steps every subscriber by the same amount, so a plant model moves
// exactly as far as the control loop waited.
type Virtual struct {
	mu          sync.Mutex
	now         time.Time
	subscribers []func(dt time.Duration)
}

func NewVirtual() *Virtual {
	return &Virtual{now: time.Unix(0, 0)}
}

func (v *Virtual) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

func (v *Virtual) Sleep(d time.Duration) { v.Advance(d) }

// Advance moves simulated time forward by d and notifies subscribers.
func (v *Virtual) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	v.mu.Lock()
	v.now = v.now.Add(d)
	subs := make([]func(time.Duration), len(v.subscribers))
	copy(subs, v.subscribers)
	v.mu.Unlock()

	for _, fn := range subs {
		fn(d)
	}
}

// Subscribe registers fn to be called after every Advance.
func (v *Virtual) Subscribe(fn func(dt time.Duration)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.subscribers = append(v.subscribers, fn)
}
