package sim

import (
	"sync"
	"time"

	"github.com/Samitrad/MSD2/base/timebase"
)

// VirtualClock only advances when slept on, so simulations run as fast as
// the loop computes.
type VirtualClock struct {
	mu sync.Mutex
	t  time.Time
}

var _ timebase.Clock = (*VirtualClock)(nil)

func NewVirtualClock(t0 time.Time) *VirtualClock {
	return &VirtualClock{t: t0}
}

func (c *VirtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *VirtualClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
