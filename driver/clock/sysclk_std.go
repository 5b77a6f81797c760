//go:build !linux

package clock

import (
	"time"

	"go.uber.org/zap"

	"github.com/Samitrad/MSD2/base/timebase"
)

type SystemClock struct {
	Log *zap.Logger
}

var _ timebase.Clock = (*SystemClock)(nil)

func (c *SystemClock) Now() time.Time {
	return time.Now()
}

func (c *SystemClock) Sleep(duration time.Duration) {
	time.Sleep(duration)
}
