package timebase

import (
	"time"
)

// Clock is the time source of the control loop and of echo timing.
type Clock interface {
	Now() time.Time
	Sleep(duration time.Duration)
}
