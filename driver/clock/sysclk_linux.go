//go:build linux

package clock

import (
	"math"
	"time"

	"go.uber.org/zap"

	"golang.org/x/sys/unix"

	"github.com/Samitrad/MSD2/base/timebase"
)

// SystemClock reads and sleeps on CLOCK_MONOTONIC, which is not affected by
// wall clock steps while an echo pulse is being timed.
type SystemClock struct {
	Log *zap.Logger
}

var _ timebase.Clock = (*SystemClock)(nil)

func now(log *zap.Logger) time.Time {
	var ts unix.Timespec
	err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts)
	if err != nil {
		log.Fatal("unix.ClockGettime failed", zap.Error(err))
	}
	return time.Unix(ts.Unix()).UTC()
}

func sleep(log *zap.Logger, duration time.Duration) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK)
	if err != nil {
		log.Fatal("unix.TimerfdCreate failed", zap.Error(err))
	}
	defer func() { _ = unix.Close(fd) }()
	ts, err := unix.TimeToTimespec(now(log).Add(duration))
	if err != nil {
		log.Fatal("unix.TimeToTimespec failed", zap.Error(err))
	}
	err = unix.TimerfdSettime(fd, unix.TFD_TIMER_ABSTIME, &unix.ItimerSpec{Value: ts}, nil /* oldValue */)
	if err != nil {
		log.Fatal("unix.TimerfdSettime failed", zap.Error(err))
	}
	if fd < math.MinInt32 || math.MaxInt32 < fd {
		log.Fatal("unix.TimerfdCreate returned unexpected value")
	}
	pollFds := []unix.PollFd{
		{Fd: int32(fd), Events: unix.POLLIN},
	}
	for {
		_, err := unix.Poll(pollFds, -1 /* timeout */)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			log.Fatal("unix.Poll failed", zap.Error(err))
		}
		break
	}
}

func (c *SystemClock) Now() time.Time {
	return now(c.Log)
}

func (c *SystemClock) Sleep(duration time.Duration) {
	if duration <= 0 {
		return
	}
	sleep(c.Log, duration)
}
