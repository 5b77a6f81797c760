package control

import (
	"time"

	"github.com/Samitrad/MSD2/core/robot"
)

// Sweep moves the servo through a list of angles. Each phase drives the servo
// to its angle for hold, then releases it for dwell. Tick is called once per
// control cycle and never sleeps, so phases last at least as long as
// configured, rounded up to whole cycles.
type Sweep struct {
	angles  []float64
	hold    time.Duration
	dwell   time.Duration
	phase   int
	driving bool
	started bool
	since   time.Time
}

func NewSweep(angles []float64, hold, dwell time.Duration) *Sweep {
	if len(angles) == 0 {
		panic("servo sweep needs at least one angle")
	}
	if hold <= 0 || dwell < 0 {
		panic("invalid servo sweep timing")
	}
	return &Sweep{
		angles: append([]float64(nil), angles...),
		hold:   hold,
		dwell:  dwell,
	}
}

func (s *Sweep) Angle() float64 { return s.angles[s.phase] }

func (s *Sweep) Driving() bool { return s.driving }

func (s *Sweep) drive(now time.Time, a robot.Actuators) error {
	s.driving = true
	s.since = now
	return a.SetServo(s.angles[s.phase])
}

func (s *Sweep) Tick(now time.Time, a robot.Actuators) error {
	switch {
	case !s.started:
		s.started = true
		return s.drive(now, a)
	case s.driving:
		if now.Sub(s.since) < s.hold {
			return nil
		}
		s.driving = false
		s.since = now
		return a.ReleaseServo()
	default:
		if now.Sub(s.since) < s.dwell {
			return nil
		}
		s.phase = (s.phase + 1) % len(s.angles)
		return s.drive(now, a)
	}
}
