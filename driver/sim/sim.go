// Package sim is a simulated robot facing a single fire, for running the
// control loop without hardware.
package sim

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/Samitrad/MSD2/base/floats"
	"github.com/Samitrad/MSD2/base/timebase"
	"github.com/Samitrad/MSD2/core/config"
	"github.com/Samitrad/MSD2/core/robot"
)

var ErrClosed = errors.New("session closed")

type Params struct {
	MaxSpeedCMPerSecond  float64
	TurnRateDegPerSecond float64
	FlameRangeCM         float64
	CenterFOVDeg         float64
	SideMinDeg           float64
	SideMaxDeg           float64
	RangingFOVDeg        float64
	MaxRangeCM           float64
	SentinelCM           float64
	MinDistanceCM        float64
	ExtinguishPerSecond  float64
	WaterUsePerSecond    float64
}

// DefaultParams models a small two-wheeled robot. The ranging limits follow
// from cfg.
func DefaultParams(cfg config.RangingConfig) Params {
	return Params{
		MaxSpeedCMPerSecond:  20,
		TurnRateDegPerSecond: 90,
		FlameRangeCM:         150,
		CenterFOVDeg:         15,
		SideMinDeg:           10,
		SideMaxDeg:           60,
		RangingFOVDeg:        30,
		MaxRangeCM:           cfg.Timeout.Seconds() * cfg.CMPerSecond,
		SentinelCM:           cfg.SentinelCM,
		MinDistanceCM:        2,
		ExtinguishPerSecond:  0.25,
		WaterUsePerSecond:    0.05,
	}
}

type State struct {
	DistanceCM float64
	BearingDeg float64
	Intensity  float64
	Water      float64
	LeftDuty   float64
	RightDuty  float64
	Pump       bool
	Servo      float64
	Closed     bool
}

// World is a robot.Session whose sensors observe a fire at a distance and
// bearing relative to the robot. A negative bearing is to the left. The
// world advances with the clock: each call integrates the motion commanded
// since the previous call.
type World struct {
	mu    sync.Mutex
	clk   timebase.Clock
	p     Params
	last  time.Time
	s     State
	fault error
}

var _ robot.Session = (*World)(nil)

func New(clk timebase.Clock, p Params, distanceCM, bearingDeg float64) *World {
	return &World{
		clk:  clk,
		p:    p,
		last: clk.Now(),
		s: State{
			DistanceCM: distanceCM,
			BearingDeg: bearingDeg,
			Intensity:  1,
			Water:      1,
			Servo:      90,
		},
	}
}

// SetFault makes every sensor read fail with err until cleared with nil.
func (w *World) SetFault(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fault = err
}

func (w *World) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.advance()
	return w.s
}

func (w *World) Extinguished() bool {
	return w.State().Intensity == 0
}

func (w *World) advance() {
	now := w.clk.Now()
	dt := now.Sub(w.last).Seconds()
	w.last = now
	if dt <= 0 || w.s.Closed {
		return
	}
	s := &w.s
	v := (s.LeftDuty + s.RightDuty) / 2 / 100 * w.p.MaxSpeedCMPerSecond
	omega := (s.RightDuty - s.LeftDuty) / 100 * w.p.TurnRateDegPerSecond
	s.BearingDeg += omega * dt
	s.DistanceCM -= v * dt * math.Cos(s.BearingDeg*math.Pi/180)
	s.DistanceCM = math.Max(s.DistanceCM, w.p.MinDistanceCM)
	if s.Pump && s.Water > 0 {
		s.Intensity = floats.Clamp(s.Intensity-w.p.ExtinguishPerSecond*dt, 0, 1)
		s.Water = floats.Clamp(s.Water-w.p.WaterUsePerSecond*dt, 0, 1)
	}
}

func (w *World) visible() bool {
	return w.s.Intensity > 0 && w.s.DistanceCM <= w.p.FlameRangeCM
}

func (w *World) sense() error {
	if w.s.Closed {
		return ErrClosed
	}
	w.advance()
	return w.fault
}

func (w *World) ReadFlame(p robot.FlamePosition) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.sense(); err != nil {
		return false, err
	}
	b := w.s.BearingDeg
	var present bool
	switch p {
	case robot.FlameCenter:
		present = math.Abs(b) <= w.p.CenterFOVDeg
	case robot.FlameLeft:
		present = b < -w.p.SideMinDeg && b >= -w.p.SideMaxDeg
	case robot.FlameRight:
		present = b > w.p.SideMinDeg && b <= w.p.SideMaxDeg
	}
	return !(present && w.visible()), nil
}

func (w *World) MeasureDistance(ctx context.Context) (robot.Distance, error) {
	if err := ctx.Err(); err != nil {
		return robot.Distance{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.sense(); err != nil {
		return robot.Distance{}, err
	}
	if math.Abs(w.s.BearingDeg) > w.p.RangingFOVDeg || w.s.DistanceCM > w.p.MaxRangeCM {
		return robot.Distance{CM: w.p.SentinelCM}, nil
	}
	return robot.Distance{CM: w.s.DistanceCM, Echo: true}, nil
}

func (w *World) ReadWaterLevel() (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.sense(); err != nil {
		return false, err
	}
	return w.s.Water > 0, nil
}

func (w *World) SetMotor(side robot.Side, d robot.Direction, duty float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.s.Closed {
		return ErrClosed
	}
	w.advance()
	v := floats.Clamp(duty, 0, 100)
	switch d {
	case robot.Stop:
		v = 0
	case robot.Reverse:
		v = -v
	}
	if side == robot.MotorLeft {
		w.s.LeftDuty = v
	} else {
		w.s.RightDuty = v
	}
	return nil
}

func (w *World) SetPump(active bool, duty float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.s.Closed {
		return ErrClosed
	}
	w.advance()
	w.s.Pump = active && duty > 0
	return nil
}

func (w *World) SetServo(angle float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.s.Closed {
		return ErrClosed
	}
	w.s.Servo = angle
	return nil
}

func (w *World) ReleaseServo() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.s.Closed {
		return ErrClosed
	}
	return nil
}

// Close stops the motors and the pump. Further calls fail with ErrClosed.
func (w *World) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.s.Closed {
		return nil
	}
	w.advance()
	w.s.LeftDuty, w.s.RightDuty, w.s.Pump = 0, 0, false
	w.s.Closed = true
	return nil
}
