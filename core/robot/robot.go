// Package robot defines the sensing and actuation primitives the control
// loop runs against. Backends live under driver/.
package robot

import (
	"context"
	"fmt"
)

type FlamePosition int

const (
	FlameCenter FlamePosition = iota
	FlameLeft
	FlameRight
)

func (p FlamePosition) String() string {
	switch p {
	case FlameCenter:
		return "center"
	case FlameLeft:
		return "left"
	case FlameRight:
		return "right"
	default:
		return fmt.Sprintf("FlamePosition(%d)", int(p))
	}
}

type Side int

const (
	MotorLeft Side = iota
	MotorRight
)

func (s Side) String() string {
	switch s {
	case MotorLeft:
		return "left"
	case MotorRight:
		return "right"
	default:
		return fmt.Sprintf("Side(%d)", int(s))
	}
}

type Direction int

const (
	Stop Direction = iota
	Forward
	Reverse
)

func (d Direction) String() string {
	switch d {
	case Stop:
		return "stop"
	case Forward:
		return "forward"
	case Reverse:
		return "reverse"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Distance is a ranging result. Echo is false if no echo arrived within the
// ranging window, in which case CM holds the configured sentinel.
type Distance struct {
	CM   float64
	Echo bool
}

type Sensors interface {
	// ReadFlame returns the raw sensor level. Flame sensors are active-low:
	// false means flame present.
	ReadFlame(p FlamePosition) (bool, error)
	// MeasureDistance blocks for at most the configured ranging window per
	// ping.
	MeasureDistance(ctx context.Context) (Distance, error)
	// ReadWaterLevel reports whether the tank holds water.
	ReadWaterLevel() (bool, error)
}

type Actuators interface {
	SetMotor(s Side, d Direction, dutyPercent float64) error
	SetPump(active bool, dutyPercent float64) error
	SetServo(angle float64) error
	ReleaseServo() error
}

// Session is an acquired set of hardware lines. Close zeroes all outputs
// before releasing them.
type Session interface {
	Sensors
	Actuators
	Close() error
}

// Vision reports whether the detection model currently sees a flame in the
// middle of the camera frame.
type Vision interface {
	FlameCentered() bool
}
