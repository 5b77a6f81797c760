package control

import (
	"fmt"
	"math"

	"github.com/Samitrad/MSD2/core/config"
	"github.com/Samitrad/MSD2/core/fuzzy"
	"github.com/Samitrad/MSD2/core/robot"
)

// Bearing is the direction of the flame as seen by the two side sensors.
type Bearing int

const (
	BearingNone Bearing = iota
	BearingLeft
	BearingRight
	// BearingAhead means both side sensors see a flame.
	BearingAhead
)

func (b Bearing) String() string {
	switch b {
	case BearingNone:
		return "none"
	case BearingLeft:
		return "left"
	case BearingRight:
		return "right"
	case BearingAhead:
		return "ahead"
	default:
		return fmt.Sprintf("Bearing(%d)", int(b))
	}
}

func BearingOf(left, right bool) Bearing {
	switch {
	case left && right:
		return BearingAhead
	case left:
		return BearingLeft
	case right:
		return BearingRight
	default:
		return BearingNone
	}
}

// Error is the steering input: -1 for a flame on the left only, +1 on the
// right only. BearingAhead and BearingNone both map to 0, so the rule base
// cannot tell them apart; the bearing is reported to keep them apart in
// telemetry.
func (b Bearing) Error() float64 {
	switch b {
	case BearingLeft:
		return -1
	case BearingRight:
		return 1
	default:
		return 0
	}
}

// Sensed is the sensor state of one cycle. Flame fields are true if a flame
// is present; the active-low conversion has already been applied.
type Sensed struct {
	Center, Left, Right bool
	Distance            robot.Distance
	Water               bool
	VisionCentered      bool
}

func (s Sensed) FlameCenter() bool {
	return s.Center || s.VisionCentered
}

// Derive computes the crisp inputs of the rule base. Distances beyond
// proximityCap are clamped to it.
func Derive(s Sensed, proximityCap float64) (fuzzy.Inputs, Bearing) {
	b := BearingOf(s.Left, s.Right)
	fc := 0.0
	if s.FlameCenter() {
		fc = 1
	}
	return fuzzy.Inputs{
		config.VarFlameCenter: fc,
		config.VarError:       b.Error(),
		config.VarProximity:   math.Min(s.Distance.CM, proximityCap),
	}, b
}

type Policy struct {
	ObstacleThresholdCM float64
	HardObstacleStop    bool
	PumpThreshold       float64
	PumpDutyPercent     float64
	PumpRequiresWater   bool
	SafeDuty            float64
}

func NewPolicy(c config.ControlConfig) Policy {
	return Policy{
		ObstacleThresholdCM: c.ObstacleThresholdCM,
		HardObstacleStop:    c.HardObstacleStop,
		PumpThreshold:       c.PumpThreshold,
		PumpDutyPercent:     c.PumpDutyPercent,
		PumpRequiresWater:   c.PumpRequiresWater,
		SafeDuty:            c.SafeDuty,
	}
}

// Obstacle reports whether distanceCM is strictly below the threshold. A
// ranging sentinel equal to the threshold is therefore not an obstacle.
func (p Policy) Obstacle(distanceCM float64) bool {
	return distanceCM < p.ObstacleThresholdCM
}

// PumpActive is true iff both duties are at or below the pump threshold and
// a flame is centred. With PumpRequiresWater the tank must also hold water.
func (p Policy) PumpActive(leftDuty, rightDuty float64, flameCenter, water bool) bool {
	if p.PumpRequiresWater && !water {
		return false
	}
	return leftDuty <= p.PumpThreshold && rightDuty <= p.PumpThreshold && flameCenter
}

// Command is the actuation decision of one cycle.
type Command struct {
	LeftDuty, RightDuty float64
	Obstacle            bool
	Pump                bool
}

func clampDuty(d float64) float64 {
	return math.Max(0, math.Min(100, d))
}

// Decide turns the motor outputs of the rule base into a command.
func (p Policy) Decide(left, right float64, s Sensed) Command {
	c := Command{
		LeftDuty:  clampDuty(left),
		RightDuty: clampDuty(right),
		Obstacle:  p.Obstacle(s.Distance.CM),
	}
	if c.Obstacle && p.HardObstacleStop {
		c.LeftDuty, c.RightDuty = 0, 0
	}
	c.Pump = p.PumpActive(c.LeftDuty, c.RightDuty, s.FlameCenter(), s.Water)
	return c
}
