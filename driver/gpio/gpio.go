// Package gpio drives the robot through the Raspberry Pi GPIO header.
package gpio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"
	"go.uber.org/zap"

	"github.com/Samitrad/MSD2/base/floats"
	"github.com/Samitrad/MSD2/base/timebase"
	"github.com/Samitrad/MSD2/core/config"
	"github.com/Samitrad/MSD2/core/robot"
	"github.com/Samitrad/MSD2/driver/ranging"
)

// The PWM clock is common to both hardware channels. Motor and servo cycle
// lengths are derived from it.
const pwmClock = 100_000

const minMotorCycle = 100

var (
	ErrPWM           = errors.New("invalid PWM assignment")
	ErrServoDisabled = errors.New("servo disabled")
	ErrClosed        = errors.New("session closed")
)

// pwmChannel maps a BCM pin to its hardware PWM channel.
func pwmChannel(pin int) (int, bool) {
	switch pin {
	case 12, 18:
		return 0, true
	case 13, 19:
		return 1, true
	}
	return 0, false
}

func cycleLength(freq int) uint32 {
	if freq <= 0 {
		return 0
	}
	return uint32(pwmClock / freq)
}

func checkPWM(hw config.HardwareConfig, servo bool) error {
	l, ok := pwmChannel(hw.LeftPWMPin)
	if !ok {
		return fmt.Errorf("%w: left motor pin %d has no hardware PWM", ErrPWM, hw.LeftPWMPin)
	}
	r, ok := pwmChannel(hw.RightPWMPin)
	if !ok {
		return fmt.Errorf("%w: right motor pin %d has no hardware PWM", ErrPWM, hw.RightPWMPin)
	}
	if l == r {
		return fmt.Errorf("%w: motor pins %d and %d share PWM channel %d",
			ErrPWM, hw.LeftPWMPin, hw.RightPWMPin, l)
	}
	if cycleLength(hw.MotorPWMFrequency) < minMotorCycle {
		return fmt.Errorf("%w: motor frequency %d Hz above %d Hz",
			ErrPWM, hw.MotorPWMFrequency, pwmClock/minMotorCycle)
	}
	if servo {
		s, ok := pwmChannel(hw.ServoPin)
		if !ok {
			return fmt.Errorf("%w: servo pin %d has no hardware PWM", ErrPWM, hw.ServoPin)
		}
		if s == l || s == r {
			return fmt.Errorf("%w: servo pin %d shares PWM channel %d with a motor", ErrPWM, hw.ServoPin, s)
		}
		if pwmClock%hw.ServoPWMFrequency != 0 {
			return fmt.Errorf("%w: servo frequency %d Hz does not divide the PWM clock",
				ErrPWM, hw.ServoPWMFrequency)
		}
	}
	return nil
}

// dutyLength converts a duty percentage to a count within cycle.
func dutyLength(percent float64, cycle uint32) uint32 {
	return uint32(math.Round(floats.Clamp(percent, 0, 100) / 100 * float64(cycle)))
}

// servoDuty maps 0..180 degrees to a 2.5..12.5 % duty at 50 Hz.
func servoDuty(angle float64) float64 {
	return 2.5 + floats.Clamp(angle, 0, 180)/180*10
}

type outPin rpio.Pin

func (p outPin) Write(high bool) {
	if high {
		rpio.Pin(p).High()
	} else {
		rpio.Pin(p).Low()
	}
}

type inPin rpio.Pin

func (p inPin) Read() bool {
	return rpio.Pin(p).Read() == rpio.High
}

type motor struct {
	fwd, rev, pwm rpio.Pin
}

type Session struct {
	log *zap.Logger

	mu     sync.Mutex
	closed bool

	flame      [3]rpio.Pin
	water      rpio.Pin
	ranger     *ranging.Ranger
	motors     [2]motor
	pumpIn1    rpio.Pin
	pumpIn2    rpio.Pin
	pumpEnable rpio.Pin
	servo      rpio.Pin
	servoOn    bool
	motorCycle uint32
	servoCycle uint32
}

var _ robot.Session = (*Session)(nil)

// Open maps the GPIO registers, configures every line and waits for the
// ranging module to settle.
func Open(log *zap.Logger, clk timebase.Clock, cfg config.Config) (*Session, error) {
	hw := cfg.Hardware
	err := checkPWM(hw, cfg.Servo.Enabled)
	if err != nil {
		return nil, err
	}
	err = rpio.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open GPIO: %w", err)
	}

	s := &Session{
		log: log,
		flame: [3]rpio.Pin{
			robot.FlameCenter: rpio.Pin(hw.FlameCenterPin),
			robot.FlameLeft:   rpio.Pin(hw.FlameLeftPin),
			robot.FlameRight:  rpio.Pin(hw.FlameRightPin),
		},
		water: rpio.Pin(hw.WaterLevelPin),
		motors: [2]motor{
			robot.MotorLeft: {
				fwd: rpio.Pin(hw.LeftForwardPin),
				rev: rpio.Pin(hw.LeftReversePin),
				pwm: rpio.Pin(hw.LeftPWMPin),
			},
			robot.MotorRight: {
				fwd: rpio.Pin(hw.RightForwardPin),
				rev: rpio.Pin(hw.RightReversePin),
				pwm: rpio.Pin(hw.RightPWMPin),
			},
		},
		pumpIn1:    rpio.Pin(hw.PumpForwardPin),
		pumpIn2:    rpio.Pin(hw.PumpReversePin),
		pumpEnable: rpio.Pin(hw.PumpEnablePin),
		servo:      rpio.Pin(hw.ServoPin),
		servoOn:    cfg.Servo.Enabled,
		motorCycle: cycleLength(hw.MotorPWMFrequency),
		servoCycle: cycleLength(hw.ServoPWMFrequency),
	}

	for _, p := range s.flame {
		p.Input()
	}
	s.water.Input()
	trig, echo := rpio.Pin(hw.TriggerPin), rpio.Pin(hw.EchoPin)
	trig.Output()
	trig.Low()
	echo.Input()
	echo.PullDown()
	s.ranger = ranging.New(outPin(trig), inPin(echo), clk, cfg.Ranging)

	for _, m := range s.motors {
		m.fwd.Output()
		m.rev.Output()
		m.fwd.Low()
		m.rev.Low()
		m.pwm.Mode(rpio.Pwm)
		m.pwm.Freq(hw.MotorPWMFrequency * int(s.motorCycle))
		m.pwm.DutyCycle(0, s.motorCycle)
	}
	for _, p := range []rpio.Pin{s.pumpIn1, s.pumpIn2, s.pumpEnable} {
		p.Output()
		p.Low()
	}
	if s.servoOn {
		s.servo.Mode(rpio.Pwm)
		s.servo.Freq(hw.ServoPWMFrequency * int(s.servoCycle))
		s.servo.DutyCycle(0, s.servoCycle)
	}

	log.Info("GPIO session opened", zap.Ints("pins", hw.Pins()), zap.Bool("servo", s.servoOn))
	clk.Sleep(hw.Settle.Duration)
	return s, nil
}

func (s *Session) check() error {
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *Session) ReadFlame(p robot.FlamePosition) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return false, err
	}
	if p < robot.FlameCenter || p > robot.FlameRight {
		return false, fmt.Errorf("unknown flame sensor %v", p)
	}
	return s.flame[p].Read() == rpio.High, nil
}

func (s *Session) MeasureDistance(ctx context.Context) (robot.Distance, error) {
	s.mu.Lock()
	err := s.check()
	s.mu.Unlock()
	if err != nil {
		return robot.Distance{}, err
	}
	return s.ranger.Measure(ctx)
}

func (s *Session) ReadWaterLevel() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return false, err
	}
	return s.water.Read() == rpio.High, nil
}

func (s *Session) setMotor(m motor, d robot.Direction, duty float64) error {
	switch d {
	case robot.Forward:
		m.rev.Low()
		m.fwd.High()
	case robot.Reverse:
		m.fwd.Low()
		m.rev.High()
	case robot.Stop:
		m.fwd.Low()
		m.rev.Low()
		duty = 0
	default:
		return fmt.Errorf("unknown direction %v", d)
	}
	m.pwm.DutyCycle(dutyLength(duty, s.motorCycle), s.motorCycle)
	return nil
}

func (s *Session) SetMotor(side robot.Side, d robot.Direction, duty float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	if side != robot.MotorLeft && side != robot.MotorRight {
		return fmt.Errorf("unknown motor %v", side)
	}
	return s.setMotor(s.motors[side], d, duty)
}

// SetPump drives the pump forward. The enable line has no PWM channel left,
// so any positive duty switches it fully on.
func (s *Session) SetPump(active bool, duty float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	s.setPump(active && duty > 0)
	return nil
}

func (s *Session) setPump(on bool) {
	s.pumpIn2.Low()
	if on {
		s.pumpIn1.High()
		s.pumpEnable.High()
	} else {
		s.pumpEnable.Low()
		s.pumpIn1.Low()
	}
}

func (s *Session) SetServo(angle float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	if !s.servoOn {
		return ErrServoDisabled
	}
	s.servo.DutyCycle(dutyLength(servoDuty(angle), s.servoCycle), s.servoCycle)
	return nil
}

func (s *Session) ReleaseServo() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	if s.servoOn {
		s.servo.DutyCycle(0, s.servoCycle)
	}
	return nil
}

// Close stops all actuators and unmaps the GPIO registers. Further calls
// fail with ErrClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	for _, m := range s.motors {
		_ = s.setMotor(m, robot.Stop, 0)
	}
	s.setPump(false)
	if s.servoOn {
		s.servo.DutyCycle(0, s.servoCycle)
	}
	s.closed = true
	err := rpio.Close()
	if err != nil {
		return fmt.Errorf("failed to close GPIO: %w", err)
	}
	s.log.Info("GPIO session closed")
	return nil
}
