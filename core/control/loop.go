// Package control runs the sense, infer and actuate cycle of the robot.
package control

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/Samitrad/MSD2/base/metrics"
	"github.com/Samitrad/MSD2/base/timebase"
	"github.com/Samitrad/MSD2/core/config"
	"github.com/Samitrad/MSD2/core/fuzzy"
	"github.com/Samitrad/MSD2/core/robot"
	"github.com/Samitrad/MSD2/core/telemetry"
)

type loopMetrics struct {
	cycles          prometheus.Counter
	skipped         prometheus.Counter
	sensorFailures  prometheus.Counter
	undefined       prometheus.Counter
	publishFailures prometheus.Counter
	leftDuty        prometheus.Gauge
	rightDuty       prometheus.Gauge
	proximity       prometheus.Gauge
	pumpActive      prometheus.Gauge
	safeState       prometheus.Gauge
}

// newLoopMetrics registers with reg. A nil reg leaves the metrics
// unregistered.
func newLoopMetrics(reg prometheus.Registerer) *loopMetrics {
	f := promauto.With(reg)
	return &loopMetrics{
		cycles: f.NewCounter(prometheus.CounterOpts{
			Name: metrics.ControlCyclesN,
			Help: metrics.ControlCyclesH,
		}),
		skipped: f.NewCounter(prometheus.CounterOpts{
			Name: metrics.ControlCyclesSkippedN,
			Help: metrics.ControlCyclesSkippedH,
		}),
		sensorFailures: f.NewCounter(prometheus.CounterOpts{
			Name: metrics.ControlSensorFailuresN,
			Help: metrics.ControlSensorFailuresH,
		}),
		undefined: f.NewCounter(prometheus.CounterOpts{
			Name: metrics.ControlUndefinedOutputsN,
			Help: metrics.ControlUndefinedOutputsH,
		}),
		publishFailures: f.NewCounter(prometheus.CounterOpts{
			Name: metrics.TelemetryPublishFailuresN,
			Help: metrics.TelemetryPublishFailuresH,
		}),
		leftDuty: f.NewGauge(prometheus.GaugeOpts{
			Name: metrics.ControlLeftDutyN,
			Help: metrics.ControlLeftDutyH,
		}),
		rightDuty: f.NewGauge(prometheus.GaugeOpts{
			Name: metrics.ControlRightDutyN,
			Help: metrics.ControlRightDutyH,
		}),
		proximity: f.NewGauge(prometheus.GaugeOpts{
			Name: metrics.ControlProximityN,
			Help: metrics.ControlProximityH,
		}),
		pumpActive: f.NewGauge(prometheus.GaugeOpts{
			Name: metrics.ControlPumpActiveN,
			Help: metrics.ControlPumpActiveH,
		}),
		safeState: f.NewGauge(prometheus.GaugeOpts{
			Name: metrics.ControlSafeStateN,
			Help: metrics.ControlSafeStateH,
		}),
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

type Loop struct {
	log              *zap.Logger
	clk              timebase.Clock
	eng              *fuzzy.Engine
	sess             robot.Session
	vision           robot.Vision
	policy           Policy
	period           time.Duration
	failureThreshold int
	proximityCap     float64
	sweep            *Sweep
	reporters        []telemetry.Reporter
	session          string
	reg              prometheus.Registerer
	metrics          *loopMetrics

	seq      uint64
	sensed   Sensed
	failures int
	safe     bool
	last     Command
}

type Option func(*Loop)

// WithVision ORs the camera's centred-flame signal into flame_center.
func WithVision(v robot.Vision) Option {
	return func(l *Loop) { l.vision = v }
}

func WithReporters(rs ...telemetry.Reporter) Option {
	return func(l *Loop) { l.reporters = append(l.reporters, rs...) }
}

// WithRegisterer registers the loop metrics with reg instead of leaving them
// unregistered.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(l *Loop) { l.reg = reg }
}

// WithSession sets the session identifier stamped on every report.
func WithSession(id string) Option {
	return func(l *Loop) { l.session = id }
}

func proximityCap(eng *fuzzy.Engine) float64 {
	for _, v := range eng.RuleBase().Inputs() {
		if v.Name() == config.VarProximity {
			return v.Universe().Max
		}
	}
	panic("rule base has no proximity input")
}

func NewLoop(log *zap.Logger, clk timebase.Clock, eng *fuzzy.Engine, sess robot.Session,
	cfg config.Config, opts ...Option) *Loop {
	if eng == nil || sess == nil || clk == nil {
		panic("control loop requires an engine, a session and a clock")
	}
	if cfg.Control.CyclePeriod.Duration <= 0 {
		panic("invalid control cycle period")
	}
	if cfg.Control.FailureThreshold < 1 {
		panic("invalid sensor failure threshold")
	}
	l := &Loop{
		log:              log,
		clk:              clk,
		eng:              eng,
		sess:             sess,
		policy:           NewPolicy(cfg.Control),
		period:           cfg.Control.CyclePeriod.Duration,
		failureThreshold: cfg.Control.FailureThreshold,
		proximityCap:     proximityCap(eng),
		sensed: Sensed{
			Distance: robot.Distance{CM: cfg.Ranging.SentinelCM},
		},
	}
	if cfg.Servo.Enabled {
		l.sweep = NewSweep(cfg.Servo.Angles, cfg.Servo.Hold.Duration, cfg.Servo.Dwell.Duration)
	}
	for _, o := range opts {
		o(l)
	}
	l.metrics = newLoopMetrics(l.reg)
	return l
}

// sense refreshes the held sensor state and returns the number of failed
// reads. A failed read keeps the last good value of its field.
func (l *Loop) sense(ctx context.Context) int {
	n := 0
	flame := func(p robot.FlamePosition, dst *bool) {
		level, err := l.sess.ReadFlame(p)
		if err != nil {
			n++
			l.log.Warn("failed to read flame sensor", zap.Stringer("position", p), zap.Error(err))
			return
		}
		*dst = !level
	}
	flame(robot.FlameCenter, &l.sensed.Center)
	flame(robot.FlameLeft, &l.sensed.Left)
	flame(robot.FlameRight, &l.sensed.Right)

	d, err := l.sess.MeasureDistance(ctx)
	if err != nil {
		n++
		l.log.Warn("failed to measure distance", zap.Error(err))
	} else {
		l.sensed.Distance = d
	}

	w, err := l.sess.ReadWaterLevel()
	if err != nil {
		n++
		l.log.Warn("failed to read water level", zap.Error(err))
	} else {
		if l.sensed.Water && !w {
			l.log.Warn("water level low")
		}
		l.sensed.Water = w
	}

	if l.vision != nil {
		l.sensed.VisionCentered = l.vision.FlameCentered()
	}
	return n
}

func (l *Loop) actuate(c Command, dir robot.Direction) {
	err := l.sess.SetMotor(robot.MotorLeft, dir, c.LeftDuty)
	if err != nil {
		l.log.Warn("failed to set left motor", zap.Error(err))
	}
	err = l.sess.SetMotor(robot.MotorRight, dir, c.RightDuty)
	if err != nil {
		l.log.Warn("failed to set right motor", zap.Error(err))
	}
	duty := 0.0
	if c.Pump {
		duty = l.policy.PumpDutyPercent
	}
	err = l.sess.SetPump(c.Pump, duty)
	if err != nil {
		l.log.Warn("failed to set pump", zap.Error(err))
	}
}

// infer runs the rule base. It returns false if the cycle must be skipped.
func (l *Loop) infer(in fuzzy.Inputs) (left, right float64, undefined []string, ok bool) {
	res, err := l.eng.Infer(in)
	var uerr *fuzzy.UndefinedOutputError
	switch {
	case err == nil:
	case errors.As(err, &uerr):
		undefined = uerr.Variables
		l.metrics.undefined.Add(float64(len(undefined)))
		l.log.Warn("no rule fired, using safe duty",
			zap.Strings("outputs", undefined), zap.Float64("safe_duty", l.policy.SafeDuty))
	default:
		l.metrics.skipped.Inc()
		l.log.Warn("skipping cycle", zap.Error(err))
		return 0, 0, nil, false
	}
	left, okl := res.Outputs[config.VarLeftMotor]
	if !okl {
		left = l.policy.SafeDuty
	}
	right, okr := res.Outputs[config.VarRightMotor]
	if !okr {
		right = l.policy.SafeDuty
	}
	return left, right, undefined, true
}

func (l *Loop) report(ctx context.Context, r *telemetry.Report) {
	for _, rep := range l.reporters {
		err := rep.Report(ctx, r)
		if err != nil {
			l.metrics.publishFailures.Inc()
			l.log.Warn("failed to report cycle", zap.Error(err))
		}
	}
}

// Step runs one control cycle and returns its report. Errors never abort a
// cycle: failed reads hold their last value, a cycle with incomplete inputs
// keeps the previous command, and outputs no rule fired for fall back to the
// safe duty. After FailureThreshold consecutive cycles with failed reads the
// loop stops the robot until a cycle reads cleanly again.
func (l *Loop) Step(ctx context.Context) *telemetry.Report {
	l.seq++
	l.metrics.cycles.Inc()

	n := l.sense(ctx)
	if n != 0 {
		l.failures++
		l.metrics.sensorFailures.Add(float64(n))
	} else {
		l.failures = 0
	}
	safe := l.failures >= l.failureThreshold
	if safe != l.safe {
		if safe {
			l.log.Warn("entering safe state", zap.Int("consecutive_failures", l.failures))
		} else {
			l.log.Info("leaving safe state")
		}
		l.safe = safe
	}

	in, bearing := Derive(l.sensed, l.proximityCap)
	r := &telemetry.Report{
		Session:        l.session,
		Seq:            l.seq,
		Time:           time.Now().UTC(),
		FlameCenter:    l.sensed.FlameCenter(),
		Bearing:        bearing.String(),
		Error:          in[config.VarError],
		Proximity:      in[config.VarProximity],
		DistanceCM:     l.sensed.Distance.CM,
		Echo:           l.sensed.Distance.Echo,
		WaterOK:        l.sensed.Water,
		SafeState:      safe,
		SensorFailures: n,
	}

	switch {
	case safe:
		l.last = Command{Obstacle: l.policy.Obstacle(l.sensed.Distance.CM)}
		l.actuate(l.last, robot.Stop)
	default:
		left, right, undefined, ok := l.infer(in)
		if !ok {
			r.Skipped = true
			break
		}
		r.Undefined = undefined
		l.last = l.policy.Decide(left, right, l.sensed)
		l.actuate(l.last, robot.Forward)
		if l.sweep != nil {
			err := l.sweep.Tick(l.clk.Now(), l.sess)
			if err != nil {
				l.log.Warn("failed to drive servo", zap.Error(err))
			}
		}
	}

	r.LeftDuty = l.last.LeftDuty
	r.RightDuty = l.last.RightDuty
	r.Obstacle = l.last.Obstacle
	r.PumpActive = l.last.Pump

	l.metrics.leftDuty.Set(r.LeftDuty)
	l.metrics.rightDuty.Set(r.RightDuty)
	l.metrics.proximity.Set(r.Proximity)
	l.metrics.pumpActive.Set(boolGauge(r.PumpActive))
	l.metrics.safeState.Set(boolGauge(r.SafeState))

	l.report(ctx, r)
	return r
}

// shutdown stops motors and pump. It runs on every exit path of Run.
func (l *Loop) shutdown() {
	l.last = Command{}
	l.actuate(l.last, robot.Stop)
	if l.sweep != nil {
		err := l.sess.ReleaseServo()
		if err != nil {
			l.log.Warn("failed to release servo", zap.Error(err))
		}
	}
	l.metrics.leftDuty.Set(0)
	l.metrics.rightDuty.Set(0)
	l.metrics.pumpActive.Set(0)
	l.log.Info("actuators stopped")
}

// Run executes cycles every period until ctx is done. It returns within one
// period of cancellation, with motors and pump stopped.
func (l *Loop) Run(ctx context.Context) error {
	defer l.shutdown()
	l.log.Info("control loop started", zap.Duration("period", l.period))
	for {
		t0 := l.clk.Now()
		l.Step(ctx)
		if ctx.Err() != nil {
			return nil
		}
		d := l.period - l.clk.Now().Sub(t0)
		if d > 0 {
			l.clk.Sleep(d)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}
