package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/Samitrad/MSD2/core/fuzzy"
)

// Names of the linguistic variables the control policy feeds and reads.
const (
	VarFlameCenter = "flame_center"
	VarError       = "error"
	VarProximity   = "proximity"
	VarLeftMotor   = "left_motor"
	VarRightMotor  = "right_motor"

	KindInput  = "input"
	KindOutput = "output"
)

var (
	requiredInputs  = []string{VarFlameCenter, VarError, VarProximity}
	requiredOutputs = []string{VarLeftMotor, VarRightMotor}
)

//go:embed default.toml
var defaultConfig []byte

var ErrInvalidConfig = errors.New("invalid configuration")

// Duration is a time.Duration written as a string in TOML, e.g. "500ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type ControlConfig struct {
	CyclePeriod         Duration `toml:"cycle_period"`
	FailureThreshold    int      `toml:"failure_threshold"`
	SafeDuty            float64  `toml:"safe_duty"`
	ObstacleThresholdCM float64  `toml:"obstacle_threshold_cm"`
	HardObstacleStop    bool     `toml:"hard_obstacle_stop"`
	PumpThreshold       float64  `toml:"pump_threshold"`
	PumpDutyPercent     float64  `toml:"pump_duty_percent"`
	PumpRequiresWater   bool     `toml:"pump_requires_water"`
	RealTime            bool     `toml:"real_time"`
	CPU                 int      `toml:"cpu"`
}

type RangingConfig struct {
	Timeout     Duration `toml:"timeout"`
	SentinelCM  float64  `toml:"sentinel_cm"`
	CMPerSecond float64  `toml:"cm_per_second"`
	Samples     int      `toml:"samples"`
}

type ServoConfig struct {
	Enabled bool      `toml:"enabled"`
	Hold    Duration  `toml:"hold"`
	Dwell   Duration  `toml:"dwell"`
	Angles  []float64 `toml:"angles"`
}

type HardwareConfig struct {
	FlameCenterPin    int      `toml:"flame_center_pin"`
	FlameLeftPin      int      `toml:"flame_left_pin"`
	FlameRightPin     int      `toml:"flame_right_pin"`
	TriggerPin        int      `toml:"trigger_pin"`
	EchoPin           int      `toml:"echo_pin"`
	WaterLevelPin     int      `toml:"water_level_pin"`
	LeftForwardPin    int      `toml:"left_forward_pin"`
	LeftReversePin    int      `toml:"left_reverse_pin"`
	LeftPWMPin        int      `toml:"left_pwm_pin"`
	RightForwardPin   int      `toml:"right_forward_pin"`
	RightReversePin   int      `toml:"right_reverse_pin"`
	RightPWMPin       int      `toml:"right_pwm_pin"`
	ServoPin          int      `toml:"servo_pin"`
	PumpForwardPin    int      `toml:"pump_forward_pin"`
	PumpReversePin    int      `toml:"pump_reverse_pin"`
	PumpEnablePin     int      `toml:"pump_enable_pin"`
	MotorPWMFrequency int      `toml:"motor_pwm_frequency"`
	ServoPWMFrequency int      `toml:"servo_pwm_frequency"`
	Settle            Duration `toml:"settle"`
}

// Pins returns every GPIO line the hardware session claims, in a fixed order.
func (c HardwareConfig) Pins() []int {
	return []int{
		c.FlameCenterPin, c.FlameLeftPin, c.FlameRightPin,
		c.TriggerPin, c.EchoPin, c.WaterLevelPin,
		c.LeftForwardPin, c.LeftReversePin, c.LeftPWMPin,
		c.RightForwardPin, c.RightReversePin, c.RightPWMPin,
		c.ServoPin,
		c.PumpForwardPin, c.PumpReversePin, c.PumpEnablePin,
	}
}

type TelemetryConfig struct {
	Enabled  bool   `toml:"enabled"`
	Broker   string `toml:"broker"`
	Topic    string `toml:"topic"`
	ClientID string `toml:"client_id"`
	QoS      int    `toml:"qos"`
}

type VisionConfig struct {
	Enabled       bool     `toml:"enabled"`
	Broker        string   `toml:"broker"`
	Topic         string   `toml:"topic"`
	ClientID      string   `toml:"client_id"`
	QoS           int      `toml:"qos"`
	MaxAge        Duration `toml:"max_age"`
	MinConfidence float64  `toml:"min_confidence"`
}

type MonitorConfig struct {
	Address string `toml:"address"`
}

type TermConfig struct {
	Label  string    `toml:"label"`
	Shape  string    `toml:"shape"`
	Points []float64 `toml:"points"`
}

type VariableConfig struct {
	Name  string       `toml:"name"`
	Kind  string       `toml:"kind"`
	Min   float64      `toml:"min"`
	Max   float64      `toml:"max"`
	Step  float64      `toml:"step"`
	Terms []TermConfig `toml:"terms"`
}

// RuleConfig maps variable names to labels. Clause order within a rule is
// irrelevant to inference; clauses are built sorted by variable name.
type RuleConfig struct {
	If   map[string]string `toml:"if"`
	Then map[string]string `toml:"then"`
}

type Config struct {
	Control   ControlConfig    `toml:"control"`
	Ranging   RangingConfig    `toml:"ranging"`
	Servo     ServoConfig      `toml:"servo"`
	Hardware  HardwareConfig   `toml:"hardware"`
	Telemetry TelemetryConfig  `toml:"telemetry"`
	Vision    VisionConfig     `toml:"vision"`
	Monitor   MonitorConfig    `toml:"monitor"`
	Variables []VariableConfig `toml:"variables"`
	Rules     []RuleConfig     `toml:"rules"`
}

func decode(raw []byte, cfg *Config) error {
	return toml.NewDecoder(bytes.NewReader(raw)).DisallowUnknownFields().Decode(cfg)
}

// Default returns the built-in configuration.
func Default() Config {
	var cfg Config
	err := decode(defaultConfig, &cfg)
	if err != nil {
		panic(fmt.Sprintf("failed to decode default configuration: %v", err))
	}
	return cfg
}

// Decode reads a configuration from r on top of the defaults and validates it.
func Decode(r io.Reader) (Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	// Lists present in the input replace the defaults rather than extend them.
	as, vs, rs := cfg.Servo.Angles, cfg.Variables, cfg.Rules
	cfg.Servo.Angles, cfg.Variables, cfg.Rules = nil, nil, nil
	err = decode(raw, &cfg)
	if err != nil {
		return Config{}, err
	}
	if cfg.Servo.Angles == nil {
		cfg.Servo.Angles = as
	}
	if cfg.Variables == nil {
		cfg.Variables = vs
	}
	if cfg.Rules == nil {
		cfg.Rules = rs
	}
	err = cfg.Validate()
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads the configuration file at path. An empty path yields the
// defaults.
func Load(path string) (Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	cfg, err := Decode(f)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

func inRange(x, lo, hi float64) bool {
	return x >= lo && x <= hi
}

func validateBroker(section string, enabled bool, broker, topic string, qos int) error {
	if !enabled {
		return nil
	}
	if broker == "" || topic == "" {
		return invalid("%s: broker and topic are required", section)
	}
	if qos < 0 || qos > 2 {
		return invalid("%s: qos %d not in [0, 2]", section, qos)
	}
	return nil
}

// Validate checks the policy parameters. Variables and rules are checked when
// the engine is built.
func (c *Config) Validate() error {
	ctl := c.Control
	if ctl.CyclePeriod.Duration <= 0 {
		return invalid("control.cycle_period must be positive")
	}
	if ctl.FailureThreshold < 1 {
		return invalid("control.failure_threshold must be at least 1")
	}
	if !inRange(ctl.SafeDuty, 0, 100) {
		return invalid("control.safe_duty %v not in [0, 100]", ctl.SafeDuty)
	}
	if !inRange(ctl.PumpThreshold, 0, 100) {
		return invalid("control.pump_threshold %v not in [0, 100]", ctl.PumpThreshold)
	}
	if !inRange(ctl.PumpDutyPercent, 0, 100) {
		return invalid("control.pump_duty_percent %v not in [0, 100]", ctl.PumpDutyPercent)
	}
	if ctl.ObstacleThresholdCM < 0 {
		return invalid("control.obstacle_threshold_cm must not be negative")
	}

	rng := c.Ranging
	if rng.Timeout.Duration <= 0 || rng.Timeout.Duration > 100*time.Millisecond {
		return invalid("ranging.timeout %v not in (0, 100ms]", rng.Timeout.Duration)
	}
	if rng.SentinelCM <= 0 || rng.CMPerSecond <= 0 {
		return invalid("ranging.sentinel_cm and ranging.cm_per_second must be positive")
	}
	if rng.Samples < 1 || rng.Samples > 5 {
		return invalid("ranging.samples %d not in [1, 5]", rng.Samples)
	}

	if c.Servo.Enabled {
		if c.Servo.Hold.Duration <= 0 || c.Servo.Dwell.Duration < 0 {
			return invalid("servo.hold must be positive and servo.dwell must not be negative")
		}
		if len(c.Servo.Angles) == 0 {
			return invalid("servo.angles must not be empty")
		}
		for _, a := range c.Servo.Angles {
			if !inRange(a, 0, 180) {
				return invalid("servo angle %v not in [0, 180]", a)
			}
		}
	}

	seen := make(map[int]bool)
	for _, p := range c.Hardware.Pins() {
		if p < 0 || p > 27 {
			return invalid("hardware: pin %d not in [0, 27]", p)
		}
		if seen[p] {
			return invalid("hardware: pin %d assigned twice", p)
		}
		seen[p] = true
	}
	if c.Hardware.MotorPWMFrequency <= 0 || c.Hardware.ServoPWMFrequency <= 0 {
		return invalid("hardware: pwm frequencies must be positive")
	}

	t := c.Telemetry
	err := validateBroker("telemetry", t.Enabled, t.Broker, t.Topic, t.QoS)
	if err != nil {
		return err
	}
	v := c.Vision
	err = validateBroker("vision", v.Enabled, v.Broker, v.Topic, v.QoS)
	if err != nil {
		return err
	}
	if c.Vision.Enabled {
		if c.Vision.MaxAge.Duration <= 0 {
			return invalid("vision.max_age must be positive")
		}
		if !inRange(c.Vision.MinConfidence, 0, 1) {
			return invalid("vision.min_confidence %v not in [0, 1]", c.Vision.MinConfidence)
		}
	}
	return nil
}

func newVariable(vc VariableConfig) (*fuzzy.Variable, error) {
	terms := make([]fuzzy.Term, len(vc.Terms))
	for i, tc := range vc.Terms {
		shape, err := fuzzy.ParseShape(tc.Shape)
		if err != nil {
			return nil, fmt.Errorf("variable %q, term %q: %w", vc.Name, tc.Label, err)
		}
		f, err := fuzzy.NewMembershipFunc(shape, tc.Points)
		if err != nil {
			return nil, fmt.Errorf("variable %q, term %q: %w", vc.Name, tc.Label, err)
		}
		terms[i] = fuzzy.Term{Label: tc.Label, Func: f}
	}
	return fuzzy.NewVariable(vc.Name,
		fuzzy.Universe{Min: vc.Min, Max: vc.Max, Step: vc.Step}, terms...)
}

func clauses(m map[string]string) []fuzzy.Clause {
	cs := make([]fuzzy.Clause, 0, len(m))
	for v, l := range m {
		cs = append(cs, fuzzy.Clause{Variable: v, Label: l})
	}
	slices.SortFunc(cs, func(a, b fuzzy.Clause) int {
		switch {
		case a.Variable < b.Variable:
			return -1
		case a.Variable > b.Variable:
			return 1
		default:
			return 0
		}
	})
	return cs
}

func requireVariables(vs []*fuzzy.Variable, names []string, kind string) error {
	for _, n := range names {
		if !slices.ContainsFunc(vs, func(v *fuzzy.Variable) bool { return v.Name() == n }) {
			return fmt.Errorf("%w: %s variable %q is required", fuzzy.ErrUnknownVariable, kind, n)
		}
	}
	return nil
}

// NewRuleBase builds the linguistic variables and the rule base.
func (c *Config) NewRuleBase() (*fuzzy.RuleBase, error) {
	var inputs, outputs []*fuzzy.Variable
	for _, vc := range c.Variables {
		v, err := newVariable(vc)
		if err != nil {
			return nil, err
		}
		switch vc.Kind {
		case KindInput:
			inputs = append(inputs, v)
		case KindOutput:
			outputs = append(outputs, v)
		default:
			return nil, invalid("variable %q: unknown kind %q", vc.Name, vc.Kind)
		}
	}
	err := requireVariables(inputs, requiredInputs, KindInput)
	if err != nil {
		return nil, err
	}
	err = requireVariables(outputs, requiredOutputs, KindOutput)
	if err != nil {
		return nil, err
	}
	rules := make([]fuzzy.Rule, len(c.Rules))
	for i, rc := range c.Rules {
		rules[i] = fuzzy.Rule{If: clauses(rc.If), Then: clauses(rc.Then)}
	}
	return fuzzy.NewRuleBase(inputs, outputs, rules)
}

func (c *Config) NewEngine() (*fuzzy.Engine, error) {
	rb, err := c.NewRuleBase()
	if err != nil {
		return nil, err
	}
	return fuzzy.NewEngine(rb)
}
