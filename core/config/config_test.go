package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lupguo/go-render/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Samitrad/MSD2/core/config"
	"github.com/Samitrad/MSD2/core/fuzzy"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 500*time.Millisecond, cfg.Control.CyclePeriod.Duration)
	assert.Equal(t, 5, cfg.Control.FailureThreshold)
	assert.Equal(t, 20.0, cfg.Control.ObstacleThresholdCM)
	assert.Equal(t, 1.0, cfg.Control.PumpThreshold)
	assert.Equal(t, 100.0, cfg.Control.PumpDutyPercent)
	assert.False(t, cfg.Control.HardObstacleStop)
	assert.Equal(t, 20*time.Millisecond, cfg.Ranging.Timeout.Duration)
	assert.Equal(t, 20.0, cfg.Ranging.SentinelCM)
	assert.Equal(t, 17150.0, cfg.Ranging.CMPerSecond)
	assert.Equal(t, []float64{0, 180, 90}, cfg.Servo.Angles)
	assert.Equal(t, 10, cfg.Hardware.FlameCenterPin)
	assert.Len(t, cfg.Variables, 5)
	assert.Len(t, cfg.Rules, 18)
}

func TestDefaultRulesCoverAllInputCombinations(t *testing.T) {
	cfg := config.Default()
	seen := make(map[string]bool)
	for _, r := range cfg.Rules {
		key := r.If[config.VarFlameCenter] + "/" + r.If[config.VarError] + "/" + r.If[config.VarProximity]
		assert.False(t, seen[key], "duplicate antecedent %s", key)
		seen[key] = true
		assert.Len(t, r.Then, 2, render.Render(r))
	}
	assert.Len(t, seen, 2*3*3)
}

func TestDefaultEngineScenarios(t *testing.T) {
	cfg := config.Default()
	e, err := cfg.NewEngine()
	require.NoError(t, err)
	assert.Equal(t, 18, e.RuleBase().Len())

	tests := []struct {
		name        string
		in          fuzzy.Inputs
		left, right float64
	}{
		{
			name:  "Centred flame far away",
			in:    fuzzy.Inputs{config.VarFlameCenter: 1, config.VarError: 0, config.VarProximity: 30},
			left:  84.8667,
			right: 83.4667,
		},
		{
			name:  "Nothing in sight and obstacle ahead",
			in:    fuzzy.Inputs{config.VarFlameCenter: 0, config.VarError: 0, config.VarProximity: 0},
			left:  0,
			right: 0,
		},
		{
			name:  "Flame on the left far away",
			in:    fuzzy.Inputs{config.VarFlameCenter: 0, config.VarError: -1, config.VarProximity: 30},
			left:  65,
			right: 83.4667,
		},
		{
			name:  "Flame on the right far away",
			in:    fuzzy.Inputs{config.VarFlameCenter: 0, config.VarError: 1, config.VarProximity: 30},
			left:  84.8667,
			right: 60,
		},
		{
			name:  "Centred flame at mid range",
			in:    fuzzy.Inputs{config.VarFlameCenter: 1, config.VarError: 0, config.VarProximity: 20},
			left:  55,
			right: 45,
		},
		{
			name:  "Centred flame close up",
			in:    fuzzy.Inputs{config.VarFlameCenter: 1, config.VarError: 0, config.VarProximity: 0},
			left:  0,
			right: 0,
		},
		{
			name:  "Flame on the right close up",
			in:    fuzzy.Inputs{config.VarFlameCenter: 1, config.VarError: 1, config.VarProximity: 10},
			left:  55,
			right: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := e.Evaluate(tt.in)
			require.NoError(t, err)
			assert.InDelta(t, tt.left, out[config.VarLeftMotor], 1e-3)
			assert.InDelta(t, tt.right, out[config.VarRightMotor], 1e-3)
		})
	}

	out, err := e.Evaluate(tests[0].in)
	require.NoError(t, err)
	assert.Greater(t, out[config.VarLeftMotor], 65.0)
	assert.Greater(t, out[config.VarRightMotor], 65.0)
}

func TestDecodeOverridesDefaults(t *testing.T) {
	cfg, err := config.Decode(strings.NewReader(`
[control]
cycle_period = "250ms"
hard_obstacle_stop = true

[servo]
enabled = true
angles = [45.0]

[telemetry]
enabled = true
topic = "robots/1/status"
`))
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.Control.CyclePeriod.Duration)
	assert.True(t, cfg.Control.HardObstacleStop)
	assert.Equal(t, 5, cfg.Control.FailureThreshold, render.Render(cfg.Control))
	assert.Equal(t, []float64{45}, cfg.Servo.Angles)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "robots/1/status", cfg.Telemetry.Topic)
	assert.Equal(t, "tcp://127.0.0.1:1883", cfg.Telemetry.Broker)
	assert.Len(t, cfg.Rules, 18)
}

func TestDecodeReplacesRules(t *testing.T) {
	cfg, err := config.Decode(strings.NewReader(`
[[rules]]
if = { proximity = "Near" }
then = { left_motor = "Stop", right_motor = "Stop" }

[[rules]]
if = { proximity = "Far", flame_center = "High" }
then = { left_motor = "Fast", right_motor = "Fast" }
`))
	require.NoError(t, err)
	require.Len(t, cfg.Rules, 2)
	assert.Len(t, cfg.Variables, 5)

	rb, err := cfg.NewRuleBase()
	require.NoError(t, err)
	rs := rb.Rules()
	require.Len(t, rs, 2)
	assert.Equal(t, "IF flame_center is High AND proximity is Far THEN left_motor is Fast, right_motor is Fast",
		rs[1].String())
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		toml string
	}{
		{"Unknown field", "[control]\ncycle = \"1s\"\n"},
		{"Bad duration", "[control]\ncycle_period = \"soon\"\n"},
		{"Non-positive period", "[control]\ncycle_period = \"0s\"\n"},
		{"Zero failure threshold", "[control]\nfailure_threshold = 0\n"},
		{"Pump duty out of range", "[control]\npump_duty_percent = 120.0\n"},
		{"Unbounded ranging timeout", "[ranging]\ntimeout = \"2s\"\n"},
		{"No samples", "[ranging]\nsamples = 0\n"},
		{"Servo angle out of range", "[servo]\nenabled = true\nangles = [270.0]\n"},
		{"Pin assigned twice", "[hardware]\nflame_left_pin = 10\n"},
		{"Pin out of range", "[hardware]\necho_pin = 40\n"},
		{"Telemetry without topic", "[telemetry]\nenabled = true\ntopic = \"\"\n"},
		{"Vision confidence out of range", "[vision]\nenabled = true\nmin_confidence = 1.5\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Decode(strings.NewReader(tt.toml))
			assert.Error(t, err, render.Render(cfg))
		})
	}
}

func TestValidateReportsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Control.SafeDuty = -1
	assert.True(t, errors.Is(cfg.Validate(), config.ErrInvalidConfig))
}

func TestNewRuleBaseErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(cfg *config.Config)
		err    error
	}{
		{
			name: "Unknown shape",
			modify: func(cfg *config.Config) {
				cfg.Variables[0].Terms[0].Shape = "gaussian"
			},
			err: fuzzy.ErrInvalidShape,
		},
		{
			name: "Decreasing breakpoints",
			modify: func(cfg *config.Config) {
				cfg.Variables[2].Terms[1].Points = []float64{25, 20, 15}
			},
			err: fuzzy.ErrInvalidShape,
		},
		{
			name: "Duplicate label",
			modify: func(cfg *config.Config) {
				cfg.Variables[1].Terms[2].Label = "Left"
			},
			err: fuzzy.ErrDuplicateLabel,
		},
		{
			name: "Unknown label",
			modify: func(cfg *config.Config) {
				cfg.Rules[0].Then[config.VarRightMotor] = "Med"
			},
			err: fuzzy.ErrUnknownLabel,
		},
		{
			name: "Unknown variable",
			modify: func(cfg *config.Config) {
				cfg.Rules[3].If["temperature"] = "Far"
			},
			err: fuzzy.ErrUnknownVariable,
		},
		{
			name: "Missing required variable",
			modify: func(cfg *config.Config) {
				cfg.Variables = cfg.Variables[1:]
			},
			err: fuzzy.ErrUnknownVariable,
		},
		{
			name: "Unknown kind",
			modify: func(cfg *config.Config) {
				cfg.Variables[4].Kind = "state"
			},
			err: config.ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.modify(&cfg)
			_, err := cfg.NewEngine()
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestLoad(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Len(t, cfg.Rules, 18)

	p := filepath.Join(t.TempDir(), "firebot.toml")
	require.NoError(t, os.WriteFile(p, []byte("[monitor]\naddress = \":9100\"\n"), 0o600))
	cfg, err = config.Load(p)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.Monitor.Address)

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestDurationText(t *testing.T) {
	var d config.Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration)
	b, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(b))
	assert.Error(t, d.UnmarshalText([]byte("90")))
}
