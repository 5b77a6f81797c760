package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/lupguo/go-render/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Samitrad/MSD2/core/config"
	"github.com/Samitrad/MSD2/core/telemetry"
	"github.com/Samitrad/MSD2/driver/clock"
	"github.com/Samitrad/MSD2/driver/gpio"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var buf bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs(args)
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	return buf.String()
}

func TestRobotHardware(t *testing.T) {
	hasRobot := os.Getenv("HAS_ROBOT")
	if hasRobot == "" {
		t.Skip("connect the robot to run this integration test")
	}

	log := zaptest.NewLogger(t)
	cfg := config.Default()
	sess, err := gpio.Open(log, &clock.SystemClock{Log: log}, cfg)
	require.NoError(t, err)
	defer sess.Close()

	d, err := sess.MeasureDistance(context.Background())
	require.NoError(t, err)
	t.Logf("distance: %+v", d)
	_, err = sess.ReadWaterLevel()
	require.NoError(t, err)
}

func TestEvalCommand(t *testing.T) {
	out := execute(t, "eval", "--flame-center", "1", "--error", "0", "--proximity", "30")
	want := "left_motor: 84.867\nright_motor: 83.467\n"
	if out != want {
		t.Errorf("eval printed %s, want %s", render.Render(out), render.Render(want))
	}

	out = execute(t, "eval", "--flame-center", "1", "--proximity", "0", "--explain")
	assert.Contains(t, out, "IF ")
	assert.True(t, strings.HasSuffix(out, "left_motor: 0.000\nright_motor: 0.000\n"), out)
}

func TestSimCommand(t *testing.T) {
	out := execute(t, "sim", "--distance", "80", "--bearing", "-30", "--cycles", "80")

	var reports []telemetry.Report
	s := bufio.NewScanner(strings.NewReader(out))
	for s.Scan() {
		var r telemetry.Report
		require.NoError(t, json.Unmarshal(s.Bytes(), &r), s.Text())
		reports = append(reports, r)
	}
	require.NoError(t, s.Err())
	require.NotEmpty(t, reports)
	assert.Less(t, len(reports), 80)
	assert.Equal(t, uint64(1), reports[0].Seq)
	assert.Equal(t, "left", reports[0].Bearing)

	pumped := false
	for _, r := range reports {
		pumped = pumped || r.PumpActive
	}
	assert.True(t, pumped, "pump never ran: %s", render.Render(reports[len(reports)-1]))
}

func TestSimCommandRejectsCycles(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"sim", "--cycles", "0"})
	assert.Error(t, cmd.ExecuteContext(context.Background()))
}

func TestBenchmarkCommand(t *testing.T) {
	out := execute(t, "benchmark", "--goroutines", "2", "--n", "20")
	assert.Contains(t, out, "evaluations: 40")
}

func TestVersionCommand(t *testing.T) {
	assert.Equal(t, "firebot dev\n", execute(t, "version"))
}

func TestPlotSurface(t *testing.T) {
	cfg := config.Default()
	eng, err := cfg.NewEngine()
	require.NoError(t, err)

	lines, err := surfaceLines(eng, config.VarLeftMotor, 1)
	require.NoError(t, err)
	require.Len(t, lines, len(surfaceErrors))
	for _, l := range lines {
		assert.Len(t, l, 61)
	}
	last := lines[1][len(lines[1])-1]
	assert.InDelta(t, 30, last.X, 1e-9)
	assert.InDelta(t, 84.8667, last.Y, 1e-3)

	var buf bytes.Buffer
	start := time.Now()
	require.NoError(t, plotSurface(&buf, eng, 1))
	t.Logf("plotted in %v", time.Since(start))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))
}
