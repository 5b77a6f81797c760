package benchmark_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Samitrad/MSD2/benchmark"
	"github.com/Samitrad/MSD2/core/config"
)

func TestRun(t *testing.T) {
	cfg := config.Default()
	eng, err := cfg.NewEngine()
	require.NoError(t, err)

	sum, err := benchmark.Run(zaptest.NewLogger(t), eng, benchmark.Options{
		Goroutines:  4,
		Evaluations: 50,
		Seed:        1,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(200), sum.Evaluations)
	assert.Equal(t, sum.Evaluations-sum.Failures, sum.Latencies.TotalCount())
	assert.Positive(t, sum.Elapsed)

	var buf bytes.Buffer
	require.NoError(t, sum.Print(&buf))
	assert.Contains(t, buf.String(), "evaluations: 200")
	assert.Contains(t, buf.String(), "Percentile")
}

func TestRunRejectsInvalidOptions(t *testing.T) {
	cfg := config.Default()
	eng, err := cfg.NewEngine()
	require.NoError(t, err)
	_, err = benchmark.Run(zaptest.NewLogger(t), eng, benchmark.Options{Goroutines: 0, Evaluations: 1})
	assert.Error(t, err)
}
