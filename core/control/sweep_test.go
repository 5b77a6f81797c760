package control_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Samitrad/MSD2/core/control"
)

func TestSweep(t *testing.T) {
	s := &fakeSession{}
	sw := control.NewSweep([]float64{0, 180, 90}, 500*time.Millisecond, 500*time.Millisecond)
	t0 := time.Unix(0, 0)

	for i := 0; i < 8; i++ {
		require.NoError(t, sw.Tick(t0.Add(time.Duration(i)*500*time.Millisecond), s))
	}
	assert.Equal(t, []string{
		"set 0", "release",
		"set 180", "release",
		"set 90", "release",
		"set 0", "release",
	}, s.servo)
	assert.False(t, sw.Driving())
	assert.Equal(t, 0.0, sw.Angle())
}

func TestSweepWaitsForElapsedTime(t *testing.T) {
	s := &fakeSession{}
	sw := control.NewSweep([]float64{30, 150}, time.Second, 200*time.Millisecond)
	t0 := time.Unix(0, 0)

	require.NoError(t, sw.Tick(t0, s))
	require.NoError(t, sw.Tick(t0.Add(500*time.Millisecond), s))
	assert.True(t, sw.Driving())
	assert.Equal(t, []string{"set 30"}, s.servo)

	require.NoError(t, sw.Tick(t0.Add(time.Second), s))
	require.NoError(t, sw.Tick(t0.Add(1100*time.Millisecond), s))
	require.NoError(t, sw.Tick(t0.Add(1200*time.Millisecond), s))
	assert.Equal(t, []string{"set 30", "release", "set 150"}, s.servo)
	assert.Equal(t, 150.0, sw.Angle())
}

func TestNewSweepPanics(t *testing.T) {
	assert.Panics(t, func() { control.NewSweep(nil, time.Second, 0) })
	assert.Panics(t, func() { control.NewSweep([]float64{90}, 0, 0) })
}
