// Package ranging times HC-SR04 ultrasonic echoes.
package ranging

import (
	"context"
	"time"

	"github.com/Samitrad/MSD2/base/floats"
	"github.com/Samitrad/MSD2/base/timebase"
	"github.com/Samitrad/MSD2/core/config"
	"github.com/Samitrad/MSD2/core/robot"
)

const (
	triggerSettle = 100 * time.Microsecond
	triggerPulse  = 10 * time.Microsecond
	// Minimum gap between pings so that late echoes of one ping are not
	// taken for the next.
	pingGap = 60 * time.Millisecond
)

type Trigger interface {
	Write(high bool)
}

type Echo interface {
	Read() bool
}

type Ranger struct {
	trig        Trigger
	echo        Echo
	clk         timebase.Clock
	timeout     time.Duration
	sentinel    float64
	cmPerSecond float64
	samples     int
}

func New(trig Trigger, echo Echo, clk timebase.Clock, cfg config.RangingConfig) *Ranger {
	if cfg.Timeout.Duration <= 0 {
		panic("invalid ranging timeout")
	}
	if cfg.Samples < 1 {
		panic("invalid number of ranging samples")
	}
	return &Ranger{
		trig:        trig,
		echo:        echo,
		clk:         clk,
		timeout:     cfg.Timeout.Duration,
		sentinel:    cfg.SentinelCM,
		cmPerSecond: cfg.CMPerSecond,
		samples:     cfg.Samples,
	}
}

// waitFor polls the echo line until it reads level or the window closes.
func (r *Ranger) waitFor(level bool) (time.Time, bool) {
	deadline := r.clk.Now().Add(r.timeout)
	for {
		t := r.clk.Now()
		if r.echo.Read() == level {
			return t, true
		}
		if t.After(deadline) {
			return time.Time{}, false
		}
	}
}

func (r *Ranger) ping() robot.Distance {
	r.trig.Write(false)
	r.clk.Sleep(triggerSettle)
	r.trig.Write(true)
	r.clk.Sleep(triggerPulse)
	r.trig.Write(false)

	start, ok := r.waitFor(true)
	if !ok {
		return robot.Distance{CM: r.sentinel}
	}
	end, ok := r.waitFor(false)
	if !ok {
		return robot.Distance{CM: r.sentinel}
	}
	return robot.Distance{CM: end.Sub(start).Seconds() * r.cmPerSecond, Echo: true}
}

// Measure takes the configured number of pings and returns the median of the
// echoed ones, or the sentinel if none echoed. Each ping waits at most twice
// the ranging window.
func (r *Ranger) Measure(ctx context.Context) (robot.Distance, error) {
	var cms []float64
	for i := 0; i < r.samples; i++ {
		if err := ctx.Err(); err != nil {
			return robot.Distance{}, err
		}
		if i != 0 {
			r.clk.Sleep(pingGap)
		}
		d := r.ping()
		if d.Echo {
			cms = append(cms, d.CM)
		}
	}
	if len(cms) == 0 {
		return robot.Distance{CM: r.sentinel}, nil
	}
	return robot.Distance{CM: floats.Median(cms), Echo: true}, nil
}
