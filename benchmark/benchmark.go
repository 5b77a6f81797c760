// Package benchmark measures inference latency of a fuzzy engine under
// concurrent load.
package benchmark

import (
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"go.uber.org/zap"

	"github.com/Samitrad/MSD2/core/fuzzy"
)

// Latencies are recorded in microseconds.
const (
	minLatency = 1
	maxLatency = 1_000_000
	sigFigures = 3
)

type Options struct {
	Goroutines  int
	Evaluations int
	Seed        int64
}

type Summary struct {
	Evaluations int64
	Failures    int64
	Elapsed     time.Duration
	Latencies   *hdrhistogram.Histogram
}

// randomInputs draws n input vectors uniformly from the engine's input
// universes.
func randomInputs(rb *fuzzy.RuleBase, rnd *rand.Rand, n int) []fuzzy.Inputs {
	vs := rb.Inputs()
	ins := make([]fuzzy.Inputs, n)
	for i := range ins {
		in := make(fuzzy.Inputs, len(vs))
		for _, v := range vs {
			u := v.Universe()
			in[v.Name()] = u.Min + rnd.Float64()*(u.Max-u.Min)
		}
		ins[i] = in
	}
	return ins
}

// Run evaluates eng from o.Goroutines goroutines, o.Evaluations times each,
// and merges the per-goroutine latency histograms.
func Run(log *zap.Logger, eng *fuzzy.Engine, o Options) (Summary, error) {
	if o.Goroutines < 1 || o.Evaluations < 1 {
		return Summary{}, fmt.Errorf("invalid benchmark options: %+v", o)
	}
	rnd := rand.New(rand.NewSource(o.Seed))
	var mu sync.Mutex
	sum := Summary{Latencies: hdrhistogram.New(minLatency, maxLatency, sigFigures)}
	sg := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(o.Goroutines)
	for i := o.Goroutines; i > 0; i-- {
		ins := randomInputs(eng.RuleBase(), rnd, o.Evaluations)
		go func() {
			defer wg.Done()
			hg := hdrhistogram.New(minLatency, maxLatency, sigFigures)
			var failures int64
			<-sg
			for _, in := range ins {
				t0 := time.Now()
				_, err := eng.Evaluate(in)
				d := time.Since(t0)
				if err != nil {
					failures++
					continue
				}
				us := d.Microseconds()
				if us < minLatency {
					us = minLatency
				}
				err = hg.RecordValue(us)
				if err != nil {
					log.Info("failed to record histogram value", zap.Error(err))
				}
			}
			mu.Lock()
			defer mu.Unlock()
			sum.Latencies.Merge(hg)
			sum.Evaluations += int64(len(ins))
			sum.Failures += failures
		}()
	}
	t0 := time.Now()
	close(sg)
	wg.Wait()
	sum.Elapsed = time.Since(t0)
	log.Info("benchmark finished",
		zap.Int64("evaluations", sum.Evaluations),
		zap.Int64("failures", sum.Failures),
		zap.Duration("elapsed", sum.Elapsed))
	return sum, nil
}

// Print writes the latency percentiles of s to w.
func (s Summary) Print(w io.Writer) error {
	_, err := fmt.Fprintf(w, "evaluations: %d, failures: %d, elapsed: %v\n",
		s.Evaluations, s.Failures, s.Elapsed)
	if err != nil {
		return err
	}
	_, err = s.Latencies.PercentilesPrint(w, 1, 1.0)
	return err
}
