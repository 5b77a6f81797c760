// Package vision tracks flame detections published by the camera process.
package vision

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Samitrad/MSD2/base/timebase"
	"github.com/Samitrad/MSD2/core/robot"
)

// Detection is one result of the detection model, as published on the
// vision topic.
type Detection struct {
	Present    bool      `json:"present"`
	Centered   bool      `json:"centered"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// Tracker keeps the latest detection. A detection counts for maxAge after it
// was received.
type Tracker struct {
	log           *zap.Logger
	clk           timebase.Clock
	maxAge        time.Duration
	minConfidence float64

	mu       sync.Mutex
	last     Detection
	received time.Time
	valid    bool
}

var _ robot.Vision = (*Tracker)(nil)

func NewTracker(log *zap.Logger, clk timebase.Clock, maxAge time.Duration, minConfidence float64) *Tracker {
	if maxAge <= 0 {
		panic("invalid detection max age")
	}
	return &Tracker{
		log:           log,
		clk:           clk,
		maxAge:        maxAge,
		minConfidence: minConfidence,
	}
}

// Update records d unless it is older than the detection already held.
func (t *Tracker) Update(d Detection) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.valid && !d.Timestamp.IsZero() && d.Timestamp.Before(t.last.Timestamp) {
		return
	}
	t.last = d
	t.received = t.clk.Now()
	t.valid = true
}

// Handle decodes a detection message. It has the signature of an MQTT
// message handler.
func (t *Tracker) Handle(topic string, payload []byte) {
	var d Detection
	err := json.Unmarshal(payload, &d)
	if err != nil {
		t.log.Warn("failed to decode detection", zap.String("topic", topic), zap.Error(err))
		return
	}
	t.Update(d)
}

func (t *Tracker) FlameCentered() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.valid || t.clk.Now().Sub(t.received) > t.maxAge {
		return false
	}
	d := t.last
	return d.Present && d.Centered && d.Confidence >= t.minConfidence
}
