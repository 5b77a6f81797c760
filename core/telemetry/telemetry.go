// Package telemetry carries the per-cycle status report of the control loop
// to the log and, optionally, to an MQTT topic.
package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Report struct {
	Session        string    `json:"session"`
	Seq            uint64    `json:"seq"`
	Time           time.Time `json:"time"`
	FlameCenter    bool      `json:"flame_center"`
	Bearing        string    `json:"bearing"`
	Error          float64   `json:"error"`
	Proximity      float64   `json:"proximity"`
	DistanceCM     float64   `json:"distance_cm"`
	Echo           bool      `json:"echo"`
	LeftDuty       float64   `json:"left_duty"`
	RightDuty      float64   `json:"right_duty"`
	Obstacle       bool      `json:"obstacle"`
	PumpActive     bool      `json:"pump_active"`
	WaterOK        bool      `json:"water_ok"`
	SafeState      bool      `json:"safe_state"`
	Skipped        bool      `json:"skipped"`
	SensorFailures int       `json:"sensor_failures"`
	Undefined      []string  `json:"undefined,omitempty"`
}

type Reporter interface {
	Report(ctx context.Context, r *Report) error
}

type LogReporter struct {
	Log *zap.Logger
}

var _ Reporter = (*LogReporter)(nil)

func (lr *LogReporter) Report(_ context.Context, r *Report) error {
	lr.Log.Debug("cycle",
		zap.Uint64("seq", r.Seq),
		zap.Bool("flame_center", r.FlameCenter),
		zap.String("bearing", r.Bearing),
		zap.Float64("error", r.Error),
		zap.Float64("proximity", r.Proximity),
		zap.Float64("left_duty", r.LeftDuty),
		zap.Float64("right_duty", r.RightDuty),
		zap.Bool("obstacle", r.Obstacle),
		zap.Bool("pump_active", r.PumpActive),
		zap.Bool("water_ok", r.WaterOK),
		zap.Bool("safe_state", r.SafeState),
		zap.Bool("skipped", r.Skipped),
		zap.Strings("undefined", r.Undefined),
	)
	return nil
}

// StreamReporter writes each report as one line of JSON.
type StreamReporter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

var _ Reporter = (*StreamReporter)(nil)

func NewStreamReporter(w io.Writer) *StreamReporter {
	return &StreamReporter{enc: json.NewEncoder(w)}
}

func (sr *StreamReporter) Report(_ context.Context, r *Report) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.enc.Encode(r)
}

type Publisher interface {
	Publish(ctx context.Context, topic string, qos byte, payload []byte) error
}

// MQTTReporter publishes each report as a JSON document. A publish is bounded
// by Timeout so that a stalled broker cannot hold up the control cycle.
type MQTTReporter struct {
	Publisher Publisher
	Topic     string
	QoS       byte
	Timeout   time.Duration
}

var _ Reporter = (*MQTTReporter)(nil)

func (mr *MQTTReporter) Report(ctx context.Context, r *Report) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	if mr.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, mr.Timeout)
		defer cancel()
	}
	return mr.Publisher.Publish(ctx, mr.Topic, mr.QoS, b)
}
