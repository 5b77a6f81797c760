// Fire-fighting robot controller

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Samitrad/MSD2/base/unixutil"
	"github.com/Samitrad/MSD2/base/zaplog"
	"github.com/Samitrad/MSD2/benchmark"
	"github.com/Samitrad/MSD2/core/config"
	"github.com/Samitrad/MSD2/core/control"
	"github.com/Samitrad/MSD2/core/fuzzy"
	"github.com/Samitrad/MSD2/core/telemetry"
	"github.com/Samitrad/MSD2/driver/clock"
	"github.com/Samitrad/MSD2/driver/gpio"
	"github.com/Samitrad/MSD2/driver/sim"
	"github.com/Samitrad/MSD2/driver/vision"
	"github.com/Samitrad/MSD2/net/mqtt"
)

var version = "dev"

const monitorShutdownTimeout = 2 * time.Second

type globalFlags struct {
	verbose    bool
	configFile string
}

func (f *globalFlags) setup() (*zap.Logger, config.Config, error) {
	log, err := zaplog.New(f.verbose)
	if err != nil {
		return nil, config.Config{}, err
	}
	zaplog.SetLogger(log)
	cfg, err := config.Load(f.configFile)
	if err != nil {
		return nil, config.Config{}, err
	}
	return log, cfg, nil
}

func startMonitor(log *zap.Logger, addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to serve metrics", zap.String("address", addr), zap.Error(err))
		}
	}()
	return srv
}

func clientID(configured, session, role string) string {
	if configured != "" {
		return configured
	}
	return "firebot-" + role + "-" + session
}

func connectMQTT(ctx context.Context, log *zap.Logger, broker, id string) (*mqtt.Client, error) {
	c := mqtt.New(log, mqtt.Options{Broker: broker, ClientID: id})
	err := c.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", broker, err)
	}
	log.Info("connected to MQTT broker", zap.String("broker", broker), zap.String("client_id", id))
	return c, nil
}

func runRobot(ctx context.Context, log *zap.Logger, cfg config.Config) error {
	eng, err := cfg.NewEngine()
	if err != nil {
		return err
	}
	if cfg.Control.RealTime {
		err = unixutil.LockMemory()
		if err != nil {
			return fmt.Errorf("failed to lock memory: %w", err)
		}
		if cfg.Control.CPU >= 0 {
			err = unixutil.PinThread(cfg.Control.CPU)
			if err != nil {
				return fmt.Errorf("failed to pin control loop to CPU %d: %w", cfg.Control.CPU, err)
			}
		}
	}

	clk := &clock.SystemClock{Log: log}
	session := uuid.NewString()
	log.Info("starting", zap.String("version", version), zap.String("session", session))

	opts := []control.Option{
		control.WithSession(session),
		control.WithRegisterer(prometheus.DefaultRegisterer),
	}
	reporters := []telemetry.Reporter{&telemetry.LogReporter{Log: log}}
	if cfg.Telemetry.Enabled {
		c, err := connectMQTT(ctx, log, cfg.Telemetry.Broker, clientID(cfg.Telemetry.ClientID, session, "status"))
		if err != nil {
			return err
		}
		defer c.Disconnect()
		reporters = append(reporters, &telemetry.MQTTReporter{
			Publisher: c,
			Topic:     cfg.Telemetry.Topic,
			QoS:       byte(cfg.Telemetry.QoS),
			Timeout:   cfg.Control.CyclePeriod.Duration / 2,
		})
	}
	opts = append(opts, control.WithReporters(reporters...))
	if cfg.Vision.Enabled {
		c, err := connectMQTT(ctx, log, cfg.Vision.Broker, clientID(cfg.Vision.ClientID, session, "vision"))
		if err != nil {
			return err
		}
		defer c.Disconnect()
		tr := vision.NewTracker(log, clk, cfg.Vision.MaxAge.Duration, cfg.Vision.MinConfidence)
		err = c.Subscribe(ctx, cfg.Vision.Topic, byte(cfg.Vision.QoS), tr.Handle)
		if err != nil {
			return err
		}
		opts = append(opts, control.WithVision(tr))
	}

	sess, err := gpio.Open(log, clk, cfg)
	if err != nil {
		return err
	}
	defer func() {
		err := sess.Close()
		if err != nil {
			log.Error("failed to close GPIO session", zap.Error(err))
		}
	}()

	srv := startMonitor(log, cfg.Monitor.Address)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), monitorShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	return control.NewLoop(log, clk, eng, sess, cfg, opts...).Run(ctx)
}

// simStop ends a simulation once the fire is out or after a number of
// cycles.
type simStop struct {
	w      *sim.World
	cycles uint64
	cancel context.CancelFunc
}

func (s *simStop) Report(_ context.Context, r *telemetry.Report) error {
	if s.w.Extinguished() || r.Seq >= s.cycles {
		s.cancel()
	}
	return nil
}

func runSim(ctx context.Context, log *zap.Logger, cfg config.Config, cmd *cobra.Command,
	distance, bearing float64, cycles int) error {
	if cycles < 1 {
		return fmt.Errorf("invalid number of cycles: %d", cycles)
	}
	eng, err := cfg.NewEngine()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	clk := sim.NewVirtualClock(time.Now())
	w := sim.New(clk, sim.DefaultParams(cfg.Ranging), distance, bearing)
	defer w.Close()
	loop := control.NewLoop(log, clk, eng, w, cfg,
		control.WithSession(uuid.NewString()),
		control.WithReporters(
			&telemetry.LogReporter{Log: log},
			telemetry.NewStreamReporter(cmd.OutOrStdout()),
			&simStop{w: w, cycles: uint64(cycles), cancel: cancel},
		),
	)
	err = loop.Run(ctx)
	if err != nil {
		return err
	}
	s := w.State()
	log.Info("simulation finished",
		zap.Bool("extinguished", w.Extinguished()),
		zap.Float64("distance_cm", s.DistanceCM),
		zap.Float64("bearing_deg", s.BearingDeg),
		zap.Float64("water", s.Water))
	return nil
}

func runEval(cmd *cobra.Command, cfg config.Config, in fuzzy.Inputs, explain bool) error {
	eng, err := cfg.NewEngine()
	if err != nil {
		return err
	}
	r, err := eng.Infer(in)
	if r == nil {
		return err
	}
	out := cmd.OutOrStdout()
	if explain {
		for i, rule := range eng.RuleBase().Rules() {
			if r.Strengths[i] > 0 {
				fmt.Fprintf(out, "%.3f  %v\n", r.Strengths[i], rule)
			}
		}
	}
	for _, v := range eng.RuleBase().Outputs() {
		y, ok := r.Outputs[v.Name()]
		if !ok {
			fmt.Fprintf(out, "%s: undefined\n", v.Name())
			continue
		}
		fmt.Fprintf(out, "%s: %.3f\n", v.Name(), y)
	}
	var uerr *fuzzy.UndefinedOutputError
	if errors.As(err, &uerr) {
		return nil
	}
	return err
}

func runBenchmark(cmd *cobra.Command, log *zap.Logger, cfg config.Config, o benchmark.Options) error {
	eng, err := cfg.NewEngine()
	if err != nil {
		return err
	}
	sum, err := benchmark.Run(log, eng, o)
	if err != nil {
		return err
	}
	return sum.Print(cmd.OutOrStdout())
}

func newRootCmd() *cobra.Command {
	var gf globalFlags

	root := &cobra.Command{
		Use:           "firebot",
		Short:         "Fuzzy-logic controller of a fire-fighting robot",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&gf.verbose, "verbose", false, "Verbose logging")
	root.PersistentFlags().StringVar(&gf.configFile, "config", "", "Config file")

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the control loop on the robot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, cfg, err := gf.setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return runRobot(cmd.Context(), log, cfg)
		},
	})

	var (
		distance, bearing float64
		cycles            int
	)
	simCmd := &cobra.Command{
		Use:   "sim",
		Short: "Run the control loop against a simulated robot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, cfg, err := gf.setup()
			if err != nil {
				return err
			}
			return runSim(cmd.Context(), log, cfg, cmd, distance, bearing, cycles)
		},
	}
	simCmd.Flags().Float64Var(&distance, "distance", 80, "Initial distance to the fire in cm")
	simCmd.Flags().Float64Var(&bearing, "bearing", 0, "Initial bearing of the fire in degrees, negative is left")
	simCmd.Flags().IntVar(&cycles, "cycles", 100, "Maximum number of control cycles")
	root.AddCommand(simCmd)

	var (
		flameCenter, errorValue, proximity float64
		explain                            bool
	)
	evalCmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate the rule base for one set of inputs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := gf.setup()
			if err != nil {
				return err
			}
			return runEval(cmd, cfg, fuzzy.Inputs{
				config.VarFlameCenter: flameCenter,
				config.VarError:       errorValue,
				config.VarProximity:   proximity,
			}, explain)
		},
	}
	evalCmd.Flags().Float64Var(&flameCenter, "flame-center", 0, "Flame center input")
	evalCmd.Flags().Float64Var(&errorValue, "error", 0, "Steering error input")
	evalCmd.Flags().Float64Var(&proximity, "proximity", 30, "Proximity input in cm")
	evalCmd.Flags().BoolVar(&explain, "explain", false, "Print the rules that fired")
	root.AddCommand(evalCmd)

	var (
		outFile      string
		surfaceFlame float64
	)
	surfaceCmd := &cobra.Command{
		Use:   "surface",
		Short: "Plot motor duties against proximity to a PDF file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := gf.setup()
			if err != nil {
				return err
			}
			eng, err := cfg.NewEngine()
			if err != nil {
				return err
			}
			f, err := os.Create(outFile)
			if err != nil {
				return err
			}
			err = plotSurface(f, eng, surfaceFlame)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			return err
		},
	}
	surfaceCmd.Flags().StringVar(&outFile, "out", "surface.pdf", "Output file")
	surfaceCmd.Flags().Float64Var(&surfaceFlame, "flame-center", 1, "Flame center input")
	root.AddCommand(surfaceCmd)

	var bo benchmark.Options
	benchmarkCmd := &cobra.Command{
		Use:   "benchmark",
		Short: "Measure inference latency under concurrent load",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, cfg, err := gf.setup()
			if err != nil {
				return err
			}
			return runBenchmark(cmd, log, cfg, bo)
		},
	}
	benchmarkCmd.Flags().IntVar(&bo.Goroutines, "goroutines", 1, "Number of concurrent evaluators")
	benchmarkCmd.Flags().IntVar(&bo.Evaluations, "n", 100_000, "Evaluations per goroutine")
	benchmarkCmd.Flags().Int64Var(&bo.Seed, "seed", 1, "Seed of the input generator")
	root.AddCommand(benchmarkCmd)

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "firebot", version)
		},
	})

	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
