package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/meridiansim/plant-startup-simulator/core"
	"github.com/meridiansim/plant-startup-simulator/internal/config"
	"github.com/meridiansim/plant-startup-simulator/internal/logging"
	"github.com/meridiansim/plant-startup-simulator/internal/observability"
	"github.com/meridiansim/plant-startup-simulator/model"
	"github.com/meridiansim/plant-startup-simulator/props"
	"github.com/meridiansim/plant-startup-simulator/timectrl"
)

func main() {
	configPath := flag.String("config", "configs/plant.yaml", "path to the plant calibration file")
	scriptPath := flag.String("script", "", "optional startup script JSON driving operator actions and the heat sink")
	duration := flag.Float64("duration", 8.0, "simulated hours to run")
	stepHours := flag.Float64("step", 0.02, "simulated hours advanced per tick")
	speed := flag.Float64("speed", 60, "speedup factor for real-time pacing")
	accelerated := flag.Bool("accelerated", true, "run as fast as possible instead of paced real time")
	metricsAddr := flag.String("metrics-addr", ":9090", "HTTP address for Prometheus /metrics")
	logEvery := flag.Float64("log-every", 0.25, "simulated hours between plant panel log lines")
	flag.Parse()

	ctx, log := logging.WithRunLogger(context.Background(), logging.NewFromEnv())

	registry := prometheus.NewRegistry()
	engineMetrics, err := observability.NewEngineCollector(registry)
	if err != nil {
		log.Error(ctx, "failed to initialise engine metrics", logging.String("error", err.Error()))
		os.Exit(1)
	}
	runMetrics, err := observability.NewRunLoopCollector(registry)
	if err != nil {
		log.Error(ctx, "failed to initialise run-loop metrics", logging.String("error", err.Error()))
		os.Exit(1)
	}
	metricsSrv := serveMetrics(*metricsAddr, engineMetrics, log)

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.String("error", err.Error()))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	cfg, err := config.LoadPlantConfig(*configPath)
	if err != nil {
		log.Error(ctx, "failed to load plant config", logging.String("error", err.Error()))
		os.Exit(1)
	}

	oracle, err := props.NewSteamTable()
	if err != nil {
		log.Error(ctx, "failed to build steam tables", logging.String("error", err.Error()))
		os.Exit(1)
	}

	eng, err := core.NewEngine(cfg, oracle,
		core.WithLogger(log),
		core.WithMetricsRecorder(engineMetrics),
	)
	if err != nil {
		log.Error(ctx, "failed to build engine", logging.String("error", err.Error()))
		os.Exit(1)
	}

	script := loadScript(ctx, *scriptPath, log)

	mode := timectrl.RealTime
	if *accelerated {
		mode = timectrl.Accelerated
	}
	pacer := timectrl.NewPacer(*stepHours, mode, *speed)
	pacer.AddListener(runMetrics.SetSimHours)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	tracer := otel.Tracer("startup-sim")
	var (
		operator model.OperatorInputs
		sink     model.HeatSinkBoundary
		rejected int
		nextLog  float64
		simHours float64
	)

	advance := func(ctx context.Context, dt float64) error {
		if script != nil {
			applied := script.ApplyThrough(simHours, &operator, &sink)
			if len(applied) > 0 {
				eng.SetOperator(operator)
				eng.SetHeatSink(sink)
				for _, action := range applied {
					runMetrics.IncOperatorAction(action)
					log.Info(ctx, "startup script action applied",
						logging.String("action", action),
						logging.Float64("sim_hours", simHours),
					)
				}
			}
		}

		stepCtx, span := tracer.Start(ctx, "engine.advance",
			trace.WithAttributes(attribute.Float64("sim.dt_hours", dt)),
		)
		start := time.Now()
		snap, err := eng.Advance(stepCtx, dt)
		runMetrics.ObserveStep(time.Since(start))
		span.End()
		if err != nil {
			return err
		}

		if n := len(snap.Rejections) - rejected; n > 0 {
			runMetrics.AddRejectedRequests(n)
			for _, rej := range snap.Rejections[rejected:] {
				log.Warn(ctx, "operator request rejected",
					logging.String("request", rej.Request),
					logging.String("reason", rej.Reason),
				)
			}
			rejected = len(snap.Rejections)
		}

		simHours = snap.TimeHours
		if snap.TimeHours >= nextLog {
			logPanel(ctx, log, snap)
			nextLog += *logEvery
		}
		return nil
	}

	log.Info(ctx, "starting plant simulation",
		logging.Float64("duration_hours", *duration),
		logging.Float64("step_hours", *stepHours),
		logging.String("pacing", pacingName(mode)),
	)

	runErr := pacer.Run(ctx, *duration, advance)
	switch {
	case runErr == nil:
		log.Info(ctx, "simulation complete", logging.Float64("sim_hours", simHours))
	case errors.Is(runErr, context.Canceled):
		log.Info(ctx, "simulation interrupted", logging.Float64("sim_hours", simHours))
	default:
		log.Error(ctx, "simulation halted", logging.String("error", runErr.Error()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		os.Exit(1)
	}
}

func logPanel(ctx context.Context, log logging.Logger, snap core.Snapshot) {
	fields := []logging.Field{
		logging.Float64("sim_hours", snap.TimeHours),
		logging.String("mode", snap.Mode.String()),
		logging.String("bridge", snap.Bridge.String()),
		logging.String("phase", snap.Pressurizer.Phase.String()),
		logging.Float64("pressure_psia", snap.Pressurizer.PressurePSIA),
		logging.Float64("tavg_f", snap.LoopTavgF),
		logging.Float64("przr_level_pct", snap.LevelPct),
		logging.Float64("charging_gpm", snap.Flows.ChargingGPM),
		logging.Float64("letdown_gpm", snap.Flows.LetdownGPM),
	}
	if snap.Status.Code != core.TickOK {
		fields = append(fields, logging.String("status", snap.Status.Code.String()))
	}
	log.Info(ctx, "plant panel", fields...)
}

func loadScript(ctx context.Context, path string, log logging.Logger) *core.StartupScript {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		log.Error(ctx, "failed to open startup script", logging.String("path", path), logging.String("error", err.Error()))
		os.Exit(1)
	}
	defer f.Close()

	script, err := core.LoadStartupScript(f)
	if err != nil {
		log.Error(ctx, "failed to parse startup script", logging.String("path", path), logging.String("error", err.Error()))
		os.Exit(1)
	}
	log.Info(ctx, "loaded startup script",
		logging.String("path", path),
		logging.Int("actions", script.Remaining()),
	)
	return script
}

func serveMetrics(addr string, collector *observability.EngineCollector, log logging.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.String("error", err.Error()))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

func pacingName(m timectrl.Mode) string {
	if m == timectrl.RealTime {
		return "real-time"
	}
	return "accelerated"
}
