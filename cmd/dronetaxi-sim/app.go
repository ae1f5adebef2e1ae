package main

import (
	"context"
	"log/slog"

	"dronetaxi-sim/internal/assign"
	"dronetaxi-sim/internal/battery"
	"dronetaxi-sim/internal/clock"
	"dronetaxi-sim/internal/config"
	"dronetaxi-sim/internal/driver"
	"dronetaxi-sim/internal/events"
	"dronetaxi-sim/internal/fleet"
	"dronetaxi-sim/internal/logging"
	"dronetaxi-sim/internal/progress"
	"dronetaxi-sim/internal/rides"
	"dronetaxi-sim/internal/storage"
)

// app bundles the configuration and shared stores of one command run.
type app struct {
	cfg   *config.Config
	env   config.Env
	log   *slog.Logger
	store storage.Store
	gen   *assign.Generator
	rides *rides.Log
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default()
	}
	return config.Load(configPath)
}

// openApp loads configuration and opens the configured store. log may be nil
// to build one from the environment.
func openApp(ctx context.Context, log *slog.Logger) (*app, error) {
	env := config.FromEnv()
	if logLevel != "" {
		env.LogLevel = logLevel
	}
	if log == nil {
		log = logging.New(env.LogLevel)
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	env.Apply(cfg)

	store, err := storage.Open(ctx, storage.Options{
		Backend:     env.Store,
		Path:        env.StorePath,
		RedisAddr:   env.RedisAddr,
		DatabaseURL: env.DatabaseURL,
	})
	if err != nil {
		return nil, err
	}
	log.Info("store opened", "backend", env.Store)

	gen := assign.NewGenerator(
		assign.WithLandmarks(cfg.Landmarks),
		assign.WithDurationWindow(cfg.Timings.DurationMin, cfg.Timings.DurationMax),
		assign.WithRouteSteps(cfg.RouteSteps),
	)
	rideLog := rides.NewLog(store, rides.WithMax(cfg.MaxCompletedRides), rides.WithLogger(log))
	return &app{cfg: cfg, env: env, log: log, store: store, gen: gen, rides: rideLog}, nil
}

// newDashboard builds the fleet dashboard; the returned func releases it.
func (a *app) newDashboard(ctx context.Context, sched clock.Scheduler, w events.Writer) (*fleet.Dashboard, func(), error) {
	overrides := battery.NewOverrides(ctx, a.store, a.log)
	dash, err := fleet.NewDashboard(sched, fleet.NewCities(a.cfg.Cities), overrides,
		fleet.WithGenerator(a.gen),
		fleet.WithZoomIncrement(a.cfg.ZoomIncrement),
		fleet.WithProgressOptions(
			progress.WithTick(a.cfg.Timings.ProgressTick),
			progress.WithMode(progress.Mode(a.cfg.Timings.ProgressMode)),
		),
		fleet.WithEvents(w),
		fleet.WithLogger(a.log),
	)
	if err != nil {
		overrides.Close()
		return nil, nil, err
	}
	return dash, func() {
		dash.Close()
		overrides.Close()
	}, nil
}

// newMachine builds the driver ride machine; the returned func releases it.
func (a *app) newMachine(ctx context.Context, sched clock.Scheduler, w events.Writer) (*driver.Machine, func(), error) {
	ident, err := driver.IdentityFromConfig(a.cfg)
	if err != nil {
		return nil, nil, err
	}
	batt := battery.NewDriver(ctx, a.store, a.log)
	m := driver.New(sched, ident, batt, a.rides,
		driver.WithTimings(driver.TimingsFromConfig(a.cfg.Timings)),
		driver.WithGenerator(a.gen),
		driver.WithEvents(w),
		driver.WithLogger(a.log),
	)
	return m, func() {
		m.Close()
		batt.Close()
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn("close store failed", "err", err)
	}
}
