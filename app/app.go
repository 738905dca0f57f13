package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/carlmjohnson/versioninfo"
	"github.com/posthog/posthog-go"

	"nfviz.dev/core/backend"
	"nfviz.dev/core/config"
	"nfviz.dev/core/journal"
	"nfviz.dev/core/log"
	"nfviz.dev/core/notify"
	phnotify "nfviz.dev/core/notify/posthog"
	"nfviz.dev/core/orchestrator"
	"nfviz.dev/core/poll"
	"nfviz.dev/core/registry"
	"nfviz.dev/core/status"
	"nfviz.dev/core/stream"
	"nfviz.dev/core/telemetry"
)

const serviceName = "nfviz"

// App holds the wired engine shared by the server and the headless client.
type App struct {
	Config       *config.Config
	Registry     *registry.Registry
	Plan         registry.Plan
	Store        *status.Store
	Backend      *backend.Client
	Orchestrator *orchestrator.Orchestrator
	// nil unless telemetry is enabled
	Telemetry *telemetry.Telemetry

	closers []func(context.Context) error
}

// LoadRegistry reads the registry file named in cfg, or returns the
// built-in pipeline when none is configured.
func LoadRegistry(cfg *config.Config) (*registry.Registry, registry.Plan, error) {
	if cfg.Registry.Path == "" {
		reg, plan := registry.Default()
		return reg, plan, nil
	}

	contents, err := os.ReadFile(cfg.Registry.Path)
	if err != nil {
		return nil, registry.Plan{}, fmt.Errorf("failed to read registry: %w", err)
	}
	return registry.FromFile(cfg.Registry.Path, contents)
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := log.FromContext(ctx)
	a := &App{Config: cfg}

	if err := log.SetLevel(cfg.Log.Level); err != nil {
		return nil, err
	}

	reg, plan, err := LoadRegistry(cfg)
	if err != nil {
		return nil, err
	}
	a.Registry, a.Plan = reg, plan

	j, jc, err := journal.Open(ctx, cfg.Journal.Config())
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	a.onClose(func(context.Context) error { return jc.Close() })

	a.Store = status.NewStore(ctx,
		status.WithJournal(j),
		status.WithLogger(log.SubLogger(logger, "status")),
		status.WithSteps(reg.IDs()...),
	)
	a.onClose(func(context.Context) error {
		a.Store.Close()
		return nil
	})

	var notifiers []notify.Notifier
	if cfg.Telemetry.Enabled {
		tel, err := telemetry.NewTelemetry(ctx, serviceName, versioninfo.Short(), cfg.Server.Dev)
		if err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("failed to setup telemetry: %w", err)
		}
		a.Telemetry = tel
		a.onClose(tel.Shutdown)
		notifiers = append(notifiers, tel)
	}
	if cfg.Posthog.ApiKey != "" {
		ph, err := posthog.NewWithConfig(cfg.Posthog.ApiKey, posthog.Config{Endpoint: cfg.Posthog.Endpoint})
		if err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("failed to create posthog client: %w", err)
		}
		a.onClose(func(context.Context) error { return ph.Close() })
		host, _ := os.Hostname()
		notifiers = append(notifiers, phnotify.NewPosthogNotifier(ph, host))
	}
	n := notify.NewMergedNotifier(notifiers, log.SubLogger(logger, "notify"))

	a.Backend = backend.NewClient(cfg.Backend.URL, backend.WithLogger(log.SubLogger(logger, "backend")))
	runner := stream.NewRunner(a.Store, a.Backend, reg,
		stream.WithLogger(log.SubLogger(logger, "stream")),
		stream.WithNotifier(n),
	)
	poller := poll.NewReconciler(a.Store, a.Backend, reg,
		poll.ConfigFromHandoff(plan.Handoff, cfg.Poll.Interval),
		log.SubLogger(logger, "poll"),
	)
	a.Orchestrator = orchestrator.New(ctx, a.Store, runner, poller, reg, plan, orchestrator.WithNotifier(n))

	return a, nil
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close stops the orchestrator and releases everything in reverse order of
// creation.
func (a *App) Close(ctx context.Context) error {
	if a.Orchestrator != nil {
		a.Orchestrator.Stop()
	}

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
