package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/gofrs/flock"
	"golang.org/x/sync/semaphore"

	"scriptlab/internal/advisory"
	"scriptlab/internal/api"
	"scriptlab/internal/assets"
	"scriptlab/internal/config"
	"scriptlab/internal/logging"
	"scriptlab/internal/media"
	"scriptlab/internal/notifications"
	"scriptlab/internal/plan"
	"scriptlab/internal/planner"
	"scriptlab/internal/preflight"
	"scriptlab/internal/store"
	"scriptlab/internal/workflow"
)

// Daemon owns the workflow store, providers, and HTTP API of one scriptlab
// process and enforces single-instance execution per data directory.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *store.Store
	files   *media.Store
	routes  *media.Router
	manager *workflow.Manager
	api     *apiServer

	lockPath string
	lock     *flock.Flock

	running   atomic.Bool
	cancel    context.CancelFunc
	preflight atomic.Pointer[[]preflight.Result]
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Address      string
	DatabasePath string
	LockFilePath string
	MediaDir     string
	Providers    map[plan.Medium]string
	Preflight    []preflight.Result
}

// Option customizes a Daemon.
type Option func(*options)

type options struct {
	providers *Providers
	logs      *logging.StreamHub
}

// WithProviders replaces the configured providers.
func WithProviders(p Providers) Option {
	return func(o *options) {
		o.providers = &p
	}
}

// WithLogStream exposes hub through the API log endpoint.
func WithLogStream(hub *logging.StreamHub) Option {
	return func(o *options) {
		o.logs = hub
	}
}

// New constructs a daemon with initialized dependencies.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || logger == nil {
		return nil, errors.New("daemon requires config and logger")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	files, err := media.NewStore(cfg.Paths.MediaDir, cfg.MediaURL, media.WithMaxSize(int64(cfg.API.MaxUploadMiB)<<20))
	if err != nil {
		return nil, fmt.Errorf("open media store: %w", err)
	}
	providers := o.providers
	if providers == nil {
		built, err := BuildProviders(ctx, cfg, files)
		if err != nil {
			return nil, err
		}
		providers = &built
	}

	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open workflow store: %w", err)
	}

	mgrOpts := []workflow.ManagerOption{
		workflow.WithLogger(logger),
		workflow.WithAspectRatio(cfg.Media.AspectRatio),
		workflow.WithNotifier(notifications.NewService(cfg)),
		workflow.WithReleaser(assets.ReleaserFunc(func(ref assets.Reference) {
			if ref.LocalPath == "" {
				return
			}
			if err := files.Remove(ref.LocalPath); err != nil {
				logger.Warn("failed to release reference file",
					logging.String("path", ref.LocalPath),
					logging.Error(err),
				)
			}
		})),
	}
	if cfg.Generation.MaxConcurrent > 0 {
		mgrOpts = append(mgrOpts, workflow.WithSemaphore(semaphore.NewWeighted(int64(cfg.Generation.MaxConcurrent))))
	}
	mgr := workflow.NewManager(st,
		planner.New(providers.Text, planner.WithLogger(logger), planner.WithCritique(cfg.Generation.Critique)),
		advisory.NewAdvisor(providers.Stream, advisory.WithLogger(logger), advisory.WithHistoryTurns(cfg.Generation.ChatHistoryTurns)),
		providers.Media,
		mgrOpts...,
	)

	apiOpts := []api.Option{api.WithLogger(logger), api.WithHealthCheck(st)}
	if o.logs != nil {
		apiOpts = append(apiOpts, api.WithLogStream(o.logs))
	}
	handler := api.New(cfg, mgr, files, apiOpts...)

	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    st,
		files:    files,
		routes:   providers.Media,
		manager:  mgr,
		api:      newAPIServer(cfg.API.Bind, handler.Handler(), logger),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, runs preflight checks, and starts the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another scriptlab daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start api: %w", err)
	}
	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("scriptlab daemon started",
		logging.String("lock", d.lockPath),
		logging.String("address", d.api.address()),
	)

	go d.runPreflight(runCtx)
	return nil
}

// runPreflight logs readiness problems. Failures never stop the daemon.
func (d *Daemon) runPreflight(ctx context.Context) {
	results := preflight.RunAll(ctx, d.cfg)
	d.preflight.Store(&results)
	for _, r := range preflight.Failed(results) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldErrorHint, "fix the configuration and restart the daemon"),
			logging.String(logging.FieldImpact, "requests using this provider will fail"),
		)
	}
}

// Stop shuts down the API and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("scriptlab daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Manager exposes the workflow manager.
func (d *Daemon) Manager() *workflow.Manager {
	return d.manager
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	providers := make(map[plan.Medium]string, 3)
	if d.routes != nil {
		for _, m := range []plan.Medium{plan.MediumImage, plan.MediumVideo, plan.MediumAudio} {
			if name, ok := d.routes.Provider(m); ok {
				providers[m] = name
			}
		}
	}
	var checks []preflight.Result
	if p := d.preflight.Load(); p != nil {
		checks = *p
	}
	return Status{
		Running:      d.running.Load(),
		Address:      d.api.address(),
		DatabasePath: d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
		MediaDir:     d.files.Dir(),
		Providers:    providers,
		Preflight:    checks,
	}
}
