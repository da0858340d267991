// Package bootstrap wires configuration, logging, metrics, the build cache
// and the build pipeline into an App the CLI commands drive.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/irusland/pyroto/adapters/clock"
	"github.com/irusland/pyroto/adapters/hasher"
	apihttp "github.com/irusland/pyroto/adapters/http"
	"github.com/irusland/pyroto/adapters/idgen"
	"github.com/irusland/pyroto/adapters/memory"
	"github.com/irusland/pyroto/adapters/metrics"
	"github.com/irusland/pyroto/adapters/sqlite"
	"github.com/irusland/pyroto/config"
	"github.com/irusland/pyroto/core/build"
	"github.com/irusland/pyroto/core/events"
	"github.com/irusland/pyroto/core/generator"
	"github.com/irusland/pyroto/core/watch"
	"github.com/irusland/pyroto/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// MemoryDSN selects the in-process cache instead of a SQLite file.
const MemoryDSN = ":memory:"

// Options configures New.
type Options struct {
	// ConfigPath is optional; a missing file falls back to PYROTO_*
	// environment variables and defaults.
	ConfigPath string

	// LogOutput defaults to stderr; stdout carries command output.
	LogOutput io.Writer

	// Registry defaults to the global Prometheus registry.
	Registry *prometheus.Registry

	// Configure adjusts the loaded configuration before anything is wired,
	// e.g. for command-line flags.
	Configure func(*config.Config)
}

// App is the wired application.
type App struct {
	Logger   zerolog.Logger
	Config   *config.Config
	Metrics  *metrics.Collector
	Bus      *events.Bus
	Cache    ports.CacheStore
	Pipeline *build.Pipeline

	configPath string
	configure  func(*config.Config)
	db         *sqlite.DB

	mu       sync.RWMutex
	textfile string
}

// New loads configuration and wires the application.
func New(opts Options) (*App, error) {
	cfg, err := config.LoadWithFallback(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.Configure != nil {
		opts.Configure(cfg)
	}

	out := opts.LogOutput
	if out == nil {
		out = os.Stderr
	}
	logger := NewLogger(cfg.Logging, out)

	var m *metrics.Collector
	if opts.Registry != nil {
		m = metrics.NewWithRegistry(opts.Registry)
	} else {
		m = metrics.New()
	}

	a := &App{
		Logger:     logger,
		Config:     cfg,
		Metrics:    m,
		Bus:        events.NewBus(logger),
		configPath: opts.ConfigPath,
		configure:  opts.Configure,
		textfile:   cfg.Metrics.Textfile,
	}

	if err := a.initCache(); err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}

	a.Pipeline = build.NewPipeline(build.Deps{
		Cache:   a.Cache,
		Clock:   clock.Real{},
		IDGen:   idgen.UUID{},
		Hasher:  hasher.Blake2b{},
		Metrics: m,
		Bus:     a.Bus,
	}, PipelineConfig(cfg), logger)

	logger.Debug().
		Str("source", cfg.Source.Dir).
		Str("output", cfg.Output.Dir).
		Str("package", cfg.Output.Package).
		Bool("cache", a.Cache != nil).
		Msg("pyroto initialized")

	return a, nil
}

// NewLogger builds the logger from logging configuration. Unknown levels
// fall back to info.
func NewLogger(cfg config.LoggingConfig, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	if cfg.Format == "json" {
		return zerolog.New(w).Level(level).With().Timestamp().Logger()
	}
	output := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

// PipelineConfig maps configuration onto the build pipeline.
func PipelineConfig(cfg *config.Config) build.Config {
	return build.Config{
		SourceDir: cfg.Source.Dir,
		OutputDir: cfg.Output.Dir,
		Package:   cfg.Output.Package,
		Generator: generator.Options{
			ConversionModule: cfg.Runtime.ConversionModule,
			BaseService:      cfg.Runtime.BaseService,
			PB2Package:       cfg.Runtime.PB2Package,
			StreamingBodies:  generator.StreamingMode(cfg.Generation.StreamingBodies),
		},
		Strict:      cfg.Generation.Strict(),
		SortImports: cfg.Generation.Sorted(),
		Workers:     cfg.Generation.Workers,
	}
}

func (a *App) initCache() error {
	c := a.Config.Cache
	if !c.On() {
		a.Logger.Debug().Msg("build cache disabled")
		return nil
	}
	if c.DSN == MemoryDSN {
		a.Cache = memory.NewCacheStore()
		return nil
	}

	db, err := sqlite.Open(c.DSN)
	if err != nil {
		return err
	}
	applied, err := db.Migrate(context.Background())
	if err != nil {
		db.Close()
		return err
	}
	if applied > 0 {
		a.Logger.Info().Int("applied", applied).Str("dsn", c.DSN).Msg("cache migrations applied")
	}

	a.db = db
	a.Cache = sqlite.NewCacheStore(db)
	return nil
}

// SetForce makes subsequent builds ignore the cache.
func (a *App) SetForce(force bool) {
	cfg := a.Pipeline.Config()
	cfg.Force = force
	a.Pipeline.UpdateConfig(cfg)
}

// Build runs the pipeline once and refreshes the metrics textfile.
func (a *App) Build(ctx context.Context) (*build.Result, error) {
	res, err := a.Pipeline.Run(ctx)
	a.writeTextfile()
	return res, err
}

func (a *App) writeTextfile() {
	a.mu.RLock()
	path := a.textfile
	a.mu.RUnlock()
	if path == "" {
		return
	}
	if err := a.Metrics.WriteTextfile(path); err != nil {
		a.Logger.Warn().Err(err).Str("path", path).Msg("metrics textfile not written")
	}
}

// Runs returns recorded builds, newest first. Without a cache there are
// none.
func (a *App) Runs(ctx context.Context, limit int) ([]ports.BuildRun, error) {
	if a.Cache == nil {
		return nil, nil
	}
	return a.Cache.Runs(ctx, limit)
}

// Watch builds once, then rebuilds on schema changes and configuration
// reloads until ctx is done.
func (a *App) Watch(ctx context.Context) error {
	w := watch.New(a.Pipeline.Config().SourceDir, watch.DefaultDebounce, a.Logger)

	holder, err := a.watchConfig(ctx, w)
	if err != nil {
		return err
	}
	if holder != nil {
		defer holder.Stop()
	}

	a.Build(ctx)

	return w.Run(ctx, func(ctx context.Context, changed []string) {
		a.Logger.Info().Strs("changed", changed).Msg("rebuilding")
		a.Build(ctx)
	})
}

// watchConfig reloads the configuration file on change or SIGHUP and
// feeds the result into the pipeline. Without a file there is nothing to
// watch and the holder is nil.
func (a *App) watchConfig(ctx context.Context, w *watch.Watcher) (*config.Holder, error) {
	if a.configPath == "" {
		return nil, nil
	}
	if _, err := os.Stat(a.configPath); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	holder, err := config.NewHolder(a.configPath, a.Logger)
	if err != nil {
		return nil, err
	}

	holder.OnChange(func(cfg *config.Config) {
		if a.configure != nil {
			a.configure(cfg)
		}
		current := a.Pipeline.Config()
		next := PipelineConfig(cfg)
		if next.SourceDir != current.SourceDir {
			a.Logger.Warn().
				Str("watching", current.SourceDir).
				Str("configured", next.SourceDir).
				Msg("source directory change needs a restart")
			next.SourceDir = current.SourceDir
		}
		next.Force = current.Force
		a.Pipeline.UpdateConfig(next)

		a.mu.Lock()
		a.textfile = cfg.Metrics.Textfile
		a.mu.Unlock()

		a.Metrics.ConfigReloads.Inc()
		a.Bus.Publish(ctx, events.Event{Name: events.ConfigReloaded, Data: cfg})
		w.Notify(holder.Path())
	})
	holder.OnError(func(error) {
		a.Metrics.ConfigReloadErrors.Inc()
	})

	if err := holder.WatchFile(); err != nil {
		holder.Stop()
		return nil, err
	}
	holder.WatchSignals()
	return holder, nil
}

// Serve runs the preview server until ctx is done. With watch set the
// source tree is rebuilt on change as well.
func (a *App) Serve(ctx context.Context, addr string, watchToo bool) error {
	if addr == "" {
		addr = a.Config.Serve.Addr
	}
	server := apihttp.NewServer(apihttp.Deps{
		Pipeline: a.Pipeline,
		Bus:      a.Bus,
		Metrics:  a.Metrics,
	}, a.Logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(gctx, addr)
	})
	if watchToo {
		g.Go(func() error {
			return a.Watch(gctx)
		})
	}
	return g.Wait()
}

// Close releases the cache database.
func (a *App) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}
