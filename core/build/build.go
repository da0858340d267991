// Package build runs the compiler over a source tree: parse every schema,
// register symbols (phase 1), then generate, render and write each module
// concurrently against the frozen table (phase 2).
package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/irusland/pyroto/adapters/metrics"
	"github.com/irusland/pyroto/core/events"
	"github.com/irusland/pyroto/core/generator"
	"github.com/irusland/pyroto/core/pywriter"
	"github.com/irusland/pyroto/core/registry"
	"github.com/irusland/pyroto/core/schema"
	"github.com/irusland/pyroto/ports"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Config contains configuration for a Pipeline.
type Config struct {
	SourceDir string
	OutputDir string
	Package   string // dotted prefix of every module path

	Generator   generator.Options
	Strict      bool
	SortImports bool
	Workers     int // 0 = GOMAXPROCS

	// Force regenerates every module regardless of the cache.
	Force bool
	// DryRun generates and renders without writing files or the cache.
	DryRun bool
}

// Deps contains dependencies for a Pipeline. Cache, Metrics and Bus are
// optional.
type Deps struct {
	Cache   ports.CacheStore
	Clock   ports.Clock
	IDGen   ports.IDGenerator
	Hasher  ports.Fingerprinter
	Metrics *metrics.Collector
	Bus     *events.Bus
}

// Pipeline builds a source tree. Runs are serialised; the configuration
// can be replaced between runs.
type Pipeline struct {
	cache   ports.CacheStore
	clock   ports.Clock
	idGen   ports.IDGenerator
	hasher  ports.Fingerprinter
	metrics *metrics.Collector
	bus     *events.Bus
	logger  zerolog.Logger

	runMu sync.Mutex

	mu  sync.RWMutex
	cfg Config
}

// NewPipeline creates a pipeline.
func NewPipeline(deps Deps, cfg Config, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		cache:   deps.Cache,
		clock:   deps.Clock,
		idGen:   deps.IDGen,
		hasher:  deps.Hasher,
		metrics: deps.Metrics,
		bus:     deps.Bus,
		logger:  logger,
		cfg:     cfg,
	}
}

// Config returns the configuration the next run will use.
func (p *Pipeline) Config() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// UpdateConfig replaces the configuration for subsequent runs.
func (p *Pipeline) UpdateConfig(cfg Config) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = cfg
}

// Plan parses the source tree and runs symbol registration only.
func (p *Pipeline) Plan() (*Plan, error) {
	cfg := p.Config()

	mods, err := schema.ParseDir(cfg.SourceDir)
	if err != nil {
		return nil, fmt.Errorf("parse sources: %w", err)
	}
	return NewPlan(mods, cfg.Package, cfg.Strict, p.logger), nil
}

// Run performs one build. A schema syntax error aborts the run before
// anything is written and returns a nil Result. Otherwise the Result is
// always returned; err aggregates the failed modules (see Result.Err) or
// reports cancellation.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	cfg := p.Config()
	res := &Result{RunID: p.idGen.New(), StartedAt: p.clock.Now()}
	log := p.logger.With().Str("run_id", res.RunID).Logger()

	p.publish(ctx, events.Event{Name: events.BuildStarted, RunID: res.RunID})

	plan, err := p.Plan()
	if err != nil {
		p.observeBuild("aborted", res.StartedAt)
		log.Error().Err(err).Msg("build aborted")
		return nil, err
	}
	if p.metrics != nil {
		p.metrics.SymbolsRegistered.Set(float64(plan.Table.Len()))
	}

	for _, me := range plan.Failed {
		p.fail(ctx, res, ModuleReport{Module: me.Module, SourcePath: me.SourcePath}, me, 0)
	}

	gen := generator.New(plan.Table, cfg.Generator, log)
	salt := buildSalt(cfg, plan.Table)

	reports := make([]*ModuleReport, len(plan.Units))
	failures := make([]error, len(plan.Units))

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, u := range plan.Units {
		i, u := i, u
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			reports[i], failures[i] = p.module(gctx, cfg, gen, salt, u)
			return nil
		})
	}
	waitErr := g.Wait()
	if waitErr == nil {
		waitErr = ctx.Err()
	}

	for i, rep := range reports {
		if rep == nil {
			continue
		}
		if rep.Status == StatusFailed {
			p.fail(ctx, res, *rep, failures[i], rep.Duration)
			continue
		}
		res.add(*rep, nil)
	}
	res.sort()
	res.FinishedAt = p.clock.Now()

	if waitErr != nil {
		p.observeBuild("cancelled", res.StartedAt)
		log.Warn().Err(waitErr).Int("completed", len(res.Modules)).Msg("build cancelled")
		return res, fmt.Errorf("build cancelled: %w", waitErr)
	}

	p.finish(ctx, cfg, res, log)
	return res, res.Err()
}

// module generates, renders and writes one unit. The returned error is set
// exactly when the report status is failed.
func (p *Pipeline) module(ctx context.Context, cfg Config, gen *generator.Generator, salt []byte, u Unit) (*ModuleReport, error) {
	start := time.Now()
	rep := &ModuleReport{
		Module:       u.Module,
		SourcePath:   u.Schema.Path,
		OutputPath:   filepath.Join(cfg.OutputDir, filepath.FromSlash(OutputFile(u.Module))),
		Declarations: topLevel(u.Schema),
	}
	failed := func(err error) (*ModuleReport, error) {
		rep.Status = StatusFailed
		rep.Error = err.Error()
		rep.Duration = time.Since(start)
		return rep, &ModuleError{Module: u.Module, SourcePath: u.Schema.Path, Err: err}
	}

	fingerprint := p.hasher.Sum(u.Schema.Source, salt, []byte(u.Module))
	useCache := p.cache != nil && !cfg.DryRun

	if useCache && !cfg.Force {
		cached, ok, err := p.cache.Lookup(ctx, u.Module)
		if err != nil {
			p.logger.Warn().Err(err).Str("module", u.Module).Msg("cache lookup failed")
		} else if ok && cached.Fingerprint == fingerprint && cached.OutputPath == rep.OutputPath && exists(rep.OutputPath) {
			rep.Status = StatusSkipped
			rep.Imports = cached.Imports
			rep.Duration = time.Since(start)
			return rep, nil
		}
	}

	out, err := gen.Generate(u.Module, u.Schema)
	if err != nil {
		return failed(err)
	}

	src, err := pywriter.Render(out, pywriter.Options{SortImports: cfg.SortImports})
	if err != nil {
		return failed(fmt.Errorf("render: %w", err))
	}

	if !cfg.DryRun {
		if err := writeFile(rep.OutputPath, src); err != nil {
			return failed(err)
		}
	}

	rep.Status = StatusGenerated
	rep.Imports = len(out.Imports)
	rep.Bytes = len(src)
	rep.Duration = time.Since(start)

	if useCache {
		err := p.cache.Store(ctx, ports.CachedModule{
			Module:       u.Module,
			SourcePath:   u.Schema.Path,
			Fingerprint:  fingerprint,
			OutputPath:   rep.OutputPath,
			Declarations: len(rep.Declarations),
			Imports:      rep.Imports,
			GeneratedAt:  p.clock.Now(),
		})
		if err != nil {
			p.logger.Warn().Err(err).Str("module", u.Module).Msg("cache store failed")
		}
	}

	return rep, nil
}

func (p *Pipeline) fail(ctx context.Context, res *Result, rep ModuleReport, err error, d time.Duration) {
	rep.Status = StatusFailed
	rep.Error = err.Error()
	rep.Duration = d
	res.add(rep, err)

	p.logger.Error().Err(err).Str("run_id", res.RunID).Str("module", rep.Module).Msg("module failed")
	p.publish(ctx, events.Event{Name: events.ModuleFailed, RunID: res.RunID, Module: rep.Module, Err: err})
}

func (p *Pipeline) finish(ctx context.Context, cfg Config, res *Result, log zerolog.Logger) {
	for _, rep := range res.Modules {
		switch rep.Status {
		case StatusGenerated:
			p.publish(ctx, events.Event{Name: events.ModuleGenerated, RunID: res.RunID, Module: rep.Module, Data: rep})
		case StatusSkipped:
			p.publish(ctx, events.Event{Name: events.ModuleSkipped, RunID: res.RunID, Module: rep.Module, Data: rep})
		}
		if p.metrics != nil {
			p.metrics.ModulesTotal.WithLabelValues(string(rep.Status)).Inc()
			if rep.Status != StatusSkipped {
				p.metrics.ModuleDuration.Observe(rep.Duration.Seconds())
			}
			p.metrics.GeneratedBytes.Add(float64(rep.Bytes))
		}
	}

	if p.cache != nil && !cfg.DryRun {
		err := p.cache.RecordRun(ctx, ports.BuildRun{
			ID:         res.RunID,
			StartedAt:  res.StartedAt,
			FinishedAt: res.FinishedAt,
			Generated:  res.Generated,
			Skipped:    res.Skipped,
			Failed:     res.Failed,
		})
		if err != nil {
			log.Warn().Err(err).Msg("record build run failed")
		}
	}

	outcome := "ok"
	if res.Failed > 0 {
		outcome = "failed"
	}
	p.observeBuild(outcome, res.StartedAt)
	if p.metrics != nil && res.Failed == 0 {
		p.metrics.BuildLastSuccess.Set(float64(res.FinishedAt.Unix()))
	}

	ev := log.Info()
	if res.Failed > 0 {
		ev = log.Error()
	}
	ev.Int("generated", res.Generated).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Dur("elapsed", res.FinishedAt.Sub(res.StartedAt)).
		Msg("build finished")

	p.publish(ctx, events.Event{Name: events.BuildFinished, RunID: res.RunID, Err: res.Err(), Data: res})
}

func (p *Pipeline) observeBuild(outcome string, started time.Time) {
	if p.metrics == nil {
		return
	}
	p.metrics.BuildsTotal.WithLabelValues(outcome).Inc()
	p.metrics.BuildDuration.Observe(p.clock.Now().Sub(started).Seconds())
}

func (p *Pipeline) publish(ctx context.Context, e events.Event) {
	if p.bus != nil {
		p.bus.Publish(ctx, e)
	}
}

// buildSalt folds everything besides the schema text that changes the
// generated source into the module fingerprint.
func buildSalt(cfg Config, table *registry.Table) []byte {
	return []byte(fmt.Sprintf("%s|%s|%s|%s|%s|sort=%t",
		table.Fingerprint(),
		cfg.Generator.ConversionModule,
		cfg.Generator.BaseService,
		cfg.Generator.PB2Package,
		cfg.Generator.StreamingBodies,
		cfg.SortImports,
	))
}

func topLevel(mod schema.Module) []string {
	var names []string
	for _, d := range mod.Declared() {
		if !d.Nested() {
			names = append(names, d.Name)
		}
	}
	return names
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
