package datalog

import (
	"context"

	"github.com/google/uuid"
)

// Config holds the Engine's optional behavior, set via Option values
// passed to NewEngine. The zero Config runs with no logging, no
// provenance tracking, and GOMAXPROCS-bounded parallelism — matching
// google/mangle's EvalOptions/EvalOption functional-options shape
// (_examples/other_examples's engine-seminaivebottomup.go.go).
type Config struct {
	Logger          Logger
	TrackProvenance bool
	MaxWorkers      int
}

// Option configures a Config.
type Option func(*Config)

// WithLogger routes the Engine's structured logging through l.
func WithLogger(l Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithProvenance enables derivation-tree recording for every tuple the
// Engine derives, retrievable afterward via RunResult.Provenance.
func WithProvenance(enabled bool) Option {
	return func(c *Config) { c.TrackProvenance = enabled }
}

// WithMaxWorkers bounds the number of plan variants evaluated
// concurrently within one semi-naive iteration. n <= 0 restores the
// GOMAXPROCS default.
func WithMaxWorkers(n int) Option {
	return func(c *Config) { c.MaxWorkers = n }
}

// Engine is the package's external facade: it validates a Program,
// stratifies it, seeds EDB facts from a Loader, drives the semi-naive
// fixpoint to completion, and runs a query against the result.
type Engine struct {
	program *Program
	cfg     Config
}

// NewEngine returns an Engine for program, configured by opts.
func NewEngine(program *Program, opts ...Option) *Engine {
	cfg := Config{Logger: NopLogger{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = NopLogger{}
	}
	return &Engine{program: program, cfg: cfg}
}

// RunResult is everything a successful Run produces: the materialized
// store, the run's correlation ID (for log cross-referencing), and
// optionally a ProvenanceStore.
type RunResult struct {
	RunID      string
	Store      *RelationStore
	Strat      *Stratification
	Provenance *ProvenanceStore
}

// Run validates the program, stratifies it, seeds EDB relations through
// loader, and evaluates every stage to its fixpoint. Each call gets a
// fresh run ID for log correlation.
func (e *Engine) Run(ctx context.Context, loader Loader) (*RunResult, error) {
	runID := uuid.NewString()
	log := e.cfg.Logger
	log.Infow("run starting", "run_id", runID)

	if err := Validate(e.program); err != nil {
		log.Warnw("validation failed", "run_id", runID, "error", err)
		return nil, err
	}

	strat, err := Analyze(e.program)
	if err != nil {
		log.Warnw("stratification failed", "run_id", runID, "error", err)
		return nil, err
	}

	driver, err := NewDriver(e.program, strat, log, e.cfg.TrackProvenance)
	if err != nil {
		return nil, err
	}
	driver.SetMaxWorkers(e.cfg.MaxWorkers)

	if err := driver.Seed(ctx, loader); err != nil {
		log.Warnw("seed failed", "run_id", runID, "error", err)
		return nil, err
	}
	if err := driver.Run(ctx); err != nil {
		log.Warnw("evaluation failed", "run_id", runID, "error", err)
		return nil, err
	}

	log.Infow("run complete", "run_id", runID)
	return &RunResult{
		RunID:      runID,
		Store:      driver.Store(),
		Strat:      strat,
		Provenance: driver.Provenance(),
	}, nil
}

// Query runs the program's output declarations against result.Store and
// hands every matching tuple to sink.
func (e *Engine) Query(ctx context.Context, result *RunResult, sink Sink) error {
	runner := NewQueryRunner(e.program, result.Store)
	return runner.Run(ctx, e.program.Outputs, sink)
}
