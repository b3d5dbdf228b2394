package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/voxalys/voxalys/internal/observe"
	"github.com/voxalys/voxalys/pkg/asr"
)

// Engine runs a resolved pipeline sequentially over a shared context. An
// engine is immutable after construction and safe for concurrent use; each
// Run must operate on a context owned by a single goroutine.
type Engine struct {
	stages  []Stage
	logger  *slog.Logger
	metrics *observe.Metrics
}

// Option customises an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for per-stage debug logs. Defaults to
// slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics sets the metrics sink recording stage and pipeline latency.
// Defaults to observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New returns an engine over the given stages, which run in slice order.
func New(stages []Stage, opts ...Option) *Engine {
	e := &Engine{stages: stages}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e
}

// FromDefinition resolves every step of def through the loader and returns
// the engine. The first step that fails to load aborts construction with
// the loader's error.
func FromDefinition(def Definition, loader Loader, opts ...Option) (*Engine, error) {
	specs := def.OrderedSteps()
	stages := make([]Stage, 0, len(specs))
	for _, spec := range specs {
		stage, err := loader.LoadStep(spec)
		if err != nil {
			return nil, err
		}
		stages = append(stages, stage)
	}
	return New(stages, opts...), nil
}

// StageNames returns the names of the stages in execution order.
func (e *Engine) StageNames() []string {
	names := make([]string, len(e.stages))
	for i, s := range e.stages {
		names[i] = s.Name()
	}
	return names
}

// Run executes all stages in order against pc. The first stage error aborts
// the run and is returned verbatim; events already appended to pc are left
// in place for the caller to drain.
func (e *Engine) Run(ctx context.Context, pc *asr.PipelineContext) error {
	runStart := time.Now()
	for _, stage := range e.stages {
		e.logger.Debug("executing pipeline stage", "stage", stage.Name(), "session_id", pc.SessionID)
		stageStart := time.Now()
		err := stage.Execute(ctx, pc)
		e.metrics.RecordStage(ctx, stage.Name(), time.Since(stageStart), err)
		if err != nil {
			return err
		}
	}
	e.metrics.PipelineDuration.Record(ctx, time.Since(runStart).Seconds())
	return nil
}
