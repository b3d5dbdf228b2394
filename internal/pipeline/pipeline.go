// Package pipeline defines the speech-processing pipeline core: the stage
// contract, the declarative pipeline definition, the loader seam that turns
// step names into stages, and the sequential engine that runs them.
package pipeline

import (
	"context"

	"github.com/voxalys/voxalys/pkg/asr"
)

// Stage is one unit of pipeline work. Execute mutates the shared context in
// place and returns a *asr.DomainError on failure; the engine propagates the
// error verbatim and never retries.
type Stage interface {
	// Name returns the stable step name the stage was loaded under.
	Name() string

	// Execute runs the stage against the shared context.
	Execute(ctx context.Context, pc *asr.PipelineContext) error
}

// StepSpec names one pipeline step in a definition.
type StepSpec struct {
	Name string
}

// Definition is an ordered pipeline: preprocessing steps, exactly one
// transcription step, then postprocessing steps.
type Definition struct {
	Pre           []StepSpec
	Transcription StepSpec
	Post          []StepSpec
}

// OrderedSteps returns pre ++ [transcription] ++ post in execution order.
func (d Definition) OrderedSteps() []StepSpec {
	steps := make([]StepSpec, 0, len(d.Pre)+1+len(d.Post))
	steps = append(steps, d.Pre...)
	steps = append(steps, d.Transcription)
	steps = append(steps, d.Post...)
	return steps
}

// Loader resolves a step name to a runnable stage. Implementations are the
// builtin plugin catalog and the remote gRPC loader.
type Loader interface {
	LoadStep(step StepSpec) (Stage, error)
}
