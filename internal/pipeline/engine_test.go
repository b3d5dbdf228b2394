package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/voxalys/voxalys/internal/observe"
	"github.com/voxalys/voxalys/internal/pipeline"
	"github.com/voxalys/voxalys/pkg/asr"
)

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

// recordStage appends its name to a shared trace and optionally fails.
type recordStage struct {
	name  string
	trace *[]string
	err   error
}

func (s *recordStage) Name() string { return s.name }

func (s *recordStage) Execute(_ context.Context, pc *asr.PipelineContext) error {
	*s.trace = append(*s.trace, s.name)
	pc.AppendEvent(asr.PartialTranscriptEvent{
		Transcript: asr.Transcript{Segments: []asr.TranscriptSegment{{Text: s.name}}},
	})
	return s.err
}

func TestOrderedSteps(t *testing.T) {
	def := pipeline.Definition{
		Pre:           []pipeline.StepSpec{{Name: "a"}, {Name: "b"}},
		Transcription: pipeline.StepSpec{Name: "t"},
		Post:          []pipeline.StepSpec{{Name: "c"}},
	}
	got := def.OrderedSteps()
	want := []string{"a", "b", "t", "c"}
	if len(got) != len(want) {
		t.Fatalf("OrderedSteps() len = %d, want %d", len(got), len(want))
	}
	for i, spec := range got {
		if spec.Name != want[i] {
			t.Errorf("step[%d] = %q, want %q", i, spec.Name, want[i])
		}
	}
}

func TestEngineRunsStagesInOrder(t *testing.T) {
	var trace []string
	stages := []pipeline.Stage{
		&recordStage{name: "clamp", trace: &trace},
		&recordStage{name: "whisper", trace: &trace},
		&recordStage{name: "align", trace: &trace},
	}
	eng := pipeline.New(stages, pipeline.WithMetrics(testMetrics(t)))
	pc := asr.NewContext("s1", nil)
	if err := eng.Run(context.Background(), pc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(trace) != 3 || trace[0] != "clamp" || trace[1] != "whisper" || trace[2] != "align" {
		t.Errorf("execution order = %v", trace)
	}
}

func TestEngineStopsAtFirstError(t *testing.T) {
	var trace []string
	wantErr := asr.ExternalService("asr", "gRPC request timed out")
	stages := []pipeline.Stage{
		&recordStage{name: "a", trace: &trace},
		&recordStage{name: "b", trace: &trace, err: wantErr},
		&recordStage{name: "c", trace: &trace},
	}
	eng := pipeline.New(stages, pipeline.WithMetrics(testMetrics(t)))
	pc := asr.NewContext("s1", nil)
	err := eng.Run(context.Background(), pc)
	if !errors.Is(err, wantErr) {
		t.Fatalf("Run = %v, want the stage error verbatim", err)
	}
	if len(trace) != 2 {
		t.Errorf("stages run = %v, want only a and b", trace)
	}
	// Events appended before the failure stay drainable.
	if got := len(pc.DrainEvents()); got != 2 {
		t.Errorf("events after failed run = %d, want 2", got)
	}
}

type mapLoader map[string]pipeline.Stage

func (l mapLoader) LoadStep(step pipeline.StepSpec) (pipeline.Stage, error) {
	s, ok := l[step.Name]
	if !ok {
		return nil, asr.Internalf("unknown pipeline step `%s`", step.Name)
	}
	return s, nil
}

func TestFromDefinition(t *testing.T) {
	var trace []string
	loader := mapLoader{
		"pre":  &recordStage{name: "pre", trace: &trace},
		"main": &recordStage{name: "main", trace: &trace},
	}
	def := pipeline.Definition{
		Pre:           []pipeline.StepSpec{{Name: "pre"}},
		Transcription: pipeline.StepSpec{Name: "main"},
	}
	eng, err := pipeline.FromDefinition(def, loader, pipeline.WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("FromDefinition: %v", err)
	}
	got := eng.StageNames()
	if len(got) != 2 || got[0] != "pre" || got[1] != "main" {
		t.Errorf("StageNames() = %v", got)
	}

	def.Transcription = pipeline.StepSpec{Name: "nope"}
	if _, err := pipeline.FromDefinition(def, loader); err == nil {
		t.Error("FromDefinition with unknown step: want error")
	}
}
