// Package plugin implements the built-in stage catalog: a registry mapping
// step names to factories over the application config. Factories run at
// engine construction, so misconfigured or disabled plugins fail before any
// audio is accepted.
package plugin

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/voxalys/voxalys/internal/config"
	"github.com/voxalys/voxalys/internal/pipeline"
	"github.com/voxalys/voxalys/internal/stage/align"
	"github.com/voxalys/voxalys/internal/stage/audiofx"
	"github.com/voxalys/voxalys/internal/stage/whisper"
	"github.com/voxalys/voxalys/pkg/asr"
)

// Factory builds one stage instance from the application config.
type Factory func(cfg *config.Config) (pipeline.Stage, error)

// Catalog resolves step names to built-in stages.
type Catalog struct {
	cfg       *config.Config
	factories map[string]Factory
}

var _ pipeline.Loader = (*Catalog)(nil)

// NewCatalog returns a catalog with all built-in plugins registered.
func NewCatalog(cfg *config.Config) *Catalog {
	c := &Catalog{cfg: cfg, factories: make(map[string]Factory)}
	c.Register("audio_clamp", buildClamp)
	c.Register("resample", buildResample)
	c.Register("whisper_transcription", buildWhisper)
	c.Register("wav2vec2_alignment", buildAlignment)
	return c
}

// Register adds or replaces a factory under name.
func (c *Catalog) Register(name string, f Factory) {
	c.factories[name] = f
}

// LoadStep builds the stage registered under the step's name.
func (c *Catalog) LoadStep(step pipeline.StepSpec) (pipeline.Stage, error) {
	factory, ok := c.factories[step.Name]
	if !ok {
		return nil, asr.Internalf("unknown pipeline step plugin `%s`", step.Name)
	}
	stage, err := factory(c.cfg)
	if err != nil {
		return nil, asr.Internalf("failed to build pipeline step `%s`: %v", step.Name, err)
	}
	return stage, nil
}

// BuildEngine resolves the selected definition through the catalog and
// returns the engine.
func BuildEngine(cfg *config.Config, opts ...pipeline.Option) (*pipeline.Engine, error) {
	defCfg, err := cfg.SelectedDefinition()
	if err != nil {
		return nil, err
	}
	def, err := defCfg.Definition()
	if err != nil {
		return nil, err
	}
	return pipeline.FromDefinition(def, NewCatalog(cfg), opts...)
}

func buildClamp(*config.Config) (pipeline.Stage, error) {
	return audiofx.NewClampStage(), nil
}

func buildResample(cfg *config.Config) (pipeline.Stage, error) {
	rc := resampleConfig(cfg)
	if !rc.Enabled {
		return nil, errors.New("resample plugin is disabled; enable pipeline.plugins.resample to use it")
	}
	target := rc.TargetSampleRateHz
	if target == 0 {
		target = cfg.Audio.DefaultSampleRateHz
	}
	if target < asr.MinSampleRateHz || target > asr.MaxSampleRateHz {
		return nil, fmt.Errorf("resample target rate %d outside [%d, %d]", target, asr.MinSampleRateHz, asr.MaxSampleRateHz)
	}
	return audiofx.NewResampleStage(target), nil
}

func resampleConfig(cfg *config.Config) config.ResamplePluginConfig {
	if cfg.Pipeline == nil {
		return config.ResamplePluginConfig{}
	}
	return cfg.Pipeline.Plugins.Resample
}

func buildWhisper(cfg *config.Config) (pipeline.Stage, error) {
	slog.Info("loading whisper model",
		"model_path", cfg.Asr.ModelPath,
		"dtw_preset", cfg.Asr.DtwPreset,
		"dtw_mem_size_bytes", cfg.Asr.NormalizedDtwMemSize(),
		"temperature", cfg.Asr.Temperature,
	)
	dec, err := whisper.NewNative(cfg.Asr.ModelPath, whisper.WithThreads(cfg.Asr.Threads))
	if err != nil {
		return nil, err
	}
	return whisper.NewStage(dec, cfg.Asr.DefaultLanguage), nil
}

func buildAlignment(cfg *config.Config) (pipeline.Stage, error) {
	return align.NewStage(align.NewFallbackAligner(cfg.Alignment.MinWordDurationMs)), nil
}
