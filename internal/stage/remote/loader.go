package remote

import (
	"context"
	"errors"

	"github.com/voxalys/voxalys/internal/config"
	"github.com/voxalys/voxalys/internal/pipeline"
	"github.com/voxalys/voxalys/pkg/asr"
)

// Loader resolves the fixed remote step names onto stages backed by the
// three sibling-service connections.
type Loader struct {
	audio              *Conn
	asrSvc             *Conn
	alignment          *Conn
	targetSampleRateHz uint32
}

var _ pipeline.Loader = (*Loader)(nil)

// NewLoader dials all three sibling services. Construction fails when any
// endpoint stays unreachable through the dial retries. targetSampleRateHz
// configures the audio transform stage; zero requests no resampling.
func NewLoader(ctx context.Context, endpoints config.EndpointsConfig, targetSampleRateHz uint32) (*Loader, error) {
	audio, err := Dial(ctx, "audio", endpoints.Audio)
	if err != nil {
		return nil, err
	}
	asrConn, err := Dial(ctx, "asr", endpoints.Asr)
	if err != nil {
		audio.Close()
		return nil, err
	}
	alignment, err := Dial(ctx, "alignment", endpoints.Alignment)
	if err != nil {
		audio.Close()
		asrConn.Close()
		return nil, err
	}
	return &Loader{
		audio:              audio,
		asrSvc:             asrConn,
		alignment:          alignment,
		targetSampleRateHz: targetSampleRateHz,
	}, nil
}

// NewLoaderFromConns wires a loader over pre-established connections.
func NewLoaderFromConns(audio, asrConn, alignment *Conn, targetSampleRateHz uint32) *Loader {
	return &Loader{
		audio:              audio,
		asrSvc:             asrConn,
		alignment:          alignment,
		targetSampleRateHz: targetSampleRateHz,
	}
}

// LoadStep resolves one of the remote step names.
func (l *Loader) LoadStep(step pipeline.StepSpec) (pipeline.Stage, error) {
	switch step.Name {
	case "audio_transform":
		return NewAudioTransformStage(l.audio, l.targetSampleRateHz), nil
	case "asr_transcribe":
		return NewAsrTranscribeStage(l.asrSvc), nil
	case "alignment_enrich":
		return NewAlignmentEnrichStage(l.alignment), nil
	default:
		return nil, asr.Internalf("unknown pipeline step `%s`", step.Name)
	}
}

// Close tears down all service connections.
func (l *Loader) Close() error {
	return errors.Join(l.audio.Close(), l.asrSvc.Close(), l.alignment.Close())
}

// BuildEngine dials the sibling services and resolves the selected
// definition into an engine. The returned closer releases the connections.
func BuildEngine(ctx context.Context, cfg *config.Config, opts ...pipeline.Option) (*pipeline.Engine, func() error, error) {
	defCfg, err := cfg.SelectedDefinition()
	if err != nil {
		return nil, nil, err
	}
	def, err := defCfg.Definition()
	if err != nil {
		return nil, nil, err
	}
	loader, err := NewLoader(ctx, cfg.Endpoints, cfg.Audio.TargetSampleRateHz)
	if err != nil {
		return nil, nil, err
	}
	eng, err := pipeline.FromDefinition(def, loader, opts...)
	if err != nil {
		loader.Close()
		return nil, nil, err
	}
	return eng, loader.Close, nil
}
