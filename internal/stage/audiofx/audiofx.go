// Package audiofx implements the built-in audio preprocessing stages:
// sample clamping and linear-interpolation resampling, plus PCM format
// helpers shared by the transports.
package audiofx

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/voxalys/voxalys/internal/pipeline"
	"github.com/voxalys/voxalys/pkg/asr"
)

// ClampStage forces every sample into [-1, 1] in place. It never fails and
// is idempotent.
type ClampStage struct{}

var _ pipeline.Stage = (*ClampStage)(nil)

// NewClampStage returns the clamp stage.
func NewClampStage() *ClampStage { return &ClampStage{} }

func (*ClampStage) Name() string { return "audio_clamp" }

func (*ClampStage) Execute(_ context.Context, pc *asr.PipelineContext) error {
	Clamp(pc.Audio.Samples)
	return nil
}

// Clamp clips samples into [-1, 1] in place.
func Clamp(samples []float32) {
	for i, s := range samples {
		if s > 1 {
			samples[i] = 1
		} else if s < -1 {
			samples[i] = -1
		}
	}
}

// ResampleStage converts the working buffer to a fixed target sample rate
// using linear interpolation.
type ResampleStage struct {
	targetHz uint32
}

var _ pipeline.Stage = (*ResampleStage)(nil)

// NewResampleStage returns a resample stage targeting targetHz.
func NewResampleStage(targetHz uint32) *ResampleStage {
	return &ResampleStage{targetHz: targetHz}
}

func (*ResampleStage) Name() string { return "resample" }

func (s *ResampleStage) Execute(_ context.Context, pc *asr.PipelineContext) error {
	source := pc.Audio.SampleRateHz
	if source == 0 || s.targetHz == 0 {
		return asr.Internal("sample rate must be greater than zero")
	}
	if source == s.targetHz || len(pc.Audio.Samples) <= 1 {
		return pc.SetExtension(asr.ExtResampled, false)
	}
	pc.Audio.Samples = Resample(pc.Audio.Samples, source, s.targetHz)
	pc.Audio.SampleRateHz = s.targetHz
	if err := pc.SetExtension(asr.ExtResampled, true); err != nil {
		return err
	}
	if err := pc.SetExtension(asr.ExtSourceSampleRateHz, source); err != nil {
		return err
	}
	return pc.SetExtension(asr.ExtTargetSampleRateHz, s.targetHz)
}

// Resample converts samples from sourceHz to targetHz by linear
// interpolation. The output length is max(1, floor(n*target/source)); the
// first output sample always equals the first input sample. Callers must
// ensure both rates are non-zero and len(samples) > 1.
func Resample(samples []float32, sourceHz, targetHz uint32) []float32 {
	n := len(samples)
	outLen := int(uint64(n) * uint64(targetHz) / uint64(sourceHz))
	if outLen < 1 {
		outLen = 1
	}
	out := make([]float32, outLen)
	ratio := float64(sourceHz) / float64(targetHz)
	for i := range out {
		pos := float64(i) * ratio
		left := int(math.Floor(pos))
		right := left + 1
		if right > n-1 {
			right = n - 1
		}
		frac := float32(pos - float64(left))
		out[i] = samples[left]*(1-frac) + samples[right]*frac
	}
	return out
}

// PCM16LEToFloat32 converts little-endian signed 16-bit PCM bytes into
// float32 samples in [-1, 1). A trailing odd byte is dropped.
func PCM16LEToFloat32(data []byte) []float32 {
	out := make([]float32, 0, len(data)/2)
	for i := 0; i+1 < len(data); i += 2 {
		v := int16(binary.LittleEndian.Uint16(data[i:]))
		out = append(out, float32(v)/32768)
	}
	return out
}
