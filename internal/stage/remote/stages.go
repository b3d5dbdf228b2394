package remote

import (
	"context"

	"github.com/voxalys/voxalys/internal/pipeline"
	"github.com/voxalys/voxalys/internal/rpc"
	"github.com/voxalys/voxalys/pkg/asr"
)

// AudioTransformStage delegates clamping and resampling to the audio
// service.
type AudioTransformStage struct {
	conn               *Conn
	targetSampleRateHz uint32
}

var _ pipeline.Stage = (*AudioTransformStage)(nil)

// NewAudioTransformStage returns the remote audio preprocessing stage.
// A zero targetSampleRateHz asks the service for no resampling, so the
// output keeps the input rate.
func NewAudioTransformStage(conn *Conn, targetSampleRateHz uint32) *AudioTransformStage {
	return &AudioTransformStage{conn: conn, targetSampleRateHz: targetSampleRateHz}
}

func (*AudioTransformStage) Name() string { return "audio_transform" }

func (s *AudioTransformStage) Execute(ctx context.Context, pc *asr.PipelineContext) error {
	req := &rpc.TransformAudioRequest{
		Samples: pc.Audio.Samples,
	}
	if pc.SessionID != "" {
		req.SessionID = &pc.SessionID
	}
	if pc.Audio.SampleRateHz != 0 {
		rate := pc.Audio.SampleRateHz
		req.SampleRateHz = &rate
	}
	if s.targetSampleRateHz != 0 {
		target := s.targetSampleRateHz
		req.TargetSampleRateHz = &target
	}

	resp := &rpc.TransformAudioResponse{}
	if err := s.conn.invoke(ctx, rpc.MethodTransformAudio, req, resp); err != nil {
		return err
	}

	pc.SessionID = resp.SessionID
	pc.Audio = asr.AudioChunk{SampleRateHz: resp.SampleRateHz, Samples: resp.Samples}
	if resp.Metadata != nil {
		return pc.SetExtension(asr.ExtAudioTransform, resp.Metadata)
	}
	return nil
}

// AsrTranscribeStage delegates transcription to the asr service.
type AsrTranscribeStage struct {
	conn *Conn
}

var _ pipeline.Stage = (*AsrTranscribeStage)(nil)

// NewAsrTranscribeStage returns the remote transcription stage.
func NewAsrTranscribeStage(conn *Conn) *AsrTranscribeStage {
	return &AsrTranscribeStage{conn: conn}
}

func (*AsrTranscribeStage) Name() string { return "asr_transcribe" }

func (s *AsrTranscribeStage) Execute(ctx context.Context, pc *asr.PipelineContext) error {
	req := &rpc.TranscribeAudioRequest{
		Samples: pc.Audio.Samples,
	}
	if pc.SessionID != "" {
		req.SessionID = &pc.SessionID
	}
	if pc.Audio.SampleRateHz != 0 {
		rate := pc.Audio.SampleRateHz
		req.SampleRateHz = &rate
	}
	if pc.LanguageHint != nil {
		hint := pc.LanguageHint.String()
		req.LanguageHint = &hint
	}

	resp := &rpc.TranscribeAudioResponse{}
	if err := s.conn.invoke(ctx, rpc.MethodTranscribe, req, resp); err != nil {
		return err
	}
	if resp.Transcript == nil {
		return asr.Internal("asr response missing transcript")
	}
	transcript, err := rpc.TranscriptFromWire(resp.Transcript)
	if err != nil {
		return err
	}

	pc.SessionID = resp.SessionID
	pc.Transcript = &transcript
	pc.AppendEvent(asr.FinalTranscriptEvent{Transcript: transcript})
	return pc.SetExtension(asr.ExtAsrText, resp.Text)
}

// AlignmentEnrichStage delegates word alignment to the alignment service.
// Besides the aligned words it also adopts the transcript the service
// echoes back, which may carry richer token data.
type AlignmentEnrichStage struct {
	conn *Conn
}

var _ pipeline.Stage = (*AlignmentEnrichStage)(nil)

// NewAlignmentEnrichStage returns the remote alignment stage.
func NewAlignmentEnrichStage(conn *Conn) *AlignmentEnrichStage {
	return &AlignmentEnrichStage{conn: conn}
}

func (*AlignmentEnrichStage) Name() string { return "alignment_enrich" }

func (s *AlignmentEnrichStage) Execute(ctx context.Context, pc *asr.PipelineContext) error {
	if pc.Transcript == nil {
		return asr.Internal("no transcript available")
	}
	wireTranscript, err := rpc.TranscriptToWire(*pc.Transcript)
	if err != nil {
		return err
	}
	req := &rpc.EnrichTranscriptRequest{
		Samples:    pc.Audio.Samples,
		Transcript: wireTranscript,
	}
	if pc.SessionID != "" {
		req.SessionID = &pc.SessionID
	}
	if pc.Audio.SampleRateHz != 0 {
		rate := pc.Audio.SampleRateHz
		req.SampleRateHz = &rate
	}

	resp := &rpc.EnrichTranscriptResponse{}
	if err := s.conn.invoke(ctx, rpc.MethodEnrichTranscript, req, resp); err != nil {
		return err
	}

	pc.SessionID = resp.SessionID
	if resp.Transcript != nil {
		transcript, err := rpc.TranscriptFromWire(resp.Transcript)
		if err != nil {
			return err
		}
		pc.Transcript = &transcript
	}
	pc.AlignedWords = rpc.WordsFromWire(resp.AlignedWords)
	pc.AppendEvent(asr.AlignmentUpdateEvent{Words: pc.AlignedWords})
	return pc.SetExtension(asr.ExtAlignmentText, resp.Text)
}
