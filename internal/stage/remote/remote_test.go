package remote_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/voxalys/voxalys/internal/pipeline"
	"github.com/voxalys/voxalys/internal/rpc"
	"github.com/voxalys/voxalys/internal/stage/remote"
	"github.com/voxalys/voxalys/pkg/asr"
)

// fakeServices implements all three sibling services in-process.
type fakeServices struct {
	transformDelay time.Duration
}

func (f *fakeServices) TransformAudio(_ context.Context, req *rpc.TransformAudioRequest) (*rpc.TransformAudioResponse, error) {
	if f.transformDelay > 0 {
		time.Sleep(f.transformDelay)
	}
	samples := make([]float32, len(req.Samples))
	for i, s := range req.Samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		samples[i] = s
	}
	rate := uint32(16000)
	if req.TargetSampleRateHz != nil {
		rate = *req.TargetSampleRateHz
	} else if req.SampleRateHz != nil {
		rate = *req.SampleRateHz
	}
	return &rpc.TransformAudioResponse{
		SessionID:    "canonical-session",
		Samples:      samples,
		SampleRateHz: rate,
		Metadata: &rpc.TransformMetadata{
			Clamped:           true,
			InputSampleCount:  uint64(len(req.Samples)),
			OutputSampleCount: uint64(len(samples)),
		},
	}, nil
}

func (f *fakeServices) Transcribe(_ context.Context, req *rpc.TranscribeAudioRequest) (*rpc.TranscribeAudioResponse, error) {
	lang := &rpc.LanguageTag{Code: rpc.LangCodeAuto}
	if req.LanguageHint != nil && *req.LanguageHint == "fr" {
		lang = &rpc.LanguageTag{Code: rpc.LangCodeFr}
	}
	return &rpc.TranscribeAudioResponse{
		SessionID: "canonical-session",
		Transcript: &rpc.Transcript{
			Language: lang,
			Segments: []rpc.TranscriptSegment{{Text: "hello world", StartMs: 0, EndMs: 1000}},
		},
		Text: "hello world",
	}, nil
}

func (f *fakeServices) EnrichTranscript(_ context.Context, req *rpc.EnrichTranscriptRequest) (*rpc.EnrichTranscriptResponse, error) {
	return &rpc.EnrichTranscriptResponse{
		SessionID:  "canonical-session",
		Transcript: req.Transcript,
		AlignedWords: []rpc.WordTiming{
			{Word: "hello", StartMs: 0, EndMs: 400, Confidence: 0.9},
			{Word: "world", StartMs: 400, EndMs: 1000, Confidence: 0.9},
		},
		Text: "hello world",
	}, nil
}

// startServer spins up the fake services on a bufconn listener and returns
// a connected Conn factory.
func startServer(t *testing.T, svc *fakeServices) func(service string, timeout time.Duration) *remote.Conn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	rpc.RegisterAudioServer(srv, svc)
	rpc.RegisterAsrServer(srv, svc)
	rpc.RegisterAlignmentServer(srv, svc)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	return func(service string, timeout time.Duration) *remote.Conn {
		cc, err := grpc.NewClient("passthrough:///bufnet",
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}),
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithDefaultCallOptions(grpc.CallContentSubtype(rpc.CodecName)),
		)
		if err != nil {
			t.Fatalf("NewClient: %v", err)
		}
		conn := remote.NewConn(service, cc, timeout)
		t.Cleanup(func() { conn.Close() })
		return conn
	}
}

func TestAudioTransformStage(t *testing.T) {
	dial := startServer(t, &fakeServices{})
	stage := remote.NewAudioTransformStage(dial("audio", time.Second), 0)

	pc := asr.NewContext("client-session", nil)
	pc.Audio = asr.AudioChunk{SampleRateHz: 48000, Samples: []float32{-2, 0.5, 2}}
	if err := stage.Execute(context.Background(), pc); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if pc.SessionID != "canonical-session" {
		t.Errorf("session = %q, want echoed canonical id", pc.SessionID)
	}
	// No target configured, so the service must not be asked to resample
	// and the input rate survives the round trip.
	if pc.Audio.SampleRateHz != 48000 {
		t.Errorf("rate = %d, want input rate 48000", pc.Audio.SampleRateHz)
	}
	if pc.Audio.Samples[0] != -1 || pc.Audio.Samples[2] != 1 {
		t.Errorf("samples = %v, want clamped", pc.Audio.Samples)
	}
	var md rpc.TransformMetadata
	if ok, err := pc.Extension(asr.ExtAudioTransform, &md); !ok || err != nil || !md.Clamped {
		t.Errorf("transform metadata = %+v (ok %v, err %v)", md, ok, err)
	}
}

func TestAudioTransformStageConfiguredTargetRate(t *testing.T) {
	dial := startServer(t, &fakeServices{})
	stage := remote.NewAudioTransformStage(dial("audio", time.Second), 16000)

	pc := asr.NewContext("client-session", nil)
	pc.Audio = asr.AudioChunk{SampleRateHz: 48000, Samples: []float32{0.5}}
	if err := stage.Execute(context.Background(), pc); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if pc.Audio.SampleRateHz != 16000 {
		t.Errorf("rate = %d, want configured target 16000", pc.Audio.SampleRateHz)
	}
}

func TestAsrTranscribeStage(t *testing.T) {
	dial := startServer(t, &fakeServices{})
	stage := remote.NewAsrTranscribeStage(dial("asr", time.Second))

	fr := asr.LanguageFr()
	pc := asr.NewContext("client-session", &fr)
	pc.Audio = asr.AudioChunk{SampleRateHz: 16000, Samples: []float32{0, 0.1}}
	if err := stage.Execute(context.Background(), pc); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if pc.SessionID != "canonical-session" {
		t.Errorf("session = %q", pc.SessionID)
	}
	if pc.Transcript == nil || pc.Transcript.Language != asr.LanguageFr() {
		t.Fatalf("transcript = %+v", pc.Transcript)
	}
	events := pc.DrainEvents()
	if len(events) != 1 {
		t.Fatalf("events = %d, want final transcript", len(events))
	}
	if _, ok := events[0].(asr.FinalTranscriptEvent); !ok {
		t.Errorf("event = %T", events[0])
	}
	var text string
	if ok, _ := pc.Extension(asr.ExtAsrText, &text); !ok || text != "hello world" {
		t.Errorf("asr.text = %q (ok %v)", text, ok)
	}
}

func TestAlignmentEnrichStage(t *testing.T) {
	dial := startServer(t, &fakeServices{})
	stage := remote.NewAlignmentEnrichStage(dial("alignment", time.Second))

	pc := asr.NewContext("client-session", nil)
	pc.Audio = asr.AudioChunk{SampleRateHz: 16000, Samples: []float32{0}}
	pc.Transcript = &asr.Transcript{
		Language: asr.LanguageEn(),
		Segments: []asr.TranscriptSegment{{Text: "hello world", EndMs: 1000}},
	}
	if err := stage.Execute(context.Background(), pc); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(pc.AlignedWords) != 2 || pc.AlignedWords[0].Word != "hello" {
		t.Errorf("aligned words = %+v", pc.AlignedWords)
	}
	events := pc.DrainEvents()
	if len(events) != 1 {
		t.Fatalf("events = %d", len(events))
	}
	if _, ok := events[0].(asr.AlignmentUpdateEvent); !ok {
		t.Errorf("event = %T", events[0])
	}
}

func TestAlignmentEnrichRequiresTranscript(t *testing.T) {
	dial := startServer(t, &fakeServices{})
	stage := remote.NewAlignmentEnrichStage(dial("alignment", time.Second))
	pc := asr.NewContext("s", nil)
	err := stage.Execute(context.Background(), pc)
	var de *asr.DomainError
	if !errors.As(err, &de) || de.Kind != asr.KindInternal {
		t.Fatalf("err = %v, want internal", err)
	}
}

func TestRequestTimeoutMapsToExternalService(t *testing.T) {
	dial := startServer(t, &fakeServices{transformDelay: 300 * time.Millisecond})
	stage := remote.NewAudioTransformStage(dial("audio", 50*time.Millisecond), 0)

	pc := asr.NewContext("s", nil)
	pc.Audio = asr.AudioChunk{SampleRateHz: 16000, Samples: []float32{0}}
	err := stage.Execute(context.Background(), pc)
	var de *asr.DomainError
	if !errors.As(err, &de) || de.Kind != asr.KindExternalService {
		t.Fatalf("err = %v, want external service", err)
	}
	if de.Service != "audio" || de.Message != "gRPC request timed out" {
		t.Errorf("err = %v", de)
	}
}

func TestLoaderNameTable(t *testing.T) {
	dial := startServer(t, &fakeServices{})
	loader := remote.NewLoaderFromConns(
		dial("audio", time.Second),
		dial("asr", time.Second),
		dial("alignment", time.Second),
		0,
	)
	for _, name := range []string{"audio_transform", "asr_transcribe", "alignment_enrich"} {
		stage, err := loader.LoadStep(pipeline.StepSpec{Name: name})
		if err != nil {
			t.Fatalf("LoadStep(%s): %v", name, err)
		}
		if stage.Name() != name {
			t.Errorf("Name() = %q, want %q", stage.Name(), name)
		}
	}
	_, err := loader.LoadStep(pipeline.StepSpec{Name: "whisper_transcription"})
	var de *asr.DomainError
	if !errors.As(err, &de) || de.Message != "unknown pipeline step `whisper_transcription`" {
		t.Errorf("err = %v", err)
	}
}
