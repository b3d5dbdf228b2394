package streaming_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/voxalys/voxalys/internal/observe"
	"github.com/voxalys/voxalys/internal/pipeline"
	"github.com/voxalys/voxalys/internal/session"
	"github.com/voxalys/voxalys/internal/streaming"
	"github.com/voxalys/voxalys/pkg/asr"
)

type stageFunc struct {
	name string
	fn   func(pc *asr.PipelineContext) error
}

func (s *stageFunc) Name() string { return s.name }

func (s *stageFunc) Execute(_ context.Context, pc *asr.PipelineContext) error { return s.fn(pc) }

// transcribeAll emits a final transcript over whatever audio accumulated.
var transcribeAll = &stageFunc{name: "whisper_transcription", fn: func(pc *asr.PipelineContext) error {
	tr := asr.Transcript{
		Language: asr.LanguageAuto(),
		Segments: []asr.TranscriptSegment{{Text: "hello world", StartMs: 0, EndMs: pc.Audio.DurationMs()}},
	}
	pc.Transcript = &tr
	pc.AppendEvent(asr.FinalTranscriptEvent{Transcript: tr})
	pc.AppendEvent(asr.AlignmentUpdateEvent{Words: []asr.WordTiming{{Word: "hello", EndMs: 400}}})
	return nil
}}

func dialDriver(t *testing.T, stages ...pipeline.Stage) *websocket.Conn {
	t.Helper()
	metrics, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	eng := pipeline.New(stages, pipeline.WithMetrics(metrics))
	uc := session.New(eng, 16000, session.WithMetrics(metrics))
	driver := streaming.NewDriver(uc, streaming.WithMetrics(metrics))

	srv := httptest.NewServer(driver.Handler())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func sendRaw(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte(raw)); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func send(t *testing.T, conn *websocket.Conn, msg streaming.ClientMessage) {
	t.Helper()
	data, err := streaming.EncodeClientMessage(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	sendRaw(t, conn, string(data))
}

func recv(t *testing.T, conn *websocket.Conn) streaming.ServerMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	msg, err := streaming.ParseServerMessage(data)
	if err != nil {
		t.Fatalf("ParseServerMessage(%s): %v", data, err)
	}
	return msg
}

func TestSessionHappyPath(t *testing.T) {
	conn := dialDriver(t, transcribeAll)

	sid := "integration-session"
	send(t, conn, streaming.ClientMessage{Type: streaming.TypeStart, Start: &streaming.StartPayload{SessionID: &sid}})
	ready := recv(t, conn)
	if ready.Type != streaming.TypeReady || ready.Ready.SessionID != sid {
		t.Fatalf("ready = %+v", ready)
	}

	send(t, conn, streaming.ClientMessage{Type: streaming.TypeAudioFrame, AudioFrame: &streaming.AudioFramePayload{PCMF32: make([]float32, 1600)}})
	send(t, conn, streaming.ClientMessage{Type: streaming.TypeFlush})

	final := recv(t, conn)
	if final.Type != streaming.TypeFinalTranscript {
		t.Fatalf("after flush got %+v, want final_transcript", final)
	}
	if got := final.Final.Transcript.FlattenText(); got != "hello world" {
		t.Errorf("transcript text = %q", got)
	}
	alignment := recv(t, conn)
	if alignment.Type != streaming.TypeAlignmentUpdate || len(alignment.Alignment.Words) != 1 {
		t.Fatalf("after flush got %+v, want alignment_update", alignment)
	}

	send(t, conn, streaming.ClientMessage{Type: streaming.TypeStop})
	// Stop runs the pipeline again, drains, then closes normally.
	if msg := recv(t, conn); msg.Type != streaming.TypeFinalTranscript {
		t.Fatalf("after stop got %+v", msg)
	}
	if msg := recv(t, conn); msg.Type != streaming.TypeAlignmentUpdate {
		t.Fatalf("after stop got %+v", msg)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		t.Errorf("close status = %v (err %v), want normal closure", websocket.CloseStatus(err), err)
	}
}

func TestPingPongBeforeStart(t *testing.T) {
	conn := dialDriver(t, transcribeAll)
	send(t, conn, streaming.ClientMessage{Type: streaming.TypePing})
	if msg := recv(t, conn); msg.Type != streaming.TypePong {
		t.Fatalf("got %+v, want pong", msg)
	}
}

func TestAudioFrameBeforeStart(t *testing.T) {
	conn := dialDriver(t, transcribeAll)
	send(t, conn, streaming.ClientMessage{Type: streaming.TypeAudioFrame, AudioFrame: &streaming.AudioFramePayload{PCMF32: []float32{0}}})
	msg := recv(t, conn)
	if msg.Type != streaming.TypeError || msg.Error.Message != "start must be sent first" {
		t.Fatalf("got %+v", msg)
	}
	// The connection stays usable.
	send(t, conn, streaming.ClientMessage{Type: streaming.TypePing})
	if msg := recv(t, conn); msg.Type != streaming.TypePong {
		t.Fatalf("got %+v, want pong after error", msg)
	}
}

func TestVersionMismatch(t *testing.T) {
	conn := dialDriver(t, transcribeAll)
	sendRaw(t, conn, `{"version":2,"type":"ping"}`)
	msg := recv(t, conn)
	if msg.Type != streaming.TypeError {
		t.Fatalf("got %+v, want error", msg)
	}
	if !strings.Contains(msg.Error.Message, "unsupported protocol version 2, expected 1") {
		t.Errorf("message = %q", msg.Error.Message)
	}
	send(t, conn, streaming.ClientMessage{Type: streaming.TypePing})
	if msg := recv(t, conn); msg.Type != streaming.TypePong {
		t.Fatalf("got %+v, want pong after version error", msg)
	}
}

func TestBinaryFramesRejected(t *testing.T) {
	conn := dialDriver(t, transcribeAll)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageBinary, []byte{1, 2, 3}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	msg := recv(t, conn)
	if msg.Type != streaming.TypeError || msg.Error.Message != "binary frames are not supported; use JSON audio_frame" {
		t.Fatalf("got %+v", msg)
	}
}

func TestFlushFailureDrainsThenErrorsThenCloses(t *testing.T) {
	failing := &stageFunc{name: "asr_transcribe", fn: func(pc *asr.PipelineContext) error {
		pc.AppendEvent(asr.PartialTranscriptEvent{
			Transcript: asr.Transcript{
				Language: asr.LanguageAuto(),
				Segments: []asr.TranscriptSegment{{Text: "partial before failure"}},
			},
		})
		return asr.ExternalService("asr", "gRPC request timed out")
	}}
	conn := dialDriver(t, failing)

	sid := "failing-session"
	send(t, conn, streaming.ClientMessage{Type: streaming.TypeStart, Start: &streaming.StartPayload{SessionID: &sid}})
	if msg := recv(t, conn); msg.Type != streaming.TypeReady {
		t.Fatalf("got %+v", msg)
	}
	send(t, conn, streaming.ClientMessage{Type: streaming.TypeFlush})

	partial := recv(t, conn)
	if partial.Type != streaming.TypePartialTranscript || partial.Partial.Transcript.FlattenText() != "partial before failure" {
		t.Fatalf("first post-flush message = %+v, want the drained partial", partial)
	}
	errMsg := recv(t, conn)
	if errMsg.Type != streaming.TypeError {
		t.Fatalf("second post-flush message = %+v, want error", errMsg)
	}
	if !strings.Contains(errMsg.Error.Message, "gRPC request timed out") {
		t.Errorf("error message = %q", errMsg.Error.Message)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	if websocket.CloseStatus(err) != websocket.StatusInternalError {
		t.Errorf("close status = %v (err %v), want internal error", websocket.CloseStatus(err), err)
	}
}
