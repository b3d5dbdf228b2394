package streaming

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/voxalys/voxalys/internal/observe"
	"github.com/voxalys/voxalys/internal/session"
	"github.com/voxalys/voxalys/pkg/asr"
)

// DefaultMaxMessageBytes caps inbound websocket messages when no limit is
// configured.
const DefaultMaxMessageBytes int64 = 64 << 20

// Driver owns streaming sessions: it accepts websocket connections, runs
// the per-connection protocol state machine and drives the pipeline on
// flush and stop.
type Driver struct {
	uc              *session.UseCase
	maxMessageBytes int64
	logger          *slog.Logger
	metrics         *observe.Metrics
}

// DriverOption customises a Driver.
type DriverOption func(*Driver)

// WithMaxMessageBytes caps inbound message size. Defaults to 64 MiB.
func WithMaxMessageBytes(n int64) DriverOption {
	return func(d *Driver) {
		if n > 0 {
			d.maxMessageBytes = n
		}
	}
}

// WithLogger sets the driver logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) DriverOption {
	return func(d *Driver) { d.logger = l }
}

// WithMetrics sets the metrics sink. Defaults to observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) DriverOption {
	return func(d *Driver) { d.metrics = m }
}

// NewDriver returns a driver running sessions through uc.
func NewDriver(uc *session.UseCase, opts ...DriverOption) *Driver {
	d := &Driver{uc: uc, maxMessageBytes: DefaultMaxMessageBytes}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	return d
}

// Handler returns the HTTP handler upgrading requests to streaming
// sessions.
func (d *Driver) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			d.logger.Warn("websocket accept failed", "error", err)
			return
		}
		conn.SetReadLimit(d.maxMessageBytes)
		d.serve(r.Context(), conn)
	})
}

// connState tracks where a connection is in its lifecycle.
type connState int

const (
	stateUnstarted connState = iota
	stateActive
)

// serve runs one connection until the peer disconnects, Stop completes, or
// a pipeline failure tears the session down.
func (d *Driver) serve(ctx context.Context, conn *websocket.Conn) {
	defer conn.CloseNow()

	d.metrics.ActiveSessions.Add(ctx, 1)
	defer d.metrics.ActiveSessions.Add(ctx, -1)

	state := stateUnstarted
	var pc *asr.PipelineContext

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				d.logger.Debug("websocket read ended", "error", err)
			}
			return
		}
		if typ == websocket.MessageBinary {
			if !d.sendError(ctx, conn, "binary frames are not supported; use JSON audio_frame") {
				return
			}
			continue
		}

		msg, err := ParseClientMessage(data)
		if err != nil {
			// Version mismatches and malformed envelopes are reported but
			// do not end the session.
			if !d.sendError(ctx, conn, err.Error()) {
				return
			}
			continue
		}

		switch msg.Type {
		case TypePing:
			if !d.send(ctx, conn, ServerMessage{Type: TypePong}) {
				return
			}

		case TypeStart:
			fresh, err := d.uc.NewPipelineContext(msg.Start.SessionID, msg.Start.LanguageHint)
			if err != nil {
				if !d.sendError(ctx, conn, err.Error()) {
					return
				}
				continue
			}
			fresh.Audio.SampleRateHz = d.uc.DefaultSampleRateHz()
			pc = fresh
			state = stateActive
			d.logger.Debug("streaming session started", "session_id", pc.SessionID)
			if !d.send(ctx, conn, ServerMessage{Type: TypeReady, Ready: &ReadyPayload{SessionID: pc.SessionID}}) {
				return
			}

		case TypeAudioFrame:
			if state != stateActive {
				if !d.sendError(ctx, conn, "start must be sent first") {
					return
				}
				continue
			}
			pc.Audio.Samples = append(pc.Audio.Samples, msg.AudioFrame.PCMF32...)

		case TypeFlush, TypeStop:
			if state != stateActive {
				if !d.sendError(ctx, conn, "start must be sent first") {
					return
				}
				continue
			}
			trigger := "flush"
			if msg.Type == TypeStop {
				trigger = "stop"
			}
			d.metrics.RecordFlush(ctx, trigger)

			runErr := d.uc.Run(ctx, pc)
			// Drain first so results computed before a failure still reach
			// the client, then report the error, then close.
			for _, ev := range pc.DrainEvents() {
				out, ok := EventMessage(ev)
				if !ok {
					continue
				}
				if !d.send(ctx, conn, out) {
					return
				}
			}
			if runErr != nil {
				d.logger.Warn("pipeline run failed", "session_id", pc.SessionID, "trigger", trigger, "error", runErr)
				d.sendError(ctx, conn, runErr.Error())
				conn.Close(websocket.StatusInternalError, "pipeline failure")
				return
			}
			if msg.Type == TypeStop {
				d.logger.Debug("streaming session stopped", "session_id", pc.SessionID)
				conn.Close(websocket.StatusNormalClosure, "session stopped")
				return
			}
		}
	}
}

func (d *Driver) send(ctx context.Context, conn *websocket.Conn, msg ServerMessage) bool {
	data, err := EncodeServerMessage(msg)
	if err != nil {
		d.logger.Error("failed to encode server message", "type", msg.Type, "error", err)
		return false
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		d.logger.Debug("websocket write failed", "type", msg.Type, "error", err)
		return false
	}
	return true
}

func (d *Driver) sendError(ctx context.Context, conn *websocket.Conn, message string) bool {
	return d.send(ctx, conn, ServerMessage{Type: TypeError, Error: &ErrorPayload{Message: message}})
}
