// Package session implements the application layer: the one-shot
// transcription use case shared by the HTTP endpoint and the streaming
// driver, request validation, and the application error space.
package session

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/voxalys/voxalys/internal/observe"
	"github.com/voxalys/voxalys/internal/pipeline"
	"github.com/voxalys/voxalys/pkg/asr"
)

// Limits on caller-supplied identifiers.
const (
	maxSessionIDLen    = 64
	maxLanguageHintLen = 16
)

// TranscribeRequest is a one-shot transcription request.
type TranscribeRequest struct {
	Samples      []float32 `json:"samples"`
	SampleRateHz *uint32   `json:"sample_rate_hz,omitempty"`
	LanguageHint *string   `json:"language_hint,omitempty"`
	SessionID    *string   `json:"session_id,omitempty"`
}

// TranscribeResponse is the one-shot transcription result.
type TranscribeResponse struct {
	SessionID    string           `json:"session_id"`
	Transcript   asr.Transcript   `json:"transcript"`
	Text         string           `json:"text"`
	AlignedWords []asr.WordTiming `json:"aligned_words"`
}

// Capabilities advertises the configured language surface.
type Capabilities struct {
	DefaultLanguage    string   `json:"default_language"`
	SupportedLanguages []string `json:"supported_languages"`
}

// UseCase orchestrates pipeline runs for both transports.
type UseCase struct {
	engine              *pipeline.Engine
	defaultSampleRateHz uint32
	capabilities        Capabilities
	logger              *slog.Logger
	metrics             *observe.Metrics
}

// Option customises a UseCase.
type Option func(*UseCase)

// WithLogger sets the use-case logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(u *UseCase) { u.logger = l }
}

// WithMetrics sets the metrics sink. Defaults to observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(u *UseCase) { u.metrics = m }
}

// WithCapabilities sets the advertised language surface.
func WithCapabilities(c Capabilities) Option {
	return func(u *UseCase) { u.capabilities = c }
}

// New returns a use case running the given engine. defaultSampleRateHz is
// assumed for requests that omit a rate.
func New(engine *pipeline.Engine, defaultSampleRateHz uint32, opts ...Option) *UseCase {
	u := &UseCase{
		engine:              engine,
		defaultSampleRateHz: defaultSampleRateHz,
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.logger == nil {
		u.logger = slog.Default()
	}
	if u.metrics == nil {
		u.metrics = observe.DefaultMetrics()
	}
	return u
}

// Capabilities returns the advertised language surface.
func (u *UseCase) Capabilities() Capabilities { return u.capabilities }

// DefaultSampleRateHz returns the rate assumed for audio without one.
func (u *UseCase) DefaultSampleRateHz() uint32 { return u.defaultSampleRateHz }

// NewPipelineContext validates the session ID and builds a fresh pipeline
// context. Shared by the one-shot path and the streaming driver's start
// handling; hint may be nil. The request rate extension is seeded with the
// server default; callers resolving an explicit rate overwrite it.
func (u *UseCase) NewPipelineContext(sessionID *string, hint *asr.LanguageTag) (*asr.PipelineContext, error) {
	id, err := resolveSessionID(sessionID)
	if err != nil {
		return nil, err
	}
	pc := asr.NewContext(id, hint)
	if err := pc.SetExtension(asr.ExtRequestSampleRateHz, u.defaultSampleRateHz); err != nil {
		return nil, fromDomain(err)
	}
	return pc, nil
}

// Run executes the pipeline over an existing context, mapping pipeline
// errors into the application error space. Events are left on the context
// for the caller to drain.
func (u *UseCase) Run(ctx context.Context, pc *asr.PipelineContext) error {
	if err := u.engine.Run(ctx, pc); err != nil {
		return fromDomain(err)
	}
	return nil
}

// Transcribe validates the request, runs the full pipeline once and
// collects the transcript, flattened text and aligned words.
func (u *UseCase) Transcribe(ctx context.Context, req TranscribeRequest) (*TranscribeResponse, error) {
	resp, err := u.transcribe(ctx, req)
	if err != nil {
		u.metrics.RecordTranscribeRequest(ctx, statusOf(err))
		return nil, err
	}
	u.metrics.RecordTranscribeRequest(ctx, "ok")
	return resp, nil
}

func (u *UseCase) transcribe(ctx context.Context, req TranscribeRequest) (*TranscribeResponse, error) {
	audio := asr.AudioChunk{
		SampleRateHz: u.defaultSampleRateHz,
		Samples:      req.Samples,
	}
	if req.SampleRateHz != nil {
		audio.SampleRateHz = *req.SampleRateHz
	}
	if err := audio.Validate(); err != nil {
		return nil, fromDomain(err)
	}

	hint, err := resolveLanguageHint(req.LanguageHint)
	if err != nil {
		return nil, err
	}
	pc, err := u.NewPipelineContext(req.SessionID, hint)
	if err != nil {
		return nil, err
	}
	pc.Audio = audio
	// Provenance keeps the rate the caller asked for even after a resample
	// step rewrites the chunk itself.
	if err := pc.SetExtension(asr.ExtRequestSampleRateHz, audio.SampleRateHz); err != nil {
		return nil, fromDomain(err)
	}

	u.logger.Debug("running one-shot transcription",
		"session_id", pc.SessionID, "samples", len(audio.Samples), "sample_rate_hz", audio.SampleRateHz)

	if err := u.Run(ctx, pc); err != nil {
		return nil, err
	}
	if pc.Transcript == nil {
		return nil, Internal("transcription pipeline returned no transcript")
	}

	return &TranscribeResponse{
		SessionID:    pc.SessionID,
		Transcript:   *pc.Transcript,
		Text:         pc.Transcript.FlattenText(),
		AlignedWords: alignedWords(pc),
	}, nil
}

// alignedWords prefers the words on the context and falls back to the last
// alignment event of the run; sessions without alignment yield an empty
// slice rather than null.
func alignedWords(pc *asr.PipelineContext) []asr.WordTiming {
	if len(pc.AlignedWords) > 0 {
		return pc.AlignedWords
	}
	events := pc.Events()
	for i := len(events) - 1; i >= 0; i-- {
		if ev, ok := events[i].(asr.AlignmentUpdateEvent); ok {
			return ev.Words
		}
	}
	return []asr.WordTiming{}
}

func resolveSessionID(sessionID *string) (string, error) {
	if sessionID == nil {
		return uuid.NewString(), nil
	}
	if n := len(*sessionID); n < 1 || n > maxSessionIDLen {
		return "", Validation("session_id must be between 1 and 64 characters")
	}
	return *sessionID, nil
}

func resolveLanguageHint(hint *string) (*asr.LanguageTag, error) {
	if hint == nil {
		return nil, nil
	}
	if n := len(*hint); n < 1 || n > maxLanguageHintLen {
		return nil, Validation("language_hint must be between 1 and 16 characters")
	}
	tag, err := asr.ParseLanguageTag(*hint)
	if err != nil {
		return nil, Validation("language_hint cannot be empty")
	}
	return &tag, nil
}

func statusOf(err error) string {
	if ae, ok := err.(*AppError); ok {
		switch ae.Kind {
		case KindValidation:
			return "validation"
		case KindUpstream:
			return "upstream"
		}
	}
	return "internal"
}
