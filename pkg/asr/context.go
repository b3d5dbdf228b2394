package asr

import "encoding/json"

// DomainEvent is a notification appended by stages as they progress. The
// streaming driver drains events after each pipeline run and forwards them
// to the client; the one-shot path inspects them for alignment results.
type DomainEvent interface {
	isDomainEvent()
}

// PartialTranscriptEvent carries an intermediate transcript for the audio
// decoded so far.
type PartialTranscriptEvent struct {
	Transcript Transcript
}

// FinalTranscriptEvent carries the finished transcript for the current
// audio buffer.
type FinalTranscriptEvent struct {
	Transcript Transcript
}

// AlignmentUpdateEvent carries word-level timings produced by an alignment
// stage.
type AlignmentUpdateEvent struct {
	Words []WordTiming
}

func (PartialTranscriptEvent) isDomainEvent() {}
func (FinalTranscriptEvent) isDomainEvent()   {}
func (AlignmentUpdateEvent) isDomainEvent()   {}

// Well-known extension keys written by the built-in and remote stages.
const (
	ExtResampled           = "audio.resampled"
	ExtSourceSampleRateHz  = "audio.source_sample_rate_hz"
	ExtTargetSampleRateHz  = "audio.target_sample_rate_hz"
	ExtRequestSampleRateHz = "audio.request_sample_rate_hz"
	ExtAudioTransform      = "audio.transform"
	ExtAsrText             = "asr.text"
	ExtAlignmentText       = "alignment.text"
)

// PipelineContext is the shared mutable state a pipeline run threads through
// its stages. It is owned by exactly one goroutine at a time; nothing in it
// is synchronised.
type PipelineContext struct {
	// SessionID identifies the session this run belongs to. Remote stages
	// overwrite it with the canonical ID echoed by the downstream service.
	SessionID string

	// LanguageHint is the caller-supplied language, nil for none.
	LanguageHint *LanguageTag

	// Audio is the working buffer stages read and rewrite in place.
	Audio AudioChunk

	// Transcript is set by the transcription stage, nil before it runs.
	Transcript *Transcript

	// AlignedWords is set by an alignment stage, nil before it runs.
	AlignedWords []WordTiming

	// events is append-only during a run and drained by the caller.
	events []DomainEvent

	// extensions holds loosely-typed metadata keyed by the Ext* constants.
	extensions map[string]json.RawMessage
}

// NewContext returns a context for one session. hint may be nil.
func NewContext(sessionID string, hint *LanguageTag) *PipelineContext {
	return &PipelineContext{
		SessionID:    sessionID,
		LanguageHint: hint,
		extensions:   make(map[string]json.RawMessage),
	}
}

// AppendEvent records a domain event for the caller to drain later.
func (c *PipelineContext) AppendEvent(ev DomainEvent) {
	c.events = append(c.events, ev)
}

// Events returns the recorded events without draining them.
func (c *PipelineContext) Events() []DomainEvent {
	return c.events
}

// DrainEvents returns all recorded events and leaves the context with none.
func (c *PipelineContext) DrainEvents() []DomainEvent {
	evs := c.events
	c.events = nil
	return evs
}

// SetExtension stores v under key, JSON-encoded. Marshal failures are
// reported so stages can surface them as internal errors.
func (c *PipelineContext) SetExtension(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return Internalf("failed to encode extension %q: %v", key, err)
	}
	if c.extensions == nil {
		c.extensions = make(map[string]json.RawMessage)
	}
	c.extensions[key] = raw
	return nil
}

// Extension decodes the value stored under key into out. The second return
// is false when the key is absent.
func (c *PipelineContext) Extension(key string, out any) (bool, error) {
	raw, ok := c.extensions[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, Internalf("failed to decode extension %q: %v", key, err)
	}
	return true, nil
}

// HasExtension reports whether key is present.
func (c *PipelineContext) HasExtension(key string) bool {
	_, ok := c.extensions[key]
	return ok
}
