// Package streaming implements the duplex session protocol: versioned JSON
// envelopes over websocket text frames, and the driver that owns the
// per-connection state machine.
package streaming

import (
	"encoding/json"
	"fmt"

	"github.com/voxalys/voxalys/pkg/asr"
)

// ProtocolVersion is the envelope version this driver speaks.
const ProtocolVersion uint32 = 1

// Envelope wraps every message in both directions.
type Envelope struct {
	Version uint32          `json:"version"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client message types.
const (
	TypeStart      = "start"
	TypeAudioFrame = "audio_frame"
	TypeFlush      = "flush"
	TypeStop       = "stop"
	TypePing       = "ping"
)

// Server message types.
const (
	TypeReady             = "ready"
	TypePartialTranscript = "partial_transcript"
	TypeFinalTranscript   = "final_transcript"
	TypeAlignmentUpdate   = "alignment_update"
	TypeError             = "error"
	TypePong              = "pong"
)

// StartPayload opens a session.
type StartPayload struct {
	SessionID    *string          `json:"session_id,omitempty"`
	LanguageHint *asr.LanguageTag `json:"language_hint,omitempty"`
}

// AudioFramePayload appends float32 PCM samples to the session buffer.
type AudioFramePayload struct {
	PCMF32 []float32 `json:"pcm_f32"`
}

// ClientMessage is one decoded inbound message.
type ClientMessage struct {
	Type       string
	Start      *StartPayload
	AudioFrame *AudioFramePayload
}

// VersionError reports an envelope carrying the wrong protocol version.
type VersionError struct {
	Got uint32
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("unsupported protocol version %d, expected %d", e.Got, ProtocolVersion)
}

// ParseClientMessage decodes an inbound text frame. A wrong version yields
// a *VersionError; malformed JSON and unknown types yield plain errors.
func ParseClientMessage(data []byte) (ClientMessage, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ClientMessage{}, fmt.Errorf("invalid message envelope: %w", err)
	}
	if env.Version != ProtocolVersion {
		return ClientMessage{}, &VersionError{Got: env.Version}
	}
	msg := ClientMessage{Type: env.Type}
	switch env.Type {
	case TypeStart:
		msg.Start = &StartPayload{}
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, msg.Start); err != nil {
				return ClientMessage{}, fmt.Errorf("invalid start payload: %w", err)
			}
		}
	case TypeAudioFrame:
		msg.AudioFrame = &AudioFramePayload{}
		if len(env.Payload) == 0 {
			return ClientMessage{}, fmt.Errorf("audio_frame requires a payload")
		}
		if err := json.Unmarshal(env.Payload, msg.AudioFrame); err != nil {
			return ClientMessage{}, fmt.Errorf("invalid audio_frame payload: %w", err)
		}
	case TypeFlush, TypeStop, TypePing:
		// No payload.
	default:
		return ClientMessage{}, fmt.Errorf("unknown message type `%s`", env.Type)
	}
	return msg, nil
}

// EncodeClientMessage encodes an outbound client message. Used by clients
// and tests; the server only parses these.
func EncodeClientMessage(msg ClientMessage) ([]byte, error) {
	var payload any
	switch msg.Type {
	case TypeStart:
		payload = msg.Start
	case TypeAudioFrame:
		payload = msg.AudioFrame
	}
	return encodeEnvelope(msg.Type, payload)
}

// ReadyPayload acknowledges session start with the canonical session ID.
type ReadyPayload struct {
	SessionID string `json:"session_id"`
}

// PartialTranscriptPayload carries an interim transcript.
type PartialTranscriptPayload struct {
	Transcript asr.Transcript `json:"transcript"`
}

// FinalTranscriptPayload carries the finished transcript.
type FinalTranscriptPayload struct {
	Transcript asr.Transcript `json:"transcript"`
}

// AlignmentUpdatePayload carries word timings.
type AlignmentUpdatePayload struct {
	Words []asr.WordTiming `json:"words"`
}

// ErrorPayload reports a protocol or pipeline failure.
type ErrorPayload struct {
	Message string `json:"message"`
}

// ServerMessage is one decoded outbound message.
type ServerMessage struct {
	Type      string
	Ready     *ReadyPayload
	Partial   *PartialTranscriptPayload
	Final     *FinalTranscriptPayload
	Alignment *AlignmentUpdatePayload
	Error     *ErrorPayload
}

// EncodeServerMessage encodes an outbound server message.
func EncodeServerMessage(msg ServerMessage) ([]byte, error) {
	var payload any
	switch msg.Type {
	case TypeReady:
		payload = msg.Ready
	case TypePartialTranscript:
		payload = msg.Partial
	case TypeFinalTranscript:
		payload = msg.Final
	case TypeAlignmentUpdate:
		payload = msg.Alignment
	case TypeError:
		payload = msg.Error
	case TypePong:
		// No payload.
	default:
		return nil, fmt.Errorf("unknown server message type `%s`", msg.Type)
	}
	return encodeEnvelope(msg.Type, payload)
}

// ParseServerMessage decodes a server frame. Used by clients and tests.
func ParseServerMessage(data []byte) (ServerMessage, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ServerMessage{}, fmt.Errorf("invalid message envelope: %w", err)
	}
	if env.Version != ProtocolVersion {
		return ServerMessage{}, &VersionError{Got: env.Version}
	}
	msg := ServerMessage{Type: env.Type}
	var payload any
	switch env.Type {
	case TypeReady:
		msg.Ready = &ReadyPayload{}
		payload = msg.Ready
	case TypePartialTranscript:
		msg.Partial = &PartialTranscriptPayload{}
		payload = msg.Partial
	case TypeFinalTranscript:
		msg.Final = &FinalTranscriptPayload{}
		payload = msg.Final
	case TypeAlignmentUpdate:
		msg.Alignment = &AlignmentUpdatePayload{}
		payload = msg.Alignment
	case TypeError:
		msg.Error = &ErrorPayload{}
		payload = msg.Error
	case TypePong:
		return msg, nil
	default:
		return ServerMessage{}, fmt.Errorf("unknown server message type `%s`", env.Type)
	}
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, payload); err != nil {
			return ServerMessage{}, fmt.Errorf("invalid %s payload: %w", env.Type, err)
		}
	}
	return msg, nil
}

// EventMessage maps a pipeline event onto its server message.
func EventMessage(ev asr.DomainEvent) (ServerMessage, bool) {
	switch ev := ev.(type) {
	case asr.PartialTranscriptEvent:
		return ServerMessage{Type: TypePartialTranscript, Partial: &PartialTranscriptPayload{Transcript: ev.Transcript}}, true
	case asr.FinalTranscriptEvent:
		return ServerMessage{Type: TypeFinalTranscript, Final: &FinalTranscriptPayload{Transcript: ev.Transcript}}, true
	case asr.AlignmentUpdateEvent:
		words := ev.Words
		if words == nil {
			words = []asr.WordTiming{}
		}
		return ServerMessage{Type: TypeAlignmentUpdate, Alignment: &AlignmentUpdatePayload{Words: words}}, true
	default:
		return ServerMessage{}, false
	}
}

func encodeEnvelope(msgType string, payload any) ([]byte, error) {
	env := Envelope{Version: ProtocolVersion, Type: msgType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", msgType, err)
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}
