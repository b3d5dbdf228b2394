package rpc

import (
	"github.com/voxalys/voxalys/pkg/asr"
)

// Numeric language codes used on the wire.
const (
	LangCodeFr    int32 = 1
	LangCodeEn    int32 = 2
	LangCodeAuto  int32 = 3
	LangCodeOther int32 = 4
)

// LanguageTag is the wire shape of a language: a numeric code plus the
// free-form code string, populated only when Code is LangCodeOther.
type LanguageTag struct {
	Code  int32   `json:"code"`
	Other *string `json:"other,omitempty"`
}

// TranscriptToken mirrors asr.TranscriptToken on the wire.
type TranscriptToken struct {
	Text       string  `json:"text"`
	StartMs    uint64  `json:"start_ms"`
	EndMs      uint64  `json:"end_ms"`
	Confidence float32 `json:"confidence"`
}

// TranscriptSegment mirrors asr.TranscriptSegment on the wire.
type TranscriptSegment struct {
	Text    string            `json:"text"`
	StartMs uint64            `json:"start_ms"`
	EndMs   uint64            `json:"end_ms"`
	Tokens  []TranscriptToken `json:"tokens"`
}

// Transcript mirrors asr.Transcript on the wire.
type Transcript struct {
	Language *LanguageTag        `json:"language,omitempty"`
	Segments []TranscriptSegment `json:"segments"`
}

// WordTiming mirrors asr.WordTiming on the wire.
type WordTiming struct {
	Word       string  `json:"word"`
	StartMs    uint64  `json:"start_ms"`
	EndMs      uint64  `json:"end_ms"`
	Confidence float32 `json:"confidence"`
}

// TransformAudioRequest asks the audio service to clamp and optionally
// resample a buffer.
type TransformAudioRequest struct {
	SessionID          *string   `json:"session_id,omitempty"`
	Samples            []float32 `json:"samples"`
	SampleRateHz       *uint32   `json:"sample_rate_hz,omitempty"`
	TargetSampleRateHz *uint32   `json:"target_sample_rate_hz,omitempty"`
}

// TransformMetadata describes what the audio service did to the buffer.
type TransformMetadata struct {
	Clamped            bool   `json:"clamped"`
	Resampled          bool   `json:"resampled"`
	InputSampleCount   uint64 `json:"input_sample_count"`
	OutputSampleCount  uint64 `json:"output_sample_count"`
	SourceSampleRateHz uint32 `json:"source_sample_rate_hz"`
	TargetSampleRateHz uint32 `json:"target_sample_rate_hz"`
}

// TransformAudioResponse carries the transformed buffer and the canonical
// session ID.
type TransformAudioResponse struct {
	SessionID    string             `json:"session_id"`
	Samples      []float32          `json:"samples"`
	SampleRateHz uint32             `json:"sample_rate_hz"`
	Metadata     *TransformMetadata `json:"metadata,omitempty"`
}

// TranscribeAudioRequest asks the asr service for a transcript. The hint is
// the lowercase string form ("fr", "en", "auto" or a free code).
type TranscribeAudioRequest struct {
	SessionID    *string   `json:"session_id,omitempty"`
	Samples      []float32 `json:"samples"`
	SampleRateHz *uint32   `json:"sample_rate_hz,omitempty"`
	LanguageHint *string   `json:"language_hint,omitempty"`
}

// TranscribeAudioResponse carries the transcript and its flattened text.
type TranscribeAudioResponse struct {
	SessionID  string      `json:"session_id"`
	Transcript *Transcript `json:"transcript,omitempty"`
	Text       string      `json:"text"`
}

// EnrichTranscriptRequest asks the alignment service for word timings.
type EnrichTranscriptRequest struct {
	SessionID    *string     `json:"session_id,omitempty"`
	Samples      []float32   `json:"samples"`
	SampleRateHz *uint32     `json:"sample_rate_hz,omitempty"`
	Transcript   *Transcript `json:"transcript,omitempty"`
}

// EnrichTranscriptResponse carries the enriched transcript, the aligned
// words and the flattened text.
type EnrichTranscriptResponse struct {
	SessionID    string       `json:"session_id"`
	Transcript   *Transcript  `json:"transcript,omitempty"`
	AlignedWords []WordTiming `json:"aligned_words"`
	Text         string       `json:"text"`
}

// ---- domain mapping --------------------------------------------------------

// LanguageToWire converts a domain tag to its wire shape.
func LanguageToWire(tag asr.LanguageTag) (*LanguageTag, error) {
	if code, ok := tag.Other(); ok {
		return &LanguageTag{Code: LangCodeOther, Other: &code}, nil
	}
	switch tag.String() {
	case "fr":
		return &LanguageTag{Code: LangCodeFr}, nil
	case "en":
		return &LanguageTag{Code: LangCodeEn}, nil
	case "auto":
		return &LanguageTag{Code: LangCodeAuto}, nil
	default:
		return nil, asr.Internal("cannot encode invalid language tag")
	}
}

// LanguageFromWire converts a wire tag back to the domain. The Other field
// must be a non-empty string exactly when Code is LangCodeOther.
func LanguageFromWire(tag *LanguageTag) (asr.LanguageTag, error) {
	if tag == nil {
		return asr.LanguageTag{}, asr.Internal("missing language tag")
	}
	switch tag.Code {
	case LangCodeFr:
		return asr.LanguageFr(), nil
	case LangCodeEn:
		return asr.LanguageEn(), nil
	case LangCodeAuto:
		return asr.LanguageAuto(), nil
	case LangCodeOther:
		if tag.Other == nil || *tag.Other == "" {
			return asr.LanguageTag{}, asr.Internal("language tag code OTHER requires a non-empty other field")
		}
		return asr.LanguageOther(*tag.Other)
	default:
		return asr.LanguageTag{}, asr.Internalf("invalid language tag code %d", tag.Code)
	}
}

// TranscriptToWire converts a domain transcript to the wire shape.
func TranscriptToWire(t asr.Transcript) (*Transcript, error) {
	lang, err := LanguageToWire(t.Language)
	if err != nil {
		return nil, err
	}
	out := &Transcript{Language: lang, Segments: make([]TranscriptSegment, 0, len(t.Segments))}
	for _, seg := range t.Segments {
		ws := TranscriptSegment{
			Text:    seg.Text,
			StartMs: seg.StartMs,
			EndMs:   seg.EndMs,
			Tokens:  make([]TranscriptToken, 0, len(seg.Tokens)),
		}
		for _, tok := range seg.Tokens {
			ws.Tokens = append(ws.Tokens, TranscriptToken(tok))
		}
		out.Segments = append(out.Segments, ws)
	}
	return out, nil
}

// TranscriptFromWire converts a wire transcript back to the domain.
func TranscriptFromWire(t *Transcript) (asr.Transcript, error) {
	if t == nil {
		return asr.Transcript{}, asr.Internal("missing transcript")
	}
	lang, err := LanguageFromWire(t.Language)
	if err != nil {
		return asr.Transcript{}, err
	}
	out := asr.Transcript{Language: lang, Segments: make([]asr.TranscriptSegment, 0, len(t.Segments))}
	for _, seg := range t.Segments {
		ds := asr.TranscriptSegment{
			Text:    seg.Text,
			StartMs: seg.StartMs,
			EndMs:   seg.EndMs,
			Tokens:  make([]asr.TranscriptToken, 0, len(seg.Tokens)),
		}
		for _, tok := range seg.Tokens {
			ds.Tokens = append(ds.Tokens, asr.TranscriptToken(tok))
		}
		out.Segments = append(out.Segments, ds)
	}
	return out, nil
}

// WordsFromWire converts wire word timings back to the domain.
func WordsFromWire(words []WordTiming) []asr.WordTiming {
	out := make([]asr.WordTiming, 0, len(words))
	for _, w := range words {
		out = append(out, asr.WordTiming(w))
	}
	return out
}

// WordsToWire converts domain word timings to the wire shape.
func WordsToWire(words []asr.WordTiming) []WordTiming {
	out := make([]WordTiming, 0, len(words))
	for _, w := range words {
		out = append(out, WordTiming(w))
	}
	return out
}
