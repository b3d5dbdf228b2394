package asr

import "strings"

// Sample-rate bounds accepted anywhere audio enters the system.
const (
	MinSampleRateHz uint32 = 8000
	MaxSampleRateHz uint32 = 192000
)

// AudioChunk is a buffer of mono float32 PCM samples in [-1, 1] at a given
// sample rate.
type AudioChunk struct {
	SampleRateHz uint32    `json:"sample_rate_hz"`
	Samples      []float32 `json:"samples"`
}

// Validate checks the chunk against the domain invariants: at least one
// sample and a rate inside [MinSampleRateHz, MaxSampleRateHz].
func (c AudioChunk) Validate() error {
	if len(c.Samples) == 0 {
		return InvalidInput("samples must contain at least one frame")
	}
	if c.SampleRateHz < MinSampleRateHz || c.SampleRateHz > MaxSampleRateHz {
		return InvalidInput("sample_rate_hz must be between 8000 and 192000")
	}
	return nil
}

// DurationMs returns the chunk length in whole milliseconds. Zero-rate
// chunks report zero rather than dividing by zero.
func (c AudioChunk) DurationMs() uint64 {
	if c.SampleRateHz == 0 {
		return 0
	}
	return uint64(len(c.Samples)) * 1000 / uint64(c.SampleRateHz)
}

// TranscriptToken is a decoded token with millisecond timing and the
// decoder's confidence for it.
type TranscriptToken struct {
	Text       string  `json:"text"`
	StartMs    uint64  `json:"start_ms"`
	EndMs      uint64  `json:"end_ms"`
	Confidence float32 `json:"confidence"`
}

// TranscriptSegment is a contiguous decoded span with its tokens.
type TranscriptSegment struct {
	Text    string            `json:"text"`
	StartMs uint64            `json:"start_ms"`
	EndMs   uint64            `json:"end_ms"`
	Tokens  []TranscriptToken `json:"tokens"`
}

// Transcript is the full decoder output for one audio buffer.
type Transcript struct {
	Language LanguageTag         `json:"language"`
	Segments []TranscriptSegment `json:"segments"`
}

// FlattenText joins the segment texts into a single line: each segment text
// is whitespace-trimmed, empty segments are skipped, and the survivors are
// joined with single spaces.
func (t Transcript) FlattenText() string {
	parts := make([]string, 0, len(t.Segments))
	for _, seg := range t.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, " ")
}

// WordTiming is one aligned word with millisecond boundaries and an
// alignment confidence.
type WordTiming struct {
	Word       string  `json:"word"`
	StartMs    uint64  `json:"start_ms"`
	EndMs      uint64  `json:"end_ms"`
	Confidence float32 `json:"confidence"`
}
