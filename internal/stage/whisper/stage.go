package whisper

import (
	"context"
	"strings"
	"sync"

	"github.com/voxalys/voxalys/internal/pipeline"
	"github.com/voxalys/voxalys/pkg/asr"
)

// Stage is the built-in whisper transcription stage. Decodes the working
// audio buffer, derives millisecond token timings and publishes the final
// transcript on the context.
type Stage struct {
	defaultLanguage string

	// mu serializes decoder calls; whisper contexts are not reentrant.
	mu  sync.Mutex
	dec Decoder
}

var _ pipeline.Stage = (*Stage)(nil)

// NewStage returns a transcription stage over dec. defaultLanguage is used
// when the context carries no hint; empty or "auto" means auto-detect.
func NewStage(dec Decoder, defaultLanguage string) *Stage {
	return &Stage{dec: dec, defaultLanguage: defaultLanguage}
}

func (*Stage) Name() string { return "whisper_transcription" }

func (s *Stage) Execute(ctx context.Context, pc *asr.PipelineContext) error {
	lang := s.resolveLanguage(pc.LanguageHint)

	s.mu.Lock()
	raw, err := s.dec.Decode(ctx, pc.Audio.Samples, lang)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	transcript := buildTranscript(raw, languageOf(pc.LanguageHint))
	pc.Transcript = &transcript
	pc.AppendEvent(asr.FinalTranscriptEvent{Transcript: transcript})
	return nil
}

// resolveLanguage picks the decoder language code: the context hint wins,
// otherwise the configured default applies, and auto-detect is the empty
// string.
func (s *Stage) resolveLanguage(hint *asr.LanguageTag) string {
	if hint != nil {
		code, ok := hint.DecodeHint()
		if !ok {
			return ""
		}
		return code
	}
	def := strings.ToLower(strings.TrimSpace(s.defaultLanguage))
	if def == "" || def == "auto" {
		return ""
	}
	return def
}

func languageOf(hint *asr.LanguageTag) asr.LanguageTag {
	if hint != nil {
		return *hint
	}
	return asr.LanguageAuto()
}

// buildTranscript converts raw decoder output into the domain transcript.
// Decoder timestamps arrive in 10 ms units; segments with negative
// boundaries are dropped.
func buildTranscript(raw []RawSegment, lang asr.LanguageTag) asr.Transcript {
	segments := make([]asr.TranscriptSegment, 0, len(raw))
	for _, seg := range raw {
		if seg.Start < 0 || seg.End < 0 {
			continue
		}
		segments = append(segments, buildSegment(seg))
	}
	return asr.Transcript{Language: lang, Segments: segments}
}

func buildSegment(seg RawSegment) asr.TranscriptSegment {
	segStart := uint64(seg.Start) * 10
	segEnd := uint64(seg.End) * 10
	if segEnd < segStart {
		segEnd = segStart
	}

	out := asr.TranscriptSegment{
		Text:    seg.Text,
		StartMs: segStart,
		EndMs:   segEnd,
		Tokens:  make([]asr.TranscriptToken, 0, len(seg.Tokens)),
	}

	n := uint64(len(seg.Tokens))
	if n == 0 {
		return out
	}
	span := (segEnd - segStart) / n
	if span < 1 {
		span = 1
	}

	for i, tok := range seg.Tokens {
		fallbackStart := segStart + uint64(i)*span
		fallbackEnd := fallbackStart + span
		if fallbackEnd > segEnd {
			fallbackEnd = segEnd
		}

		start := fallbackStart
		if tok.StartHint >= 0 {
			start = uint64(tok.StartHint) * 10
		}
		start = clamp(start, segStart, segEnd)

		end, ok := tokenEnd(tok, seg.Tokens, i, start)
		if !ok {
			end = fallbackEnd
		}
		// A token is never zero-length, even at the segment edge.
		maxEnd := segEnd
		if maxEnd < start+1 {
			maxEnd = start + 1
		}
		end = clamp(end, start+1, maxEnd)

		out.Tokens = append(out.Tokens, asr.TranscriptToken{
			Text:       tok.Text,
			StartMs:    start,
			EndMs:      end,
			Confidence: tok.P,
		})
	}
	return out
}

// tokenEnd picks the first usable end source: the token's own end hint,
// then the next token's start hint. Both must land strictly after start.
func tokenEnd(tok RawToken, tokens []RawToken, i int, start uint64) (uint64, bool) {
	if tok.EndHint >= 0 {
		if end := uint64(tok.EndHint) * 10; end > start {
			return end, true
		}
	}
	if i+1 < len(tokens) && tokens[i+1].StartHint >= 0 {
		if end := uint64(tokens[i+1].StartHint) * 10; end > start {
			return end, true
		}
	}
	return 0, false
}

func clamp(v, lo, hi uint64) uint64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
