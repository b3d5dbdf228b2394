// Package align implements word-level forced alignment. The heuristic
// fallback aligner derives word timings from transcript tokens when they
// exist and distributes segment time evenly over whitespace-split words
// otherwise; a wav2vec2-backed aligner can drop in behind the same
// interface.
package align

import (
	"context"
	"strings"

	"github.com/voxalys/voxalys/internal/pipeline"
	"github.com/voxalys/voxalys/pkg/asr"
)

// Aligner produces word timings for a transcript over its audio.
type Aligner interface {
	Align(ctx context.Context, audio asr.AudioChunk, transcript asr.Transcript) ([]asr.WordTiming, error)
}

// fallbackConfidence is assigned to words timed by even distribution,
// where no token-level evidence backs the boundary.
const fallbackConfidence = 0.8

// FallbackAligner is the heuristic aligner used when no acoustic alignment
// model is available.
type FallbackAligner struct {
	minWordDurationMs uint64
}

var _ Aligner = (*FallbackAligner)(nil)

// NewFallbackAligner returns a heuristic aligner enforcing the given floor
// on word durations.
func NewFallbackAligner(minWordDurationMs uint64) *FallbackAligner {
	return &FallbackAligner{minWordDurationMs: minWordDurationMs}
}

// Align derives word timings per segment: one word per usable token when
// the segment has tokens, otherwise an even split of the segment over its
// whitespace-separated words.
func (a *FallbackAligner) Align(_ context.Context, _ asr.AudioChunk, transcript asr.Transcript) ([]asr.WordTiming, error) {
	var words []asr.WordTiming
	for _, seg := range transcript.Segments {
		if len(seg.Tokens) > 0 {
			words = append(words, a.wordsFromTokens(seg)...)
			continue
		}
		words = append(words, a.wordsFromText(seg)...)
	}
	return words, nil
}

// wordsFromTokens maps each non-empty, non-control token to one word,
// stretching the end to honour the minimum word duration.
func (a *FallbackAligner) wordsFromTokens(seg asr.TranscriptSegment) []asr.WordTiming {
	words := make([]asr.WordTiming, 0, len(seg.Tokens))
	for _, tok := range seg.Tokens {
		text := strings.TrimSpace(tok.Text)
		if text == "" || isControlToken(text) {
			continue
		}
		end := tok.EndMs
		if min := tok.StartMs + a.minWordDurationMs; end < min {
			end = min
		}
		words = append(words, asr.WordTiming{
			Word:       text,
			StartMs:    tok.StartMs,
			EndMs:      end,
			Confidence: tok.Confidence,
		})
	}
	return words
}

// wordsFromText splits the segment text on whitespace and spreads the
// segment duration evenly. The first word keeps its full slot; later words
// end at half a slot (floored by the minimum duration), which biases
// boundaries toward word onsets.
func (a *FallbackAligner) wordsFromText(seg asr.TranscriptSegment) []asr.WordTiming {
	fields := strings.Fields(seg.Text)
	if len(fields) == 0 {
		return nil
	}
	each := (seg.EndMs - seg.StartMs) / uint64(len(fields))
	if each < a.minWordDurationMs {
		each = a.minWordDurationMs
	}
	words := make([]asr.WordTiming, 0, len(fields))
	for i, word := range fields {
		start := seg.StartMs + uint64(i)*each
		var end uint64
		if i == 0 {
			end = start + each
		} else {
			end = start + each/2
			if min := start + a.minWordDurationMs; end < min {
				end = min
			}
		}
		words = append(words, asr.WordTiming{
			Word:       word,
			StartMs:    start,
			EndMs:      end,
			Confidence: fallbackConfidence,
		})
	}
	return words
}

// isControlToken reports whether text is a whisper control marker such as
// "[_BEG_]".
func isControlToken(text string) bool {
	return strings.HasPrefix(text, "[_") && strings.HasSuffix(text, "]")
}

// Stage runs an aligner over the current transcript and publishes the word
// timings.
type Stage struct {
	aligner Aligner
}

var _ pipeline.Stage = (*Stage)(nil)

// NewStage returns the alignment stage over the given aligner.
func NewStage(aligner Aligner) *Stage {
	return &Stage{aligner: aligner}
}

func (*Stage) Name() string { return "wav2vec2_alignment" }

func (s *Stage) Execute(ctx context.Context, pc *asr.PipelineContext) error {
	if pc.Transcript == nil {
		return asr.Internal("no transcript available")
	}
	words, err := s.aligner.Align(ctx, pc.Audio, *pc.Transcript)
	if err != nil {
		return err
	}
	pc.AlignedWords = words
	pc.AppendEvent(asr.AlignmentUpdateEvent{Words: words})
	return nil
}
