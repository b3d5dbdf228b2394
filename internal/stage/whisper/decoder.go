// Package whisper implements the built-in transcription stage on top of the
// whisper.cpp Go bindings. The decoding backend sits behind the [Decoder]
// seam so the millisecond timing derivation can be tested without a model.
package whisper

import "context"

// RawToken is one decoder token before timing derivation. Hints are in
// 10 ms units; negative values mean the decoder produced no hint.
type RawToken struct {
	Text      string
	P         float32
	StartHint int64
	EndHint   int64
}

// RawSegment is one decoder segment with 10 ms unit boundaries. Segments
// with a negative boundary are dropped during derivation.
type RawSegment struct {
	Text   string
	Start  int64
	End    int64
	Tokens []RawToken
}

// Decoder runs speech recognition over a float32 mono PCM buffer.
// language is a lowercase code such as "fr"; empty means auto-detect.
// Implementations need not be safe for concurrent use; the stage
// serializes calls.
type Decoder interface {
	Decode(ctx context.Context, samples []float32, language string) ([]RawSegment, error)
}
