// This file contains the Decoder implementation backed by the whisper.cpp
// CGO bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/voxalys/voxalys/pkg/asr"
)

// Compile-time assertion that NativeDecoder satisfies Decoder.
var _ Decoder = (*NativeDecoder)(nil)

// NativeDecoder runs whisper.cpp inference through the CGO bindings. The
// model is loaded once at construction and shared by every decode; each
// decode gets a fresh whisper context because contexts are not reentrant.
type NativeDecoder struct {
	model   whisperlib.Model
	threads uint
}

// NativeOption is a functional option for configuring a NativeDecoder.
type NativeOption func(*NativeDecoder)

// WithThreads sets the decoder thread count. Defaults to 4.
func WithThreads(n uint) NativeOption {
	return func(d *NativeDecoder) {
		if n > 0 {
			d.threads = n
		}
	}
}

// NewNative loads the ggml model at modelPath. The caller must call Close
// when the decoder is no longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeDecoder, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	d := &NativeDecoder{model: model, threads: 4}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// Close releases the whisper model.
func (d *NativeDecoder) Close() error {
	if d.model != nil {
		return d.model.Close()
	}
	return nil
}

// Decode runs inference over samples and returns the raw segments with
// token-level timestamp hints in 10 ms units.
func (d *NativeDecoder) Decode(ctx context.Context, samples []float32, language string) ([]RawSegment, error) {
	if err := ctx.Err(); err != nil {
		return nil, asr.Internalf("decode cancelled: %v", err)
	}

	wctx, err := d.model.NewContext()
	if err != nil {
		return nil, asr.ExternalService("whisper", fmt.Sprintf("failed to create decode context: %v", err))
	}
	wctx.SetThreads(d.threads)
	wctx.SetTokenTimestamps(true)
	if language == "" {
		language = "auto"
	}
	if err := wctx.SetLanguage(language); err != nil {
		return nil, asr.ExternalService("whisper", fmt.Sprintf("unsupported language %q: %v", language, err))
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, asr.ExternalService("whisper", fmt.Sprintf("full decode failed: %v", err))
	}

	var segments []RawSegment
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, asr.ExternalService("whisper", fmt.Sprintf("failed to read segment: %v", err))
		}
		raw := RawSegment{
			Text:   seg.Text,
			Start:  centis(seg.Start),
			End:    centis(seg.End),
			Tokens: make([]RawToken, 0, len(seg.Tokens)),
		}
		for _, tok := range seg.Tokens {
			raw.Tokens = append(raw.Tokens, RawToken{
				Text:      tok.Text,
				P:         tok.P,
				StartHint: centis(tok.Start),
				EndHint:   centis(tok.End),
			})
		}
		segments = append(segments, raw)
	}
	return segments, nil
}

// centis converts a binding duration into whisper's native 10 ms units.
func centis(d time.Duration) int64 {
	return int64(d / (10 * time.Millisecond))
}
