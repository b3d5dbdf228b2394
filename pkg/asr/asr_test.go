package asr_test

import (
	"testing"

	"github.com/voxalys/voxalys/pkg/asr"
)

func TestDomainErrorMessages(t *testing.T) {
	tests := []struct {
		err  *asr.DomainError
		want string
	}{
		{asr.InvalidInput("bad rate"), "invalid input: bad rate"},
		{asr.Internal("boom"), "internal error: boom"},
		{asr.Internalf("step `%s` broke", "resample"), "internal error: step `resample` broke"},
		{asr.ExternalService("asr", "gRPC request timed out"), "external service `asr` failed: gRPC request timed out"},
	}
	for _, tc := range tests {
		if got := tc.err.Error(); got != tc.want {
			t.Errorf("Error() = %q, want %q", got, tc.want)
		}
	}
}

func TestAudioChunkValidate(t *testing.T) {
	tests := []struct {
		name    string
		chunk   asr.AudioChunk
		wantErr bool
	}{
		{"ok", asr.AudioChunk{SampleRateHz: 16000, Samples: []float32{0}}, false},
		{"empty samples", asr.AudioChunk{SampleRateHz: 16000}, true},
		{"rate below floor", asr.AudioChunk{SampleRateHz: 7999, Samples: []float32{0}}, true},
		{"rate at floor", asr.AudioChunk{SampleRateHz: 8000, Samples: []float32{0}}, false},
		{"rate at ceiling", asr.AudioChunk{SampleRateHz: 192000, Samples: []float32{0}}, false},
		{"rate above ceiling", asr.AudioChunk{SampleRateHz: 192001, Samples: []float32{0}}, true},
	}
	for _, tc := range tests {
		err := tc.chunk.Validate()
		if (err != nil) != tc.wantErr {
			t.Errorf("%s: Validate() = %v, wantErr=%v", tc.name, err, tc.wantErr)
		}
	}
}

func TestFlattenText(t *testing.T) {
	tr := asr.Transcript{Segments: []asr.TranscriptSegment{
		{Text: "  hello "},
		{Text: "   "},
		{Text: ""},
		{Text: "world"},
	}}
	if got := tr.FlattenText(); got != "hello world" {
		t.Errorf("FlattenText() = %q, want %q", got, "hello world")
	}
	if got := (asr.Transcript{}).FlattenText(); got != "" {
		t.Errorf("FlattenText() on empty transcript = %q, want empty", got)
	}
}

func TestContextEvents(t *testing.T) {
	pc := asr.NewContext("s1", nil)
	pc.AppendEvent(asr.PartialTranscriptEvent{})
	pc.AppendEvent(asr.FinalTranscriptEvent{})
	if got := len(pc.Events()); got != 2 {
		t.Fatalf("Events() len = %d, want 2", got)
	}
	drained := pc.DrainEvents()
	if len(drained) != 2 {
		t.Fatalf("DrainEvents() len = %d, want 2", len(drained))
	}
	if _, ok := drained[0].(asr.PartialTranscriptEvent); !ok {
		t.Errorf("drained[0] = %T, want PartialTranscriptEvent", drained[0])
	}
	if got := len(pc.Events()); got != 0 {
		t.Errorf("Events() after drain = %d, want 0", got)
	}
}

func TestContextExtensions(t *testing.T) {
	pc := asr.NewContext("s1", nil)
	if err := pc.SetExtension(asr.ExtResampled, true); err != nil {
		t.Fatalf("SetExtension: %v", err)
	}
	var resampled bool
	ok, err := pc.Extension(asr.ExtResampled, &resampled)
	if err != nil || !ok || !resampled {
		t.Errorf("Extension = (%v, %v), value %v; want (true, nil), true", ok, err, resampled)
	}
	ok, err = pc.Extension("missing", &resampled)
	if ok || err != nil {
		t.Errorf("Extension on missing key = (%v, %v), want (false, nil)", ok, err)
	}
	if !pc.HasExtension(asr.ExtResampled) || pc.HasExtension("missing") {
		t.Error("HasExtension mismatch")
	}
}
