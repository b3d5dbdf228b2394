package config_test

import (
	"strings"
	"testing"

	"github.com/voxalys/voxalys/internal/config"
)

func TestDefaults(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader(empty): %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" || cfg.Server.LogLevel != "info" {
		t.Errorf("server defaults = %+v", cfg.Server)
	}
	if cfg.Audio.DefaultSampleRateHz != 16000 {
		t.Errorf("default sample rate = %d, want 16000", cfg.Audio.DefaultSampleRateHz)
	}
	if cfg.Asr.ModelPath != "models/ggml-base.bin" || cfg.Asr.DefaultLanguage != "auto" {
		t.Errorf("asr defaults = %+v", cfg.Asr)
	}
	if cfg.Asr.Threads != 4 || cfg.Asr.DtwPreset != "base" || cfg.Asr.DtwMemSize != 128 {
		t.Errorf("asr decode defaults = %+v", cfg.Asr)
	}
	if got := len(cfg.Asr.SupportedLanguages); got != 2 {
		t.Errorf("supported languages = %v", cfg.Asr.SupportedLanguages)
	}
	if cfg.Alignment.MinWordDurationMs != 40 || !cfg.Alignment.AlignmentEnabled() {
		t.Errorf("alignment defaults = %+v", cfg.Alignment)
	}
	if cfg.Streaming.MaxMessageBytes != 64<<20 {
		t.Errorf("max message bytes = %d, want 64 MiB", cfg.Streaming.MaxMessageBytes)
	}
	if cfg.Mode() != config.ModeBuiltin {
		t.Errorf("default mode = %q", cfg.Mode())
	}
}

func TestNormalizedDtwMemSize(t *testing.T) {
	tests := []struct {
		raw  uint64
		want uint64
	}{
		{128, 128 << 20},
		{1, 1 << 20},
		{0, 0},
		{1 << 20, 1 << 20},
		{256 << 20, 256 << 20},
	}
	for _, tc := range tests {
		c := config.AsrConfig{DtwMemSize: tc.raw}
		if got := c.NormalizedDtwMemSize(); got != tc.want {
			t.Errorf("NormalizedDtwMemSize(%d) = %d, want %d", tc.raw, got, tc.want)
		}
	}
}

func TestStepRefBothForms(t *testing.T) {
	doc := `
pipeline:
  selected: custom
  definitions:
    custom:
      pre:
        - audio_clamp
        - name: resample
      transcription: whisper_transcription
      post:
        - name: wav2vec2_alignment
`
	cfg, err := config.LoadFromReader(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	defCfg, err := cfg.SelectedDefinition()
	if err != nil {
		t.Fatalf("SelectedDefinition: %v", err)
	}
	def, err := defCfg.Definition()
	if err != nil {
		t.Fatalf("Definition: %v", err)
	}
	names := []string{}
	for _, s := range def.OrderedSteps() {
		names = append(names, s.Name)
	}
	want := []string{"audio_clamp", "resample", "whisper_transcription", "wav2vec2_alignment"}
	if len(names) != len(want) {
		t.Fatalf("steps = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("step[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestLegacyDefaultPipeline(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader("alignment:\n  enabled: false\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	defCfg, err := cfg.SelectedDefinition()
	if err != nil {
		t.Fatalf("SelectedDefinition: %v", err)
	}
	if len(defCfg.Post) != 0 {
		t.Errorf("post with alignment disabled = %v, want none", defCfg.Post)
	}

	cfg, err = config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	defCfg, err = cfg.SelectedDefinition()
	if err != nil {
		t.Fatalf("SelectedDefinition: %v", err)
	}
	if len(defCfg.Post) != 1 || defCfg.Post[0].Name != "wav2vec2_alignment" {
		t.Errorf("default post = %v, want wav2vec2_alignment", defCfg.Post)
	}
	if defCfg.Transcription.Name != "whisper_transcription" || len(defCfg.Pre) != 1 || defCfg.Pre[0].Name != "audio_clamp" {
		t.Errorf("default definition = %+v", defCfg)
	}
}

func TestValidateErrors(t *testing.T) {
	docs := map[string]string{
		"unknown key":       "serverr:\n  listen_addr: x\n",
		"bad log level":     "server:\n  log_level: loud\n",
		"bad mode":          "pipeline:\n  mode: sideways\n",
		"bad sample rate":   "audio:\n  default_sample_rate_hz: 100\n",
		"bad target rate":   "audio:\n  target_sample_rate_hz: 100\n",
		"missing selected":  "pipeline:\n  definitions:\n    a:\n      transcription: whisper_transcription\n",
		"unknown selected":  "pipeline:\n  selected: b\n  definitions:\n    a:\n      transcription: whisper_transcription\n",
		"bad message bytes": "streaming:\n  max_message_bytes: 0\n",
	}
	for name, doc := range docs {
		if _, err := config.LoadFromReader(strings.NewReader(doc)); err == nil {
			t.Errorf("%s: want error", name)
		}
	}
}

func TestEndpointHelpers(t *testing.T) {
	e := config.EndpointConfig{Host: "asr.local", Port: 7051, ConnectTimeoutMs: 250, RequestTimeoutMs: 1500}
	if e.Target() != "asr.local:7051" {
		t.Errorf("Target() = %q", e.Target())
	}
	if e.ConnectTimeout().Milliseconds() != 250 || e.RequestTimeout().Milliseconds() != 1500 {
		t.Errorf("timeouts = %v / %v", e.ConnectTimeout(), e.RequestTimeout())
	}
	var zero config.EndpointConfig
	if zero.ConnectTimeout().Seconds() != 5 || zero.RequestTimeout().Seconds() != 30 {
		t.Errorf("zero timeouts = %v / %v", zero.ConnectTimeout(), zero.RequestTimeout())
	}
}
