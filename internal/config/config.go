// Package config defines the Voxalys YAML configuration schema, defaults
// and validation. Unknown keys are rejected at decode time so typos fail
// fast instead of silently falling back to defaults.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/voxalys/voxalys/internal/pipeline"
	"github.com/voxalys/voxalys/pkg/asr"
)

// Config is the root configuration document.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	Asr       AsrConfig       `yaml:"asr"`
	Alignment AlignmentConfig `yaml:"alignment"`
	Pipeline  *PipelineConfig `yaml:"pipeline"`
	Streaming StreamingConfig `yaml:"streaming"`
	Endpoints EndpointsConfig `yaml:"endpoints"`
}

// ServerConfig configures the HTTP/websocket listener and logging.
type ServerConfig struct {
	// ListenAddr is the address the HTTP server binds. Default ":8080".
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel is one of debug, info, warn, error. Default "info".
	LogLevel string `yaml:"log_level"`
}

// AudioConfig configures inbound audio handling.
type AudioConfig struct {
	// DefaultSampleRateHz is assumed for requests that omit a rate.
	// Default 16000.
	DefaultSampleRateHz uint32 `yaml:"default_sample_rate_hz"`

	// TargetSampleRateHz, when set, asks the remote audio service to
	// resample to this rate. Zero (the default) keeps the input rate.
	// Builtin mode ignores it; use the resample plugin instead.
	TargetSampleRateHz uint32 `yaml:"target_sample_rate_hz"`
}

// AsrConfig configures the whisper transcription backend.
type AsrConfig struct {
	// ModelPath is the ggml model file. Default "models/ggml-base.bin".
	ModelPath string `yaml:"model_path"`

	// DefaultLanguage is used when a request carries no hint. "auto" or
	// empty means auto-detect. Default "auto".
	DefaultLanguage string `yaml:"default_language"`

	// SupportedLanguages is advertised through the capability surface.
	// Default ["fr", "en"].
	SupportedLanguages []string `yaml:"supported_languages"`

	// Temperature is the decode sampling temperature. Default 0.
	Temperature float32 `yaml:"temperature"`

	// Threads is the decoder thread count. Default 4.
	Threads uint `yaml:"threads"`

	// DtwPreset selects the token-timestamp alignment heads preset.
	// Default "base".
	DtwPreset string `yaml:"dtw_preset"`

	// DtwMemSize is the DTW working memory. Values below 1 MiB are treated
	// as a MiB count and scaled up. Default 128 (= 128 MiB).
	DtwMemSize uint64 `yaml:"dtw_mem_size"`
}

// NormalizedDtwMemSize returns DtwMemSize in bytes, scaling raw values
// below 1 MiB up by 1 MiB.
func (c AsrConfig) NormalizedDtwMemSize() uint64 {
	const mib = 1024 * 1024
	if c.DtwMemSize > 0 && c.DtwMemSize < mib {
		return c.DtwMemSize * mib
	}
	return c.DtwMemSize
}

// AlignmentConfig configures word-level alignment.
type AlignmentConfig struct {
	// Enabled is the legacy toggle: when the pipeline block is absent it
	// decides whether the default definition carries an alignment step.
	// Default true.
	Enabled *bool `yaml:"enabled"`

	// MinWordDurationMs is the floor for aligned word lengths. Default 40.
	MinWordDurationMs uint64 `yaml:"min_word_duration_ms"`
}

// AlignmentEnabled resolves the legacy toggle with its default.
func (c AlignmentConfig) AlignmentEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Pipeline execution modes.
const (
	ModeBuiltin = "builtin"
	ModeRemote  = "remote"
)

// PipelineConfig selects and defines pipelines.
type PipelineConfig struct {
	// Mode is "builtin" (in-process stages) or "remote" (gRPC sibling
	// services). Default "builtin".
	Mode string `yaml:"mode"`

	// Selected names the definition to run.
	Selected string `yaml:"selected"`

	// Definitions maps names to pipeline definitions.
	Definitions map[string]DefinitionConfig `yaml:"definitions"`

	// Plugins configures the built-in stage plugins.
	Plugins PluginsConfig `yaml:"plugins"`
}

// DefinitionConfig is the YAML shape of one pipeline definition.
type DefinitionConfig struct {
	Pre           []StepRef `yaml:"pre"`
	Transcription StepRef   `yaml:"transcription"`
	Post          []StepRef `yaml:"post"`
}

// Definition converts the YAML shape into the runtime definition, rejecting
// empty step names.
func (d DefinitionConfig) Definition() (pipeline.Definition, error) {
	conv := func(refs []StepRef) ([]pipeline.StepSpec, error) {
		specs := make([]pipeline.StepSpec, 0, len(refs))
		for _, ref := range refs {
			if ref.Name == "" {
				return nil, asr.Internal("pipeline step name cannot be empty")
			}
			specs = append(specs, pipeline.StepSpec{Name: ref.Name})
		}
		return specs, nil
	}
	pre, err := conv(d.Pre)
	if err != nil {
		return pipeline.Definition{}, err
	}
	post, err := conv(d.Post)
	if err != nil {
		return pipeline.Definition{}, err
	}
	if d.Transcription.Name == "" {
		return pipeline.Definition{}, asr.Internal("pipeline definition requires a transcription step")
	}
	return pipeline.Definition{
		Pre:           pre,
		Transcription: pipeline.StepSpec{Name: d.Transcription.Name},
		Post:          post,
	}, nil
}

// StepRef names a pipeline step. In YAML it may be written as a bare string
// or as a mapping with a name key:
//
//	pre:
//	  - audio_clamp
//	  - name: resample
type StepRef struct {
	Name string `yaml:"name"`
}

// UnmarshalYAML accepts both the scalar and the mapping form.
func (s *StepRef) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		return value.Decode(&s.Name)
	case yaml.MappingNode:
		var obj struct {
			Name string `yaml:"name"`
		}
		if err := value.Decode(&obj); err != nil {
			return err
		}
		s.Name = obj.Name
		return nil
	default:
		return fmt.Errorf("config: pipeline step must be a string or a {name: ...} mapping (line %d)", value.Line)
	}
}

// PluginsConfig configures built-in stage plugins.
type PluginsConfig struct {
	Resample ResamplePluginConfig `yaml:"resample"`
	Wav2Vec2 Wav2Vec2Config       `yaml:"wav2vec2"`
}

// ResamplePluginConfig configures the resample plugin. The plugin must be
// explicitly enabled before a definition may reference it.
type ResamplePluginConfig struct {
	Enabled            bool   `yaml:"enabled"`
	TargetSampleRateHz uint32 `yaml:"target_sample_rate_hz"`
}

// Wav2Vec2Config locates the alignment model artifacts. The paths are
// retained for operators even when the fallback aligner is in use.
type Wav2Vec2Config struct {
	ModelPath  string `yaml:"model_path"`
	ConfigPath string `yaml:"config_path"`
	VocabPath  string `yaml:"vocab_path"`
	Device     string `yaml:"device"`
}

// StreamingConfig configures the websocket streaming driver.
type StreamingConfig struct {
	// MaxMessageBytes caps inbound websocket messages. Default 64 MiB.
	MaxMessageBytes int64 `yaml:"max_message_bytes"`
}

// EndpointsConfig locates the sibling services used in remote mode.
type EndpointsConfig struct {
	Audio     EndpointConfig `yaml:"audio"`
	Asr       EndpointConfig `yaml:"asr"`
	Alignment EndpointConfig `yaml:"alignment"`
}

// EndpointConfig describes one gRPC endpoint.
type EndpointConfig struct {
	Host                    string `yaml:"host"`
	Port                    uint16 `yaml:"port"`
	TLSEnabled              bool   `yaml:"tls_enabled"`
	ConnectTimeoutMs        uint64 `yaml:"connect_timeout_ms"`
	RequestTimeoutMs        uint64 `yaml:"request_timeout_ms"`
	MaxDecodingMessageBytes int    `yaml:"max_decoding_message_bytes"`
	MaxEncodingMessageBytes int    `yaml:"max_encoding_message_bytes"`
}

// Target returns the host:port dial target.
func (e EndpointConfig) Target() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// ConnectTimeout returns the connect timeout as a duration, defaulting to
// 5s when unset.
func (e EndpointConfig) ConnectTimeout() time.Duration {
	if e.ConnectTimeoutMs == 0 {
		return 5 * time.Second
	}
	return time.Duration(e.ConnectTimeoutMs) * time.Millisecond
}

// RequestTimeout returns the per-RPC timeout as a duration, defaulting to
// 30s when unset.
func (e EndpointConfig) RequestTimeout() time.Duration {
	if e.RequestTimeoutMs == 0 {
		return 30 * time.Second
	}
	return time.Duration(e.RequestTimeoutMs) * time.Millisecond
}

// Default returns a configuration with every field at its documented
// default.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   "info",
		},
		Audio: AudioConfig{
			DefaultSampleRateHz: 16000,
		},
		Asr: AsrConfig{
			ModelPath:          "models/ggml-base.bin",
			DefaultLanguage:    "auto",
			SupportedLanguages: []string{"fr", "en"},
			Temperature:        0,
			Threads:            4,
			DtwPreset:          "base",
			DtwMemSize:         128,
		},
		Alignment: AlignmentConfig{
			MinWordDurationMs: 40,
		},
		Streaming: StreamingConfig{
			MaxMessageBytes: 64 << 20,
		},
	}
}

// legacyDefaultDefinition is the pipeline used when no pipeline block is
// configured: clamp, transcribe, then align unless alignment is disabled.
func legacyDefaultDefinition(alignmentEnabled bool) DefinitionConfig {
	def := DefinitionConfig{
		Pre:           []StepRef{{Name: "audio_clamp"}},
		Transcription: StepRef{Name: "whisper_transcription"},
	}
	if alignmentEnabled {
		def.Post = []StepRef{{Name: "wav2vec2_alignment"}}
	}
	return def
}

// Mode returns the configured pipeline mode, defaulting to builtin.
func (c *Config) Mode() string {
	if c.Pipeline == nil || c.Pipeline.Mode == "" {
		return ModeBuiltin
	}
	return c.Pipeline.Mode
}

// SelectedDefinition resolves the definition to run: the selected entry of
// the pipeline block when present, otherwise the legacy default derived
// from the alignment toggle.
func (c *Config) SelectedDefinition() (DefinitionConfig, error) {
	if c.Pipeline == nil || len(c.Pipeline.Definitions) == 0 {
		return legacyDefaultDefinition(c.Alignment.AlignmentEnabled()), nil
	}
	selected := c.Pipeline.Selected
	if selected == "" {
		return DefinitionConfig{}, fmt.Errorf("config: pipeline.selected is required when definitions are configured")
	}
	def, ok := c.Pipeline.Definitions[selected]
	if !ok {
		return DefinitionConfig{}, fmt.Errorf("config: pipeline.selected %q not found in pipeline.definitions", selected)
	}
	return def, nil
}

// Validate checks cross-field constraints the YAML decoder cannot express.
func (c *Config) Validate() error {
	switch c.Server.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: server.log_level must be one of debug, info, warn, error (got %q)", c.Server.LogLevel)
	}
	if r := c.Audio.DefaultSampleRateHz; r < asr.MinSampleRateHz || r > asr.MaxSampleRateHz {
		return fmt.Errorf("config: audio.default_sample_rate_hz must be between %d and %d", asr.MinSampleRateHz, asr.MaxSampleRateHz)
	}
	if r := c.Audio.TargetSampleRateHz; r != 0 && (r < asr.MinSampleRateHz || r > asr.MaxSampleRateHz) {
		return fmt.Errorf("config: audio.target_sample_rate_hz must be between %d and %d when set", asr.MinSampleRateHz, asr.MaxSampleRateHz)
	}
	switch c.Mode() {
	case ModeBuiltin, ModeRemote:
	default:
		return fmt.Errorf("config: pipeline.mode must be %q or %q (got %q)", ModeBuiltin, ModeRemote, c.Pipeline.Mode)
	}
	if c.Streaming.MaxMessageBytes <= 0 {
		return fmt.Errorf("config: streaming.max_message_bytes must be positive")
	}
	if _, err := c.SelectedDefinition(); err != nil {
		return err
	}
	return nil
}
