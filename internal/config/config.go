// Package config provides the configuration schema and loader for the
// Causerie tutoring server.
package config

// LogLevel controls log verbosity for the Causerie server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Causerie.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Tutor     TutorConfig     `yaml:"tutor"`
}

// ServerConfig holds network and logging settings for the Causerie server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// StaticDir is a directory of static client assets served at the root
	// path. Empty disables static serving.
	StaticDir string `yaml:"static_dir"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage.
type ProvidersConfig struct {
	// STT configures the transcription backend.
	STT ProviderEntry `yaml:"stt"`

	// TTS configures the synthesis backend.
	TTS ProviderEntry `yaml:"tts"`

	// LLM configures the primary reply-generation backend.
	LLM ProviderEntry `yaml:"llm"`

	// FallbackLLM optionally configures a secondary reply-generation backend
	// tried when the primary fails or its circuit breaker is open. The canned
	// drill fallback is always the last resort regardless of this setting.
	FallbackLLM ProviderEntry `yaml:"fallback_llm"`
}

// ProviderEntry is the common configuration block shared by all provider
// kinds.
type ProviderEntry struct {
	// Name selects the provider implementation (e.g., "openai", "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini",
	// "nova-3", "aura-2-thalia-en").
	Model string `yaml:"model"`
}

// TutorConfig shapes the tutoring behaviour of a session.
type TutorConfig struct {
	// Language is the transcription language tag. Default: "fr".
	Language string `yaml:"language"`

	// Voice is the TTS voice identifier. Empty selects the provider default.
	Voice string `yaml:"voice"`

	// Temperature is the LLM sampling temperature in [0, 2]. Zero uses the
	// built-in default.
	Temperature float64 `yaml:"temperature"`

	// MaxTokens caps the reply length. Zero uses the built-in default.
	MaxTokens int `yaml:"max_tokens"`
}
