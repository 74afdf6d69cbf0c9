package generator

import "time"

// Backend identifiers registered out of the box.
const (
	BackendAnthropic = "anthropic"
	BackendGemini    = "gemini"
)

// Config selects and parameterizes a generation backend.
type Config struct {
	// Backend names the registered backend to construct ("anthropic" by default).
	Backend string `yaml:"backend"`

	// Model is the provider-side model identifier.
	Model string `yaml:"model"`

	// APIKey authenticates against the provider. Usually injected from the
	// environment rather than the config file.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider endpoint (tests point this at a local
	// httptest server).
	BaseURL string `yaml:"base_url"`

	// MaxTokens caps the model response size.
	MaxTokens int `yaml:"max_tokens"`

	// System overrides the default system instruction sent with every request.
	System string `yaml:"system"`

	// Timeout bounds a single generation call end to end.
	Timeout time.Duration `yaml:"timeout"`
}

// withDefaults fills zero values with working defaults.
func (c Config) withDefaults() Config {
	if c.Backend == "" {
		c.Backend = BackendAnthropic
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 22000
	}
	if c.Timeout <= 0 {
		c.Timeout = 120 * time.Second
	}
	return c
}
