package generator

import "github.com/rmaia/sitesmith/internal/interfaces"

// Built-in backends self-register so callers only need the factory.
func init() {
	RegisterBackend(BackendAnthropic, func(cfg Config, logger interfaces.Logger) (interfaces.Generator, error) {
		return NewAnthropicClient(cfg, logger, nil)
	})
	RegisterBackend(BackendGemini, func(cfg Config, logger interfaces.Logger) (interfaces.Generator, error) {
		return NewGeminiClient(cfg, logger, nil)
	})
}
