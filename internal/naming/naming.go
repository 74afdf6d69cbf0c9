// Package naming derives subdomain slugs from free-text prompts.
package naming

import (
	"context"
	"fmt"
	"strings"

	"github.com/rmaia/sitesmith/internal/interfaces"
	"github.com/rmaia/sitesmith/internal/logging"
)

// maxSlugLen bounds the slug so the full hostname stays comfortably short.
const maxSlugLen = 15

// Service derives short URL-safe identifiers via the generation model, with
// a deterministic fallback so DeriveName never fails and its result always
// matches [a-z0-9]{1,15}.
type Service struct {
	gen    interfaces.Generator
	logger logging.Logger
}

// NewService wires a naming service on top of a generator.
func NewService(gen interfaces.Generator, logger logging.Logger) *Service {
	return &Service{
		gen:    gen,
		logger: logger.With(logging.Field{Key: "component", Value: "naming"}),
	}
}

// DeriveName asks the model for a short identifier for the site described by
// prompt, then sanitizes the answer. If the model call fails or sanitizing
// leaves nothing, the same transform is applied to the prompt itself.
func (s *Service) DeriveName(ctx context.Context, prompt string) string {
	instruction := fmt.Sprintf(
		"Suggest a single short name for a website about: %q. "+
			"Use at most %d characters, lowercase letters and digits only, no spaces. "+
			"Answer with the name and nothing else.", prompt, maxSlugLen)

	if s.gen != nil {
		suggestion, err := s.gen.Generate(ctx, instruction)
		if err == nil {
			if slug := Sanitize(suggestion); slug != "" {
				return slug
			}
			s.logger.Warn("model suggestion sanitized to nothing, falling back to prompt",
				logging.Field{Key: "suggestion", Value: suggestion})
		} else {
			s.logger.Warn("name derivation call failed, falling back to prompt",
				logging.Field{Key: "error", Value: err.Error()})
		}
	}

	if slug := Sanitize(prompt); slug != "" {
		return slug
	}
	// Prompt had no usable characters at all.
	return "site"
}

// Sanitize lower-cases s, strips everything outside [a-z0-9] and truncates
// to the slug length limit. It may return "".
func Sanitize(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			if b.Len() == maxSlugLen {
				break
			}
		}
	}
	return b.String()
}
