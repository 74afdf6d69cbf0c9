package interfaces

import "context"

// Generator produces website markup from a natural-language prompt.
// Implementations call an external text-generation model and must be safe
// for concurrent use; they hold no per-site state.
type Generator interface {
	// Generate returns the raw model output for the given prompt.
	// Callers are expected to run the result through generator.CleanHTML
	// before persisting or publishing it.
	Generate(ctx context.Context, prompt string) (string, error)

	Close() error
}
