// Package generator adapts external text-generation models into a single
// Generate(prompt) -> HTML contract. Backends register themselves by name;
// the orchestrator never knows which provider is behind the interface.
package generator

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rmaia/sitesmith/internal/interfaces"
)

// BackendConstructor constructs an interfaces.Generator given the config and logger.
type BackendConstructor func(cfg Config, logger interfaces.Logger) (interfaces.Generator, error)

var (
	mu       sync.RWMutex
	registry = map[string]BackendConstructor{}
)

// RegisterBackend registers a named backend constructor. Name is lower-cased
// internally. Calling RegisterBackend with the same name overwrites the previous
// constructor.
func RegisterBackend(name string, ctor BackendConstructor) {
	if name == "" || ctor == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	registry[strings.ToLower(name)] = ctor
}

// NewGenerator constructs the configured generation backend. It returns an
// error if the named backend has not been registered.
func NewGenerator(cfg Config, logger interfaces.Logger) (interfaces.Generator, error) {
	cfg = cfg.withDefaults()

	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))

	mu.RLock()
	ctor, ok := registry[backend]
	mu.RUnlock()
	if !ok || ctor == nil {
		return nil, fmt.Errorf("generator backend %q not registered: available backends=%v", backend, ListBackends())
	}

	g, err := ctor(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to construct generator backend %q: %w", backend, err)
	}
	if g == nil {
		return nil, errors.New("generator constructor returned nil")
	}
	return g, nil
}

// ListBackends returns the list of registered backend names.
func ListBackends() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	return out
}
