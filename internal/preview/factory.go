package preview

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rmaia/sitesmith/internal/interfaces"
)

// BackendConstructor constructs a Client given the config and logger.
type BackendConstructor func(cfg Config, logger interfaces.Logger) (Client, error)

var (
	mu       sync.RWMutex
	registry = map[string]BackendConstructor{}
)

// RegisterBackend registers a named backend constructor. Name is
// lower-cased internally. Registering the same name again overwrites
// the previous constructor.
func RegisterBackend(name string, ctor BackendConstructor) {
	if name == "" || ctor == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	registry[strings.ToLower(name)] = ctor
}

// NewClient constructs the configured preview backend. It returns an
// error if the named backend has not been registered.
func NewClient(cfg Config, logger interfaces.Logger) (Client, error) {
	cfg = cfg.withDefaults()
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))

	mu.RLock()
	ctor, ok := registry[backend]
	mu.RUnlock()
	if !ok || ctor == nil {
		return nil, fmt.Errorf("preview backend %q not registered: available backends=%v", backend, ListBackends())
	}

	client, err := ctor(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to construct preview backend %q: %w", backend, err)
	}
	if client == nil {
		return nil, errors.New("preview constructor returned nil")
	}
	return client, nil
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
