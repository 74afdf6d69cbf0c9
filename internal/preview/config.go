package preview

import "time"

const (
	BackendNetHTTP  = "nethttp"
	BackendChromedp = "chromedp"
)

// Config selects and tunes the preview backend.
type Config struct {
	Backend string        `yaml:"backend"`
	Timeout time.Duration `yaml:"timeout"`
}

const defaultTimeout = 30 * time.Second

func (c Config) withDefaults() Config {
	if c.Backend == "" {
		c.Backend = BackendNetHTTP
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	return c
}
