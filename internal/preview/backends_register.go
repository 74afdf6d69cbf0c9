package preview

import (
	"net/http"

	"github.com/rmaia/sitesmith/internal/interfaces"
)

func init() {
	RegisterBackend(BackendNetHTTP, func(cfg Config, logger interfaces.Logger) (Client, error) {
		httpClient := &http.Client{Timeout: cfg.Timeout}
		return NewNetHTTPClient(httpClient, logger), nil
	})

	RegisterBackend(BackendChromedp, func(cfg Config, logger interfaces.Logger) (Client, error) {
		return NewChromeDPClient(cfg.Timeout, logger)
	})
}
