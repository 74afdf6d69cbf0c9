package preview

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rmaia/sitesmith/internal/interfaces"
	"github.com/rmaia/sitesmith/internal/logging"
)

// net/http backed preview client.
type NetHTTPClient struct {
	client *http.Client
	logger logging.Logger
}

func NewNetHTTPClient(httpClient *http.Client, logger interfaces.Logger) *NetHTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &NetHTTPClient{
		client: httpClient,
		logger: logger.With(logging.Field{Key: "backend", Value: BackendNetHTTP}),
	}
}

func (c *NetHTTPClient) Capture(ctx context.Context, url string) (*Result, error) {
	c.logger.Debug("capturing page", logging.Field{Key: "url", Value: url})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("capture failed",
			logging.Field{Key: "url", Value: url},
			logging.Field{Key: "error", Value: err.Error()})
		return nil, fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &Result{
		URL:        url,
		HTML:       string(body),
		StatusCode: resp.StatusCode,
		FetchedAt:  time.Now(),
	}, nil
}

func (c *NetHTTPClient) Close() error {
	c.logger.Info("closing nethttp preview client")
	return nil
}

var _ Client = (*NetHTTPClient)(nil)
