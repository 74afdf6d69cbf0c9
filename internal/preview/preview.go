// Package preview captures a published site after upload so the
// pipeline can verify the subdomain is actually serving the artifact.
// Two backends exist: a plain net/http fetch and a chromedp-driven
// headless browser that also produces a screenshot.
package preview

import (
	"context"
	"time"
)

// Result is the outcome of capturing one published page.
type Result struct {
	URL        string    `json:"url"`
	HTML       string    `json:"html"`
	StatusCode int       `json:"statusCode"`
	Screenshot []byte    `json:"screenshot,omitempty"`
	FetchedAt  time.Time `json:"fetchedAt"`
}

// Client fetches a published page. Close releases backend resources
// such as the browser allocator.
type Client interface {
	Capture(ctx context.Context, url string) (*Result, error)
	Close() error
}
