package preview

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/rmaia/sitesmith/internal/interfaces"
	"github.com/rmaia/sitesmith/internal/logging"
)

// ChromeDPClient renders the page in a headless browser, which catches
// sites that 200 at the HTTP layer but break when scripts run. It also
// grabs a full screenshot for the dashboard.
type ChromeDPClient struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	timeout     time.Duration
	logger      logging.Logger
}

func NewChromeDPClient(timeout time.Duration, logger interfaces.Logger) (*ChromeDPClient, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), chromedp.DefaultExecAllocatorOptions[:]...)
	return &ChromeDPClient{
		allocCtx:    allocCtx,
		allocCancel: cancel,
		timeout:     timeout,
		logger:      logger.With(logging.Field{Key: "backend", Value: BackendChromedp}),
	}, nil
}

func (c *ChromeDPClient) Capture(ctx context.Context, url string) (*Result, error) {
	c.logger.Debug("capturing page", logging.Field{Key: "url", Value: url})

	tabCtx, cancelTab := chromedp.NewContext(c.allocCtx)
	defer cancelTab()

	// The tab derives from the allocator, not the caller, so caller
	// cancellation has to be propagated by hand.
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, c.timeout)
	defer cancelTimeout()

	// Surface the document response status; chromedp itself does not
	// expose it.
	statusCode := 0
	chromedp.ListenTarget(tabCtx, func(ev any) {
		if resp, ok := ev.(*network.EventResponseReceived); ok {
			if resp.Type == network.ResourceTypeDocument && statusCode == 0 {
				statusCode = int(resp.Response.Status)
			}
		}
	})

	var html string
	var screenshot []byte
	err := chromedp.Run(tabCtx,
		network.Enable(),
		chromedp.Navigate(url),
		chromedp.OuterHTML("html", &html),
		chromedp.CaptureScreenshot(&screenshot),
	)
	if err != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		return nil, fmt.Errorf("chromedp run: %w", err)
	}

	return &Result{
		URL:        url,
		HTML:       html,
		StatusCode: statusCode,
		Screenshot: screenshot,
		FetchedAt:  time.Now(),
	}, nil
}

func (c *ChromeDPClient) Close() error {
	c.logger.Info("closing chromedp preview client")
	c.allocCancel()
	return nil
}

var _ Client = (*ChromeDPClient)(nil)
