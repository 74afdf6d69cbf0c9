// Package publisher provisions subdomains through a DirectAdmin panel
// and uploads generated HTML over FTP.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/jlaffaye/ftp"

	"github.com/rmaia/sitesmith/internal/interfaces"
)

var ErrMissingConfig = errors.New("publisher: incomplete hosting configuration")

// HostingPublisher implements interfaces.Publisher against a
// DirectAdmin panel plus a plain FTP account on the same host.
type HostingPublisher struct {
	cfg        Config
	httpClient *http.Client
	logger     interfaces.Logger
}

// NewHostingPublisher validates the configuration. httpClient may be
// nil, in which case a client with the configured timeout is used.
func NewHostingPublisher(cfg Config, logger interfaces.Logger, httpClient *http.Client) (*HostingPublisher, error) {
	cfg = cfg.withDefaults()
	if cfg.PanelURL == "" || cfg.BaseDomain == "" || cfg.FTPAddr == "" {
		return nil, ErrMissingConfig
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &HostingPublisher{cfg: cfg, httpClient: httpClient, logger: logger}, nil
}

// Provision creates the subdomain via the DirectAdmin subdomain API.
// DirectAdmin answers 200 even on failure and signals errors through an
// urlencoded body with error=1, so the body is always parsed.
func (p *HostingPublisher) Provision(ctx context.Context, slug string) error {
	form := url.Values{
		"action":    {"create"},
		"domain":    {p.cfg.BaseDomain},
		"subdomain": {slug},
	}
	endpoint := strings.TrimRight(p.cfg.PanelURL, "/") + "/CMD_API_SUBDOMAIN"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("provision request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(p.cfg.PanelUser, p.cfg.PanelPassword)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("provision %s: %w", slug, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return fmt.Errorf("provision response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provision %s: panel returned %d", slug, resp.StatusCode)
	}

	values, err := url.ParseQuery(strings.TrimSpace(string(body)))
	if err != nil {
		return fmt.Errorf("provision %s: unreadable panel response: %w", slug, err)
	}
	if values.Get("error") == "1" {
		detail := values.Get("details")
		if detail == "" {
			detail = values.Get("text")
		}
		return fmt.Errorf("provision %s: %s", slug, detail)
	}

	p.logger.Info("provisioned subdomain",
		interfaces.Field{Key: "subdomain", Value: slug},
		interfaces.Field{Key: "domain", Value: p.cfg.BaseDomain})
	return nil
}

// Publish uploads the artifact to /domains/<base>/public_html/<slug>/index.html,
// creating the slug directory if it does not exist yet.
func (p *HostingPublisher) Publish(ctx context.Context, slug string, html []byte) error {
	conn, err := ftp.Dial(p.cfg.FTPAddr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(p.cfg.Timeout))
	if err != nil {
		return fmt.Errorf("ftp dial %s: %w", p.cfg.FTPAddr, err)
	}
	defer conn.Quit()

	if err := conn.Login(p.cfg.FTPUser, p.cfg.FTPPassword); err != nil {
		return fmt.Errorf("ftp login: %w", err)
	}

	dir := fmt.Sprintf("domains/%s/public_html/%s", p.cfg.BaseDomain, slug)
	// MakeDir fails when the directory already exists; the Stor below
	// surfaces any real path problem.
	if err := conn.MakeDir(dir); err != nil {
		p.logger.Debug("ftp mkdir skipped", interfaces.Field{Key: "dir", Value: dir})
	}

	target := dir + "/index.html"
	if err := conn.Stor(target, strings.NewReader(string(html))); err != nil {
		return fmt.Errorf("ftp upload %s: %w", target, err)
	}

	p.logger.Info("published site",
		interfaces.Field{Key: "subdomain", Value: slug},
		interfaces.Field{Key: "bytes", Value: len(html)})
	return nil
}

var _ interfaces.Publisher = (*HostingPublisher)(nil)
