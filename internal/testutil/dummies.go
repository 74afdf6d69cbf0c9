// Package testutil holds shared fakes for pipeline and handler tests.
package testutil

import (
	"context"
	"sync"

	"github.com/rmaia/sitesmith/internal/preview"
)

// DummyGenerator records prompts and returns a configurable artifact.
type DummyGenerator struct {
	mu      sync.Mutex
	Output  string
	Err     error
	prompts []string
}

func (g *DummyGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	if g.Err != nil {
		return "", g.Err
	}
	return g.Output, nil
}

func (g *DummyGenerator) Close() error { return nil }

// Prompts returns a copy of all prompts seen so far.
func (g *DummyGenerator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.prompts))
	copy(out, g.prompts)
	return out
}

// DummyPublisher counts calls and can fail either operation.
type DummyPublisher struct {
	mu           sync.Mutex
	ProvisionErr error
	PublishErr   error
	provisions   []string
	publishes    []string
}

func (p *DummyPublisher) Provision(_ context.Context, slug string) error {
	p.mu.Lock()
	p.provisions = append(p.provisions, slug)
	p.mu.Unlock()
	return p.ProvisionErr
}

func (p *DummyPublisher) Publish(_ context.Context, slug string, _ []byte) error {
	p.mu.Lock()
	p.publishes = append(p.publishes, slug)
	p.mu.Unlock()
	return p.PublishErr
}

func (p *DummyPublisher) ProvisionCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.provisions)
}

func (p *DummyPublisher) PublishCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.publishes)
}

// DummyMirror pretends every project is linked unless Err is set.
type DummyMirror struct {
	mu     sync.Mutex
	Err    error
	Linked bool
	syncs  int
}

func (m *DummyMirror) Sync(_ context.Context, _, _ string, _ []byte, _ string) (bool, error) {
	m.mu.Lock()
	m.syncs++
	m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	return m.Linked, nil
}

func (m *DummyMirror) SyncCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.syncs
}

// DummyPreview returns a canned capture result.
type DummyPreview struct {
	Status int
	Err    error
}

func (p *DummyPreview) Capture(_ context.Context, url string) (*preview.Result, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	status := p.Status
	if status == 0 {
		status = 200
	}
	return &preview.Result{URL: url, StatusCode: status, HTML: "<html></html>"}, nil
}

func (p *DummyPreview) Close() error { return nil }
