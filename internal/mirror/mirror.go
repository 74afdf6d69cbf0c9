// Package mirror pushes the published artifact of a project to a
// linked GitHub repository so users keep a versioned copy outside the
// hosting account.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"

	"github.com/rmaia/sitesmith/internal/interfaces"
)

// ErrNoLink is returned by LinkSource implementations when a project
// has no repository attached. The orchestrator treats it as "mirroring
// not configured" and skips the sync.
var ErrNoLink = errors.New("mirror: project has no linked repository")

// RepoLink identifies a mirror target and the token authorized to
// write to it.
type RepoLink struct {
	// RepoFullName is "owner/repo".
	RepoFullName string
	Token        string
}

// LinkSource resolves the mirror target for a project.
type LinkSource interface {
	Link(ctx context.Context, userID, projectID string) (RepoLink, error)
}

// StaticLinks is a LinkSource backed by a fixed project -> link map,
// suitable for configuration files and tests.
type StaticLinks struct {
	mu    sync.RWMutex
	links map[string]RepoLink
}

func NewStaticLinks() *StaticLinks {
	return &StaticLinks{links: make(map[string]RepoLink)}
}

func (s *StaticLinks) Set(projectID string, link RepoLink) {
	s.mu.Lock()
	s.links[projectID] = link
	s.mu.Unlock()
}

func (s *StaticLinks) Link(_ context.Context, _, projectID string) (RepoLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	link, ok := s.links[projectID]
	if !ok {
		return RepoLink{}, ErrNoLink
	}
	return link, nil
}

const mirrorPath = "index.html"

// GitHubMirror synchronizes the artifact to the linked repository. An
// optional baseURL redirects API calls, used by tests.
type GitHubMirror struct {
	links   LinkSource
	baseURL string
	logger  interfaces.Logger
}

func NewGitHubMirror(links LinkSource, logger interfaces.Logger) *GitHubMirror {
	return &GitHubMirror{links: links, logger: logger}
}

// NewGitHubMirrorWithBaseURL points the client at a non-github.com API
// endpoint.
func NewGitHubMirrorWithBaseURL(links LinkSource, baseURL string, logger interfaces.Logger) *GitHubMirror {
	return &GitHubMirror{links: links, baseURL: baseURL, logger: logger}
}

// Sync writes html to index.html in the linked repository, creating
// the file when it does not exist and updating it otherwise. It
// returns false with a nil error when the project has no link.
func (m *GitHubMirror) Sync(ctx context.Context, userID, projectID string, html []byte, message string) (bool, error) {
	link, err := m.links.Link(ctx, userID, projectID)
	if errors.Is(err, ErrNoLink) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("resolve mirror link: %w", err)
	}

	owner, repo, err := splitRepo(link.RepoFullName)
	if err != nil {
		return false, err
	}

	client, err := m.client(ctx, link.Token)
	if err != nil {
		return false, err
	}

	opts := &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: html,
	}

	existing, _, resp, err := client.Repositories.GetContents(ctx, owner, repo, mirrorPath, nil)
	switch {
	case err == nil && existing != nil:
		opts.SHA = existing.SHA
		if _, _, err := client.Repositories.UpdateFile(ctx, owner, repo, mirrorPath, opts); err != nil {
			return false, fmt.Errorf("mirror update %s: %w", link.RepoFullName, err)
		}
	case resp != nil && resp.StatusCode == http.StatusNotFound:
		if _, _, err := client.Repositories.CreateFile(ctx, owner, repo, mirrorPath, opts); err != nil {
			return false, fmt.Errorf("mirror create %s: %w", link.RepoFullName, err)
		}
	default:
		return false, fmt.Errorf("mirror lookup %s: %w", link.RepoFullName, err)
	}

	m.logger.Info("mirrored artifact",
		interfaces.Field{Key: "project_id", Value: projectID},
		interfaces.Field{Key: "repo", Value: link.RepoFullName})
	return true, nil
}

func (m *GitHubMirror) client(ctx context.Context, token string) (*github.Client, error) {
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	client := github.NewClient(httpClient)
	if m.baseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(m.baseURL, m.baseURL)
		if err != nil {
			return nil, fmt.Errorf("mirror base url: %w", err)
		}
	}
	return client, nil
}

func splitRepo(fullName string) (owner, repo string, err error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("mirror: malformed repository name %q", fullName)
	}
	return parts[0], parts[1], nil
}
