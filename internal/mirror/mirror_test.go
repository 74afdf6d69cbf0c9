package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rmaia/sitesmith/internal/interfaces"
)

const contentsPath = "/api/v3/repos/acme/site/contents/index.html"

func newMirror(t *testing.T, handler http.Handler) (*GitHubMirror, *StaticLinks) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	links := NewStaticLinks()
	links.Set("p1", RepoLink{RepoFullName: "acme/site", Token: "tok"})
	return NewGitHubMirrorWithBaseURL(links, srv.URL+"/", interfaces.NewTestLogger(testing.Verbose())), links
}

func TestSyncCreatesWhenFileMissing(t *testing.T) {
	var created bool
	m, _ := newMirror(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != contentsPath {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		switch r.Method {
		case http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"message":"Not Found"}`)
		case http.MethodPut:
			var body struct {
				Message string `json:"message"`
				SHA     string `json:"sha"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			if body.SHA != "" {
				t.Errorf("create carried sha %q", body.SHA)
			}
			created = true
			fmt.Fprint(w, `{"content":{"path":"index.html"}}`)
		}
	}))

	mirrored, err := m.Sync(context.Background(), "u1", "p1", []byte("<html></html>"), "publish bakery")
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if !mirrored || !created {
		t.Fatalf("mirrored=%v created=%v, want both true", mirrored, created)
	}
}

func TestSyncUpdatesExistingFile(t *testing.T) {
	var gotSHA string
	m, _ := newMirror(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			fmt.Fprint(w, `{"type":"file","path":"index.html","sha":"abc123"}`)
		case http.MethodPut:
			var body struct {
				SHA string `json:"sha"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			gotSHA = body.SHA
			fmt.Fprint(w, `{"content":{"path":"index.html"}}`)
		}
	}))

	mirrored, err := m.Sync(context.Background(), "u1", "p1", []byte("<html></html>"), "update bakery")
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if !mirrored || gotSHA != "abc123" {
		t.Fatalf("mirrored=%v sha=%q, want update with abc123", mirrored, gotSHA)
	}
}

func TestSyncSkipsUnlinkedProject(t *testing.T) {
	m, _ := newMirror(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unlinked project reached the API")
	}))

	mirrored, err := m.Sync(context.Background(), "u1", "unlinked", []byte("x"), "msg")
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if mirrored {
		t.Fatal("Sync reported a mirror for an unlinked project")
	}
}

func TestSyncMalformedRepoName(t *testing.T) {
	links := NewStaticLinks()
	links.Set("p1", RepoLink{RepoFullName: "justrepo", Token: "tok"})
	m := NewGitHubMirror(links, interfaces.NewTestLogger(false))

	if _, err := m.Sync(context.Background(), "u1", "p1", []byte("x"), "msg"); err == nil {
		t.Fatal("expected malformed repo name error")
	}
}
