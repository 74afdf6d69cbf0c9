package preview

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rmaia/sitesmith/internal/interfaces"
)

func TestNetHTTPCapture(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><h1>Bakery</h1></body></html>"))
	}))
	defer srv.Close()

	client := NewNetHTTPClient(srv.Client(), interfaces.NewTestLogger(testing.Verbose()))
	defer client.Close()

	res, err := client.Capture(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}
	if !strings.Contains(res.HTML, "<h1>Bakery</h1>") {
		t.Fatalf("HTML = %q", res.HTML)
	}
	if res.FetchedAt.IsZero() {
		t.Fatal("FetchedAt not set")
	}
}

func TestNetHTTPCaptureNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	client := NewNetHTTPClient(srv.Client(), interfaces.NewTestLogger(false))
	defer client.Close()

	res, err := client.Capture(context.Background(), srv.URL+"/missing")
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", res.StatusCode)
	}
}

func TestFactoryUnknownBackend(t *testing.T) {
	_, err := NewClient(Config{Backend: "wizardry"}, interfaces.NewTestLogger(false))
	if err == nil {
		t.Fatal("expected error for unregistered backend")
	}
}

func TestFactoryDefaultBackend(t *testing.T) {
	client, err := NewClient(Config{}, interfaces.NewTestLogger(false))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()
	if _, ok := client.(*NetHTTPClient); !ok {
		t.Fatalf("default backend = %T, want *NetHTTPClient", client)
	}
}

func TestListBackends(t *testing.T) {
	names := ListBackends()
	found := map[string]bool{}
	for _, n := range names {
		found[n] = true
	}
	if !found[BackendNetHTTP] || !found[BackendChromedp] {
		t.Fatalf("registered backends = %v", names)
	}
}

func TestChromedpCaptureHonorsCallerCancel(t *testing.T) {
	client, err := NewChromeDPClient(time.Minute, interfaces.NewTestLogger(false))
	if err != nil {
		t.Fatalf("NewChromeDPClient: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() {
		_, err := client.Capture(ctx, "http://example.invalid/")
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Capture did not return after caller cancellation")
	}
}
