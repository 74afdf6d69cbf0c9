package assets

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rmaia/sitesmith/internal/interfaces"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), "http://localhost:8080/uploads/", interfaces.NewTestLogger(testing.Verbose()))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestSaveAndPublicURL(t *testing.T) {
	s := newTestStore(t)

	name, err := s.Save(bytes.NewReader(pngBytes(t)), "logo.PNG")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasSuffix(name, ".png") {
		t.Fatalf("stored name = %q, want .png suffix", name)
	}
	if name == "logo.png" {
		t.Fatal("stored name must not reuse the upload name")
	}

	if _, err := os.Stat(filepath.Join(s.Dir(), name)); err != nil {
		t.Fatalf("stored file missing: %v", err)
	}

	url := s.PublicURL(name)
	want := "http://localhost:8080/uploads/" + name
	if url != want {
		t.Fatalf("PublicURL = %q, want %q", url, want)
	}
}

func TestSaveNonImagePassesThrough(t *testing.T) {
	s := newTestStore(t)

	name, err := s.Save(strings.NewReader("not an image"), "notes.txt")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(s.Dir(), name))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "not an image" {
		t.Fatalf("round trip = %q", data)
	}
}
