// Package assets stores user-uploaded images referenced by generation
// prompts and serves them under a public URL. Uploaded images also get
// a WebP rendition for lighter embedding in generated pages.
package assets

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"

	"github.com/rmaia/sitesmith/internal/interfaces"
)

const webpQuality = 85

// Store writes uploads under dir and maps them to URLs under baseURL.
type Store struct {
	dir     string
	baseURL string
	logger  interfaces.Logger
}

func NewStore(dir, baseURL string, logger interfaces.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create asset dir: %w", err)
	}
	return &Store{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}, nil
}

// Dir returns the directory uploads are written to, for static mounts.
func (s *Store) Dir() string {
	return s.dir
}

// Save persists an upload under a generated name and returns that
// name. The original extension is kept so the file serves with the
// right content type.
func (s *Store) Save(r io.Reader, originalName string) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	name := uuid.New().String() + ext
	path := filepath.Join(s.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create asset: %w", err)
	}
	written, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write asset: %w", err)
	}

	s.logger.Info("stored asset",
		interfaces.Field{Key: "name", Value: name},
		interfaces.Field{Key: "bytes", Value: written})

	// The WebP rendition is best effort. An undecodable or exotic
	// upload still gets served in its original form.
	if ext == ".png" || ext == ".jpg" || ext == ".jpeg" {
		if err := s.encodeWebP(path, name); err != nil {
			s.logger.Warn("webp rendition skipped",
				interfaces.Field{Key: "name", Value: name},
				interfaces.Field{Key: "error", Value: err.Error()})
		}
	}

	return name, nil
}

// PublicURL returns the URL the asset serves from.
func (s *Store) PublicURL(name string) string {
	return s.baseURL + "/" + name
}

func (s *Store) encodeWebP(srcPath, name string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	img, _, err := image.Decode(src)
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}

	opts, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, webpQuality)
	if err != nil {
		return fmt.Errorf("webp options: %w", err)
	}

	webpName := strings.TrimSuffix(name, filepath.Ext(name)) + ".webp"
	out, err := os.Create(filepath.Join(s.dir, webpName))
	if err != nil {
		return err
	}
	defer out.Close()

	if err := webp.Encode(out, img, opts); err != nil {
		return fmt.Errorf("webp encode: %w", err)
	}
	return nil
}
