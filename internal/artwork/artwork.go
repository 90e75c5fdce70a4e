package artwork

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Store persists extracted cover images under generated names in a
// dedicated directory. Consumers resolve artwork by the returned relative
// reference, never by guessing a path.
type Store struct {
	dir string
}

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artwork directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Put writes image bytes under a fresh name and returns the relative
// reference. The container's declared extension is advisory only; the
// bytes themselves decide the format when they decode.
func (s *Store) Put(data []byte, ext string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty image data")
	}

	if _, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		switch format {
		case "png":
			ext = "png"
		case "jpeg":
			ext = "jpg"
		}
	}
	if ext == "" || ext == "jpeg" {
		ext = "jpg"
	}

	name := fmt.Sprintf("artwork_%s.%s", uuid.NewString(), ext)
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0644); err != nil {
		return "", fmt.Errorf("failed to write artwork: %w", err)
	}
	return name, nil
}

// Path resolves a stored reference to its absolute location.
func (s *Store) Path(ref string) string {
	return filepath.Join(s.dir, ref)
}

func (s *Store) Remove(ref string) error {
	if ref == "" {
		return nil
	}
	err := os.Remove(filepath.Join(s.dir, ref))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// List returns every stored artwork name, for the orphan sweep.
func (s *Store) List() ([]string, error) {
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(dirents))
	for _, d := range dirents {
		if !d.IsDir() {
			names = append(names, d.Name())
		}
	}
	return names, nil
}

func (s *Store) Dir() string {
	return s.dir
}
