package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

type Disk struct {
	dir string
}

// NewDisk creates dir if needed.
func NewDisk(dir string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Disk{dir: dir}, nil
}

func (d *Disk) Dir() string { return d.dir }

func (d *Disk) Save(_ context.Context, name string, r io.Reader) (string, error) {
	clean, err := cleanName(name)
	if err != nil {
		return "", err
	}

	f, err := os.Create(filepath.Join(d.dir, clean))
	if err != nil {
		return "", fmt.Errorf("save upload: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("save upload: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("save upload: %w", err)
	}
	return clean, nil
}

// Open only serves names that are already in sanitized form.
func (d *Disk) Open(_ context.Context, name string) (io.ReadCloser, error) {
	if name == "" || SanitizeFilename(name) != name {
		return nil, ErrNotFound
	}

	f, err := os.Open(filepath.Join(d.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	return f, nil
}
