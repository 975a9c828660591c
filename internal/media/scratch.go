package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// Scratch is a job-scoped temporary directory. Everything a worker writes for
// one attempt lives under it, so a single Close removes every artifact on
// every exit path.
type Scratch struct {
	dir string
}

// NewScratch creates the scratch directory.
func NewScratch(prefix string) (*Scratch, error) {
	dir, err := os.MkdirTemp("", prefix)
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	return &Scratch{dir: dir}, nil
}

// Path returns the absolute path for a named scratch file.
func (s *Scratch) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Dir returns the scratch directory itself.
func (s *Scratch) Dir() string { return s.dir }

// Close removes the directory and everything in it.
func (s *Scratch) Close() error {
	return os.RemoveAll(s.dir)
}

// Download fetches a URL (typically a presigned GET) into a local file.
func Download(ctx context.Context, client *http.Client, url, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download source: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download source: unexpected status %d", resp.StatusCode)
	}
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create scratch file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("write scratch file: %w", err)
	}
	return nil
}
