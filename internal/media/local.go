package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// LocalBackend writes media below a directory served at BaseURL.
type LocalBackend struct {
	Dir     string
	BaseURL string
}

// Put writes body to Dir/key, replacing any previous file atomically.
func (l LocalBackend) Put(ctx context.Context, key, _ string, body io.Reader) (string, error) {
	key = strings.TrimLeft(filepath.ToSlash(filepath.Clean("/"+key)), "/")
	if key == "" || key == "." {
		return "", fmt.Errorf("local backend: empty key")
	}

	target := filepath.Join(l.Dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("local backend mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("local backend create: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, ctxReader{ctx: ctx, r: body}); err != nil {
		tmp.Close()
		return "", fmt.Errorf("local backend write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("local backend close: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("local backend rename: %w", err)
	}

	return strings.TrimSuffix(l.BaseURL, "/") + "/" + key, nil
}

// Delete removes Dir/key. A missing file is not an error.
func (l LocalBackend) Delete(_ context.Context, key string) error {
	key = strings.TrimLeft(filepath.ToSlash(filepath.Clean("/"+key)), "/")
	if key == "" || key == "." {
		return fmt.Errorf("local backend: empty key")
	}
	err := os.Remove(filepath.Join(l.Dir, filepath.FromSlash(key)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("local backend delete: %w", err)
	}
	return nil
}

// Handler serves stored files; mount it under the path of BaseURL.
func (l LocalBackend) Handler() http.Handler {
	return http.FileServer(http.Dir(l.Dir))
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
