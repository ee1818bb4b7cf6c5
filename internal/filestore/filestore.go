// Package filestore keeps generated media (illustrations, pronunciations)
// and hands back URLs that can be embedded in rendered content.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Store saves a file under key and returns its public URL.
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// Key joins path elements into a storage key, dropping empty parts.
func Key(parts ...string) string {
	var clean []string
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			clean = append(clean, p)
		}
	}
	return path.Join(clean...)
}

func validateKey(key string) error {
	if key == "" {
		return errors.New("empty file key")
	}
	if path.Clean(key) != key || strings.HasPrefix(key, "/") || strings.HasPrefix(key, "..") {
		return fmt.Errorf("invalid file key %q", key)
	}
	return nil
}

// Local writes files below a directory. URLs are baseURL + "/" + key, so
// baseURL should point at wherever the directory is served (the API mounts
// it at /files).
type Local struct {
	dir     string
	baseURL string
}

func NewLocal(dir, baseURL string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating file directory: %w", err)
	}
	return &Local{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Dir is the directory files are written to.
func (l *Local) Dir() string { return l.dir }

func (l *Local) Put(_ context.Context, key, _ string, data []byte) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	dst := filepath.Join(l.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("creating directory for %s: %w", key, err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", key, err)
	}
	return l.baseURL + "/" + key, nil
}
