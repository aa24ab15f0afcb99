// Package storage persists uploaded attachment files.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrTooLarge is returned when an upload exceeds the configured limit.
var ErrTooLarge = errors.New("storage: file too large")

// Object describes a stored file.
type Object struct {
	Key         string
	URL         string
	Name        string
	Size        int64
	ContentType string
}

// Store saves uploaded content under a key prefix.
type Store interface {
	Save(ctx context.Context, prefix, name string, r io.Reader) (Object, error)
	Delete(ctx context.Context, key string) error
}

// LocalStore writes files beneath Dir and addresses them under BaseURL.
type LocalStore struct {
	Dir      string
	BaseURL  string
	MaxBytes int64 // 0 disables the limit
}

// NewLocalStore creates the root directory if needed.
func NewLocalStore(dir, baseURL string, maxBytes int64) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create %s: %w", dir, err)
	}
	return &LocalStore{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/"), MaxBytes: maxBytes}, nil
}

// Save streams r to a new uuid-named file, keeping the original extension.
func (s *LocalStore) Save(ctx context.Context, prefix, name string, r io.Reader) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	ext := strings.ToLower(filepath.Ext(name))
	key := path.Join(cleanPrefix(prefix), uuid.NewString()+ext)
	full := filepath.Join(s.Dir, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return Object{}, fmt.Errorf("storage: save %s: %w", name, err)
	}
	f, err := os.Create(full)
	if err != nil {
		return Object{}, fmt.Errorf("storage: save %s: %w", name, err)
	}

	src := r
	if s.MaxBytes > 0 {
		src = io.LimitReader(r, s.MaxBytes+1)
	}
	head := make([]byte, 512)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		f.Close()
		os.Remove(full)
		return Object{}, fmt.Errorf("storage: save %s: %w", name, err)
	}
	head = head[:n]

	written, err := io.Copy(f, io.MultiReader(bytes.NewReader(head), src))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(full)
		return Object{}, fmt.Errorf("storage: save %s: %w", name, err)
	}
	if s.MaxBytes > 0 && written > s.MaxBytes {
		os.Remove(full)
		return Object{}, ErrTooLarge
	}

	return Object{
		Key:         key,
		URL:         s.BaseURL + "/" + key,
		Name:        filepath.Base(name),
		Size:        written,
		ContentType: contentType(ext, head),
	}, nil
}

// Delete removes the file for key. A missing file is not an error.
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	full := filepath.Join(s.Dir, filepath.FromSlash(path.Clean("/" + key)))
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: delete %s: %w", key, err)
	}
	return nil
}

func cleanPrefix(p string) string {
	p = strings.Trim(path.Clean("/"+p), "/")
	if p == "." {
		return ""
	}
	return p
}

func contentType(ext string, head []byte) string {
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return http.DetectContentType(head)
}
