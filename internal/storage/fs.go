package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FSStore keeps blobs as files under base. Keys never escape base.
type FSStore struct {
	base    string
	maxSize int64
	urlBase string
}

func NewFSStore(base string, maxSize int64, urlBase string) (*FSStore, error) {
	if base == "" {
		base = "./data"
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, err
	}
	if urlBase == "" {
		urlBase = "/api/assets/"
	}
	return &FSStore{base: base, maxSize: maxSize, urlBase: strings.TrimSuffix(urlBase, "/") + "/"}, nil
}

func (s *FSStore) path(key string) (string, error) {
	clean := path.Clean("/" + key)[1:]
	if key == "" || clean == "" || clean != strings.TrimPrefix(key, "/") || strings.Contains(key, `\`) {
		return "", ErrBadKey
	}
	return filepath.Join(s.base, filepath.FromSlash(clean)), nil
}

// Put writes r to key through a temp file, so a failed or oversized upload
// never leaves a partial object.
func (s *FSStore) Put(ctx context.Context, key string, r io.Reader) (string, error) {
	dst, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	src := r
	if s.maxSize > 0 {
		src = io.LimitReader(r, s.maxSize+1)
	}
	n, err := io.Copy(tmp, ctxReader{ctx, src})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", err
	}
	if s.maxSize > 0 && n > s.maxSize {
		return "", fmt.Errorf("%w: limit %d bytes", ErrTooLarge, s.maxSize)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", err
	}
	return strings.TrimPrefix(path.Clean("/"+key), "/"), nil
}

func (s *FSStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

func (s *FSStore) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// URL is the public path the gateway serves key from.
func (s *FSStore) URL(key string) string { return s.urlBase + key }

// MediaKey builds a fresh key for an upload attached to owner, keeping the
// original file extension.
func MediaKey(prefix, ownerID, kind, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return path.Join(prefix, ownerID, kind, uuid.NewString()+ext)
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
