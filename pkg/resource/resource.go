// Package resource resolves logical paths to byte streams. Fixtures take a
// Resolver wherever they load content, node type definitions, LDIF data or
// manifests, so tests can ship that data in an embed.FS, a testdata
// directory, an in-memory map or behind a URL.
package resource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotFound is returned when a path cannot be resolved.
var ErrNotFound = errors.New("resource not found")

// Resolver returns the content stored under a logical path.
type Resolver interface {
	Open(name string) (io.ReadCloser, error)
}

// ReadAll resolves name and reads it completely.
func ReadAll(r Resolver, name string) ([]byte, error) {
	rc, err := r.Open(name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return data, nil
}

func notFound(name string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, name)
}

type fsResolver struct {
	fsys fs.FS
}

// FS resolves paths inside fsys, for example an embed.FS. Leading slashes
// are ignored.
func FS(fsys fs.FS) Resolver {
	return &fsResolver{fsys: fsys}
}

func (r *fsResolver) Open(name string) (io.ReadCloser, error) {
	clean := path.Clean(strings.TrimPrefix(name, "/"))
	f, err := r.fsys.Open(clean)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(name)
	}
	if err != nil {
		return nil, err
	}
	if info, statErr := f.Stat(); statErr == nil && info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%s is a directory", name)
	}
	return f, nil
}

// Dir resolves paths relative to a directory on disk.
func Dir(dir string) Resolver {
	return FS(os.DirFS(filepath.Clean(dir)))
}

// Map is an in-memory Resolver.
type Map map[string][]byte

func (m Map) Open(name string) (io.ReadCloser, error) {
	data, ok := m[name]
	if !ok {
		data, ok = m[strings.TrimPrefix(name, "/")]
	}
	if !ok {
		return nil, notFound(name)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// URLResolver treats names as URLs. http, https and file URLs are
// supported; plain paths are opened from disk.
type URLResolver struct {
	Client  *http.Client
	Timeout time.Duration
}

// URL returns a URLResolver using http.DefaultClient.
func URL() *URLResolver {
	return &URLResolver{Client: http.DefaultClient, Timeout: 30 * time.Second}
}

func (r *URLResolver) Open(name string) (io.ReadCloser, error) {
	u, err := url.Parse(name)
	if err != nil {
		return nil, fmt.Errorf("invalid resource URL %q: %w", name, err)
	}

	switch u.Scheme {
	case "", "file":
		p := u.Path
		if u.Scheme == "" {
			p = name
		}
		f, err := os.Open(p)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound(name)
		}
		return f, err
	case "http", "https":
		return r.fetch(u.String())
	default:
		return nil, fmt.Errorf("unsupported resource URL scheme %q", u.Scheme)
	}
}

func (r *URLResolver) fetch(target string) (io.ReadCloser, error) {
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	ctx := context.Background()
	cancel := context.CancelFunc(func() {})
	if r.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
	}
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, notFound(target)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetching %s: unexpected status %s", target, resp.Status)
	}
	// Buffer the body so the request context can be released here.
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", target, err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type chain []Resolver

// Chain tries each resolver in order and returns the first match.
func Chain(resolvers ...Resolver) Resolver {
	return chain(resolvers)
}

func (c chain) Open(name string) (io.ReadCloser, error) {
	for _, r := range c {
		rc, err := r.Open(name)
		if err == nil {
			return rc, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, notFound(name)
}
