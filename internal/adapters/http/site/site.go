// Package site serves the bundled single-page frontend.
package site

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
	"time"
)

// ErrServe reports a frontend bundle that cannot be served.
var ErrServe = errors.New("site serve failed")

const indexPage = "index.html"

// Option applies a configuration option to the Handler.
type Option func(*options)

type options struct {
	fsys fs.FS
}

// WithDir serves the frontend from a directory on disk instead of the
// embedded bundle. An empty dir keeps the bundle.
func WithDir(dir string) Option {
	return func(o *options) {
		if dir != "" {
			o.fsys = os.DirFS(dir)
		}
	}
}

// WithFS serves the frontend from fsys.
func WithFS(fsys fs.FS) Option {
	return func(o *options) {
		if fsys != nil {
			o.fsys = fsys
		}
	}
}

// Handler serves existing files as is and every other path as index.html,
// leaving client-side routes to the frontend.
type Handler struct {
	fsys    fs.FS
	files   http.Handler
	index   []byte
	modTime time.Time
}

// NewHandler loads the bundle and its index page.
func NewHandler(opts ...Option) (*Handler, error) {
	o := options{fsys: Bundle()}
	for _, opt := range opts {
		opt(&o)
	}

	index, err := fs.ReadFile(o.fsys, indexPage)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrServe, indexPage, err)
	}
	var modTime time.Time
	if info, err := fs.Stat(o.fsys, indexPage); err == nil {
		modTime = info.ModTime()
	}
	return &Handler{
		fsys:    o.fsys,
		files:   http.FileServer(http.FS(o.fsys)),
		index:   index,
		modTime: modTime,
	}, nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if name != "" && name != indexPage {
		if info, err := fs.Stat(h.fsys, name); err == nil && !info.IsDir() {
			h.files.ServeHTTP(w, r)
			return
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	http.ServeContent(w, r, indexPage, h.modTime, bytes.NewReader(h.index))
}

// Register attaches the frontend to mux as the catch-all route.
func Register(_ context.Context, mux *http.ServeMux, opts ...Option) error {
	if mux == nil {
		panic("mux is nil")
	}
	h, err := NewHandler(opts...)
	if err != nil {
		return err
	}
	mux.Handle("/", h)
	return nil
}
