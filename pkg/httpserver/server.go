// Package httpserver provides an embedded HTTP server fixture that serves
// content from temporary files and zip archives and answers stubbed
// requests.
package httpserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zip"

	"scribble/pkg/fixture"
	"scribble/pkg/logging"
	"scribble/pkg/netutil"
	"scribble/pkg/resource"
	"scribble/pkg/tempfs"
)

const (
	DefaultHost            = "localhost"
	DefaultShutdownTimeout = 5 * time.Second
)

type contentSource struct {
	path     string
	file     *tempfs.TemporaryFile
	archive  *tempfs.TemporaryZipFile
	resolver resource.Resolver
	source   string
	handler  http.Handler
}

// HTTPServer is an embedded HTTP server fixture. It listens from setup
// until teardown; stubs may be added at any time.
type HTTPServer struct {
	fixture.Base

	host            string
	port            int
	shutdownTimeout time.Duration

	mu       sync.Mutex
	contents []*contentSource
	stubs    []*Stub
	sockets  []*WebSocketStub
	conns    map[*websocket.Conn]struct{}

	router   atomic.Pointer[mux.Router]
	server   *http.Server
	listener net.Listener
}

// NewHTTPServer declares a server. outer may be nil.
func NewHTTPServer(outer fixture.Resource) *HTTPServer {
	s := &HTTPServer{
		host:            DefaultHost,
		shutdownTimeout: DefaultShutdownTimeout,
		conns:           map[*websocket.Conn]struct{}{},
	}
	s.Init("HTTPServer", outer)
	s.Declare("host", fixture.Optional)
	s.Declare("port", fixture.Optional)
	s.Declare("shutdownTimeout", fixture.Optional)
	s.Declare("content", fixture.Optional)
	return s
}

// SetHost sets the interface the server binds to.
func (s *HTTPServer) SetHost(host string) error {
	if err := s.Configure("host"); err != nil {
		return err
	}
	s.host = host
	return nil
}

// SetPort sets the TCP port. Zero picks a free port on setup.
func (s *HTTPServer) SetPort(port int) error {
	if err := s.Configure("port"); err != nil {
		return err
	}
	s.port = port
	return nil
}

// SetShutdownTimeout bounds how long teardown waits for open requests.
func (s *HTTPServer) SetShutdownTimeout(d time.Duration) error {
	if err := s.Configure("shutdownTimeout"); err != nil {
		return err
	}
	s.shutdownTimeout = d
	return nil
}

// ContentFrom serves src below urlPath. A *tempfs.TemporaryFile is served
// at exactly urlPath; the entries of a *tempfs.TemporaryZipFile are served
// below it. The source must be active when the server is set up.
func (s *HTTPServer) ContentFrom(urlPath string, src fixture.Resource) error {
	if err := s.Configure("content"); err != nil {
		return err
	}
	c := &contentSource{path: normalize(urlPath)}
	switch v := src.(type) {
	case *tempfs.TemporaryFile:
		c.file = v
	case *tempfs.TemporaryZipFile:
		c.archive = v
	default:
		return fmt.Errorf("unsupported content source %T", src)
	}
	s.mu.Lock()
	s.contents = append(s.contents, c)
	s.mu.Unlock()
	return nil
}

// ContentFromZip serves the entries of the zip archive resolved from
// source below urlPath.
func (s *HTTPServer) ContentFromZip(urlPath string, r resource.Resolver, source string) error {
	if err := s.Configure("content"); err != nil {
		return err
	}
	s.mu.Lock()
	s.contents = append(s.contents, &contentSource{path: normalize(urlPath), resolver: r, source: source})
	s.mu.Unlock()
	return nil
}

// On stubs requests with the given method on urlPath.
func (s *HTTPServer) On(method, urlPath string) *Stub {
	stub := &Stub{server: s, method: method, path: normalize(urlPath)}
	s.mu.Lock()
	s.stubs = append(s.stubs, stub)
	s.mu.Unlock()
	s.rebuild()
	return stub
}

// OnGet stubs GET requests on urlPath.
func (s *HTTPServer) OnGet(urlPath string) *Stub {
	return s.On(http.MethodGet, urlPath)
}

// OnPost stubs POST requests on urlPath.
func (s *HTTPServer) OnPost(urlPath string) *Stub {
	return s.On(http.MethodPost, urlPath)
}

// OnWebSocket accepts WebSocket connections on urlPath. Without Echo or
// Reply incoming messages are discarded.
func (s *HTTPServer) OnWebSocket(urlPath string) *WebSocketStub {
	ws := &WebSocketStub{
		server: s,
		path:   normalize(urlPath),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.mu.Lock()
	s.sockets = append(s.sockets, ws)
	s.mu.Unlock()
	s.rebuild()
	return ws
}

func (s *HTTPServer) Before(ctx context.Context) error {
	for _, c := range s.contents {
		h, err := c.load()
		if err != nil {
			return err
		}
		c.handler = h
	}

	port := s.port
	if port == 0 {
		p, err := netutil.FindAvailablePort()
		if err != nil {
			return err
		}
		port = p
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(s.host, strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("listening on %s:%d: %w", s.host, port, err)
	}
	s.listener = ln
	s.port = ln.Addr().(*net.TCPAddr).Port
	s.rebuild()

	srv := &http.Server{
		Handler:           http.HandlerFunc(s.dispatch),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.server = srv
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("HTTPServer", err, "server on %s stopped", ln.Addr())
		}
	}()
	s.Defer("http server", s.shutdown)

	logging.Info("HTTPServer", "listening on %s", s.BaseURL())
	return nil
}

func (s *HTTPServer) After(ctx context.Context) error {
	return nil
}

func (s *HTTPServer) BeforeClass(ctx context.Context) error {
	return s.Before(ctx)
}

func (s *HTTPServer) AfterClass(ctx context.Context) error {
	return s.After(ctx)
}

// BaseURL returns http://host:port without a trailing slash.
func (s *HTTPServer) BaseURL() string {
	return fmt.Sprintf("http://%s", net.JoinHostPort(s.host, strconv.Itoa(s.port)))
}

// Port returns the bound port once the server is active.
func (s *HTTPServer) Port() int {
	return s.port
}

func (s *HTTPServer) shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()

	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	if err := s.server.Shutdown(ctx); err != nil {
		_ = s.server.Close()
		return fmt.Errorf("shutting down server: %w", err)
	}
	logging.Debug("HTTPServer", "stopped %s", s.BaseURL())
	return nil
}

func (s *HTTPServer) dispatch(w http.ResponseWriter, r *http.Request) {
	router := s.router.Load()
	if router == nil {
		http.NotFound(w, r)
		return
	}
	router.ServeHTTP(w, r)
}

// rebuild swaps in a router reflecting the current stubs and content.
// Stubs win over content registered for the same path.
func (s *HTTPServer) rebuild() {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := mux.NewRouter()
	for _, stub := range s.stubs {
		r.Handle(stub.path, stub).Methods(stub.method)
	}
	for _, ws := range s.sockets {
		r.Handle(ws.path, ws)
	}
	for _, c := range s.contents {
		if c.handler == nil {
			continue
		}
		if c.file != nil {
			r.Handle(c.path, c.handler).Methods(http.MethodGet, http.MethodHead)
			continue
		}
		base := strings.TrimSuffix(c.path, "/")
		if base != "" {
			r.Handle(base, c.handler).Methods(http.MethodGet, http.MethodHead)
		}
		r.PathPrefix(base+"/").Handler(c.handler).Methods(http.MethodGet, http.MethodHead)
	}
	s.router.Store(r)
}

func (s *HTTPServer) track(conn *websocket.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *HTTPServer) untrack(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (c *contentSource) load() (http.Handler, error) {
	switch {
	case c.file != nil:
		if err := c.file.RequireActive("serving content"); err != nil {
			return nil, err
		}
		p := c.file.Path()
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			f, err := os.Open(p)
			if err != nil {
				http.NotFound(w, r)
				return
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			http.ServeContent(w, r, filepath.Base(p), info.ModTime(), f)
		}), nil
	case c.archive != nil:
		if err := c.archive.RequireActive("serving content"); err != nil {
			return nil, err
		}
		zr, err := zip.OpenReader(c.archive.Path())
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", c.archive.Path(), err)
		}
		defer zr.Close()
		return newZipHandler(c.path, &zr.Reader)
	default:
		data, err := resource.ReadAll(c.resolver, c.source)
		if err != nil {
			return nil, err
		}
		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return nil, fmt.Errorf("reading zip %s: %w", c.source, err)
		}
		return newZipHandler(c.path, zr)
	}
}

type zipHandler struct {
	prefix  string
	entries map[string][]byte
}

// newZipHandler reads all entries of zr into memory.
func newZipHandler(prefix string, zr *zip.Reader) (*zipHandler, error) {
	h := &zipHandler{prefix: strings.TrimSuffix(prefix, "/"), entries: map[string][]byte{}}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening entry %s: %w", f.Name, err)
		}
		var buf bytes.Buffer
		_, err = buf.ReadFrom(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("reading entry %s: %w", f.Name, err)
		}
		h.entries[strings.TrimPrefix(f.Name, "/")] = buf.Bytes()
	}
	return h, nil
}

func (h *zipHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, h.prefix), "/")
	if name == "" {
		name = "index.html"
	}
	data, ok := h.entries[name]
	if !ok {
		http.NotFound(w, r)
		return
	}
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	http.ServeContent(w, r, name, time.Time{}, bytes.NewReader(data))
}

func normalize(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}
