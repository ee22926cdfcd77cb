package httpserver

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"text/template"

	sprig "github.com/go-task/slim-sprig"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"scribble/pkg/logging"
)

// Stub is a canned response for a method and path. The path may contain
// gorilla/mux variables such as /users/{id}.
type Stub struct {
	server      *HTTPServer
	method      string
	path        string
	status      int
	contentType string
	headers     map[string]string
	body        []byte
	tmpl        *template.Template
	hits        int
}

// RequestData is passed to templated responses.
type RequestData struct {
	Method string
	Path   string
	Vars   map[string]string
	Query  map[string][]string
	Header http.Header
	Body   string
}

// Respond sets a fixed response body.
func (s *Stub) Respond(body string) *Stub {
	s.server.mu.Lock()
	defer s.server.mu.Unlock()
	s.body = []byte(body)
	s.tmpl = nil
	return s
}

// RespondTemplate renders body as a text/template with sprig functions
// against RequestData on every request.
func (s *Stub) RespondTemplate(body string) *Stub {
	tmpl, err := template.New(s.path).Funcs(sprig.TxtFuncMap()).Parse(body)
	s.server.mu.Lock()
	defer s.server.mu.Unlock()
	if err != nil {
		s.status = http.StatusInternalServerError
		s.body = []byte(fmt.Sprintf("invalid response template: %v", err))
		s.tmpl = nil
		return s
	}
	s.tmpl = tmpl
	return s
}

// WithStatus sets the response status code.
func (s *Stub) WithStatus(code int) *Stub {
	s.server.mu.Lock()
	defer s.server.mu.Unlock()
	s.status = code
	return s
}

// WithContentType sets the Content-Type header.
func (s *Stub) WithContentType(contentType string) *Stub {
	s.server.mu.Lock()
	defer s.server.mu.Unlock()
	s.contentType = contentType
	return s
}

// WithHeader adds a response header.
func (s *Stub) WithHeader(key, value string) *Stub {
	s.server.mu.Lock()
	defer s.server.mu.Unlock()
	if s.headers == nil {
		s.headers = map[string]string{}
	}
	s.headers[key] = value
	return s
}

// Hits returns how often the stub was requested.
func (s *Stub) Hits() int {
	s.server.mu.Lock()
	defer s.server.mu.Unlock()
	return s.hits
}

func (s *Stub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.server.mu.Lock()
	s.hits++
	status, contentType, body, tmpl := s.status, s.contentType, s.body, s.tmpl
	headers := make(map[string]string, len(s.headers))
	for k, v := range s.headers {
		headers[k] = v
	}
	s.server.mu.Unlock()

	if tmpl != nil {
		reqBody, _ := io.ReadAll(r.Body)
		data := RequestData{
			Method: r.Method,
			Path:   r.URL.Path,
			Vars:   mux.Vars(r),
			Query:  r.URL.Query(),
			Header: r.Header,
			Body:   string(reqBody),
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			logging.Error("HTTPServer", err, "rendering response for %s %s", r.Method, r.URL.Path)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		body = buf.Bytes()
	}

	for k, v := range headers {
		w.Header().Set(k, v)
	}
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// WebSocketStub accepts WebSocket connections on a path.
type WebSocketStub struct {
	server   *HTTPServer
	path     string
	upgrader websocket.Upgrader
	reply    func(messageType int, data []byte) []byte
}

// Echo sends every received message back unchanged.
func (s *WebSocketStub) Echo() *WebSocketStub {
	return s.Reply(func(_ int, data []byte) []byte { return data })
}

// Reply answers every received message with the result of fn. A nil
// result sends nothing.
func (s *WebSocketStub) Reply(fn func(messageType int, data []byte) []byte) *WebSocketStub {
	s.server.mu.Lock()
	defer s.server.mu.Unlock()
	s.reply = fn
	return s
}

func (s *WebSocketStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("HTTPServer", "websocket upgrade on %s failed: %v", s.path, err)
		return
	}
	s.server.track(conn)
	defer s.server.untrack(conn)
	defer conn.Close()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.server.mu.Lock()
		reply := s.reply
		s.server.mu.Unlock()
		if reply == nil {
			continue
		}
		if out := reply(messageType, data); out != nil {
			if err := conn.WriteMessage(messageType, out); err != nil {
				return
			}
		}
	}
}
