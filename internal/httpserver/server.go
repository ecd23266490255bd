package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

const readHeaderTimeout = 5 * time.Second

// Options tunes the listener. Zero timeouts fall back to the defaults below.
type Options struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server wraps the http.Server used by the API and the realtime endpoint.
type Server struct {
	inner *http.Server
}

// New constructs a server for handler. Upload requests can stream up to the
// upload limit, so read and write timeouts are minutes rather than seconds.
func New(opts Options, handler http.Handler) *Server {
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 5 * time.Minute
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Minute
	}

	return &Server{
		inner: &http.Server{
			Addr:              fmt.Sprintf(":%d", opts.Port),
			Handler:           handler,
			ReadHeaderTimeout: readHeaderTimeout,
			ReadTimeout:       readTimeout,
			WriteTimeout:      writeTimeout,
		},
	}
}

// Addr reports the listen address.
func (s *Server) Addr() string {
	return s.inner.Addr
}

// Start begins serving HTTP traffic.
func (s *Server) Start() error {
	return s.inner.ListenAndServe()
}

// Shutdown gracefully terminates the HTTP server. Hijacked WebSocket
// connections are not tracked by http.Server and must be closed separately.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}
