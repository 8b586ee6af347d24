package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Timeouts bound how long a client may hold a connection.
type Timeouts struct {
	ReadHeader time.Duration
	Write      time.Duration
	Idle       time.Duration
}

// DefaultTimeouts suit short JSON requests.
var DefaultTimeouts = Timeouts{
	ReadHeader: 5 * time.Second,
	Write:      10 * time.Second,
	Idle:       60 * time.Second,
}

// Server wraps the http.Server serving the API.
type Server struct {
	inner *http.Server
}

// New constructs a server listening on the provided port with DefaultTimeouts.
func New(port int, handler http.Handler) *Server {
	return NewWithTimeouts(port, handler, DefaultTimeouts)
}

// NewWithTimeouts constructs a server listening on port.
func NewWithTimeouts(port int, handler http.Handler, timeouts Timeouts) *Server {
	return &Server{
		inner: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: timeouts.ReadHeader,
			WriteTimeout:      timeouts.Write,
			IdleTimeout:       timeouts.Idle,
		},
	}
}

// Addr reports the configured listen address.
func (s *Server) Addr() string {
	return s.inner.Addr
}

// Start begins serving HTTP traffic.
func (s *Server) Start() error {
	return s.inner.ListenAndServe()
}

// Serve accepts connections on l until the server shuts down.
func (s *Server) Serve(l net.Listener) error {
	return s.inner.Serve(l)
}

// Shutdown gracefully terminates the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}
