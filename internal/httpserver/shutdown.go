package httpserver

import (
	"context"
	"errors"
	"time"
)

// ShutdownTimeout controls how long to wait for graceful shutdowns.
var ShutdownTimeout = 10 * time.Second

// ShutdownFunc releases a resource during shutdown.
type ShutdownFunc func(ctx context.Context) error

// GracefulStop stops srv and then runs each hook, all within ShutdownTimeout.
// Hooks run even when the server fails to drain.
func GracefulStop(srv *Server, hooks ...ShutdownFunc) error {
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	errs := []error{srv.Shutdown(ctx)}
	for _, hook := range hooks {
		errs = append(errs, hook(ctx))
	}
	return errors.Join(errs...)
}
