package app

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
)

// Start binds the configured address, serves HTTP in the background and
// returns a channel closed once a termination signal arrives.
func (a *App) Start() <-chan struct{} {
	l, err := net.Listen("tcp", a.httpServer.Addr)
	if err != nil {
		slog.Error("failed to listen http server", "address", a.httpServer.Addr, "error", err)
		os.Exit(1)
	}
	slog.Info("http server listening", "address", l.Addr().String())

	serveErr := a.Serve(l)

	terminate := make(chan struct{})
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
		defer signal.Stop(sig)

		select {
		case s := <-sig:
			slog.Info("termination signal received", "signal", s.String())
		case err, ok := <-serveErr:
			if ok {
				slog.Error("http server stopped unexpectedly", "error", err)
			}
		}

		a.cancel()
		close(terminate)
	}()

	return terminate
}

// Serve runs the HTTP server on l instead of the configured address. The
// returned channel yields the serve error, if any, and is then closed.
func (a *App) Serve(l net.Listener) <-chan error {
	errChan := make(chan error, 1)

	go func() {
		defer close(errChan)
		if err := a.httpServer.Serve(l); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	return errChan
}

// Stop drains HTTP, waits for background work such as consumers and the
// ledger sweeper, then releases resources in registration order.
func (a *App) Stop(ctx context.Context) {
	a.cancel()

	if err := a.httpServer.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to close resources", "name", "HTTP Server", "error", err)
	}

	if err := a.goroutine.Wait(); err != nil {
		slog.ErrorContext(ctx, "background work finished with errors", "error", err)
	}

	for _, c := range a.closers {
		if err := c.fn(ctx); err != nil {
			slog.ErrorContext(ctx, "failed to close resources", "name", c.name, "error", err)
		}
	}

	slog.InfoContext(ctx, "application stopped")
}
