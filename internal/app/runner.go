package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"go.uber.org/dig"

	"courier-dispatch/internal/dispatch"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/transport/kafka"
)

const (
	defaultShutdownTimeout = 15 * time.Second
	sessionDrainTimeout    = 3 * time.Second
)

// Runner starts the servers held by a container and stops them when its
// context ends.
type Runner struct {
	shutdownTimeout time.Duration
	logFatalf       func(string, ...any)
}

// NewRunner returns a Runner with production defaults.
func NewRunner() *Runner {
	return &Runner{
		shutdownTimeout: defaultShutdownTimeout,
		logFatalf:       log.Fatalf,
	}
}

// MustRun runs the service and exits the process on failure.
func (r *Runner) MustRun(container *dig.Container) {
	if err := r.run(container); err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			log.Println("shutdown requested, exiting")
			return
		case errors.Is(err, context.DeadlineExceeded):
			log.Println("startup aborted: startup timeout exceeded")
			return
		default:
			r.logFatalf("run error: %v", err)
		}
	}
}

type runDeps struct {
	dig.In
	Ctx      context.Context
	Logger   logx.Logger
	Server   *http.Server
	Pprof    *http.Server `name:"pprof"`
	Hub      *dispatch.Hub
	Producer *kafka.Producer
}

func (r *Runner) run(container *dig.Container) error {
	return container.Invoke(func(d runDeps) error {
		return r.serve(d)
	})
}

func (r *Runner) serve(d runDeps) error {
	errCh := make(chan error, 2)
	startServer(d.Server, "service-dispatch", d.Logger, errCh)
	if d.Pprof != nil {
		startServer(d.Pprof, "pprof", d.Logger, errCh)
	}

	var runErr error
	select {
	case <-d.Ctx.Done():
		d.Logger.Info("shutting down service-dispatch")
	case err := <-errCh:
		runErr = err
		d.Logger.Error("server failed, shutting down", logx.Err(err))
	}

	gracefulShutdown(d.Server, d.Logger, r.shutdownTimeout)
	if d.Pprof != nil {
		gracefulShutdown(d.Pprof, d.Logger, r.shutdownTimeout)
	}
	closeResources(d)
	return runErr
}

func startServer(server *http.Server, name string, logger logx.Logger, errCh chan<- error) {
	go func() {
		logger.Info("listening", logx.String("server", name), logx.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("%s listen: %w", name, err)
		}
	}()
}

func gracefulShutdown(srv *http.Server, logger logx.Logger, timeout time.Duration) {
	shCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		logger.Warn("graceful shutdown error", logx.String("addr", srv.Addr), logx.Err(err))
	}
}

// closeResources ends hijacked WebSocket sessions, which Shutdown does not
// track, and closes the event producer once their offline events are queued.
func closeResources(d runDeps) {
	d.Hub.CloseAll()
	if !waitDrained(d.Hub, sessionDrainTimeout) {
		d.Logger.Warn("sessions still open after drain timeout", logx.Int("open", d.Hub.Len()))
	}
	if err := d.Producer.Close(); err != nil {
		d.Logger.Warn("kafka producer close error", logx.Err(err))
	}
	_ = d.Logger.Sync()
}

func waitDrained(hub *dispatch.Hub, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for hub.Len() > 0 {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(10 * time.Millisecond)
	}
	return true
}
