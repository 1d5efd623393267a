package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/dig"

	"courier-dispatch/internal/config"
	"courier-dispatch/internal/dispatch"
	"courier-dispatch/internal/http/handlers"
	"courier-dispatch/internal/http/middleware/ratelimit"
	"courier-dispatch/internal/http/pprofserver"
	"courier-dispatch/internal/http/router"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/metrics"
	"courier-dispatch/internal/presence"
	"courier-dispatch/internal/transport/kafka"
	"courier-dispatch/internal/transport/ws"
)

// ContainerBuilder is a dig container builder.
type ContainerBuilder struct {
	loadConfig func() (*config.Config, error)
	logOutput  io.Writer
	logFatalf  func(string, ...any)
}

// NewContainerBuilder returns a builder with production defaults.
func NewContainerBuilder() *ContainerBuilder {
	return &ContainerBuilder{
		loadConfig: config.Load,
		logOutput:  os.Stdout,
		logFatalf:  log.Fatalf,
	}
}

// WithConfigLoader replaces config.Load.
func (b *ContainerBuilder) WithConfigLoader(fn func() (*config.Config, error)) *ContainerBuilder {
	if fn != nil {
		b.loadConfig = fn
	}
	return b
}

// WithLogOutput redirects the service logger.
func (b *ContainerBuilder) WithLogOutput(w io.Writer) *ContainerBuilder {
	if w != nil {
		b.logOutput = w
	}
	return b
}

// WithLogFatalf sets the log.Fatalf function
func (b *ContainerBuilder) WithLogFatalf(fn func(string, ...any)) *ContainerBuilder {
	if fn != nil {
		b.logFatalf = fn
	}
	return b
}

// MustBuild builds and returns a new dig container
func (b *ContainerBuilder) MustBuild(ctx context.Context) *dig.Container {
	container, err := b.build(ctx)
	if err != nil {
		b.logFatalf("failed to build container: %v", err)
	}
	return container
}

func (b *ContainerBuilder) build(ctx context.Context) (*dig.Container, error) {
	container := dig.New()

	if err := registerCore(container, ctx, b.loadConfig, b.logOutput); err != nil {
		return nil, fmt.Errorf("core: %w", err)
	}
	if err := registerDispatch(container); err != nil {
		return nil, fmt.Errorf("dispatch: %w", err)
	}
	if err := registerHTTP(container); err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	return container, nil
}

// MustBuildContainer builds and returns a new dig container
func MustBuildContainer(ctx context.Context) *dig.Container {
	return NewContainerBuilder().MustBuild(ctx)
}

func provideAll(container *dig.Container, providers ...any) error {
	for _, provider := range providers {
		if err := container.Provide(provider); err != nil {
			return fmt.Errorf("provide %T: %w", provider, err)
		}
	}
	return nil
}

func registerCore(
	container *dig.Container,
	ctx context.Context,
	loadConfig func() (*config.Config, error),
	logOutput io.Writer,
) error {
	if err := provideAll(container,
		func() context.Context { return ctx },
		loadConfig,
		func(cfg *config.Config) logx.Logger { return NewLogger(cfg, logOutput) },
		newMetricsRegistry,
		func(reg *prometheus.Registry) (*metrics.Dispatch, error) {
			return metrics.NewDispatch().Register(reg)
		},
		func(reg *prometheus.Registry) (*metrics.HTTP, error) {
			return metrics.NewHTTP().Register(reg)
		},
	); err != nil {
		return err
	}

	rateLimitExceeded := func(reg *prometheus.Registry) (prometheus.Counter, error) {
		return metrics.Register(reg, metrics.NewRateLimitExceededTotal())
	}
	if err := container.Provide(rateLimitExceeded, dig.Name("rate_limit_exceeded_total")); err != nil {
		return fmt.Errorf("provide rate limit counter: %w", err)
	}
	return nil
}

func newMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func registerDispatch(container *dig.Container) error {
	return provideAll(container,
		presence.NewRegistry,
		dispatch.NewHub,
		func(reg *presence.Registry, hub *dispatch.Hub, logger logx.Logger, m *metrics.Dispatch) *dispatch.Router {
			return dispatch.NewRouter(reg, hub, logger, m)
		},
		newPresenceProducer,
		newEventPublisher,
		func(
			reg *presence.Registry,
			hub *dispatch.Hub,
			r *dispatch.Router,
			events dispatch.EventPublisher,
			logger logx.Logger,
			m *metrics.Dispatch,
		) *dispatch.Service {
			return dispatch.NewService(reg, hub, r, events, logger, m)
		},
	)
}

// newPresenceProducer returns nil when Kafka is not configured.
func newPresenceProducer(cfg *config.Config, logger logx.Logger, m *metrics.Dispatch) (*kafka.Producer, error) {
	p, err := kafka.NewProducer(logger, cfg.Kafka.Brokers, cfg.Kafka.Topic, m.EventsDropped)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	if p == nil {
		logger.Info("kafka not configured, presence events disabled")
	}
	return p, nil
}

func newEventPublisher(p *kafka.Producer) dispatch.EventPublisher {
	if p == nil {
		return dispatch.NopPublisher{}
	}
	return p
}

type routerIn struct {
	dig.In
	Logger      logx.Logger
	HTTPMetrics *metrics.HTTP
	Base        *handlers.Handlers
	Presence    *handlers.PresenceHandler
	WS          *ws.Handler
	RateLimit   *ratelimit.Middleware
	Registry    *prometheus.Registry
	Config      *config.Config
}

func newRouter(in routerIn) http.Handler {
	return router.New(router.Deps{
		Logger:      in.Logger,
		HTTPMetrics: in.HTTPMetrics,
		Base:        in.Base,
		Presence:    in.Presence,
		WS:          in.WS,
		RateLimit:   in.RateLimit,
		Metrics:     promhttp.HandlerFor(in.Registry, promhttp.HandlerOpts{Registry: in.Registry}),

		TrustProxyHeaders: in.Config.RateLimit.TrustProxy,
	})
}

func registerHTTP(container *dig.Container) error {
	serverProvider := func(cfg *config.Config, mux http.Handler) *http.Server {
		return &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
	}
	wsProvider := func(cfg *config.Config, svc *dispatch.Service, logger logx.Logger, m *metrics.Dispatch) *ws.Handler {
		return ws.NewHandler(svc, ws.ConfigFrom(cfg.WS), logger, m.SendDropped)
	}

	if err := provideAll(container,
		handlers.New,
		handlers.NewPresenceHandler,
		wsProvider,
		newRateLimitClock,
		newRateLimiter,
		newRateLimitMiddleware,
		newRouter,
		serverProvider,
	); err != nil {
		return err
	}
	if err := container.Provide(newPprofServer, dig.Name("pprof")); err != nil {
		return fmt.Errorf("provide pprof server: %w", err)
	}
	return nil
}

// newPprofServer returns nil unless pprof is enabled.
func newPprofServer(cfg *config.Config, logger logx.Logger) *http.Server {
	if !cfg.Pprof.Enabled {
		return nil
	}
	return pprofserver.New(pprofserver.Config{
		Addr: cfg.Pprof.Addr,
		User: cfg.Pprof.User,
		Pass: cfg.Pprof.Pass,
	}, logger)
}
