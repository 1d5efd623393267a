package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for dispatch_routed_total.
const (
	OutcomeDelivered = "delivered"
	OutcomeNotFound  = "not_found"
	OutcomeDropped   = "dropped"
)

// Dispatch groups the collectors of the real-time dispatch path.
type Dispatch struct {
	CouriersOnline  prometheus.Gauge
	ConnectionsOpen prometheus.Gauge
	Messages        *prometheus.CounterVec // by inbound message type
	Routed          *prometheus.CounterVec // by route kind and outcome
	InvalidMessages prometheus.Counter
	SendDropped     prometheus.Counter
	EventsDropped   prometheus.Counter
}

// NewDispatch returns unregistered dispatch collectors.
func NewDispatch() *Dispatch {
	return &Dispatch{
		CouriersOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "couriers_online",
			Help: "Number of couriers currently present in the registry",
		}),
		ConnectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ws_connections_open",
			Help: "Number of open real-time connections",
		}),
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_messages_total",
			Help: "Inbound real-time messages by type",
		}, []string{"type"}),
		Routed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_routed_total",
			Help: "Routed messages by kind and outcome",
		}, []string{"kind", "outcome"}),
		InvalidMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_invalid_messages_total",
			Help: "Inbound messages dropped because of malformed payload or unknown type",
		}),
		SendDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ws_send_dropped_total",
			Help: "Outbound frames dropped because the connection was closed or backlogged",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "presence_events_dropped_total",
			Help: "Presence events not handed to the producer",
		}),
	}
}

// Register registers every dispatch collector with reg.
func (d *Dispatch) Register(reg prometheus.Registerer) (*Dispatch, error) {
	var (
		out Dispatch
		err error
	)
	if out.CouriersOnline, err = Register(reg, d.CouriersOnline); err != nil {
		return nil, err
	}
	if out.ConnectionsOpen, err = Register(reg, d.ConnectionsOpen); err != nil {
		return nil, err
	}
	if out.Messages, err = Register(reg, d.Messages); err != nil {
		return nil, err
	}
	if out.Routed, err = Register(reg, d.Routed); err != nil {
		return nil, err
	}
	if out.InvalidMessages, err = Register(reg, d.InvalidMessages); err != nil {
		return nil, err
	}
	if out.SendDropped, err = Register(reg, d.SendDropped); err != nil {
		return nil, err
	}
	if out.EventsDropped, err = Register(reg, d.EventsDropped); err != nil {
		return nil, err
	}
	return &out, nil
}

// HTTP groups request metrics recorded by the observability middleware.
type HTTP struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewHTTP returns unregistered HTTP collectors.
func NewHTTP() *HTTP {
	return &HTTP{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
}

// Register registers both collectors with reg.
func (h *HTTP) Register(reg prometheus.Registerer) (*HTTP, error) {
	requests, err := Register(reg, h.Requests)
	if err != nil {
		return nil, err
	}
	duration, err := Register(reg, h.Duration)
	if err != nil {
		return nil, err
	}
	return &HTTP{Requests: requests, Duration: duration}, nil
}

// NewRateLimitExceededTotal counts upgrade requests rejected by the rate limiter.
func NewRateLimitExceededTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rate_limit_exceeded_total",
		Help: "Total number of rejected HTTP requests due to rate limiting",
	})
}

// Register registers c, returning the collector that is already registered
// under the same descriptor if there is one.
func Register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, fmt.Errorf("register collector: %w", err)
	}
	return c, nil
}
