package dispatch

import (
	"encoding/json"

	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/metrics"
	"courier-dispatch/internal/presence"
)

// Outcome reports what happened to a routed message. It never reaches the sender.
type Outcome int

const (
	// Delivered means the frame was queued on the target connection.
	Delivered Outcome = iota
	// NotFound means the target identity or handle is not present.
	NotFound
	// Dropped means the target exists but did not accept the frame.
	Dropped
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return metrics.OutcomeDelivered
	case NotFound:
		return metrics.OutcomeNotFound
	default:
		return metrics.OutcomeDropped
	}
}

// Router delivers a message to exactly one live connection, best effort.
// It never queues and never retries.
type Router struct {
	registry *presence.Registry
	hub      *Hub
	logger   logx.Logger
	metrics  *metrics.Dispatch
}

// NewRouter wires a Router over the registry and the connection hub.
func NewRouter(registry *presence.Registry, hub *Hub, logger logx.Logger, m *metrics.Dispatch) *Router {
	if logger == nil {
		logger = logx.Nop()
	}
	if m == nil {
		m = metrics.NewDispatch()
	}
	return &Router{registry: registry, hub: hub, logger: logger, metrics: m}
}

// RoutePickupRequest forwards a customer's pickup request to the courier.
func (r *Router) RoutePickupRequest(target domain.CourierID, customer json.RawMessage, origin domain.ConnHandle) Outcome {
	return r.routeToCourier(TypePickupRequest, target, customer, origin)
}

// RouteCancellation forwards a customer's cancellation to the courier.
func (r *Router) RouteCancellation(target domain.CourierID, customer json.RawMessage, origin domain.ConnHandle) Outcome {
	return r.routeToCourier(TypeCancelRequest, target, customer, origin)
}

// RouteAnswer sends a courier's answer to the customer connection that asked.
func (r *Router) RouteAnswer(target domain.ConnHandle, answer json.RawMessage) Outcome {
	return r.deliver(TypeAnswer, target, answer)
}

// RouteLocationQuery returns the courier's current presence entry.
func (r *Router) RouteLocationQuery(id domain.CourierID) (domain.CourierPresence, bool) {
	return r.registry.Lookup(id)
}

func (r *Router) routeToCourier(kind string, target domain.CourierID, customer json.RawMessage, origin domain.ConnHandle) Outcome {
	p, ok := r.registry.Lookup(target)
	if !ok {
		r.logger.Debug("route target offline",
			logx.String("kind", kind),
			logx.String("courier_id", string(target)),
		)
		return r.observe(kind, NotFound)
	}

	data, err := enrichCustomer(customer, origin)
	if err != nil {
		r.logger.Warn("customer payload not forwardable",
			logx.String("kind", kind),
			logx.String("courier_id", string(target)),
			logx.Err(err),
		)
		return r.observe(kind, Dropped)
	}
	return r.deliver(kind, p.Handle, data)
}

// deliver resolves handle and queues the frame. No lock is held while sending.
func (r *Router) deliver(kind string, handle domain.ConnHandle, data json.RawMessage) Outcome {
	conn, ok := r.hub.Get(handle)
	if !ok {
		r.logger.Debug("route handle closed",
			logx.String("kind", kind),
			logx.String("handle", string(handle)),
		)
		return r.observe(kind, NotFound)
	}

	frame, err := Encode(kind, data)
	if err != nil {
		r.logger.Warn("route encode failed", logx.String("kind", kind), logx.Err(err))
		return r.observe(kind, Dropped)
	}
	if !conn.Send(frame) {
		r.logger.Debug("route send dropped",
			logx.String("kind", kind),
			logx.String("handle", string(handle)),
		)
		return r.observe(kind, Dropped)
	}
	return r.observe(kind, Delivered)
}

func (r *Router) observe(kind string, o Outcome) Outcome {
	r.metrics.Routed.WithLabelValues(kind, o.String()).Inc()
	return o
}
