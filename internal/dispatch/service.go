package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/metrics"
	"courier-dispatch/internal/presence"
)

type handlerFunc func(Conn, json.RawMessage) error

// Service classifies inbound frames and runs them against the registry and
// the router. Every failure is logged and swallowed: one bad message or one
// broken connection never affects other participants.
type Service struct {
	registry *presence.Registry
	hub      *Hub
	router   *Router
	events   EventPublisher
	logger   logx.Logger
	metrics  *metrics.Dispatch
	now      func() time.Time
	byType   map[string]handlerFunc
}

// NewService wires a dispatch Service. A nil events publisher disables presence events.
func NewService(
	registry *presence.Registry,
	hub *Hub,
	router *Router,
	events EventPublisher,
	logger logx.Logger,
	m *metrics.Dispatch,
) *Service {
	if events == nil {
		events = NopPublisher{}
	}
	if logger == nil {
		logger = logx.Nop()
	}
	if m == nil {
		m = metrics.NewDispatch()
	}
	s := &Service{
		registry: registry,
		hub:      hub,
		router:   router,
		events:   events,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
	s.byType = map[string]handlerFunc{
		TypeAddDriver:           s.onAddDriver,
		TypeGetDrivers:          s.onGetDrivers(TypeGetDrivers),
		TypeGetDriversByPartner: s.onGetDrivers(TypeGetDriversByPartner),
		TypeSelectDriver:        s.onSelectDriver,
		TypePickupReply:         s.onPickupReply,
		TypeCancelRequest:       s.onCancelRequest,
		TypeGetDriver:           s.onGetDriver,
	}
	return s
}

// Connect makes conn addressable.
func (s *Service) Connect(conn Conn) {
	s.hub.Add(conn)
	s.metrics.ConnectionsOpen.Inc()
	s.logger.Debug("connection opened", logx.String("handle", string(conn.Handle())))
}

// Disconnect evicts the couriers conn still owns and then forgets conn.
// Hub removal comes last so an empty hub means every offline event was published.
func (s *Service) Disconnect(conn Conn) {
	evicted := s.registry.Evict(conn.Handle())
	for _, p := range evicted {
		s.metrics.CouriersOnline.Dec()
		s.events.PublishOffline(p)
		s.logger.Info("courier offline",
			logx.String("courier_id", string(p.CourierID)),
			logx.String("handle", string(p.Handle)),
		)
	}
	if s.hub.Remove(conn) {
		s.metrics.ConnectionsOpen.Dec()
	}
	s.logger.Debug("connection closed",
		logx.String("handle", string(conn.Handle())),
		logx.Int("evicted", len(evicted)),
	)
}

// Handle processes one inbound frame from conn.
// Frames that are not valid UTF-8 are dropped: stored payloads are echoed to
// every client in text frames, which must be valid UTF-8.
func (s *Service) Handle(conn Conn, frame []byte) {
	if !utf8.Valid(frame) {
		s.drop(conn, "", fmt.Errorf("%w: frame is not valid UTF-8", apperr.Invalid))
		return
	}
	env, err := DecodeEnvelope(frame)
	if err != nil {
		s.drop(conn, "", err)
		return
	}
	fn, ok := s.byType[env.Type]
	if !ok {
		s.drop(conn, env.Type, fmt.Errorf("%w: message type %q", apperr.Unsupported, env.Type))
		return
	}
	s.metrics.Messages.WithLabelValues(env.Type).Inc()
	if err := fn(conn, env.Data); err != nil {
		s.drop(conn, env.Type, err)
	}
}

func (s *Service) drop(conn Conn, msgType string, err error) {
	s.metrics.InvalidMessages.Inc()
	level := s.logger.Warn
	if !errors.Is(err, apperr.Invalid) && !errors.Is(err, apperr.Unsupported) {
		level = s.logger.Error
	}
	level("message dropped",
		logx.String("handle", string(conn.Handle())),
		logx.String("type", msgType),
		logx.Err(err),
	)
}

func (s *Service) onAddDriver(conn Conn, data json.RawMessage) error {
	req, err := decodeAddDriver(data)
	if err != nil {
		return err
	}
	p := domain.CourierPresence{
		CourierID: req.CourierID,
		PartnerID: req.PartnerID,
		Handle:    conn.Handle(),
		Payload:   req.Payload,
		UpdatedAt: s.now(),
	}
	res := s.registry.Register(p)
	if res.Created {
		s.metrics.CouriersOnline.Inc()
		s.events.PublishOnline(p)
		s.logger.Info("courier online",
			logx.String("courier_id", string(p.CourierID)),
			logx.String("handle", string(p.Handle)),
		)
	}
	if res.Replaced != "" {
		s.logger.Info("courier reconnected",
			logx.String("courier_id", string(p.CourierID)),
			logx.String("handle", string(p.Handle)),
			logx.String("replaced", string(res.Replaced)),
		)
	}
	return nil
}

func (s *Service) onGetDrivers(msgType string) handlerFunc {
	return func(conn Conn, data json.RawMessage) error {
		partner, err := decodePartnerFilter(msgType, data)
		if err != nil {
			return err
		}
		views := make([]PresenceView, 0)
		for p := range s.registry.List(partner) {
			views = append(views, ViewOf(p))
		}
		s.reply(conn, TypeDriversList, views)
		return nil
	}
}

func (s *Service) onSelectDriver(conn Conn, data json.RawMessage) error {
	req, err := decodeCourierRequest(TypeSelectDriver, data)
	if err != nil {
		return err
	}
	s.router.RoutePickupRequest(req.CourierID, req.CustomerPayload, conn.Handle())
	return nil
}

func (s *Service) onCancelRequest(conn Conn, data json.RawMessage) error {
	req, err := decodeCourierRequest(TypeCancelRequest, data)
	if err != nil {
		return err
	}
	s.router.RouteCancellation(req.CourierID, req.CustomerPayload, conn.Handle())
	return nil
}

func (s *Service) onPickupReply(_ Conn, data json.RawMessage) error {
	rep, err := decodePickupReply(data)
	if err != nil {
		return err
	}
	s.router.RouteAnswer(rep.CustomerHandle, rep.Answer)
	return nil
}

func (s *Service) onGetDriver(conn Conn, data json.RawMessage) error {
	id, err := decodeGetDriver(data)
	if err != nil {
		return err
	}
	p, ok := s.router.RouteLocationQuery(id)
	if !ok {
		s.reply(conn, TypeLocation, nil)
		return nil
	}
	s.reply(conn, TypeLocation, ViewOf(p))
	return nil
}

// reply answers the requesting connection directly.
func (s *Service) reply(conn Conn, msgType string, data any) {
	frame, err := Encode(msgType, data)
	if err != nil {
		s.logger.Error("reply encode failed", logx.String("type", msgType), logx.Err(err))
		return
	}
	if !conn.Send(frame) {
		s.logger.Debug("reply dropped",
			logx.String("type", msgType),
			logx.String("handle", string(conn.Handle())),
		)
	}
}
