package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"courier-dispatch/internal/config"
	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/logx"
)

// Config stores per-session limits.
type Config struct {
	SendBuffer      int
	MaxMessageBytes int64
	WriteTimeout    time.Duration
	PongWait        time.Duration
	PingPeriod      time.Duration
	MessageRate     float64
	MessageBurst    int
}

// ConfigFrom maps service configuration to session limits.
func ConfigFrom(c config.WS) Config {
	return Config{
		SendBuffer:      c.SendBuffer,
		MaxMessageBytes: c.MaxMessageBytes,
		WriteTimeout:    c.WriteTimeout,
		PongWait:        c.PongWait,
		PingPeriod:      c.PingPeriod(),
		MessageRate:     c.MessageRate,
		MessageBurst:    c.MessageBurst,
	}
}

// Session is one accepted WebSocket connection. The reader runs on the
// goroutine that accepted it; a second goroutine owns all data writes.
type Session struct {
	handle  domain.ConnHandle
	conn    *websocket.Conn
	cfg     Config
	logger  logx.Logger
	dropped prometheus.Counter
	limiter *rate.Limiter

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func newSession(conn *websocket.Conn, cfg Config, logger logx.Logger, dropped prometheus.Counter) *Session {
	handle := domain.ConnHandle(uuid.NewString())
	return &Session{
		handle:  handle,
		conn:    conn,
		cfg:     cfg,
		logger:  logger.With(logx.String("handle", string(handle))),
		dropped: dropped,
		limiter: rate.NewLimiter(rate.Limit(cfg.MessageRate), cfg.MessageBurst),
		send:    make(chan []byte, cfg.SendBuffer),
		done:    make(chan struct{}),
	}
}

// Handle returns the connection handle minted at accept time.
func (s *Session) Handle() domain.ConnHandle { return s.handle }

// Send queues frame for the writer. It never blocks: a closed session or a
// full buffer drops the frame.
func (s *Session) Send(frame []byte) bool {
	select {
	case <-s.done:
		s.drop("closed")
		return false
	default:
	}
	select {
	case s.send <- frame:
		return true
	default:
		s.drop("backlogged")
		return false
	}
}

func (s *Session) drop(reason string) {
	if s.dropped != nil {
		s.dropped.Inc()
	}
	s.logger.Debug("outbound frame dropped", logx.String("reason", reason))
}

// Close stops both loops and closes the socket. Safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// readLoop hands every accepted frame to onFrame until the socket fails.
func (s *Session) readLoop(onFrame func([]byte)) {
	s.conn.SetReadLimit(s.cfg.MaxMessageBytes)
	s.extendReadDeadline()
	s.conn.SetPongHandler(func(string) error {
		s.extendReadDeadline()
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read failed", logx.Err(err))
			}
			return
		}
		s.extendReadDeadline()

		if !s.limiter.Allow() {
			s.logger.Warn("inbound frame rate limited", logx.Int("bytes", len(data)))
			continue
		}
		onFrame(data)
	}
}

func (s *Session) extendReadDeadline() {
	_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
}

// writeLoop drains the send buffer and keeps the connection alive with pings.
func (s *Session) writeLoop() {
	ticker := time.NewTicker(s.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case frame := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.logger.Debug("websocket write failed", logx.Err(err))
				_ = s.Close()
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(s.cfg.WriteTimeout)
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.logger.Debug("websocket ping failed", logx.Err(err))
				_ = s.Close()
				return
			}
		}
	}
}
