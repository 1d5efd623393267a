package ws

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"courier-dispatch/internal/dispatch"
	"courier-dispatch/internal/logx"
)

// Dispatcher is the dispatch service as seen by the transport.
type Dispatcher interface {
	Connect(conn dispatch.Conn)
	Disconnect(conn dispatch.Conn)
	Handle(conn dispatch.Conn, frame []byte)
}

// Handler upgrades HTTP requests and runs one Session per connection.
type Handler struct {
	dispatcher Dispatcher
	cfg        Config
	logger     logx.Logger
	dropped    prometheus.Counter
	upgrader   websocket.Upgrader
}

// NewHandler returns the /ws endpoint. Callers are authenticated upstream,
// so any origin is accepted.
func NewHandler(d Dispatcher, cfg Config, logger logx.Logger, dropped prometheus.Counter) *Handler {
	if logger == nil {
		logger = logx.Nop()
	}
	return &Handler{
		dispatcher: d,
		cfg:        cfg,
		logger:     logger,
		dropped:    dropped,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP blocks for the lifetime of the connection.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written the HTTP error
		h.logger.Debug("websocket upgrade failed", logx.Err(err))
		return
	}

	s := newSession(conn, h.cfg, h.logger, h.dropped)
	h.dispatcher.Connect(s)
	go s.writeLoop()

	s.readLoop(func(frame []byte) {
		h.dispatcher.Handle(s, frame)
	})

	_ = s.Close()
	h.dispatcher.Disconnect(s)
}
