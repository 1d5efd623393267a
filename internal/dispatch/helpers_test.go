package dispatch

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/metrics"
	"courier-dispatch/internal/presence"
)

type fakeConn struct {
	handle domain.ConnHandle

	mu     sync.Mutex
	frames [][]byte
	full   bool
	closed bool
}

func newConn(h string) *fakeConn { return &fakeConn{handle: domain.ConnHandle(h)} }

func (c *fakeConn) Handle() domain.ConnHandle { return c.handle }

func (c *fakeConn) Send(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full || c.closed {
		return false
	}
	c.frames = append(c.frames, frame)
	return true
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) received(t *testing.T) []Envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Envelope, 0, len(c.frames))
	for _, f := range c.frames {
		var env Envelope
		require.NoError(t, json.Unmarshal(f, &env))
		out = append(out, env)
	}
	return out
}

func (c *fakeConn) last(t *testing.T) Envelope {
	t.Helper()
	got := c.received(t)
	require.NotEmpty(t, got, "no frames on %s", c.handle)
	return got[len(got)-1]
}

// presenceOf matches a presence entry by courier id and owning handle.
type presenceOf struct {
	id     domain.CourierID
	handle domain.ConnHandle
}

func (m presenceOf) Matches(x any) bool {
	p, ok := x.(domain.CourierPresence)
	return ok && p.CourierID == m.id && p.Handle == m.handle
}

func (m presenceOf) String() string {
	return fmt.Sprintf("presence of %s on %s", m.id, m.handle)
}

type fixture struct {
	registry *presence.Registry
	hub      *Hub
	router   *Router
	svc      *Service
	events   EventPublisher
	metrics  *metrics.Dispatch
}

func newFixture(logger logx.Logger) *fixture {
	return newFixtureWithEvents(logger, NopPublisher{})
}

func newFixtureWithEvents(logger logx.Logger, events EventPublisher) *fixture {
	if logger == nil {
		logger = logx.Nop()
	}
	f := &fixture{
		registry: presence.NewRegistry(),
		hub:      NewHub(),
		events:   events,
		metrics:  metrics.NewDispatch(),
	}
	f.router = NewRouter(f.registry, f.hub, logger, f.metrics)
	f.svc = NewService(f.registry, f.hub, f.router, f.events, logger, f.metrics)
	return f
}

func (f *fixture) connect(h string) *fakeConn {
	c := newConn(h)
	f.svc.Connect(c)
	return c
}

func frame(t *testing.T, msgType string, data any) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	out, err := json.Marshal(Envelope{Type: msgType, Data: raw})
	require.NoError(t, err)
	return out
}
