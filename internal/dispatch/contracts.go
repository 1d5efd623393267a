//go:generate mockgen -source=contracts.go -destination=dispatch_mocks_test.go -package=dispatch

package dispatch

import "courier-dispatch/internal/domain"

// Conn is a live bidirectional connection as seen by the dispatch layer.
type Conn interface {
	Handle() domain.ConnHandle
	// Send queues one encoded frame without blocking. It reports false when
	// the frame was dropped because the connection is closed or backlogged.
	Send(frame []byte) bool
	Close() error
}

// EventPublisher receives presence transitions. Implementations must not block.
type EventPublisher interface {
	PublishOnline(p domain.CourierPresence)
	PublishOffline(p domain.CourierPresence)
}

// NopPublisher discards presence events.
type NopPublisher struct{}

func (NopPublisher) PublishOnline(domain.CourierPresence)  {}
func (NopPublisher) PublishOffline(domain.CourierPresence) {}
