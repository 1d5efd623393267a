package kafka

import (
	"time"

	"courier-dispatch/internal/domain"
)

const (
	EventOnline  = "online"
	EventOffline = "offline"
)

// PresenceEventDTO is the wire form of a presence transition.
type PresenceEventDTO struct {
	Event            string    `json:"event"`
	CourierID        string    `json:"courier_id"`
	PartnerID        string    `json:"partner_id,omitempty"`
	ConnectionHandle string    `json:"connection_handle"`
	At               time.Time `json:"at"`
}

// FromDomain converts a presence entry to its event DTO.
func FromDomain(event string, p domain.CourierPresence, at time.Time) PresenceEventDTO {
	return PresenceEventDTO{
		Event:            event,
		CourierID:        string(p.CourierID),
		PartnerID:        string(p.PartnerID),
		ConnectionHandle: string(p.Handle),
		At:               at.UTC(),
	}
}
