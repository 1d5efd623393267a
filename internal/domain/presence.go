package domain

import (
	"encoding/json"
	"time"
)

type (
	// CourierID is the durable courier identity supplied by the courier client.
	CourierID string
	// PartnerID is an optional affiliation tag used to filter listings.
	PartnerID string
	// ConnHandle addresses one live connection. It is never reused.
	ConnHandle string
)

// CourierPresence is one currently reachable courier.
type CourierPresence struct {
	CourierID CourierID
	PartnerID PartnerID
	Handle    ConnHandle
	// Payload is the last addDriver object the courier sent, replaced on every update.
	Payload   json.RawMessage
	UpdatedAt time.Time
}
