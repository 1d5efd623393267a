package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/domain"
)

// Inbound message types.
const (
	TypeAddDriver           = "addDriver"
	TypeGetDrivers          = "getDrivers"
	TypeGetDriversByPartner = "getDriversByPartner"
	TypeSelectDriver        = "selectDriver"
	TypePickupReply         = "pickupReply"
	TypeCancelRequest       = "cancelRequest"
	TypeGetDriver           = "getDriver"
)

// Outbound message types. A cancellation is forwarded as TypeCancelRequest.
const (
	TypeDriversList   = "driversList"
	TypePickupRequest = "pickupRequest"
	TypeAnswer        = "answer"
	TypeLocation      = "location"
)

// CustomerHandleKey is added to customer payloads forwarded to a courier so
// the courier can address its pickupReply.
const CustomerHandleKey = "customerConnectionHandle"

// Envelope is the frame format in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// PresenceView is how a presence entry is shown to clients.
type PresenceView struct {
	CourierID        domain.CourierID  `json:"courierId"`
	PartnerID        domain.PartnerID  `json:"partnerId,omitempty"`
	ConnectionHandle domain.ConnHandle `json:"connectionHandle"`
	Data             json.RawMessage   `json:"data"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// ViewOf converts a registry entry to its wire view.
func ViewOf(p domain.CourierPresence) PresenceView {
	return PresenceView{
		CourierID:        p.CourierID,
		PartnerID:        p.PartnerID,
		ConnectionHandle: p.Handle,
		Data:             p.Payload,
		UpdatedAt:        p.UpdatedAt,
	}
}

// Encode builds an outbound frame.
func Encode(msgType string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msgType, err)
	}
	return json.Marshal(Envelope{Type: msgType, Data: raw})
}

// DecodeEnvelope parses an inbound frame.
func DecodeEnvelope(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: envelope: %v", apperr.Invalid, err)
	}
	if strings.TrimSpace(env.Type) == "" {
		return Envelope{}, fmt.Errorf("%w: envelope: missing type", apperr.Invalid)
	}
	return env, nil
}

type addDriver struct {
	CourierID domain.CourierID
	PartnerID domain.PartnerID
	Payload   json.RawMessage
}

func decodeAddDriver(data json.RawMessage) (addDriver, error) {
	var head struct {
		CourierID string `json:"courierId"`
		PartnerID string `json:"partnerId"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return addDriver{}, fmt.Errorf("%w: %s: %v", apperr.Invalid, TypeAddDriver, err)
	}
	if strings.TrimSpace(head.CourierID) == "" {
		return addDriver{}, fmt.Errorf("%w: %s: missing courierId", apperr.Invalid, TypeAddDriver)
	}
	return addDriver{
		CourierID: domain.CourierID(head.CourierID),
		PartnerID: domain.PartnerID(head.PartnerID),
		Payload:   append(json.RawMessage(nil), data...),
	}, nil
}

// decodePartnerFilter accepts null, {"partnerId": "..."} or a bare string.
func decodePartnerFilter(msgType string, data json.RawMessage) (domain.PartnerID, error) {
	if isNull(data) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return domain.PartnerID(s), nil
	}
	var q struct {
		PartnerID string `json:"partnerId"`
	}
	if err := json.Unmarshal(data, &q); err != nil {
		return "", fmt.Errorf("%w: %s: %v", apperr.Invalid, msgType, err)
	}
	return domain.PartnerID(q.PartnerID), nil
}

type courierRequest struct {
	CourierID       domain.CourierID `json:"courierId"`
	CustomerPayload json.RawMessage  `json:"customerPayload"`
}

func decodeCourierRequest(msgType string, data json.RawMessage) (courierRequest, error) {
	var req courierRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return courierRequest{}, fmt.Errorf("%w: %s: %v", apperr.Invalid, msgType, err)
	}
	if strings.TrimSpace(string(req.CourierID)) == "" {
		return courierRequest{}, fmt.Errorf("%w: %s: missing courierId", apperr.Invalid, msgType)
	}
	return req, nil
}

type pickupReply struct {
	CustomerHandle domain.ConnHandle `json:"customerConnectionHandle"`
	Answer         json.RawMessage   `json:"answer"`
}

func decodePickupReply(data json.RawMessage) (pickupReply, error) {
	var rep pickupReply
	if err := json.Unmarshal(data, &rep); err != nil {
		return pickupReply{}, fmt.Errorf("%w: %s: %v", apperr.Invalid, TypePickupReply, err)
	}
	if strings.TrimSpace(string(rep.CustomerHandle)) == "" {
		return pickupReply{}, fmt.Errorf("%w: %s: missing %s", apperr.Invalid, TypePickupReply, CustomerHandleKey)
	}
	return rep, nil
}

func decodeGetDriver(data json.RawMessage) (domain.CourierID, error) {
	var q struct {
		CourierID string `json:"courierId"`
	}
	if err := json.Unmarshal(data, &q); err != nil {
		return "", fmt.Errorf("%w: %s: %v", apperr.Invalid, TypeGetDriver, err)
	}
	if strings.TrimSpace(q.CourierID) == "" {
		return "", fmt.Errorf("%w: %s: missing courierId", apperr.Invalid, TypeGetDriver)
	}
	return domain.CourierID(q.CourierID), nil
}

// enrichCustomer adds the customer's handle to payload. Objects gain a key;
// anything else is wrapped under "payload".
func enrichCustomer(payload json.RawMessage, h domain.ConnHandle) (json.RawMessage, error) {
	handle, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	trimmed := bytes.TrimSpace(payload)
	switch {
	case isNull(trimmed):
	case trimmed[0] == '{':
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return nil, err
		}
	default:
		fields["payload"] = trimmed
	}
	fields[CustomerHandleKey] = handle
	return json.Marshal(fields)
}

func isNull(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
