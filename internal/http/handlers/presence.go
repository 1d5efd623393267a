package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"courier-dispatch/internal/dispatch"
	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/presence"
)

// PresenceHandler exposes a read-only operator view of the registry.
type PresenceHandler struct {
	reader presenceReader
	logger logx.Logger
}

// NewPresenceHandler wires the registry into HTTP handlers.
func NewPresenceHandler(registry *presence.Registry, logger logx.Logger) *PresenceHandler {
	return newPresenceHandler(registry, logger)
}

func newPresenceHandler(reader presenceReader, logger logx.Logger) *PresenceHandler {
	if logger == nil {
		logger = logx.Nop()
	}
	return &PresenceHandler{reader: reader, logger: logger}
}

type presenceList struct {
	Count    int                     `json:"count"`
	Couriers []dispatch.PresenceView `json:"couriers"`
}

// List handles GET /presence?partnerId=.
func (h *PresenceHandler) List(w http.ResponseWriter, r *http.Request) {
	partner := domain.PartnerID(strings.TrimSpace(r.URL.Query().Get("partnerId")))

	out := presenceList{Couriers: []dispatch.PresenceView{}}
	for p := range h.reader.List(partner) {
		out.Couriers = append(out.Couriers, dispatch.ViewOf(p))
	}
	out.Count = len(out.Couriers)
	writeJSON(h.logger, w, r, http.StatusOK, out)
}

// Get handles GET /presence/{courierId}.
func (h *PresenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "courierId"))
	if id == "" {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid courier id")
		return
	}
	p, ok := h.reader.Lookup(domain.CourierID(id))
	if !ok {
		writeError(h.logger, w, r, http.StatusNotFound, "not found")
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, dispatch.ViewOf(p))
}
