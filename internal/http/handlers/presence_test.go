package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"courier-dispatch/internal/dispatch"
	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/http/handlers"
	"courier-dispatch/internal/presence"
)

type listResponse struct {
	Count    int                     `json:"count"`
	Couriers []dispatch.PresenceView `json:"couriers"`
}

func seededRegistry() *presence.Registry {
	r := presence.NewRegistry()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for _, p := range []domain.CourierPresence{
		{CourierID: "c2", PartnerID: "acme", Handle: "h2", Payload: json.RawMessage(`{"courierId":"c2"}`), UpdatedAt: at},
		{CourierID: "c1", PartnerID: "acme", Handle: "h1", Payload: json.RawMessage(`{"courierId":"c1"}`), UpdatedAt: at},
		{CourierID: "c3", PartnerID: "globex", Handle: "h3", Payload: json.RawMessage(`{"courierId":"c3"}`), UpdatedAt: at},
	} {
		r.Register(p)
	}
	return r
}

func withCourierParam(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("courierId", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestPresenceHandler_List(t *testing.T) {
	t.Parallel()

	h := handlers.NewPresenceHandler(seededRegistry(), nil)

	cases := []struct {
		name  string
		query string
		want  []domain.CourierID
	}{
		{name: "all", query: "", want: []domain.CourierID{"c1", "c2", "c3"}},
		{name: "by partner", query: "?partnerId=acme", want: []domain.CourierID{"c1", "c2"}},
		{name: "unknown partner", query: "?partnerId=initech", want: []domain.CourierID{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.List(w, httptest.NewRequest(http.MethodGet, "/presence"+tc.query, nil))
			require.Equal(t, http.StatusOK, w.Code)

			var got listResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			require.Equal(t, len(tc.want), got.Count)
			ids := make([]domain.CourierID, 0, len(got.Couriers))
			for _, v := range got.Couriers {
				ids = append(ids, v.CourierID)
			}
			require.Equal(t, tc.want, ids)
		})
	}
}

func TestPresenceHandler_EmptyListIsArray(t *testing.T) {
	t.Parallel()

	h := handlers.NewPresenceHandler(presence.NewRegistry(), nil)
	w := httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/presence", nil))

	require.JSONEq(t, `{"count":0,"couriers":[]}`, w.Body.String())
}

func TestPresenceHandler_Get(t *testing.T) {
	t.Parallel()

	h := handlers.NewPresenceHandler(seededRegistry(), nil)

	w := httptest.NewRecorder()
	h.Get(w, withCourierParam(httptest.NewRequest(http.MethodGet, "/presence/c3", nil), "c3"))
	require.Equal(t, http.StatusOK, w.Code)
	var view dispatch.PresenceView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	require.Equal(t, domain.CourierID("c3"), view.CourierID)
	require.Equal(t, domain.PartnerID("globex"), view.PartnerID)
	require.Equal(t, domain.ConnHandle("h3"), view.ConnectionHandle)
	require.JSONEq(t, `{"courierId":"c3"}`, string(view.Data))

	w = httptest.NewRecorder()
	h.Get(w, withCourierParam(httptest.NewRequest(http.MethodGet, "/presence/zz", nil), "zz"))
	require.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	h.Get(w, withCourierParam(httptest.NewRequest(http.MethodGet, "/presence/%20", nil), " "))
	require.Equal(t, http.StatusBadRequest, w.Code)
}
