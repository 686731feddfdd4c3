package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/scarface-loin/Wavy/internal/handler/relay"
	"github.com/scarface-loin/Wavy/internal/metrics"
	roomService "github.com/scarface-loin/Wavy/internal/service/room"
	"github.com/scarface-loin/Wavy/internal/service/roomcode"
)

func setupRouter(t *testing.T) http.Handler {
	t.Helper()
	registry := roomService.NewRegistry(roomService.Options{})
	codes, err := roomcode.New(roomcode.DefaultLength)
	if err != nil {
		t.Fatalf("codes: %v", err)
	}
	m := metrics.New(func() float64 { return float64(registry.Count()) }, nil)
	return NewRouter(Deps{
		Registry:  registry,
		Relay:     relay.New(registry, relay.Options{}, nil, m, nil),
		Codes:     codes,
		Metrics:   m,
		CORSAllow: []string{"*"},
	})
}

func TestRouterServesEndpoints(t *testing.T) {
	r := setupRouter(t)

	cases := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/api/stats", http.StatusOK},
		{http.MethodGet, "/api/room/NOPE", http.StatusNotFound},
		{http.MethodPost, "/api/rooms", http.StatusCreated},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/ws", http.StatusBadRequest},
	}
	for _, tc := range cases {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(tc.method, tc.path, nil))
		if resp.Code != tc.want {
			t.Fatalf("%s %s: expected %d, got %d", tc.method, tc.path, tc.want, resp.Code)
		}
	}
}

func TestRouterMetricsExposeRoomGauge(t *testing.T) {
	r := setupRouter(t)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(resp.Body.String(), "wavy_rooms 0") {
		t.Fatalf("expected room gauge in metrics output")
	}
}
