package lobby

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/go-chi/chi/v5"

	roomservice "github.com/scarface-loin/Wavy/internal/service/room"
	"github.com/scarface-loin/Wavy/internal/service/roomcode"
)

type scriptedCodes struct {
	codes []string
}

func (s *scriptedCodes) Next() string {
	code := s.codes[0]
	if len(s.codes) > 1 {
		s.codes = s.codes[1:]
	}
	return code
}

func setupRouter(codes CodeSource) (*chi.Mux, *roomservice.Registry) {
	registry := roomservice.NewRegistry(roomservice.Options{})
	r := chi.NewRouter()
	New(registry, codes, nil).RegisterRoutes(r)
	return r, registry
}

func post(r http.Handler) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/rooms", nil))
	return resp
}

func TestCreateRoomReturnsCode(t *testing.T) {
	gen, err := roomcode.New(roomcode.DefaultLength)
	if err != nil {
		t.Fatalf("generator: %v", err)
	}
	r, registry := setupRouter(gen)

	resp := post(r)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}
	var body CreateRoomResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !regexp.MustCompile(`^[A-Z0-9]{6}$`).MatchString(body.RoomID) {
		t.Fatalf("expected 6 character code, got %q", body.RoomID)
	}
	if registry.Count() != 0 {
		t.Fatalf("expected no room to be created, got %d", registry.Count())
	}
}

func TestCreateRoomSkipsLiveCodes(t *testing.T) {
	r, registry := setupRouter(&scriptedCodes{codes: []string{"TAKEN1", "FRESH2"}})
	registry.GetOrCreate("TAKEN1")

	var body CreateRoomResponse
	if err := json.Unmarshal(post(r).Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.RoomID != "FRESH2" {
		t.Fatalf("expected FRESH2, got %q", body.RoomID)
	}
}

func TestCreateRoomGivesUpWhenEveryCodeIsLive(t *testing.T) {
	r, registry := setupRouter(&scriptedCodes{codes: []string{"TAKEN1"}})
	registry.GetOrCreate("TAKEN1")

	if resp := post(r); resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}
