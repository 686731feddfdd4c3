// Package lobby hands out codes for new rooms.
package lobby

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	roomservice "github.com/scarface-loin/Wavy/internal/service/room"
	"github.com/scarface-loin/Wavy/pkg/utils"
)

const maxAttempts = 8

// CodeSource yields candidate room codes.
type CodeSource interface {
	Next() string
}

// CreateRoomResponse is returned by POST /rooms.
type CreateRoomResponse struct {
	RoomID string `json:"roomId"`
}

// Handler serves room code allocation.
type Handler struct {
	registry *roomservice.Registry
	codes    CodeSource
	log      *slog.Logger
}

// New builds a Handler. A nil logger falls back to slog.Default.
func New(registry *roomservice.Registry, codes CodeSource, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{registry: registry, codes: codes, log: logger.With("component", "lobby")}
}

// RegisterRoutes mounts POST /rooms.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/rooms", h.createRoom)
}

// createRoom reserves nothing: the room comes into being on first join. It
// only avoids codes of rooms that are live right now.
func (h *Handler) createRoom(w http.ResponseWriter, r *http.Request) {
	for i := 0; i < maxAttempts; i++ {
		code := roomservice.NormalizeID(h.codes.Next())
		if _, err := h.registry.Get(code); err == nil {
			continue
		}
		h.log.Info("room.code.issued", "room", code)
		utils.RespondJSON(w, http.StatusCreated, CreateRoomResponse{RoomID: code})
		return
	}
	h.log.Error("room.code.exhausted", "attempts", maxAttempts)
	utils.RespondError(w, http.StatusServiceUnavailable, "could not allocate a room code")
}
