// Package status serves read-only views of the room registry.
package status

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/scarface-loin/Wavy/internal/model/relay"
	roomservice "github.com/scarface-loin/Wavy/internal/service/room"
	"github.com/scarface-loin/Wavy/pkg/utils"
)

const defaultStatsInterval = 5 * time.Second

// RoomStats describes one room in the stats listing.
type RoomStats struct {
	RoomID       string `json:"roomId"`
	Participants int    `json:"participants"`
	Messages     int    `json:"messages"`
	CreatedAt    int64  `json:"createdAt"`
}

// Stats is the aggregate payload of GET /api/stats.
type Stats struct {
	TotalRooms        int         `json:"totalRooms"`
	TotalParticipants int         `json:"totalParticipants"`
	Rooms             []RoomStats `json:"rooms"`
}

// RoomDetail is the payload of GET /api/room/{roomId}.
type RoomDetail struct {
	RoomID       string              `json:"roomId"`
	Participants []relay.Participant `json:"participants"`
	MessageCount int                 `json:"messageCount"`
	CreatedAt    int64               `json:"createdAt"`
}

// Health is the payload of GET /health.
type Health struct {
	Status    string  `json:"status"`
	Uptime    float64 `json:"uptime"`
	RoomCount int     `json:"roomCount"`
}

// Handler exposes registry statistics over HTTP.
type Handler struct {
	registry      *roomservice.Registry
	statsInterval time.Duration
	startedAt     time.Time
	log           *slog.Logger
	now           func() time.Time
}

// New creates a status handler. statsInterval paces the SSE stream.
func New(registry *roomservice.Registry, statsInterval time.Duration, logger *slog.Logger) *Handler {
	if statsInterval <= 0 {
		statsInterval = defaultStatsInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		registry:      registry,
		statsInterval: statsInterval,
		startedAt:     time.Now(),
		log:           logger.With("component", "status"),
		now:           time.Now,
	}
}

// RegisterRoutes mounts the stats endpoints, typically under /api.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stats", h.handleStats)
	r.Get("/stats/stream", h.handleStatsStream)
	r.Get("/room/{roomID}", h.handleRoom)
}

// Health reports liveness together with uptime in seconds.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, Health{
		Status:    "ok",
		Uptime:    h.now().Sub(h.startedAt).Seconds(),
		RoomCount: h.registry.Count(),
	})
}

// Snapshot collects the current stats. It has no side effects on the
// registry.
func (h *Handler) Snapshot() Stats {
	stats := Stats{Rooms: []RoomStats{}}
	for s := range h.registry.All() {
		stats.TotalRooms++
		stats.TotalParticipants += s.Participants
		stats.Rooms = append(stats.Rooms, RoomStats{
			RoomID:       s.RoomID,
			Participants: s.Participants,
			Messages:     s.Messages,
			CreatedAt:    s.CreatedAt.UnixMilli(),
		})
	}
	return stats
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.Snapshot())
}

func (h *Handler) handleStatsStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	h.log.Debug("stats.stream.open", "remote", r.RemoteAddr)
	defer h.log.Debug("stats.stream.close", "remote", r.RemoteAddr)

	ticker := time.NewTicker(h.statsInterval)
	defer ticker.Stop()

	for {
		if err := utils.SendSSEEvent(w, flusher, "stats", h.Snapshot()); err != nil {
			h.log.Debug("stats.stream.write", "err", err)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (h *Handler) handleRoom(w http.ResponseWriter, r *http.Request) {
	rm, err := h.registry.Get(chi.URLParam(r, "roomID"))
	if errors.Is(err, roomservice.ErrRoomNotFound) {
		utils.RespondError(w, http.StatusNotFound, "Room not found")
		return
	}
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	summary := rm.Summary()
	utils.RespondJSON(w, http.StatusOK, RoomDetail{
		RoomID:       summary.RoomID,
		Participants: rm.ParticipantsSnapshot(),
		MessageCount: summary.Messages,
		CreatedAt:    summary.CreatedAt.UnixMilli(),
	})
}
