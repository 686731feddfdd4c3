package room

import (
	"iter"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Options configures rooms created by a Registry.
type Options struct {
	HistoryLimit int
	Logger       *slog.Logger
	// OnDrop is called once per frame a member's connection refused.
	OnDrop func()
}

// Registry is the single source of truth mapping room ids to live rooms.
// Lock order is Registry.mu before Room.mu.
type Registry struct {
	opts Options
	log  *slog.Logger
	now  func() time.Time

	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		opts:  opts,
		log:   logger,
		now:   time.Now,
		rooms: make(map[string]*Room),
	}
}

// NormalizeID folds a human-entered room code to its canonical form.
func NormalizeID(roomID string) string {
	return strings.ToUpper(strings.TrimSpace(roomID))
}

// GetOrCreate returns the live room for roomID, creating it if needed.
// Concurrent callers for the same id always observe the same *Room.
func (g *Registry) GetOrCreate(roomID string) (*Room, bool) {
	id := NormalizeID(roomID)

	g.mu.RLock()
	rm, ok := g.rooms[id]
	g.mu.RUnlock()
	if ok {
		return rm, false
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if rm, ok := g.rooms[id]; ok {
		return rm, false
	}
	rm = newRoom(id, g.now().UTC(), g.opts)
	g.rooms[id] = rm
	g.log.Info("room.created", "room", id)
	return rm, true
}

// Get looks up a live room.
func (g *Registry) Get(roomID string) (*Room, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rm, ok := g.rooms[NormalizeID(roomID)]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return rm, nil
}

// Remove deletes roomID from the registry unless it still has members.
func (g *Registry) Remove(roomID string) bool {
	return g.remove(NormalizeID(roomID), func(*Room) bool { return true })
}

// Release removes rm only if it is still the live room for its id and empty.
func (g *Registry) Release(rm *Room) bool {
	return g.remove(rm.ID(), func(live *Room) bool { return live == rm })
}

// RemoveIdle removes roomID when it is empty and was created before cutoff.
// Both conditions are evaluated under the room lock.
func (g *Registry) RemoveIdle(roomID string, cutoff time.Time) bool {
	return g.remove(NormalizeID(roomID), func(rm *Room) bool { return rm.createdAt.Before(cutoff) })
}

func (g *Registry) remove(id string, eligible func(*Room) bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	rm, ok := g.rooms[id]
	if !ok || !eligible(rm) {
		return false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if len(rm.members) > 0 {
		return false
	}
	rm.closed = true
	delete(g.rooms, id)
	return true
}

// Count returns the number of live rooms.
func (g *Registry) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

// IDs returns the live room ids, sorted.
func (g *Registry) IDs() []string {
	g.mu.RLock()
	ids := make([]string, 0, len(g.rooms))
	for id := range g.rooms {
		ids = append(ids, id)
	}
	g.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// All yields a summary for every room live at call time, ordered by id.
// Each summary is read when yielded, under that room's own lock only. The
// sequence is single-use: ranging it a second time yields nothing, so call
// All again for a fresh snapshot.
func (g *Registry) All() iter.Seq[Summary] {
	g.mu.RLock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, rm := range g.rooms {
		rooms = append(rooms, rm)
	}
	g.mu.RUnlock()
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].id < rooms[j].id })

	var used atomic.Bool
	return func(yield func(Summary) bool) {
		if used.Swap(true) {
			return
		}
		for _, rm := range rooms {
			if !yield(rm.Summary()) {
				return
			}
		}
	}
}
