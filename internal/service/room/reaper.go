package room

import (
	"context"
	"log/slog"
	"time"
)

const (
	DefaultReapInterval = 30 * time.Minute
	DefaultRetention    = 2 * time.Hour
)

// Reaper periodically evicts rooms that have been empty past the retention
// window. Rooms normally disappear on their last leave; this catches the ones
// whose close never arrived.
type Reaper struct {
	registry  *Registry
	interval  time.Duration
	retention time.Duration
	log       *slog.Logger

	// OnReap, when set, receives the number of rooms evicted per sweep.
	OnReap func(n int)
}

// NewReaper builds a reaper; zero durations fall back to the defaults.
func NewReaper(registry *Registry, interval, retention time.Duration, logger *slog.Logger) *Reaper {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{
		registry:  registry,
		interval:  interval,
		retention: retention,
		log:       logger.With("component", "reaper"),
	}
}

// Sweep evicts every idle room created before now minus the retention window
// and returns the evicted ids.
func (r *Reaper) Sweep(now time.Time) []string {
	cutoff := now.Add(-r.retention)
	var evicted []string
	for _, id := range r.registry.IDs() {
		if r.registry.RemoveIdle(id, cutoff) {
			evicted = append(evicted, id)
			r.log.Info("room.reaped", "room", id)
		}
	}
	if r.OnReap != nil && len(evicted) > 0 {
		r.OnReap(len(evicted))
	}
	return evicted
}

// Run sweeps every interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("reaper.started", "interval", r.interval, "retention", r.retention)
	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-ticker.C:
			r.Sweep(t)
		}
	}
}
