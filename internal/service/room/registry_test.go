package room

import (
	"errors"
	"iter"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scarface-loin/Wavy/internal/model/relay"
)

var nowForTest = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestRegistryConcurrentFirstJoinCreatesOneRoom(t *testing.T) {
	reg := NewRegistry(Options{})

	const callers = 64
	var (
		wg      sync.WaitGroup
		created atomic.Int32
		rooms   = make([]*Room, callers)
		start   = make(chan struct{})
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			rm, isNew := reg.GetOrCreate("fresh")
			if isNew {
				created.Add(1)
			}
			rooms[i] = rm
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	assert.Equal(t, 1, reg.Count())
	for _, rm := range rooms {
		assert.Same(t, rooms[0], rm)
	}
}

func TestRegistryNormalizesRoomIDs(t *testing.T) {
	reg := NewRegistry(Options{})

	lower, _ := reg.GetOrCreate("abc1")
	upper, created := reg.GetOrCreate("ABC1")

	assert.False(t, created)
	assert.Same(t, lower, upper)
	assert.Equal(t, "ABC1", lower.ID())

	got, err := reg.Get(" Abc1 ")
	require.NoError(t, err)
	assert.Same(t, lower, got)
}

func TestRegistryGetMissingRoom(t *testing.T) {
	reg := NewRegistry(Options{})
	_, err := reg.Get("nope")
	assert.True(t, errors.Is(err, ErrRoomNotFound))
}

func TestRegistryRemoveIgnoresOccupiedRoom(t *testing.T) {
	reg := NewRegistry(Options{})
	rm, _ := reg.GetOrCreate("busy")
	_, err := rm.AddParticipant(&fakeConn{}, "Ana", nil)
	require.NoError(t, err)

	assert.False(t, reg.Remove("busy"))
	assert.Equal(t, 1, reg.Count())
}

func TestRegistryRemoveClosesRoomForLateJoiners(t *testing.T) {
	reg := NewRegistry(Options{})
	stale, _ := reg.GetOrCreate("gone")

	require.True(t, reg.Remove("GONE"))
	_, err := stale.AddParticipant(&fakeConn{}, "Ana", nil)
	assert.ErrorIs(t, err, ErrRoomClosed)

	fresh, created := reg.GetOrCreate("gone")
	assert.True(t, created)
	assert.NotSame(t, stale, fresh)
}

func TestRegistryReleaseOnlyRemovesSameInstance(t *testing.T) {
	reg := NewRegistry(Options{})
	first, _ := reg.GetOrCreate("r1")
	require.True(t, reg.Release(first))

	second, _ := reg.GetOrCreate("r1")
	assert.False(t, reg.Release(first), "stale instance must not evict its replacement")
	assert.Equal(t, 1, reg.Count())

	got, err := reg.Get("r1")
	require.NoError(t, err)
	assert.Same(t, second, got)
}

func TestRegistryAllIsSortedAndSingleUse(t *testing.T) {
	reg := NewRegistry(Options{})
	for _, id := range []string{"zeta", "alpha", "mid"} {
		rm, _ := reg.GetOrCreate(id)
		_, _ = rm.AddParticipant(&fakeConn{}, "u", nil)
	}
	mid, _ := reg.Get("MID")
	mid.RecordHistory(relay.NewChat("u", "hi", 1))

	collect := func(seq iter.Seq[Summary]) []Summary {
		var out []Summary
		for s := range seq {
			out = append(out, s)
		}
		return out
	}

	seq := reg.All()
	first := collect(seq)
	require.Len(t, first, 3)
	assert.Equal(t, "ALPHA", first[0].RoomID)
	assert.Equal(t, "MID", first[1].RoomID)
	assert.Equal(t, 1, first[1].Messages)
	assert.Equal(t, "ZETA", first[2].RoomID)
	assert.Empty(t, collect(seq), "a drained sequence must not restart")
	assert.Equal(t, first, collect(reg.All()))
}

func TestRegistryAllStopsEarly(t *testing.T) {
	reg := NewRegistry(Options{})
	for _, id := range []string{"a", "b", "c"} {
		reg.GetOrCreate(id)
	}

	seen := 0
	for range reg.All() {
		seen++
		break
	}
	assert.Equal(t, 1, seen)
}
