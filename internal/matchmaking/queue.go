// Package matchmaking pairs anonymous players. Each variant has at
// most one pending room waiting for a second player; consuming that
// slot is atomic, so exactly one joiner wins a race and the loser
// simply becomes the next slot's creator.
package matchmaking

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/veilchess/veilchess-server/internal/game"
)

// Queue is the single-slot waiting room per variant.
type Queue interface {
	// EnqueueOrPair consumes the pending slot for the variant when one
	// exists (paired=true, caller takes the second seat) or registers a
	// fresh pending room (paired=false, caller waits). A connection
	// already holding the slot gets its own pending room back unpaired;
	// a lone enqueuer is never paired with itself.
	EnqueueOrPair(ctx context.Context, v game.Variant, connID string) (roomID string, paired bool, err error)
	// Clear drops the slot for the variant when it still points at
	// roomID. Called on room deletion and when the waiting player leaves.
	Clear(ctx context.Context, v game.Variant, roomID string) error
}

// NewRoomID mints a room identifier that encodes its variant.
func NewRoomID(v game.Variant) string {
	return string(v) + "-" + uuid.NewString()
}

// VariantOf recovers the variant a room id encodes.
func VariantOf(roomID string) (game.Variant, bool) {
	for _, v := range []game.Variant{
		game.VariantHiddenQueen, game.VariantPoisonedPawn, game.VariantMorphedKing,
		game.VariantHillRace, game.VariantRegicide, game.VariantStandard,
	} {
		if strings.HasPrefix(roomID, string(v)+"-") {
			return v, true
		}
	}
	return "", false
}

type slot struct {
	RoomID string `json:"room_id"`
	ConnID string `json:"conn_id"`
}

// MemoryQueue is the in-process implementation used when no Redis is
// configured, and by tests.
type MemoryQueue struct {
	mu    sync.Mutex
	slots map[game.Variant]slot
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{slots: make(map[game.Variant]slot)}
}

func (q *MemoryQueue) EnqueueOrPair(_ context.Context, v game.Variant, connID string) (string, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if pending, ok := q.slots[v]; ok {
		if pending.ConnID == connID {
			return pending.RoomID, false, nil
		}
		delete(q.slots, v)
		return pending.RoomID, true, nil
	}
	id := NewRoomID(v)
	q.slots[v] = slot{RoomID: id, ConnID: connID}
	return id, false, nil
}

func (q *MemoryQueue) Clear(_ context.Context, v game.Variant, roomID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if pending, ok := q.slots[v]; ok && pending.RoomID == roomID {
		delete(q.slots, v)
	}
	return nil
}
