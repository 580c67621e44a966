package room

import (
	"errors"
	"sync"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/veilchess/veilchess-server/internal/game"
	"github.com/veilchess/veilchess-server/internal/obslog"
)

var ErrRoomNotFound = errors.New("room not found")

// DeleteHook runs after a room leaves the registry, outside the store
// lock. Used to release the room's clock and matchmaking slot.
type DeleteHook func(r *Room)

// Store is the in-memory room registry. Nothing outside this package
// touches the underlying map; every operation is atomic here.
type Store struct {
	clk      clockwork.Clock
	maxRooms int // 0 means unlimited

	mu    sync.RWMutex
	rooms map[string]*Room

	onDelete DeleteHook
}

func NewStore(clk clockwork.Clock, maxRooms int, onDelete DeleteHook) *Store {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Store{clk: clk, maxRooms: maxRooms, rooms: make(map[string]*Room), onDelete: onDelete}
}

// CreateIfAbsent returns the room for id, creating it when missing.
// Idempotent under concurrent first joins: exactly one Room wins, and
// created reports whether this call was the winner. The room cap is
// enforced under the same lock as the create, so concurrent first
// joins cannot overshoot it; a nil room means the cap was hit.
// Existing rooms resolve regardless of the cap.
func (s *Store) CreateIfAbsent(id string, v game.Variant) (*Room, bool) {
	s.mu.Lock()
	if r, ok := s.rooms[id]; ok {
		s.mu.Unlock()
		return r, false
	}
	if s.maxRooms > 0 && len(s.rooms) >= s.maxRooms {
		s.mu.Unlock()
		obslog.L().Warn("room_limit_reached", zap.Int("max_rooms", s.maxRooms), zap.String("room_id", id))
		return nil, false
	}
	r := newRoom(id, v, s.clk.Now())
	s.rooms[id] = r
	s.mu.Unlock()

	obslog.L().Info("room_create", zap.String("room_id", id), zap.String("variant", string(v)))
	return r, true
}

func (s *Store) Get(id string) (*Room, error) {
	s.mu.RLock()
	r, ok := s.rooms[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

// Delete removes a room and fires the delete hook. Chat logs and clock
// timers go with it; there is no partial retention.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	r, ok := s.rooms[id]
	if ok {
		delete(s.rooms, id)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	obslog.L().Info("room_delete", zap.String("room_id", id), zap.String("variant", string(r.Variant)))
	if s.onDelete != nil {
		s.onDelete(r)
	}
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}
