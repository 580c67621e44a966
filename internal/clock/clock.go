// Package clock owns the per-room countdown pair. Only server-measured
// elapsed time is ever applied; client-reported remaining values are
// advisory and at most cause a tick to be taken on the server's own
// terms.
package clock

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/veilchess/veilchess-server/internal/game"
)

// pacingFactor scales measured wall-time deltas down slightly so that
// network and application overhead is not charged to the player.
const pacingFactor = 0.97

// watchdogInterval is how often the service checks for flag falls even
// when no client is reporting ticks.
const watchdogInterval = time.Second

// Snapshot is a read-only view of one room clock.
type Snapshot struct {
	WhiteRemaining time.Duration
	BlackRemaining time.Duration
	LastMoveAt     time.Time
	ToMove         game.Color
	Running        bool
}

type roomClock struct {
	white      time.Duration
	black      time.Duration
	budget     time.Duration
	lastMoveAt time.Time
	lastTickAt time.Time
	toMove     game.Color
	running    bool
}

// ExpireFunc is called once when a side's countdown reaches zero.
type ExpireFunc func(roomID string, loser game.Color)

// Service keeps one countdown pair per room and a watchdog that can
// declare time expiry independently of client pings.
type Service struct {
	clk      clockwork.Clock
	onExpire ExpireFunc

	mu    sync.Mutex
	rooms map[string]*roomClock

	stopOnce sync.Once
	stop     chan struct{}
}

func NewService(clk clockwork.Clock, onExpire ExpireFunc) *Service {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Service{
		clk:      clk,
		onExpire: onExpire,
		rooms:    make(map[string]*roomClock),
		stop:     make(chan struct{}),
	}
}

// SetOnExpire installs the expiry callback. Must be called before
// Start; it exists to break the construction cycle with the component
// that owns the terminal game path.
func (s *Service) SetOnExpire(fn ExpireFunc) {
	s.onExpire = fn
}

// Start launches the expiry watchdog.
func (s *Service) Start() {
	go s.watch()
}

func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Service) watch() {
	ticker := s.clk.NewTicker(watchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.Chan():
			s.sweep()
		}
	}
}

func (s *Service) sweep() {
	type expiry struct {
		roomID string
		loser  game.Color
	}
	var expired []expiry

	s.mu.Lock()
	now := s.clk.Now()
	for id, rc := range s.rooms {
		if !rc.running {
			continue
		}
		rc.applyElapsed(now)
		if loser, ok := rc.flagFallen(); ok {
			rc.running = false
			expired = append(expired, expiry{roomID: id, loser: loser})
		}
	}
	s.mu.Unlock()

	if s.onExpire == nil {
		return
	}
	for _, e := range expired {
		s.onExpire(e.roomID, e.loser)
	}
}

// Attach registers a stopped clock with the given budget per side.
func (s *Service) Attach(roomID string, budget time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[roomID] = &roomClock{white: budget, black: budget, budget: budget, toMove: game.White}
}

// Detach discards a room's clock entirely.
func (s *Service) Detach(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
}

// Begin starts the countdown for the side to move. Called when the
// second seat fills.
func (s *Service) Begin(roomID string, toMove game.Color) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rc, ok := s.rooms[roomID]
	if !ok {
		return
	}
	now := s.clk.Now()
	rc.toMove = toMove
	rc.lastMoveAt = now
	rc.lastTickAt = now
	rc.running = true
}

// Pause freezes both countdowns, charging the side to move up to now.
func (s *Service) Pause(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rc, ok := s.rooms[roomID]
	if !ok || !rc.running {
		return
	}
	rc.applyElapsed(s.clk.Now())
	rc.running = false
}

// Reset restores both sides to the full budget. Used on a full
// reseating, when a vacated seat refills.
func (s *Service) Reset(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rc, ok := s.rooms[roomID]
	if !ok {
		return
	}
	rc.white = rc.budget
	rc.black = rc.budget
	rc.toMove = game.White
	rc.running = false
}

// ApplyMove charges the mover with the server-measured elapsed time and
// hands the turn to the opponent. The returned snapshot reflects the
// post-move state; expired reports whether the mover's flag fell first.
func (s *Service) ApplyMove(roomID string, mover game.Color) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rc, ok := s.rooms[roomID]
	if !ok {
		return Snapshot{}, false
	}
	now := s.clk.Now()
	if rc.running {
		rc.applyElapsed(now)
	}
	if loser, fallen := rc.flagFallen(); fallen && loser == mover {
		rc.running = false
		return rc.snapshot(), true
	}
	rc.toMove = mover.Opponent()
	rc.lastMoveAt = now
	rc.lastTickAt = now
	return rc.snapshot(), false
}

// Tick charges the side to move with the elapsed time since the last
// accepted tick. Client updateTime reports are handled through here, so
// the reported values themselves never enter the clock.
func (s *Service) Tick(roomID string) (Snapshot, game.Color, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rc, ok := s.rooms[roomID]
	if !ok || !rc.running {
		if !ok {
			return Snapshot{}, "", false
		}
		return rc.snapshot(), "", false
	}
	rc.applyElapsed(s.clk.Now())
	if loser, fallen := rc.flagFallen(); fallen {
		rc.running = false
		return rc.snapshot(), loser, true
	}
	return rc.snapshot(), "", false
}

// Sync returns the current view without charging a tick, for clients
// that reconnected and need to resynchronize.
func (s *Service) Sync(roomID string) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rc, ok := s.rooms[roomID]
	if !ok {
		return Snapshot{}, false
	}
	view := *rc
	if view.running {
		view.applyElapsed(s.clk.Now())
	}
	return view.snapshot(), true
}

func (rc *roomClock) applyElapsed(now time.Time) {
	elapsed := now.Sub(rc.lastTickAt)
	if elapsed <= 0 {
		return
	}
	charge := time.Duration(float64(elapsed) * pacingFactor)
	if rc.toMove == game.White {
		rc.white -= charge
		if rc.white < 0 {
			rc.white = 0
		}
	} else {
		rc.black -= charge
		if rc.black < 0 {
			rc.black = 0
		}
	}
	rc.lastTickAt = now
}

func (rc *roomClock) flagFallen() (game.Color, bool) {
	if rc.toMove == game.White && rc.white <= 0 {
		return game.White, true
	}
	if rc.toMove == game.Black && rc.black <= 0 {
		return game.Black, true
	}
	return "", false
}

func (rc *roomClock) snapshot() Snapshot {
	return Snapshot{
		WhiteRemaining: rc.white,
		BlackRemaining: rc.black,
		LastMoveAt:     rc.lastMoveAt,
		ToMove:         rc.toMove,
		Running:        rc.running,
	}
}
