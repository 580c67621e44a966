package clock

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/veilchess/veilchess-server/internal/game"
)

func newTestService(t *testing.T, onExpire ExpireFunc) (*Service, *clockwork.FakeClock) {
	t.Helper()
	fc := clockwork.NewFakeClock()
	s := NewService(fc, onExpire)
	t.Cleanup(s.Stop)
	return s, fc
}

func TestApplyMoveChargesMoverAndSwitchesTurn(t *testing.T) {
	s, fc := newTestService(t, nil)
	s.Attach("r1", time.Minute)
	s.Begin("r1", game.White)

	fc.Advance(10 * time.Second)
	snap, expired := s.ApplyMove("r1", game.White)
	if expired {
		t.Fatalf("flag fell after 10s of a 60s budget")
	}
	if snap.ToMove != game.Black {
		t.Fatalf("turn = %s, want black", snap.ToMove)
	}
	// pacing discounts the charge slightly
	charged := time.Minute - snap.WhiteRemaining
	want := time.Duration(float64(10*time.Second) * pacingFactor)
	if charged != want {
		t.Fatalf("charged %v, want %v", charged, want)
	}
	if snap.BlackRemaining != time.Minute {
		t.Fatalf("idle side charged: %v", snap.BlackRemaining)
	}
}

func TestTickConservation(t *testing.T) {
	s, fc := newTestService(t, nil)
	s.Attach("r1", time.Minute)
	s.Begin("r1", game.White)

	prev, _ := s.Sync("r1")
	for i := 0; i < 5; i++ {
		fc.Advance(3 * time.Second)
		snap, _, expired := s.Tick("r1")
		if expired {
			t.Fatalf("unexpected expiry at tick %d", i)
		}
		if snap.WhiteRemaining < 0 || snap.BlackRemaining < 0 {
			t.Fatalf("negative remaining: %+v", snap)
		}
		if snap.WhiteRemaining > prev.WhiteRemaining {
			t.Fatalf("remaining increased: %v -> %v", prev.WhiteRemaining, snap.WhiteRemaining)
		}
		if snap.BlackRemaining != prev.BlackRemaining {
			t.Fatalf("side not to move changed: %v -> %v", prev.BlackRemaining, snap.BlackRemaining)
		}
		prev = snap
	}
}

func TestTickDeclaresExpiry(t *testing.T) {
	s, fc := newTestService(t, nil)
	s.Attach("r1", 2*time.Second)
	s.Begin("r1", game.Black)

	fc.Advance(10 * time.Second)
	snap, loser, expired := s.Tick("r1")
	if !expired || loser != game.Black {
		t.Fatalf("expired=%v loser=%s", expired, loser)
	}
	if snap.BlackRemaining != 0 {
		t.Fatalf("remaining clamped to %v, want 0", snap.BlackRemaining)
	}
	// a fallen flag stops the clock; further ticks report no new expiry
	if _, _, again := s.Tick("r1"); again {
		t.Fatalf("expiry reported twice")
	}
}

func TestWatchdogFiresWithoutClientPings(t *testing.T) {
	var mu sync.Mutex
	var gotRoom string
	var gotLoser game.Color
	fired := make(chan struct{})

	s, fc := newTestService(t, func(roomID string, loser game.Color) {
		mu.Lock()
		gotRoom, gotLoser = roomID, loser
		mu.Unlock()
		close(fired)
	})
	s.Attach("r1", time.Second)
	s.Begin("r1", game.White)
	s.Start()

	fc.BlockUntil(1)
	fc.Advance(5 * time.Second)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("watchdog never fired")
	}
	mu.Lock()
	defer mu.Unlock()
	if gotRoom != "r1" || gotLoser != game.White {
		t.Fatalf("expiry = %s/%s", gotRoom, gotLoser)
	}
}

func TestPauseFreezesBothSides(t *testing.T) {
	s, fc := newTestService(t, nil)
	s.Attach("r1", time.Minute)
	s.Begin("r1", game.White)

	fc.Advance(5 * time.Second)
	s.Pause("r1")
	before, _ := s.Sync("r1")

	fc.Advance(time.Hour)
	after, _ := s.Sync("r1")
	if after.WhiteRemaining != before.WhiteRemaining || after.BlackRemaining != before.BlackRemaining {
		t.Fatalf("paused clock drifted: %+v -> %+v", before, after)
	}
}

func TestResetRestoresBudget(t *testing.T) {
	s, fc := newTestService(t, nil)
	s.Attach("r1", time.Minute)
	s.Begin("r1", game.White)
	fc.Advance(20 * time.Second)
	s.Tick("r1")

	s.Reset("r1")
	snap, ok := s.Sync("r1")
	if !ok || snap.WhiteRemaining != time.Minute || snap.BlackRemaining != time.Minute {
		t.Fatalf("after reset: %+v", snap)
	}
	if snap.Running {
		t.Fatalf("reset clock still running")
	}
}

func TestDetachForgetsRoom(t *testing.T) {
	s, _ := newTestService(t, nil)
	s.Attach("r1", time.Minute)
	s.Detach("r1")
	if _, ok := s.Sync("r1"); ok {
		t.Fatalf("detached room still known")
	}
	if snap, _ := s.ApplyMove("r1", game.White); snap.Running {
		t.Fatalf("move applied to detached room")
	}
}
