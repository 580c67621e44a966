package matchmaking

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/veilchess/veilchess-server/internal/game"
)

func newTestRedisQueue(t *testing.T) *RedisQueue {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	q, err := NewRedisQueue(fmt.Sprintf("redis://%s/0", mr.Addr()))
	if err != nil {
		t.Fatalf("NewRedisQueue: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func testPairing(t *testing.T, q Queue) {
	t.Helper()
	ctx := context.Background()

	roomA, paired, err := q.EnqueueOrPair(ctx, game.VariantHiddenQueen, "conn-1")
	if err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if paired {
		t.Fatalf("lone enqueuer reported paired")
	}
	if !strings.HasPrefix(roomA, "hidden-queen-") {
		t.Fatalf("room id %q does not encode variant", roomA)
	}

	// same connection re-enqueueing gets its own pending room, unpaired
	roomAgain, paired, err := q.EnqueueOrPair(ctx, game.VariantHiddenQueen, "conn-1")
	if err != nil || paired || roomAgain != roomA {
		t.Fatalf("self re-enqueue: room=%q paired=%v err=%v", roomAgain, paired, err)
	}

	roomB, paired, err := q.EnqueueOrPair(ctx, game.VariantHiddenQueen, "conn-2")
	if err != nil {
		t.Fatalf("second enqueue: %v", err)
	}
	if !paired || roomB != roomA {
		t.Fatalf("distinct identity not paired into same room: room=%q paired=%v", roomB, paired)
	}

	// slot consumed; a third enqueuer starts fresh
	roomC, paired, err := q.EnqueueOrPair(ctx, game.VariantHiddenQueen, "conn-3")
	if err != nil || paired {
		t.Fatalf("third enqueue: paired=%v err=%v", paired, err)
	}
	if roomC == roomA {
		t.Fatalf("consumed slot resurfaced")
	}
}

func TestMemoryQueuePairing(t *testing.T) {
	testPairing(t, NewMemoryQueue())
}

func TestRedisQueuePairing(t *testing.T) {
	testPairing(t, newTestRedisQueue(t))
}

func TestVariantsUseSeparateSlots(t *testing.T) {
	q := newTestRedisQueue(t)
	ctx := context.Background()

	roomHQ, _, err := q.EnqueueOrPair(ctx, game.VariantHiddenQueen, "conn-1")
	if err != nil {
		t.Fatalf("enqueue hidden-queen: %v", err)
	}
	roomStd, paired, err := q.EnqueueOrPair(ctx, game.VariantStandard, "conn-2")
	if err != nil || paired {
		t.Fatalf("standard enqueue crossed variants: paired=%v err=%v", paired, err)
	}
	if roomStd == roomHQ {
		t.Fatalf("variants shared a room id")
	}
}

func TestClearDropsOnlyMatchingRoom(t *testing.T) {
	q := newTestRedisQueue(t)
	ctx := context.Background()

	roomA, _, _ := q.EnqueueOrPair(ctx, game.VariantStandard, "conn-1")

	// a clear for some other room id leaves the slot alone
	if err := q.Clear(ctx, game.VariantStandard, "standard-other"); err != nil {
		t.Fatalf("clear mismatch: %v", err)
	}
	room, paired, _ := q.EnqueueOrPair(ctx, game.VariantStandard, "conn-2")
	if !paired || room != roomA {
		t.Fatalf("slot gone after mismatched clear: room=%q paired=%v", room, paired)
	}

	roomB, _, _ := q.EnqueueOrPair(ctx, game.VariantStandard, "conn-3")
	if err := q.Clear(ctx, game.VariantStandard, roomB); err != nil {
		t.Fatalf("clear: %v", err)
	}
	roomC, paired, _ := q.EnqueueOrPair(ctx, game.VariantStandard, "conn-4")
	if paired || roomC == roomB {
		t.Fatalf("cleared slot consumed: room=%q paired=%v", roomC, paired)
	}
}

func TestConcurrentEnqueueNeverDoublePairs(t *testing.T) {
	q := newTestRedisQueue(t)
	ctx := context.Background()

	const joiners = 10
	type result struct {
		roomID string
		paired bool
	}
	results := make([]result, joiners)
	var wg sync.WaitGroup
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			roomID, paired, err := q.EnqueueOrPair(ctx, game.VariantRegicide, fmt.Sprintf("conn-%d", i))
			if err != nil {
				t.Errorf("enqueue %d: %v", i, err)
				return
			}
			results[i] = result{roomID, paired}
		}(i)
	}
	wg.Wait()

	// every pairing consumed a slot someone else created; a room id can
	// be paired into at most once
	pairedInto := make(map[string]int)
	for _, r := range results {
		if r.paired {
			pairedInto[r.roomID]++
		}
	}
	for roomID, n := range pairedInto {
		if n > 1 {
			t.Fatalf("room %s paired %d times", roomID, n)
		}
	}
}

func TestVariantOf(t *testing.T) {
	for _, v := range []game.Variant{
		game.VariantStandard, game.VariantHiddenQueen, game.VariantPoisonedPawn,
		game.VariantMorphedKing, game.VariantHillRace, game.VariantRegicide,
	} {
		id := NewRoomID(v)
		got, ok := VariantOf(id)
		if !ok || got != v {
			t.Errorf("VariantOf(%q) = %q %v", id, got, ok)
		}
	}
	if _, ok := VariantOf("some-random-id"); ok {
		t.Errorf("unknown prefix resolved")
	}
}
