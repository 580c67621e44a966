// Package archive is the sink for finished games. The coordinator
// calls it once per room, best effort; a failed write is logged and
// the room is closed regardless.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

// Result is the durable record of one finished match.
type Result struct {
	RoomID        string
	Variant       string
	WhiteName     string
	BlackName     string
	Winner        string // "white", "black" or "" for a draw
	Reason        string // "checkmate", "timeout", "resignation", ...
	FinalPosition string
	StartedAt     time.Time
	EndedAt       time.Time
}

// Archiver persists one finished game.
type Archiver interface {
	SaveResult(ctx context.Context, r *Result) error
}

// Repository writes results to Postgres.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveResult upserts the final record keyed by room id. Re-running the
// same terminal event overwrites rather than duplicates.
func (r *Repository) SaveResult(ctx context.Context, res *Result) error {
	if r == nil || r.db == nil || res == nil {
		return nil
	}
	duration := res.EndedAt.Sub(res.StartedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	q := `INSERT INTO finished_games (
	    room_id, variant, white_name, black_name,
	    winner, reason, final_position,
	    started_at, ended_at, duration_ms
	  ) VALUES (
	    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
	  ) ON CONFLICT (room_id) DO UPDATE SET
	    variant=EXCLUDED.variant,
	    white_name=EXCLUDED.white_name,
	    black_name=EXCLUDED.black_name,
	    winner=EXCLUDED.winner,
	    reason=EXCLUDED.reason,
	    final_position=EXCLUDED.final_position,
	    started_at=EXCLUDED.started_at,
	    ended_at=EXCLUDED.ended_at,
	    duration_ms=EXCLUDED.duration_ms`

	_, err := r.db.ExecContext(ctx, q,
		res.RoomID, res.Variant, res.WhiteName, res.BlackName,
		res.Winner, strings.TrimSpace(res.Reason), res.FinalPosition,
		res.StartedAt, res.EndedAt, duration,
	)
	return err
}

// MemoryArchive is used when no database is configured, and by tests.
type MemoryArchive struct {
	mu      sync.Mutex
	results map[string]*Result
}

func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{results: make(map[string]*Result)}
}

func (m *MemoryArchive) SaveResult(_ context.Context, res *Result) error {
	if res == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *res
	m.results[res.RoomID] = &copied
	return nil
}

// Result returns the stored record for a room, if any.
func (m *MemoryArchive) Result(roomID string) (*Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[roomID]
	if !ok {
		return nil, false
	}
	copied := *r
	return &copied, true
}

// Len reports how many results have been written.
func (m *MemoryArchive) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.results)
}
