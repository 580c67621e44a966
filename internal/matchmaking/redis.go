package matchmaking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/veilchess/veilchess-server/internal/game"
	"github.com/veilchess/veilchess-server/internal/obslog"
)

const (
	slotTTL     = 30 * time.Minute
	maxAttempts = 5
)

// RedisQueue keeps the per-variant slot in Redis so pairing survives a
// coordinator restart and stays atomic under concurrent joiners.
type RedisQueue struct {
	rdb *redis.Client
}

func NewRedisQueue(redisURL string) (*RedisQueue, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for redis matchmaking")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisQueue{rdb: rdb}, nil
}

func (q *RedisQueue) Close() error {
	if q == nil || q.rdb == nil {
		return nil
	}
	return q.rdb.Close()
}

func slotKey(v game.Variant) string { return "mm:slot:" + string(v) }

func (q *RedisQueue) EnqueueOrPair(ctx context.Context, v game.Variant, connID string) (string, bool, error) {
	key := slotKey(v)
	var roomID string
	var paired bool

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := q.rdb.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if errors.Is(err, redis.Nil) {
				s := slot{RoomID: NewRoomID(v), ConnID: connID}
				payload, merr := json.Marshal(&s)
				if merr != nil {
					return merr
				}
				pipe := tx.TxPipeline()
				pipe.Set(ctx, key, payload, slotTTL)
				if _, perr := pipe.Exec(ctx); perr != nil {
					return perr
				}
				roomID, paired = s.RoomID, false
				return nil
			}

			var s slot
			if jerr := json.Unmarshal(raw, &s); jerr != nil {
				return jerr
			}
			if s.ConnID == connID {
				roomID, paired = s.RoomID, false
				return nil
			}
			pipe := tx.TxPipeline()
			pipe.Del(ctx, key)
			if _, perr := pipe.Exec(ctx); perr != nil {
				return perr
			}
			roomID, paired = s.RoomID, true
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			// lost the slot race; next attempt sees the new state
			continue
		}
		if err != nil {
			return "", false, err
		}
		obslog.L().Info("matchmaking_slot",
			zap.String("variant", string(v)),
			zap.String("room_id", roomID),
			zap.Bool("paired", paired),
		)
		return roomID, paired, nil
	}
	return "", false, fmt.Errorf("matchmaking slot contention for variant %s", v)
}

func (q *RedisQueue) Clear(ctx context.Context, v game.Variant, roomID string) error {
	key := slotKey(v)
	err := q.rdb.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		var s slot
		if jerr := json.Unmarshal(raw, &s); jerr != nil {
			return jerr
		}
		if s.RoomID != roomID {
			return nil
		}
		pipe := tx.TxPipeline()
		pipe.Del(ctx, key)
		_, perr := pipe.Exec(ctx)
		return perr
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		// someone consumed or replaced the slot concurrently; nothing to clear
		return nil
	}
	return err
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
