package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"futures-advisor/internal/logging"
	"futures-advisor/internal/signal"
)

const (
	// stateKeyPrefix namespaces the mirror keys.
	// Format: advisor:state:{symbol}:{timeframe}
	stateKeyPrefix = "advisor:state"

	// stateTTL bounds how long a mirrored entry outlives the process. The
	// longest frequency-control interval is hours; two days is generous.
	stateTTL = 48 * time.Hour

	redisOpTimeout = 2 * time.Second
)

// persistedEntry is the JSON document mirrored to Redis. It carries its own
// key parts so warm-up never has to parse key strings.
type persistedEntry struct {
	Symbol              string          `json:"symbol"`
	Timeframe           signal.Timeframe `json:"timeframe"`
	LastDecisionTime    time.Time       `json:"last_decision_time"`
	LastSignalDirection signal.Decision `json:"last_signal_direction"`
	SavedAt             time.Time       `json:"saved_at"`
}

// RedisStore mirrors the in-memory store to Redis so gate state survives a
// restart. Memory stays authoritative: every read is served from memory,
// writes go to memory first and to Redis best-effort. A Redis outage never
// blocks or fails a decision.
type RedisStore struct {
	*MemoryStore
	client    *redis.Client
	logger    *logging.Logger
	available atomic.Bool
}

// NewRedisStore wraps a memory store with a Redis mirror. A nil client
// yields a memory-only store. When Redis answers the initial ping, existing
// entries are warmed into memory.
func NewRedisStore(client *redis.Client) *RedisStore {
	s := &RedisStore{
		MemoryStore: NewMemoryStore(),
		client:      client,
		logger:      logging.WithComponent("state"),
	}
	if client == nil {
		s.logger.Info("no redis client, gate state is memory-only")
		return s
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		s.logger.Warn("redis unavailable at startup, gate state is memory-only until it recovers",
			"error", err)
		s.available.Store(false)
		return s
	}

	s.available.Store(true)
	s.warmUp()
	return s
}

// Available reports whether the mirror currently reaches Redis.
func (s *RedisStore) Available() bool {
	return s.available.Load()
}

func mirrorKey(symbol string, tf signal.Timeframe) string {
	return fmt.Sprintf("%s:%s:%s", stateKeyPrefix, symbol, tf)
}

// Save writes to memory and mirrors the entry to Redis. Mirror failures
// mark the client unavailable and are otherwise ignored.
func (s *RedisStore) Save(symbol string, tf signal.Timeframe, at time.Time, direction signal.Decision) {
	s.MemoryStore.Save(symbol, tf, at, direction)

	if s.client == nil || !s.available.Load() {
		return
	}

	doc := persistedEntry{
		Symbol:              symbol,
		Timeframe:           tf,
		LastDecisionTime:    at,
		LastSignalDirection: direction,
		SavedAt:             time.Now(),
	}
	data, err := json.Marshal(doc)
	if err != nil {
		s.logger.Error("failed to marshal state entry", "error", err, "symbol", symbol)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := s.client.Set(ctx, mirrorKey(symbol, tf), data, stateTTL).Err(); err != nil {
		s.logger.Warn("redis mirror write failed, continuing on memory",
			"error", err, "symbol", symbol, "timeframe", tf)
		s.available.Store(false)
	}
}

// Clear removes entries from memory and from the mirror.
func (s *RedisStore) Clear(symbol string) {
	s.MemoryStore.Clear(symbol)

	if s.client == nil || !s.available.Load() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if symbol != "" {
		keys := make([]string, 0, len(signal.Timeframes))
		for _, tf := range signal.Timeframes {
			keys = append(keys, mirrorKey(symbol, tf))
		}
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			s.logger.Warn("redis mirror delete failed", "error", err, "symbol", symbol)
			s.available.Store(false)
		}
		return
	}

	iter := s.client.Scan(ctx, 0, stateKeyPrefix+":*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		s.logger.Warn("redis mirror scan failed", "error", err)
		s.available.Store(false)
		return
	}
	if len(keys) > 0 {
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			s.logger.Warn("redis mirror delete failed", "error", err)
			s.available.Store(false)
		}
	}
}

// warmUp restores mirrored entries into memory at startup.
func (s *RedisStore) warmUp() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	iter := s.client.Scan(ctx, 0, stateKeyPrefix+":*", 0).Iterator()
	restored := 0
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Result()
		if err != nil {
			continue
		}
		var doc persistedEntry
		if err := json.Unmarshal([]byte(data), &doc); err != nil {
			s.logger.Warn("skipping unreadable state entry", "key", iter.Val(), "error", err)
			continue
		}
		s.restore(key(doc.Symbol, doc.Timeframe), Entry{
			LastDecisionTime:    doc.LastDecisionTime,
			LastSignalDirection: doc.LastSignalDirection,
		})
		restored++
	}
	if err := iter.Err(); err != nil {
		s.logger.Warn("state warm-up incomplete", "error", err)
		s.available.Store(false)
		return
	}
	if restored > 0 {
		s.logger.Info("gate state restored from redis", "entries", restored)
	}
}
