package budget

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/ragstore/internal/db"
)

type counters interface {
	Get(ctx context.Context, key string) ([]byte, error)
	IncrWithExpiry(ctx context.Context, key string, val int64, ttl time.Duration) (int64, error)
}

// Default key lifetimes, long enough to outlive their period.
const (
	DefaultDailyTTL   = 48 * time.Hour
	DefaultMonthlyTTL = 62 * 24 * time.Hour
)

// Store keeps per-provider token counters in the shared key-value store.
// Keys end in ":<period>:<date>"; the period picks the expiry.
type Store struct {
	kv       counters
	dailyTTL time.Duration
	monthTTL time.Duration
}

// New creates a budget store. Zero TTLs fall back to the defaults.
func New(kv counters, dailyTTL, monthTTL time.Duration) *Store {
	if dailyTTL <= 0 {
		dailyTTL = DefaultDailyTTL
	}
	if monthTTL <= 0 {
		monthTTL = DefaultMonthlyTTL
	}
	return &Store{kv: kv, dailyTTL: dailyTTL, monthTTL: monthTTL}
}

// Add increments a counter and returns its total across every process
// sharing the store.
func (s *Store) Add(ctx context.Context, key string, tokens int64) (int64, error) {
	total, err := s.kv.IncrWithExpiry(ctx, key, tokens, s.ttlFor(key))
	if err != nil {
		return total, fmt.Errorf("budget add %s: %w", key, err)
	}
	return total, nil
}

// Get returns a counter, 0 when it does not exist.
func (s *Store) Get(ctx context.Context, key string) (int64, error) {
	data, err := s.kv.Get(ctx, key)
	if errors.Is(err, db.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("budget get %s: %w", key, err)
	}
	val, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("budget get %s: %w", key, err)
	}
	return val, nil
}

func (s *Store) ttlFor(key string) time.Duration {
	parts := strings.Split(key, ":")
	if len(parts) >= 2 && parts[len(parts)-2] == "daily" {
		return s.dailyTTL
	}
	return s.monthTTL
}
