// Package featureflags resolves boolean deployment switches such as
// "search_reranker". Lookups are cache-aside: Redis first, then the
// feature_flags table. An unknown flag is disabled.
package featureflags

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"suburbmates-workers/internal/common/logger"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "feature_flag:"

var ErrFlagLookupFailed = errors.New("FEATURE_FLAG_LOOKUP_FAILED")

// Checker is satisfied by every flag source in this package.
type Checker interface {
	IsEnabled(ctx context.Context, key string) (bool, error)
}

type Store struct {
	db       *sql.DB
	redis    *redis.Client
	cacheTTL time.Duration
	logger   logger.Logger
}

func NewStore(db *sql.DB, rdb *redis.Client, cacheTTL time.Duration, log logger.Logger) *Store {
	return &Store{
		db:       db,
		redis:    rdb,
		cacheTTL: cacheTTL,
		logger:   log.WithFields(map[string]interface{}{"component": "featureflags"}),
	}
}

func (s *Store) IsEnabled(ctx context.Context, key string) (bool, error) {
	cacheKey := cacheKeyPrefix + key

	if s.redis != nil {
		val, err := s.redis.Get(ctx, cacheKey).Result()
		switch {
		case err == nil:
			if enabled, perr := parseBool(val); perr == nil {
				return enabled, nil
			}
			s.logger.Warn("ignoring malformed cached flag", map[string]interface{}{
				"flag":  key,
				"value": val,
			})
		case !errors.Is(err, redis.Nil):
			// Fall through to the database.
			s.logger.Debug("flag cache read failed", map[string]interface{}{
				"flag":  key,
				"error": err.Error(),
			})
		}
	}

	if s.db == nil {
		return false, nil
	}

	var enabled bool
	err := s.db.QueryRowContext(ctx, `SELECT enabled FROM feature_flags WHERE key = $1`, key).Scan(&enabled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			enabled = false
		} else {
			return false, fmt.Errorf("%w: %s: %v", ErrFlagLookupFailed, key, err)
		}
	}

	if s.redis != nil {
		if err := s.redis.Set(ctx, cacheKey, strconv.FormatBool(enabled), s.cacheTTL).Err(); err != nil {
			s.logger.Debug("flag cache write failed", map[string]interface{}{
				"flag":  key,
				"error": err.Error(),
			})
		}
	}

	return enabled, nil
}

// Set persists a flag and invalidates its cache entry.
func (s *Store) Set(ctx context.Context, key string, enabled bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feature_flags (key, enabled) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET enabled = EXCLUDED.enabled`, key, enabled)
	if err != nil {
		return fmt.Errorf("set flag %s: %w", key, err)
	}
	if s.redis != nil {
		s.redis.Del(ctx, cacheKeyPrefix+key)
	}
	return nil
}

// Static serves flags from configuration. Safe for concurrent use.
type Static struct {
	mu    sync.RWMutex
	flags map[string]bool
}

func NewStatic(flags map[string]bool) *Static {
	s := &Static{flags: make(map[string]bool, len(flags))}
	for k, v := range flags {
		s.flags[strings.ToLower(k)] = v
	}
	return s
}

func (s *Static) IsEnabled(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flags[strings.ToLower(key)], nil
}

func (s *Static) Set(key string, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[strings.ToLower(key)] = enabled
}

// Layered consults an override source before falling back to a primary one.
// Overrides only apply to keys they explicitly define.
type Layered struct {
	overrides map[string]bool
	primary   Checker
}

func NewLayered(overrides map[string]bool, primary Checker) *Layered {
	o := make(map[string]bool, len(overrides))
	for k, v := range overrides {
		o[strings.ToLower(k)] = v
	}
	return &Layered{overrides: o, primary: primary}
}

func (l *Layered) IsEnabled(ctx context.Context, key string) (bool, error) {
	if v, ok := l.overrides[strings.ToLower(key)]; ok {
		return v, nil
	}
	if l.primary == nil {
		return false, nil
	}
	return l.primary.IsEnabled(ctx, key)
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes", "enabled":
		return true, nil
	case "0", "false", "off", "no", "disabled", "":
		return false, nil
	}
	return false, fmt.Errorf("invalid flag value %q", v)
}
