package policy

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Source yields a Policy snapshot.
type Source interface {
	Snapshot(ctx context.Context) (Policy, error)
}

// SettingsRepository reads the settings table.
type SettingsRepository struct {
	db  *sql.DB
	log *zap.Logger
}

// NewSettingsRepository creates a settings-backed Source.
func NewSettingsRepository(db *sql.DB, log *zap.Logger) *SettingsRepository {
	return &SettingsRepository{db: db, log: log}
}

// Snapshot loads every engine setting and builds a Policy.
func (r *SettingsRepository) Snapshot(ctx context.Context) (Policy, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return Policy{}, err
	}
	defer rows.Close()

	settings := make(map[string]string, len(Keys))
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return Policy{}, err
		}
		settings[k] = v
	}
	if err := rows.Err(); err != nil {
		return Policy{}, err
	}

	p, invalid := FromSettings(settings)
	if len(invalid) > 0 {
		r.log.Warn("invalid settings ignored", zap.Strings("keys", invalid))
	}
	return p, nil
}

// CachedSource keeps the last snapshot in Redis for ttl so scans do not hit
// the settings table on every request. Redis failures fall through to next.
type CachedSource struct {
	next   Source
	client *redis.Client
	key    string
	ttl    time.Duration
	log    *zap.Logger
}

// NewCachedSource wraps next with a Redis cache.
func NewCachedSource(next Source, client *redis.Client, ttl time.Duration, log *zap.Logger) *CachedSource {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedSource{next: next, client: client, key: "absensi:policy", ttl: ttl, log: log}
}

// Snapshot returns the cached policy or loads and caches a fresh one.
func (c *CachedSource) Snapshot(ctx context.Context) (Policy, error) {
	raw, err := c.client.Get(ctx, c.key).Bytes()
	switch {
	case err == nil:
		var p Policy
		if jerr := json.Unmarshal(raw, &p); jerr == nil {
			return p, nil
		}
		c.log.Warn("discarding corrupt cached policy")
	case !errors.Is(err, redis.Nil):
		c.log.Warn("policy cache read failed", zap.Error(err))
	}

	p, err := c.next.Snapshot(ctx)
	if err != nil {
		return Policy{}, err
	}
	if data, jerr := json.Marshal(p); jerr == nil {
		if serr := c.client.Set(ctx, c.key, data, c.ttl).Err(); serr != nil {
			c.log.Warn("policy cache write failed", zap.Error(serr))
		}
	}
	return p, nil
}

// Invalidate drops the cached snapshot.
func (c *CachedSource) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, c.key).Err()
}

// Static always returns the same policy.
type Static Policy

// Snapshot implements Source.
func (s Static) Snapshot(context.Context) (Policy, error) { return Policy(s), nil }
