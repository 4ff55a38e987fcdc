package store

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/park285/pvp-chess-server/internal/pvpchess"
	"github.com/park285/pvp-chess-server/internal/room"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long an untouched room survives in Redis.
const DefaultTTL = time.Hour

// Redis persists room snapshots as JSON under game:<code> and playerinfo:<code>.
// Every write refreshes the key's TTL.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{rdb: rdb, ttl: ttl}
}

// NewRedisClient dials url and verifies the connection.
func NewRedisClient(ctx context.Context, raw string) (*redis.Client, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("REDIS_URL required")
	}
	opts, err := parseRedisURL(raw)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	host := u.Host
	if u.Port() == "" {
		host += ":6379"
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	opts := &redis.Options{Addr: host, Username: u.User.Username(), Password: pass, DB: db}
	if u.Scheme == "rediss" {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: u.Hostname()}
	}
	return opts, nil
}

func keyGame(code string) string   { return "game:" + strings.TrimSpace(code) }
func keyRoster(code string) string { return "playerinfo:" + strings.TrimSpace(code) }

func (s *Redis) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }

// SaveGame writes the game and pushes the roster's expiry out with it, so a long game
// without seat changes keeps both keys alive.
func (s *Redis) SaveGame(ctx context.Context, code string, g *pvpchess.Game) error {
	raw, err := json.Marshal(g)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, keyGame(code), raw, s.ttl)
		p.Expire(ctx, keyRoster(code), s.ttl)
		return nil
	})
	return err
}

func (s *Redis) LoadGame(ctx context.Context, code string) (*pvpchess.Game, error) {
	var g pvpchess.Game
	ok, err := s.get(ctx, keyGame(code), &g)
	if !ok || err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *Redis) DeleteGame(ctx context.Context, code string) error {
	return s.rdb.Del(ctx, keyGame(code)).Err()
}

func (s *Redis) SaveRoster(ctx context.Context, code string, r *room.Roster) error {
	return s.put(ctx, keyRoster(code), r)
}

func (s *Redis) LoadRoster(ctx context.Context, code string) (*room.Roster, error) {
	var r room.Roster
	ok, err := s.get(ctx, keyRoster(code), &r)
	if !ok || err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Redis) DeleteRoster(ctx context.Context, code string) error {
	return s.rdb.Del(ctx, keyRoster(code)).Err()
}

func (s *Redis) put(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key, raw, s.ttl).Err()
}

// get decodes key into v. A missing key is (false, nil).
func (s *Redis) get(ctx context.Context, key string, v any) (bool, error) {
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}
