package store

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/park285/pvp-chess-server/internal/pvpchess"
	"github.com/park285/pvp-chess-server/internal/room"
	"github.com/park285/pvp-chess-server/internal/rules"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T, ttl time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedis(rdb, ttl), mr
}

func TestRedisGameRoundTrip(t *testing.T) {
	s, mr := newTestRedis(t, 30*time.Minute)
	ctx := context.Background()

	g, err := pvpchess.ApplyMove(pvpchess.NewGame(), rules.Move{From: rules.Sq(6, 4), To: rules.Sq(4, 4)}, rules.White)
	if err != nil {
		t.Fatalf("ApplyMove: %v", err)
	}
	if err := s.SaveGame(ctx, "ABC123", g); err != nil {
		t.Fatalf("SaveGame: %v", err)
	}
	if !mr.Exists("game:ABC123") {
		t.Fatalf("expected game:ABC123 key")
	}
	if ttl := mr.TTL("game:ABC123"); ttl != 30*time.Minute {
		t.Fatalf("ttl = %v", ttl)
	}

	got, err := s.LoadGame(ctx, "ABC123")
	if err != nil || got == nil {
		t.Fatalf("LoadGame: %v %v", got, err)
	}
	if got.ID != g.ID || got.Turn != rules.Black || len(got.History) != 1 || got.FEN() != g.FEN() {
		t.Fatalf("loaded game differs: %+v", got)
	}
	if got.Status.Terminal() {
		t.Fatalf("active game decoded as terminal")
	}
}

func TestRedisMissingKeyIsNil(t *testing.T) {
	s, _ := newTestRedis(t, 0)
	ctx := context.Background()
	g, err := s.LoadGame(ctx, "NOPE")
	if err != nil || g != nil {
		t.Fatalf("LoadGame missing: %v %v", g, err)
	}
	r, err := s.LoadRoster(ctx, "NOPE")
	if err != nil || r != nil {
		t.Fatalf("LoadRoster missing: %v %v", r, err)
	}
}

func TestRedisRosterAndDelete(t *testing.T) {
	s, mr := newTestRedis(t, 0)
	ctx := context.Background()

	roster := &room.Roster{Started: true, Seq: 2, Slots: []*room.PlayerState{
		{Slot: "s1", PlayerID: "p1", Color: rules.White, Ready: true, Role: room.RoleWhite, JoinedSeq: 1},
		{Slot: "s2", PlayerID: "p2", Color: rules.Black, Ready: true, Role: room.RoleBlack, JoinedSeq: 2, Disconnected: true},
	}}
	if err := s.SaveRoster(ctx, "ROOM01", roster); err != nil {
		t.Fatalf("SaveRoster: %v", err)
	}
	if ttl := mr.TTL("playerinfo:ROOM01"); ttl != DefaultTTL {
		t.Fatalf("default ttl = %v", ttl)
	}
	got, err := s.LoadRoster(ctx, "ROOM01")
	if err != nil || got == nil {
		t.Fatalf("LoadRoster: %v %v", got, err)
	}
	if !got.Started || len(got.Slots) != 2 || got.Slots[1].Color != rules.Black || !got.Slots[1].Disconnected {
		t.Fatalf("roster differs: %+v", got)
	}

	if err := s.DeleteRoster(ctx, "ROOM01"); err != nil {
		t.Fatalf("DeleteRoster: %v", err)
	}
	if mr.Exists("playerinfo:ROOM01") {
		t.Fatalf("roster key survived delete")
	}
	if err := s.DeleteGame(ctx, "ROOM01"); err != nil {
		t.Fatalf("DeleteGame of missing key: %v", err)
	}
}

func TestRedisKeyExpires(t *testing.T) {
	s, mr := newTestRedis(t, time.Minute)
	ctx := context.Background()
	if err := s.SaveGame(ctx, "EXP001", pvpchess.NewGame()); err != nil {
		t.Fatalf("SaveGame: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	g, err := s.LoadGame(ctx, "EXP001")
	if err != nil || g != nil {
		t.Fatalf("expected expired game, got %v %v", g, err)
	}
}

func TestParseRedisURL(t *testing.T) {
	opts, err := parseRedisURL("redis://:secret@cache.local/3")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opts.Addr != "cache.local:6379" || opts.Password != "secret" || opts.DB != 3 || opts.TLSConfig != nil {
		t.Fatalf("unexpected options: %+v", opts)
	}
	opts, err = parseRedisURL("rediss://user:pw@cache.local:6380")
	if err != nil {
		t.Fatalf("parse rediss: %v", err)
	}
	if opts.Addr != "cache.local:6380" || opts.Username != "user" || opts.TLSConfig == nil {
		t.Fatalf("unexpected tls options: %+v", opts)
	}
	if _, err := parseRedisURL("http://cache.local"); err == nil {
		t.Fatalf("expected scheme error")
	}
}

func TestMemoryExpiresAndCopies(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory(time.Minute)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	g := pvpchess.NewGame()
	if err := m.SaveGame(ctx, "MEM001", g); err != nil {
		t.Fatalf("SaveGame: %v", err)
	}
	got, err := m.LoadGame(ctx, "MEM001")
	if err != nil || got == nil || got.ID != g.ID {
		t.Fatalf("LoadGame: %v %v", got, err)
	}
	got.History = append(got.History, pvpchess.HistoryEntry{UCI: "e2e4"})
	again, _ := m.LoadGame(ctx, "MEM001")
	if len(again.History) != 0 {
		t.Fatalf("store shares state with callers")
	}

	now = now.Add(2 * time.Minute)
	if got, _ := m.LoadGame(ctx, "MEM001"); got != nil {
		t.Fatalf("expected expiry")
	}
}

func TestGameSaveKeepsRosterAlive(t *testing.T) {
	s, mr := newTestRedis(t, time.Hour)
	ctx := context.Background()

	if err := s.SaveGame(ctx, "LONE01", pvpchess.NewGame()); err != nil {
		t.Fatalf("SaveGame without roster: %v", err)
	}
	if mr.Exists("playerinfo:LONE01") {
		t.Fatalf("game save created a roster key")
	}

	roster := &room.Roster{Started: true, Slots: []*room.PlayerState{{Slot: "s1", PlayerID: "p1", Color: rules.White}}}
	if err := s.SaveRoster(ctx, "LONG01", roster); err != nil {
		t.Fatalf("SaveRoster: %v", err)
	}
	mr.FastForward(50 * time.Minute)
	if err := s.SaveGame(ctx, "LONG01", pvpchess.NewGame()); err != nil {
		t.Fatalf("SaveGame: %v", err)
	}
	if ttl := mr.TTL("playerinfo:LONG01"); ttl != time.Hour {
		t.Fatalf("roster ttl after game save = %v", ttl)
	}
	mr.FastForward(30 * time.Minute)
	got, err := s.LoadRoster(ctx, "LONG01")
	if err != nil || got == nil || !got.Started {
		t.Fatalf("roster expired under a live game: %v %v", got, err)
	}
}

func TestMemoryGameSaveKeepsRosterAlive(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory(time.Hour)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	if err := m.SaveRoster(ctx, "MEM002", &room.Roster{Started: true}); err != nil {
		t.Fatalf("SaveRoster: %v", err)
	}
	now = now.Add(50 * time.Minute)
	if err := m.SaveGame(ctx, "MEM002", pvpchess.NewGame()); err != nil {
		t.Fatalf("SaveGame: %v", err)
	}
	now = now.Add(30 * time.Minute)
	if got, _ := m.LoadRoster(ctx, "MEM002"); got == nil || !got.Started {
		t.Fatalf("roster expired under a live game")
	}

	now = now.Add(2 * time.Hour)
	if err := m.SaveGame(ctx, "MEM002", pvpchess.NewGame()); err != nil {
		t.Fatalf("SaveGame: %v", err)
	}
	if got, _ := m.LoadRoster(ctx, "MEM002"); got != nil {
		t.Fatalf("expired roster revived by game save")
	}
}
