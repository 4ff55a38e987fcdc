package admin

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/park285/pvp-chess-server/internal/room"
	"github.com/valyala/fasthttp"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type fixedStats room.Stats

func (f fixedStats) Stats() room.Stats { return room.Stats(f) }

func do(s *Server, method, path string) *fasthttp.RequestCtx {
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	s.handle(&ctx)
	return &ctx
}

func TestHealthz(t *testing.T) {
	s := New(nil, nil)
	s.AddCheck("redis", pingFunc(func(context.Context) error { return nil }))
	s.AddCheck("nil", nil)

	ctx := do(s, fasthttp.MethodGet, "/healthz")
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("status = %d", ctx.Response.StatusCode())
	}
	var res healthResponse
	if err := json.Unmarshal(ctx.Response.Body(), &res); err != nil || !res.OK || res.Checks["redis"] != "ok" || len(res.Checks) != 1 {
		t.Fatalf("body = %s", ctx.Response.Body())
	}

	s.AddCheck("postgres", pingFunc(func(context.Context) error { return errors.New("down") }))
	ctx = do(s, fasthttp.MethodGet, "/healthz")
	if ctx.Response.StatusCode() != fasthttp.StatusServiceUnavailable {
		t.Fatalf("status = %d", ctx.Response.StatusCode())
	}
}

func TestStats(t *testing.T) {
	s := New(fixedStats{Rooms: 3, Connections: 2, ByPhase: map[room.Phase]int{room.PhaseInProgress: 1}}, func() int { return 5 })
	ctx := do(s, fasthttp.MethodGet, "/stats")
	var res struct {
		Rooms   int            `json:"rooms"`
		ByPhase map[string]int `json:"byPhase"`
		Sockets int            `json:"sockets"`
	}
	if err := json.Unmarshal(ctx.Response.Body(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Rooms != 3 || res.Sockets != 5 || res.ByPhase["in_progress"] != 1 {
		t.Fatalf("stats = %+v", res)
	}

	if ctx := do(s, fasthttp.MethodPost, "/stats"); ctx.Response.StatusCode() != fasthttp.StatusMethodNotAllowed {
		t.Fatalf("POST status = %d", ctx.Response.StatusCode())
	}
	if ctx := do(s, fasthttp.MethodGet, "/nope"); ctx.Response.StatusCode() != fasthttp.StatusNotFound {
		t.Fatalf("unknown path status = %d", ctx.Response.StatusCode())
	}
}
