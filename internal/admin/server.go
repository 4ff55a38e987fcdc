package admin

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/park285/pvp-chess-server/internal/obslog"
	"github.com/park285/pvp-chess-server/internal/room"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// Pinger is a dependency checked by /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatsSource reports live room counts for /stats.
type StatsSource interface {
	Stats() room.Stats
}

type healthResponse struct {
	OK     bool              `json:"ok"`
	Checks map[string]string `json:"checks"`
}

type statsResponse struct {
	room.Stats
	Sockets int `json:"sockets"`
}

// Server is the operator HTTP surface. It stays off the public listener.
type Server struct {
	checks  map[string]Pinger
	stats   StatsSource
	sockets func() int
	srv     *fasthttp.Server
}

func New(stats StatsSource, sockets func() int) *Server {
	s := &Server{checks: make(map[string]Pinger), stats: stats, sockets: sockets}
	s.srv = &fasthttp.Server{
		Handler:      s.handle,
		Name:         "pvp-chess-admin",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return s
}

// AddCheck registers a named dependency for /healthz. Nil pingers are skipped.
func (s *Server) AddCheck(name string, p Pinger) {
	if p != nil {
		s.checks[name] = p
	}
}

func (s *Server) Serve(ln net.Listener) error { return s.srv.Serve(ln) }

func (s *Server) ListenAndServe(addr string) error {
	obslog.L().Info("admin_listen", zap.String("addr", addr))
	return s.srv.ListenAndServe(addr)
}

func (s *Server) Shutdown(ctx context.Context) error { return s.srv.ShutdownWithContext(ctx) }

func (s *Server) handle(ctx *fasthttp.RequestCtx) {
	if !ctx.IsGet() {
		ctx.Error("method not allowed", fasthttp.StatusMethodNotAllowed)
		return
	}
	switch string(ctx.Path()) {
	case "/healthz":
		s.health(ctx)
	case "/stats":
		s.statsHandler(ctx)
	default:
		ctx.Error("not found", fasthttp.StatusNotFound)
	}
}

func (s *Server) health(ctx *fasthttp.RequestCtx) {
	c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res := healthResponse{OK: true, Checks: make(map[string]string, len(s.checks))}
	for name, p := range s.checks {
		if err := p.Ping(c); err != nil {
			res.OK = false
			res.Checks[name] = err.Error()
			obslog.L().Warn("admin_health_fail", zap.String("check", name), zap.Error(err))
			continue
		}
		res.Checks[name] = "ok"
	}
	status := fasthttp.StatusOK
	if !res.OK {
		status = fasthttp.StatusServiceUnavailable
	}
	writeJSON(ctx, status, res)
}

func (s *Server) statsHandler(ctx *fasthttp.RequestCtx) {
	var res statsResponse
	if s.stats != nil {
		res.Stats = s.stats.Stats()
	}
	if s.sockets != nil {
		res.Sockets = s.sockets()
	}
	writeJSON(ctx, fasthttp.StatusOK, res)
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		ctx.Error(err.Error(), fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(raw)
}
