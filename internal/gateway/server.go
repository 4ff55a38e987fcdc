package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/park285/pvp-chess-server/internal/obslog"
	"github.com/park285/pvp-chess-server/internal/pvpchess"
	"github.com/park285/pvp-chess-server/internal/room"
	"github.com/park285/pvp-chess-server/internal/rules"
	"github.com/park285/pvp-chess-server/pkg/chessdto"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// Rooms is the room surface the gateway drives. *room.Manager implements it.
type Rooms interface {
	CreateRoom(ctx context.Context) (string, error)
	JoinRoom(ctx context.Context, code, identity, connID string) (*room.JoinResult, error)
	LeaveRoom(ctx context.Context, code, identity string) error
	PickColor(ctx context.Context, code, identity string, color rules.Color) error
	SetReady(ctx context.Context, code, identity string, color rules.Color) error
	Move(ctx context.Context, code, identity string, mv rules.Move) (*pvpchess.Game, error)
	Resign(ctx context.Context, code, identity string) (*pvpchess.Game, error)
	OfferDraw(ctx context.Context, code, identity string) (*pvpchess.Game, error)
	Rematch(ctx context.Context, code, identity string) (*pvpchess.Game, error)
	Chat(ctx context.Context, code, identity, text string) error
	RoomPlayers(ctx context.Context, code string) ([]chessdto.PlayerView, error)
	OnDisconnect(connID string)
}

type Options struct {
	AllowedOrigins []string
	// QueueSize bounds each connection's outbound queue. A connection that falls this far
	// behind is dropped.
	QueueSize      int
	PingInterval   time.Duration
	RequestTimeout time.Duration
}

func (o *Options) applyDefaults() {
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 25 * time.Second
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 10 * time.Second
	}
}

// Server terminates client websockets and routes their envelopes into the room layer.
// It also delivers room events back to connections, implementing room.Notifier.
type Server struct {
	opts     Options
	validate *validator.Validate
	handlers map[string]handlerFunc

	roomsMu sync.RWMutex
	rooms   Rooms

	mu    sync.RWMutex
	conns map[string]*conn
}

func NewServer(opts Options) *Server {
	opts.applyDefaults()
	s := &Server{
		opts:     opts,
		validate: validator.New(),
		handlers: make(map[string]handlerFunc),
		conns:    make(map[string]*conn),
	}
	s.setupHandlers()
	return s
}

// Attach wires the room layer. The room manager needs the server as its notifier, so the
// two are built separately and joined here.
func (s *Server) Attach(r Rooms) {
	s.roomsMu.Lock()
	s.rooms = r
	s.roomsMu.Unlock()
}

func (s *Server) roomsOrNil() Rooms {
	s.roomsMu.RLock()
	defer s.roomsMu.RUnlock()
	return s.rooms
}

// Handler serves the banner on / and the websocket on /ws behind CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("PvP chess server is running"))
	})
	return cors.New(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowCredentials: true,
	}).Handler(mux)
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  originPatterns(s.opts.AllowedOrigins),
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_error", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	c := newConn(uuid.NewString(), ws, s.opts.QueueSize)
	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()
	obslog.L().Info("ws_connect", zap.String("conn", c.id), zap.String("remote", r.RemoteAddr))

	go c.writeLoop()
	go c.pingLoop(s.opts.PingInterval)
	s.readLoop(c)

	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()
	c.close(websocket.StatusNormalClosure, "bye")
	if rooms := s.roomsOrNil(); rooms != nil {
		rooms.OnDisconnect(c.id)
	}
	obslog.L().Info("ws_disconnect", zap.String("conn", c.id))
}

// Send queues ev for connID without blocking. Unknown connections are ignored.
func (s *Server) Send(connID string, ev chessdto.Event) {
	s.mu.RLock()
	c := s.conns[connID]
	s.mu.RUnlock()
	if c == nil {
		return
	}
	env, err := ev.Envelope("")
	if err != nil {
		obslog.L().Error("ws_encode_error", zap.String("conn", connID), zap.String("type", ev.Type), zap.Error(err))
		return
	}
	c.enqueue(env)
}

// Connections reports the number of open sockets.
func (s *Server) Connections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// Close drops every connection.
func (s *Server) Close() {
	s.mu.RLock()
	conns := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.RUnlock()
	for _, c := range conns {
		c.close(websocket.StatusGoingAway, "server shutdown")
	}
}

// originPatterns turns configured origins into host patterns for the handshake check.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "*" {
			out = append(out, "*")
			continue
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
		}
	}
	return out
}
