package room

import (
	"context"
	"time"

	"github.com/park285/pvp-chess-server/internal/pvpchess"
	"github.com/park285/pvp-chess-server/internal/rules"
	"github.com/park285/pvp-chess-server/pkg/chessdto"
	"github.com/samber/lo"
)

// Phase is the derived lifecycle state of a room.
type Phase string

const (
	PhaseEmpty          Phase = "empty"
	PhaseAwaitingColors Phase = "awaiting_colors"
	PhaseAwaitingReady  Phase = "awaiting_ready"
	PhaseInProgress     Phase = "in_progress"
	PhaseTerminal       Phase = "terminal"
)

// Roles handed out at game start.
const (
	RoleWhite = "Player 1"
	RoleBlack = "Player 2"
)

// PlayerState is one seat in a room. Slot is stable across reconnects; PlayerID is the
// client's identity token and is never broadcast.
type PlayerState struct {
	Slot           string      `json:"slot"`
	PlayerID       string      `json:"playerId"`
	Color          rules.Color `json:"color,omitempty"`
	Ready          bool        `json:"ready"`
	Role           string      `json:"role,omitempty"`
	ConnID         string      `json:"connId,omitempty"`
	Disconnected   bool        `json:"disconnected"`
	DisconnectedAt *time.Time  `json:"disconnectedAt,omitempty"`
	JoinedSeq      int         `json:"joinedSeq"`
}

func (p *PlayerState) connected() bool { return !p.Disconnected && p.ConnID != "" }

func (p *PlayerState) expired(now time.Time, grace time.Duration) bool {
	return p.Disconnected && p.DisconnectedAt != nil && now.Sub(*p.DisconnectedAt) > grace
}

func (p *PlayerState) markDisconnected(now time.Time) {
	p.Disconnected = true
	p.DisconnectedAt = &now
	p.ConnID = ""
}

func (p *PlayerState) view() chessdto.PlayerView {
	return chessdto.PlayerView{Slot: p.Slot, Color: p.Color, Ready: p.Ready, Role: p.Role, Connected: p.connected()}
}

// Roster is the persisted seating of a room (playerinfo:<code>).
type Roster struct {
	Slots     []*PlayerState `json:"slots"`
	Started   bool           `json:"started"`
	CreatedAt time.Time      `json:"createdAt"`
	Seq       int            `json:"seq"`
}

func (r *Roster) byIdentity(id string) *PlayerState {
	s, _ := lo.Find(r.Slots, func(p *PlayerState) bool { return p.PlayerID == id })
	return s
}

func (r *Roster) byConn(connID string) *PlayerState {
	s, _ := lo.Find(r.Slots, func(p *PlayerState) bool { return p.ConnID == connID })
	return s
}

func (r *Roster) connected() []*PlayerState {
	return lo.Filter(r.Slots, func(p *PlayerState, _ int) bool { return p.connected() })
}

// purgeExpired drops disconnected slots whose grace window elapsed and returns them.
func (r *Roster) purgeExpired(now time.Time, grace time.Duration) []*PlayerState {
	gone := lo.Filter(r.Slots, func(p *PlayerState, _ int) bool { return p.expired(now, grace) })
	if len(gone) > 0 {
		r.Slots = lo.Reject(r.Slots, func(p *PlayerState, _ int) bool { return p.expired(now, grace) })
	}
	return gone
}

func (r *Roster) remove(slot string) {
	r.Slots = lo.Reject(r.Slots, func(p *PlayerState, _ int) bool { return p.Slot == slot })
}

// freeColor returns a color no seat holds, White first.
func (r *Roster) freeColor() rules.Color {
	for _, c := range []rules.Color{rules.White, rules.Black} {
		if !lo.ContainsBy(r.Slots, func(p *PlayerState) bool { return p.Color == c }) {
			return c
		}
	}
	return rules.NoColor
}

func (r *Roster) views() []chessdto.PlayerView {
	return lo.Map(r.Slots, func(p *PlayerState, _ int) chessdto.PlayerView { return p.view() })
}

// Room is the in-memory authority for one room code.
type Room struct {
	Code   string
	Game   *pvpchess.Game
	Roster Roster
}

// Phase derives the lifecycle state from the game and roster.
func (r *Room) Phase() Phase {
	switch {
	case r.Game != nil && r.Game.Status.Terminal():
		return PhaseTerminal
	case r.Roster.Started:
		return PhaseInProgress
	case len(r.Roster.Slots) == 0:
		return PhaseEmpty
	}
	if len(r.Roster.Slots) == 2 {
		a, b := r.Roster.Slots[0].Color, r.Roster.Slots[1].Color
		if a != rules.NoColor && b != rules.NoColor && a != b {
			return PhaseAwaitingReady
		}
	}
	return PhaseAwaitingColors
}

// everPlayed reports whether the room should get the long deletion grace.
func (r *Room) everPlayed() bool {
	return r.Roster.Started || (r.Game != nil && (r.Game.Status.Terminal() || len(r.Game.History) > 0))
}

// JoinResult is returned by a successful join.
type JoinResult struct {
	Code        string
	Game        *pvpchess.Game
	Identity    string
	Slot        string
	Reissued    bool
	Reconnected bool
}

// Persistence is the durable snapshot store for rooms.
type Persistence interface {
	pvpchess.GameSaver
	LoadGame(ctx context.Context, code string) (*pvpchess.Game, error)
	DeleteGame(ctx context.Context, code string) error
	SaveRoster(ctx context.Context, code string, r *Roster) error
	LoadRoster(ctx context.Context, code string) (*Roster, error)
	DeleteRoster(ctx context.Context, code string) error
}

// Notifier delivers events to a connection. Send must not block on the network.
type Notifier interface {
	Send(connID string, ev chessdto.Event)
}

// Messages renders user-facing status text.
type Messages interface {
	Render(key string, data any) (string, error)
}

// Stats is a point-in-time summary for the operator endpoint.
type Stats struct {
	Rooms       int           `json:"rooms"`
	Connections int           `json:"connections"`
	ByPhase     map[Phase]int `json:"byPhase"`
}

// Errors
var (
	ErrInvalidArgs     = errf("invalid arguments")
	ErrRoomNotFound    = errf("Room not found.")
	ErrRoomFull        = errf("Room is full.")
	ErrNotSeated       = errf("not seated in this room")
	ErrGameNotStarted  = errf("game has not started")
	ErrGameInProgress  = errf("game already in progress")
	ErrCodeUnavailable = errf("could not allocate a room code")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }
