package room

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/park285/pvp-chess-server/internal/obslog"
	"github.com/park285/pvp-chess-server/internal/pvpchess"
	"github.com/park285/pvp-chess-server/internal/rules"
	"github.com/park285/pvp-chess-server/pkg/chessdto"
	"go.uber.org/zap"
)

// withSeat runs fn under the room lock with identity's seat resolved.
func (m *Manager) withSeat(ctx context.Context, code, identity string, fn func(r *Room, s *PlayerState) error) error {
	code = normalizeCode(code)
	if code == "" {
		return ErrInvalidArgs
	}
	unlock := m.locks.Lock(code)
	defer unlock()

	r, err := m.mustLoad(ctx, code)
	if err != nil {
		return err
	}
	s := seat(r, identity)
	if s == nil {
		return ErrNotSeated
	}
	return fn(r, s)
}

// PickColor records identity's color choice and clears its ready flag.
func (m *Manager) PickColor(ctx context.Context, code, identity string, color rules.Color) error {
	if color != rules.White && color != rules.Black {
		return ErrInvalidArgs
	}
	return m.withSeat(ctx, code, identity, func(r *Room, s *PlayerState) error {
		if r.Roster.Started {
			return ErrGameInProgress
		}
		s.Color = color
		s.Ready = false
		if err := m.saveRoster(ctx, r); err != nil {
			return err
		}
		m.broadcastStatus(r, "room.color_picked", map[string]any{"Color": color.String()}, "A player picked "+color.String())
		m.broadcast(r, chessdto.NewEvent(chessdto.TypeColorPicked, chessdto.ColorPicked{Color: color}))
		m.broadcastPlayers(r)
		obslog.L().Info("room_pick_color", zap.String("room", r.Code), zap.String("slot", s.Slot), zap.String("color", color.String()))
		return nil
	})
}

// SetReady marks identity ready. A seat without a color adopts color. The game starts
// once both seats are ready with distinct colors.
func (m *Manager) SetReady(ctx context.Context, code, identity string, color rules.Color) error {
	return m.withSeat(ctx, code, identity, func(r *Room, s *PlayerState) error {
		if r.Roster.Started {
			return ErrGameInProgress
		}
		if s.Color == rules.NoColor {
			if color == rules.NoColor {
				return ErrInvalidArgs
			}
			s.Color = color
		}
		s.Ready = true
		if err := m.saveRoster(ctx, r); err != nil {
			return err
		}
		label := colorLabel(s.Color)
		m.broadcastStatus(r, "room.player_ready", map[string]any{"Color": label}, "A player is ready ("+label+")")
		m.broadcastPlayers(r)
		obslog.L().Info("room_ready", zap.String("room", r.Code), zap.String("slot", s.Slot), zap.String("color", label))
		return m.maybeStart(ctx, r)
	})
}

func (m *Manager) maybeStart(ctx context.Context, r *Room) error {
	slots := r.Roster.Slots
	if len(slots) != 2 {
		return nil
	}
	a, b := slots[0], slots[1]
	if a.PlayerID == b.PlayerID || !a.Ready || !b.Ready {
		return nil
	}
	// both seats must be live; a dropped seat starts play when it reconnects
	if !a.connected() || !b.connected() {
		return nil
	}
	if a.Color == rules.NoColor || b.Color == rules.NoColor || a.Color == b.Color {
		return nil
	}

	white, black := assignColors(slots)
	white.Color, white.Role = rules.White, RoleWhite
	black.Color, black.Role = rules.Black, RoleBlack
	r.Roster.Started = true
	if err := m.saveRoster(ctx, r); err != nil {
		return err
	}
	m.broadcast(r, chessdto.NewEvent(chessdto.TypeStartGame, chessdto.StartGame{
		ColorAssignments: map[string]rules.Color{white.Slot: rules.White, black.Slot: rules.Black},
		FirstTurn:        r.Game.Turn,
		Roles:            map[string]string{white.Slot: RoleWhite, black.Slot: RoleBlack},
	}))
	m.broadcastPlayers(r)
	obslog.L().Info("room_game_start",
		zap.String("room", r.Code),
		zap.String("game_id", r.Game.ID),
		zap.String("white_slot", white.Slot),
		zap.String("black_slot", black.Slot),
	)
	return nil
}

// assignColors matches seats to their picked colors, falling back to join order when the
// picks do not resolve to one white and one black.
func assignColors(slots []*PlayerState) (white, black *PlayerState) {
	for _, s := range slots {
		switch s.Color {
		case rules.White:
			if white == nil {
				white = s
			}
		case rules.Black:
			if black == nil {
				black = s
			}
		}
	}
	if white != nil && black != nil && white != black {
		return white, black
	}
	ordered := append([]*PlayerState(nil), slots...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].JoinedSeq < ordered[j].JoinedSeq })
	return ordered[0], ordered[1]
}

// Move applies mv for identity's color. Rejections are reported to the mover only and
// nothing is broadcast.
func (m *Manager) Move(ctx context.Context, code, identity string, mv rules.Move) (*pvpchess.Game, error) {
	var out *pvpchess.Game
	err := m.withSeat(ctx, code, identity, func(r *Room, s *PlayerState) error {
		if !r.Roster.Started {
			return ErrGameNotStarted
		}
		next, err := m.games.PlayMove(ctx, r.Code, r.Game, mv, s.Color)
		if err != nil {
			if errors.Is(err, pvpchess.ErrIllegalMove) || errors.Is(err, pvpchess.ErrTerminalGame) {
				m.send(s, chessdto.NewEvent(chessdto.TypeMoveRejected, chessdto.MoveRejected{Reason: err.Error()}))
			}
			return err
		}
		r.Game = next
		m.broadcastGame(r, chessdto.TypeMove)
		if next.Status.Terminal() {
			m.broadcastStatus(r, "game.over", map[string]any{"Status": string(next.Status), "Reason": next.Reason},
				"Game over: "+string(next.Status))
		}
		out = next.Clone()
		return nil
	})
	return out, err
}

// Resign ends the running game in the opponent's favour.
func (m *Manager) Resign(ctx context.Context, code, identity string) (*pvpchess.Game, error) {
	var out *pvpchess.Game
	err := m.withSeat(ctx, code, identity, func(r *Room, s *PlayerState) error {
		if !r.Roster.Started {
			return ErrGameNotStarted
		}
		next, err := m.games.Resign(ctx, r.Code, r.Game, s.Color)
		if err != nil {
			return err
		}
		r.Game = next
		m.broadcastGame(r, chessdto.TypeMove)
		label := colorLabel(s.Color)
		m.broadcastStatus(r, "game.resigned", map[string]any{"Color": label}, label+" resigned")
		out = next.Clone()
		return nil
	})
	return out, err
}

// OfferDraw offers a draw, or accepts the opponent's pending offer.
func (m *Manager) OfferDraw(ctx context.Context, code, identity string) (*pvpchess.Game, error) {
	var out *pvpchess.Game
	err := m.withSeat(ctx, code, identity, func(r *Room, s *PlayerState) error {
		if !r.Roster.Started {
			return ErrGameNotStarted
		}
		next, agreed, err := m.games.OfferDraw(ctx, r.Code, r.Game, s.Color)
		if err != nil {
			return err
		}
		r.Game = next
		if agreed {
			m.broadcastGame(r, chessdto.TypeMove)
			m.broadcastStatus(r, "game.draw_agreed", nil, "Draw agreed")
		} else {
			m.broadcast(r, chessdto.NewEvent(chessdto.TypeDrawOffered, chessdto.DrawOffered{Color: s.Color}))
		}
		out = next.Clone()
		return nil
	})
	return out, err
}

// Rematch resets a finished game. Seats keep their places but pick colors again.
func (m *Manager) Rematch(ctx context.Context, code, identity string) (*pvpchess.Game, error) {
	var out *pvpchess.Game
	err := m.withSeat(ctx, code, identity, func(r *Room, s *PlayerState) error {
		if !r.Game.Status.Terminal() {
			return ErrGameInProgress
		}
		g, err := m.games.Reset(ctx, r.Code)
		if err != nil {
			return err
		}
		r.Game = g
		for _, p := range r.Roster.Slots {
			p.Color, p.Ready, p.Role = rules.NoColor, false, ""
		}
		r.Roster.Started = false
		if err := m.saveRoster(ctx, r); err != nil {
			return err
		}
		m.broadcastGame(r, chessdto.TypeRematch)
		m.broadcastStatus(r, "game.rematch", nil, "Rematch! Pick your colors.")
		m.broadcastPlayers(r)
		obslog.L().Info("room_rematch", zap.String("room", r.Code), zap.String("slot", s.Slot), zap.String("game_id", g.ID))
		out = g.Clone()
		return nil
	})
	return out, err
}

// Chat relays text to everyone in the room under the sender's color label.
func (m *Manager) Chat(ctx context.Context, code, identity, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrInvalidArgs
	}
	return m.withSeat(ctx, code, identity, func(r *Room, s *PlayerState) error {
		m.broadcast(r, chessdto.NewEvent(chessdto.TypeChatMessage, chessdto.ChatMessage{Sender: senderName(s), Msg: text}))
		return nil
	})
}

// RoomPlayers returns the public view of every seat.
func (m *Manager) RoomPlayers(ctx context.Context, code string) ([]chessdto.PlayerView, error) {
	code = normalizeCode(code)
	unlock := m.locks.Lock(code)
	defer unlock()
	r, err := m.mustLoad(ctx, code)
	if err != nil {
		return nil, err
	}
	return r.Roster.views(), nil
}

// Game returns a snapshot of the room's game.
func (m *Manager) Game(ctx context.Context, code string) (*pvpchess.Game, error) {
	code = normalizeCode(code)
	unlock := m.locks.Lock(code)
	defer unlock()
	r, err := m.mustLoad(ctx, code)
	if err != nil {
		return nil, err
	}
	return r.Game.Clone(), nil
}

// broadcastGame ships the full game state. The snapshot is shared by all recipients and
// never mutated afterwards.
func (m *Manager) broadcastGame(r *Room, typ string) {
	m.broadcast(r, chessdto.NewEvent(typ, r.Game.Clone()))
}
