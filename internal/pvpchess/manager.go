package pvpchess

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/park285/pvp-chess-server/internal/obslog"
	"github.com/park285/pvp-chess-server/internal/rules"
	"go.uber.org/zap"
)

// GameSaver persists the live game of a room.
type GameSaver interface {
	SaveGame(ctx context.Context, code string, g *Game) error
}

// ResultSink receives every game that reaches a terminal status.
type ResultSink interface {
	SaveResult(ctx context.Context, code string, g *Game) error
}

// Manager applies game transitions and writes each accepted one through to storage.
// It holds no state of its own; callers serialize access per room.
type Manager struct {
	saver GameSaver
	sink  ResultSink
	now   func() time.Time
}

func NewManager(saver GameSaver) *Manager {
	return &Manager{saver: saver, now: time.Now}
}

// AttachResultSink wires an archive for finished games.
func (m *Manager) AttachResultSink(s ResultSink) {
	if m != nil {
		m.sink = s
	}
}

// NewGame creates and persists a fresh game for code.
func (m *Manager) NewGame(ctx context.Context, code string) (*Game, error) {
	g := NewGame()
	if err := m.save(ctx, code, g); err != nil {
		return nil, err
	}
	obslog.L().Info("pvp_game_create", zap.String("room", code), zap.String("game_id", g.ID))
	return g, nil
}

// Reset replaces the room's game with a fresh one (rematch).
func (m *Manager) Reset(ctx context.Context, code string) (*Game, error) {
	g := NewGame()
	if err := m.save(ctx, code, g); err != nil {
		return nil, err
	}
	obslog.L().Info("pvp_game_reset", zap.String("room", code), zap.String("game_id", g.ID))
	return g, nil
}

// PlayMove applies mv for side by. On rejection the returned error wraps ErrIllegalMove
// or ErrTerminalGame and nothing is persisted.
func (m *Manager) PlayMove(ctx context.Context, code string, g *Game, mv rules.Move, by rules.Color) (*Game, error) {
	next, err := ApplyMove(g, mv, by)
	if err != nil {
		obslog.L().Debug("pvp_move_rejected",
			zap.String("room", code),
			zap.String("by", by.String()),
			zap.String("uci", mv.UCI()),
			zap.Error(err),
		)
		return nil, err
	}
	if err := m.save(ctx, code, next); err != nil {
		return nil, err
	}
	last := next.History[len(next.History)-1]
	obslog.L().Info("pvp_move",
		zap.String("room", code),
		zap.String("game_id", next.ID),
		zap.String("by", by.String()),
		zap.String("uci", last.UCI),
		zap.String("turn", next.Turn.String()),
		zap.Int("move_number", next.MoveNumber),
		zap.String("status", string(next.Status)),
	)
	m.persistIfFinal(ctx, code, next)
	return next, nil
}

// Resign ends the game with by resigning.
func (m *Manager) Resign(ctx context.Context, code string, g *Game, by rules.Color) (*Game, error) {
	next, err := Resign(g, by)
	if err != nil {
		return nil, err
	}
	if err := m.save(ctx, code, next); err != nil {
		return nil, err
	}
	obslog.L().Info("pvp_resign",
		zap.String("room", code),
		zap.String("game_id", next.ID),
		zap.String("resigner", by.String()),
		zap.String("winner", next.Winner.String()),
	)
	m.persistIfFinal(ctx, code, next)
	return next, nil
}

// OfferDraw records or accepts a draw offer; agreed is true when the game ended drawn.
func (m *Manager) OfferDraw(ctx context.Context, code string, g *Game, by rules.Color) (*Game, bool, error) {
	next, agreed, err := OfferDraw(g, by)
	if err != nil {
		return nil, false, err
	}
	if err := m.save(ctx, code, next); err != nil {
		return nil, false, err
	}
	obslog.L().Info("pvp_draw_offer",
		zap.String("room", code),
		zap.String("game_id", next.ID),
		zap.String("by", by.String()),
		zap.Bool("agreed", agreed),
	)
	m.persistIfFinal(ctx, code, next)
	return next, agreed, nil
}

func (m *Manager) save(ctx context.Context, code string, g *Game) error {
	if m == nil || m.saver == nil {
		return errors.New("pvp manager not initialized")
	}
	g.UpdatedAt = m.now()
	if err := m.saver.SaveGame(ctx, code, g); err != nil {
		obslog.L().Error("pvp_game_save_error", zap.String("room", code), zap.Error(err))
		return fmt.Errorf("save game %s: %w", code, err)
	}
	return nil
}

// persistIfFinal forwards a terminal game to the result sink. Archive failures are logged only.
func (m *Manager) persistIfFinal(ctx context.Context, code string, g *Game) {
	if g == nil || !g.Status.Terminal() {
		return
	}
	obslog.L().Info("pvp_game_over",
		zap.String("room", code),
		zap.String("game_id", g.ID),
		zap.String("status", string(g.Status)),
		zap.String("reason", g.Reason),
		zap.String("winner", g.Winner.String()),
	)
	if m.sink == nil {
		return
	}
	if err := m.sink.SaveResult(ctx, code, g); err != nil {
		obslog.L().Error("pvp_result_persist_error", zap.String("room", code), zap.String("game_id", g.ID), zap.Error(err))
		return
	}
	obslog.L().Info("pvp_result_persist", zap.String("room", code), zap.String("game_id", g.ID))
}
