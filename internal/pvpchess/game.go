package pvpchess

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/park285/pvp-chess-server/internal/rules"
)

// NewGame returns a fresh game at the standard starting position.
func NewGame() *Game {
	return FromPosition(rules.StartingPosition())
}

// FromPosition starts a game from an arbitrary position. The position itself counts
// as the first occurrence for repetition purposes.
func FromPosition(pos rules.Position) *Game {
	now := time.Now()
	g := &Game{
		ID:            uuid.NewString(),
		Board:         pos.Board,
		Turn:          pos.Turn,
		Castling:      pos.Castling,
		HalfmoveClock: pos.HalfmoveClock,
		MoveNumber:    pos.MoveNumber,
		History:       []HistoryEntry{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if g.MoveNumber < 1 {
		g.MoveNumber = 1
	}
	if pos.EnPassant != nil {
		ep := *pos.EnPassant
		g.EnPassant = &ep
	}
	g.Initial = g.positionKey()
	return g
}

// Clone returns a deep copy.
func (g *Game) Clone() *Game {
	if g == nil {
		return nil
	}
	c := *g
	if g.EnPassant != nil {
		ep := *g.EnPassant
		c.EnPassant = &ep
	}
	c.History = make([]HistoryEntry, len(g.History))
	copy(c.History, g.History)
	return &c
}

// Position returns the FEN view of the game.
func (g *Game) Position() rules.Position {
	return rules.Position{
		Board:         g.Board,
		Turn:          g.Turn,
		Castling:      g.Castling,
		EnPassant:     g.EnPassant,
		HalfmoveClock: g.HalfmoveClock,
		MoveNumber:    g.MoveNumber,
	}
}

func (g *Game) FEN() string { return g.Position().FEN() }

func (g *Game) positionKey() string {
	return rules.PositionKey(&g.Board, g.Turn, g.Castling, g.EnPassant)
}

func rejectf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIllegalMove, fmt.Sprintf(format, args...))
}

// ApplyMove validates mv on behalf of requester and returns the successor game.
// g is never modified; a rejected move returns an error wrapping ErrIllegalMove or
// ErrTerminalGame.
func ApplyMove(g *Game, mv rules.Move, requester rules.Color) (*Game, error) {
	if g == nil {
		return nil, ErrNoGame
	}
	if g.Status.Terminal() {
		return nil, ErrTerminalGame
	}
	if requester != g.Turn {
		return nil, rejectf("not %s's turn", requester)
	}
	piece := g.Board.At(mv.From)
	if piece.Empty() || piece.Color != requester {
		return nil, rejectf("no %s piece on %s", requester, mv.From)
	}
	if !rules.IsLegal(&g.Board, mv.From, mv.To, requester, g.Castling, g.EnPassant) {
		return nil, rejectf("%s%s is not a legal move", mv.From, mv.To)
	}
	if rules.LeavesKingInCheck(&g.Board, mv.From, mv.To, requester, g.EnPassant) {
		return nil, rejectf("%s%s leaves the king in check", mv.From, mv.To)
	}

	promo := rules.NoKind
	if piece.Kind == rules.Pawn && (mv.To.Row == 0 || mv.To.Row == 7) {
		switch {
		case mv.Promotion == rules.NoKind:
			promo = rules.Queen
		case mv.Promotion.Promotable():
			promo = mv.Promotion
		default:
			return nil, rejectf("cannot promote to %s", mv.Promotion)
		}
	}

	captured := g.Board.At(mv.To)
	enPassant := piece.Kind == rules.Pawn && mv.From.Col != mv.To.Col && captured.Empty()
	if enPassant {
		captured = g.Board.At(rules.Sq(mv.From.Row, mv.To.Col))
	}

	next := g.Clone()
	next.Board = rules.Apply(g.Board, mv.From, mv.To, promo, g.EnPassant)

	if piece.Kind == rules.King {
		next.Castling.ClearColor(requester)
	}
	next.Castling.ClearCorner(mv.From)
	next.Castling.ClearCorner(mv.To)

	next.EnPassant = nil
	if piece.Kind == rules.Pawn && abs(mv.To.Row-mv.From.Row) == 2 {
		ep := rules.Sq((mv.From.Row+mv.To.Row)/2, mv.From.Col)
		next.EnPassant = &ep
	}

	if piece.Kind == rules.Pawn || !captured.Empty() {
		next.HalfmoveClock = 0
	} else {
		next.HalfmoveClock++
	}
	if requester == rules.Black {
		next.MoveNumber++
	}
	next.Turn = requester.Opponent()
	next.DrawOffer = rules.NoColor

	applied := rules.Move{From: mv.From, To: mv.To, Promotion: promo}
	next.History = append(next.History, HistoryEntry{
		From:      mv.From,
		To:        mv.To,
		Promotion: promo,
		Piece:     piece,
		Captured:  captured,
		UCI:       applied.UCI(),
		Position:  next.positionKey(),
	})
	next.evaluate(requester)
	return next, nil
}

// evaluate sets a terminal status for the side now to move, if any applies.
func (g *Game) evaluate(mover rules.Color) {
	side := g.Turn
	inCheck := rules.IsInCheck(&g.Board, side)
	hasMove := rules.HasAnyLegalMove(&g.Board, side, g.Castling, g.EnPassant)
	switch {
	case inCheck && !hasMove:
		g.finish(StatusCheckmate, mover, ReasonCheckmate)
	case !hasMove:
		g.finish(StatusStalemate, rules.NoColor, ReasonStalemate)
	case rules.InsufficientMaterial(&g.Board):
		g.finish(StatusDraw, rules.NoColor, ReasonInsufficientMaterial)
	case g.HalfmoveClock >= 100:
		g.finish(StatusDraw, rules.NoColor, ReasonFiftyMove)
	case g.Repetitions() >= 3:
		g.finish(StatusDraw, rules.NoColor, ReasonThreefold)
	}
}

func (g *Game) finish(s Status, winner rules.Color, reason string) {
	g.Status = s
	g.Winner = winner
	g.Reason = reason
	g.DrawOffer = rules.NoColor
}

// Repetitions counts how often the current position has occurred, including now.
func (g *Game) Repetitions() int {
	key := g.positionKey()
	n := 0
	if g.Initial == key {
		n++
	}
	for _, h := range g.History {
		if h.Position == key {
			n++
		}
	}
	return n
}

// Resign ends the game in favour of by's opponent.
func Resign(g *Game, by rules.Color) (*Game, error) {
	if g == nil {
		return nil, ErrNoGame
	}
	if g.Status.Terminal() {
		return nil, ErrTerminalGame
	}
	if by != rules.White && by != rules.Black {
		return nil, rejectf("resign needs a side")
	}
	next := g.Clone()
	next.finish(StatusResigned, by.Opponent(), ReasonResignation)
	return next, nil
}

// OfferDraw records a draw offer from by. If the opponent's offer is already pending the
// offer counts as acceptance and the game ends drawn; agreed reports that case.
func OfferDraw(g *Game, by rules.Color) (next *Game, agreed bool, err error) {
	if g == nil {
		return nil, false, ErrNoGame
	}
	if g.Status.Terminal() {
		return nil, false, ErrTerminalGame
	}
	if by != rules.White && by != rules.Black {
		return nil, false, rejectf("draw offer needs a side")
	}
	next = g.Clone()
	if g.DrawOffer == by.Opponent() {
		next.finish(StatusDraw, rules.NoColor, ReasonAgreement)
		return next, true, nil
	}
	next.DrawOffer = by
	return next, false, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
