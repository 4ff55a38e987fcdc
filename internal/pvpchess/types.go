package pvpchess

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/park285/pvp-chess-server/internal/rules"
)

// Status is the terminal state of a game. The zero value means the game is still active.
type Status string

const (
	StatusActive    Status = ""
	StatusCheckmate Status = "checkmate"
	StatusStalemate Status = "stalemate"
	StatusDraw      Status = "draw"
	StatusResigned  Status = "resigned"
)

// Terminal reports whether the game no longer accepts moves.
func (s Status) Terminal() bool { return s != StatusActive }

// MarshalJSON writes an active status as null.
func (s Status) MarshalJSON() ([]byte, error) {
	if s == StatusActive {
		return []byte("null"), nil
	}
	return json.Marshal(string(s))
}

func (s *Status) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = StatusActive
		return nil
	}
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*s = Status(v)
	return nil
}

// Draw reasons recorded in Game.Reason.
const (
	ReasonCheckmate            = "checkmate"
	ReasonStalemate            = "stalemate"
	ReasonInsufficientMaterial = "insufficient_material"
	ReasonFiftyMove            = "fifty_move"
	ReasonThreefold            = "threefold_repetition"
	ReasonAgreement            = "agreement"
	ReasonResignation          = "resignation"
)

// HistoryEntry is one applied move.
type HistoryEntry struct {
	From      rules.Square `json:"from"`
	To        rules.Square `json:"to"`
	Promotion rules.Kind   `json:"promotion,omitempty"`
	Piece     rules.Piece  `json:"piece"`
	Captured  rules.Piece  `json:"captured"`
	UCI       string       `json:"uci"`
	// Position is the repetition key of the position reached after the move.
	Position string `json:"position"`
}

// Game is the canonical state of one room's match.
type Game struct {
	ID            string               `json:"id"`
	Board         rules.Board          `json:"board"`
	Turn          rules.Color          `json:"turn"`
	Castling      rules.CastlingRights `json:"castling"`
	EnPassant     *rules.Square        `json:"enPassant"`
	HalfmoveClock int                  `json:"halfmoveClock"`
	MoveNumber    int                  `json:"moveNumber"`
	History       []HistoryEntry       `json:"history"`
	Status        Status               `json:"status"`
	Winner        rules.Color          `json:"winner,omitempty"`
	Reason        string               `json:"reason,omitempty"`
	DrawOffer     rules.Color          `json:"drawOffer,omitempty"`
	// Initial is the repetition key of the position the game started from.
	Initial   string    `json:"initial"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

var (
	ErrIllegalMove  = errors.New("illegal move")
	ErrTerminalGame = errors.New("game is over")
	ErrNoGame       = errors.New("no game")
)
