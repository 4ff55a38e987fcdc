package rules

import (
	"encoding/json"
	"fmt"
)

// Board is an 8×8 grid. It is a value type: assigning a Board copies it.
type Board [8][8]Piece

// StartingBoard returns the standard initial position.
func StartingBoard() Board {
	var b Board
	back := [8]Kind{Rook, Knight, Bishop, Queen, King, Bishop, Knight, Rook}
	for c := 0; c < 8; c++ {
		b[0][c] = Piece{Color: Black, Kind: back[c]}
		b[1][c] = Piece{Color: Black, Kind: Pawn}
		b[6][c] = Piece{Color: White, Kind: Pawn}
		b[7][c] = Piece{Color: White, Kind: back[c]}
	}
	return b
}

// At returns the occupant of sq; off-board squares read as empty.
func (b *Board) At(sq Square) Piece {
	if !sq.Valid() {
		return Piece{}
	}
	return b[sq.Row][sq.Col]
}

func (b *Board) Set(sq Square, p Piece) {
	if sq.Valid() {
		b[sq.Row][sq.Col] = p
	}
}

// FindKing locates the king of color c.
func (b *Board) FindKing(c Color) (Square, bool) {
	for r := 0; r < 8; r++ {
		for col := 0; col < 8; col++ {
			if p := b[r][col]; p.Kind == King && p.Color == c {
				return Sq(r, col), true
			}
		}
	}
	return Square{}, false
}

func (b Board) MarshalJSON() ([]byte, error) {
	var rows [8][8]*string
	for r := 0; r < 8; r++ {
		for c := 0; c < 8; c++ {
			if p := b[r][c]; !p.Empty() {
				s := p.String()
				rows[r][c] = &s
			}
		}
	}
	return json.Marshal(rows)
}

func (b *Board) UnmarshalJSON(data []byte) error {
	var rows [][]*string
	if err := json.Unmarshal(data, &rows); err != nil {
		return err
	}
	if len(rows) != 8 {
		return fmt.Errorf("board must have 8 rows, got %d", len(rows))
	}
	var out Board
	for r, row := range rows {
		if len(row) != 8 {
			return fmt.Errorf("board row %d must have 8 cells, got %d", r, len(row))
		}
		for c, cell := range row {
			if cell == nil {
				continue
			}
			p, err := ParsePiece(*cell)
			if err != nil {
				return err
			}
			out[r][c] = p
		}
	}
	*b = out
	return nil
}
