package rules

import (
	"fmt"
	"strconv"
	"strings"
)

// Position is everything FEN describes.
type Position struct {
	Board         Board
	Turn          Color
	Castling      CastlingRights
	EnPassant     *Square
	HalfmoveClock int
	MoveNumber    int
}

// StartingPosition is the standard initial position.
func StartingPosition() Position {
	return Position{
		Board:      StartingBoard(),
		Turn:       White,
		Castling:   AllCastlingRights(),
		MoveNumber: 1,
	}
}

func placement(b *Board) string {
	var sb strings.Builder
	for r := 0; r < 8; r++ {
		empty := 0
		for c := 0; c < 8; c++ {
			p := b[r][c]
			if p.Empty() {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteString(strconv.Itoa(empty))
				empty = 0
			}
			letter := byte(p.Kind)
			if p.Color == Black {
				letter += 'a' - 'A'
			}
			sb.WriteByte(letter)
		}
		if empty > 0 {
			sb.WriteString(strconv.Itoa(empty))
		}
		if r < 7 {
			sb.WriteByte('/')
		}
	}
	return sb.String()
}

// PositionKey identifies a position for repetition counting: placement, side to move,
// castling rights and en passant target. The target only counts when an en passant
// capture is actually available to the side to move.
func PositionKey(b *Board, turn Color, rights CastlingRights, ep *Square) string {
	if ep != nil && !enPassantAvailable(b, turn, rights, *ep) {
		ep = nil
	}
	return positionFields(b, turn, rights, ep)
}

func positionFields(b *Board, turn Color, rights CastlingRights, ep *Square) string {
	epField := "-"
	if ep != nil {
		epField = ep.String()
	}
	return fmt.Sprintf("%s %c %s %s", placement(b), turn.letter(), rights.String(), epField)
}

func enPassantAvailable(b *Board, turn Color, rights CastlingRights, ep Square) bool {
	row := ep.Row + 1
	if turn == Black {
		row = ep.Row - 1
	}
	for _, dc := range []int{-1, 1} {
		from := Sq(row, ep.Col+dc)
		if !from.Valid() {
			continue
		}
		if p := b.At(from); p.Kind != Pawn || p.Color != turn {
			continue
		}
		if IsLegal(b, from, ep, turn, rights, &ep) && !LeavesKingInCheck(b, from, ep, turn, &ep) {
			return true
		}
	}
	return false
}

// FEN renders the full six-field FEN string. The en passant field is kept as recorded.
func (p Position) FEN() string {
	return fmt.Sprintf("%s %d %d", positionFields(&p.Board, p.Turn, p.Castling, p.EnPassant), p.HalfmoveClock, p.MoveNumber)
}

// ParseFEN reads a FEN string; the clock fields are optional.
func ParseFEN(fen string) (Position, error) {
	fields := strings.Fields(fen)
	if len(fields) < 4 {
		return Position{}, fmt.Errorf("fen needs at least 4 fields: %q", fen)
	}
	var pos Position
	rows := strings.Split(fields[0], "/")
	if len(rows) != 8 {
		return Position{}, fmt.Errorf("fen placement needs 8 ranks: %q", fields[0])
	}
	for r, row := range rows {
		c := 0
		for i := 0; i < len(row); i++ {
			ch := row[i]
			if ch >= '1' && ch <= '8' {
				c += int(ch - '0')
				continue
			}
			color := White
			if ch >= 'a' && ch <= 'z' {
				color = Black
				ch -= 'a' - 'A'
			}
			k, ok := ParseKind(string(ch))
			if !ok || c > 7 {
				return Position{}, fmt.Errorf("bad fen rank %q", row)
			}
			pos.Board[r][c] = Piece{Color: color, Kind: k}
			c++
		}
		if c != 8 {
			return Position{}, fmt.Errorf("bad fen rank width %q", row)
		}
	}
	switch fields[1] {
	case "w":
		pos.Turn = White
	case "b":
		pos.Turn = Black
	default:
		return Position{}, fmt.Errorf("bad fen side %q", fields[1])
	}
	for _, ch := range fields[2] {
		switch ch {
		case 'K':
			pos.Castling.WhiteKingside = true
		case 'Q':
			pos.Castling.WhiteQueenside = true
		case 'k':
			pos.Castling.BlackKingside = true
		case 'q':
			pos.Castling.BlackQueenside = true
		case '-':
		default:
			return Position{}, fmt.Errorf("bad fen castling %q", fields[2])
		}
	}
	if fields[3] != "-" {
		sq, err := ParseSquare(fields[3])
		if err != nil {
			return Position{}, err
		}
		pos.EnPassant = &sq
	}
	pos.MoveNumber = 1
	if len(fields) >= 6 {
		if n, err := strconv.Atoi(fields[4]); err == nil {
			pos.HalfmoveClock = n
		}
		if n, err := strconv.Atoi(fields[5]); err == nil && n > 0 {
			pos.MoveNumber = n
		}
	}
	return pos, nil
}

// InsufficientMaterial reports dead positions: K v K, K+minor v K, and K+B v K+B with
// both bishops on the same square color.
func InsufficientMaterial(b *Board) bool {
	var others []Piece
	var bishopShades []int
	for r := 0; r < 8; r++ {
		for c := 0; c < 8; c++ {
			p := b[r][c]
			if p.Empty() || p.Kind == King {
				continue
			}
			others = append(others, p)
			if p.Kind == Bishop {
				bishopShades = append(bishopShades, (r+c)%2)
			}
		}
	}
	switch len(others) {
	case 0:
		return true
	case 1:
		return others[0].Kind == Bishop || others[0].Kind == Knight
	case 2:
		return len(bishopShades) == 2 && others[0].Color != others[1].Color && bishopShades[0] == bishopShades[1]
	}
	return false
}
