package rules

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Color identifies a chess side. The zero value means "no color".
type Color uint8

const (
	NoColor Color = iota
	White
	Black
)

// ParseColor accepts "white"/"w" and "black"/"b" in any case.
func ParseColor(s string) (Color, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "w":
		return White, true
	case "black", "b":
		return Black, true
	default:
		return NoColor, false
	}
}

func (c Color) String() string {
	switch c {
	case White:
		return "white"
	case Black:
		return "black"
	default:
		return ""
	}
}

// Opponent returns the other side; NoColor stays NoColor.
func (c Color) Opponent() Color {
	switch c {
	case White:
		return Black
	case Black:
		return White
	default:
		return NoColor
	}
}

func (c Color) letter() byte {
	if c == Black {
		return 'b'
	}
	return 'w'
}

func (c Color) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Color) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*c = NoColor
		return nil
	}
	v, ok := ParseColor(string(b))
	if !ok {
		return fmt.Errorf("invalid color %q", string(b))
	}
	*c = v
	return nil
}

// Kind is a piece type, stored as its upper-case letter.
type Kind byte

const (
	NoKind Kind = 0
	Pawn   Kind = 'P'
	Knight Kind = 'N'
	Bishop Kind = 'B'
	Rook   Kind = 'R'
	Queen  Kind = 'Q'
	King   Kind = 'K'
)

// ParseKind accepts a single piece letter in either case.
func ParseKind(s string) (Kind, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 1 {
		return NoKind, false
	}
	switch k := Kind(s[0]); k {
	case Pawn, Knight, Bishop, Rook, Queen, King:
		return k, true
	}
	return NoKind, false
}

func (k Kind) String() string {
	if k == NoKind {
		return ""
	}
	return string(rune(k))
}

// Promotable reports whether a pawn may become this kind.
func (k Kind) Promotable() bool {
	return k == Knight || k == Bishop || k == Rook || k == Queen
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*k = NoKind
		return nil
	}
	v, ok := ParseKind(string(b))
	if !ok {
		return fmt.Errorf("invalid piece kind %q", string(b))
	}
	*k = v
	return nil
}

// Piece is a square occupant. The zero value is an empty square.
type Piece struct {
	Color Color
	Kind  Kind
}

func (p Piece) Empty() bool { return p.Kind == NoKind }

// String renders the piece as "wP", "bK", ... and "" for an empty square.
func (p Piece) String() string {
	if p.Empty() {
		return ""
	}
	return string([]byte{p.Color.letter(), byte(p.Kind)})
}

// ParsePiece is the inverse of Piece.String.
func ParsePiece(s string) (Piece, error) {
	if s == "" {
		return Piece{}, nil
	}
	if len(s) != 2 {
		return Piece{}, fmt.Errorf("invalid piece %q", s)
	}
	var c Color
	switch s[0] {
	case 'w':
		c = White
	case 'b':
		c = Black
	default:
		return Piece{}, fmt.Errorf("invalid piece color %q", s)
	}
	k, ok := ParseKind(s[1:])
	if !ok {
		return Piece{}, fmt.Errorf("invalid piece kind %q", s)
	}
	return Piece{Color: c, Kind: k}, nil
}

func (p Piece) MarshalJSON() ([]byte, error) {
	if p.Empty() {
		return []byte("null"), nil
	}
	return json.Marshal(p.String())
}

func (p *Piece) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*p = Piece{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParsePiece(s)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Square addresses a board cell; row 0 is black's back rank, col 0 is the a-file.
type Square struct {
	Row int
	Col int
}

func Sq(row, col int) Square { return Square{Row: row, Col: col} }

func (s Square) Valid() bool { return s.Row >= 0 && s.Row < 8 && s.Col >= 0 && s.Col < 8 }

// String returns algebraic coordinates, e.g. Sq(6,4) → "e2".
func (s Square) String() string {
	if !s.Valid() {
		return "-"
	}
	return string([]byte{byte('a' + s.Col), byte('8' - s.Row)})
}

// ParseSquare parses algebraic coordinates such as "e4".
func ParseSquare(s string) (Square, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return Square{}, fmt.Errorf("invalid square %q", s)
	}
	return Square{Row: int('8' - s[1]), Col: int(s[0] - 'a')}, nil
}

func (s Square) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{s.Row, s.Col})
}

func (s *Square) UnmarshalJSON(b []byte) error {
	var rc []int
	if err := json.Unmarshal(b, &rc); err != nil {
		return err
	}
	if len(rc) != 2 {
		return fmt.Errorf("square must be [row, col], got %d values", len(rc))
	}
	*s = Square{Row: rc[0], Col: rc[1]}
	return nil
}

// CastlingRights holds the four independent castling flags.
type CastlingRights struct {
	WhiteKingside  bool `json:"wK"`
	WhiteQueenside bool `json:"wQ"`
	BlackKingside  bool `json:"bK"`
	BlackQueenside bool `json:"bQ"`
}

// AllCastlingRights is the starting-position rights set.
func AllCastlingRights() CastlingRights {
	return CastlingRights{WhiteKingside: true, WhiteQueenside: true, BlackKingside: true, BlackQueenside: true}
}

func (r CastlingRights) Kingside(c Color) bool {
	if c == White {
		return r.WhiteKingside
	}
	return r.BlackKingside
}

func (r CastlingRights) Queenside(c Color) bool {
	if c == White {
		return r.WhiteQueenside
	}
	return r.BlackQueenside
}

// ClearColor drops both rights of one side.
func (r *CastlingRights) ClearColor(c Color) {
	switch c {
	case White:
		r.WhiteKingside, r.WhiteQueenside = false, false
	case Black:
		r.BlackKingside, r.BlackQueenside = false, false
	}
}

// ClearCorner drops the right tied to a rook home square, if sq is one.
func (r *CastlingRights) ClearCorner(sq Square) {
	switch sq {
	case Sq(7, 0):
		r.WhiteQueenside = false
	case Sq(7, 7):
		r.WhiteKingside = false
	case Sq(0, 0):
		r.BlackQueenside = false
	case Sq(0, 7):
		r.BlackKingside = false
	}
}

// String renders the FEN castling field.
func (r CastlingRights) String() string {
	var b strings.Builder
	if r.WhiteKingside {
		b.WriteByte('K')
	}
	if r.WhiteQueenside {
		b.WriteByte('Q')
	}
	if r.BlackKingside {
		b.WriteByte('k')
	}
	if r.BlackQueenside {
		b.WriteByte('q')
	}
	if b.Len() == 0 {
		return "-"
	}
	return b.String()
}

// Move is a requested move; it is never trusted until validated.
type Move struct {
	From      Square `json:"from"`
	To        Square `json:"to"`
	Promotion Kind   `json:"promotion,omitempty"`
}

// UCI renders the move in long algebraic form, e.g. "e7e8q".
func (m Move) UCI() string {
	s := m.From.String() + m.To.String()
	if m.Promotion != NoKind {
		s += strings.ToLower(m.Promotion.String())
	}
	return s
}

// ParseUCI parses "e2e4" / "e7e8q".
func ParseUCI(s string) (Move, error) {
	s = strings.TrimSpace(s)
	if len(s) != 4 && len(s) != 5 {
		return Move{}, fmt.Errorf("invalid uci move %q", s)
	}
	from, err := ParseSquare(s[0:2])
	if err != nil {
		return Move{}, err
	}
	to, err := ParseSquare(s[2:4])
	if err != nil {
		return Move{}, err
	}
	mv := Move{From: from, To: to}
	if len(s) == 5 {
		k, ok := ParseKind(s[4:])
		if !ok || !k.Promotable() {
			return Move{}, fmt.Errorf("invalid promotion in %q", s)
		}
		mv.Promotion = k
	}
	return mv, nil
}
