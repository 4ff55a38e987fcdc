package rules

// IsLegal reports whether moving the piece on from to to is geometrically legal for side.
// It does not apply the self-check filter; see LeavesKingInCheck.
func IsLegal(b *Board, from, to Square, side Color, rights CastlingRights, ep *Square) bool {
	if !from.Valid() || !to.Valid() || from == to {
		return false
	}
	piece := b.At(from)
	if piece.Empty() || piece.Color != side {
		return false
	}
	dest := b.At(to)
	if !dest.Empty() && dest.Color == side {
		return false
	}
	dr, dc := to.Row-from.Row, to.Col-from.Col

	switch piece.Kind {
	case Pawn:
		return pawnMove(b, from, to, side, ep)
	case Knight:
		return (abs(dr) == 2 && abs(dc) == 1) || (abs(dr) == 1 && abs(dc) == 2)
	case Bishop:
		return abs(dr) == abs(dc) && pathClear(b, from, to)
	case Rook:
		return (dr == 0 || dc == 0) && pathClear(b, from, to)
	case Queen:
		return (abs(dr) == abs(dc) || dr == 0 || dc == 0) && pathClear(b, from, to)
	case King:
		if abs(dr) <= 1 && abs(dc) <= 1 {
			return true
		}
		if dr == 0 && abs(dc) == 2 {
			return canCastle(b, from, to, side, rights)
		}
	}
	return false
}

func pawnMove(b *Board, from, to Square, side Color, ep *Square) bool {
	dir, startRow := -1, 6
	if side == Black {
		dir, startRow = 1, 1
	}
	dr, dc := to.Row-from.Row, to.Col-from.Col
	dest := b.At(to)

	if dc == 0 {
		if !dest.Empty() {
			return false
		}
		if dr == dir {
			return true
		}
		return dr == 2*dir && from.Row == startRow && b.At(Sq(from.Row+dir, from.Col)).Empty()
	}
	if abs(dc) != 1 || dr != dir {
		return false
	}
	if !dest.Empty() {
		return dest.Color != side
	}
	if ep == nil || *ep != to {
		return false
	}
	passed := b.At(Sq(from.Row, to.Col))
	return passed.Kind == Pawn && passed.Color == side.Opponent()
}

// pathClear checks every square strictly between from and to along a straight or diagonal line.
func pathClear(b *Board, from, to Square) bool {
	stepR, stepC := sign(to.Row-from.Row), sign(to.Col-from.Col)
	r, c := from.Row+stepR, from.Col+stepC
	for r != to.Row || c != to.Col {
		if !b[r][c].Empty() {
			return false
		}
		r += stepR
		c += stepC
	}
	return true
}

func canCastle(b *Board, from, to Square, side Color, rights CastlingRights) bool {
	home := 7
	if side == Black {
		home = 0
	}
	if from != Sq(home, 4) {
		return false
	}
	rook := Piece{Color: side, Kind: Rook}

	var between []int
	var transit, rookCol int
	switch to.Col {
	case 6:
		if !rights.Kingside(side) {
			return false
		}
		between, transit, rookCol = []int{5, 6}, 5, 7
	case 2:
		if !rights.Queenside(side) {
			return false
		}
		between, transit, rookCol = []int{3, 2, 1}, 3, 0
	default:
		return false
	}
	if b.At(Sq(home, rookCol)) != rook {
		return false
	}
	for _, c := range between {
		if !b[home][c].Empty() {
			return false
		}
	}
	for _, c := range []int{4, transit, to.Col} {
		if kingAttackedOn(b, from, Sq(home, c), side) {
			return false
		}
	}
	return true
}

// kingAttackedOn places the king (currently on from) on sq of a scratch board and asks IsInCheck.
func kingAttackedOn(b *Board, from, sq Square, side Color) bool {
	scratch := *b
	king := scratch.At(from)
	scratch.Set(from, Piece{})
	scratch.Set(sq, king)
	return IsInCheck(&scratch, side)
}

// IsInCheck reports whether any opposing piece could move onto c's king square.
// A board without that king counts as in check.
func IsInCheck(b *Board, c Color) bool {
	king, ok := b.FindKing(c)
	if !ok {
		return true
	}
	return SquareAttacked(b, king, c.Opponent())
}

// SquareAttacked reports whether a piece of attacker could capture on sq. Castling and
// en passant never count as attacks, so the check never recurses into canCastle.
func SquareAttacked(b *Board, sq Square, attacker Color) bool {
	for r := 0; r < 8; r++ {
		for c := 0; c < 8; c++ {
			p := b[r][c]
			if p.Empty() || p.Color != attacker {
				continue
			}
			if IsLegal(b, Sq(r, c), sq, attacker, CastlingRights{}, nil) {
				return true
			}
		}
	}
	return false
}

// Apply returns the board after moving from→to, including the castling rook hop, the
// en passant capture and promotion. A pawn reaching the last rank without a valid
// promotion kind becomes a queen. Apply does not validate the move.
func Apply(b Board, from, to Square, promo Kind, ep *Square) Board {
	piece := b.At(from)
	b.Set(from, Piece{})

	switch piece.Kind {
	case Pawn:
		if from.Col != to.Col && b.At(to).Empty() && ep != nil && *ep == to {
			b.Set(Sq(from.Row, to.Col), Piece{})
		}
		if to.Row == 0 || to.Row == 7 {
			if !promo.Promotable() {
				promo = Queen
			}
			piece.Kind = promo
		}
	case King:
		if from.Row == to.Row && to.Col-from.Col == 2 {
			b.Set(Sq(to.Row, 5), b.At(Sq(to.Row, 7)))
			b.Set(Sq(to.Row, 7), Piece{})
		} else if from.Row == to.Row && from.Col-to.Col == 2 {
			b.Set(Sq(to.Row, 3), b.At(Sq(to.Row, 0)))
			b.Set(Sq(to.Row, 0), Piece{})
		}
	}
	b.Set(to, piece)
	return b
}

// LeavesKingInCheck is the self-check filter: it simulates the move on a scratch copy and
// reports whether side's own king would be attacked afterwards.
func LeavesKingInCheck(b *Board, from, to Square, side Color, ep *Square) bool {
	next := Apply(*b, from, to, Queen, ep)
	return IsInCheck(&next, side)
}

// HasAnyLegalMove tries every (piece, destination) pair of c and stops at the first one
// passing both IsLegal and the self-check filter.
func HasAnyLegalMove(b *Board, c Color, rights CastlingRights, ep *Square) bool {
	found := false
	eachLegal(b, c, rights, ep, func(Square, Square) bool {
		found = true
		return false
	})
	return found
}

// LegalMoves enumerates every fully legal move of c. Promotions expand to all four kinds.
func LegalMoves(b *Board, c Color, rights CastlingRights, ep *Square) []Move {
	var out []Move
	eachLegal(b, c, rights, ep, func(from, to Square) bool {
		if b.At(from).Kind == Pawn && (to.Row == 0 || to.Row == 7) {
			for _, k := range []Kind{Queen, Rook, Bishop, Knight} {
				out = append(out, Move{From: from, To: to, Promotion: k})
			}
			return true
		}
		out = append(out, Move{From: from, To: to})
		return true
	})
	return out
}

func eachLegal(b *Board, c Color, rights CastlingRights, ep *Square, yield func(from, to Square) bool) {
	for fr := 0; fr < 8; fr++ {
		for fc := 0; fc < 8; fc++ {
			p := b[fr][fc]
			if p.Empty() || p.Color != c {
				continue
			}
			from := Sq(fr, fc)
			for tr := 0; tr < 8; tr++ {
				for tc := 0; tc < 8; tc++ {
					to := Sq(tr, tc)
					if !IsLegal(b, from, to, c, rights, ep) {
						continue
					}
					if LeavesKingInCheck(b, from, to, c, ep) {
						continue
					}
					if !yield(from, to) {
						return
					}
				}
			}
		}
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func sign(n int) int {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	}
	return 0
}
