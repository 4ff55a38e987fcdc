package rules

import (
	"testing"

	nchess "github.com/corentings/chess/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustFEN(t *testing.T, fen string) Position {
	t.Helper()
	pos, err := ParseFEN(fen)
	require.NoError(t, err)
	return pos
}

func TestStartingPositionHasTwentyMoves(t *testing.T) {
	pos := StartingPosition()
	moves := LegalMoves(&pos.Board, White, pos.Castling, nil)
	assert.Len(t, moves, 20)
	assert.True(t, HasAnyLegalMove(&pos.Board, White, pos.Castling, nil))
	assert.False(t, IsInCheck(&pos.Board, White))
	assert.False(t, IsInCheck(&pos.Board, Black))
}

func TestLegalMoveCountsMatchKnownPerft(t *testing.T) {
	cases := []struct {
		name string
		fen  string
		want int
	}{
		{"kiwipete", "r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1", 48},
		{"rook endgame", "8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 w - - 0 1", 14},
		{"promotions and pins", "r3k2r/Pppp1ppp/1b3nbN/nP6/BBP1P3/q4N2/Pp1P2PP/R2Q1RK1 w kq - 0 1", 6},
		{"castling with capture-promotion", "rnbq1k1r/pp1Pbppp/2p5/8/2B5/8/PPP1NnPP/RNBQK2R w KQ - 1 8", 44},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pos := mustFEN(t, tc.fen)
			got := LegalMoves(&pos.Board, pos.Turn, pos.Castling, pos.EnPassant)
			assert.Len(t, got, tc.want)
		})
	}
}

func TestLegalMoveCountsAgreeWithReferenceLibrary(t *testing.T) {
	fens := []string{
		"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1",
		"rnbqkbnr/ppp1p1pp/8/3pPp2/8/8/PPPP1PPP/RNBQKBNR w KQkq f6 0 3",
		"r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1",
		"r3k2r/8/8/8/8/8/8/R3K2R b KQkq - 0 1",
		"4k3/8/8/8/8/8/4r3/4K3 w - - 0 1",
		"7k/5Q2/6K1/8/8/8/8/8 b - - 0 1",
	}
	for _, fen := range fens {
		t.Run(fen, func(t *testing.T) {
			pos := mustFEN(t, fen)
			opt, err := nchess.FEN(fen)
			require.NoError(t, err)
			ref := nchess.NewGame(opt)
			got := LegalMoves(&pos.Board, pos.Turn, pos.Castling, pos.EnPassant)
			assert.Equal(t, len(ref.ValidMoves()), len(got))
		})
	}
}

func TestKnightJumpsOverPieces(t *testing.T) {
	pos := StartingPosition()
	assert.True(t, IsLegal(&pos.Board, Sq(7, 6), Sq(5, 5), White, pos.Castling, nil))
	assert.False(t, IsLegal(&pos.Board, Sq(7, 6), Sq(6, 4), White, pos.Castling, nil), "own piece on e2")
}

func TestSlidersAreBlocked(t *testing.T) {
	pos := StartingPosition()
	assert.False(t, IsLegal(&pos.Board, Sq(7, 0), Sq(5, 0), White, pos.Castling, nil))
	assert.False(t, IsLegal(&pos.Board, Sq(7, 2), Sq(5, 4), White, pos.Castling, nil))
	assert.False(t, IsLegal(&pos.Board, Sq(7, 3), Sq(4, 3), White, pos.Castling, nil))
}

func TestPawnPushesAndCaptures(t *testing.T) {
	pos := mustFEN(t, "4k3/8/8/8/8/3p4/4P3/4K3 w - - 0 1")
	b := &pos.Board
	assert.True(t, IsLegal(b, Sq(6, 4), Sq(5, 4), White, pos.Castling, nil))
	assert.True(t, IsLegal(b, Sq(6, 4), Sq(4, 4), White, pos.Castling, nil))
	assert.True(t, IsLegal(b, Sq(6, 4), Sq(5, 3), White, pos.Castling, nil), "diagonal capture")
	assert.False(t, IsLegal(b, Sq(6, 4), Sq(5, 5), White, pos.Castling, nil), "diagonal onto empty")
	assert.False(t, IsLegal(b, Sq(6, 4), Sq(7, 4), White, pos.Castling, nil), "backwards")

	blocked := mustFEN(t, "4k3/8/8/8/8/4n3/4P3/4K3 w - - 0 1")
	assert.False(t, IsLegal(&blocked.Board, Sq(6, 4), Sq(5, 4), White, blocked.Castling, nil))
	assert.False(t, IsLegal(&blocked.Board, Sq(6, 4), Sq(4, 4), White, blocked.Castling, nil), "double push through a piece")
}

func TestEnPassant(t *testing.T) {
	pos := mustFEN(t, "4k3/8/8/3pP3/8/8/8/4K3 w - d6 0 2")
	b := &pos.Board
	require.True(t, IsLegal(b, Sq(3, 4), Sq(2, 3), White, pos.Castling, pos.EnPassant))
	assert.False(t, IsLegal(b, Sq(3, 4), Sq(2, 3), White, pos.Castling, nil), "no target, no capture")

	after := Apply(*b, Sq(3, 4), Sq(2, 3), NoKind, pos.EnPassant)
	assert.Equal(t, Piece{Color: White, Kind: Pawn}, after.At(Sq(2, 3)))
	assert.True(t, after.At(Sq(3, 3)).Empty(), "passed pawn removed")
	assert.True(t, after.At(Sq(3, 4)).Empty())
}

func TestCastlingRequiresSafeSquares(t *testing.T) {
	open := mustFEN(t, "r3k2r/8/8/8/8/8/8/R3K2R w KQkq - 0 1")
	assert.True(t, IsLegal(&open.Board, Sq(7, 4), Sq(7, 6), White, open.Castling, nil))
	assert.True(t, IsLegal(&open.Board, Sq(7, 4), Sq(7, 2), White, open.Castling, nil))
	assert.False(t, IsLegal(&open.Board, Sq(7, 4), Sq(7, 6), White, CastlingRights{}, nil), "no right")

	through := mustFEN(t, "r3k2r/8/8/8/8/8/5r2/R3K2R w KQ - 0 1")
	assert.False(t, IsLegal(&through.Board, Sq(7, 4), Sq(7, 6), White, through.Castling, nil), "f1 attacked")

	inCheck := mustFEN(t, "4k3/8/8/8/8/8/4r3/R3K2R w KQ - 0 1")
	assert.True(t, IsInCheck(&inCheck.Board, White))
	assert.False(t, IsLegal(&inCheck.Board, Sq(7, 4), Sq(7, 6), White, inCheck.Castling, nil))
	assert.False(t, IsLegal(&inCheck.Board, Sq(7, 4), Sq(7, 2), White, inCheck.Castling, nil))

	landing := mustFEN(t, "4k1r1/8/8/8/8/8/8/R3K2R w KQ - 0 1")
	assert.False(t, IsLegal(&landing.Board, Sq(7, 4), Sq(7, 6), White, landing.Castling, nil), "g1 attacked")
	assert.True(t, IsLegal(&landing.Board, Sq(7, 4), Sq(7, 2), White, landing.Castling, nil))

	blocked := mustFEN(t, "4k3/8/8/8/8/8/8/RN2K2R w KQ - 0 1")
	assert.False(t, IsLegal(&blocked.Board, Sq(7, 4), Sq(7, 2), White, blocked.Castling, nil), "b1 occupied")

	noRook := mustFEN(t, "4k3/8/8/8/8/8/8/4K3 w KQ - 0 1")
	assert.False(t, IsLegal(&noRook.Board, Sq(7, 4), Sq(7, 6), White, noRook.Castling, nil))
}

func TestApplyCastlingMovesRook(t *testing.T) {
	pos := mustFEN(t, "r3k2r/8/8/8/8/8/8/R3K2R b KQkq - 0 1")
	after := Apply(pos.Board, Sq(0, 4), Sq(0, 2), NoKind, nil)
	assert.Equal(t, Piece{Color: Black, Kind: King}, after.At(Sq(0, 2)))
	assert.Equal(t, Piece{Color: Black, Kind: Rook}, after.At(Sq(0, 3)))
	assert.True(t, after.At(Sq(0, 0)).Empty())
	assert.True(t, after.At(Sq(0, 4)).Empty())
}

func TestApplyPromotion(t *testing.T) {
	pos := mustFEN(t, "8/4P3/8/8/8/8/k7/4K3 w - - 0 1")
	knight := Apply(pos.Board, Sq(1, 4), Sq(0, 4), Knight, nil)
	assert.Equal(t, Piece{Color: White, Kind: Knight}, knight.At(Sq(0, 4)))
	queen := Apply(pos.Board, Sq(1, 4), Sq(0, 4), NoKind, nil)
	assert.Equal(t, Piece{Color: White, Kind: Queen}, queen.At(Sq(0, 4)))
}

func TestSelfCheckFilter(t *testing.T) {
	// the e2 knight is pinned against the king by the e8 rook
	pos := mustFEN(t, "4r2k/8/8/8/8/8/4N3/4K3 w - - 0 1")
	b := &pos.Board
	require.True(t, IsLegal(b, Sq(6, 4), Sq(4, 3), White, pos.Castling, nil))
	assert.True(t, LeavesKingInCheck(b, Sq(6, 4), Sq(4, 3), White, nil))
	assert.False(t, LeavesKingInCheck(b, Sq(7, 4), Sq(7, 3), White, nil))
}

func TestCheckmateAndStalemateDetection(t *testing.T) {
	mate := mustFEN(t, "rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3")
	assert.True(t, IsInCheck(&mate.Board, White))
	assert.False(t, HasAnyLegalMove(&mate.Board, White, mate.Castling, nil))

	stale := mustFEN(t, "7k/5Q2/6K1/8/8/8/8/8 b - - 0 1")
	assert.False(t, IsInCheck(&stale.Board, Black))
	assert.False(t, HasAnyLegalMove(&stale.Board, Black, stale.Castling, nil))

	evasion := mustFEN(t, "4k3/8/8/8/8/8/4r3/4K3 w - - 0 1")
	assert.True(t, IsInCheck(&evasion.Board, White))
	assert.True(t, HasAnyLegalMove(&evasion.Board, White, evasion.Castling, nil))
}

func TestMissingKingCountsAsCheck(t *testing.T) {
	var b Board
	b.Set(Sq(0, 0), Piece{Color: Black, Kind: King})
	assert.True(t, IsInCheck(&b, White))
}
