package archive

import (
	"context"
	"strings"
	"testing"

	"github.com/park285/pvp-chess-server/internal/pvpchess"
	"github.com/park285/pvp-chess-server/internal/rules"
)

func playUCI(t *testing.T, g *pvpchess.Game, moves ...string) *pvpchess.Game {
	t.Helper()
	for _, s := range moves {
		mv, err := rules.ParseUCI(s)
		if err != nil {
			t.Fatalf("ParseUCI(%s): %v", s, err)
		}
		if g, err = pvpchess.ApplyMove(g, mv, g.Turn); err != nil {
			t.Fatalf("ApplyMove(%s): %v", s, err)
		}
	}
	return g
}

func TestFoolsMatePGN(t *testing.T) {
	g := playUCI(t, pvpchess.NewGame(), "f2f3", "e7e5", "g2g4", "d8h4")
	san, err := sanMoves(g)
	if err != nil {
		t.Fatalf("sanMoves: %v", err)
	}
	if len(san) != 4 || san[0] != "f3" || !strings.HasPrefix(san[3], "Qh4") {
		t.Fatalf("san = %v", san)
	}
	pgn := buildPGN(g, "ABC123", san)
	for _, want := range []string{`[Result "0-1"]`, `[Termination "checkmate"]`, "1. f3 e5 2. g4 Qh4", "[Site \"room ABC123\"]"} {
		if !strings.Contains(pgn, want) {
			t.Fatalf("pgn missing %q:\n%s", want, pgn)
		}
	}
	if !strings.HasSuffix(pgn, "0-1") || strings.Contains(pgn, "[FEN") {
		t.Fatalf("unexpected pgn tail or setup:\n%s", pgn)
	}
}

func TestCustomStartAddsFENHeader(t *testing.T) {
	pos, err := rules.ParseFEN("4k3/8/8/8/8/8/8/R3K3 w Q - 0 1")
	if err != nil {
		t.Fatalf("ParseFEN: %v", err)
	}
	g := playUCI(t, pvpchess.FromPosition(pos), "a1a8")
	san, err := sanMoves(g)
	if err != nil {
		t.Fatalf("sanMoves: %v", err)
	}
	if len(san) != 1 || !strings.HasPrefix(san[0], "Ra8") {
		t.Fatalf("san = %v", san)
	}
	pgn := buildPGN(g, "X", san)
	if !strings.Contains(pgn, `[SetUp "1"]`) || !strings.Contains(pgn, `[FEN "4k3/8/8/8/8/8/8/R3K3 w Q - 0 1"]`) {
		t.Fatalf("missing setup headers:\n%s", pgn)
	}
	if !strings.HasSuffix(pgn, "*") {
		t.Fatalf("unfinished game should end with *:\n%s", pgn)
	}
}

func TestResultMapping(t *testing.T) {
	g := pvpchess.NewGame()
	if mapResultToPGN(g) != "*" {
		t.Fatalf("active game result")
	}
	r, _ := pvpchess.Resign(g, rules.Black)
	if mapResultToPGN(r) != "1-0" {
		t.Fatalf("black resignation should be 1-0")
	}
	d, _, _ := pvpchess.OfferDraw(g, rules.White)
	d, agreed, _ := pvpchess.OfferDraw(d, rules.Black)
	if !agreed || mapResultToPGN(d) != "1/2-1/2" {
		t.Fatalf("draw result")
	}
	if sanitizePGN(` a "b" \c `) != `a 'b'  c` {
		t.Fatalf("sanitize = %q", sanitizePGN(` a "b" \c `))
	}
}

func TestNilRepositoryIsNoop(t *testing.T) {
	var r *Repository
	if err := r.SaveResult(context.Background(), "X", pvpchess.NewGame()); err != nil {
		t.Fatalf("nil SaveResult: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("nil Close: %v", err)
	}
}
