package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	nchess "github.com/corentings/chess/v2"
	_ "github.com/lib/pq"
	"github.com/park285/pvp-chess-server/internal/pvpchess"
	"github.com/park285/pvp-chess-server/internal/rules"
)

// Repository writes finished games to Postgres. It is a write-only sink; live state
// stays in the room store.
type Repository struct {
	db *sql.DB
}

func NewRepository(ctx context.Context, databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

const schema = `CREATE TABLE IF NOT EXISTS pvp_games (
	game_id       TEXT PRIMARY KEY,
	room_code     TEXT NOT NULL,
	status        TEXT NOT NULL,
	winner        TEXT NOT NULL DEFAULT '',
	result_method TEXT NOT NULL DEFAULT '',
	moves_uci     JSONB NOT NULL,
	moves_san     JSONB NOT NULL,
	pgn           TEXT NOT NULL,
	final_fen     TEXT NOT NULL,
	started_at    TIMESTAMPTZ NOT NULL,
	ended_at      TIMESTAMPTZ NOT NULL,
	duration_ms   BIGINT NOT NULL
)`

// Migrate creates the archive table if it is missing.
func (r *Repository) Migrate(ctx context.Context) error {
	if r == nil || r.db == nil {
		return nil
	}
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// Ping reports database reachability.
func (r *Repository) Ping(ctx context.Context) error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.PingContext(ctx)
}

// SaveResult upserts a finished game keyed by game id.
func (r *Repository) SaveResult(ctx context.Context, code string, g *pvpchess.Game) error {
	if r == nil || r.db == nil || g == nil {
		return nil
	}
	san, err := sanMoves(g)
	if err != nil {
		return fmt.Errorf("san for %s: %w", g.ID, err)
	}
	uci := make([]string, len(g.History))
	for i, h := range g.History {
		uci[i] = h.UCI
	}
	movesUCIRaw, _ := json.Marshal(uci)
	movesSANRaw, _ := json.Marshal(san)
	duration := g.UpdatedAt.Sub(g.CreatedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	q := `INSERT INTO pvp_games (
        game_id, room_code, status, winner, result_method,
        moves_uci, moves_san, pgn, final_fen,
        started_at, ended_at, duration_ms
      ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
      ) ON CONFLICT (game_id) DO UPDATE SET
        room_code=EXCLUDED.room_code,
        status=EXCLUDED.status,
        winner=EXCLUDED.winner,
        result_method=EXCLUDED.result_method,
        moves_uci=EXCLUDED.moves_uci,
        moves_san=EXCLUDED.moves_san,
        pgn=EXCLUDED.pgn,
        final_fen=EXCLUDED.final_fen,
        ended_at=EXCLUDED.ended_at,
        duration_ms=EXCLUDED.duration_ms`

	_, err = r.db.ExecContext(ctx, q,
		g.ID, code, string(g.Status), g.Winner.String(), g.Reason,
		string(movesUCIRaw), string(movesSANRaw), buildPGN(g, code, san), g.FEN(),
		g.CreatedAt, g.UpdatedAt, duration,
	)
	return err
}

// sanMoves replays the history on an independent engine to get standard notation.
func sanMoves(g *pvpchess.Game) ([]string, error) {
	var opts []func(*nchess.Game)
	if fen := startFEN(g); fen != "" {
		opt, err := nchess.FEN(fen)
		if err != nil {
			return nil, err
		}
		opts = append(opts, opt)
	}
	game := nchess.NewGame(opts...)
	out := make([]string, 0, len(g.History))
	for _, h := range g.History {
		pos := game.Position()
		mv, err := nchess.UCINotation{}.Decode(pos, h.UCI)
		if err != nil {
			return out, fmt.Errorf("decode %s: %w", h.UCI, err)
		}
		out = append(out, nchess.AlgebraicNotation{}.Encode(pos, mv))
		if err := game.Move(mv, nil); err != nil {
			return out, fmt.Errorf("replay %s: %w", h.UCI, err)
		}
	}
	return out, nil
}

// startFEN is "" for games that began from the standard position.
func startFEN(g *pvpchess.Game) string {
	start := rules.StartingPosition()
	if g.Initial == "" || g.Initial == rules.PositionKey(&start.Board, start.Turn, start.Castling, start.EnPassant) {
		return ""
	}
	return g.Initial + " 0 1"
}

func mapResultToPGN(g *pvpchess.Game) string {
	switch {
	case !g.Status.Terminal():
		return "*"
	case g.Winner == rules.White:
		return "1-0"
	case g.Winner == rules.Black:
		return "0-1"
	default:
		return "1/2-1/2"
	}
}

func buildPGN(g *pvpchess.Game, code string, san []string) string {
	if g == nil {
		return ""
	}
	result := mapResultToPGN(g)
	date := g.UpdatedAt
	if date.IsZero() {
		date = time.Now()
	}
	var b strings.Builder
	b.WriteString("[Event \"PvP Chess\"]\n")
	fmt.Fprintf(&b, "[Site \"room %s\"]\n", sanitizePGN(code))
	fmt.Fprintf(&b, "[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day())
	b.WriteString("[White \"White\"]\n")
	b.WriteString("[Black \"Black\"]\n")
	if fen := startFEN(g); fen != "" {
		b.WriteString("[SetUp \"1\"]\n")
		fmt.Fprintf(&b, "[FEN \"%s\"]\n", fen)
	}
	if g.Reason != "" {
		fmt.Fprintf(&b, "[Termination \"%s\"]\n", sanitizePGN(g.Reason))
	}
	fmt.Fprintf(&b, "[Result \"%s\"]\n\n", result)

	for i := 0; i < len(san); i += 2 {
		fmt.Fprintf(&b, "%d. %s", i/2+1, strings.TrimSpace(san[i]))
		if i+1 < len(san) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(san[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString(result)
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
