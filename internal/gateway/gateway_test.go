package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/park285/pvp-chess-server/internal/pvpchess"
	"github.com/park285/pvp-chess-server/internal/room"
	"github.com/park285/pvp-chess-server/internal/store"
	"github.com/park285/pvp-chess-server/pkg/chessdto"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := NewServer(Options{AllowedOrigins: []string{"https://pvp-chess.netlify.app"}})
	st := store.NewMemory(time.Hour)
	mgr := room.NewManager(st, pvpchess.NewManager(st), srv, room.Options{})
	srv.Attach(mgr)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
		mgr.Close()
	})
	return ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(websocket.StatusNormalClosure, "") })
	return c
}

func send(t *testing.T, c *websocket.Conn, typ, id string, payload any) {
	t.Helper()
	env := chessdto.Envelope{Type: typ, ID: id}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		env.Payload = raw
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, c, env); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

// await reads until an envelope matches, skipping everything else.
func await(t *testing.T, c *websocket.Conn, match func(chessdto.Envelope) bool) chessdto.Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		var env chessdto.Envelope
		if err := wsjson.Read(ctx, c, &env); err != nil {
			t.Fatalf("read: %v", err)
		}
		if match(env) {
			return env
		}
	}
}

func ackFor(id string) func(chessdto.Envelope) bool {
	return func(e chessdto.Envelope) bool { return e.Type == chessdto.TypeAck && e.ID == id }
}

func ofType(typ string) func(chessdto.Envelope) bool {
	return func(e chessdto.Envelope) bool { return e.Type == typ }
}

func TestCreateJoinPlayRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	a, b := dial(t, ts), dial(t, ts)

	send(t, a, chessdto.TypeCreateRoom, "1", nil)
	var created chessdto.CreateRoomAck
	if err := json.Unmarshal(await(t, a, ackFor("1")).Payload, &created); err != nil || created.RoomCode == "" {
		t.Fatalf("create ack: %+v %v", created, err)
	}
	code := created.RoomCode

	send(t, a, chessdto.TypeJoinRoom, "2", chessdto.JoinRoomRequest{RoomCode: strings.ToLower(code)})
	var joinA chessdto.JoinRoomAck
	if err := json.Unmarshal(await(t, a, ackFor("2")).Payload, &joinA); err != nil {
		t.Fatalf("join ack: %v", err)
	}
	if joinA.Error != "" || joinA.PlayerID == "" || joinA.GameState == nil || joinA.RoomCode != code {
		t.Fatalf("join ack = %+v", joinA)
	}

	send(t, b, chessdto.TypeJoinRoom, "1", chessdto.JoinRoomRequest{RoomCode: code})
	await(t, b, ackFor("1"))
	await(t, a, func(e chessdto.Envelope) bool {
		if e.Type != chessdto.TypeRoomPlayers {
			return false
		}
		var rp chessdto.RoomPlayers
		return json.Unmarshal(e.Payload, &rp) == nil && len(rp.Players) == 2
	})

	send(t, a, chessdto.TypePickColor, "3", chessdto.PickColorRequest{RoomCode: code, Color: "white"})
	await(t, a, ackFor("3"))
	send(t, b, chessdto.TypePickColor, "2", chessdto.PickColorRequest{RoomCode: code, Color: "b"})
	await(t, b, ackFor("2"))
	send(t, a, chessdto.TypePlayerReady, "", chessdto.PlayerReadyRequest{RoomCode: code})
	send(t, b, chessdto.TypePlayerReady, "", chessdto.PlayerReadyRequest{RoomCode: code})

	start := await(t, a, ofType(chessdto.TypeStartGame))
	var sg chessdto.StartGame
	if err := json.Unmarshal(start.Payload, &sg); err != nil || len(sg.ColorAssignments) != 2 {
		t.Fatalf("startGame: %s %v", start.Payload, err)
	}
	await(t, b, ofType(chessdto.TypeStartGame))

	send(t, a, chessdto.TypeMove, "4", json.RawMessage(`{"roomCode":"`+code+`","move":{"from":[6,4],"to":[4,4]}}`))
	if ack := await(t, a, ackFor("4")); !strings.Contains(string(ack.Payload), `"ok":true`) {
		t.Fatalf("move ack = %s", ack.Payload)
	}
	moved := await(t, b, ofType(chessdto.TypeMove))
	var g pvpchess.Game
	if err := json.Unmarshal(moved.Payload, &g); err != nil || len(g.History) != 1 || g.History[0].UCI != "e2e4" {
		t.Fatalf("move event: %s %v", moved.Payload, err)
	}

	send(t, a, chessdto.TypeMove, "5", json.RawMessage(`{"roomCode":"`+code+`","move":{"from":[6,3],"to":[4,3]}}`))
	await(t, a, ofType(chessdto.TypeMoveRejected))
	if ack := await(t, a, ackFor("5")); !strings.Contains(string(ack.Payload), `"ok":false`) {
		t.Fatalf("rejected move ack = %s", ack.Payload)
	}
}

// seatPlayers joins a and b to a fresh room as white and black and waits for the start.
func seatPlayers(t *testing.T, a, b *websocket.Conn) string {
	t.Helper()
	send(t, a, chessdto.TypeCreateRoom, "c", nil)
	var created chessdto.CreateRoomAck
	if err := json.Unmarshal(await(t, a, ackFor("c")).Payload, &created); err != nil || created.RoomCode == "" {
		t.Fatalf("create ack: %+v %v", created, err)
	}
	code := created.RoomCode
	for i, c := range []*websocket.Conn{a, b} {
		send(t, c, chessdto.TypeJoinRoom, "j", chessdto.JoinRoomRequest{RoomCode: code})
		await(t, c, ackFor("j"))
		send(t, c, chessdto.TypePlayerReady, "r", chessdto.PlayerReadyRequest{RoomCode: code, Color: []string{"white", "black"}[i]})
		await(t, c, ackFor("r"))
	}
	await(t, a, ofType(chessdto.TypeStartGame))
	await(t, b, ofType(chessdto.TypeStartGame))
	return code
}

func TestAcceptDrawEndsGame(t *testing.T) {
	ts := newTestServer(t)
	a, b := dial(t, ts), dial(t, ts)
	code := seatPlayers(t, a, b)

	send(t, a, chessdto.TypeOfferDraw, "o", chessdto.RoomRequest{RoomCode: code})
	await(t, a, ackFor("o"))
	await(t, b, ofType(chessdto.TypeDrawOffered))

	send(t, b, chessdto.TypeAcceptDraw, "d", chessdto.RoomRequest{RoomCode: code})
	if ack := await(t, b, ackFor("d")); !strings.Contains(string(ack.Payload), `"ok":true`) {
		t.Fatalf("accept ack = %s", ack.Payload)
	}
	var g pvpchess.Game
	if err := json.Unmarshal(await(t, a, ofType(chessdto.TypeMove)).Payload, &g); err != nil {
		t.Fatalf("move event: %v", err)
	}
	if g.Status != pvpchess.StatusDraw || g.Reason != pvpchess.ReasonAgreement {
		t.Fatalf("game after accept = %s/%s", g.Status, g.Reason)
	}
}

func TestJoinUnknownRoomAcksError(t *testing.T) {
	ts := newTestServer(t)
	a := dial(t, ts)
	send(t, a, chessdto.TypeJoinRoom, "x", chessdto.JoinRoomRequest{RoomCode: "NOPE00"})
	var ack chessdto.JoinRoomAck
	if err := json.Unmarshal(await(t, a, ackFor("x")).Payload, &ack); err != nil || ack.Error != "Room not found." {
		t.Fatalf("ack = %+v %v", ack, err)
	}
}

func TestMalformedFrameKeepsConnection(t *testing.T) {
	ts := newTestServer(t)
	a := dial(t, ts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	await(t, a, ofType(chessdto.TypeError))

	send(t, a, chessdto.TypePickColor, "", map[string]string{"roomCode": "ABC", "color": "purple"})
	errEnv := await(t, a, ofType(chessdto.TypeError))
	var ep chessdto.ErrorPayload
	if err := json.Unmarshal(errEnv.Payload, &ep); err != nil || len(ep.Errors) == 0 {
		t.Fatalf("validation error payload: %s", errEnv.Payload)
	}

	send(t, a, "teleport", "9", nil)
	if ack := await(t, a, ackFor("9")); !strings.Contains(string(ack.Payload), "cannot handle") {
		t.Fatalf("unknown type ack = %s", ack.Payload)
	}

	send(t, a, chessdto.TypeCreateRoom, "10", nil)
	await(t, a, ackFor("10"))
}

func TestBannerAndCORS(t *testing.T) {
	ts := newTestServer(t)

	res, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	if res.StatusCode != http.StatusOK || !strings.Contains(string(body), "running") {
		t.Fatalf("banner: %d %q", res.StatusCode, body)
	}

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/", nil)
	req.Header.Set("Origin", "https://pvp-chess.netlify.app")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	res, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	res.Body.Close()
	if got := res.Header.Get("Access-Control-Allow-Origin"); got != "https://pvp-chess.netlify.app" {
		t.Fatalf("allow origin = %q", got)
	}

	req.Header.Set("Origin", "https://evil.example")
	res, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	res.Body.Close()
	if got := res.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("foreign origin allowed: %q", got)
	}
}

func TestOriginPatterns(t *testing.T) {
	got := originPatterns([]string{"https://pvp-chess.netlify.app", "http://localhost:5500", "*", "::bad"})
	want := []string{"pvp-chess.netlify.app", "localhost:5500", "*"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("patterns = %v", got)
	}
}
