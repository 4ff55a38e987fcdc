package chessdto

import (
	"github.com/park285/pvp-chess-server/internal/pvpchess"
	"github.com/park285/pvp-chess-server/internal/rules"
)

// CreateRoomAck answers createRoom.
type CreateRoomAck struct {
	RoomCode string `json:"roomCode,omitempty"`
	Error    string `json:"error,omitempty"`
}

// JoinRoomAck answers joinRoom. PlayerID is the identity token the client must keep;
// it differs from the requested one when the server reissued it.
type JoinRoomAck struct {
	RoomCode  string         `json:"roomCode,omitempty"`
	GameState *pvpchess.Game `json:"gameState,omitempty"`
	PlayerID  string         `json:"playerId,omitempty"`
	Slot      string         `json:"slot,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Ack is the generic acknowledgement for the remaining requests.
type Ack struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type RoomStatus struct {
	Msg string `json:"msg"`
}

type ColorPicked struct {
	Color rules.Color `json:"color"`
}

// StartGame maps slot ids to colors and roles.
type StartGame struct {
	ColorAssignments map[string]rules.Color `json:"colorAssignments"`
	FirstTurn        rules.Color            `json:"firstTurn"`
	Roles            map[string]string      `json:"roles"`
}

type PlayerLeft struct {
	Role string `json:"role"`
}

// PlayerView is the public part of a slot; the identity token is never exposed.
type PlayerView struct {
	Slot      string      `json:"slot"`
	Color     rules.Color `json:"color,omitempty"`
	Ready     bool        `json:"ready"`
	Role      string      `json:"role,omitempty"`
	Connected bool        `json:"connected"`
}

type RoomPlayers struct {
	Players []PlayerView `json:"players"`
}

type MoveRejected struct {
	Reason string `json:"reason"`
}

type DrawOffered struct {
	Color rules.Color `json:"color"`
}

type ChatMessage struct {
	Sender string `json:"sender"`
	Msg    string `json:"msg"`
}

type ErrorPayload struct {
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}
