package chessdto

import "github.com/park285/pvp-chess-server/internal/rules"

// RoomRequest carries only a room code (leaveRoom, resign, offerDraw, rematch, getRoomPlayers).
type RoomRequest struct {
	RoomCode string `json:"roomCode" validate:"required,max=32"`
}

type JoinRoomRequest struct {
	RoomCode string `json:"roomCode" validate:"required,max=32"`
	PlayerID string `json:"playerId,omitempty" validate:"omitempty,max=128"`
}

type PickColorRequest struct {
	RoomCode string `json:"roomCode" validate:"required,max=32"`
	Color    string `json:"color" validate:"required,oneof=white black w b"`
}

type PlayerReadyRequest struct {
	RoomCode string `json:"roomCode" validate:"required,max=32"`
	Color    string `json:"color,omitempty" validate:"omitempty,oneof=white black w b"`
}

type MoveRequest struct {
	RoomCode string     `json:"roomCode" validate:"required,max=32"`
	Move     rules.Move `json:"move"`
}

type ChatRequest struct {
	RoomCode string `json:"roomCode" validate:"required,max=32"`
	Msg      string `json:"msg" validate:"required,max=500"`
}
