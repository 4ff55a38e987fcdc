package chessdto

import "encoding/json"

// Envelope is the frame carried over the websocket in both directions.
// A request with a non-empty ID is answered by an "ack" envelope with the same ID.
type Envelope struct {
	Type    string          `json:"type" validate:"required,max=32"`
	ID      string          `json:"id,omitempty" validate:"max=64"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound message types.
const (
	TypeCreateRoom     = "createRoom"
	TypeJoinRoom       = "joinRoom"
	TypePickColor      = "pickColor"
	TypePlayerReady    = "playerReady"
	TypeMove           = "move"
	TypeLeaveRoom      = "leaveRoom"
	TypeResign         = "resign"
	TypeOfferDraw      = "offerDraw"
	TypeAcceptDraw     = "acceptDraw"
	TypeRematch        = "rematch"
	TypeChatMessage    = "chatMessage"
	TypeGetRoomPlayers = "getRoomPlayers"
)

// Outbound-only message types. "move", "rematch" and "chatMessage" are shared with
// the inbound set.
const (
	TypeAck                  = "ack"
	TypeRoomStatus           = "roomStatus"
	TypeColorPicked          = "colorPicked"
	TypeStartGame            = "startGame"
	TypePlayerLeft           = "playerLeft"
	TypeOpponentLeft         = "opponentLeft"
	TypeOpponentDisconnected = "opponentDisconnected"
	TypeOpponentReconnected  = "opponentReconnected"
	TypeRoomPlayers          = "roomPlayers"
	TypeMoveRejected         = "moveRejected"
	TypeDrawOffered          = "drawOffered"
	TypeError                = "error"
)

// Event is one outbound message before framing.
type Event struct {
	Type    string
	Payload any
}

func NewEvent(typ string, payload any) Event { return Event{Type: typ, Payload: payload} }

// Envelope frames the event; id is set only for acks.
func (e Event) Envelope(id string) (Envelope, error) {
	env := Envelope{Type: e.Type, ID: id}
	if e.Payload == nil {
		return env, nil
	}
	raw, err := json.Marshal(e.Payload)
	if err != nil {
		return Envelope{}, err
	}
	env.Payload = raw
	return env, nil
}
