package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/park285/pvp-chess-server/internal/obslog"
	"github.com/park285/pvp-chess-server/internal/pvpchess"
	"github.com/park285/pvp-chess-server/internal/room"
	"github.com/park285/pvp-chess-server/internal/rules"
	"github.com/park285/pvp-chess-server/pkg/chessdto"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// handlerFunc serves one inbound envelope. The returned value becomes the ack payload
// when the request carried an id.
type handlerFunc func(ctx context.Context, rooms Rooms, c *conn, env chessdto.Envelope) (any, error)

type validationError struct{ fields []string }

func (e *validationError) Error() string { return "validation failed" }

var errUnknownType = errors.New("cannot handle this event")

const maxFrame = 64 << 10

func (s *Server) setupHandlers() {
	s.handlers[chessdto.TypeCreateRoom] = s.handleCreateRoom
	s.handlers[chessdto.TypeJoinRoom] = s.handleJoinRoom
	s.handlers[chessdto.TypePickColor] = s.handlePickColor
	s.handlers[chessdto.TypePlayerReady] = s.handlePlayerReady
	s.handlers[chessdto.TypeMove] = s.handleMove
	s.handlers[chessdto.TypeLeaveRoom] = s.handleLeaveRoom
	s.handlers[chessdto.TypeResign] = s.handleResign
	s.handlers[chessdto.TypeOfferDraw] = s.handleOfferDraw
	// accepting is a counter-offer against the pending one
	s.handlers[chessdto.TypeAcceptDraw] = s.handleOfferDraw
	s.handlers[chessdto.TypeRematch] = s.handleRematch
	s.handlers[chessdto.TypeChatMessage] = s.handleChat
	s.handlers[chessdto.TypeGetRoomPlayers] = s.handleGetRoomPlayers
}

// readLoop processes one frame at a time until the socket fails.
func (s *Server) readLoop(c *conn) {
	c.ws.SetReadLimit(maxFrame)
	for {
		typ, raw, err := c.ws.Read(c.ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 {
				obslog.L().Debug("ws_read_error", zap.String("conn", c.id), zap.Error(err))
			}
			return
		}
		if typ != websocket.MessageText {
			s.sendError(c, "text frames only", nil)
			continue
		}
		var env chessdto.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			s.sendError(c, "malformed message", nil)
			continue
		}
		s.dispatch(c, env)
	}
}

func (s *Server) dispatch(c *conn, env chessdto.Envelope) {
	if err := s.validate.Struct(env); err != nil {
		s.reply(c, env, nil, validationFailure(err))
		return
	}
	h, ok := s.handlers[env.Type]
	if !ok {
		s.reply(c, env, nil, errUnknownType)
		return
	}
	rooms := s.roomsOrNil()
	if rooms == nil {
		s.reply(c, env, nil, errors.New("server not ready"))
		return
	}
	ctx, cancel := context.WithTimeout(c.ctx, s.opts.RequestTimeout)
	defer cancel()
	ack, err := h(ctx, rooms, c, env)
	if err != nil && !errors.Is(err, pvpchess.ErrIllegalMove) && !errors.Is(err, pvpchess.ErrTerminalGame) {
		obslog.L().Info("ws_request_failed", zap.String("conn", c.id), zap.String("type", env.Type), zap.Error(err))
	}
	s.reply(c, env, ack, err)
}

// reply acks requests that carried an id. Without an id, failures become an error event,
// except move rejections which the room already reported.
func (s *Server) reply(c *conn, env chessdto.Envelope, ack any, err error) {
	if env.ID == "" {
		if err == nil || errors.Is(err, pvpchess.ErrIllegalMove) || errors.Is(err, pvpchess.ErrTerminalGame) {
			return
		}
		var verr *validationError
		if errors.As(err, &verr) {
			s.sendError(c, verr.Error(), verr.fields)
			return
		}
		s.sendError(c, err.Error(), nil)
		return
	}
	if ack == nil {
		a := chessdto.Ack{OK: err == nil}
		if err != nil {
			a.Error = err.Error()
		}
		ack = a
	}
	out, encErr := chessdto.NewEvent(chessdto.TypeAck, ack).Envelope(env.ID)
	if encErr != nil {
		obslog.L().Error("ws_encode_error", zap.String("conn", c.id), zap.Error(encErr))
		return
	}
	c.enqueue(out)
}

func (s *Server) sendError(c *conn, msg string, fields []string) {
	out, err := chessdto.NewEvent(chessdto.TypeError, chessdto.ErrorPayload{Message: msg, Errors: fields}).Envelope("")
	if err == nil {
		c.enqueue(out)
	}
}

// decode unmarshals the payload into v and validates it.
func (s *Server) decode(env chessdto.Envelope, v any) error {
	if len(env.Payload) == 0 {
		return &validationError{fields: []string{"payload is required"}}
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return &validationError{fields: []string{err.Error()}}
	}
	if err := s.validate.Struct(v); err != nil {
		return validationFailure(err)
	}
	return nil
}

func validationFailure(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	return &validationError{fields: lo.Map(verrs, func(item validator.FieldError, _ int) string {
		return item.Error()
	})}
}

func normalizeCode(code string) string { return strings.ToUpper(strings.TrimSpace(code)) }

func (s *Server) handleCreateRoom(ctx context.Context, rooms Rooms, c *conn, _ chessdto.Envelope) (any, error) {
	code, err := rooms.CreateRoom(ctx)
	if err != nil {
		return chessdto.CreateRoomAck{Error: err.Error()}, err
	}
	return chessdto.CreateRoomAck{RoomCode: code}, nil
}

func (s *Server) handleJoinRoom(ctx context.Context, rooms Rooms, c *conn, env chessdto.Envelope) (any, error) {
	var req chessdto.JoinRoomRequest
	if err := s.decode(env, &req); err != nil {
		return chessdto.JoinRoomAck{Error: err.Error()}, err
	}
	res, err := rooms.JoinRoom(ctx, req.RoomCode, req.PlayerID, c.id)
	if err != nil {
		return chessdto.JoinRoomAck{Error: err.Error()}, err
	}
	c.bind(res.Code, res.Identity)
	return chessdto.JoinRoomAck{RoomCode: res.Code, GameState: res.Game, PlayerID: res.Identity, Slot: res.Slot}, nil
}

func (s *Server) handlePickColor(ctx context.Context, rooms Rooms, c *conn, env chessdto.Envelope) (any, error) {
	var req chessdto.PickColorRequest
	if err := s.decode(env, &req); err != nil {
		return nil, err
	}
	color, _ := rules.ParseColor(req.Color)
	code := normalizeCode(req.RoomCode)
	return nil, rooms.PickColor(ctx, code, c.identity(code), color)
}

func (s *Server) handlePlayerReady(ctx context.Context, rooms Rooms, c *conn, env chessdto.Envelope) (any, error) {
	var req chessdto.PlayerReadyRequest
	if err := s.decode(env, &req); err != nil {
		return nil, err
	}
	color, _ := rules.ParseColor(req.Color)
	code := normalizeCode(req.RoomCode)
	return nil, rooms.SetReady(ctx, code, c.identity(code), color)
}

func (s *Server) handleMove(ctx context.Context, rooms Rooms, c *conn, env chessdto.Envelope) (any, error) {
	var req chessdto.MoveRequest
	if err := s.decode(env, &req); err != nil {
		return nil, err
	}
	code := normalizeCode(req.RoomCode)
	_, err := rooms.Move(ctx, code, c.identity(code), req.Move)
	return nil, err
}

func (s *Server) handleLeaveRoom(ctx context.Context, rooms Rooms, c *conn, env chessdto.Envelope) (any, error) {
	var req chessdto.RoomRequest
	if err := s.decode(env, &req); err != nil {
		return nil, err
	}
	code := normalizeCode(req.RoomCode)
	if err := rooms.LeaveRoom(ctx, code, c.identity(code)); err != nil {
		return nil, err
	}
	c.unbind(code)
	return nil, nil
}

func (s *Server) handleResign(ctx context.Context, rooms Rooms, c *conn, env chessdto.Envelope) (any, error) {
	var req chessdto.RoomRequest
	if err := s.decode(env, &req); err != nil {
		return nil, err
	}
	code := normalizeCode(req.RoomCode)
	_, err := rooms.Resign(ctx, code, c.identity(code))
	return nil, err
}

func (s *Server) handleOfferDraw(ctx context.Context, rooms Rooms, c *conn, env chessdto.Envelope) (any, error) {
	var req chessdto.RoomRequest
	if err := s.decode(env, &req); err != nil {
		return nil, err
	}
	code := normalizeCode(req.RoomCode)
	_, err := rooms.OfferDraw(ctx, code, c.identity(code))
	return nil, err
}

func (s *Server) handleRematch(ctx context.Context, rooms Rooms, c *conn, env chessdto.Envelope) (any, error) {
	var req chessdto.RoomRequest
	if err := s.decode(env, &req); err != nil {
		return nil, err
	}
	code := normalizeCode(req.RoomCode)
	_, err := rooms.Rematch(ctx, code, c.identity(code))
	return nil, err
}

func (s *Server) handleChat(ctx context.Context, rooms Rooms, c *conn, env chessdto.Envelope) (any, error) {
	var req chessdto.ChatRequest
	if err := s.decode(env, &req); err != nil {
		return nil, err
	}
	code := normalizeCode(req.RoomCode)
	return nil, rooms.Chat(ctx, code, c.identity(code), req.Msg)
}

func (s *Server) handleGetRoomPlayers(ctx context.Context, rooms Rooms, c *conn, env chessdto.Envelope) (any, error) {
	var req chessdto.RoomRequest
	if err := s.decode(env, &req); err != nil {
		return nil, err
	}
	players, err := rooms.RoomPlayers(ctx, normalizeCode(req.RoomCode))
	if err != nil {
		return nil, err
	}
	payload := chessdto.RoomPlayers{Players: players}
	if env.ID == "" {
		s.Send(c.id, chessdto.NewEvent(chessdto.TypeRoomPlayers, payload))
	}
	return payload, nil
}

// compile-time check
var _ room.Notifier = (*Server)(nil)
