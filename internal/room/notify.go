package room

import (
	"github.com/park285/pvp-chess-server/internal/obslog"
	"github.com/park285/pvp-chess-server/internal/rules"
	"github.com/park285/pvp-chess-server/pkg/chessdto"
	"go.uber.org/zap"
)

// Fan-out helpers. All of them run under the room lock so connections observe events in
// the room's serialized order.

func (m *Manager) send(s *PlayerState, ev chessdto.Event) {
	if m.notify == nil || s == nil || !s.connected() {
		return
	}
	m.notify.Send(s.ConnID, ev)
}

func (m *Manager) broadcast(r *Room, ev chessdto.Event) {
	m.broadcastExcept(r, nil, ev)
}

func (m *Manager) broadcastExcept(r *Room, skip *PlayerState, ev chessdto.Event) {
	if m.notify == nil {
		return
	}
	for _, s := range r.Roster.connected() {
		if s == skip {
			continue
		}
		m.notify.Send(s.ConnID, ev)
	}
}

func (m *Manager) broadcastPlayers(r *Room) {
	m.broadcast(r, chessdto.NewEvent(chessdto.TypeRoomPlayers, chessdto.RoomPlayers{Players: r.Roster.views()}))
}

// broadcastStatus renders key from the message catalog, falling back to fallback.
func (m *Manager) broadcastStatus(r *Room, key string, data map[string]any, fallback string) {
	m.broadcast(r, chessdto.NewEvent(chessdto.TypeRoomStatus, chessdto.RoomStatus{Msg: m.text(key, data, fallback)}))
}

func (m *Manager) text(key string, data map[string]any, fallback string) string {
	if m.opts.Messages == nil {
		return fallback
	}
	s, err := m.opts.Messages.Render(key, data)
	if err != nil {
		obslog.L().Warn("msgcat_render_error", zap.String("key", key), zap.Error(err))
		return fallback
	}
	return s
}

func roleFor(c rules.Color) string {
	switch c {
	case rules.White:
		return RoleWhite
	case rules.Black:
		return RoleBlack
	}
	return ""
}

// senderName is the chat label for a seat: its capitalized color, or "Player".
func senderName(s *PlayerState) string {
	switch s.Color {
	case rules.White:
		return "White"
	case rules.Black:
		return "Black"
	}
	return "Player"
}

func colorLabel(c rules.Color) string {
	if c == rules.NoColor {
		return "?"
	}
	return c.String()
}
