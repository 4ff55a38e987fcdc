package room

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/pvp-chess-server/internal/obslog"
	"github.com/park285/pvp-chess-server/internal/pvpchess"
	"github.com/park285/pvp-chess-server/pkg/chessdto"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const persistTimeout = 5 * time.Second

// Options tunes grace windows and join behavior. Zero values take defaults.
type Options struct {
	DisconnectGrace   time.Duration
	EmptyRoomGrace    time.Duration
	FinishedRoomGrace time.Duration
	// AutoCreateOnJoin creates a room for an unknown code instead of failing the join.
	AutoCreateOnJoin bool
	Messages         Messages
	Now              func() time.Time
}

func (o *Options) applyDefaults() {
	if o.DisconnectGrace <= 0 {
		o.DisconnectGrace = 2 * time.Minute
	}
	if o.EmptyRoomGrace <= 0 {
		o.EmptyRoomGrace = 15 * time.Second
	}
	if o.FinishedRoomGrace <= 0 {
		o.FinishedRoomGrace = 2 * time.Hour
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Manager owns every live room. All work on one room code runs under that code's lock,
// including storage I/O and event fan-out, so each room sees a single serialized history.
type Manager struct {
	store  Persistence
	games  *pvpchess.Manager
	notify Notifier
	opts   Options

	locks  *keyedMutex
	timers *scheduler

	mu    sync.Mutex // guards rooms and conns; never held while taking a room lock
	rooms map[string]*Room
	conns map[string]map[string]struct{} // connID → room codes
}

func NewManager(store Persistence, games *pvpchess.Manager, notify Notifier, opts Options) *Manager {
	opts.applyDefaults()
	return &Manager{
		store:  store,
		games:  games,
		notify: notify,
		opts:   opts,
		locks:  newKeyedMutex(),
		timers: newScheduler(),
		rooms:  make(map[string]*Room),
		conns:  make(map[string]map[string]struct{}),
	}
}

// Close stops pending deletion timers. Persisted rooms stay in storage.
func (m *Manager) Close() {
	if m != nil {
		m.timers.Stop()
	}
}

func normalizeCode(code string) string { return strings.ToUpper(strings.TrimSpace(code)) }

// codeGen returns 6 upper-case alphanumerics.
func codeGen() (string, error) {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = letters[int(b[i])%len(letters)]
	}
	return string(b), nil
}

// CreateRoom allocates a fresh code with a new game. The room is reclaimed after the
// short grace window unless somebody joins.
func (m *Manager) CreateRoom(ctx context.Context) (string, error) {
	for i := 0; i < 5; i++ {
		code, err := codeGen()
		if err != nil {
			return "", err
		}
		ok, err := m.createIfAbsent(ctx, code)
		if err != nil {
			return "", err
		}
		if ok {
			return code, nil
		}
	}
	return "", ErrCodeUnavailable
}

func (m *Manager) createIfAbsent(ctx context.Context, code string) (bool, error) {
	unlock := m.locks.Lock(code)
	defer unlock()

	existing, err := m.load(ctx, code)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}
	r, err := m.create(ctx, code)
	if err != nil {
		return false, err
	}
	obslog.L().Info("room_create", zap.String("room", code), zap.String("game_id", r.Game.ID))
	m.scheduleIfEmpty(r)
	return true, nil
}

// create builds and persists a new room. Caller holds the room lock.
func (m *Manager) create(ctx context.Context, code string) (*Room, error) {
	g, err := m.games.NewGame(ctx, code)
	if err != nil {
		return nil, err
	}
	r := &Room{Code: code, Game: g, Roster: Roster{Slots: []*PlayerState{}, CreatedAt: m.opts.Now()}}
	if err := m.saveRoster(ctx, r); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.rooms[code] = r
	m.mu.Unlock()
	return r, nil
}

// load returns the in-memory room, rebuilding it from storage when the process has no
// copy. A nil room without error means the code is unknown. Caller holds the room lock.
func (m *Manager) load(ctx context.Context, code string) (*Room, error) {
	m.mu.Lock()
	r := m.rooms[code]
	m.mu.Unlock()
	if r != nil {
		return r, nil
	}

	g, err := m.store.LoadGame(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("load game %s: %w", code, err)
	}
	if g == nil {
		return nil, nil
	}
	roster, err := m.store.LoadRoster(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("load roster %s: %w", code, err)
	}
	now := m.opts.Now()
	if roster == nil {
		roster = &Roster{CreatedAt: now}
	}
	// connections did not survive; owners reclaim their seats by identity
	for _, s := range roster.Slots {
		if s.Disconnected {
			s.ConnID = ""
			continue
		}
		s.markDisconnected(now)
	}
	r = &Room{Code: code, Game: g, Roster: *roster}
	m.mu.Lock()
	m.rooms[code] = r
	m.mu.Unlock()
	obslog.L().Info("room_hydrate", zap.String("room", code), zap.Int("slots", len(roster.Slots)))
	// nobody is connected yet; a successful join cancels this
	m.scheduleIfEmpty(r)
	return r, nil
}

func (m *Manager) mustLoad(ctx context.Context, code string) (*Room, error) {
	r, err := m.load(ctx, code)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

// JoinRoom seats connID in code. An empty or already-live identity gets a fresh token,
// which the caller must hand back to the client.
func (m *Manager) JoinRoom(ctx context.Context, code, identity, connID string) (*JoinResult, error) {
	code = normalizeCode(code)
	if code == "" || connID == "" {
		return nil, ErrInvalidArgs
	}
	unlock := m.locks.Lock(code)
	defer unlock()

	r, err := m.load(ctx, code)
	if err != nil {
		return nil, err
	}
	if r == nil {
		if !m.opts.AutoCreateOnJoin {
			return nil, ErrRoomNotFound
		}
		if r, err = m.create(ctx, code); err != nil {
			return nil, err
		}
		obslog.L().Info("room_create", zap.String("room", code), zap.String("reason", "join"))
	}

	now := m.opts.Now()
	for _, gone := range r.Roster.purgeExpired(now, m.opts.DisconnectGrace) {
		obslog.L().Info("room_slot_expired", zap.String("room", code), zap.String("slot", gone.Slot))
	}

	res := &JoinResult{Code: code}
	identity = strings.TrimSpace(identity)
	if identity == "" {
		identity = uuid.NewString()
	} else if s := r.Roster.byIdentity(identity); s != nil && !s.Disconnected && s.ConnID != connID {
		identity = uuid.NewString()
		res.Reissued = true
		obslog.L().Info("room_identity_reissued", zap.String("room", code), zap.String("slot", s.Slot))
	}

	slot := r.Roster.byIdentity(identity)
	if slot != nil {
		res.Reconnected = slot.Disconnected
		slot.Disconnected = false
		slot.DisconnectedAt = nil
		slot.ConnID = connID
	} else {
		if len(r.Roster.Slots) >= 2 {
			obslog.L().Info("room_join_full", zap.String("room", code))
			return nil, ErrRoomFull
		}
		r.Roster.Seq++
		slot = &PlayerState{Slot: uuid.NewString(), PlayerID: identity, ConnID: connID, JoinedSeq: r.Roster.Seq}
		if r.Roster.Started {
			// take over the vacated seat of a running game
			slot.Color = r.Roster.freeColor()
			slot.Ready = true
			slot.Role = roleFor(slot.Color)
		}
		r.Roster.Slots = append(r.Roster.Slots, slot)
	}

	if err := m.saveRoster(ctx, r); err != nil {
		return nil, err
	}
	m.timers.Cancel(code)
	m.bindConn(connID, code)

	if res.Reconnected {
		m.broadcastExcept(r, slot, chessdto.NewEvent(chessdto.TypeOpponentReconnected, nil))
	}
	m.broadcastPlayers(r)
	if res.Reconnected && !r.Roster.Started {
		if err := m.maybeStart(ctx, r); err != nil {
			obslog.L().Warn("room_start_failed", zap.String("room", code), zap.Error(err))
		}
	}

	res.Game = r.Game.Clone()
	res.Identity = identity
	res.Slot = slot.Slot
	obslog.L().Info("room_join",
		zap.String("room", code),
		zap.String("slot", slot.Slot),
		zap.Bool("reconnected", res.Reconnected),
		zap.Bool("reissued", res.Reissued),
		zap.String("phase", string(r.Phase())),
	)
	return res, nil
}

// LeaveRoom vacates identity's seat.
func (m *Manager) LeaveRoom(ctx context.Context, code, identity string) error {
	code = normalizeCode(code)
	unlock := m.locks.Lock(code)
	defer unlock()

	r, err := m.mustLoad(ctx, code)
	if err != nil {
		return err
	}
	slot := seat(r, identity)
	if slot == nil {
		return ErrNotSeated
	}
	r.Roster.remove(slot.Slot)
	if slot.ConnID != "" {
		m.unbindConn(slot.ConnID, code)
	}
	if err := m.saveRoster(ctx, r); err != nil {
		return err
	}

	role := slot.Role
	if role == "" {
		role = "Player"
	}
	if r.Roster.Started {
		m.broadcast(r, chessdto.NewEvent(chessdto.TypeOpponentLeft, chessdto.PlayerLeft{Role: role}))
	} else {
		m.broadcast(r, chessdto.NewEvent(chessdto.TypePlayerLeft, chessdto.PlayerLeft{Role: role}))
	}
	m.broadcastPlayers(r)
	obslog.L().Info("room_leave", zap.String("room", code), zap.String("slot", slot.Slot), zap.String("role", role))
	m.scheduleIfEmpty(r)
	return nil
}

// OnDisconnect flags every seat held by connID as disconnected. Seats keep color, ready
// and role until the disconnect grace window elapses.
func (m *Manager) OnDisconnect(connID string) {
	m.mu.Lock()
	codes := lo.Keys(m.conns[connID])
	delete(m.conns, connID)
	m.mu.Unlock()

	for _, code := range codes {
		m.disconnectFrom(code, connID)
	}
}

func (m *Manager) disconnectFrom(code, connID string) {
	unlock := m.locks.Lock(code)
	defer unlock()

	m.mu.Lock()
	r := m.rooms[code]
	m.mu.Unlock()
	if r == nil {
		return
	}
	slot := r.Roster.byConn(connID)
	if slot == nil {
		return
	}
	slot.markDisconnected(m.opts.Now())

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	_ = m.saveRoster(ctx, r)

	m.broadcastExcept(r, slot, chessdto.NewEvent(chessdto.TypeOpponentDisconnected, nil))
	m.broadcastPlayers(r)
	obslog.L().Info("room_disconnect", zap.String("room", code), zap.String("slot", slot.Slot))
	m.scheduleIfEmpty(r)
}

// scheduleIfEmpty arms the deletion timer once no seat has a live connection.
// Caller holds the room lock.
func (m *Manager) scheduleIfEmpty(r *Room) {
	if len(r.Roster.connected()) > 0 {
		return
	}
	grace := m.opts.EmptyRoomGrace
	if r.everPlayed() {
		grace = m.opts.FinishedRoomGrace
	}
	code := r.Code
	m.timers.Schedule(code, grace, func(gen uint64) { m.expire(code, gen) })
	obslog.L().Info("room_delete_scheduled", zap.String("room", code), zap.Duration("grace", grace))
}

func (m *Manager) expire(code string, gen uint64) {
	unlock := m.locks.Lock(code)
	defer unlock()

	if !m.timers.Claim(code, gen) {
		return
	}
	m.mu.Lock()
	r := m.rooms[code]
	m.mu.Unlock()
	if r != nil && len(r.Roster.connected()) > 0 {
		return
	}
	m.deleteRoom(code)
}

// deleteRoom drops the room from memory and storage. Caller holds the room lock.
func (m *Manager) deleteRoom(code string) {
	m.mu.Lock()
	delete(m.rooms, code)
	for connID, codes := range m.conns {
		delete(codes, code)
		if len(codes) == 0 {
			delete(m.conns, connID)
		}
	}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := m.store.DeleteGame(ctx, code); err != nil {
		obslog.L().Error("room_delete_game_error", zap.String("room", code), zap.Error(err))
	}
	if err := m.store.DeleteRoster(ctx, code); err != nil {
		obslog.L().Error("room_delete_roster_error", zap.String("room", code), zap.Error(err))
	}
	obslog.L().Info("room_deleted", zap.String("room", code))
}

func (m *Manager) saveRoster(ctx context.Context, r *Room) error {
	if err := m.store.SaveRoster(ctx, r.Code, &r.Roster); err != nil {
		obslog.L().Error("room_roster_save_error", zap.String("room", r.Code), zap.Error(err))
		return fmt.Errorf("save roster %s: %w", r.Code, err)
	}
	return nil
}

func (m *Manager) bindConn(connID, code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	codes, ok := m.conns[connID]
	if !ok {
		codes = make(map[string]struct{})
		m.conns[connID] = codes
	}
	codes[code] = struct{}{}
}

func (m *Manager) unbindConn(connID, code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if codes, ok := m.conns[connID]; ok {
		delete(codes, code)
		if len(codes) == 0 {
			delete(m.conns, connID)
		}
	}
}

func seat(r *Room, identity string) *PlayerState {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil
	}
	return r.Roster.byIdentity(identity)
}

// Stats summarizes live rooms by phase.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	codes := lo.Keys(m.rooms)
	conns := len(m.conns)
	m.mu.Unlock()

	st := Stats{Connections: conns, ByPhase: make(map[Phase]int)}
	for _, code := range codes {
		unlock := m.locks.Lock(code)
		m.mu.Lock()
		r := m.rooms[code]
		m.mu.Unlock()
		if r != nil {
			st.Rooms++
			st.ByPhase[r.Phase()]++
		}
		unlock()
	}
	return st
}
