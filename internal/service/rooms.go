package service

import (
	"log/slog"
	"sync"

	"github.com/immxrtalbeast/auction_live/internal/domain"
)

// RoomManager keeps the connections subscribed to each room. Join and Leave
// are idempotent; broadcasts go to a membership snapshot taken at call time.
type RoomManager struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]map[string]*domain.Session
	log   *slog.Logger
}

func NewRoomManager(log *slog.Logger) *RoomManager {
	if log == nil {
		log = slog.Default()
	}
	return &RoomManager{
		rooms: make(map[domain.RoomID]map[string]*domain.Session),
		log:   log.With(slog.String("component", "rooms")),
	}
}

// Join reports whether the session was newly added. A closed session is
// never added.
func (m *RoomManager) Join(s *domain.Session, room domain.RoomID) bool {
	m.mu.Lock()
	if !s.AddRoom(room) {
		m.mu.Unlock()
		m.log.Debug("refusing join for closed connection", slog.String("conn_id", s.ID), slog.String("room", room.String()))
		return false
	}
	members, ok := m.rooms[room]
	if !ok {
		members = make(map[string]*domain.Session)
		m.rooms[room] = members
	}
	_, already := members[s.ID]
	members[s.ID] = s
	m.mu.Unlock()

	if !already {
		m.log.Debug("joined room", slog.String("conn_id", s.ID), slog.String("room", room.String()))
	}
	return !already
}

// Leave reports whether the session was a member.
func (m *RoomManager) Leave(s *domain.Session, room domain.RoomID) bool {
	m.mu.Lock()
	members, ok := m.rooms[room]
	_, present := members[s.ID]
	if ok && present {
		delete(members, s.ID)
		if len(members) == 0 {
			delete(m.rooms, room)
		}
	}
	m.mu.Unlock()

	s.RemoveRoom(room)
	if present {
		m.log.Debug("left room", slog.String("conn_id", s.ID), slog.String("room", room.String()))
	}
	return present
}

func (m *RoomManager) IsMember(connID string, room domain.RoomID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rooms[room][connID]
	return ok
}

func (m *RoomManager) MembersCount(room domain.RoomID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms[room])
}

func (m *RoomManager) Members(room domain.RoomID) []*domain.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members := make([]*domain.Session, 0, len(m.rooms[room]))
	for _, s := range m.rooms[room] {
		members = append(members, s)
	}
	return members
}

// Broadcast delivers event to every member except exclude and returns the
// number of connections that accepted it.
func (m *RoomManager) Broadcast(room domain.RoomID, event domain.Event, exclude string) int {
	return m.BroadcastTo(room, event, func(s *domain.Session) bool {
		return s.ID != exclude
	})
}

// BroadcastTo delivers event to the members accepted by filter.
func (m *RoomManager) BroadcastTo(room domain.RoomID, event domain.Event, filter func(*domain.Session) bool) int {
	delivered := 0
	for _, s := range m.Members(room) {
		if filter != nil && !filter(s) {
			continue
		}
		if s.Send(event) {
			delivered++
			continue
		}
		m.log.Debug("dropping broadcast event",
			slog.String("conn_id", s.ID),
			slog.String("room", room.String()),
			slog.String("event", event.Name),
		)
	}
	return delivered
}
