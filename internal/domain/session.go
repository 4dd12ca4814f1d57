package domain

import (
	"sync"
	"time"
)

// Outbox is the write side of a transport connection.
type Outbox interface {
	Send(event Event) bool
	Close()
}

// Session is the per-connection state. Only the connection's own read loop
// mutates it; other goroutines read principal and rooms while routing.
type Session struct {
	ID         string
	SourceAddr string
	JoinedAt   time.Time

	mu           sync.RWMutex
	out          Outbox
	principal    *Principal
	rooms        map[RoomID]struct{}
	lastActivity time.Time
	closed       bool
}

func NewSession(id, sourceAddr string, out Outbox, now time.Time) *Session {
	return &Session{
		ID:           id,
		SourceAddr:   sourceAddr,
		JoinedAt:     now,
		out:          out,
		rooms:        make(map[RoomID]struct{}),
		lastActivity: now,
	}
}

// Authenticate replaces the session principal with a freshly verified one.
func (s *Session) Authenticate(p Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.principal = &p
}

func (s *Session) Principal() (Principal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.principal == nil {
		return Principal{}, false
	}
	return *s.principal, true
}

func (s *Session) IsAuthenticated() bool {
	_, ok := s.Principal()
	return ok
}

// UserID is empty until the session is authenticated.
func (s *Session) UserID() string {
	p, _ := s.Principal()
	return p.ID
}

// AddRoom records the membership unless the session is already closed.
func (s *Session) AddRoom(room RoomID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.rooms[room] = struct{}{}
	return true
}

func (s *Session) RemoveRoom(room RoomID) {
	s.mu.Lock()
	delete(s.rooms, room)
	s.mu.Unlock()
}

func (s *Session) InRoom(room RoomID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[room]
	return ok
}

func (s *Session) Rooms() []RoomID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rooms := make([]RoomID, 0, len(s.rooms))
	for r := range s.rooms {
		rooms = append(rooms, r)
	}
	return rooms
}

// MarkClosed flags the session as disconnected. Only the first call returns true.
func (s *Session) MarkClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	return true
}

func (s *Session) IsClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}

func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// Send enqueues an event without blocking; false means it was dropped.
func (s *Session) Send(event Event) bool {
	if s.out == nil {
		return false
	}
	return s.out.Send(event)
}

func (s *Session) Close() {
	if s.out != nil {
		s.out.Close()
	}
}
