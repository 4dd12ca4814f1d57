package service

import (
	"context"

	"github.com/immxrtalbeast/auction_live/internal/domain"
)

// Authenticator turns a bearer credential into a verified principal.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (domain.Principal, error)
}

// RoomStats is read by the HTTP layer for room occupancy.
type RoomStats interface {
	MembersCount(room domain.RoomID) int
}

// ConnectionGate decides whether a source address may open a new connection.
type ConnectionGate interface {
	AllowConnection(ctx context.Context, sourceAddr string) bool
}

// Connections is the lifecycle surface the transport layer drives.
type Connections interface {
	Connect(connID, sourceAddr string, out domain.Outbox) *domain.Session
	HandleMessage(ctx context.Context, s *domain.Session, raw []byte)
	Disconnect(ctx context.Context, s *domain.Session)
}

var (
	_ Authenticator  = (*AuthGate)(nil)
	_ RoomStats      = (*RoomManager)(nil)
	_ ConnectionGate = (*RateLimiter)(nil)
	_ Connections    = (*Hub)(nil)
	_ SessionLookup  = (*Hub)(nil)
)
