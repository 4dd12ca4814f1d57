package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/auction_live/internal/domain"
	"github.com/immxrtalbeast/auction_live/internal/repository"
	"github.com/immxrtalbeast/auction_live/lib/logger/sl"
	"github.com/pion/webrtc/v3"
)

// SessionLookup resolves a local connection id to its session.
type SessionLookup interface {
	Session(connID string) (*domain.Session, bool)
}

// CallSignal is the payload shared by every call:* event.
type CallSignal struct {
	ConversationID string                     `json:"conversationId"`
	CallID         string                     `json:"callId"`
	ToUserID       string                     `json:"toUserId,omitempty"`
	Media          domain.CallMedia           `json:"media,omitempty"`
	Reason         string                     `json:"reason,omitempty"`
	SDP            *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate      *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

// SignalingRelay routes call control and SDP/ICE messages between the two
// participants of a conversation. The peer is always derived from the store;
// payload user ids are only checked against it.
type SignalingRelay struct {
	conversations repository.ConversationRepository
	rooms         *RoomManager
	presence      *PresenceRegistry
	limiter       *RateLimiter
	sessions      SessionLookup
	iceServers    []string
	log           *slog.Logger
}

func NewSignalingRelay(
	conversations repository.ConversationRepository,
	rooms *RoomManager,
	presence *PresenceRegistry,
	limiter *RateLimiter,
	sessions SessionLookup,
	iceServers []string,
	log *slog.Logger,
) *SignalingRelay {
	if log == nil {
		log = slog.Default()
	}
	return &SignalingRelay{
		conversations: conversations,
		rooms:         rooms,
		presence:      presence,
		limiter:       limiter,
		sessions:      sessions,
		iceServers:    iceServers,
		log:           log,
	}
}

// Relay validates one call:* message from s and forwards it to the other
// participant. It returns the call id the message was routed under.
func (r *SignalingRelay) Relay(ctx context.Context, s *domain.Session, event string, sig CallSignal) (string, error) {
	const op = "service.signaling.relay"

	principal, ok := s.Principal()
	if !ok {
		return "", domain.NewError(domain.KindUnauthenticated, "credential required")
	}
	if strings.TrimSpace(sig.ConversationID) == "" {
		return "", domain.BadRequest("conversationId is required")
	}
	log := r.log.With(
		slog.String("op", op),
		slog.String("event", event),
		slog.String("conversation_id", sig.ConversationID),
		slog.String("user_id", principal.ID),
	)

	room := domain.ConversationRoom(sig.ConversationID)
	if !r.rooms.IsMember(s.ID, room) {
		return "", domain.NewError(domain.KindNotAMember, "join the conversation first")
	}

	peer, err := r.peerOf(ctx, sig.ConversationID, principal.ID)
	if err != nil {
		return "", err
	}

	call := domain.CallSession{
		CallID:         sig.CallID,
		ConversationID: sig.ConversationID,
		CallerID:       principal.ID,
		CalleeID:       peer,
		Media:          sig.Media,
	}
	if status, ok := domain.StatusAfter(event); ok {
		call.Status = status
	}

	var events []domain.Event
	switch event {
	case domain.EventCallStart:
		if sig.ToUserID != peer {
			return "", domain.NewError(domain.KindNotAMember, "callee is not the other participant")
		}
		if !r.limiter.AllowAction(ctx, principal.ID, ActionCall) {
			return "", domain.NewError(domain.KindRateLimited, "too many calls")
		}
		if call.Media == "" {
			call.Media = domain.MediaAudio
		}
		if !call.Media.Valid() {
			return "", domain.BadRequest("media must be audio or video")
		}
		if call.CallID == "" {
			call.CallID = uuid.New().String()
		}
		events = append(events, domain.NewEvent(domain.EventCallRing, map[string]any{
			"callId":         call.CallID,
			"conversationId": call.ConversationID,
			"fromUserId":     principal.ID,
			"fromName":       principal.DisplayName,
			"media":          call.Media,
			"status":         call.Status,
			"iceServers":     r.iceServers,
		}))

	case domain.EventCallAccept, domain.EventCallCancel, domain.EventCallEnded, domain.EventCallReject:
		if call.CallID == "" {
			return "", domain.BadRequest("callId is required")
		}
		payload := r.basePayload(call, principal)
		payload["status"] = call.Status
		if sig.Reason != "" {
			payload["reason"] = sig.Reason
		}
		events = append(events, domain.NewEvent(event, payload))
		if event == domain.EventCallReject && strings.EqualFold(sig.Reason, "busy") {
			busy := r.basePayload(call, principal)
			busy["status"] = domain.CallBusy
			events = append(events, domain.NewEvent(domain.EventCallBusy, busy))
		}

	case domain.EventCallOffer, domain.EventCallAnswer, domain.EventCallICECandidate:
		if !r.limiter.AllowAction(ctx, principal.ID, ActionCallSignal) {
			return "", domain.NewError(domain.KindRateLimited, "too many signaling messages")
		}
		payload, err := r.signalPayload(event, call, principal, sig)
		if err != nil {
			return "", err
		}
		events = append(events, domain.NewEvent(event, payload))

	default:
		return "", domain.BadRequest("unsupported call event: " + event)
	}

	if !r.deliver(ctx, peer, room, events...) {
		log.Debug("peer unreachable")
		return call.CallID, domain.NewError(domain.KindPeerUnresolvable, "peer is not connected")
	}

	log.Debug("signal routed", slog.String("call_id", call.CallID), slog.String("peer", peer))
	return call.CallID, nil
}

func (r *SignalingRelay) signalPayload(event string, call domain.CallSession, from domain.Principal, sig CallSignal) (map[string]any, error) {
	if call.CallID == "" {
		return nil, domain.BadRequest("callId is required")
	}
	payload := r.basePayload(call, from)

	switch event {
	case domain.EventCallOffer, domain.EventCallAnswer:
		want := webrtc.SDPTypeOffer
		if event == domain.EventCallAnswer {
			want = webrtc.SDPTypeAnswer
		}
		if sig.SDP == nil || sig.SDP.SDP == "" {
			return nil, domain.BadRequest("sdp is required")
		}
		if sig.SDP.Type != want {
			return nil, domain.BadRequest("sdp type must be " + want.String())
		}
		payload["sdp"] = sig.SDP
	case domain.EventCallICECandidate:
		if sig.Candidate == nil {
			return nil, domain.BadRequest("candidate is required")
		}
		payload["candidate"] = sig.Candidate
	}
	return payload, nil
}

func (r *SignalingRelay) basePayload(call domain.CallSession, from domain.Principal) map[string]any {
	return map[string]any{
		"callId":         call.CallID,
		"conversationId": call.ConversationID,
		"fromUserId":     from.ID,
	}
}

// peerOf returns the other participant of a two-party conversation.
func (r *SignalingRelay) peerOf(ctx context.Context, conversationID, userID string) (string, error) {
	participants, err := r.conversations.ListParticipants(ctx, conversationID)
	if err != nil {
		if errors.Is(err, repository.ErrConversationNotFound) {
			return "", domain.NewError(domain.KindNotAMember, "conversation not found")
		}
		r.log.Error("failed to list participants", slog.String("conversation_id", conversationID), sl.Err(err))
		return "", domain.StoreError(err)
	}

	if len(participants) != 2 || !slices.Contains(participants, userID) {
		return "", domain.NewError(domain.KindNotAMember, "not a two-party conversation member")
	}
	if participants[0] == userID {
		return participants[1], nil
	}
	return participants[0], nil
}

// deliver sends events to the peer's announced connection, falling back to
// the peer's connections in the conversation room when presence is stale.
func (r *SignalingRelay) deliver(ctx context.Context, peer string, room domain.RoomID, events ...domain.Event) bool {
	connID, found, err := r.presence.Resolve(ctx, peer)
	if err != nil {
		r.log.Warn("presence lookup failed, using room fallback", slog.String("peer", peer), sl.Err(err))
	}
	if found {
		if target, ok := r.sessions.Session(connID); ok && target.UserID() == peer {
			delivered := false
			for _, ev := range events {
				if target.Send(ev) {
					delivered = true
				}
			}
			if delivered {
				return true
			}
		}
	}

	delivered := false
	for _, ev := range events {
		n := r.rooms.BroadcastTo(room, ev, func(s *domain.Session) bool {
			return s.UserID() == peer
		})
		if n > 0 {
			delivered = true
		}
	}
	return delivered
}
