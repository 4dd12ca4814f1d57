package domain

import "encoding/json"

// Client to server.
const (
	EventAuctionJoin      = "auction:join"
	EventAuctionLeave     = "auction:leave"
	EventBidPlace         = "bid:place"
	EventChatJoin         = "chat:join"
	EventChatLeave        = "chat:leave"
	EventChatMessage      = "chat:message"
	EventChatTypingStart  = "chat:typing:start"
	EventChatTypingStop   = "chat:typing:stop"
	EventChatRead         = "chat:message:read"
	EventChatDelivered    = "chat:message:delivered"
	EventCallStart        = "call:start"
	EventCallAccept       = "call:accept"
	EventCallReject       = "call:reject"
	EventCallCancel       = "call:cancel"
	EventCallEnded        = "call:ended"
	EventCallOffer        = "call:offer"
	EventCallAnswer       = "call:answer"
	EventCallICECandidate = "call:ice-candidate"
	EventPresenceAnnounce = "presence:announce"
	EventHeartbeat        = "heartbeat"
)

// Server to client.
const (
	EventAuctionJoined       = "auction:joined"
	EventAuctionLeft         = "auction:left"
	EventParticipantsUpdated = "participants:updated"
	EventBidPlaced           = "bid:placed"
	EventBidRejected         = "bid:rejected"
	EventChatJoined          = "chat:joined"
	EventChatMessageNew      = "chat:message:new"
	EventChatLeft            = "chat:left"
	EventCallRing            = "call:ring"
	EventCallBusy            = "call:busy"
	EventCallError           = "call:error"
	EventPresenceUpdate      = "presence:update"
	EventConnectionStatus    = "connection:status"
	EventErrorAuction        = "error:auction"
	EventErrorChat           = "error:chat"
	EventErrorPresence       = "error:presence"
	EventError               = "error"
)

// Event is the wire envelope in both directions.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data,omitempty"`
}

func NewEvent(name string, data any) Event {
	return Event{Name: name, Data: data}
}

// Inbound is a decoded client message whose payload is still raw.
type Inbound struct {
	Name string
	Data json.RawMessage
}

// Decode unmarshals the payload into v. An empty payload leaves v untouched.
func (in Inbound) Decode(v any) error {
	if len(in.Data) == 0 || string(in.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(in.Data, v); err != nil {
		return BadRequest("malformed payload for " + in.Name)
	}
	return nil
}
