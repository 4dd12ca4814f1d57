package domain

type CallMedia string

const (
	MediaAudio CallMedia = "audio"
	MediaVideo CallMedia = "video"
)

func (m CallMedia) Valid() bool {
	return m == MediaAudio || m == MediaVideo
}

type CallStatus string

const (
	CallRinging   CallStatus = "RINGING"
	CallAccepted  CallStatus = "ACCEPTED"
	CallEnded     CallStatus = "ENDED"
	CallRejected  CallStatus = "REJECTED"
	CallCancelled CallStatus = "CANCELLED"
	CallBusy      CallStatus = "BUSY"
)

// CallSession is never stored; the relay builds one per routed message so the
// outgoing payload carries the participants and the status the message implies.
type CallSession struct {
	CallID         string     `json:"call_id"`
	ConversationID string     `json:"conversation_id"`
	CallerID       string     `json:"caller_id"`
	CalleeID       string     `json:"callee_id"`
	Media          CallMedia  `json:"media,omitempty"`
	Status         CallStatus `json:"status"`
}

// StatusAfter maps a call-control event to the status it moves a call into.
func StatusAfter(event string) (CallStatus, bool) {
	switch event {
	case EventCallStart:
		return CallRinging, true
	case EventCallAccept:
		return CallAccepted, true
	case EventCallReject:
		return CallRejected, true
	case EventCallCancel:
		return CallCancelled, true
	case EventCallEnded:
		return CallEnded, true
	}
	return "", false
}
