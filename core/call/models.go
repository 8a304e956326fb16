package call

import "time"

// Attempt statuses. attempted → {notified | receiver_offline | receiver_not_found}; notified → accepted → ended.
const (
	StatusAttempted        = "attempted"
	StatusNotified         = "notified"
	StatusReceiverOffline  = "receiver_offline"
	StatusReceiverNotFound = "receiver_not_found"
	StatusAccepted         = "accepted"
	StatusEnded            = "ended"
)

// Real-time events emitted by the relay.
const (
	EventIncoming = "llamada_entrante"
	EventAccepted = "llamada_aceptada"
	EventStarted  = "llamada_iniciada"
	EventSignal   = "senal_webrtc"
	EventEnded    = "llamada_finalizada"
)

// Attempt is the audit record of one call request.
type Attempt struct {
	ID        int       `json:"id" db:"id"`
	CallerID  int       `json:"caller_id" db:"caller_id"`
	CalleeID  int       `json:"callee_id" db:"callee_id"`
	Status    string    `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"` // UTC
}

// Outcome is returned to the caller as soon as the attempt is resolved.
type Outcome struct {
	CallID   int    `json:"callId"`
	CalleeID int    `json:"calleeId"`
	Status   string `json:"status"`
}

type (
	Incoming struct {
		CallID       int    `json:"callId"`
		CallerID     int    `json:"callerId"`
		CallerNombre string `json:"callerNombre"`
	}

	Accepted struct {
		CallID       int    `json:"callId"`
		CalleeID     int    `json:"calleeId"`
		CalleeNombre string `json:"calleeNombre"`
	}

	Started struct {
		CallID   int `json:"callId"`
		CallerID int `json:"callerId"`
	}

	Ended struct {
		CallID int `json:"callId"`
		By     int `json:"por"`
	}
)

// Participant is the public card of a call party.
type Participant struct {
	ID     int     `json:"id"`
	Nombre string  `json:"nombre"`
	Image  *string `json:"image"`
}

// link ties the two parties of a live call.
type link struct {
	callID   int
	callerID int
	calleeID int
	accepted bool
}

func (l *link) involves(userID int) bool {
	return l.callerID == userID || l.calleeID == userID
}

func (l *link) peer(userID int) int {
	if l.callerID == userID {
		return l.calleeID
	}
	return l.callerID
}
