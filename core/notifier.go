package core

// Notifier delivers named events to live transport sessions.
type Notifier interface {
	// Emit queues event for sessionID. It fails when the session is not connected to this process.
	Emit(sessionID, event string, data interface{}) error
}
