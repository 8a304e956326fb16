package call

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/tutorias/core"
	"github.com/trezcool/tutorias/core/user"
)

var (
	// errors
	ErrNotFound      = core.NewNotFoundError("Llamada no encontrada")
	ErrSelfCall      = errors.New("no puedes llamarte a ti mismo")
	ErrNoActiveCall  = errors.New("no hay una llamada activa entre los participantes")
	ErrPeerOffline   = errors.New("el destinatario no está conectado")
	ErrNotAuthorized = errors.New("la sesión no está autenticada")

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		CreateAttempt(ctx context.Context, a Attempt) (Attempt, error)
		UpdateAttemptStatus(ctx context.Context, id int, status string, now time.Time) (Attempt, error)
		GetAttempt(ctx context.Context, id int) (Attempt, error)
		// QueryAttempts returns the attempts userID took part in, newest first.
		QueryAttempts(ctx context.Context, userID int) ([]Attempt, error)
	}

	// Presence resolves identities to their live sessions.
	Presence interface {
		Lookup(ctx context.Context, userID int) (user.User, error)
	}

	RelayInterface interface {
		InitiateCall(ctx context.Context, callerID, calleeID int) (Outcome, error)
		Accept(ctx context.Context, calleeID, callID int) error
		RelaySignal(ctx context.Context, senderID, targetID int, signal Signal) error
		EndCall(ctx context.Context, userID int) error
		Participant(ctx context.Context, userID int) (Participant, error)
		History(ctx context.Context, userID int) ([]Attempt, error)
	}

	// Relay resolves call attempts against presence and forwards call events between the parties.
	// Live call links are held in process; attempts are persisted through the Repository.
	Relay struct {
		repo     Repository
		presence Presence
		notifier core.Notifier
		logger   core.Logger

		mu    sync.Mutex
		links map[int]*link // {callID: link}
	}
)

var _ RelayInterface = (*Relay)(nil)

func NewRelay(repo Repository, presence Presence, notifier core.Notifier, logger core.Logger) *Relay {
	return &Relay{
		repo:     repo,
		presence: presence,
		notifier: notifier,
		logger:   logger,
		links:    make(map[int]*link),
	}
}

// liveSession returns the session of an online identity.
func liveSession(usr user.User) (string, bool) {
	if usr.Online && usr.SocketID.Valid && usr.SocketID.String != "" {
		return usr.SocketID.String, true
	}
	return "", false
}

// InitiateCall logs an attempt from callerID to calleeID and notifies the callee when it is online.
// It never waits for the callee to answer.
func (r *Relay) InitiateCall(ctx context.Context, callerID, calleeID int) (Outcome, error) {
	if callerID == calleeID {
		return Outcome{}, core.NewValidationError(ErrSelfCall, core.FieldError{Field: "a", Error: ErrSelfCall.Error()})
	}
	caller, err := r.presence.Lookup(ctx, callerID)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "finding caller")
	}

	now := NowFunc().UTC()
	attempt, err := r.repo.CreateAttempt(ctx, Attempt{
		CallerID:  callerID,
		CalleeID:  calleeID,
		Status:    StatusAttempted,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return Outcome{}, errors.Wrap(err, "creating call attempt")
	}

	var status string
	callee, err := r.presence.Lookup(ctx, calleeID)
	switch {
	case errors.Cause(err) == user.ErrNotFound:
		status = StatusReceiverNotFound
	case err != nil:
		return Outcome{}, errors.Wrap(err, "finding callee")
	default:
		if session, online := liveSession(callee); online {
			evt := Incoming{CallID: attempt.ID, CallerID: callerID, CallerNombre: caller.Nombre}
			if status, err = r.notify(ctx, attempt.ID, calleeID, session, evt); err != nil {
				return Outcome{}, err
			}
			break
		}
		status = StatusReceiverOffline
	}

	if status == StatusReceiverNotFound || status == StatusReceiverOffline {
		if _, err = r.repo.UpdateAttemptStatus(ctx, attempt.ID, status, NowFunc().UTC()); err != nil {
			return Outcome{}, errors.Wrap(err, "updating call attempt")
		}
	}
	r.logger.Info("call attempted", map[string]interface{}{
		"call_id": attempt.ID, "caller_id": callerID, "callee_id": calleeID, "status": status,
	})
	return Outcome{CallID: attempt.ID, CalleeID: calleeID, Status: status}, nil
}

// notify records callID as notified, links it and sends evt to the callee session. The status is
// persisted before the link is visible: once linked, only EndCall writes to the attempt.
// An unreachable session yields StatusReceiverOffline, which the caller persists.
func (r *Relay) notify(ctx context.Context, callID, calleeID int, session string, evt Incoming) (string, error) {
	if _, err := r.repo.UpdateAttemptStatus(ctx, callID, StatusNotified, NowFunc().UTC()); err != nil {
		return "", errors.Wrap(err, "updating call attempt")
	}

	// the link must exist before the callee can answer
	r.mu.Lock()
	r.links[callID] = &link{callID: callID, callerID: evt.CallerID, calleeID: calleeID}
	r.mu.Unlock()

	err := r.notifier.Emit(session, EventIncoming, evt)
	if err == nil {
		return StatusNotified, nil
	}
	r.logger.Debug("callee session unreachable", map[string]interface{}{"session": session, "error": err.Error()})
	if !r.unlink(callID) {
		return StatusEnded, nil // EndCall got there first
	}
	return StatusReceiverOffline, nil
}

// unlink drops callID and reports whether it was still linked.
func (r *Relay) unlink(callID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.links[callID]
	delete(r.links, callID)
	return ok
}

// Accept answers callID on behalf of calleeID: the caller receives EventAccepted and the callee EventStarted.
func (r *Relay) Accept(ctx context.Context, calleeID, callID int) error {
	r.mu.Lock()
	l, ok := r.links[callID]
	if ok && l.calleeID == calleeID && !l.accepted {
		l.accepted = true
	} else {
		ok = false
	}
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	if _, err := r.repo.UpdateAttemptStatus(ctx, callID, StatusAccepted, NowFunc().UTC()); err != nil {
		return errors.Wrap(err, "updating call attempt")
	}

	callee, err := r.presence.Lookup(ctx, calleeID)
	if err != nil {
		return errors.Wrap(err, "finding callee")
	}
	caller, err := r.presence.Lookup(ctx, l.callerID)
	if err != nil {
		return errors.Wrap(err, "finding caller")
	}

	if session, online := liveSession(caller); online {
		r.emit(session, EventAccepted, Accepted{CallID: callID, CalleeID: calleeID, CalleeNombre: callee.Nombre})
	}
	if session, online := liveSession(callee); online {
		r.emit(session, EventStarted, Started{CallID: callID, CallerID: l.callerID})
	}
	return nil
}

// RelaySignal forwards signal from senderID to targetID. Both must be linked by a live call.
func (r *Relay) RelaySignal(ctx context.Context, senderID, targetID int, signal Signal) error {
	if err := signal.Validate(); err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "senal", Error: ErrInvalidSignal.Error()})
	}

	r.mu.Lock()
	linked := false
	for _, l := range r.links {
		if l.involves(senderID) && l.peer(senderID) == targetID {
			linked = true
			break
		}
	}
	r.mu.Unlock()
	if !linked {
		return ErrNoActiveCall
	}

	target, err := r.presence.Lookup(ctx, targetID)
	if err != nil {
		return errors.Wrap(err, "finding target")
	}
	session, online := liveSession(target)
	if !online {
		return ErrPeerOffline
	}
	return errors.Wrap(
		r.notifier.Emit(session, EventSignal, SignalEvent{From: senderID, Signal: signal}),
		"emitting signal",
	)
}

// SignalEvent is the relayed payload of EventSignal.
type SignalEvent struct {
	From   int    `json:"remitente"`
	Signal Signal `json:"senal"`
}

// EndCall terminates every live call of userID and notifies the other parties.
// Ending when no call is live is a no-op.
func (r *Relay) EndCall(ctx context.Context, userID int) error {
	r.mu.Lock()
	var ended []*link
	for id, l := range r.links {
		if l.involves(userID) {
			ended = append(ended, l)
			delete(r.links, id)
		}
	}
	r.mu.Unlock()

	var firstErr error
	for _, l := range ended {
		if _, err := r.repo.UpdateAttemptStatus(ctx, l.callID, StatusEnded, NowFunc().UTC()); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, "updating call attempt")
		}
		peer, err := r.presence.Lookup(ctx, l.peer(userID))
		if err != nil {
			continue
		}
		if session, online := liveSession(peer); online {
			r.emit(session, EventEnded, Ended{CallID: l.callID, By: userID})
		}
	}
	return firstErr
}

func (r *Relay) emit(session, event string, data interface{}) {
	if err := r.notifier.Emit(session, event, data); err != nil {
		r.logger.Debug("session unreachable", map[string]interface{}{"session": session, "event": event, "error": err.Error()})
	}
}

// Participant returns the public card of userID.
func (r *Relay) Participant(ctx context.Context, userID int) (Participant, error) {
	usr, err := r.presence.Lookup(ctx, userID)
	if err != nil {
		return Participant{}, err
	}
	p := Participant{ID: usr.ID, Nombre: usr.Nombre}
	if usr.ProfileImage.Valid {
		p.Image = &usr.ProfileImage.String
	}
	return p, nil
}

func (r *Relay) History(ctx context.Context, userID int) ([]Attempt, error) {
	return r.repo.QueryAttempts(ctx, userID)
}
