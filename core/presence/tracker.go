package presence

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/tutorias/core"
	"github.com/trezcool/tutorias/core/user"
)

// EventSuperseded is emitted to a session that lost its identity to a newer session.
const EventSuperseded = "sesion_reemplazada"

var (
	ErrSessionRequired = errors.New("sesión requerida")

	NowFunc = time.Now // mockable
)

type (
	// Directory maps identities to live transport sessions.
	// At most one identity holds a given session, and an identity holds at most one session.
	Directory interface {
		// Bind marks userID online on sessionID and returns the refreshed identity along with the
		// session it held before (empty if none). Any other identity holding sessionID is released.
		// Fails with user.ErrNotFound if userID does not exist.
		Bind(ctx context.Context, userID int, sessionID string, now time.Time) (user.User, string, error)
		// Release marks the identity holding sessionID offline. ok is false when no identity holds it.
		Release(ctx context.Context, sessionID string) (usr user.User, ok bool, err error)
		Lookup(ctx context.Context, userID int) (user.User, error)
		// LookupSession returns the identity holding sessionID or user.ErrNotFound.
		LookupSession(ctx context.Context, sessionID string) (user.User, error)
		Touch(ctx context.Context, sessionID string, now time.Time) error
		// Expire releases every session not seen since before and returns them.
		Expire(ctx context.Context, before time.Time) ([]string, error)
	}

	// Superseded is the payload of EventSuperseded.
	Superseded struct {
		UserID  int    `json:"userId"`
		Message string `json:"message"`
	}

	Tracker struct {
		dir      Directory
		notifier core.Notifier
		logger   core.Logger
		ttl      time.Duration
	}
)

func NewTracker(dir Directory, notifier core.Notifier, logger core.Logger, ttl time.Duration) *Tracker {
	return &Tracker{dir: dir, notifier: notifier, logger: logger, ttl: ttl}
}

// Authenticate binds userID to sessionID and returns the identity snapshot.
// A different session previously held by userID is told it was superseded before being overwritten.
func (t *Tracker) Authenticate(ctx context.Context, userID int, sessionID string) (user.User, error) {
	if sessionID == "" {
		return user.User{}, ErrSessionRequired
	}
	if userID <= 0 {
		return user.User{}, user.ErrNotFound
	}

	usr, prev, err := t.dir.Bind(ctx, userID, sessionID, NowFunc().UTC())
	if err != nil {
		return user.User{}, errors.Wrap(err, "binding session")
	}

	if prev != "" && prev != sessionID {
		msg := Superseded{UserID: userID, Message: "la sesión fue abierta en otro dispositivo"}
		if err = t.notifier.Emit(prev, EventSuperseded, msg); err != nil {
			t.logger.Debug("superseded session unreachable", map[string]interface{}{"session": prev, "error": err.Error()})
		}
	}
	return usr, nil
}

// Clear releases sessionID. Clearing a session that holds no identity is a no-op.
func (t *Tracker) Clear(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if _, _, err := t.dir.Release(ctx, sessionID); err != nil {
		return errors.Wrap(err, "releasing session")
	}
	return nil
}

func (t *Tracker) Lookup(ctx context.Context, userID int) (user.User, error) {
	return t.dir.Lookup(ctx, userID)
}

// Owner returns the identity authenticated on sessionID.
func (t *Tracker) Owner(ctx context.Context, sessionID string) (user.User, error) {
	if sessionID == "" {
		return user.User{}, user.ErrNotFound
	}
	return t.dir.LookupSession(ctx, sessionID)
}

// Touch records activity on sessionID.
func (t *Tracker) Touch(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return errors.Wrap(t.dir.Touch(ctx, sessionID, NowFunc().UTC()), "touching session")
}

// ExpireStale releases every session that has not been seen within the tracker TTL.
func (t *Tracker) ExpireStale(ctx context.Context) ([]string, error) {
	return t.ExpireOlderThan(ctx, t.ttl)
}

func (t *Tracker) ExpireOlderThan(ctx context.Context, ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		return nil, nil
	}
	sessions, err := t.dir.Expire(ctx, NowFunc().UTC().Add(-ttl))
	if err != nil {
		return nil, errors.Wrap(err, "expiring sessions")
	}
	if len(sessions) > 0 {
		t.logger.Info("stale sessions expired", map[string]interface{}{"count": len(sessions)})
	}
	return sessions, nil
}
