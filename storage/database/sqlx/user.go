package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/tutorias/core"
	"github.com/trezcool/tutorias/core/presence"
	"github.com/trezcool/tutorias/core/user"
)

const (
	userColumns = "id, nombre, cedula, password, role, status, registrado_por, token_registrado, " +
		"socket_id, online, last_seen_at, profile_image, created_at"

	// registrarLockKey serializes registrar changes so that concurrent updates cannot close a cycle.
	registrarLockKey = 7301
)

type userRepository struct {
	db core.DB
}

var (
	_ user.Repository    = (*userRepository)(nil) // interface compliance check
	_ presence.Directory = (*userRepository)(nil)
)

func NewUserRepository(db core.DB) *userRepository {
	return &userRepository{db: db}
}

// NewPresenceDirectory stores presence on the usersva rows (socket_id, online, last_seen_at).
// The unique socket_id constraint keeps a session bound to at most one identity.
func NewPresenceDirectory(db core.DB) presence.Directory {
	return &userRepository{db: db}
}

func getUser(ctx context.Context, exec core.DBExecutor, filter user.GetFilter) (user.User, error) {
	var usr user.User
	var err error
	switch {
	case filter.ID > 0:
		err = exec.QueryRowxContext(ctx, "SELECT "+userColumns+" FROM usersva WHERE id = $1", filter.ID).StructScan(&usr)
	case filter.Cedula != "":
		err = exec.QueryRowxContext(ctx, "SELECT "+userColumns+" FROM usersva WHERE cedula = $1", filter.Cedula).StructScan(&usr)
	default:
		return user.User{}, user.ErrNotFound
	}
	if err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "finding user")
	}
	return usr, nil
}

func insertUser(ctx context.Context, exec core.DBExecutor, usr user.User) (user.User, error) {
	if usr.Role == "" {
		usr.Role = user.RoleUser
	}
	if usr.CreatedAt.IsZero() {
		usr.CreatedAt = time.Now().UTC()
	}
	q := `INSERT INTO usersva (nombre, cedula, password, role, status, registrado_por, token_registrado, profile_image, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + userColumns
	var created user.User
	err := exec.QueryRowxContext(ctx, q,
		usr.Nombre, usr.Cedula, usr.PasswordHash, usr.Role, usr.Status, usr.RegistradoPor,
		usr.TokenRegistrado, usr.ProfileImage, usr.CreatedAt.UTC(),
	).StructScan(&created)
	if err != nil {
		return user.User{}, trapDBErr(err, "inserting user")
	}
	return created, nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	return insertUser(ctx, repo.db, usr)
}

func (repo *userRepository) QueryUsers(ctx context.Context) ([]user.User, error) {
	users := make([]user.User, 0)
	if err := sqlx.SelectContext(ctx, repo.db, &users, "SELECT "+userColumns+" FROM usersva ORDER BY id"); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return users, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	return getUser(ctx, repo.db, filter)
}

func (repo *userRepository) UpdatePassword(ctx context.Context, id int, hash []byte) error {
	res, err := repo.db.ExecContext(ctx, "UPDATE usersva SET password = $1 WHERE id = $2", hash, id)
	if err != nil {
		return errors.Wrap(err, "updating password")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.ErrNotFound
	}
	return nil
}

// SetRegistrar re-parents id under registrarID. The ancestry of registrarID is walked with a
// recursive CTE inside the same transaction as the update.
func (repo *userRepository) SetRegistrar(ctx context.Context, id, registrarID int) (user.User, error) {
	var usr user.User
	err := withinTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", registrarLockKey); err != nil {
			return errors.Wrap(err, "locking registrar tree")
		}

		q := `WITH RECURSIVE ancestors (id, registrado_por) AS (
				SELECT id, registrado_por FROM usersva WHERE id = $1
				UNION
				SELECT u.id, u.registrado_por FROM usersva u JOIN ancestors a ON u.id = a.registrado_por
			)
			SELECT EXISTS (SELECT 1 FROM ancestors WHERE id = $2)`
		var cycle bool
		if err := tx.QueryRowxContext(ctx, q, registrarID, id).Scan(&cycle); err != nil {
			return errors.Wrap(err, "checking registrar ancestry")
		}
		if cycle {
			return user.ErrRegistrarCycle
		}

		err := tx.QueryRowxContext(ctx,
			"UPDATE usersva SET registrado_por = $1 WHERE id = $2 RETURNING "+userColumns, registrarID, id,
		).StructScan(&usr)
		return trapNoRowsErr(err, user.ErrNotFound, "updating registrar")
	})
	return usr, err
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...int) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := repo.db.ExecContext(ctx, "DELETE FROM usersva WHERE id = ANY($1)", pq.Array(ids))
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	return int(cnt), nil
}

// Presence

func (repo *userRepository) Bind(ctx context.Context, userID int, sessionID string, now time.Time) (user.User, string, error) {
	var usr user.User
	var prev *string
	err := withinTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		if err := tx.QueryRowxContext(ctx, "SELECT socket_id FROM usersva WHERE id = $1 FOR UPDATE", userID).Scan(&prev); err != nil {
			return trapNoRowsErr(err, user.ErrNotFound, "locking user")
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE usersva SET online = FALSE, socket_id = NULL WHERE socket_id = $1 AND id <> $2", sessionID, userID,
		); err != nil {
			return errors.Wrap(err, "releasing session")
		}
		err := tx.QueryRowxContext(ctx,
			"UPDATE usersva SET online = TRUE, socket_id = $1, last_seen_at = $2 WHERE id = $3 RETURNING "+userColumns,
			sessionID, now.UTC(), userID,
		).StructScan(&usr)
		return trapNoRowsErr(err, user.ErrNotFound, "binding session")
	})
	if err != nil {
		return user.User{}, "", err
	}
	if prev != nil {
		return usr, *prev, nil
	}
	return usr, "", nil
}

func (repo *userRepository) Release(ctx context.Context, sessionID string) (user.User, bool, error) {
	var usr user.User
	err := repo.db.QueryRowxContext(ctx,
		"UPDATE usersva SET online = FALSE, socket_id = NULL WHERE socket_id = $1 RETURNING "+userColumns, sessionID,
	).StructScan(&usr)
	if err != nil {
		if err = trapNoRowsErr(err, user.ErrNotFound, "releasing session"); err == user.ErrNotFound {
			return user.User{}, false, nil
		}
		return user.User{}, false, err
	}
	return usr, true, nil
}

func (repo *userRepository) Lookup(ctx context.Context, userID int) (user.User, error) {
	return getUser(ctx, repo.db, user.GetFilter{ID: userID})
}

func (repo *userRepository) LookupSession(ctx context.Context, sessionID string) (user.User, error) {
	var usr user.User
	err := repo.db.QueryRowxContext(ctx, "SELECT "+userColumns+" FROM usersva WHERE socket_id = $1", sessionID).StructScan(&usr)
	if err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "finding user by session")
	}
	return usr, nil
}

func (repo *userRepository) Touch(ctx context.Context, sessionID string, now time.Time) error {
	_, err := repo.db.ExecContext(ctx, "UPDATE usersva SET last_seen_at = $1 WHERE socket_id = $2", now.UTC(), sessionID)
	return errors.Wrap(err, "touching session")
}

func (repo *userRepository) Expire(ctx context.Context, before time.Time) ([]string, error) {
	q := `UPDATE usersva u SET online = FALSE, socket_id = NULL
		FROM (
			SELECT id, socket_id FROM usersva
			WHERE socket_id IS NOT NULL AND (last_seen_at IS NULL OR last_seen_at < $1)
			FOR UPDATE
		) stale
		WHERE u.id = stale.id
		RETURNING stale.socket_id`
	sessions := make([]string, 0)
	if err := sqlx.SelectContext(ctx, repo.db, &sessions, q, before.UTC()); err != nil {
		return nil, errors.Wrap(err, "expiring sessions")
	}
	return sessions, nil
}
