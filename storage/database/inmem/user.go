package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tutorias/core"
	"github.com/trezcool/tutorias/core/presence"
	"github.com/trezcool/tutorias/core/user"
)

type userRepository struct {
	db *DB
}

var (
	_ user.Repository    = (*userRepository)(nil)
	_ presence.Directory = (*userRepository)(nil)
)

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

// NewPresenceDirectory stores presence on the usersva rows, like the SQL directory.
func NewPresenceDirectory(db *DB) presence.Directory {
	return &userRepository{db: db}
}

func getUser(txn *memdb.Txn, filter user.GetFilter) (*userRow, error) {
	var raw interface{}
	var err error
	switch {
	case filter.ID > 0:
		raw, err = txn.First(tblUser, idxID, filter.ID)
	case filter.Cedula != "":
		raw, err = txn.First(tblUser, "cedula", filter.Cedula)
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading usersva")
	}
	if raw == nil {
		return nil, user.ErrNotFound
	}
	row := *raw.(*userRow)
	return &row, nil
}

func insertUser(txn *memdb.Txn, usr user.User) (user.User, error) {
	if existing, err := txn.First(tblUser, "cedula", usr.Cedula); err != nil {
		return user.User{}, errors.Wrap(err, "reading usersva")
	} else if existing != nil {
		return user.User{}, core.NewDuplicateKeyError(tblUser, user.ErrCedulaExists)
	}
	if usr.RegistradoPor.Valid {
		if _, err := getUser(txn, user.GetFilter{ID: usr.RegistradoPor.Int}); err != nil {
			return user.User{}, errors.Wrap(err, "checking registrar")
		}
	}

	id, err := nextID(txn, tblUser)
	if err != nil {
		return user.User{}, err
	}
	usr.ID = id
	if usr.Role == "" {
		usr.Role = user.RoleUser
	}
	usr.Online = false
	usr.SocketID = null.String{}
	if err = txn.Insert(tblUser, &userRow{User: usr}); err != nil {
		return user.User{}, errors.Wrap(err, "inserting usersva")
	}
	return usr, nil
}

func saveUser(txn *memdb.Txn, row *userRow) error {
	row.Session = ""
	if row.Online && row.SocketID.Valid {
		row.Session = row.SocketID.String
	}
	return errors.Wrap(txn.Insert(tblUser, row), "updating usersva")
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	err := repo.db.update(func(txn *memdb.Txn) error {
		var err error
		usr, err = insertUser(txn, usr)
		return err
	})
	return usr, err
}

func (repo *userRepository) QueryUsers(_ context.Context) ([]user.User, error) {
	it, err := repo.db.read().Get(tblUser, idxID)
	if err != nil {
		return nil, errors.Wrap(err, "reading usersva")
	}
	users := make([]user.User, 0)
	for _, raw := range collect(it) {
		users = append(users, raw.(*userRow).User)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	row, err := getUser(repo.db.read(), filter)
	if err != nil {
		return user.User{}, err
	}
	return row.User, nil
}

func (repo *userRepository) UpdatePassword(_ context.Context, id int, hash []byte) error {
	return repo.db.update(func(txn *memdb.Txn) error {
		row, err := getUser(txn, user.GetFilter{ID: id})
		if err != nil {
			return err
		}
		row.PasswordHash = hash
		return saveUser(txn, row)
	})
}

func (repo *userRepository) SetRegistrar(_ context.Context, id, registrarID int) (user.User, error) {
	var usr user.User
	err := repo.db.update(func(txn *memdb.Txn) error {
		row, err := getUser(txn, user.GetFilter{ID: id})
		if err != nil {
			return err
		}
		// walk up from the registrar: finding id means registrarID descends from it
		seen := make(map[int]bool)
		for cur := registrarID; cur != 0 && !seen[cur]; {
			if cur == id {
				return user.ErrRegistrarCycle
			}
			seen[cur] = true
			anc, err := getUser(txn, user.GetFilter{ID: cur})
			if err != nil {
				return err
			}
			cur = 0
			if anc.RegistradoPor.Valid {
				cur = anc.RegistradoPor.Int
			}
		}
		row.RegistradoPor = null.IntFrom(registrarID)
		if err = saveUser(txn, row); err != nil {
			return err
		}
		usr = row.User
		return nil
	})
	return usr, err
}

func (repo *userRepository) DeleteUsersByID(_ context.Context, ids ...int) (int, error) {
	var cnt int
	err := repo.db.update(func(txn *memdb.Txn) error {
		for _, id := range ids {
			row, err := getUser(txn, user.GetFilter{ID: id})
			if err == user.ErrNotFound {
				continue
			} else if err != nil {
				return err
			}
			if err = txn.Delete(tblUser, row); err != nil {
				return errors.Wrap(err, "deleting usersva")
			}
			cnt++

			// ON DELETE CASCADE
			if _, err = txn.DeleteAll(tblForm, "user_id", id); err != nil {
				return errors.Wrap(err, "deleting formularios_va")
			}
			// ON DELETE SET NULL
			it, err := txn.Get(tblUser, idxID)
			if err != nil {
				return errors.Wrap(err, "reading usersva")
			}
			for _, raw := range collect(it) {
				child := *raw.(*userRow)
				if child.RegistradoPor.Valid && child.RegistradoPor.Int == id {
					child.RegistradoPor = null.Int{}
					if err = saveUser(txn, &child); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
	return cnt, err
}

// Presence

func (repo *userRepository) Bind(_ context.Context, userID int, sessionID string, now time.Time) (user.User, string, error) {
	var usr user.User
	var prev string
	err := repo.db.update(func(txn *memdb.Txn) error {
		// release any other holder of the session
		if raw, err := txn.First(tblUser, "session", sessionID); err != nil {
			return errors.Wrap(err, "reading usersva")
		} else if raw != nil && raw.(*userRow).ID != userID {
			holder := *raw.(*userRow)
			holder.Online = false
			holder.SocketID = null.String{}
			if err = saveUser(txn, &holder); err != nil {
				return err
			}
		}

		row, err := getUser(txn, user.GetFilter{ID: userID})
		if err != nil {
			return err
		}
		if row.SocketID.Valid {
			prev = row.SocketID.String
		}
		row.Online = true
		row.SocketID = null.StringFrom(sessionID)
		row.LastSeenAt = null.TimeFrom(now)
		if err = saveUser(txn, row); err != nil {
			return err
		}
		usr = row.User
		return nil
	})
	return usr, prev, err
}

func (repo *userRepository) Release(_ context.Context, sessionID string) (user.User, bool, error) {
	var usr user.User
	var found bool
	err := repo.db.update(func(txn *memdb.Txn) error {
		raw, err := txn.First(tblUser, "session", sessionID)
		if err != nil {
			return errors.Wrap(err, "reading usersva")
		}
		if raw == nil {
			return nil
		}
		row := *raw.(*userRow)
		row.Online = false
		row.SocketID = null.String{}
		if err = saveUser(txn, &row); err != nil {
			return err
		}
		usr, found = row.User, true
		return nil
	})
	return usr, found, err
}

func (repo *userRepository) Lookup(ctx context.Context, userID int) (user.User, error) {
	return repo.GetUser(ctx, user.GetFilter{ID: userID})
}

func (repo *userRepository) LookupSession(_ context.Context, sessionID string) (user.User, error) {
	raw, err := repo.db.read().First(tblUser, "session", sessionID)
	if err != nil {
		return user.User{}, errors.Wrap(err, "reading usersva")
	}
	if raw == nil {
		return user.User{}, user.ErrNotFound
	}
	return raw.(*userRow).User, nil
}

func (repo *userRepository) Touch(_ context.Context, sessionID string, now time.Time) error {
	return repo.db.update(func(txn *memdb.Txn) error {
		raw, err := txn.First(tblUser, "session", sessionID)
		if err != nil {
			return errors.Wrap(err, "reading usersva")
		}
		if raw == nil {
			return nil
		}
		row := *raw.(*userRow)
		row.LastSeenAt = null.TimeFrom(now)
		return saveUser(txn, &row)
	})
}

func (repo *userRepository) Expire(_ context.Context, before time.Time) ([]string, error) {
	var sessions []string
	err := repo.db.update(func(txn *memdb.Txn) error {
		it, err := txn.Get(tblUser, idxID)
		if err != nil {
			return errors.Wrap(err, "reading usersva")
		}
		for _, raw := range collect(it) {
			row := *raw.(*userRow)
			if row.Session == "" || (row.LastSeenAt.Valid && !row.LastSeenAt.Time.Before(before)) {
				continue
			}
			sessions = append(sessions, row.Session)
			row.Online = false
			row.SocketID = null.String{}
			if err = saveUser(txn, &row); err != nil {
				return err
			}
		}
		return nil
	})
	return sessions, err
}
