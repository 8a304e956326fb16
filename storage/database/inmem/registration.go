package inmemdb

import (
	"context"
	"sort"

	"github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"

	"github.com/trezcool/tutorias/core"
	"github.com/trezcool/tutorias/core/registration"
	"github.com/trezcool/tutorias/core/user"
)

type registrationRepository struct {
	db *DB
}

var _ registration.Repository = (*registrationRepository)(nil)

func NewRegistrationRepository(db *DB) *registrationRepository {
	return &registrationRepository{db: db}
}

// WithinTx runs fn in a single write transaction; go-memdb discards every write of fn when it fails.
func (repo *registrationRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx registration.Tx) error) error {
	return repo.db.update(func(txn *memdb.Txn) error {
		return fn(ctx, registrationTx{txn: txn})
	})
}

func (repo *registrationRepository) QueryForms(_ context.Context) ([]registration.Form, error) {
	it, err := repo.db.read().Get(tblForm, idxID)
	if err != nil {
		return nil, errors.Wrap(err, "reading formularios_va")
	}
	forms := make([]registration.Form, 0)
	for _, raw := range collect(it) {
		forms = append(forms, raw.(*formRow).Form)
	}
	sort.Slice(forms, func(i, j int) bool { return forms[i].ID < forms[j].ID })
	return forms, nil
}

func (repo *registrationRepository) GetFormByCedula(_ context.Context, cedula string) (registration.Form, error) {
	raw, err := repo.db.read().First(tblForm, "cedula", cedula)
	if err != nil {
		return registration.Form{}, errors.Wrap(err, "reading formularios_va")
	}
	if raw == nil {
		return registration.Form{}, registration.ErrNotFound
	}
	return raw.(*formRow).Form, nil
}

type registrationTx struct {
	txn *memdb.Txn
}

func (tx registrationTx) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	row, err := getUser(tx.txn, filter)
	if err != nil {
		return user.User{}, err
	}
	return row.User, nil
}

func (tx registrationTx) ActivateUser(_ context.Context, id int) (user.User, error) {
	row, err := getUser(tx.txn, user.GetFilter{ID: id})
	if err != nil {
		return user.User{}, err
	}
	row.Status = user.StatusActive
	if err = saveUser(tx.txn, row); err != nil {
		return user.User{}, err
	}
	return row.User, nil
}

func (tx registrationTx) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	return insertUser(tx.txn, usr)
}

func (tx registrationTx) CreateForm(_ context.Context, f registration.Form) (registration.Form, error) {
	if existing, err := tx.txn.First(tblForm, "cedula", f.Cedula); err != nil {
		return registration.Form{}, errors.Wrap(err, "reading formularios_va")
	} else if existing != nil {
		return registration.Form{}, core.NewDuplicateKeyError(tblForm, registration.ErrFormExists)
	}
	if _, err := getUser(tx.txn, user.GetFilter{ID: f.UserID}); err != nil {
		return registration.Form{}, errors.Wrap(err, "checking registrant")
	}

	id, err := nextID(tx.txn, tblForm)
	if err != nil {
		return registration.Form{}, err
	}
	f.ID = id
	if err = tx.txn.Insert(tblForm, &formRow{Form: f}); err != nil {
		return registration.Form{}, errors.Wrap(err, "inserting formularios_va")
	}
	return f, nil
}
