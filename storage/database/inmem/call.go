package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"

	"github.com/trezcool/tutorias/core/call"
)

type callRepository struct {
	db *DB
}

var _ call.Repository = (*callRepository)(nil)

func NewCallRepository(db *DB) *callRepository {
	return &callRepository{db: db}
}

func (repo *callRepository) CreateAttempt(_ context.Context, a call.Attempt) (call.Attempt, error) {
	err := repo.db.update(func(txn *memdb.Txn) error {
		id, err := nextID(txn, tblCall)
		if err != nil {
			return err
		}
		a.ID = id
		return errors.Wrap(txn.Insert(tblCall, &callRow{Attempt: a}), "inserting call_attempts")
	})
	return a, err
}

func getAttempt(txn *memdb.Txn, id int) (call.Attempt, error) {
	raw, err := txn.First(tblCall, idxID, id)
	if err != nil {
		return call.Attempt{}, errors.Wrap(err, "reading call_attempts")
	}
	if raw == nil {
		return call.Attempt{}, call.ErrNotFound
	}
	return raw.(*callRow).Attempt, nil
}

func (repo *callRepository) UpdateAttemptStatus(_ context.Context, id int, status string, now time.Time) (call.Attempt, error) {
	var a call.Attempt
	err := repo.db.update(func(txn *memdb.Txn) error {
		var err error
		if a, err = getAttempt(txn, id); err != nil {
			return err
		}
		a.Status = status
		a.UpdatedAt = now
		return errors.Wrap(txn.Insert(tblCall, &callRow{Attempt: a}), "updating call_attempts")
	})
	return a, err
}

func (repo *callRepository) GetAttempt(_ context.Context, id int) (call.Attempt, error) {
	return getAttempt(repo.db.read(), id)
}

func (repo *callRepository) QueryAttempts(_ context.Context, userID int) ([]call.Attempt, error) {
	txn := repo.db.read()
	attempts := make([]call.Attempt, 0)
	for _, idx := range []string{"caller_id", "callee_id"} {
		it, err := txn.Get(tblCall, idx, userID)
		if err != nil {
			return nil, errors.Wrap(err, "reading call_attempts")
		}
		for _, raw := range collect(it) {
			a := raw.(*callRow).Attempt
			if idx == "callee_id" && a.CallerID == userID {
				continue // already listed as caller
			}
			attempts = append(attempts, a)
		}
	}
	sort.Slice(attempts, func(i, j int) bool { return attempts[i].ID > attempts[j].ID })
	return attempts, nil
}
