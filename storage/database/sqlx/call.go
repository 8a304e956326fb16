package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/tutorias/core"
	"github.com/trezcool/tutorias/core/call"
)

const attemptColumns = "id, caller_id, callee_id, status, created_at, updated_at"

type callRepository struct {
	db core.DB
}

var _ call.Repository = (*callRepository)(nil)

func NewCallRepository(db core.DB) *callRepository {
	return &callRepository{db: db}
}

func (repo *callRepository) CreateAttempt(ctx context.Context, a call.Attempt) (call.Attempt, error) {
	q := `INSERT INTO call_attempts (caller_id, callee_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	err := repo.db.QueryRowxContext(ctx, q, a.CallerID, a.CalleeID, a.Status, a.CreatedAt.UTC(), a.UpdatedAt.UTC()).Scan(&a.ID)
	if err != nil {
		return call.Attempt{}, errors.Wrap(err, "inserting call attempt")
	}
	return a, nil
}

func (repo *callRepository) UpdateAttemptStatus(ctx context.Context, id int, status string, now time.Time) (call.Attempt, error) {
	var a call.Attempt
	err := repo.db.QueryRowxContext(ctx,
		"UPDATE call_attempts SET status = $1, updated_at = $2 WHERE id = $3 RETURNING "+attemptColumns,
		status, now.UTC(), id,
	).StructScan(&a)
	if err != nil {
		return call.Attempt{}, trapNoRowsErr(err, call.ErrNotFound, "updating call attempt")
	}
	return a, nil
}

func (repo *callRepository) GetAttempt(ctx context.Context, id int) (call.Attempt, error) {
	var a call.Attempt
	err := repo.db.QueryRowxContext(ctx, "SELECT "+attemptColumns+" FROM call_attempts WHERE id = $1", id).StructScan(&a)
	if err != nil {
		return call.Attempt{}, trapNoRowsErr(err, call.ErrNotFound, "finding call attempt")
	}
	return a, nil
}

func (repo *callRepository) QueryAttempts(ctx context.Context, userID int) ([]call.Attempt, error) {
	attempts := make([]call.Attempt, 0)
	q := "SELECT " + attemptColumns + " FROM call_attempts WHERE caller_id = $1 OR callee_id = $1 ORDER BY id DESC"
	if err := sqlx.SelectContext(ctx, repo.db, &attempts, q, userID); err != nil {
		return nil, errors.Wrap(err, "querying call attempts")
	}
	return attempts, nil
}
