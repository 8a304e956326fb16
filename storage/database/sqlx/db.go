package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/tutorias/core"
	"github.com/trezcool/tutorias/core/registration"
	"github.com/trezcool/tutorias/core/student"
	"github.com/trezcool/tutorias/core/tutor"
	"github.com/trezcool/tutorias/core/user"
)

// Postgres error codes
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// uniqueConstraints maps unique constraints to the error reported when they are violated.
var uniqueConstraints = map[string]struct {
	entity string
	err    error
}{
	"usersva_cedula_key":        {"usersva", user.ErrCedulaExists},
	"formularios_va_cedula_key": {"formularios_va", registration.ErrFormExists},
	"students_email_key":        {"students", student.ErrEmailExists},
	"tutors_email_key":          {"tutors", tutor.ErrEmailExists},
}

// foreignKeys maps foreign keys to the request field they validate.
var foreignKeys = map[string]core.FieldError{
	"usersva_registrado_por_fkey":     {Field: "registrado_por", Error: "registrador no encontrado"},
	"students_tutor_id_fkey":          {Field: "tutor_id", Error: "tutor no encontrado"},
	"courses_tutor_id_fkey":           {Field: "tutor_id", Error: "tutor no encontrado"},
	"student_courses_course_id_fkey":  {Field: "course_ids", Error: "curso no encontrado"},
	"formularios_va_user_id_fkey":     {Field: "user_id", Error: "usuario no encontrado"},
	"reviews_tutor_id_fkey":           {Field: "tutor_id", Error: "tutor no encontrado"},
	"student_courses_student_id_fkey": {Field: "student_id", Error: "estudiante no encontrado"},
}

// trapDBErr maps constraint violations to core errors and wraps anything else with msg.
func trapDBErr(err error, msg string) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok {
		switch pqErr.Code {
		case pqUniqueViolation:
			if c, ok := uniqueConstraints[pqErr.Constraint]; ok {
				return core.NewDuplicateKeyError(c.entity, c.err)
			}
		case pqForeignKeyViolation:
			if fe, ok := foreignKeys[pqErr.Constraint]; ok {
				return core.NewValidationError(nil, fe)
			}
		}
	}
	return errors.Wrap(err, msg)
}

// trapNoRowsErr maps "no rows" to notFound.
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return trapDBErr(err, msg)
}

// withinTx runs fn in a transaction on db. The transaction is rolled back unless fn succeeds and the commit
// goes through; either way the connection returns to the pool.
func withinTx(ctx context.Context, db core.DB, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}
