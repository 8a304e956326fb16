package sqlxrepos

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/tutorias/core"
	"github.com/trezcool/tutorias/core/student"
	"github.com/trezcool/tutorias/core/tutor"
)

const studentSelect = `SELECT s.id, s.name, s.email, s.tutor_id, s.status, s.created_at,
		t.name AS tutor_name, t.email AS tutor_email
	FROM students s
	LEFT JOIN tutors t ON t.id = s.tutor_id`

type studentRepository struct {
	db core.DB
}

var _ student.Repository = (*studentRepository)(nil)

func NewStudentRepository(db core.DB) *studentRepository {
	return &studentRepository{db: db}
}

func setEnrollments(ctx context.Context, tx *sqlx.Tx, studentID int, courseIDs []int) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM student_courses WHERE student_id = $1", studentID); err != nil {
		return errors.Wrap(err, "deleting enrollments")
	}
	if len(courseIDs) == 0 {
		return nil
	}
	q := `INSERT INTO student_courses (student_id, course_id)
		SELECT $1, UNNEST($2::INTEGER[])
		ON CONFLICT DO NOTHING`
	_, err := tx.ExecContext(ctx, q, studentID, pq.Array(courseIDs))
	return trapDBErr(err, "inserting enrollments")
}

func (repo *studentRepository) CreateStudent(ctx context.Context, s student.Student, courseIDs []int) (student.Student, error) {
	err := withinTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		q := `INSERT INTO students (name, email, tutor_id, status, created_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`
		if err := tx.QueryRowxContext(ctx, q, s.Name, s.Email, s.TutorID, s.Status, s.CreatedAt.UTC()).Scan(&s.ID); err != nil {
			return trapDBErr(err, "inserting student")
		}
		return setEnrollments(ctx, tx, s.ID, courseIDs)
	})
	if err != nil {
		return student.Student{}, err
	}
	return s, nil
}

func (repo *studentRepository) QueryStudents(ctx context.Context, filter student.Filter) ([]student.Student, error) {
	var where []string
	var args []interface{}
	addCond := func(cond string, arg interface{}) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.TutorID > 0 {
		addCond("s.tutor_id = $%d", filter.TutorID)
	}
	if filter.CourseID > 0 {
		addCond("EXISTS (SELECT 1 FROM student_courses sc WHERE sc.student_id = s.id AND sc.course_id = $%d)", filter.CourseID)
	}
	if filter.Status != "" {
		addCond("s.status = $%d", filter.Status)
	}
	if filter.Name != "" {
		addCond("s.name ILIKE '%%' || $%d || '%%'", filter.Name)
	}

	q := studentSelect
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY LOWER(s.name), s.id"

	students := make([]student.Student, 0)
	if err := sqlx.SelectContext(ctx, repo.db, &students, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	return students, nil
}

func (repo *studentRepository) GetStudent(ctx context.Context, id int) (student.Student, error) {
	var s student.Student
	if err := repo.db.QueryRowxContext(ctx, studentSelect+" WHERE s.id = $1", id).StructScan(&s); err != nil {
		return student.Student{}, trapNoRowsErr(err, student.ErrNotFound, "finding student")
	}

	s.Courses = make([]tutor.Course, 0)
	q := `SELECT c.id, c.name, c.description, c.tutor_id
		FROM courses c
		JOIN student_courses sc ON sc.course_id = c.id
		WHERE sc.student_id = $1
		ORDER BY c.id`
	if err := sqlx.SelectContext(ctx, repo.db, &s.Courses, q, id); err != nil {
		return student.Student{}, errors.Wrap(err, "querying student courses")
	}
	return s, nil
}

func (repo *studentRepository) UpdateStudent(ctx context.Context, s student.Student, courseIDs *[]int) (student.Student, error) {
	err := withinTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		q := "UPDATE students SET name = $1, email = $2, tutor_id = $3, status = $4 WHERE id = $5"
		res, err := tx.ExecContext(ctx, q, s.Name, s.Email, s.TutorID, s.Status, s.ID)
		if err != nil {
			return trapDBErr(err, "updating student")
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return student.ErrNotFound
		}
		if courseIDs != nil {
			return setEnrollments(ctx, tx, s.ID, *courseIDs)
		}
		return nil
	})
	if err != nil {
		return student.Student{}, err
	}
	return s, nil
}

func (repo *studentRepository) DeleteStudent(ctx context.Context, id int) (int, error) {
	res, err := repo.db.ExecContext(ctx, "DELETE FROM students WHERE id = $1", id)
	if err != nil {
		return 0, errors.Wrap(err, "deleting student")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "deleting student")
	}
	return int(cnt), nil
}
