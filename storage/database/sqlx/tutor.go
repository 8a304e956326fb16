package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/tutorias/core"
	"github.com/trezcool/tutorias/core/tutor"
)

const tutorColumns = "id, name, email, position, specialization, created_at, updated_at"

type tutorRepository struct {
	db core.DB
}

var _ tutor.Repository = (*tutorRepository)(nil)

func NewTutorRepository(db core.DB) *tutorRepository {
	return &tutorRepository{db: db}
}

func (repo *tutorRepository) CreateTutor(ctx context.Context, t tutor.Tutor) (tutor.Tutor, error) {
	q := `INSERT INTO tutors (name, email, position, specialization, created_at, updated_at)
		VALUES (:name, :email, :position, :specialization, :created_at, :updated_at)
		RETURNING id`
	query, args, err := sqlx.Named(q, t)
	if err != nil {
		return tutor.Tutor{}, errors.Wrap(err, "binding tutor")
	}
	if err = repo.db.QueryRowxContext(ctx, repo.db.Rebind(query), args...).Scan(&t.ID); err != nil {
		return tutor.Tutor{}, trapDBErr(err, "inserting tutor")
	}
	return t, nil
}

func (repo *tutorRepository) QueryTutors(ctx context.Context) ([]tutor.Tutor, error) {
	tutors := make([]tutor.Tutor, 0)
	if err := sqlx.SelectContext(ctx, repo.db, &tutors, "SELECT "+tutorColumns+" FROM tutors ORDER BY LOWER(name), id"); err != nil {
		return nil, errors.Wrap(err, "querying tutors")
	}
	return tutors, nil
}

func (repo *tutorRepository) GetTutor(ctx context.Context, id int) (tutor.Tutor, error) {
	var t tutor.Tutor
	err := repo.db.QueryRowxContext(ctx, "SELECT "+tutorColumns+" FROM tutors WHERE id = $1", id).StructScan(&t)
	if err != nil {
		return tutor.Tutor{}, trapNoRowsErr(err, tutor.ErrNotFound, "finding tutor")
	}
	return t, nil
}

func (repo *tutorRepository) UpdateTutor(ctx context.Context, t tutor.Tutor) (tutor.Tutor, error) {
	q := `UPDATE tutors SET name = $1, email = $2, position = $3, specialization = $4, updated_at = $5
		WHERE id = $6
		RETURNING ` + tutorColumns
	var updated tutor.Tutor
	err := repo.db.QueryRowxContext(ctx, q,
		t.Name, t.Email, t.Position, t.Specialization, t.UpdatedAt.UTC(), t.ID,
	).StructScan(&updated)
	if err != nil {
		return tutor.Tutor{}, trapNoRowsErr(err, tutor.ErrNotFound, "updating tutor")
	}
	return updated, nil
}

func (repo *tutorRepository) DeleteTutor(ctx context.Context, id int) (int, error) {
	res, err := repo.db.ExecContext(ctx, "DELETE FROM tutors WHERE id = $1", id)
	if err != nil {
		return 0, errors.Wrap(err, "deleting tutor")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "deleting tutor")
	}
	return int(cnt), nil
}

func (repo *tutorRepository) QueryTutorCourses(ctx context.Context, id int) ([]tutor.Course, error) {
	courses := make([]tutor.Course, 0)
	q := "SELECT id, name, description, tutor_id FROM courses WHERE tutor_id = $1 ORDER BY id"
	if err := sqlx.SelectContext(ctx, repo.db, &courses, q, id); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	return courses, nil
}

func (repo *tutorRepository) QueryTutorStudents(ctx context.Context, id int) ([]tutor.StudentRef, error) {
	students := make([]tutor.StudentRef, 0)
	q := "SELECT id, name, status FROM students WHERE tutor_id = $1 ORDER BY id"
	if err := sqlx.SelectContext(ctx, repo.db, &students, q, id); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	return students, nil
}

func (repo *tutorRepository) QueryTutorReviews(ctx context.Context, id int) ([]tutor.Review, error) {
	reviews := make([]tutor.Review, 0)
	q := "SELECT id, tutor_id, comment, rating FROM reviews WHERE tutor_id = $1 ORDER BY id"
	if err := sqlx.SelectContext(ctx, repo.db, &reviews, q, id); err != nil {
		return nil, errors.Wrap(err, "querying reviews")
	}
	return reviews, nil
}

func (repo *tutorRepository) CreateCourse(ctx context.Context, c tutor.Course) (tutor.Course, error) {
	q := "INSERT INTO courses (name, description, tutor_id) VALUES ($1, $2, $3) RETURNING id"
	if err := repo.db.QueryRowxContext(ctx, q, c.Name, c.Description, c.TutorID).Scan(&c.ID); err != nil {
		return tutor.Course{}, trapDBErr(err, "inserting course")
	}
	return c, nil
}

func (repo *tutorRepository) CreateReview(ctx context.Context, r tutor.Review) (tutor.Review, error) {
	q := "INSERT INTO reviews (tutor_id, comment, rating) VALUES ($1, $2, $3) RETURNING id"
	if err := repo.db.QueryRowxContext(ctx, q, r.TutorID, r.Comment, r.Rating).Scan(&r.ID); err != nil {
		return tutor.Review{}, trapDBErr(err, "inserting review")
	}
	return r, nil
}
