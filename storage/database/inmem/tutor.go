package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tutorias/core"
	"github.com/trezcool/tutorias/core/tutor"
)

type tutorRepository struct {
	db *DB
}

var _ tutor.Repository = (*tutorRepository)(nil)

func NewTutorRepository(db *DB) *tutorRepository {
	return &tutorRepository{db: db}
}

func getTutor(txn *memdb.Txn, id int) (tutor.Tutor, error) {
	raw, err := txn.First(tblTutor, idxID, id)
	if err != nil {
		return tutor.Tutor{}, errors.Wrap(err, "reading tutors")
	}
	if raw == nil {
		return tutor.Tutor{}, tutor.ErrNotFound
	}
	return raw.(*tutorRow).Tutor, nil
}

// checkTutorEmail fails when email belongs to a tutor other than id.
func checkTutorEmail(txn *memdb.Txn, email string, id int) error {
	raw, err := txn.First(tblTutor, "email", email)
	if err != nil {
		return errors.Wrap(err, "reading tutors")
	}
	if raw != nil && raw.(*tutorRow).ID != id {
		return core.NewDuplicateKeyError(tblTutor, tutor.ErrEmailExists)
	}
	return nil
}

func (repo *tutorRepository) CreateTutor(_ context.Context, t tutor.Tutor) (tutor.Tutor, error) {
	err := repo.db.update(func(txn *memdb.Txn) error {
		if err := checkTutorEmail(txn, t.Email, 0); err != nil {
			return err
		}
		id, err := nextID(txn, tblTutor)
		if err != nil {
			return err
		}
		t.ID = id
		return errors.Wrap(txn.Insert(tblTutor, &tutorRow{Tutor: t}), "inserting tutors")
	})
	return t, err
}

func (repo *tutorRepository) QueryTutors(_ context.Context) ([]tutor.Tutor, error) {
	it, err := repo.db.read().Get(tblTutor, idxID)
	if err != nil {
		return nil, errors.Wrap(err, "reading tutors")
	}
	tutors := make([]tutor.Tutor, 0)
	for _, raw := range collect(it) {
		tutors = append(tutors, raw.(*tutorRow).Tutor)
	}
	sort.Slice(tutors, func(i, j int) bool {
		return strings.ToLower(tutors[i].Name) < strings.ToLower(tutors[j].Name)
	})
	return tutors, nil
}

func (repo *tutorRepository) GetTutor(_ context.Context, id int) (tutor.Tutor, error) {
	return getTutor(repo.db.read(), id)
}

func (repo *tutorRepository) UpdateTutor(_ context.Context, t tutor.Tutor) (tutor.Tutor, error) {
	err := repo.db.update(func(txn *memdb.Txn) error {
		if _, err := getTutor(txn, t.ID); err != nil {
			return err
		}
		if err := checkTutorEmail(txn, t.Email, t.ID); err != nil {
			return err
		}
		return errors.Wrap(txn.Insert(tblTutor, &tutorRow{Tutor: t}), "updating tutors")
	})
	return t, err
}

func (repo *tutorRepository) DeleteTutor(_ context.Context, id int) (int, error) {
	var cnt int
	err := repo.db.update(func(txn *memdb.Txn) error {
		t, err := getTutor(txn, id)
		if err == tutor.ErrNotFound {
			return nil
		} else if err != nil {
			return err
		}
		if err = txn.Delete(tblTutor, &tutorRow{Tutor: t}); err != nil {
			return errors.Wrap(err, "deleting tutors")
		}
		cnt = 1

		// ON DELETE CASCADE
		if _, err = txn.DeleteAll(tblReview, "tutor_id", id); err != nil {
			return errors.Wrap(err, "deleting reviews")
		}
		// ON DELETE SET NULL
		it, err := txn.Get(tblCourse, "tutor_id", id)
		if err != nil {
			return errors.Wrap(err, "reading courses")
		}
		for _, raw := range collect(it) {
			c := *raw.(*courseRow)
			c.TutorID, c.Tutor = null.Int{}, 0
			if err = txn.Insert(tblCourse, &c); err != nil {
				return errors.Wrap(err, "updating courses")
			}
		}
		it, err = txn.Get(tblStudent, "tutor_id", id)
		if err != nil {
			return errors.Wrap(err, "reading students")
		}
		for _, raw := range collect(it) {
			s := *raw.(*studentRow)
			s.TutorID, s.Tutor = null.Int{}, 0
			if err = txn.Insert(tblStudent, &s); err != nil {
				return errors.Wrap(err, "updating students")
			}
		}
		return nil
	})
	return cnt, err
}

func (repo *tutorRepository) QueryTutorCourses(_ context.Context, id int) ([]tutor.Course, error) {
	it, err := repo.db.read().Get(tblCourse, "tutor_id", id)
	if err != nil {
		return nil, errors.Wrap(err, "reading courses")
	}
	courses := make([]tutor.Course, 0)
	for _, raw := range collect(it) {
		courses = append(courses, raw.(*courseRow).Course)
	}
	sort.Slice(courses, func(i, j int) bool { return courses[i].ID < courses[j].ID })
	return courses, nil
}

func (repo *tutorRepository) QueryTutorStudents(_ context.Context, id int) ([]tutor.StudentRef, error) {
	it, err := repo.db.read().Get(tblStudent, "tutor_id", id)
	if err != nil {
		return nil, errors.Wrap(err, "reading students")
	}
	students := make([]tutor.StudentRef, 0)
	for _, raw := range collect(it) {
		s := raw.(*studentRow)
		students = append(students, tutor.StudentRef{ID: s.ID, Name: s.Name, Status: s.Status})
	}
	sort.Slice(students, func(i, j int) bool { return students[i].ID < students[j].ID })
	return students, nil
}

func (repo *tutorRepository) QueryTutorReviews(_ context.Context, id int) ([]tutor.Review, error) {
	it, err := repo.db.read().Get(tblReview, "tutor_id", id)
	if err != nil {
		return nil, errors.Wrap(err, "reading reviews")
	}
	reviews := make([]tutor.Review, 0)
	for _, raw := range collect(it) {
		reviews = append(reviews, raw.(*reviewRow).Review)
	}
	sort.Slice(reviews, func(i, j int) bool { return reviews[i].ID < reviews[j].ID })
	return reviews, nil
}

func (repo *tutorRepository) CreateCourse(_ context.Context, c tutor.Course) (tutor.Course, error) {
	err := repo.db.update(func(txn *memdb.Txn) error {
		row := courseRow{Course: c}
		if c.TutorID.Valid {
			if _, err := getTutor(txn, c.TutorID.Int); err != nil {
				return err
			}
			row.Tutor = c.TutorID.Int
		}
		id, err := nextID(txn, tblCourse)
		if err != nil {
			return err
		}
		row.ID, c.ID = id, id
		return errors.Wrap(txn.Insert(tblCourse, &row), "inserting courses")
	})
	return c, err
}

func (repo *tutorRepository) CreateReview(_ context.Context, r tutor.Review) (tutor.Review, error) {
	err := repo.db.update(func(txn *memdb.Txn) error {
		if _, err := getTutor(txn, r.TutorID); err != nil {
			return err
		}
		id, err := nextID(txn, tblReview)
		if err != nil {
			return err
		}
		r.ID = id
		return errors.Wrap(txn.Insert(tblReview, &reviewRow{Review: r}), "inserting reviews")
	})
	return r, err
}
