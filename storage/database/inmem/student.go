package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tutorias/core"
	"github.com/trezcool/tutorias/core/student"
	"github.com/trezcool/tutorias/core/tutor"
)

type studentRepository struct {
	db *DB
}

var _ student.Repository = (*studentRepository)(nil)

func NewStudentRepository(db *DB) *studentRepository {
	return &studentRepository{db: db}
}

func checkStudentEmail(txn *memdb.Txn, email string, id int) error {
	raw, err := txn.First(tblStudent, "email", email)
	if err != nil {
		return errors.Wrap(err, "reading students")
	}
	if raw != nil && raw.(*studentRow).ID != id {
		return core.NewDuplicateKeyError(tblStudent, student.ErrEmailExists)
	}
	return nil
}

func checkStudentRefs(txn *memdb.Txn, s student.Student, courseIDs []int) error {
	if s.TutorID.Valid {
		if _, err := getTutor(txn, s.TutorID.Int); err == tutor.ErrNotFound {
			return core.NewValidationError(nil, core.FieldError{Field: "tutor_id", Error: "tutor no encontrado"})
		} else if err != nil {
			return err
		}
	}
	for _, id := range courseIDs {
		raw, err := txn.First(tblCourse, idxID, id)
		if err != nil {
			return errors.Wrap(err, "reading courses")
		}
		if raw == nil {
			return core.NewValidationError(nil, core.FieldError{Field: "course_ids", Error: "curso no encontrado"})
		}
	}
	return nil
}

func saveStudent(txn *memdb.Txn, s student.Student) error {
	row := studentRow{Student: s}
	row.TutorName, row.TutorEmail, row.Courses = null.String{}, null.String{}, nil
	if s.TutorID.Valid {
		row.Tutor = s.TutorID.Int
	}
	return errors.Wrap(txn.Insert(tblStudent, &row), "saving students")
}

func setEnrollments(txn *memdb.Txn, studentID int, courseIDs []int) error {
	if _, err := txn.DeleteAll(tblStudentCourse, "student_id", studentID); err != nil {
		return errors.Wrap(err, "deleting student_courses")
	}
	for _, courseID := range courseIDs {
		if err := txn.Insert(tblStudentCourse, &studentCourseRow{StudentID: studentID, CourseID: courseID}); err != nil {
			return errors.Wrap(err, "inserting student_courses")
		}
	}
	return nil
}

// hydrate joins the tutor of s.
func hydrate(txn *memdb.Txn, s student.Student) student.Student {
	if s.TutorID.Valid {
		if t, err := getTutor(txn, s.TutorID.Int); err == nil {
			s.TutorName = null.StringFrom(t.Name)
			s.TutorEmail = null.StringFrom(t.Email)
		}
	}
	return s
}

func (repo *studentRepository) CreateStudent(_ context.Context, s student.Student, courseIDs []int) (student.Student, error) {
	err := repo.db.update(func(txn *memdb.Txn) error {
		if err := checkStudentEmail(txn, s.Email, 0); err != nil {
			return err
		}
		if err := checkStudentRefs(txn, s, courseIDs); err != nil {
			return err
		}
		id, err := nextID(txn, tblStudent)
		if err != nil {
			return err
		}
		s.ID = id
		if err = saveStudent(txn, s); err != nil {
			return err
		}
		return setEnrollments(txn, id, courseIDs)
	})
	return s, err
}

func (repo *studentRepository) QueryStudents(_ context.Context, filter student.Filter) ([]student.Student, error) {
	txn := repo.db.read()

	var enrolled map[int]bool
	if filter.CourseID > 0 {
		it, err := txn.Get(tblStudentCourse, "course_id", filter.CourseID)
		if err != nil {
			return nil, errors.Wrap(err, "reading student_courses")
		}
		enrolled = make(map[int]bool)
		for _, raw := range collect(it) {
			enrolled[raw.(*studentCourseRow).StudentID] = true
		}
	}

	it, err := txn.Get(tblStudent, idxID)
	if err != nil {
		return nil, errors.Wrap(err, "reading students")
	}
	name := strings.ToLower(filter.Name)
	students := make([]student.Student, 0)
	for _, raw := range collect(it) {
		s := raw.(*studentRow).Student
		switch {
		case filter.TutorID > 0 && !(s.TutorID.Valid && s.TutorID.Int == filter.TutorID),
			enrolled != nil && !enrolled[s.ID],
			filter.Status != "" && s.Status != filter.Status,
			name != "" && !strings.Contains(strings.ToLower(s.Name), name):
			continue
		}
		students = append(students, hydrate(txn, s))
	}
	sort.SliceStable(students, func(i, j int) bool {
		return strings.ToLower(students[i].Name) < strings.ToLower(students[j].Name)
	})
	return students, nil
}

func (repo *studentRepository) GetStudent(_ context.Context, id int) (student.Student, error) {
	txn := repo.db.read()
	raw, err := txn.First(tblStudent, idxID, id)
	if err != nil {
		return student.Student{}, errors.Wrap(err, "reading students")
	}
	if raw == nil {
		return student.Student{}, student.ErrNotFound
	}
	s := hydrate(txn, raw.(*studentRow).Student)

	it, err := txn.Get(tblStudentCourse, "student_id", id)
	if err != nil {
		return student.Student{}, errors.Wrap(err, "reading student_courses")
	}
	s.Courses = make([]tutor.Course, 0)
	for _, rawSC := range collect(it) {
		rawC, err := txn.First(tblCourse, idxID, rawSC.(*studentCourseRow).CourseID)
		if err != nil {
			return student.Student{}, errors.Wrap(err, "reading courses")
		}
		if rawC != nil {
			s.Courses = append(s.Courses, rawC.(*courseRow).Course)
		}
	}
	sort.Slice(s.Courses, func(i, j int) bool { return s.Courses[i].ID < s.Courses[j].ID })
	return s, nil
}

func (repo *studentRepository) UpdateStudent(_ context.Context, s student.Student, courseIDs *[]int) (student.Student, error) {
	err := repo.db.update(func(txn *memdb.Txn) error {
		raw, err := txn.First(tblStudent, idxID, s.ID)
		if err != nil {
			return errors.Wrap(err, "reading students")
		}
		if raw == nil {
			return student.ErrNotFound
		}
		if err = checkStudentEmail(txn, s.Email, s.ID); err != nil {
			return err
		}
		var ids []int
		if courseIDs != nil {
			ids = *courseIDs
		}
		if err = checkStudentRefs(txn, s, ids); err != nil {
			return err
		}
		if err = saveStudent(txn, s); err != nil {
			return err
		}
		if courseIDs != nil {
			return setEnrollments(txn, s.ID, ids)
		}
		return nil
	})
	return s, err
}

func (repo *studentRepository) DeleteStudent(_ context.Context, id int) (int, error) {
	var cnt int
	err := repo.db.update(func(txn *memdb.Txn) error {
		n, err := txn.DeleteAll(tblStudent, idxID, id)
		if err != nil {
			return errors.Wrap(err, "deleting students")
		}
		cnt = n
		// ON DELETE CASCADE
		_, err = txn.DeleteAll(tblStudentCourse, "student_id", id)
		return errors.Wrap(err, "deleting student_courses")
	})
	return cnt, err
}
