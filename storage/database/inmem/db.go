package inmemdb

import (
	"sync"

	"github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"

	"github.com/trezcool/tutorias/core/call"
	"github.com/trezcool/tutorias/core/registration"
	"github.com/trezcool/tutorias/core/student"
	"github.com/trezcool/tutorias/core/tutor"
	"github.com/trezcool/tutorias/core/user"
)

const (
	tblUser          = "usersva"
	tblForm          = "formularios_va"
	tblCall          = "call_attempts"
	tblTutor         = "tutors"
	tblCourse        = "courses"
	tblStudent       = "students"
	tblStudentCourse = "student_courses"
	tblReview        = "reviews"
	tblSequence      = "sequences"

	idxID = "id"
)

type (
	// userRow indexes the live session of a user.User. Session is empty when offline.
	userRow struct {
		user.User
		Session string
	}

	formRow struct {
		registration.Form
	}

	callRow struct {
		call.Attempt
	}

	tutorRow struct {
		tutor.Tutor
	}

	courseRow struct {
		tutor.Course
		Tutor int // 0 when unassigned
	}

	studentRow struct {
		student.Student
		Tutor int // 0 when unassigned
	}

	studentCourseRow struct {
		StudentID int
		CourseID  int
	}

	reviewRow struct {
		tutor.Review
	}

	sequence struct {
		Name  string
		Value int
	}
)

func idIndex() *memdb.IndexSchema {
	return &memdb.IndexSchema{Name: idxID, Unique: true, Indexer: &memdb.IntFieldIndex{Field: "ID"}}
}

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tblUser: {
				Name: tblUser,
				Indexes: map[string]*memdb.IndexSchema{
					idxID:     idIndex(),
					"cedula":  {Name: "cedula", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "Cedula"}},
					"session": {Name: "session", Unique: true, AllowMissing: true, Indexer: &memdb.StringFieldIndex{Field: "Session"}},
				},
			},
			tblForm: {
				Name: tblForm,
				Indexes: map[string]*memdb.IndexSchema{
					idxID:     idIndex(),
					"cedula":  {Name: "cedula", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "Cedula"}},
					"user_id": {Name: "user_id", Indexer: &memdb.IntFieldIndex{Field: "UserID"}},
				},
			},
			tblCall: {
				Name: tblCall,
				Indexes: map[string]*memdb.IndexSchema{
					idxID:       idIndex(),
					"caller_id": {Name: "caller_id", Indexer: &memdb.IntFieldIndex{Field: "CallerID"}},
					"callee_id": {Name: "callee_id", Indexer: &memdb.IntFieldIndex{Field: "CalleeID"}},
				},
			},
			tblTutor: {
				Name: tblTutor,
				Indexes: map[string]*memdb.IndexSchema{
					idxID:   idIndex(),
					"email": {Name: "email", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "Email", Lowercase: true}},
				},
			},
			tblCourse: {
				Name: tblCourse,
				Indexes: map[string]*memdb.IndexSchema{
					idxID:      idIndex(),
					"tutor_id": {Name: "tutor_id", AllowMissing: true, Indexer: &memdb.IntFieldIndex{Field: "Tutor"}},
				},
			},
			tblStudent: {
				Name: tblStudent,
				Indexes: map[string]*memdb.IndexSchema{
					idxID:      idIndex(),
					"email":    {Name: "email", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "Email", Lowercase: true}},
					"tutor_id": {Name: "tutor_id", AllowMissing: true, Indexer: &memdb.IntFieldIndex{Field: "Tutor"}},
				},
			},
			tblStudentCourse: {
				Name: tblStudentCourse,
				Indexes: map[string]*memdb.IndexSchema{
					idxID: {
						Name:   idxID,
						Unique: true,
						Indexer: &memdb.CompoundIndex{Indexes: []memdb.Indexer{
							&memdb.IntFieldIndex{Field: "StudentID"},
							&memdb.IntFieldIndex{Field: "CourseID"},
						}},
					},
					"student_id": {Name: "student_id", Indexer: &memdb.IntFieldIndex{Field: "StudentID"}},
					"course_id":  {Name: "course_id", Indexer: &memdb.IntFieldIndex{Field: "CourseID"}},
				},
			},
			tblReview: {
				Name: tblReview,
				Indexes: map[string]*memdb.IndexSchema{
					idxID:      idIndex(),
					"tutor_id": {Name: "tutor_id", Indexer: &memdb.IntFieldIndex{Field: "TutorID"}},
				},
			},
			tblSequence: {
				Name: tblSequence,
				Indexes: map[string]*memdb.IndexSchema{
					idxID: {Name: idxID, Unique: true, Indexer: &memdb.StringFieldIndex{Field: "Name"}},
				},
			},
		},
	}
}

// DB is a transactional in-memory store with the same constraints as the SQL schema.
// Write transactions are serialized by go-memdb; readers see consistent snapshots.
type DB struct {
	mu  sync.RWMutex // guards mdb, swapped by Reset
	mdb *memdb.MemDB
}

func Open() (*DB, error) {
	mdb, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, errors.Wrap(err, "creating memdb")
	}
	return &DB{mdb: mdb}, nil
}

// Reset drops every row. Meant for tests.
func (db *DB) Reset() error {
	mdb, err := memdb.NewMemDB(schema())
	if err != nil {
		return errors.Wrap(err, "creating memdb")
	}
	db.mu.Lock()
	db.mdb = mdb
	db.mu.Unlock()
	return nil
}

func (db *DB) store() *memdb.MemDB {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.mdb
}

// update runs fn in a write transaction committed only when fn succeeds.
func (db *DB) update(fn func(txn *memdb.Txn) error) error {
	txn := db.store().Txn(true)
	defer txn.Abort() // no-op after Commit
	if err := fn(txn); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (db *DB) read() *memdb.Txn {
	return db.store().Txn(false)
}

// nextID returns the next primary key of table within txn, so that aborted inserts do not burn ids.
func nextID(txn *memdb.Txn, table string) (int, error) {
	raw, err := txn.First(tblSequence, idxID, table)
	if err != nil {
		return 0, errors.Wrap(err, "reading sequence")
	}
	seq := sequence{Name: table}
	if raw != nil {
		seq.Value = raw.(*sequence).Value
	}
	seq.Value++
	if err = txn.Insert(tblSequence, &seq); err != nil {
		return 0, errors.Wrap(err, "updating sequence")
	}
	return seq.Value, nil
}

// collect drains it into a slice of rows.
func collect(it memdb.ResultIterator) []interface{} {
	var rows []interface{}
	for raw := it.Next(); raw != nil; raw = it.Next() {
		rows = append(rows, raw)
	}
	return rows
}
