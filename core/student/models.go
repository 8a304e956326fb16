package student

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tutorias/core"
	"github.com/trezcool/tutorias/core/tutor"
)

// Statuses
const (
	StatusActive    = "active"
	StatusInactive  = "inactive"
	StatusGraduated = "graduated"
)

type Student struct {
	ID         int            `json:"id" db:"id"`
	Name       string         `json:"name" db:"name"`
	Email      string         `json:"email" db:"email"`
	TutorID    null.Int       `json:"tutor_id" db:"tutor_id"`
	Status     string         `json:"status" db:"status"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"` // UTC
	TutorName  null.String    `json:"tutor_name" db:"tutor_name"`
	TutorEmail null.String    `json:"tutor_email" db:"tutor_email"`
	Courses    []tutor.Course `json:"courses,omitempty" db:"-"`
}

type NewStudent struct {
	Name      string `json:"name" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	TutorID   *int   `json:"tutor_id" validate:"omitempty,min=1"`
	Status    string `json:"status" validate:"omitempty,oneof=active inactive graduated"`
	CourseIDs []int  `json:"course_ids" validate:"omitempty,dive,min=1"`
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	ns.Status = core.CleanString(ns.Status, true /* lower */)
	return validate.Struct(ns)
}

type UpdateStudent struct {
	Name      string `json:"name"`
	Email     string `json:"email" validate:"omitempty,email"`
	TutorID   *int   `json:"tutor_id" validate:"omitempty,min=0"` // 0 unassigns
	Status    string `json:"status" validate:"omitempty,oneof=active inactive graduated"`
	CourseIDs *[]int `json:"course_ids"`
}

func (us *UpdateStudent) Validate(validate *validator.Validate) error {
	us.Name = core.CleanString(us.Name)
	us.Email = core.CleanString(us.Email, true /* lower */)
	us.Status = core.CleanString(us.Status, true /* lower */)
	return validate.Struct(us)
}

func (us UpdateStudent) apply(s *Student) {
	if us.Name != "" {
		s.Name = us.Name
	}
	if us.Email != "" {
		s.Email = us.Email
	}
	if us.Status != "" {
		s.Status = us.Status
	}
	if us.TutorID != nil {
		s.TutorID = null.NewInt(*us.TutorID, *us.TutorID > 0)
	}
}

// Filter narrows student listings. Zero values are ignored; Name matches case-insensitive substrings.
type Filter struct {
	TutorID  int    `query:"tutorId"`
	CourseID int    `query:"courseId"`
	Status   string `query:"status"`
	Name     string `query:"name"`
}

func (f *Filter) Clean() {
	f.Status = core.CleanString(f.Status, true /* lower */)
	f.Name = core.CleanString(f.Name)
}
