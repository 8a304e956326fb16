package tutor

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tutorias/core"
)

type Tutor struct {
	ID             int         `json:"id" db:"id"`
	Name           string      `json:"name" db:"name"`
	Email          string      `json:"email" db:"email"`
	Position       null.String `json:"position" db:"position"`
	Specialization null.String `json:"specialization" db:"specialization"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"` // UTC
	UpdatedAt      time.Time   `json:"updated_at" db:"updated_at"` // UTC
}

type Course struct {
	ID          int         `json:"id" db:"id"`
	Name        string      `json:"name" db:"name"`
	Description null.String `json:"description" db:"description"`
	TutorID     null.Int    `json:"tutor_id" db:"tutor_id"`
}

type Review struct {
	ID      int    `json:"id" db:"id"`
	TutorID int    `json:"-" db:"tutor_id"`
	Comment string `json:"comment" db:"comment"`
	Rating  int    `json:"rating" db:"rating"`
}

type StudentRef struct {
	ID     int    `json:"id" db:"id"`
	Name   string `json:"name" db:"name"`
	Status string `json:"status" db:"status"`
}

// Details is the tutor profile: the tutor with their courses, students and reviews.
type Details struct {
	Tutor
	Courses       []Course     `json:"courses"`
	Students      []StudentRef `json:"students"`
	Reviews       []Review     `json:"reviews"`
	AverageRating float64      `json:"average_rating"`
}

type NewTutor struct {
	Name           string `json:"name" validate:"required"`
	Email          string `json:"email" validate:"required,email"`
	Position       string `json:"position"`
	Specialization string `json:"specialization"`
}

func (nt *NewTutor) Validate(validate *validator.Validate) error {
	nt.Name = core.CleanString(nt.Name)
	nt.Email = core.CleanString(nt.Email, true /* lower */)
	nt.Position = core.CleanString(nt.Position)
	nt.Specialization = core.CleanString(nt.Specialization)
	return validate.Struct(nt)
}

type UpdateTutor struct {
	Name           string  `json:"name" validate:"omitempty"`
	Email          string  `json:"email" validate:"omitempty,email"`
	Position       *string `json:"position"`
	Specialization *string `json:"specialization"`
}

func (ut *UpdateTutor) Validate(validate *validator.Validate) error {
	ut.Name = core.CleanString(ut.Name)
	ut.Email = core.CleanString(ut.Email, true /* lower */)
	return validate.Struct(ut)
}

func (ut UpdateTutor) apply(t *Tutor) {
	if ut.Name != "" {
		t.Name = ut.Name
	}
	if ut.Email != "" {
		t.Email = ut.Email
	}
	if ut.Position != nil {
		t.Position = optString(*ut.Position)
	}
	if ut.Specialization != nil {
		t.Specialization = optString(*ut.Specialization)
	}
}

func optString(s string) null.String {
	s = core.CleanString(s)
	return null.NewString(s, s != "")
}

type NewCourse struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	return validate.Struct(nc)
}

type NewReview struct {
	Comment string `json:"comment" validate:"required"`
	Rating  int    `json:"rating" validate:"omitempty,min=1,max=5"`
}

func (nr *NewReview) Validate(validate *validator.Validate) error {
	nr.Comment = core.CleanString(nr.Comment)
	if nr.Rating == 0 {
		nr.Rating = 5
	}
	return validate.Struct(nr)
}
