package tutor

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tutorias/core"
)

var (
	// errors
	ErrNotFound    = core.NewNotFoundError("Tutor no encontrado")
	ErrEmailExists = errors.New("El email ya está registrado")

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		// CreateTutor inserts t; a taken email fails with a core.DuplicateKeyError wrapping ErrEmailExists.
		CreateTutor(ctx context.Context, t Tutor) (Tutor, error)
		QueryTutors(ctx context.Context) ([]Tutor, error)
		GetTutor(ctx context.Context, id int) (Tutor, error)
		UpdateTutor(ctx context.Context, t Tutor) (Tutor, error)
		DeleteTutor(ctx context.Context, id int) (int, error)
		QueryTutorCourses(ctx context.Context, id int) ([]Course, error)
		QueryTutorStudents(ctx context.Context, id int) ([]StudentRef, error)
		QueryTutorReviews(ctx context.Context, id int) ([]Review, error)
		CreateCourse(ctx context.Context, c Course) (Course, error)
		CreateReview(ctx context.Context, r Review) (Review, error)
	}

	ServiceInterface interface {
		Create(ctx context.Context, nt NewTutor) (Tutor, error)
		Query(ctx context.Context) ([]Tutor, error)
		GetByID(ctx context.Context, id int) (Tutor, error)
		Update(ctx context.Context, id int, ut UpdateTutor) (Tutor, error)
		Delete(ctx context.Context, id int) error
		Details(ctx context.Context, id int) (Details, error)
		AddCourse(ctx context.Context, id int, nc NewCourse) (Course, error)
		AddReview(ctx context.Context, id int, nr NewReview) (Review, error)
	}

	Service struct {
		repo     Repository
		logger   core.Logger
		validate *validator.Validate
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository, logger core.Logger, validate *validator.Validate) *Service {
	return &Service{repo: repo, logger: logger, validate: validate}
}

func (svc *Service) Create(ctx context.Context, nt NewTutor) (Tutor, error) {
	if err := nt.Validate(svc.validate); err != nil {
		return Tutor{}, err
	}
	now := NowFunc().UTC()
	t, err := svc.repo.CreateTutor(ctx, Tutor{
		Name:           nt.Name,
		Email:          nt.Email,
		Position:       optString(nt.Position),
		Specialization: optString(nt.Specialization),
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	return t, errors.Wrap(err, "creating tutor")
}

func (svc *Service) Query(ctx context.Context) ([]Tutor, error) {
	return svc.repo.QueryTutors(ctx)
}

func (svc *Service) GetByID(ctx context.Context, id int) (Tutor, error) {
	return svc.repo.GetTutor(ctx, id)
}

func (svc *Service) Update(ctx context.Context, id int, ut UpdateTutor) (Tutor, error) {
	if err := ut.Validate(svc.validate); err != nil {
		return Tutor{}, err
	}
	t, err := svc.repo.GetTutor(ctx, id)
	if err != nil {
		return Tutor{}, err
	}
	ut.apply(&t)
	t.UpdatedAt = NowFunc().UTC()
	t, err = svc.repo.UpdateTutor(ctx, t)
	return t, errors.Wrap(err, "updating tutor")
}

func (svc *Service) Delete(ctx context.Context, id int) error {
	cnt, err := svc.repo.DeleteTutor(ctx, id)
	if err != nil {
		return errors.Wrap(err, "deleting tutor")
	}
	if cnt == 0 {
		return ErrNotFound
	}
	return nil
}

// Details returns the tutor profile of id.
func (svc *Service) Details(ctx context.Context, id int) (Details, error) {
	t, err := svc.repo.GetTutor(ctx, id)
	if err != nil {
		return Details{}, err
	}
	d := Details{Tutor: t}
	if d.Courses, err = svc.repo.QueryTutorCourses(ctx, id); err != nil {
		return Details{}, errors.Wrap(err, "querying courses")
	}
	if d.Students, err = svc.repo.QueryTutorStudents(ctx, id); err != nil {
		return Details{}, errors.Wrap(err, "querying students")
	}
	if d.Reviews, err = svc.repo.QueryTutorReviews(ctx, id); err != nil {
		return Details{}, errors.Wrap(err, "querying reviews")
	}
	if d.Courses == nil {
		d.Courses = []Course{}
	}
	if d.Students == nil {
		d.Students = []StudentRef{}
	}
	if d.Reviews == nil {
		d.Reviews = []Review{}
	}
	if len(d.Reviews) > 0 {
		var total int
		for _, r := range d.Reviews {
			total += r.Rating
		}
		d.AverageRating = float64(total) / float64(len(d.Reviews))
	}
	return d, nil
}

func (svc *Service) AddCourse(ctx context.Context, id int, nc NewCourse) (Course, error) {
	if err := nc.Validate(svc.validate); err != nil {
		return Course{}, err
	}
	if _, err := svc.repo.GetTutor(ctx, id); err != nil {
		return Course{}, err
	}
	c, err := svc.repo.CreateCourse(ctx, Course{
		Name:        nc.Name,
		Description: optString(nc.Description),
		TutorID:     null.IntFrom(id),
	})
	return c, errors.Wrap(err, "creating course")
}

func (svc *Service) AddReview(ctx context.Context, id int, nr NewReview) (Review, error) {
	if err := nr.Validate(svc.validate); err != nil {
		return Review{}, err
	}
	if _, err := svc.repo.GetTutor(ctx, id); err != nil {
		return Review{}, err
	}
	r, err := svc.repo.CreateReview(ctx, Review{TutorID: id, Comment: nr.Comment, Rating: nr.Rating})
	return r, errors.Wrap(err, "creating review")
}
