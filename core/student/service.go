package student

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
	ErrNotFound    = core.NewNotFoundError("Estudiante no encontrado")
	ErrEmailExists = errors.New("El email ya está registrado")

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		// CreateStudent inserts s enrolled in courseIDs; a taken email fails with a core.DuplicateKeyError
		// wrapping ErrEmailExists.
		CreateStudent(ctx context.Context, s Student, courseIDs []int) (Student, error)
		QueryStudents(ctx context.Context, filter Filter) ([]Student, error)
		// GetStudent returns the student with its tutor and courses.
		GetStudent(ctx context.Context, id int) (Student, error)
		// UpdateStudent saves s; courseIDs replaces the enrollments unless nil.
		UpdateStudent(ctx context.Context, s Student, courseIDs *[]int) (Student, error)
		DeleteStudent(ctx context.Context, id int) (int, error)
	}

	ServiceInterface interface {
		Create(ctx context.Context, ns NewStudent) (Student, error)
		Query(ctx context.Context, filter Filter) ([]Student, error)
		GetByID(ctx context.Context, id int) (Student, error)
		Update(ctx context.Context, id int, us UpdateStudent) (Student, error)
		Delete(ctx context.Context, id int) error
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

func (svc *Service) Create(ctx context.Context, ns NewStudent) (Student, error) {
	if err := ns.Validate(svc.validate); err != nil {
		return Student{}, err
	}
	s := Student{
		Name:      ns.Name,
		Email:     ns.Email,
		Status:    StatusActive,
		CreatedAt: NowFunc().UTC(),
	}
	if ns.Status != "" {
		s.Status = ns.Status
	}
	if ns.TutorID != nil {
		s.TutorID = null.IntFrom(*ns.TutorID)
	}
	s, err := svc.repo.CreateStudent(ctx, s, ns.CourseIDs)
	if err != nil {
		return Student{}, errors.Wrap(err, "creating student")
	}
	return svc.repo.GetStudent(ctx, s.ID)
}

// Query lists students ordered by name.
func (svc *Service) Query(ctx context.Context, filter Filter) ([]Student, error) {
	filter.Clean()
	return svc.repo.QueryStudents(ctx, filter)
}

func (svc *Service) GetByID(ctx context.Context, id int) (Student, error) {
	return svc.repo.GetStudent(ctx, id)
}

func (svc *Service) Update(ctx context.Context, id int, us UpdateStudent) (Student, error) {
	if err := us.Validate(svc.validate); err != nil {
		return Student{}, err
	}
	s, err := svc.repo.GetStudent(ctx, id)
	if err != nil {
		return Student{}, err
	}
	us.apply(&s)
	if _, err = svc.repo.UpdateStudent(ctx, s, us.CourseIDs); err != nil {
		return Student{}, errors.Wrap(err, "updating student")
	}
	return svc.repo.GetStudent(ctx, id)
}

func (svc *Service) Delete(ctx context.Context, id int) error {
	cnt, err := svc.repo.DeleteStudent(ctx, id)
	if err != nil {
		return errors.Wrap(err, "deleting student")
	}
	if cnt == 0 {
		return ErrNotFound
	}
	return nil
}
