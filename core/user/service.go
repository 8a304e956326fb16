package user

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
	ErrNotFound           = core.NewNotFoundError("Usuario no encontrado")
	ErrCedulaExists       = errors.New("La cédula ya está registrada")
	ErrRegistrarCycle     = errors.New("el registrador indicado crearía un ciclo en la red de registro")
	ErrInvalidCredentials = errors.New("credenciales inválidas")

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		// CreateUser inserts usr; a taken cedula fails with a core.DuplicateKeyError wrapping ErrCedulaExists.
		CreateUser(ctx context.Context, usr User) (User, error)
		QueryUsers(ctx context.Context) ([]User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		UpdatePassword(ctx context.Context, id int, hash []byte) error
		// SetRegistrar points id at registrarID unless registrarID descends from id (ErrRegistrarCycle).
		// The ancestry check and the update happen atomically.
		SetRegistrar(ctx context.Context, id, registrarID int) (User, error)
		DeleteUsersByID(ctx context.Context, ids ...int) (int, error)
	}

	ServiceInterface interface {
		Register(ctx context.Context, nu NewUser) (User, error)
		Query(ctx context.Context) ([]User, error)
		GetByID(ctx context.Context, id int) (User, error)
		GetByCedula(ctx context.Context, cedula string) (User, error)
		Authenticate(ctx context.Context, cedula, pwd string) (User, error)
		ResetPassword(ctx context.Context, data ResetUserPassword) error
		SetRegistrar(ctx context.Context, id, registrarID int) (User, error)
		Delete(ctx context.Context, ids ...int) error
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

// Register creates a new identity. The cedula is the initial credential unless a password is given.
func (svc *Service) Register(ctx context.Context, nu NewUser) (User, error) {
	if err := nu.Validate(svc.validate); err != nil {
		return User{}, err
	}

	usr := User{
		Nombre:    nu.Nombre,
		Cedula:    nu.Cedula,
		Role:      RoleUser,
		Status:    StatusInactive,
		CreatedAt: NowFunc().UTC(),
	}
	if nu.Role != "" {
		usr.Role = nu.Role
	}
	if nu.Status != nil {
		usr.Status = *nu.Status
	}
	if nu.TokenRegistrado != "" {
		usr.TokenRegistrado = null.StringFrom(nu.TokenRegistrado)
	}
	if nu.RegistradoPor != nil {
		if _, err := svc.repo.GetUser(ctx, GetFilter{ID: *nu.RegistradoPor}); err != nil {
			if errors.Cause(err) == ErrNotFound {
				return User{}, core.NewValidationError(nil, core.FieldError{Field: "registrado_por", Error: "registrador no encontrado"})
			}
			return User{}, errors.Wrap(err, "finding registrar")
		}
		usr.RegistradoPor = null.IntFrom(*nu.RegistradoPor)
	}

	pwd := nu.Password
	if pwd == "" {
		pwd = nu.Cedula
	}
	if err := usr.SetPassword(pwd); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}

	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return User{}, errors.Wrap(err, "creating user")
	}
	svc.logger.Info("user registered", map[string]interface{}{"id": usr.ID, "registrado_por": usr.RegistradoPor})
	return usr, nil
}

func (svc *Service) Query(ctx context.Context) ([]User, error) {
	return svc.repo.QueryUsers(ctx)
}

func (svc *Service) GetByID(ctx context.Context, id int) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByCedula(ctx context.Context, cedula string) (User, error) {
	cedula = core.CleanCedula(cedula)
	if cedula == "" {
		return User{}, ErrNotFound
	}
	return svc.repo.GetUser(ctx, GetFilter{Cedula: cedula})
}

// Authenticate checks the credentials of the identity owning cedula.
func (svc *Service) Authenticate(ctx context.Context, cedula, pwd string) (User, error) {
	usr, err := svc.GetByCedula(ctx, cedula)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, ErrInvalidCredentials
		}
		return User{}, errors.Wrap(err, "finding user by cedula")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return usr, nil
}

func (svc *Service) ResetPassword(ctx context.Context, data ResetUserPassword) error {
	if err := data.Validate(svc.validate); err != nil {
		return err
	}
	usr, err := svc.GetByCedula(ctx, data.Cedula)
	if err != nil {
		return errors.Wrap(err, "finding user by cedula")
	}
	if err = usr.SetPassword(data.Password); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	return errors.Wrap(svc.repo.UpdatePassword(ctx, usr.ID, usr.PasswordHash), "updating password")
}

// SetRegistrar re-parents id under registrarID in the registration tree.
func (svc *Service) SetRegistrar(ctx context.Context, id, registrarID int) (User, error) {
	if id == registrarID {
		return User{}, core.NewValidationError(ErrRegistrarCycle, core.FieldError{Field: "registrado_por", Error: ErrRegistrarCycle.Error()})
	}
	if _, err := svc.GetByID(ctx, registrarID); err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, core.NewValidationError(nil, core.FieldError{Field: "registrado_por", Error: "registrador no encontrado"})
		}
		return User{}, errors.Wrap(err, "finding registrar")
	}

	usr, err := svc.repo.SetRegistrar(ctx, id, registrarID)
	if err != nil {
		if errors.Cause(err) == ErrRegistrarCycle {
			return User{}, core.NewValidationError(ErrRegistrarCycle, core.FieldError{Field: "registrado_por", Error: ErrRegistrarCycle.Error()})
		}
		return User{}, errors.Wrap(err, "setting registrar")
	}
	return usr, nil
}

func (svc *Service) Delete(ctx context.Context, ids ...int) error {
	cnt, err := svc.repo.DeleteUsersByID(ctx, ids...)
	if err != nil {
		return errors.Wrap(err, "deleting users")
	}
	if cnt == 0 {
		return ErrNotFound
	}
	return nil
}
