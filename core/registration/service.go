package registration

import (
	"context"
	"net/mail"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tutorias/core"
	"github.com/trezcool/tutorias/core/user"
)

var (
	// errors
	ErrNotFound           = core.NewNotFoundError("Formulario no encontrado")
	ErrFormExists         = errors.New("La cédula ya tiene un formulario registrado")
	ErrRegistrantNotFound = core.NewNotFoundError("El usuario asociado al formulario no existe")
	ErrCedulaMismatch     = errors.New("la cédula no coincide con la del usuario asociado")

	NowFunc = time.Now // mockable
)

type (
	// Tx is the set of writes a submission performs inside a single transaction.
	Tx interface {
		GetUser(ctx context.Context, filter user.GetFilter) (user.User, error)
		// ActivateUser sets status=1 on id and returns the updated row.
		ActivateUser(ctx context.Context, id int) (user.User, error)
		CreateUser(ctx context.Context, usr user.User) (user.User, error)
		// CreateForm inserts f; a cedula that already has a form fails with a
		// core.DuplicateKeyError wrapping ErrFormExists.
		CreateForm(ctx context.Context, f Form) (Form, error)
	}

	Repository interface {
		// WithinTx runs fn in a transaction: it commits when fn returns nil and rolls back
		// otherwise. The underlying connection is released on every path.
		WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
		QueryForms(ctx context.Context) ([]Form, error)
		GetFormByCedula(ctx context.Context, cedula string) (Form, error)
	}

	UserQuerier interface {
		QueryUsers(ctx context.Context) ([]user.User, error)
	}

	ServiceInterface interface {
		Submit(ctx context.Context, nf NewForm, originIP string) (Result, error)
		Forest(ctx context.Context) ([]*Node, error)
		GetByCedula(ctx context.Context, cedula string) (Form, error)
	}

	Service struct {
		repo     Repository
		users    UserQuerier
		mailSvc  core.EmailService
		logger   core.Logger
		validate *validator.Validate
		// unresolved is the core.UnresolvedRegistrant* policy for unknown NewForm.UserID.
		unresolved string
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(
	repo Repository,
	users UserQuerier,
	mailSvc core.EmailService,
	logger core.Logger,
	validate *validator.Validate,
	conf *core.Config,
) *Service {
	return &Service{
		repo:       repo,
		users:      users,
		mailSvc:    mailSvc,
		logger:     logger,
		validate:   validate,
		unresolved: conf.Registration.UnresolvedRegistrant,
	}
}

// Submit stores a registration form and its registrant identity atomically.
// The registrant is either the existing identity NewForm.UserID (re-activated) or a new active
// identity keyed by the cedula, whose initial credential is the cedula itself.
func (svc *Service) Submit(ctx context.Context, nf NewForm, originIP string) (Result, error) {
	if err := nf.Validate(svc.validate); err != nil {
		return Result{}, err
	}

	// hash outside of the transaction: no connection is held while bcrypt runs
	newUsr := user.User{
		Nombre: nf.fullName(),
		Cedula: nf.Cedula,
		Role:   user.RoleUser,
		Status: user.StatusActive,
	}
	if err := newUsr.SetPassword(nf.Cedula); err != nil {
		return Result{}, errors.Wrap(err, "hashing password")
	}

	// a client going away must not abort the transaction half-way
	ctx = context.WithoutCancel(ctx)

	now := NowFunc().UTC()
	var res Result
	err := svc.repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		res = Result{}
		usr, err := svc.resolveRegistrant(ctx, tx, nf)
		if err != nil {
			return err
		}

		if usr.ID == 0 {
			if nf.RegistradoPor != nil {
				if _, err = tx.GetUser(ctx, user.GetFilter{ID: *nf.RegistradoPor}); err != nil {
					if errors.Cause(err) == user.ErrNotFound {
						return core.NewValidationError(nil, core.FieldError{Field: "registrado_por", Error: "registrador no encontrado"})
					}
					return errors.Wrap(err, "finding registrar")
				}
				newUsr.RegistradoPor = null.IntFrom(*nf.RegistradoPor)
			}
			newUsr.CreatedAt = now
			if usr, err = tx.CreateUser(ctx, newUsr); err != nil {
				return errors.Wrap(err, "creating user")
			}
			res.IsNewUser = true
		}

		form, err := tx.CreateForm(ctx, nf.toForm(usr.ID, originIP, now))
		if err != nil {
			return errors.Wrap(err, "creating form")
		}
		res.FormID = form.ID
		res.UserID = usr.ID
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	svc.logger.Info("registration form submitted", map[string]interface{}{
		"form_id": res.FormID, "user_id": res.UserID, "new_user": res.IsNewUser,
	})
	svc.sendWelcome(nf, now)
	return res, nil
}

// resolveRegistrant returns the re-activated identity NewForm.UserID, or a zero User when a new
// identity must be created.
func (svc *Service) resolveRegistrant(ctx context.Context, tx Tx, nf NewForm) (user.User, error) {
	if nf.UserID == nil {
		return user.User{}, nil
	}

	usr, err := tx.GetUser(ctx, user.GetFilter{ID: *nf.UserID})
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return user.User{}, errors.Wrap(err, "finding registrant")
		}
		if svc.unresolved == core.UnresolvedRegistrantFail {
			return user.User{}, ErrRegistrantNotFound
		}
		svc.logger.Warn("registrant not found, creating a new user", map[string]interface{}{"user_id": *nf.UserID})
		return user.User{}, nil
	}

	if usr.Cedula != nf.Cedula {
		return user.User{}, core.NewValidationError(ErrCedulaMismatch, core.FieldError{Field: "cedula", Error: ErrCedulaMismatch.Error()})
	}
	usr, err = tx.ActivateUser(ctx, usr.ID)
	if err != nil {
		return user.User{}, errors.Wrap(err, "activating registrant")
	}
	return usr, nil
}

func (svc *Service) sendWelcome(nf NewForm, now time.Time) {
	if nf.Correo == "" || svc.mailSvc == nil {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: nf.fullName(), Address: nf.Correo}},
		Subject:      "Registro recibido",
		TemplateName: "welcome",
		TemplateData: map[string]interface{}{
			"Nombre":     nf.Nombre,
			"FechaEnvio": now.Format("02/01/2006 15:04"),
		},
	})
}

// Forest returns the registration forest: roots are identities without a (known) registrar.
// Identities caught in a registrar cycle are promoted to roots so that every identity appears once.
func (svc *Service) Forest(ctx context.Context) ([]*Node, error) {
	users, err := svc.users.QueryUsers(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	forms, err := svc.repo.QueryForms(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying forms")
	}
	return buildForest(users, forms), nil
}

func buildForest(users []user.User, forms []Form) []*Node {
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })

	nodes := make(map[int]*Node, len(users))
	for _, u := range users {
		nodes[u.ID] = &Node{User: u, Formularios: []Form{}, Registrados: []*Node{}}
	}
	for _, f := range forms {
		if n, ok := nodes[f.UserID]; ok {
			n.Formularios = append(n.Formularios, f)
		}
	}

	children := make(map[int][]int, len(users))
	var rootIDs []int
	for _, u := range users {
		if u.RegistradoPor.Valid {
			if _, ok := nodes[u.RegistradoPor.Int]; ok {
				children[u.RegistradoPor.Int] = append(children[u.RegistradoPor.Int], u.ID)
				continue
			}
		}
		rootIDs = append(rootIDs, u.ID)
	}

	visited := make(map[int]bool, len(users))
	var attach func(id int) *Node
	attach = func(id int) *Node {
		visited[id] = true
		n := nodes[id]
		for _, childID := range children[id] {
			if !visited[childID] {
				n.Registrados = append(n.Registrados, attach(childID))
			}
		}
		return n
	}

	forest := make([]*Node, 0, len(rootIDs))
	for _, id := range rootIDs {
		forest = append(forest, attach(id))
	}
	// cycles have no root
	for _, u := range users {
		if !visited[u.ID] {
			forest = append(forest, attach(u.ID))
		}
	}
	return forest
}

func (svc *Service) GetByCedula(ctx context.Context, cedula string) (Form, error) {
	cedula = core.CleanCedula(cedula)
	if cedula == "" {
		return Form{}, ErrNotFound
	}
	return svc.repo.GetFormByCedula(ctx, cedula)
}
