package user

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/tutorias/core"
)

// Roles
const (
	RoleUser      = "user"
	RoleRecruiter = "recruiter"
	RoleTutor     = "tutor"
	RoleAdmin     = "admin"
)

// Statuses
const (
	StatusInactive = 0
	StatusActive   = 1
)

var AllRoles = []string{RoleUser, RoleRecruiter, RoleTutor, RoleAdmin}

// User is a registered identity ("usuario VA"). SocketID, Online and LastSeenAt hold the presence
// projection and are only written by the presence tracker.
type User struct {
	ID              int         `json:"id" db:"id"`
	Nombre          string      `json:"nombre" db:"nombre"`
	Cedula          string      `json:"cedula" db:"cedula"`
	PasswordHash    []byte      `json:"-" db:"password"`
	Role            string      `json:"role" db:"role"`
	Status          int         `json:"status" db:"status"`
	RegistradoPor   null.Int    `json:"registrado_por" db:"registrado_por"`
	TokenRegistrado null.String `json:"token_registrado" db:"token_registrado"`
	SocketID        null.String `json:"socket_id" db:"socket_id"`
	Online          bool        `json:"online" db:"online"`
	LastSeenAt      null.Time   `json:"last_seen_at" db:"last_seen_at"`
	ProfileImage    null.String `json:"profile_image" db:"profile_image"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsActive() bool { return u.Status == StatusActive }
func (u *User) IsAdmin() bool  { return u.Role == RoleAdmin }

// NewUser contains information needed to register a new User.
type NewUser struct {
	Nombre          string `json:"nombre" validate:"required"`
	Cedula          string `json:"cedula" validate:"required,cedula"`
	Password        string `json:"password"`
	Role            string `json:"role" validate:"omitempty,role"`
	TokenRegistrado string `json:"token_registrado"`
	RegistradoPor   *int   `json:"registrado_por" validate:"omitempty,min=1"`
	Status          *int   `json:"status" validate:"omitempty,oneof=0 1"`
}

func (nu *NewUser) Validate(validate *validator.Validate) error {
	nu.Nombre = core.CleanString(nu.Nombre)
	nu.Cedula = core.CleanCedula(nu.Cedula)
	nu.Role = core.CleanString(nu.Role, true /* lower */)
	nu.TokenRegistrado = core.CleanString(nu.TokenRegistrado)
	return validate.Struct(nu)
}

type ResetUserPassword struct {
	Cedula   string `json:"cedula" validate:"required,cedula"`
	Password string `json:"password" validate:"required"`
}

func (rp *ResetUserPassword) Validate(validate *validator.Validate) error {
	rp.Cedula = core.CleanCedula(rp.Cedula)
	return validate.Struct(rp)
}

type LoginRequest struct {
	Cedula   string `json:"cedula" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Cedula = core.CleanCedula(lr.Cedula)
	return validate.Struct(lr)
}

type LookupRequest struct {
	Cedula string `json:"cedula" validate:"required,cedula"`
}

func (lr *LookupRequest) Validate(validate *validator.Validate) error {
	lr.Cedula = core.CleanCedula(lr.Cedula)
	return validate.Struct(lr)
}

type SetRegistrarRequest struct {
	RegistradoPor int `json:"registrado_por" validate:"required,min=1"`
}

// GetFilter selects a single User by ID or by Cedula (ID takes precedence).
type GetFilter struct {
	ID     int
	Cedula string
}
