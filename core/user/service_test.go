package user_test

import (
	"context"
	"testing"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tutorias/core"
	"github.com/trezcool/tutorias/core/user"
	inmemdb "github.com/trezcool/tutorias/storage/database/inmem"
	testutil "github.com/trezcool/tutorias/tests"
)

func setup(t *testing.T) (*user.Service, user.Repository, ut.Translator) {
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	repo := inmemdb.NewUserRepository(db)
	validate, translator := testutil.NewValidator()
	return user.NewService(repo, new(testutil.Logger), validate), repo, translator
}

// fieldErrors translates the validation errors of err.
func fieldErrors(t *testing.T, err error, translator ut.Translator) map[string]string {
	var vErrs validator.ValidationErrors
	require.True(t, errors.As(err, &vErrs), "not a validation error: %v", err)
	out := make(map[string]string, len(vErrs))
	for _, e := range vErrs {
		out[e.Field()] = e.Translate(translator)
	}
	return out
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()
	svc, repo, translator := setup(t)
	registrar := testutil.CreateUser(t, repo, "Marta", "00900000099", "", user.RoleUser, user.StatusActive)
	active := user.StatusActive

	tests := []struct {
		name       string
		nu         user.NewUser
		wantFields map[string]string
		wantErr    string
	}{
		{name: "no data", wantFields: map[string]string{"nombre": "this field is required", "cedula": "this field is required"}},
		{name: "invalid role", nu: user.NewUser{Nombre: "Ana", Cedula: "00100000011", Role: "king"}, wantFields: map[string]string{"role": "invalid role"}},
		{name: "short password", nu: user.NewUser{Nombre: "Ana", Cedula: "00100000011", Password: "abc"}, wantFields: map[string]string{"password": "password must contain at least 8 characters"}},
		{name: "spaced password", nu: user.NewUser{Nombre: "Ana", Cedula: "00100000011", Password: "abc defgh"}, wantFields: map[string]string{"password": "password must not contain whitespace"}},
		{name: "similar password", nu: user.NewUser{Nombre: "Anabella Pérez", Cedula: "00100000011", Password: "anabellaperez"}, wantFields: map[string]string{"password": "password cannot be similar to user attributes"}},
		{name: "unknown registrar", nu: user.NewUser{Nombre: "Ana", Cedula: "00100000011", RegistradoPor: &[]int{999}[0]}, wantErr: "registrado_por: registrador no encontrado"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.nu)
			require.Error(t, err)
			if tt.wantFields != nil {
				assert.Equal(t, tt.wantFields, fieldErrors(t, err, translator))
			} else {
				assert.EqualError(t, err, tt.wantErr)
			}
		})
	}

	// defaults
	usr, err := svc.Register(ctx, user.NewUser{Nombre: " Ana ", Cedula: "001-0000001-1", RegistradoPor: &registrar.ID})
	require.NoError(t, err)
	assert.Equal(t, "Ana", usr.Nombre)
	assert.Equal(t, "00100000011", usr.Cedula)
	assert.Equal(t, user.RoleUser, usr.Role)
	assert.Equal(t, user.StatusInactive, usr.Status)
	assert.Equal(t, registrar.ID, usr.RegistradoPor.Int)
	assert.NoError(t, usr.CheckPassword("00100000011"))

	// explicit attributes
	usr, err = svc.Register(ctx, user.NewUser{Nombre: "Luis", Cedula: "00200000022", Password: "Sup3rSecreto", Role: "TUTOR", Status: &active, TokenRegistrado: " tok "})
	require.NoError(t, err)
	assert.Equal(t, user.RoleTutor, usr.Role)
	assert.True(t, usr.IsActive())
	assert.Equal(t, "tok", usr.TokenRegistrado.String)
	assert.NoError(t, usr.CheckPassword("Sup3rSecreto"))

	_, err = svc.Register(ctx, user.NewUser{Nombre: "Otro", Cedula: "00200000022"})
	assert.True(t, core.IsDuplicateKey(err))
	assert.EqualError(t, errors.Cause(err), user.ErrCedulaExists.Error())
}

func TestService_Authenticate(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := setup(t)
	usr := testutil.CreateUser(t, repo, "Ana", "00100000011", "Sup3rSecreto", user.RoleUser, user.StatusActive)

	tests := []struct {
		name    string
		cedula  string
		pwd     string
		wantErr error
	}{
		{name: "no cedula", pwd: "Sup3rSecreto", wantErr: user.ErrInvalidCredentials},
		{name: "unknown cedula", cedula: "00200000022", pwd: "Sup3rSecreto", wantErr: user.ErrInvalidCredentials},
		{name: "wrong password", cedula: "00100000011", pwd: "lol", wantErr: user.ErrInvalidCredentials},
		{name: "OK", cedula: "001-0000001-1", pwd: "Sup3rSecreto"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Authenticate(ctx, tt.cedula, tt.pwd)
			assert.Equal(t, tt.wantErr, err)
			if tt.wantErr == nil {
				assert.Equal(t, usr.ID, got.ID)
			}
		})
	}
}

func TestService_ResetPassword(t *testing.T) {
	ctx := context.Background()
	svc, repo, translator := setup(t)
	testutil.CreateUser(t, repo, "Ana", "00100000011", "Sup3rSecreto", user.RoleUser, user.StatusActive)

	err := svc.ResetPassword(ctx, user.ResetUserPassword{Cedula: "00100000011", Password: "00100000011"})
	assert.Equal(t, map[string]string{"password": "password cannot be entirely numeric"}, fieldErrors(t, err, translator))

	err = svc.ResetPassword(ctx, user.ResetUserPassword{Cedula: "00200000022", Password: "0tr0Secreto"})
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))

	require.NoError(t, svc.ResetPassword(ctx, user.ResetUserPassword{Cedula: "001-0000001-1", Password: "0tr0Secreto"}))
	_, err = svc.Authenticate(ctx, "00100000011", "0tr0Secreto")
	assert.NoError(t, err)
}

func TestService_SetRegistrar(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := setup(t)
	root := testutil.CreateUser(t, repo, "Ana", "00100000011", "", user.RoleUser, user.StatusActive)
	child := testutil.CreateUser(t, repo, "Luis", "00200000022", "", user.RoleUser, user.StatusActive, root.ID)
	grandChild := testutil.CreateUser(t, repo, "Marta", "00300000033", "", user.RoleUser, user.StatusActive, child.ID)
	loner := testutil.CreateUser(t, repo, "Pedro", "00400000044", "", user.RoleUser, user.StatusActive)

	tests := []struct {
		name        string
		id          int
		registrarID int
		wantErr     error
	}{
		{name: "self", id: root.ID, registrarID: root.ID, wantErr: user.ErrRegistrarCycle},
		{name: "child", id: root.ID, registrarID: child.ID, wantErr: user.ErrRegistrarCycle},
		{name: "grand child", id: root.ID, registrarID: grandChild.ID, wantErr: user.ErrRegistrarCycle},
		{name: "unknown user", id: 999, registrarID: root.ID, wantErr: user.ErrNotFound},
		{name: "OK", id: loner.ID, registrarID: grandChild.ID},
		{name: "OK (re-parent)", id: grandChild.ID, registrarID: root.ID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usr, err := svc.SetRegistrar(ctx, tt.id, tt.registrarID)
			if tt.wantErr != nil {
				var vErr *core.ValidationError
				if errors.As(err, &vErr) {
					err = vErr.Err
				}
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.registrarID, usr.RegistradoPor.Int)
		})
	}

	_, err := svc.SetRegistrar(ctx, loner.ID, 999)
	assert.EqualError(t, err, "registrado_por: registrador no encontrado")
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := setup(t)
	ana := testutil.CreateUser(t, repo, "Ana", "00100000011", "", user.RoleUser, user.StatusActive)
	luis := testutil.CreateUser(t, repo, "Luis", "00200000022", "", user.RoleUser, user.StatusActive, ana.ID)

	assert.Equal(t, user.ErrNotFound, svc.Delete(ctx, 999))
	require.NoError(t, svc.Delete(ctx, ana.ID, 999))

	users, err := svc.Query(ctx)
	require.NoError(t, err)
	if assert.Len(t, users, 1) {
		assert.Equal(t, luis.ID, users[0].ID)
		assert.False(t, users[0].RegistradoPor.Valid)
	}

	_, err = svc.GetByCedula(ctx, " ")
	assert.Equal(t, user.ErrNotFound, err)
	_, err = svc.GetByID(ctx, ana.ID)
	assert.Equal(t, user.ErrNotFound, err)
}
