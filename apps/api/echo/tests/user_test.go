package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/tutorias/apps/api/echo"
	"github.com/trezcool/tutorias/core/user"
	testutil "github.com/trezcool/tutorias/tests"
)

const pwd = "Sup3rSecreto"

func Test_userApi_login(t *testing.T) {
	resetDB(t)

	usr := testutil.CreateUser(t, usrRepo, "Ana Pérez", "00100000011", pwd, user.RoleTutor, user.StatusActive)
	testutil.CreateUser(t, usrRepo, "Luis", "00200000022", pwd, user.RoleUser, user.StatusInactive)

	login := func(cedula, password string) []byte {
		return marshalObj(t, user.LoginRequest{Cedula: cedula, Password: password})
	}
	invalidCreds := marshalObj(t, errBody(user.ErrInvalidCredentials.Error()))

	tests := []httpTest{
		{
			name:     "no data",
			body:     []byte("{}"),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, errBody("datos inválidos", map[string]string{
				"cedula":   "this field is required",
				"password": "this field is required",
			})),
		},
		{name: "unknown cedula", body: login("00300000033", pwd), wantCode: http.StatusBadRequest, wantData: invalidCreds},
		{name: "wrong password", body: login("00100000011", "lol"), wantCode: http.StatusBadRequest, wantData: invalidCreds},
		{name: "inactive", body: login("00200000022", pwd), wantCode: http.StatusForbidden, wantData: marshalObj(t, errBody("cuenta inactiva"))},
		{name: "OK", body: login("001-0000001-1", pwd), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/api/login"

		t.Run(tt.name, func(t *testing.T) {
			rec := serve(tt)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusOK {
				var resp echoapi.LoginResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.Equal(t, usr.ID, resp.ID)
				assert.Equal(t, usr.Nombre, resp.Nombre)
				assert.Equal(t, user.RoleTutor, resp.Role)

				claims, err := echoapi.ParseToken(resp.Token, conf.SecretKey)
				require.NoError(t, err)
				assert.Equal(t, usr.ID, claims.UserID())
				assert.Equal(t, conf.AppName, claims.Issuer)
			}
		})
	}
}

func Test_userApi_register(t *testing.T) {
	resetDB(t)

	registrar := testutil.CreateUser(t, usrRepo, "Marta", "00900000099", "", user.RoleUser, user.StatusActive)

	newUser := func(nombre, cedula, password string, registradoPor ...int) []byte {
		nu := user.NewUser{Nombre: nombre, Cedula: cedula, Password: password}
		if len(registradoPor) > 0 {
			nu.RegistradoPor = &registradoPor[0]
		}
		return marshalObj(t, nu)
	}

	tests := []httpTest{
		{
			name:     "invalid cedula",
			body:     newUser("Ana Pérez", "123", ""),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, errBody("datos inválidos", map[string]string{"cedula": "la cédula debe tener 11 dígitos (###-#######-#)"})),
		},
		{
			name:     "numeric password",
			body:     newUser("Ana Pérez", "001-0000001-1", "12345678"),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, errBody("datos inválidos", map[string]string{"password": "password cannot be entirely numeric"})),
		},
		{
			name:     "unknown registrar",
			body:     newUser("Ana Pérez", "001-0000001-1", "", 999),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, errBody("datos inválidos", map[string]string{"registrado_por": "registrador no encontrado"})),
		},
		{name: "OK", body: newUser("Ana Pérez", "001-0000001-1", "", registrar.ID), wantCode: http.StatusCreated},
		{
			name:     "duplicate cedula",
			body:     newUser("Otra Persona", "00100000011", ""),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, errBody("La cédula ya está registrada")),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/api/registerVA"

		t.Run(tt.name, func(t *testing.T) {
			rec := serve(tt)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusCreated {
				var resp echoapi.RegisterResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.True(t, resp.Success)
				assert.Equal(t, "Usuario registrado exitosamente", resp.Message)
				assert.Equal(t, "00100000011", resp.User.Cedula)
				assert.Equal(t, registrar.ID, resp.User.RegistradoPor.Int)

				// the cedula is the initial credential
				usr, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: resp.User.ID})
				require.NoError(t, err)
				assert.NoError(t, usr.CheckPassword("00100000011"))
			}
		})
	}
}

func Test_userApi_lookup(t *testing.T) {
	resetDB(t)

	usr := testutil.CreateUser(t, usrRepo, "Ana Pérez", "00100000011", "", user.RoleUser, user.StatusActive)

	tests := []httpTest{
		{
			name:     "invalid cedula",
			body:     []byte(`{"cedula":"abc"}`),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, errBody("datos inválidos", map[string]string{"cedula": "la cédula debe tener 11 dígitos (###-#######-#)"})),
		},
		{name: "unknown", body: []byte(`{"cedula":"00200000022"}`), wantCode: http.StatusNotFound, wantData: marshalObj(t, errBody("Usuario no encontrado"))},
		{name: "OK", body: []byte(`{"cedula":"001-0000001-1"}`), wantCode: http.StatusOK, wantData: marshalObj(t, usr)},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/userVA"

		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, serve(tt))
		})
	}
}

func Test_userApi_query(t *testing.T) {
	resetDB(t)

	admin := testutil.CreateUser(t, usrRepo, "Admin", "00100000011", "", user.RoleAdmin, user.StatusActive)
	usr := testutil.CreateUser(t, usrRepo, "Ana", "00200000022", "", user.RoleUser, user.StatusActive)

	tests := []httpTest{
		{name: "no token", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{name: "invalid token", token: "lol", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errBody("invalid or expired jwt"))},
		{name: "non admin", token: getToken(t, usr), wantCode: http.StatusForbidden, wantData: marshalObj(t, errForbidden)},
		{name: "admin", token: getToken(t, admin), wantCode: http.StatusOK, wantData: marshalList(t, admin, usr)},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		tt.path = "/api/users"

		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, serve(tt))
		})
	}
}

func Test_userApi_destroy(t *testing.T) {
	resetDB(t)

	admin := testutil.CreateUser(t, usrRepo, "Admin", "00100000011", "", user.RoleAdmin, user.StatusActive)
	usr := testutil.CreateUser(t, usrRepo, "Ana", "00200000022", "", user.RoleUser, user.StatusActive)
	child := testutil.CreateUser(t, usrRepo, "Luis", "00300000033", "", user.RoleUser, user.StatusActive, usr.ID)
	token := getToken(t, admin)
	path := func(id int) string { return "/api/users/" + strconv.Itoa(id) }

	tests := []httpTest{
		{name: "non admin", path: path(child.ID), token: getToken(t, usr), wantCode: http.StatusForbidden, wantData: marshalObj(t, errForbidden)},
		{name: "self", path: path(admin.ID), token: token, wantCode: http.StatusForbidden, wantData: marshalObj(t, errForbidden)},
		{name: "invalid id", path: "/api/users/lol", token: token, wantCode: http.StatusNotFound, wantData: marshalObj(t, errNotFound)},
		{name: "unknown", path: path(999), token: token, wantCode: http.StatusNotFound, wantData: marshalObj(t, errBody("Usuario no encontrado"))},
		{
			name:     "OK",
			path:     path(usr.ID),
			token:    token,
			wantCode: http.StatusOK,
			wantData: marshalObj(t, echoapi.SuccessResponse{Success: true, Message: "Usuario eliminado"}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodDelete

		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, serve(tt))
		})
	}

	_, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
	assert.Equal(t, user.ErrNotFound, err)

	// registered identities outlive their registrar
	orphan, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: child.ID})
	require.NoError(t, err)
	assert.False(t, orphan.RegistradoPor.Valid)
}

func Test_userApi_setRegistrar(t *testing.T) {
	resetDB(t)

	admin := testutil.CreateUser(t, usrRepo, "Admin", "00100000011", "", user.RoleAdmin, user.StatusActive)
	root := testutil.CreateUser(t, usrRepo, "Ana", "00200000022", "", user.RoleUser, user.StatusActive)
	child := testutil.CreateUser(t, usrRepo, "Luis", "00300000033", "", user.RoleUser, user.StatusActive, root.ID)
	loner := testutil.CreateUser(t, usrRepo, "Marta", "00400000044", "", user.RoleUser, user.StatusActive)
	token := getToken(t, admin)

	path := func(id int) string { return "/api/users/" + strconv.Itoa(id) + "/registrar" }
	body := func(id int) []byte { return marshalObj(t, user.SetRegistrarRequest{RegistradoPor: id}) }
	cycle := marshalObj(t, errBody(user.ErrRegistrarCycle.Error(), map[string]string{"registrado_por": user.ErrRegistrarCycle.Error()}))

	tests := []httpTest{
		{name: "self", path: path(root.ID), body: body(root.ID), wantCode: http.StatusBadRequest, wantData: cycle},
		{name: "descendant", path: path(root.ID), body: body(child.ID), wantCode: http.StatusBadRequest, wantData: cycle},
		{
			name:     "unknown registrar",
			path:     path(loner.ID),
			body:     body(999),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, errBody("datos inválidos", map[string]string{"registrado_por": "registrador no encontrado"})),
		},
		{name: "unknown user", path: path(999), body: body(root.ID), wantCode: http.StatusNotFound, wantData: marshalObj(t, errBody("Usuario no encontrado"))},
		{name: "OK", path: path(loner.ID), body: body(child.ID), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPut
		tt.token = token

		t.Run(tt.name, func(t *testing.T) {
			rec := serve(tt)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusOK {
				var usr user.User
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &usr))
				assert.Equal(t, loner.ID, usr.ID)
				assert.Equal(t, child.ID, usr.RegistradoPor.Int)
			}
		})
	}
}
