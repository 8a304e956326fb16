package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/tutorias/apps/api/echo"
	"github.com/trezcool/tutorias/core/registration"
	"github.com/trezcool/tutorias/core/user"
	emailsvc "github.com/trezcool/tutorias/services/email"
	inmemdb "github.com/trezcool/tutorias/storage/database/inmem"
	testutil "github.com/trezcool/tutorias/tests"
)

func Test_registrationApi_submit(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	formRepo := inmemdb.NewRegistrationRepository(db)

	preRegistered := testutil.CreateUser(t, usrRepo, "Luis Gómez", "00200000022", "", user.RoleUser, user.StatusInactive)
	other := testutil.CreateUser(t, usrRepo, "Marta", "00300000033", "", user.RoleUser, user.StatusInactive)
	iPtr := func(i int) *int { return &i }

	tests := []httpTest{
		{
			name:     "no nombre",
			body:     marshalObj(t, registration.NewForm{Cedula: "00100000011"}),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, errBody("datos inválidos", map[string]string{"nombre": "this field is required"})),
		},
		{
			name: "new registrant",
			body: marshalObj(t, registration.NewForm{
				Nombre:    "Ana",
				Apellido:  "Pérez",
				Cedula:    "001-0000001-1",
				Correo:    "Ana@Test.do",
				Intereses: []string{"música", " música ", "deporte"},
			}),
			wantCode: http.StatusCreated,
			extra:    true, // isNewUser
		},
		{
			name:     "cedula already registered",
			body:     marshalObj(t, registration.NewForm{Nombre: "Ana", Cedula: "00100000011"}),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, errBody("La cédula ya está registrada")),
		},
		{
			name:     "pre-registered user, other cedula",
			body:     marshalObj(t, registration.NewForm{Nombre: "Luis", Cedula: "00400000044", UserID: iPtr(preRegistered.ID)}),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, errBody(registration.ErrCedulaMismatch.Error(), map[string]string{"cedula": registration.ErrCedulaMismatch.Error()})),
		},
		{
			name:     "pre-registered user",
			body:     marshalObj(t, registration.NewForm{Nombre: "Luis", Cedula: "002-0000002-2", UserID: iPtr(preRegistered.ID)}),
			wantCode: http.StatusCreated,
			extra:    false,
		},
		{
			name:     "form already submitted",
			body:     marshalObj(t, registration.NewForm{Nombre: "Luis", Cedula: "00200000022", UserID: iPtr(preRegistered.ID)}),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, errBody(registration.ErrFormExists.Error())),
		},
		{
			name:     "unknown user_id creates the registrant",
			body:     marshalObj(t, registration.NewForm{Nombre: "Pedro", Cedula: "00500000055", UserID: iPtr(999), RegistradoPor: iPtr(other.ID)}),
			wantCode: http.StatusCreated,
			extra:    true,
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/formularioVA"

		t.Run(tt.name, func(t *testing.T) {
			rec := serve(tt)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode != http.StatusCreated {
				return
			}
			var resp echoapi.SubmitResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.True(t, resp.Success)
			assert.Equal(t, tt.extra, resp.IsNewUser)

			usr, err := usrRepo.GetUser(ctx, user.GetFilter{ID: resp.UserID})
			require.NoError(t, err)
			assert.True(t, usr.IsActive())

			form, err := formRepo.GetFormByCedula(ctx, usr.Cedula)
			require.NoError(t, err)
			assert.Equal(t, resp.FormID, form.ID)
			assert.Equal(t, usr.ID, form.UserID)
			assert.Equal(t, "192.0.2.1", form.IP.String)
		})
	}

	// new registrant
	usr, err := usrRepo.GetUser(ctx, user.GetFilter{Cedula: "00100000011"})
	require.NoError(t, err)
	assert.Equal(t, "Ana Pérez", usr.Nombre)
	assert.NoError(t, usr.CheckPassword("00100000011"))
	form, err := formRepo.GetFormByCedula(ctx, "00100000011")
	require.NoError(t, err)
	assert.Equal(t, registration.List{"música", "deporte"}, form.Intereses)
	assert.Equal(t, "ana@test.do", form.Correo.String)

	sent := emailsvc.GetSentMessages()
	if assert.Len(t, sent, 1) {
		assert.Equal(t, "ana@test.do", sent[0].To[0].Address)
		assert.Contains(t, sent[0].TextContent, "Ana")
	}

	// unresolved registrant
	usr, err = usrRepo.GetUser(ctx, user.GetFilter{Cedula: "00500000055"})
	require.NoError(t, err)
	assert.NotEqual(t, 999, usr.ID)
	assert.Equal(t, other.ID, usr.RegistradoPor.Int)

	// rejected submissions leave nothing behind
	_, err = usrRepo.GetUser(ctx, user.GetFilter{Cedula: "00400000044"})
	assert.Equal(t, user.ErrNotFound, err)
	forms, err := formRepo.QueryForms(ctx)
	require.NoError(t, err)
	assert.Len(t, forms, 3)
}

func Test_registrationApi_forest(t *testing.T) {
	resetDB(t)

	root := testutil.CreateUser(t, usrRepo, "Ana", "00100000011", "", user.RoleUser, user.StatusActive)
	child := testutil.CreateUser(t, usrRepo, "Luis", "00200000022", "", user.RoleUser, user.StatusActive, root.ID)
	grandChild := testutil.CreateUser(t, usrRepo, "Marta", "00300000033", "", user.RoleUser, user.StatusActive, child.ID)
	loner := testutil.CreateUser(t, usrRepo, "Pedro", "00400000044", "", user.RoleUser, user.StatusActive)

	rec := serve(httpTest{
		method: http.MethodPost,
		path:   "/formularioVA",
		body:   marshalObj(t, registration.NewForm{Nombre: "Luis", Cedula: "00200000022", UserID: &child.ID}),
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = serve(httpTest{method: http.MethodGet, path: "/formularioVA"})
	require.Equal(t, http.StatusOK, rec.Code)

	var forest []registration.Node
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &forest))
	require.Len(t, forest, 2)

	assert.Equal(t, root.ID, forest[0].User.ID)
	assert.Empty(t, forest[0].Formularios)
	require.Len(t, forest[0].Registrados, 1)

	childNode := forest[0].Registrados[0]
	assert.Equal(t, child.ID, childNode.User.ID)
	require.Len(t, childNode.Formularios, 1)
	assert.Equal(t, "00200000022", childNode.Formularios[0].Cedula)
	require.Len(t, childNode.Registrados, 1)
	assert.Equal(t, grandChild.ID, childNode.Registrados[0].User.ID)
	assert.Empty(t, childNode.Registrados[0].Registrados)

	assert.Equal(t, loner.ID, forest[1].User.ID)
	assert.Empty(t, forest[1].Registrados)
}
