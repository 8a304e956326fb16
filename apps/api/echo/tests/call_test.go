package tests

import (
	"context"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tutorias/core/call"
	"github.com/trezcool/tutorias/core/user"
	testutil "github.com/trezcool/tutorias/tests"
)

func createAttempt(t *testing.T, callerID, calleeID int, status string) call.Attempt {
	now := time.Now().UTC()
	a, err := callRepo.CreateAttempt(context.Background(), call.Attempt{
		CallerID:  callerID,
		CalleeID:  calleeID,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)
	return a
}

func Test_callApi_participant(t *testing.T) {
	resetDB(t)

	ana := testutil.CreateUser(t, usrRepo, "Ana Pérez", "00100000011", "", user.RoleUser, user.StatusActive)
	luis := user.User{Nombre: "Luis", Cedula: "00200000022", Role: user.RoleUser, ProfileImage: null.StringFrom("/img/luis.png")}
	luis, err := usrRepo.CreateUser(context.Background(), luis)
	require.NoError(t, err)
	img := "/img/luis.png"

	tests := []httpTest{
		{name: "invalid id", path: "/api/call/user/lol", wantCode: http.StatusNotFound, wantData: marshalObj(t, errNotFound)},
		{name: "unknown", path: "/api/call/user/999", wantCode: http.StatusNotFound, wantData: marshalObj(t, errBody("Usuario no encontrado"))},
		{name: "no image", path: "/api/call/user/" + strconv.Itoa(ana.ID), wantCode: http.StatusOK, wantData: marshalObj(t, call.Participant{ID: ana.ID, Nombre: "Ana Pérez"})},
		{name: "image", path: "/api/call/user/" + strconv.Itoa(luis.ID), wantCode: http.StatusOK, wantData: marshalObj(t, call.Participant{ID: luis.ID, Nombre: "Luis", Image: &img})},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet

		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, serve(tt))
		})
	}
}

func Test_callApi_iceServers(t *testing.T) {
	tt := httpTest{
		method:   http.MethodGet,
		path:     "/api/call/ice-servers",
		wantCode: http.StatusOK,
		wantData: marshalObj(t, call.ICEServers(conf.Signaling.ICEURLs)),
	}
	checkCodeAndData(t, tt, serve(tt))
}

func Test_callApi_history(t *testing.T) {
	resetDB(t)

	admin := testutil.CreateUser(t, usrRepo, "Admin", "00100000011", "", user.RoleAdmin, user.StatusActive)
	ana := testutil.CreateUser(t, usrRepo, "Ana", "00200000022", "", user.RoleUser, user.StatusActive)
	luis := testutil.CreateUser(t, usrRepo, "Luis", "00300000033", "", user.RoleUser, user.StatusActive)
	marta := testutil.CreateUser(t, usrRepo, "Marta", "00400000044", "", user.RoleUser, user.StatusActive)

	a1 := createAttempt(t, ana.ID, luis.ID, call.StatusEnded)
	a2 := createAttempt(t, luis.ID, ana.ID, call.StatusReceiverOffline)
	a3 := createAttempt(t, luis.ID, marta.ID, call.StatusNotified)

	tests := []httpTest{
		{name: "no token", path: "/api/call/attempts", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{name: "own", path: "/api/call/attempts", token: getToken(t, ana), wantCode: http.StatusOK, wantData: marshalList(t, a2, a1)},
		{name: "own (explicit)", path: "/api/call/attempts?user_id=" + strconv.Itoa(marta.ID), token: getToken(t, marta), wantCode: http.StatusOK, wantData: marshalList(t, a3)},
		{name: "other", path: "/api/call/attempts?user_id=" + strconv.Itoa(luis.ID), token: getToken(t, ana), wantCode: http.StatusForbidden, wantData: marshalObj(t, errForbidden)},
		{name: "invalid user_id", path: "/api/call/attempts?user_id=lol", token: getToken(t, admin), wantCode: http.StatusNotFound, wantData: marshalObj(t, errNotFound)},
		{name: "admin", path: "/api/call/attempts?user_id=" + strconv.Itoa(luis.ID), token: getToken(t, admin), wantCode: http.StatusOK, wantData: marshalList(t, a3, a2, a1)},
		{name: "admin (none)", path: "/api/call/attempts", token: getToken(t, admin), wantCode: http.StatusOK, wantData: marshalList(t)},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet

		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, serve(tt))
		})
	}
}
