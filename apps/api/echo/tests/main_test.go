package tests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/tutorias/apps/api/echo"
	"github.com/trezcool/tutorias/core"
	"github.com/trezcool/tutorias/core/call"
	"github.com/trezcool/tutorias/core/presence"
	"github.com/trezcool/tutorias/core/registration"
	"github.com/trezcool/tutorias/core/student"
	"github.com/trezcool/tutorias/core/tutor"
	"github.com/trezcool/tutorias/core/user"
	appfs "github.com/trezcool/tutorias/fs"
	emailsvc "github.com/trezcool/tutorias/services/email"
	"github.com/trezcool/tutorias/services/realtime"
	inmemdb "github.com/trezcool/tutorias/storage/database/inmem"
	testutil "github.com/trezcool/tutorias/tests"
)

var (
	db        *inmemdb.DB
	conf      *core.Config
	app       echoapi.Server
	hub       *realtime.Hub
	usrRepo   user.Repository
	tutorRepo tutor.Repository
	stdRepo   student.Repository
	callRepo  call.Repository

	errMissingToken = errBody("missing or malformed jwt")
	errForbidden    = errBody("permiso denegado")
	errNotFound     = errBody("no encontrado")
)

func TestMain(m *testing.M) {
	var err error

	// set up DB & repos
	db, err = inmemdb.Open()
	if err != nil {
		fmt.Printf("inmemdb.Open(): %v", err)
		os.Exit(1)
	}
	usrRepo = inmemdb.NewUserRepository(db)
	tutorRepo = inmemdb.NewTutorRepository(db)
	stdRepo = inmemdb.NewStudentRepository(db)
	callRepo = inmemdb.NewCallRepository(db)

	conf = core.NewTestConfig()
	conf.Env = "PROD" // raw errors are left out of response bodies
	logger := new(testutil.Logger)
	validate, translator := testutil.NewValidator()
	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, logger)

	// set up services
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	hub = realtime.NewHub(logger, realtime.Options{})
	tracker := presence.NewTracker(inmemdb.NewPresenceDirectory(db), hub, logger, conf.Signaling.PresenceTTL)

	// set up server
	app = echoapi.NewServer(echoapi.ServerDeps{
		Conf:            conf,
		Logger:          logger,
		UserSvc:         user.NewService(usrRepo, logger, validate),
		RegistrationSvc: registration.NewService(inmemdb.NewRegistrationRepository(db), usrRepo, mailSvc, logger, validate, conf),
		StudentSvc:      student.NewService(stdRepo, logger, validate),
		TutorSvc:        tutor.NewService(tutorRepo, logger, validate),
		Tracker:         tracker,
		Relay:           call.NewRelay(callRepo, tracker, hub, logger),
		Hub:             hub,
		Validate:        validate,
		Translator:      translator,
	})

	// run tests
	code := m.Run()

	// clean up
	hub.Shutdown()
	os.Exit(code)
}

func resetDB(t *testing.T) {
	require.NoError(t, db.Reset())
	emailsvc.ResetSentMessages()
}

type httpErr struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func errBody(msg string, fields ...map[string]string) httpErr {
	e := httpErr{Message: msg}
	if len(fields) > 0 {
		e.Fields = fields[0]
	}
	return e
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

// serve runs tt against the app.
func serve(tt httpTest) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
	app.ServeHTTP(rec, req)
	return rec
}

func getToken(t *testing.T, usr user.User) string {
	claims := echoapi.GetUserClaims(usr, conf)
	token, err := echoapi.GenerateToken(claims, conf.SecretKey)
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshalObj(): %v", err)
	}
	return data
}

func marshalList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marshalList(): %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	return false, nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
