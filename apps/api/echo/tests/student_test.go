package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tutorias/core/student"
	"github.com/trezcool/tutorias/core/tutor"
	"github.com/trezcool/tutorias/core/user"
	testutil "github.com/trezcool/tutorias/tests"
)

func createTutor(t *testing.T, name, email string) tutor.Tutor {
	now := time.Now().UTC()
	tt, err := tutorRepo.CreateTutor(context.Background(), tutor.Tutor{Name: name, Email: email, CreatedAt: now, UpdatedAt: now})
	require.NoError(t, err)
	return tt
}

func createCourse(t *testing.T, name string, tutorID int) tutor.Course {
	c, err := tutorRepo.CreateCourse(context.Background(), tutor.Course{Name: name, TutorID: null.IntFrom(tutorID)})
	require.NoError(t, err)
	return c
}

func createStudent(t *testing.T, name, email, status string, tutorID int, courseIDs ...int) student.Student {
	s := student.Student{Name: name, Email: email, Status: status, CreatedAt: time.Now().UTC()}
	if tutorID > 0 {
		s.TutorID = null.IntFrom(tutorID)
	}
	s, err := stdRepo.CreateStudent(context.Background(), s, courseIDs)
	require.NoError(t, err)
	return s
}

func studentNames(t *testing.T, body []byte) []string {
	var students []student.Student
	require.NoError(t, json.Unmarshal(body, &students))
	names := make([]string, 0, len(students))
	for _, s := range students {
		names = append(names, s.Name)
	}
	return names
}

func Test_studentApi_create(t *testing.T) {
	resetDB(t)

	usr := testutil.CreateUser(t, usrRepo, "Ana", "00100000011", "", user.RoleUser, user.StatusActive)
	token := getToken(t, usr)
	tut := createTutor(t, "Carmen", "carmen@test.do")
	course := createCourse(t, "Álgebra", tut.ID)
	iPtr := func(i int) *int { return &i }

	tests := []httpTest{
		{name: "no token", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{
			name:     "no data",
			token:    token,
			body:     []byte("{}"),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, errBody("datos inválidos", map[string]string{
				"name":  "this field is required",
				"email": "this field is required",
			})),
		},
		{
			name:     "unknown tutor",
			token:    token,
			body:     marshalObj(t, student.NewStudent{Name: "Juan", Email: "juan@test.do", TutorID: iPtr(999)}),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, errBody("datos inválidos", map[string]string{"tutor_id": "tutor no encontrado"})),
		},
		{
			name:     "unknown course",
			token:    token,
			body:     marshalObj(t, student.NewStudent{Name: "Juan", Email: "juan@test.do", CourseIDs: []int{999}}),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, errBody("datos inválidos", map[string]string{"course_ids": "curso no encontrado"})),
		},
		{
			name:     "OK",
			token:    token,
			body:     marshalObj(t, student.NewStudent{Name: " Juan ", Email: "JUAN@test.do", TutorID: &tut.ID, CourseIDs: []int{course.ID}}),
			wantCode: http.StatusCreated,
		},
		{
			name:     "duplicate email",
			token:    token,
			body:     marshalObj(t, student.NewStudent{Name: "Otro Juan", Email: "juan@TEST.do"}),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, errBody(student.ErrEmailExists.Error())),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/api/students"

		t.Run(tt.name, func(t *testing.T) {
			rec := serve(tt)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusCreated {
				var s student.Student
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
				assert.Equal(t, "Juan", s.Name)
				assert.Equal(t, "juan@test.do", s.Email)
				assert.Equal(t, student.StatusActive, s.Status)
				assert.Equal(t, "Carmen", s.TutorName.String)
				if assert.Len(t, s.Courses, 1) {
					assert.Equal(t, course.ID, s.Courses[0].ID)
				}
			}
		})
	}
}

func Test_studentApi_query(t *testing.T) {
	resetDB(t)

	token := getToken(t, testutil.CreateUser(t, usrRepo, "Ana", "00100000011", "", user.RoleUser, user.StatusActive))
	carmen := createTutor(t, "Carmen", "carmen@test.do")
	pablo := createTutor(t, "Pablo", "pablo@test.do")
	algebra := createCourse(t, "Álgebra", carmen.ID)
	historia := createCourse(t, "Historia", pablo.ID)

	createStudent(t, "Juan", "juan@test.do", student.StatusActive, carmen.ID, algebra.ID)
	createStudent(t, "beatriz", "bea@test.do", student.StatusGraduated, carmen.ID, algebra.ID, historia.ID)
	createStudent(t, "Julia", "julia@test.do", student.StatusActive, pablo.ID, historia.ID)
	createStudent(t, "Mario", "mario@test.do", student.StatusInactive, 0)

	path := func(params map[string]string) string {
		v := make(url.Values)
		for k, p := range params {
			v.Add(k, p)
		}
		return "/api/students/filter?" + v.Encode()
	}
	itoa := strconv.Itoa

	tests := []struct {
		name      string
		path      string
		wantNames []string
	}{
		{name: "all", path: "/api/students", wantNames: []string{"beatriz", "Juan", "Julia", "Mario"}},
		{name: "no filter", path: "/api/students/filter", wantNames: []string{"beatriz", "Juan", "Julia", "Mario"}},
		{name: "tutor", path: path(map[string]string{"tutorId": itoa(carmen.ID)}), wantNames: []string{"beatriz", "Juan"}},
		{name: "course", path: path(map[string]string{"courseId": itoa(historia.ID)}), wantNames: []string{"beatriz", "Julia"}},
		{name: "status", path: path(map[string]string{"status": "ACTIVE"}), wantNames: []string{"Juan", "Julia"}},
		{name: "name", path: path(map[string]string{"name": "ju"}), wantNames: []string{"Juan", "Julia"}},
		{name: "combo", path: path(map[string]string{"tutorId": itoa(pablo.ID), "name": "JU"}), wantNames: []string{"Julia"}},
		{name: "combo (empty)", path: path(map[string]string{"courseId": itoa(algebra.ID), "status": "inactive"}), wantNames: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(httpTest{method: http.MethodGet, path: tt.path, token: token})
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.wantNames, studentNames(t, rec.Body.Bytes()))
		})
	}
}

func Test_studentApi_detail(t *testing.T) {
	resetDB(t)

	token := getToken(t, testutil.CreateUser(t, usrRepo, "Ana", "00100000011", "", user.RoleUser, user.StatusActive))
	tut := createTutor(t, "Carmen", "carmen@test.do")
	algebra := createCourse(t, "Álgebra", tut.ID)
	historia := createCourse(t, "Historia", tut.ID)
	s := createStudent(t, "Juan", "juan@test.do", student.StatusActive, tut.ID, algebra.ID)
	createStudent(t, "Julia", "julia@test.do", student.StatusActive, 0)
	path := "/api/students/" + strconv.Itoa(s.ID)
	notFound := marshalObj(t, errBody("Estudiante no encontrado"))

	// retrieve
	rec := serve(httpTest{method: http.MethodGet, path: path, token: token})
	require.Equal(t, http.StatusOK, rec.Code)
	var got student.Student
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "carmen@test.do", got.TutorEmail.String)
	assert.Len(t, got.Courses, 1)

	tests := []httpTest{
		{name: "retrieve: invalid id", method: http.MethodGet, path: "/api/students/lol", wantCode: http.StatusNotFound, wantData: marshalObj(t, errNotFound)},
		{name: "retrieve: unknown", method: http.MethodGet, path: "/api/students/999", wantCode: http.StatusNotFound, wantData: notFound},
		{name: "update: unknown", method: http.MethodPut, path: "/api/students/999", body: []byte(`{"name":"X"}`), wantCode: http.StatusNotFound, wantData: notFound},
		{
			name:     "update: taken email",
			method:   http.MethodPut,
			path:     path,
			body:     []byte(`{"email":"julia@test.do"}`),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, errBody(student.ErrEmailExists.Error())),
		},
		{
			name:     "update: invalid status",
			method:   http.MethodPut,
			path:     path,
			body:     []byte(`{"status":"lol"}`),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, errBody("datos inválidos", map[string]string{"status": "status must be one of [active inactive graduated]"})),
		},
		{
			name:     "update: OK",
			method:   http.MethodPut,
			path:     path,
			body:     marshalObj(t, map[string]interface{}{"status": "graduated", "tutor_id": 0, "course_ids": []int{historia.ID}}),
			wantCode: http.StatusOK,
		},
		{name: "delete: OK", method: http.MethodDelete, path: path, wantCode: http.StatusNoContent},
		{name: "delete: unknown", method: http.MethodDelete, path: path, wantCode: http.StatusNotFound, wantData: notFound},
	}
	for _, tt := range tests {
		tt.token = token

		t.Run(tt.name, func(t *testing.T) {
			rec := serve(tt)
			checkCodeAndData(t, tt, rec)

			if tt.method == http.MethodPut && tt.wantCode == http.StatusOK {
				var s student.Student
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
				assert.Equal(t, "Juan", s.Name)
				assert.Equal(t, student.StatusGraduated, s.Status)
				assert.False(t, s.TutorID.Valid)
				assert.False(t, s.TutorName.Valid)
				if assert.Len(t, s.Courses, 1) {
					assert.Equal(t, historia.ID, s.Courses[0].ID)
				}
			}
		})
	}
}
