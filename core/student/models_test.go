package student

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/volatiletech/null/v8"
)

func TestUpdateStudent_apply(t *testing.T) {
	base := Student{ID: 1, Name: "Juan", Email: "juan@test.do", Status: StatusActive, TutorID: null.IntFrom(3)}
	iPtr := func(i int) *int { return &i }

	tests := []struct {
		name string
		us   UpdateStudent
		want Student
	}{
		{name: "nothing", want: base},
		{
			name: "fields",
			us:   UpdateStudent{Name: "Juan Pablo", Email: "jp@test.do", Status: StatusGraduated},
			want: Student{ID: 1, Name: "Juan Pablo", Email: "jp@test.do", Status: StatusGraduated, TutorID: null.IntFrom(3)},
		},
		{
			name: "reassign tutor",
			us:   UpdateStudent{TutorID: iPtr(5)},
			want: Student{ID: 1, Name: "Juan", Email: "juan@test.do", Status: StatusActive, TutorID: null.IntFrom(5)},
		},
		{
			name: "unassign tutor",
			us:   UpdateStudent{TutorID: iPtr(0)},
			want: Student{ID: 1, Name: "Juan", Email: "juan@test.do", Status: StatusActive, TutorID: null.NewInt(0, false)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base
			tt.us.apply(&s)
			assert.Equal(t, tt.want, s)
		})
	}
}

func TestFilter_Clean(t *testing.T) {
	f := Filter{TutorID: 2, Status: " ACTIVE ", Name: " Ju "}
	f.Clean()
	assert.Equal(t, Filter{TutorID: 2, Status: StatusActive, Name: "Ju"}, f)
}
