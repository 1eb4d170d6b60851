package domain

import (
	"strconv"

	"github.com/kalambet/localdesk/internal/csvio"
	"github.com/kalambet/localdesk/internal/interpret"
	"github.com/kalambet/localdesk/internal/view"
)

// Student is a student-tracker enrolment.
type Student struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Email      string  `json:"email"`
	Grade      string  `json:"grade"`
	Course     string  `json:"course"`
	Status     string  `json:"status"`
	Score      float64 `json:"score"`
	EnrolledAt string  `json:"enrolledAt"`
}

func studentSeed() []Student {
	return []Student{
		{ID: "1", Name: "Ava Chen", Email: "ava.chen@example.com", Grade: "10", Course: "Algebra II", Status: "active", Score: 91.5, EnrolledAt: "2023-09-04"},
		{ID: "2", Name: "Marcus Bell", Email: "marcus.bell@example.com", Grade: "11", Course: "Chemistry", Status: "active", Score: 78, EnrolledAt: "2023-09-04"},
		{ID: "3", Name: "Priya Nair", Email: "priya.nair@example.com", Grade: "12", Course: "World History", Status: "graduated", Score: 88, EnrolledAt: "2022-09-01"},
	}
}

var students = spec[Student]{
	name: "students",
	key:  "tracker_students",
	seed: studentSeed,
	defaults: func() Student {
		return Student{Status: "active", EnrolledAt: today()}
	},
	id:    func(s Student) string { return s.ID },
	setID: func(s *Student, id string) { s.ID = id },
	schema: view.NewSchema(
		view.TextField("name", true, func(s Student) string { return s.Name }),
		view.TextField("email", true, func(s Student) string { return s.Email }),
		view.TextField("grade", false, func(s Student) string { return s.Grade }),
		view.TextField("course", true, func(s Student) string { return s.Course }),
		view.TextField("status", false, func(s Student) string { return s.Status }),
		view.NumberField("score", func(s Student) float64 { return s.Score }),
		view.DateField("enrolledAt", func(s Student) string { return s.EnrolledAt }),
	),
	form: interpret.Form{
		Name:        "student",
		Instruction: "Extract the student enrolment details.",
		Fields: []interpret.Field{
			{Name: "name", Kind: interpret.FieldText, Anchor: true, Paths: []string{"$.name", "$.student", "$.full_name"}, Cues: []string{"name", "student"}},
			{Name: "email", Kind: interpret.FieldText, Cues: []string{"email", "e-mail"}},
			{Name: "grade", Kind: interpret.FieldText, Description: "grade or year level", Cues: []string{"grade", "year"}},
			{Name: "course", Kind: interpret.FieldText, Paths: []string{"$.course", "$.class", "$.subject"}, Cues: []string{"course", "class", "subject"}},
		},
	},
	columns: []csvio.Column[Student]{
		textCol("Name", func(s Student) string { return s.Name }, func(s *Student, v string) { s.Name = v }),
		textCol("Email", func(s Student) string { return s.Email }, func(s *Student, v string) { s.Email = v }),
		textCol("Grade", func(s Student) string { return s.Grade }, func(s *Student, v string) { s.Grade = v }),
		textCol("Course", func(s Student) string { return s.Course }, func(s *Student, v string) { s.Course = v }),
		textCol("Status", func(s Student) string { return s.Status }, func(s *Student, v string) { s.Status = v }),
		floatCol("Score", func(s Student) float64 { return s.Score }, func(s *Student, f float64) { s.Score = f }),
		dateCol("Enrolled", func(s Student) string { return s.EnrolledAt }, func(s *Student, v string) { s.EnrolledAt = v }),
	},
	summary: func(rows []Student, _ string) []Stat {
		active, total := 0, 0.0
		for _, s := range rows {
			if s.Status == "active" {
				active++
			}
			total += s.Score
		}
		avg := "-"
		if len(rows) > 0 {
			avg = strconv.FormatFloat(total/float64(len(rows)), 'f', 1, 64)
		}
		return []Stat{
			{Label: "Active", Value: strconv.Itoa(active)},
			{Label: "Average score", Value: avg},
		}
	},
}
