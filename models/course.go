package models

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"learnedge/apperr"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate

	// M:SS or H:MM:SS, minutes unbounded in the short form.
	shortDuration = regexp.MustCompile(`^\d+:[0-5]\d$`)
	longDuration  = regexp.MustCompile(`^\d+:[0-5]\d:[0-5]\d$`)
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = validate.RegisterValidation("clockduration", func(fl validator.FieldLevel) bool {
			return ValidDuration(fl.Field().String())
		})
	})
	return validate
}

// ValidDuration reports whether s is formatted M:SS or H:MM:SS.
func ValidDuration(s string) bool {
	return shortDuration.MatchString(s) || longDuration.MatchString(s)
}

// ValidateCourse checks a course payload and returns an Invalid error naming
// the first offending field.
func ValidateCourse(c *Course) error {
	err := validatorInstance().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Invalid("invalid course payload: %v", err)
	}
	fe := verrs[0]
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	return apperr.Invalid("%s: %s", field, describe(fe))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must contain at least %s item(s)", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "url":
		return "must be a valid URL"
	case "clockduration":
		return "must be formatted M:SS or H:MM:SS"
	default:
		return "failed " + fe.Tag() + " validation"
	}
}

// AssignCurriculumIDs gives every section and lecture a server-side id.
// Ids already known in previous are kept; unknown or repeated ids are replaced.
func AssignCurriculumIDs(sections []Section, previous []Section, newID func() string) {
	knownSections := make(map[string]bool)
	knownLectures := make(map[string]bool)
	for _, s := range previous {
		knownSections[s.ID] = true
		for _, l := range s.Lectures {
			knownLectures[l.ID] = true
		}
	}

	seen := make(map[string]bool)
	for i := range sections {
		s := &sections[i]
		if s.ID == "" || !knownSections[s.ID] || seen[s.ID] {
			s.ID = newID()
		}
		seen[s.ID] = true
		for j := range s.Lectures {
			l := &s.Lectures[j]
			if l.ID == "" || !knownLectures[l.ID] || seen[l.ID] {
				l.ID = newID()
			}
			seen[l.ID] = true
		}
	}
}

// LectureIDs returns the ids of every lecture in curriculum order.
func (c Course) LectureIDs() []string {
	var ids []string
	for _, s := range c.Curriculum {
		for _, l := range s.Lectures {
			ids = append(ids, l.ID)
		}
	}
	return ids
}

func (c Course) HasLecture(id string) bool {
	for _, s := range c.Curriculum {
		for _, l := range s.Lectures {
			if l.ID == id {
				return true
			}
		}
	}
	return false
}

func (c Course) HasStudent(studentID string) bool {
	for _, e := range c.Students {
		if e.StudentID == studentID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers cannot alias stored slices.
func (c Course) Clone() Course {
	out := c
	out.Objectives = append([]string(nil), c.Objectives...)
	out.Students = append([]Enrollment(nil), c.Students...)
	out.Curriculum = make([]Section, len(c.Curriculum))
	for i, s := range c.Curriculum {
		s.Lectures = append([]Lecture(nil), s.Lectures...)
		out.Curriculum[i] = s
	}
	return out
}

// Owns reports whether the record lists courseID.
func (s StudentCourses) Owns(courseID string) bool {
	for _, c := range s.Courses {
		if c.CourseID == courseID {
			return true
		}
	}
	return false
}

func (s StudentCourses) Clone() StudentCourses {
	out := StudentCourses{UserID: s.UserID, Courses: make([]PurchasedCourse, len(s.Courses))}
	copy(out.Courses, s.Courses)
	return out
}
