// Package progress tracks which lectures a student has viewed and derives
// course completion from it.
package progress

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"time"

	"learnedge/apperr"
	"learnedge/cache"
	"learnedge/db"
	"learnedge/logger"
	"learnedge/models"
)

// Report is the progress view of one (user, course) pair.
type Report struct {
	IsPurchased       bool                    `json:"is_purchased"`
	CourseDetails     *models.CourseView      `json:"course_details,omitempty"`
	Progress          []models.ProgressRecord `json:"progress"`
	Completed         bool                    `json:"completed"`
	CompletionDate    *time.Time              `json:"completion_date"`
	TotalLectures     int                     `json:"total_lectures"`
	CompletedLectures int                     `json:"completed_lectures"`
	PercentComplete   float64                 `json:"percent_complete"`
}

// MarshalJSON reduces the report of a course the user does not own to
// {"is_purchased": false}.
func (r Report) MarshalJSON() ([]byte, error) {
	if !r.IsPurchased {
		return []byte(`{"is_purchased":false}`), nil
	}
	type plain Report
	return json.Marshal(plain(r))
}

type Service struct {
	store        db.Store
	entitlements cache.Entitlements
	log          *logger.Logger
}

func NewService(store db.Store, entitlements cache.Entitlements, log *logger.Logger) *Service {
	return &Service{store: store, entitlements: entitlements, log: log.With("component", "progress")}
}

// Get returns the caller's progress through courseID.
func (s *Service) Get(ctx context.Context, caller models.Identity, userID, courseID string) (Report, error) {
	if err := checkCaller(caller, userID); err != nil {
		return Report{}, err
	}
	course, err := s.store.GetCourse(ctx, courseID)
	if err != nil {
		return Report{}, err
	}
	owns, err := s.entitlements.Owns(ctx, userID, courseID)
	if err != nil {
		return Report{}, err
	}
	if !owns {
		return Report{IsPurchased: false}, nil
	}
	return s.report(ctx, userID, course)
}

// MarkViewed records that the caller viewed lectureID. Viewing a lecture
// again leaves the original record in place.
func (s *Service) MarkViewed(ctx context.Context, caller models.Identity, userID, courseID, lectureID string) (Report, error) {
	if err := checkCaller(caller, userID); err != nil {
		return Report{}, err
	}
	if strings.TrimSpace(courseID) == "" || strings.TrimSpace(lectureID) == "" {
		return Report{}, apperr.Invalid("course_id and lecture_id are required")
	}
	course, err := s.ownedCourse(ctx, userID, courseID)
	if err != nil {
		return Report{}, err
	}
	if !course.HasLecture(lectureID) {
		return Report{}, apperr.NotFound("lecture %s is not part of this course", lectureID)
	}

	created, err := s.store.MarkLectureViewed(ctx, models.ProgressRecord{
		UserID:    userID,
		CourseID:  courseID,
		LectureID: lectureID,
	})
	if err != nil {
		return Report{}, err
	}
	if created {
		s.log.Debug("lecture viewed", "user_id", userID, "course_id", courseID, "lecture_id", lectureID)
	}
	return s.report(ctx, userID, course)
}

// Reset deletes every progress record of the caller for courseID.
func (s *Service) Reset(ctx context.Context, caller models.Identity, userID, courseID string) (Report, error) {
	if err := checkCaller(caller, userID); err != nil {
		return Report{}, err
	}
	if strings.TrimSpace(courseID) == "" {
		return Report{}, apperr.Invalid("course_id is required")
	}
	course, err := s.ownedCourse(ctx, userID, courseID)
	if err != nil {
		return Report{}, err
	}
	removed, err := s.store.ResetProgress(ctx, userID, courseID)
	if err != nil {
		return Report{}, err
	}
	s.log.Info("progress reset", "user_id", userID, "course_id", courseID, "removed", removed)
	return s.report(ctx, userID, course)
}

func checkCaller(caller models.Identity, userID string) error {
	if userID == "" {
		return apperr.Invalid("user_id is required")
	}
	if caller.UserID != userID {
		return apperr.Forbidden("you can only access your own progress")
	}
	return nil
}

func (s *Service) ownedCourse(ctx context.Context, userID, courseID string) (models.Course, error) {
	course, err := s.store.GetCourse(ctx, courseID)
	if err != nil {
		return models.Course{}, err
	}
	owns, err := s.entitlements.Owns(ctx, userID, courseID)
	if err != nil {
		return models.Course{}, err
	}
	if !owns {
		return models.Course{}, apperr.Forbidden("you have not purchased this course")
	}
	return course, nil
}

func (s *Service) report(ctx context.Context, userID string, course models.Course) (Report, error) {
	records, err := s.store.ListProgress(ctx, userID, course.ID)
	if err != nil {
		return Report{}, err
	}
	return Summarize(course, records), nil
}

// Summarize builds the report of an owned course from its progress records.
// Records of lectures that are no longer in the curriculum are listed but
// not counted.
func Summarize(course models.Course, records []models.ProgressRecord) Report {
	if records == nil {
		records = []models.ProgressRecord{}
	}
	details := course.View()
	report := Report{
		IsPurchased:   true,
		CourseDetails: &details,
		Progress:      records,
		TotalLectures: len(course.LectureIDs()),
	}

	counted := make(map[string]bool)
	var latest time.Time
	for _, r := range records {
		if counted[r.LectureID] || !course.HasLecture(r.LectureID) {
			continue
		}
		counted[r.LectureID] = true
		if r.ViewedAt.After(latest) {
			latest = r.ViewedAt
		}
	}
	report.CompletedLectures = len(counted)

	if report.TotalLectures > 0 {
		report.PercentComplete = math.Round(float64(report.CompletedLectures)/float64(report.TotalLectures)*10000) / 100
		report.Completed = report.CompletedLectures == report.TotalLectures
	}
	if report.Completed {
		report.CompletionDate = &latest
	}
	return report
}
