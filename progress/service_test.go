package progress

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"learnedge/apperr"
	"learnedge/cache"
	"learnedge/config"
	"learnedge/db"
	"learnedge/logger"
	"learnedge/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeLectureCourse() models.Course {
	return models.Course{
		ID:    "c1",
		Title: "Go",
		Curriculum: []models.Section{
			{ID: "s1", Title: "One", Lectures: []models.Lecture{{ID: "l1", Title: "A"}, {ID: "l2", Title: "B"}}},
			{ID: "s2", Title: "Two", Lectures: []models.Lecture{{ID: "l3", Title: "C"}}},
		},
		IsPublished: true,
	}
}

func TestSummarize(t *testing.T) {
	course := threeLectureCourse()
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rec := func(lecture string, offset time.Duration) models.ProgressRecord {
		return models.ProgressRecord{UserID: "u", CourseID: "c1", LectureID: lecture, ViewedAt: t0.Add(offset)}
	}

	t.Run("No progress", func(t *testing.T) {
		r := Summarize(course, nil)
		assert.True(t, r.IsPurchased)
		assert.NotNil(t, r.Progress)
		assert.Equal(t, 3, r.TotalLectures)
		assert.Equal(t, 0, r.CompletedLectures)
		assert.False(t, r.Completed)
		assert.Nil(t, r.CompletionDate)
	})

	t.Run("Partial progress is rounded", func(t *testing.T) {
		r := Summarize(course, []models.ProgressRecord{rec("l1", 0)})
		assert.Equal(t, 33.33, r.PercentComplete)
		r = Summarize(course, []models.ProgressRecord{rec("l1", 0), rec("l2", time.Minute)})
		assert.Equal(t, 66.67, r.PercentComplete)
	})

	t.Run("Removed lectures are not counted", func(t *testing.T) {
		r := Summarize(course, []models.ProgressRecord{rec("l1", 0), rec("gone", time.Hour)})
		assert.Len(t, r.Progress, 2)
		assert.Equal(t, 1, r.CompletedLectures)
	})

	t.Run("Complete", func(t *testing.T) {
		r := Summarize(course, []models.ProgressRecord{rec("l2", time.Minute), rec("l1", 0), rec("l3", 2*time.Minute), rec("gone", time.Hour)})
		assert.True(t, r.Completed)
		assert.Equal(t, 100.0, r.PercentComplete)
		require.NotNil(t, r.CompletionDate)
		assert.Equal(t, t0.Add(2*time.Minute), *r.CompletionDate)
	})

	t.Run("Empty curriculum is never complete", func(t *testing.T) {
		r := Summarize(models.Course{ID: "empty"}, nil)
		assert.False(t, r.Completed)
		assert.Equal(t, 0.0, r.PercentComplete)
	})
}

func TestReportJSON(t *testing.T) {
	raw, err := json.Marshal(Report{IsPurchased: false, TotalLectures: 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"is_purchased":false}`, string(raw))

	raw, err = json.Marshal(Summarize(threeLectureCourse(), nil))
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, true, decoded["is_purchased"])
	assert.Equal(t, []any{}, decoded["progress"])
	assert.Contains(t, decoded, "course_details")
	assert.Contains(t, decoded, "percent_complete")
}

func setup(t *testing.T) (*Service, db.Store, models.Identity) {
	t.Helper()
	ctx := context.Background()
	store, err := db.NewDatabase(&config.Config{
		DbFilePath:   filepath.Join(t.TempDir(), "progress_test.json"),
		SaveInterval: time.Hour,
	}, logger.NewNop())
	require.NoError(t, err)

	_, err = store.CreateCourse(ctx, threeLectureCourse())
	require.NoError(t, err)
	order, err := store.CreateOrder(ctx, models.Order{UserID: "u1", CourseID: "c1", OrderStatus: models.OrderPending})
	require.NoError(t, err)
	_, err = store.CompleteOrder(ctx, order.ID, db.CaptureDetails{CapturedAt: time.Now().UTC()})
	require.NoError(t, err)

	return NewService(store, cache.NewDirect(store), logger.NewNop()), store, models.Identity{UserID: "u1"}
}

func TestService(t *testing.T) {
	ctx := context.Background()
	svc, store, me := setup(t)

	t.Run("Identity must match", func(t *testing.T) {
		_, err := svc.Get(ctx, me, "u2", "c1")
		assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
		_, err = svc.MarkViewed(ctx, me, "u2", "c1", "l1")
		assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
		_, err = svc.Reset(ctx, me, "u2", "c1")
		assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	})

	t.Run("Unowned course", func(t *testing.T) {
		stranger := models.Identity{UserID: "u2"}
		r, err := svc.Get(ctx, stranger, "u2", "c1")
		require.NoError(t, err)
		assert.False(t, r.IsPurchased)

		_, err = svc.MarkViewed(ctx, stranger, "u2", "c1", "l1")
		assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	})

	t.Run("Unknown course or lecture", func(t *testing.T) {
		_, err := svc.Get(ctx, me, "u1", "missing")
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
		_, err = svc.MarkViewed(ctx, me, "u1", "missing", "l1")
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
		_, err = svc.MarkViewed(ctx, me, "u1", "c1", "l9")
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
		_, err = svc.MarkViewed(ctx, me, "u1", "c1", "")
		assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))
	})

	t.Run("Mark viewed twice keeps one record", func(t *testing.T) {
		r, err := svc.MarkViewed(ctx, me, "u1", "c1", "l1")
		require.NoError(t, err)
		assert.Equal(t, 1, r.CompletedLectures)
		first := r.Progress[0].ViewedAt

		r, err = svc.MarkViewed(ctx, me, "u1", "c1", "l1")
		require.NoError(t, err)
		require.Len(t, r.Progress, 1)
		assert.Equal(t, first, r.Progress[0].ViewedAt)
	})

	t.Run("Completing every lecture", func(t *testing.T) {
		_, err := svc.MarkViewed(ctx, me, "u1", "c1", "l2")
		require.NoError(t, err)
		r, err := svc.MarkViewed(ctx, me, "u1", "c1", "l3")
		require.NoError(t, err)
		assert.True(t, r.Completed)
		assert.Equal(t, 100.0, r.PercentComplete)
		assert.NotNil(t, r.CompletionDate)

		got, err := svc.Get(ctx, me, "u1", "c1")
		require.NoError(t, err)
		assert.True(t, got.Completed)
	})

	t.Run("Reset empties progress", func(t *testing.T) {
		r, err := svc.Reset(ctx, me, "u1", "c1")
		require.NoError(t, err)
		assert.Empty(t, r.Progress)
		assert.Equal(t, 0, r.CompletedLectures)
		assert.False(t, r.Completed)

		records, err := store.ListProgress(ctx, "u1", "c1")
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}
