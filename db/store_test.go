package db

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"learnedge/apperr"
	"learnedge/config"
	"learnedge/logger"
	"learnedge/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactories runs every contract test against both backends.
func storeFactories() map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"json": func(t *testing.T) Store {
			database, _ := setupTestDB(t)
			return database
		},
		"sqlite": func(t *testing.T) Store {
			cfg := &config.Config{
				StoreDriver: config.StoreSQLite,
				DatabaseDSN: filepath.Join(t.TempDir(), "test.db"),
			}
			store, err := Open(cfg, logger.NewNop())
			require.NoError(t, err)
			t.Cleanup(func() { _ = store.Close() })
			return store
		},
	}
}

func forEachStore(t *testing.T, fn func(t *testing.T, store Store)) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

func sampleCourse(instructorID string) models.Course {
	return models.Course{
		InstructorID:    instructorID,
		InstructorName:  "Grace",
		Title:           "Distributed Systems",
		Category:        "systems",
		Level:           "advanced",
		PrimaryLanguage: "english",
		Pricing:         49.99,
		Objectives:      []string{"Reason about consistency"},
		Image:           models.CourseImage{URL: "https://img.example.com/ds.png", PublicID: "ds"},
		Curriculum: []models.Section{{
			ID:    "s1",
			Title: "Foundations",
			Lectures: []models.Lecture{
				{ID: "l1", Title: "Clocks", Duration: "12:00"},
				{ID: "l2", Title: "Consensus", Duration: "1:02:00"},
			},
		}},
		IsPublished: true,
	}
}

func pendingOrder(student models.Account, course models.Course) models.Order {
	return models.Order{
		UserID:         student.ID,
		UserName:       student.UserName,
		UserEmail:      student.UserEmail,
		OrderStatus:    models.OrderPending,
		PaymentMethod:  "sandbox",
		PaymentStatus:  models.PaymentInitiated,
		PaymentID:      "PAY-1",
		InstructorID:   course.InstructorID,
		InstructorName: course.InstructorName,
		CourseImage:    course.Image.URL,
		CourseTitle:    course.Title,
		CourseID:       course.ID,
		CoursePricing:  course.Pricing,
	}
}

func TestStore_Accounts(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		created, err := store.CreateAccount(ctx, models.Account{UserName: "ada", UserEmail: "ada@example.com", PasswordHash: "h", Role: models.RoleUser})
		require.NoError(t, err)
		assert.Len(t, created.ID, 32)
		assert.False(t, created.CreatedAt.IsZero())

		_, err = store.CreateAccount(ctx, models.Account{UserName: "other", UserEmail: "ADA@example.com", PasswordHash: "h"})
		assert.Equal(t, apperr.KindConflict, apperr.KindOf(err), "email is unique regardless of case")

		_, err = store.CreateAccount(ctx, models.Account{UserName: "Ada", UserEmail: "new@example.com", PasswordHash: "h"})
		assert.Equal(t, apperr.KindConflict, apperr.KindOf(err), "user name is unique")

		byEmail, err := store.GetAccountByEmail(ctx, "Ada@Example.com")
		require.NoError(t, err)
		assert.Equal(t, created.ID, byEmail.ID)

		byID, err := store.GetAccountByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "ada", byID.UserName)

		_, err = store.GetAccountByID(ctx, "missing")
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
		_, err = store.GetAccountByEmail(ctx, "missing@example.com")
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})
}

func TestStore_Courses(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		first, err := store.CreateCourse(ctx, sampleCourse("inst-1"))
		require.NoError(t, err)
		require.NotEmpty(t, first.ID)
		second, err := store.CreateCourse(ctx, sampleCourse("inst-2"))
		require.NoError(t, err)

		got, err := store.GetCourse(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, "Distributed Systems", got.Title)
		assert.Equal(t, []string{"l1", "l2"}, got.LectureIDs())
		assert.Equal(t, "ds", got.Image.PublicID)
		assert.Equal(t, []string{"Reason about consistency"}, got.Objectives)

		all, err := store.ListCourses(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)

		mine, err := store.ListCoursesByInstructor(ctx, "inst-2")
		require.NoError(t, err)
		require.Len(t, mine, 1)
		assert.Equal(t, second.ID, mine[0].ID)

		t.Run("Replace keeps owner, enrollments and creation time", func(t *testing.T) {
			student, err := store.CreateAccount(ctx, models.Account{UserName: "stu", UserEmail: "stu@example.com", PasswordHash: "h"})
			require.NoError(t, err)
			order, err := store.CreateOrder(ctx, pendingOrder(student, first))
			require.NoError(t, err)
			_, err = store.CompleteOrder(ctx, order.ID, CaptureDetails{PaymentID: "PAY-1", PayerID: "PAYER", CapturedAt: time.Now().UTC()})
			require.NoError(t, err)

			update := sampleCourse("someone-else")
			update.Title = "Distributed Systems, 2nd edition"
			update.Students = nil
			replaced, err := store.ReplaceCourse(ctx, first.ID, update)
			require.NoError(t, err)

			assert.Equal(t, first.ID, replaced.ID)
			assert.Equal(t, "inst-1", replaced.InstructorID)
			assert.Equal(t, "Distributed Systems, 2nd edition", replaced.Title)
			require.Len(t, replaced.Students, 1)
			assert.Equal(t, student.ID, replaced.Students[0].StudentID)
			assert.True(t, replaced.CreatedAt.Equal(first.CreatedAt) || replaced.CreatedAt.Sub(first.CreatedAt).Abs() < time.Millisecond)

			reloaded, err := store.GetCourse(ctx, first.ID)
			require.NoError(t, err)
			assert.Equal(t, replaced.Title, reloaded.Title)
			assert.Len(t, reloaded.Students, 1)
		})

		_, err = store.ReplaceCourse(ctx, "missing", sampleCourse("inst-1"))
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

		require.NoError(t, store.DeleteCourse(ctx, second.ID))
		_, err = store.GetCourse(ctx, second.ID)
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(store.DeleteCourse(ctx, second.ID)))
	})
}

func TestStore_CompleteOrder(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		student, err := store.CreateAccount(ctx, models.Account{UserName: "stu", UserEmail: "stu@example.com", PasswordHash: "h"})
		require.NoError(t, err)
		course, err := store.CreateCourse(ctx, sampleCourse("inst-1"))
		require.NoError(t, err)

		order, err := store.CreateOrder(ctx, pendingOrder(student, course))
		require.NoError(t, err)
		assert.False(t, order.OrderDate.IsZero())

		empty, err := store.GetStudentCourses(ctx, student.ID)
		require.NoError(t, err)
		assert.NotNil(t, empty.Courses)
		assert.Empty(t, empty.Courses)

		capturedAt := time.Now().UTC()
		completed, err := store.CompleteOrder(ctx, order.ID, CaptureDetails{PaymentID: "PAY-1", PayerID: "PAYER-9", CapturedAt: capturedAt})
		require.NoError(t, err)
		assert.Equal(t, models.OrderApproved, completed.OrderStatus)
		assert.Equal(t, models.PaymentPaid, completed.PaymentStatus)
		assert.Equal(t, "PAYER-9", completed.PayerID)
		require.NotNil(t, completed.CapturedAt)

		t.Run("Capturing twice changes nothing", func(t *testing.T) {
			again, err := store.CompleteOrder(ctx, order.ID, CaptureDetails{PaymentID: "PAY-1", PayerID: "PAYER-9", CapturedAt: time.Now().UTC()})
			require.NoError(t, err)
			assert.Equal(t, models.OrderApproved, again.OrderStatus)

			record, err := store.GetStudentCourses(ctx, student.ID)
			require.NoError(t, err)
			require.Len(t, record.Courses, 1)
			assert.Equal(t, course.ID, record.Courses[0].CourseID)
			assert.Equal(t, course.Title, record.Courses[0].Title)

			reloaded, err := store.GetCourse(ctx, course.ID)
			require.NoError(t, err)
			require.Len(t, reloaded.Students, 1)
			assert.Equal(t, models.Enrollment{
				StudentID:    student.ID,
				StudentName:  "stu",
				StudentEmail: "stu@example.com",
				PaidAmount:   49.99,
			}, reloaded.Students[0])
		})

		t.Run("A second order for the same course adds no duplicates", func(t *testing.T) {
			dup, err := store.CreateOrder(ctx, pendingOrder(student, course))
			require.NoError(t, err)
			_, err = store.CompleteOrder(ctx, dup.ID, CaptureDetails{PaymentID: "PAY-2", CapturedAt: time.Now().UTC()})
			require.NoError(t, err)

			record, err := store.GetStudentCourses(ctx, student.ID)
			require.NoError(t, err)
			assert.Len(t, record.Courses, 1)
			reloaded, err := store.GetCourse(ctx, course.ID)
			require.NoError(t, err)
			assert.Len(t, reloaded.Students, 1)
		})

		t.Run("Failed orders cannot be completed", func(t *testing.T) {
			failed := pendingOrder(student, course)
			failed.OrderStatus = models.OrderFailed
			failed.PaymentStatus = models.PaymentFailed
			created, err := store.CreateOrder(ctx, failed)
			require.NoError(t, err)
			_, err = store.CompleteOrder(ctx, created.ID, CaptureDetails{CapturedAt: time.Now().UTC()})
			assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
		})

		t.Run("Unknown order", func(t *testing.T) {
			_, err := store.CompleteOrder(ctx, "missing", CaptureDetails{})
			assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
		})

		t.Run("Deleting the course leaves orders and entitlements", func(t *testing.T) {
			require.NoError(t, store.DeleteCourse(ctx, course.ID))

			stored, err := store.GetOrder(ctx, order.ID)
			require.NoError(t, err)
			assert.Equal(t, course.ID, stored.CourseID)

			record, err := store.GetStudentCourses(ctx, student.ID)
			require.NoError(t, err)
			require.Len(t, record.Courses, 1)
			assert.Equal(t, course.ID, record.Courses[0].CourseID)
		})
	})
}

func TestStore_UpdateOrder(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		student := models.Account{ID: "stu", UserName: "stu", UserEmail: "stu@example.com"}
		order, err := store.CreateOrder(ctx, pendingOrder(student, sampleCourse("inst")))
		require.NoError(t, err)

		order.OrderStatus = models.OrderFailed
		order.PaymentStatus = models.PaymentFailed
		_, err = store.UpdateOrder(ctx, order)
		require.NoError(t, err)

		got, err := store.GetOrder(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, models.OrderFailed, got.OrderStatus)

		_, err = store.UpdateOrder(ctx, models.Order{ID: "missing"})
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})
}

func TestStore_FailOrder(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		student := models.Account{ID: "stu", UserName: "stu", UserEmail: "stu@example.com"}

		t.Run("Pending order fails", func(t *testing.T) {
			order, err := store.CreateOrder(ctx, pendingOrder(student, sampleCourse("inst")))
			require.NoError(t, err)

			failed, err := store.FailOrder(ctx, order.ID, "PAYER")
			require.NoError(t, err)
			assert.Equal(t, models.OrderFailed, failed.OrderStatus)
			assert.Equal(t, models.PaymentFailed, failed.PaymentStatus)
			assert.Equal(t, "PAYER", failed.PayerID)

			got, err := store.GetOrder(ctx, order.ID)
			require.NoError(t, err)
			assert.Equal(t, models.OrderFailed, got.OrderStatus)
		})

		t.Run("Approved order is left alone", func(t *testing.T) {
			order, err := store.CreateOrder(ctx, pendingOrder(student, sampleCourse("inst")))
			require.NoError(t, err)
			_, err = store.CompleteOrder(ctx, order.ID, CaptureDetails{PaymentID: "PAY-1", PayerID: "WINNER", CapturedAt: time.Now().UTC()})
			require.NoError(t, err)

			got, err := store.FailOrder(ctx, order.ID, "LOSER")
			require.NoError(t, err)
			assert.Equal(t, models.OrderApproved, got.OrderStatus)
			assert.Equal(t, models.PaymentPaid, got.PaymentStatus)
			assert.Equal(t, "WINNER", got.PayerID)

			stored, err := store.GetOrder(ctx, order.ID)
			require.NoError(t, err)
			assert.Equal(t, models.OrderApproved, stored.OrderStatus)
		})

		t.Run("Unknown order", func(t *testing.T) {
			_, err := store.FailOrder(ctx, "missing", "")
			assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
		})
	})
}

func TestStore_Progress(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		rec := models.ProgressRecord{UserID: "u1", CourseID: "c1", LectureID: "l1"}

		created, err := store.MarkLectureViewed(ctx, rec)
		require.NoError(t, err)
		assert.True(t, created)

		created, err = store.MarkLectureViewed(ctx, rec)
		require.NoError(t, err)
		assert.False(t, created, "the same triple is stored at most once")

		_, err = store.MarkLectureViewed(ctx, models.ProgressRecord{UserID: "u1", CourseID: "c1", LectureID: "l2"})
		require.NoError(t, err)
		_, err = store.MarkLectureViewed(ctx, models.ProgressRecord{UserID: "u1", CourseID: "c2", LectureID: "l1"})
		require.NoError(t, err)
		_, err = store.MarkLectureViewed(ctx, models.ProgressRecord{UserID: "u2", CourseID: "c1", LectureID: "l1"})
		require.NoError(t, err)

		records, err := store.ListProgress(ctx, "u1", "c1")
		require.NoError(t, err)
		require.Len(t, records, 2)
		for _, r := range records {
			assert.False(t, r.ViewedAt.IsZero())
		}

		removed, err := store.ResetProgress(ctx, "u1", "c1")
		require.NoError(t, err)
		assert.Equal(t, 2, removed)

		records, err = store.ListProgress(ctx, "u1", "c1")
		require.NoError(t, err)
		assert.NotNil(t, records)
		assert.Empty(t, records)

		other, err := store.ListProgress(ctx, "u1", "c2")
		require.NoError(t, err)
		assert.Len(t, other, 1, "reset is scoped to the (user, course) pair")
		other, err = store.ListProgress(ctx, "u2", "c1")
		require.NoError(t, err)
		assert.Len(t, other, 1)
	})
}

func TestStore_ConcurrentMarkViewed(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		var wg sync.WaitGroup
		var mu sync.Mutex
		createdCount := 0
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				created, err := store.MarkLectureViewed(ctx, models.ProgressRecord{UserID: "u", CourseID: "c", LectureID: "l"})
				assert.NoError(t, err)
				if created {
					mu.Lock()
					createdCount++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, createdCount)
		records, err := store.ListProgress(ctx, "u", "c")
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})
}

func TestStore_Ping(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		assert.NoError(t, store.Ping(context.Background()))
	})
}
