package db

import (
	"context"
	"sort"
	"time"

	"learnedge/models"
)

// Store is the persistence contract of the service. Both the JSON document
// store (Database) and the gorm-backed SQLStore implement it, and every
// method returns *apperr.Error values for NotFound and Conflict outcomes.
type Store interface {
	CreateAccount(ctx context.Context, account models.Account) (models.Account, error)
	GetAccountByID(ctx context.Context, id string) (models.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (models.Account, error)

	CreateCourse(ctx context.Context, course models.Course) (models.Course, error)
	GetCourse(ctx context.Context, id string) (models.Course, error)
	ListCourses(ctx context.Context) ([]models.Course, error)
	ListCoursesByInstructor(ctx context.Context, instructorID string) ([]models.Course, error)
	// ReplaceCourse overwrites the editable fields of a course. The id, owner,
	// enrollments and creation time of the stored course are preserved.
	ReplaceCourse(ctx context.Context, id string, course models.Course) (models.Course, error)
	DeleteCourse(ctx context.Context, id string) error

	CreateOrder(ctx context.Context, order models.Order) (models.Order, error)
	GetOrder(ctx context.Context, id string) (models.Order, error)
	UpdateOrder(ctx context.Context, order models.Order) (models.Order, error)
	// CompleteOrder approves a pending order and records the purchase on both
	// the course enrollment list and the student's entitlement record in one
	// atomic unit. Completing an approved order returns it unchanged.
	CompleteOrder(ctx context.Context, orderID string, capture CaptureDetails) (models.Order, error)
	// FailOrder marks a pending order failed. An order that already left the
	// pending state is returned unchanged.
	FailOrder(ctx context.Context, orderID, payerID string) (models.Order, error)

	GetStudentCourses(ctx context.Context, studentID string) (models.StudentCourses, error)

	ListProgress(ctx context.Context, userID, courseID string) ([]models.ProgressRecord, error)
	// MarkLectureViewed stores the record unless one already exists for the
	// (user, course, lecture) triple. It reports whether a record was created.
	MarkLectureViewed(ctx context.Context, record models.ProgressRecord) (bool, error)
	ResetProgress(ctx context.Context, userID, courseID string) (int, error)

	Ping(ctx context.Context) error
	Close() error
}

// CaptureDetails are the processor identifiers recorded on a completed order.
type CaptureDetails struct {
	PaymentID  string
	PayerID    string
	CapturedAt time.Time
}

func sortCourses(courses []models.Course) {
	sort.SliceStable(courses, func(i, j int) bool {
		if courses[i].CreatedAt.Equal(courses[j].CreatedAt) {
			return courses[i].ID < courses[j].ID
		}
		return courses[i].CreatedAt.Before(courses[j].CreatedAt)
	})
}

func sortProgress(records []models.ProgressRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].ViewedAt.Equal(records[j].ViewedAt) {
			return records[i].LectureID < records[j].LectureID
		}
		return records[i].ViewedAt.Before(records[j].ViewedAt)
	})
}

// enrollmentFor builds the course-side snapshot of a purchase.
func enrollmentFor(order models.Order) models.Enrollment {
	return models.Enrollment{
		StudentID:    order.UserID,
		StudentName:  order.UserName,
		StudentEmail: order.UserEmail,
		PaidAmount:   order.CoursePricing,
	}
}

// purchaseFor builds the student-side snapshot of a purchase.
func purchaseFor(order models.Order, at time.Time) models.PurchasedCourse {
	return models.PurchasedCourse{
		UserID:         order.UserID,
		CourseID:       order.CourseID,
		Title:          order.CourseTitle,
		InstructorID:   order.InstructorID,
		InstructorName: order.InstructorName,
		DateOfPurchase: at,
		CourseImage:    order.CourseImage,
	}
}

// approve applies the capture to an order value.
func approve(order *models.Order, capture CaptureDetails) {
	at := capture.CapturedAt
	order.OrderStatus = models.OrderApproved
	order.PaymentStatus = models.PaymentPaid
	if capture.PaymentID != "" {
		order.PaymentID = capture.PaymentID
	}
	order.PayerID = capture.PayerID
	order.CapturedAt = &at
}

// fail applies a processor decline to an order value.
func fail(order *models.Order, payerID string) {
	order.OrderStatus = models.OrderFailed
	order.PaymentStatus = models.PaymentFailed
	if payerID != "" {
		order.PayerID = payerID
	}
}
