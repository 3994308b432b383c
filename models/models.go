package models

import (
	"sync"
	"time"
)

// Account roles.
const (
	RoleUser       = "user"
	RoleInstructor = "instructor"
)

// Order lifecycle values.
const (
	OrderPending  = "pending"
	OrderApproved = "approved"
	OrderFailed   = "failed"

	PaymentInitiated = "initiated"
	PaymentPaid      = "paid"
	PaymentFailed    = "failed"
)

// Account is a registered user. It is never updated after registration.
type Account struct {
	ID           string    `json:"id" gorm:"primaryKey;size:32"`              // Dashless UUID
	UserName     string    `json:"user_name" gorm:"uniqueIndex;not null"`     // Unique handle
	UserEmail    string    `json:"user_email" gorm:"uniqueIndex;not null"`    // Unique, lower-cased, used for login
	PasswordHash string    `json:"password_hash" gorm:"not null"`             // Persisted, never returned by the API
	Role         string    `json:"role" gorm:"not null;default:user"`         // RoleUser or RoleInstructor
	CreatedAt    time.Time `json:"created_at"`
}

// AccountView is the public projection of an Account.
type AccountView struct {
	ID        string `json:"id"`
	UserName  string `json:"user_name"`
	UserEmail string `json:"user_email"`
	Role      string `json:"role"`
}

func (a Account) View() AccountView {
	return AccountView{ID: a.ID, UserName: a.UserName, UserEmail: a.UserEmail, Role: a.Role}
}

// Identity is the set of claims carried by a verified bearer token.
type Identity struct {
	UserID    string `json:"id"`
	UserName  string `json:"user_name"`
	UserEmail string `json:"user_email"`
	Role      string `json:"role"`
}

// CourseImage references an asset stored on the external media host.
type CourseImage struct {
	URL      string `json:"url" validate:"omitempty,url"`
	PublicID string `json:"public_id"`
}

// Lecture is a single viewable unit of a course.
type Lecture struct {
	ID          string `json:"id"`
	Title       string `json:"title" validate:"required,max=200"`
	VideoURL    string `json:"video_url,omitempty" validate:"omitempty,url"`
	PublicID    string `json:"public_id,omitempty"`
	Duration    string `json:"duration,omitempty" validate:"omitempty,clockduration"` // M:SS or H:MM:SS
	FreePreview bool   `json:"free_preview"`
}

// Section groups lectures in curriculum order.
type Section struct {
	ID       string    `json:"id"`
	Title    string    `json:"title" validate:"required,max=200"`
	Lectures []Lecture `json:"lectures" validate:"required,min=1,dive"`
}

// Enrollment is the snapshot of a student appended to a course at capture.
type Enrollment struct {
	StudentID    string  `json:"student_id"`
	StudentName  string  `json:"student_name"`
	StudentEmail string  `json:"student_email"`
	PaidAmount   float64 `json:"paid_amount"`
}

// Course is an instructor-owned catalog entry with its curriculum.
type Course struct {
	ID              string       `json:"id" gorm:"primaryKey;size:32"`
	InstructorID    string       `json:"instructor_id" gorm:"index;not null"`
	InstructorName  string       `json:"instructor_name"`
	Title           string       `json:"title" validate:"required,max=200"`
	Category        string       `json:"category" validate:"required"`
	Level           string       `json:"level" validate:"required,oneof=beginner intermediate advanced"`
	PrimaryLanguage string       `json:"primary_language" validate:"required"`
	Subtitle        string       `json:"subtitle"`
	Description     string       `json:"description"`
	WelcomeMessage  string       `json:"welcome_message"`
	Pricing         float64      `json:"pricing" validate:"gte=0"`
	Objectives      []string     `json:"objectives" gorm:"serializer:json" validate:"dive,required"`
	Image           CourseImage  `json:"image" gorm:"serializer:json"`
	Students        []Enrollment `json:"students" gorm:"serializer:json"`
	Curriculum      []Section    `json:"curriculum" gorm:"serializer:json" validate:"required,min=1,dive"`
	IsPublished     bool         `json:"is_published" gorm:"index"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// CourseView is a course as students see it. It leaves out the enrollment
// list, which only the owning instructor may read.
type CourseView struct {
	ID              string      `json:"id"`
	InstructorID    string      `json:"instructor_id"`
	InstructorName  string      `json:"instructor_name"`
	Title           string      `json:"title"`
	Category        string      `json:"category"`
	Level           string      `json:"level"`
	PrimaryLanguage string      `json:"primary_language"`
	Subtitle        string      `json:"subtitle"`
	Description     string      `json:"description"`
	WelcomeMessage  string      `json:"welcome_message"`
	Pricing         float64     `json:"pricing"`
	Objectives      []string    `json:"objectives"`
	Image           CourseImage `json:"image"`
	Curriculum      []Section   `json:"curriculum"`
	IsPublished     bool        `json:"is_published"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

func (c Course) View() CourseView {
	return CourseView{
		ID:              c.ID,
		InstructorID:    c.InstructorID,
		InstructorName:  c.InstructorName,
		Title:           c.Title,
		Category:        c.Category,
		Level:           c.Level,
		PrimaryLanguage: c.PrimaryLanguage,
		Subtitle:        c.Subtitle,
		Description:     c.Description,
		WelcomeMessage:  c.WelcomeMessage,
		Pricing:         c.Pricing,
		Objectives:      c.Objectives,
		Image:           c.Image,
		Curriculum:      c.Curriculum,
		IsPublished:     c.IsPublished,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

// Order is a purchase attempt with denormalized buyer and course fields.
type Order struct {
	ID             string     `json:"id" gorm:"primaryKey;size:32"`
	UserID         string     `json:"user_id" gorm:"index;not null"`
	UserName       string     `json:"user_name"`
	UserEmail      string     `json:"user_email"`
	OrderStatus    string     `json:"order_status" gorm:"not null"`
	PaymentMethod  string     `json:"payment_method"`
	PaymentStatus  string     `json:"payment_status" gorm:"not null"`
	OrderDate      time.Time  `json:"order_date"`
	PaymentID      string     `json:"payment_id" gorm:"index"`
	PayerID        string     `json:"payer_id"`
	InstructorID   string     `json:"instructor_id"`
	InstructorName string     `json:"instructor_name"`
	CourseImage    string     `json:"course_image"`
	CourseTitle    string     `json:"course_title"`
	CourseID       string     `json:"course_id" gorm:"index"`
	CoursePricing  float64    `json:"course_pricing"`
	CapturedAt     *time.Time `json:"captured_at,omitempty"`
}

// PurchasedCourse is one entry of a student's entitlement record.
type PurchasedCourse struct {
	UserID         string    `json:"-" gorm:"primaryKey;size:32"`
	CourseID       string    `json:"course_id" gorm:"primaryKey;size:32"`
	Title          string    `json:"title"`
	InstructorID   string    `json:"instructor_id"`
	InstructorName string    `json:"instructor_name"`
	DateOfPurchase time.Time `json:"date_of_purchase"`
	CourseImage    string    `json:"course_image"`
}

// StudentCourses is the entitlement record of one student.
type StudentCourses struct {
	UserID  string            `json:"user_id"`
	Courses []PurchasedCourse `json:"courses"`
}

// ProgressRecord is a single "lecture viewed" fact.
type ProgressRecord struct {
	UserID    string    `json:"user_id" gorm:"primaryKey;size:32"`
	CourseID  string    `json:"course_id" gorm:"primaryKey;size:32"`
	LectureID string    `json:"lecture_id" gorm:"primaryKey;size:32"`
	ViewedAt  time.Time `json:"viewed_at"`
}

// Key is the composite key used by the JSON store.
func (p ProgressRecord) Key() string {
	return ProgressKey(p.UserID, p.CourseID, p.LectureID)
}

func ProgressKey(userID, courseID, lectureID string) string {
	return userID + "|" + courseID + "|" + lectureID
}

// Collections holds every persisted collection of the JSON store.
type Collections struct {
	Accounts       map[string]Account        `json:"accounts"`        // Keyed by account ID
	Courses        map[string]Course         `json:"courses"`         // Keyed by course ID
	Orders         map[string]Order          `json:"orders"`          // Keyed by order ID
	StudentCourses map[string]StudentCourses `json:"student_courses"` // Keyed by student ID
	Progress       map[string]ProgressRecord `json:"progress"`        // Keyed by ProgressKey

	Mu sync.RWMutex `json:"-"`
}
