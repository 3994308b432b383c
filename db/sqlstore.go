package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"learnedge/apperr"
	"learnedge/logger"
	"learnedge/models"
	"learnedge/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQLStore implements Store on gorm. It runs on postgres in production and on
// sqlite for local use and tests.
type SQLStore struct {
	db  *gorm.DB
	log *logger.Logger
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore migrates the schema and returns a ready store.
func NewSQLStore(gdb *gorm.DB, log *logger.Logger) (*SQLStore, error) {
	s := &SQLStore{db: gdb, log: log.With("component", "sqlstore")}
	if err := s.AutoMigrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) AutoMigrate() error {
	if err := s.db.AutoMigrate(
		&models.Account{},
		&models.Course{},
		&models.Order{},
		&models.PurchasedCourse{},
		&models.ProgressRecord{},
	); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	s.log.Info("schema migrated", "dialect", s.db.Dialector.Name())
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// translate maps gorm errors onto the service error kinds.
func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.NotFound("%s not found", what)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperr.Conflict("%s already exists", what)
	default:
		return apperr.Internal(err, "%s query failed", what)
	}
}

// --- Accounts ---

func (s *SQLStore) CreateAccount(ctx context.Context, account models.Account) (models.Account, error) {
	var taken int64
	err := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("LOWER(user_email) = ?", strings.ToLower(account.UserEmail)).
		Count(&taken).Error
	if err != nil {
		return models.Account{}, translate(err, "account")
	}
	if taken > 0 {
		return models.Account{}, apperr.Conflict("an account with this email already exists")
	}
	err = s.db.WithContext(ctx).Model(&models.Account{}).
		Where("LOWER(user_name) = ?", strings.ToLower(account.UserName)).
		Count(&taken).Error
	if err != nil {
		return models.Account{}, translate(err, "account")
	}
	if taken > 0 {
		return models.Account{}, apperr.Conflict("an account with this user name already exists")
	}

	if account.ID == "" {
		account.ID = utils.GenerateDashlessUUID()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(&account).Error; err != nil {
		return models.Account{}, translate(err, "account")
	}
	return account, nil
}

func (s *SQLStore) GetAccountByID(ctx context.Context, id string) (models.Account, error) {
	var account models.Account
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&account).Error
	return account, translate(err, "account")
}

func (s *SQLStore) GetAccountByEmail(ctx context.Context, email string) (models.Account, error) {
	var account models.Account
	err := s.db.WithContext(ctx).Where("LOWER(user_email) = ?", strings.ToLower(email)).First(&account).Error
	return account, translate(err, "account")
}

// --- Courses ---

func (s *SQLStore) CreateCourse(ctx context.Context, course models.Course) (models.Course, error) {
	if course.ID == "" {
		course.ID = utils.GenerateDashlessUUID()
	}
	now := time.Now().UTC()
	course.CreatedAt = now
	course.UpdatedAt = now
	if course.Students == nil {
		course.Students = []models.Enrollment{}
	}
	if err := s.db.WithContext(ctx).Create(&course).Error; err != nil {
		return models.Course{}, translate(err, "course")
	}
	return course, nil
}

func (s *SQLStore) GetCourse(ctx context.Context, id string) (models.Course, error) {
	var course models.Course
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&course).Error
	return course, translate(err, "course")
}

func (s *SQLStore) ListCourses(ctx context.Context) ([]models.Course, error) {
	var courses []models.Course
	err := s.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&courses).Error
	if err != nil {
		return nil, translate(err, "course")
	}
	return courses, nil
}

func (s *SQLStore) ListCoursesByInstructor(ctx context.Context, instructorID string) ([]models.Course, error) {
	var courses []models.Course
	err := s.db.WithContext(ctx).Where("instructor_id = ?", instructorID).
		Order("created_at ASC, id ASC").Find(&courses).Error
	if err != nil {
		return nil, translate(err, "course")
	}
	return courses, nil
}

func (s *SQLStore) ReplaceCourse(ctx context.Context, id string, course models.Course) (models.Course, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Course
		if err := lockForUpdate(tx).Where("id = ?", id).First(&existing).Error; err != nil {
			return translate(err, "course")
		}
		course.ID = existing.ID
		course.InstructorID = existing.InstructorID
		course.InstructorName = existing.InstructorName
		course.Students = existing.Students
		course.CreatedAt = existing.CreatedAt
		course.UpdatedAt = time.Now().UTC()
		return translate(tx.Save(&course).Error, "course")
	})
	if err != nil {
		return models.Course{}, err
	}
	return course, nil
}

func (s *SQLStore) DeleteCourse(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Course{})
	if res.Error != nil {
		return translate(res.Error, "course")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("course not found")
	}
	return nil
}

// --- Orders ---

func (s *SQLStore) CreateOrder(ctx context.Context, order models.Order) (models.Order, error) {
	if order.ID == "" {
		order.ID = utils.GenerateDashlessUUID()
	}
	if order.OrderDate.IsZero() {
		order.OrderDate = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(&order).Error; err != nil {
		return models.Order{}, translate(err, "order")
	}
	return order, nil
}

func (s *SQLStore) GetOrder(ctx context.Context, id string) (models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&order).Error
	return order, translate(err, "order")
}

func (s *SQLStore) UpdateOrder(ctx context.Context, order models.Order) (models.Order, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Order
		if err := lockForUpdate(tx).Where("id = ?", order.ID).First(&existing).Error; err != nil {
			return translate(err, "order")
		}
		return translate(tx.Save(&order).Error, "order")
	})
	if err != nil {
		return models.Order{}, err
	}
	return order, nil
}

func (s *SQLStore) CompleteOrder(ctx context.Context, orderID string, capture CaptureDetails) (models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).Where("id = ?", orderID).First(&order).Error; err != nil {
			return translate(err, "order")
		}
		switch order.OrderStatus {
		case models.OrderApproved:
			return nil
		case models.OrderFailed:
			return apperr.Conflict("order has already failed")
		}

		approve(&order, capture)
		if err := tx.Save(&order).Error; err != nil {
			return translate(err, "order")
		}

		var course models.Course
		err := lockForUpdate(tx).Where("id = ?", order.CourseID).First(&course).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			// Course deleted since checkout; the entitlement is still recorded.
		case err != nil:
			return translate(err, "course")
		case !course.HasStudent(order.UserID):
			course.Students = append(course.Students, enrollmentFor(order))
			if err := tx.Save(&course).Error; err != nil {
				return translate(err, "course")
			}
		}

		purchase := purchaseFor(order, capture.CapturedAt)
		return translate(tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&purchase).Error, "entitlement")
	})
	if err != nil {
		return models.Order{}, err
	}
	return order, nil
}

func (s *SQLStore) FailOrder(ctx context.Context, orderID, payerID string) (models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).Where("id = ?", orderID).First(&order).Error; err != nil {
			return translate(err, "order")
		}
		if order.OrderStatus != models.OrderPending {
			return nil
		}
		fail(&order, payerID)
		res := tx.Model(&models.Order{}).
			Where("id = ? AND order_status = ?", orderID, models.OrderPending).
			Updates(map[string]interface{}{
				"order_status":   order.OrderStatus,
				"payment_status": order.PaymentStatus,
				"payer_id":       order.PayerID,
			})
		if res.Error != nil {
			return translate(res.Error, "order")
		}
		if res.RowsAffected == 0 {
			// Completed by a concurrent capture between the read and the update.
			return translate(tx.Where("id = ?", orderID).First(&order).Error, "order")
		}
		return nil
	})
	if err != nil {
		return models.Order{}, err
	}
	return order, nil
}

// lockForUpdate adds SELECT ... FOR UPDATE where the dialect supports it.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// --- Entitlements ---

func (s *SQLStore) GetStudentCourses(ctx context.Context, studentID string) (models.StudentCourses, error) {
	courses := []models.PurchasedCourse{}
	err := s.db.WithContext(ctx).Where("user_id = ?", studentID).
		Order("date_of_purchase ASC, course_id ASC").Find(&courses).Error
	if err != nil {
		return models.StudentCourses{}, translate(err, "entitlement")
	}
	return models.StudentCourses{UserID: studentID, Courses: courses}, nil
}

// --- Progress ---

func (s *SQLStore) ListProgress(ctx context.Context, userID, courseID string) ([]models.ProgressRecord, error) {
	records := []models.ProgressRecord{}
	err := s.db.WithContext(ctx).Where("user_id = ? AND course_id = ?", userID, courseID).
		Order("viewed_at ASC, lecture_id ASC").Find(&records).Error
	if err != nil {
		return nil, translate(err, "progress")
	}
	return records, nil
}

func (s *SQLStore) MarkLectureViewed(ctx context.Context, record models.ProgressRecord) (bool, error) {
	if record.ViewedAt.IsZero() {
		record.ViewedAt = time.Now().UTC()
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&record)
	if res.Error != nil {
		return false, translate(res.Error, "progress")
	}
	return res.RowsAffected > 0, nil
}

func (s *SQLStore) ResetProgress(ctx context.Context, userID, courseID string) (int, error) {
	res := s.db.WithContext(ctx).Where("user_id = ? AND course_id = ?", userID, courseID).
		Delete(&models.ProgressRecord{})
	if res.Error != nil {
		return 0, translate(res.Error, "progress")
	}
	return int(res.RowsAffected), nil
}
