package db

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"learnedge/apperr"
	"learnedge/config"
	"learnedge/logger"
	"learnedge/models"
	"learnedge/utils"
)

// Database is the JSON document store. All collections live in memory behind
// the embedded RWMutex and are written to a single file after a debounce.
type Database struct {
	models.Collections
	config      *config.Config
	log         *logger.Logger
	saveTimer   *time.Timer // Timer for debounced saving
	savePending bool        // A save is queued
	saveMutex   sync.Mutex  // Guards saveTimer and savePending
	persistMu   sync.Mutex  // Serializes writes of the data file
	inflight    sync.WaitGroup
}

var _ Store = (*Database)(nil)

// NewDatabase creates the store and loads any existing data file.
// A missing file starts an empty store; an unreadable or corrupt file is an error.
func NewDatabase(cfg *config.Config, log *logger.Logger) (*Database, error) {
	db := &Database{config: cfg, log: log.With("component", "jsonstore")}
	db.initCollections()

	db.log.Info("initializing database", "file", cfg.DbFilePath)
	if err := db.Load(); err != nil {
		return nil, err
	}
	return db, nil
}

func (db *Database) initCollections() {
	if db.Accounts == nil {
		db.Accounts = make(map[string]models.Account)
	}
	if db.Courses == nil {
		db.Courses = make(map[string]models.Course)
	}
	if db.Orders == nil {
		db.Orders = make(map[string]models.Order)
	}
	if db.StudentCourses == nil {
		db.StudentCourses = make(map[string]models.StudentCourses)
	}
	if db.Progress == nil {
		db.Progress = make(map[string]models.ProgressRecord)
	}
}

// Load reads the database state from the configured JSON file.
func (db *Database) Load() error {
	db.Mu.Lock()
	defer db.Mu.Unlock()

	fileData, err := os.ReadFile(db.config.DbFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			db.log.Info("database file not found, starting empty", "file", db.config.DbFilePath)
			return nil
		}
		return fmt.Errorf("reading database file %q: %w", db.config.DbFilePath, err)
	}

	if err := json.Unmarshal(fileData, &db.Collections); err != nil {
		db.initCollections()
		return fmt.Errorf("parsing database file %q: %w", db.config.DbFilePath, err)
	}
	// A file may carry null for a collection.
	db.initCollections()

	db.log.Info("loaded database",
		"file", db.config.DbFilePath,
		"accounts", len(db.Accounts),
		"courses", len(db.Courses),
		"orders", len(db.Orders),
		"student_courses", len(db.StudentCourses),
		"progress", len(db.Progress),
	)
	return nil
}

// persist writes the current state to disk: tmp file, optional .bak, rename.
func (db *Database) persist() error {
	db.persistMu.Lock()
	defer db.persistMu.Unlock()

	db.Mu.RLock()
	jsonData, err := json.MarshalIndent(&db.Collections, "", "  ")
	db.Mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshalling database state: %w", err)
	}

	path := db.config.DbFilePath
	tempFilePath := path + ".tmp"
	if err := os.WriteFile(tempFilePath, jsonData, 0644); err != nil {
		return fmt.Errorf("writing temporary database file: %w", err)
	}

	if db.config.EnableBackup {
		if _, err := os.Stat(path); err == nil {
			if err := os.Rename(path, path+".bak"); err != nil {
				db.log.Warn("failed to create backup, continuing with save", "file", path, "error", err)
			}
		} else if !os.IsNotExist(err) {
			db.log.Warn("failed to stat database file before backup", "file", path, "error", err)
		}
	}

	if err := os.Rename(tempFilePath, path); err != nil {
		_ = os.Remove(tempFilePath)
		return fmt.Errorf("renaming temporary database file: %w", err)
	}
	db.log.Debug("database saved", "file", path, "bytes", len(jsonData))
	return nil
}

// requestSave schedules a debounced persist after every write.
func (db *Database) requestSave() {
	db.saveMutex.Lock()
	defer db.saveMutex.Unlock()

	if db.config.SaveInterval <= 0 {
		db.inflight.Add(1)
		go func() {
			defer db.inflight.Done()
			if err := db.persist(); err != nil {
				db.log.Error("immediate persist failed", "error", err)
			}
		}()
		return
	}

	if db.saveTimer != nil {
		db.saveTimer.Stop()
	}
	db.savePending = true
	db.saveTimer = time.AfterFunc(db.config.SaveInterval, func() {
		db.saveMutex.Lock()
		if !db.savePending {
			db.saveMutex.Unlock()
			return
		}
		db.savePending = false
		db.inflight.Add(1)
		db.saveMutex.Unlock()
		defer db.inflight.Done()

		if err := db.persist(); err != nil {
			db.log.Error("debounced persist failed", "error", err)
		}
	})
}

// Close stops the save timer, waits for saves already running and flushes a
// pending save.
func (db *Database) Close() error {
	db.saveMutex.Lock()
	if db.saveTimer != nil {
		db.saveTimer.Stop()
		db.saveTimer = nil
	}
	pending := db.savePending
	db.savePending = false
	db.saveMutex.Unlock()
	db.inflight.Wait()

	if !pending {
		return nil
	}
	db.log.Info("flushing pending save on close")
	return db.persist()
}

// Ping always succeeds once the file has been loaded.
func (db *Database) Ping(ctx context.Context) error {
	return ctx.Err()
}

// --- Accounts ---

// CreateAccount adds an account. Handles and emails are unique (case-insensitive).
func (db *Database) CreateAccount(ctx context.Context, account models.Account) (models.Account, error) {
	db.Mu.Lock()
	defer db.Mu.Unlock()

	for _, existing := range db.Accounts {
		if strings.EqualFold(existing.UserEmail, account.UserEmail) {
			return models.Account{}, apperr.Conflict("an account with this email already exists")
		}
		if strings.EqualFold(existing.UserName, account.UserName) {
			return models.Account{}, apperr.Conflict("an account with this user name already exists")
		}
	}

	if account.ID == "" {
		account.ID = utils.GenerateDashlessUUID()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	db.Accounts[account.ID] = account
	db.requestSave()
	return account, nil
}

func (db *Database) GetAccountByID(ctx context.Context, id string) (models.Account, error) {
	db.Mu.RLock()
	defer db.Mu.RUnlock()

	account, ok := db.Accounts[id]
	if !ok {
		return models.Account{}, apperr.NotFound("account not found")
	}
	return account, nil
}

func (db *Database) GetAccountByEmail(ctx context.Context, email string) (models.Account, error) {
	db.Mu.RLock()
	defer db.Mu.RUnlock()

	for _, account := range db.Accounts {
		if strings.EqualFold(account.UserEmail, email) {
			return account, nil
		}
	}
	return models.Account{}, apperr.NotFound("account not found")
}

// --- Courses ---

func (db *Database) CreateCourse(ctx context.Context, course models.Course) (models.Course, error) {
	db.Mu.Lock()
	defer db.Mu.Unlock()

	if course.ID == "" {
		course.ID = utils.GenerateDashlessUUID()
	}
	if _, exists := db.Courses[course.ID]; exists {
		return models.Course{}, apperr.Conflict("course %s already exists", course.ID)
	}
	now := time.Now().UTC()
	course.CreatedAt = now
	course.UpdatedAt = now
	stored := course.Clone()
	db.Courses[course.ID] = stored
	db.requestSave()
	return stored.Clone(), nil
}

func (db *Database) GetCourse(ctx context.Context, id string) (models.Course, error) {
	db.Mu.RLock()
	defer db.Mu.RUnlock()

	course, ok := db.Courses[id]
	if !ok {
		return models.Course{}, apperr.NotFound("course not found")
	}
	return course.Clone(), nil
}

func (db *Database) ListCourses(ctx context.Context) ([]models.Course, error) {
	return db.collectCourses(func(models.Course) bool { return true }), nil
}

func (db *Database) ListCoursesByInstructor(ctx context.Context, instructorID string) ([]models.Course, error) {
	return db.collectCourses(func(c models.Course) bool { return c.InstructorID == instructorID }), nil
}

func (db *Database) collectCourses(keep func(models.Course) bool) []models.Course {
	db.Mu.RLock()
	defer db.Mu.RUnlock()

	courses := make([]models.Course, 0, len(db.Courses))
	for _, c := range db.Courses {
		if keep(c) {
			courses = append(courses, c.Clone())
		}
	}
	sortCourses(courses)
	return courses
}

func (db *Database) ReplaceCourse(ctx context.Context, id string, course models.Course) (models.Course, error) {
	db.Mu.Lock()
	defer db.Mu.Unlock()

	existing, ok := db.Courses[id]
	if !ok {
		return models.Course{}, apperr.NotFound("course not found")
	}
	course.ID = existing.ID
	course.InstructorID = existing.InstructorID
	course.InstructorName = existing.InstructorName
	course.Students = existing.Students
	course.CreatedAt = existing.CreatedAt
	course.UpdatedAt = time.Now().UTC()

	stored := course.Clone()
	db.Courses[id] = stored
	db.requestSave()
	return stored.Clone(), nil
}

// DeleteCourse removes the course only. Orders, entitlements and progress
// that reference it are left in place.
func (db *Database) DeleteCourse(ctx context.Context, id string) error {
	db.Mu.Lock()
	defer db.Mu.Unlock()

	if _, ok := db.Courses[id]; !ok {
		return apperr.NotFound("course not found")
	}
	delete(db.Courses, id)
	db.requestSave()
	return nil
}

// --- Orders ---

func (db *Database) CreateOrder(ctx context.Context, order models.Order) (models.Order, error) {
	db.Mu.Lock()
	defer db.Mu.Unlock()

	if order.ID == "" {
		order.ID = utils.GenerateDashlessUUID()
	}
	if _, exists := db.Orders[order.ID]; exists {
		return models.Order{}, apperr.Conflict("order %s already exists", order.ID)
	}
	if order.OrderDate.IsZero() {
		order.OrderDate = time.Now().UTC()
	}
	db.Orders[order.ID] = order
	db.requestSave()
	return order, nil
}

func (db *Database) GetOrder(ctx context.Context, id string) (models.Order, error) {
	db.Mu.RLock()
	defer db.Mu.RUnlock()

	order, ok := db.Orders[id]
	if !ok {
		return models.Order{}, apperr.NotFound("order not found")
	}
	return order, nil
}

func (db *Database) UpdateOrder(ctx context.Context, order models.Order) (models.Order, error) {
	db.Mu.Lock()
	defer db.Mu.Unlock()

	if _, ok := db.Orders[order.ID]; !ok {
		return models.Order{}, apperr.NotFound("order not found")
	}
	db.Orders[order.ID] = order
	db.requestSave()
	return order, nil
}

func (db *Database) CompleteOrder(ctx context.Context, orderID string, capture CaptureDetails) (models.Order, error) {
	db.Mu.Lock()
	defer db.Mu.Unlock()

	order, ok := db.Orders[orderID]
	if !ok {
		return models.Order{}, apperr.NotFound("order not found")
	}
	switch order.OrderStatus {
	case models.OrderApproved:
		return order, nil
	case models.OrderFailed:
		return models.Order{}, apperr.Conflict("order has already failed")
	}

	approve(&order, capture)
	db.Orders[orderID] = order

	// The course may have been deleted since checkout; the entitlement is still recorded.
	if course, ok := db.Courses[order.CourseID]; ok && !course.HasStudent(order.UserID) {
		course = course.Clone()
		course.Students = append(course.Students, enrollmentFor(order))
		db.Courses[course.ID] = course
	}

	record := db.StudentCourses[order.UserID].Clone()
	record.UserID = order.UserID
	if !record.Owns(order.CourseID) {
		record.Courses = append(record.Courses, purchaseFor(order, capture.CapturedAt))
	}
	db.StudentCourses[order.UserID] = record

	db.requestSave()
	return order, nil
}

func (db *Database) FailOrder(ctx context.Context, orderID, payerID string) (models.Order, error) {
	db.Mu.Lock()
	defer db.Mu.Unlock()

	order, ok := db.Orders[orderID]
	if !ok {
		return models.Order{}, apperr.NotFound("order not found")
	}
	if order.OrderStatus != models.OrderPending {
		return order, nil
	}
	fail(&order, payerID)
	db.Orders[orderID] = order
	db.requestSave()
	return order, nil
}

// --- Entitlements ---

// GetStudentCourses returns the student's entitlement record, empty when none exists.
func (db *Database) GetStudentCourses(ctx context.Context, studentID string) (models.StudentCourses, error) {
	db.Mu.RLock()
	defer db.Mu.RUnlock()

	record, ok := db.StudentCourses[studentID]
	if !ok {
		return models.StudentCourses{UserID: studentID, Courses: []models.PurchasedCourse{}}, nil
	}
	return record.Clone(), nil
}

// --- Progress ---

func (db *Database) ListProgress(ctx context.Context, userID, courseID string) ([]models.ProgressRecord, error) {
	db.Mu.RLock()
	defer db.Mu.RUnlock()

	records := []models.ProgressRecord{}
	for _, r := range db.Progress {
		if r.UserID == userID && r.CourseID == courseID {
			records = append(records, r)
		}
	}
	sortProgress(records)
	return records, nil
}

func (db *Database) MarkLectureViewed(ctx context.Context, record models.ProgressRecord) (bool, error) {
	db.Mu.Lock()
	defer db.Mu.Unlock()

	key := record.Key()
	if _, exists := db.Progress[key]; exists {
		return false, nil
	}
	if record.ViewedAt.IsZero() {
		record.ViewedAt = time.Now().UTC()
	}
	db.Progress[key] = record
	db.requestSave()
	return true, nil
}

func (db *Database) ResetProgress(ctx context.Context, userID, courseID string) (int, error) {
	db.Mu.Lock()
	defer db.Mu.Unlock()

	removed := 0
	for key, r := range db.Progress {
		if r.UserID == userID && r.CourseID == courseID {
			delete(db.Progress, key)
			removed++
		}
	}
	if removed > 0 {
		db.requestSave()
	}
	return removed, nil
}
