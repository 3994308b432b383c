// Package purchase runs the order state machine: pending orders are handed
// to the payment gateway and completed or failed when the buyer returns.
package purchase

import (
	"context"
	"errors"
	"strings"
	"time"

	"learnedge/apperr"
	"learnedge/cache"
	"learnedge/config"
	"learnedge/db"
	"learnedge/logger"
	"learnedge/models"
	"learnedge/payment"
)

// CaptureRequest is what the client sends back after approving a payment.
type CaptureRequest struct {
	PaymentID string `json:"payment_id"`
	PayerID   string `json:"payer_id"`
	OrderID   string `json:"order_id"`
}

// Checkout is the result of starting a purchase.
type Checkout struct {
	ApproveURL string `json:"approve_url"`
	OrderID    string `json:"order_id"`
	PaymentID  string `json:"payment_id"`
}

type Service struct {
	store        db.Store
	gateway      payment.Gateway
	entitlements cache.Entitlements
	cfg          *config.Config
	log          *logger.Logger
	now          func() time.Time
}

func NewService(store db.Store, gateway payment.Gateway, entitlements cache.Entitlements, cfg *config.Config, log *logger.Logger) *Service {
	return &Service{
		store:        store,
		gateway:      gateway,
		entitlements: entitlements,
		cfg:          cfg,
		log:          log.With("component", "purchase"),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Begin creates a pending order for courseID and a payment for it. If the
// gateway fails the order is left pending.
func (s *Service) Begin(ctx context.Context, buyer models.Identity, courseID string) (Checkout, error) {
	if strings.TrimSpace(courseID) == "" {
		return Checkout{}, apperr.Invalid("course_id is required")
	}
	course, err := s.store.GetCourse(ctx, courseID)
	if err != nil {
		return Checkout{}, err
	}
	if !course.IsPublished {
		return Checkout{}, apperr.NotFound("course not found")
	}
	account, err := s.store.GetAccountByID(ctx, buyer.UserID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return Checkout{}, apperr.Unauthorized("account no longer exists")
		}
		return Checkout{}, err
	}
	owned, err := s.store.GetStudentCourses(ctx, account.ID)
	if err != nil {
		return Checkout{}, err
	}
	if owned.Owns(course.ID) {
		return Checkout{}, apperr.Conflict("you already own this course")
	}

	order, err := s.store.CreateOrder(ctx, models.Order{
		UserID:         account.ID,
		UserName:       account.UserName,
		UserEmail:      account.UserEmail,
		OrderStatus:    models.OrderPending,
		PaymentMethod:  s.cfg.PaymentProvider,
		PaymentStatus:  models.PaymentInitiated,
		OrderDate:      s.now(),
		InstructorID:   course.InstructorID,
		InstructorName: course.InstructorName,
		CourseImage:    course.Image.URL,
		CourseTitle:    course.Title,
		CourseID:       course.ID,
		CoursePricing:  course.Pricing,
	})
	if err != nil {
		return Checkout{}, err
	}

	clientURL := strings.TrimRight(s.cfg.ClientURL, "/")
	intent, err := s.gateway.CreatePayment(ctx, payment.PaymentRequest{
		OrderID:     order.ID,
		Amount:      course.Pricing,
		Currency:    s.cfg.Currency,
		Description: course.Title,
		ReturnURL:   clientURL + "/payment-return",
		CancelURL:   clientURL + "/payment-cancel",
	})
	if err != nil {
		s.log.Error("payment creation failed", "order_id", order.ID, "error", err)
		return Checkout{}, apperr.Upstream(err, "payment processor is unavailable")
	}

	order.PaymentID = intent.ID
	if _, err := s.store.UpdateOrder(ctx, order); err != nil {
		return Checkout{}, err
	}
	s.log.Info("order created", "order_id", order.ID, "course_id", course.ID, "user_id", account.ID)
	return Checkout{ApproveURL: intent.ApprovalURL, OrderID: order.ID, PaymentID: intent.ID}, nil
}

// Capture finalizes a pending order. Capturing an approved order returns it
// unchanged, so a client may safely retry.
func (s *Service) Capture(ctx context.Context, buyer models.Identity, req CaptureRequest) (models.Order, error) {
	if req.OrderID == "" || req.PaymentID == "" {
		return models.Order{}, apperr.Invalid("order_id and payment_id are required")
	}
	order, err := s.store.GetOrder(ctx, req.OrderID)
	if err != nil {
		return models.Order{}, err
	}
	if order.UserID != buyer.UserID {
		return models.Order{}, apperr.Forbidden("this order belongs to another user")
	}
	if order.PaymentID != req.PaymentID {
		return models.Order{}, apperr.Invalid("payment_id does not match the order")
	}
	switch order.OrderStatus {
	case models.OrderApproved:
		return order, nil
	case models.OrderFailed:
		return models.Order{}, apperr.Conflict("order has already failed")
	}

	capture, err := s.gateway.CapturePayment(ctx, req.PaymentID, req.PayerID)
	if err != nil {
		s.log.Error("payment capture failed", "order_id", order.ID, "payment_id", req.PaymentID, "error", err)
		if errors.Is(err, payment.ErrUnknownPayment) {
			return models.Order{}, apperr.Upstream(err, "payment processor does not know this payment")
		}
		return models.Order{}, apperr.Upstream(err, "payment processor is unavailable, try again")
	}
	if !capture.Completed() {
		failed, err := s.store.FailOrder(ctx, order.ID, capture.PayerID)
		if err != nil {
			return models.Order{}, err
		}
		// A concurrent capture of the same payment won; the processor
		// declines the second one.
		if failed.OrderStatus == models.OrderApproved {
			s.log.Info("decline ignored, order already captured", "order_id", order.ID)
			return failed, nil
		}
		s.log.Warn("payment declined", "order_id", order.ID, "status", capture.Status)
		return models.Order{}, apperr.New(apperr.KindUpstreamFailure, "payment was declined")
	}

	completed, err := s.store.CompleteOrder(ctx, order.ID, db.CaptureDetails{
		PaymentID:  req.PaymentID,
		PayerID:    capture.PayerID,
		CapturedAt: s.now(),
	})
	if err != nil {
		return models.Order{}, err
	}
	if err := s.entitlements.Forget(ctx, completed.UserID); err != nil {
		s.log.Warn("entitlement cache invalidation failed", "user_id", completed.UserID, "error", err)
	}
	s.log.Info("order captured", "order_id", completed.ID, "course_id", completed.CourseID, "user_id", completed.UserID)
	return completed, nil
}
