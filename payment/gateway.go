// Package payment hands purchases off to an external payment processor.
package payment

import (
	"context"
	"errors"
	"fmt"

	"learnedge/config"
	"learnedge/logger"
)

// Capture outcomes reported by a Gateway.
const (
	StatusCompleted = "COMPLETED"
	StatusDeclined  = "DECLINED"
)

// ErrUnknownPayment is returned when the processor has no record of a payment id.
var ErrUnknownPayment = errors.New("unknown payment")

// PaymentRequest describes the payment to create for an order.
type PaymentRequest struct {
	OrderID     string
	Amount      float64
	Currency    string
	Description string
	ReturnURL   string
	CancelURL   string
}

// Intent is a created payment awaiting approval by the buyer.
type Intent struct {
	ID          string
	ApprovalURL string
}

// Capture is the processor's answer to a capture attempt. A non-nil error
// from CapturePayment means the outcome is unknown; a declined payment is
// reported as a Capture with a status other than StatusCompleted.
type Capture struct {
	Status  string
	PayerID string
}

func (c Capture) Completed() bool { return c.Status == StatusCompleted }

// Gateway is the payment processor abstraction.
type Gateway interface {
	CreatePayment(ctx context.Context, req PaymentRequest) (Intent, error)
	CapturePayment(ctx context.Context, paymentID, payerID string) (Capture, error)
}

// NewGateway builds the gateway selected by cfg.PaymentProvider.
func NewGateway(ctx context.Context, cfg *config.Config, log *logger.Logger) (Gateway, error) {
	switch cfg.PaymentProvider {
	case config.ProviderSandbox:
		log.Warn("using the in-memory sandbox payment gateway, no real payments are taken")
		return NewSandboxGateway(cfg.ClientURL), nil
	case config.ProviderPayPal:
		return NewPayPalGateway(ctx, cfg.PayPalClientID, cfg.PayPalSecret, payPalBase(cfg.PayPalLive), log)
	default:
		return nil, fmt.Errorf("unknown payment provider %q", cfg.PaymentProvider)
	}
}
