package payment

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"learnedge/utils"
)

// SandboxGateway approves every payment in memory. The approval URL points
// straight back at the client's return page with the ids it needs to capture.
type SandboxGateway struct {
	clientURL string

	mu       sync.Mutex
	payments map[string]*sandboxPayment
}

type sandboxPayment struct {
	req      PaymentRequest
	payerID  string
	declined bool
	captured bool
}

func NewSandboxGateway(clientURL string) *SandboxGateway {
	return &SandboxGateway{
		clientURL: strings.TrimRight(clientURL, "/"),
		payments:  make(map[string]*sandboxPayment),
	}
}

func (g *SandboxGateway) CreatePayment(ctx context.Context, req PaymentRequest) (Intent, error) {
	if err := ctx.Err(); err != nil {
		return Intent{}, err
	}
	if req.Amount < 0 {
		return Intent{}, fmt.Errorf("invalid amount %.2f", req.Amount)
	}

	id := "SBX-" + utils.GenerateDashlessUUID()
	payer := "PAYER-" + utils.GenerateDashlessUUID()[:12]

	g.mu.Lock()
	g.payments[id] = &sandboxPayment{req: req, payerID: payer}
	g.mu.Unlock()

	query := url.Values{}
	query.Set("paymentId", id)
	query.Set("PayerID", payer)
	query.Set("orderId", req.OrderID)
	return Intent{ID: id, ApprovalURL: g.clientURL + "/payment-return?" + query.Encode()}, nil
}

func (g *SandboxGateway) CapturePayment(ctx context.Context, paymentID, payerID string) (Capture, error) {
	if err := ctx.Err(); err != nil {
		return Capture{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.payments[paymentID]
	if !ok {
		return Capture{}, fmt.Errorf("%w: %s", ErrUnknownPayment, paymentID)
	}
	if p.declined {
		return Capture{Status: StatusDeclined, PayerID: payerID}, nil
	}
	p.captured = true
	if payerID == "" {
		payerID = p.payerID
	}
	return Capture{Status: StatusCompleted, PayerID: payerID}, nil
}

// Decline makes every later capture of paymentID report a decline.
func (g *SandboxGateway) Decline(paymentID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p, ok := g.payments[paymentID]; ok {
		p.declined = true
	}
}

// Captured reports whether paymentID has been captured successfully.
func (g *SandboxGateway) Captured(paymentID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.payments[paymentID]
	return ok && p.captured
}
