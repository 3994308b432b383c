package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"learnedge/logger"

	"github.com/plutov/paypal/v4"
)

// PayPalGateway creates and captures PayPal checkout orders.
type PayPalGateway struct {
	client *paypal.Client
	log    *logger.Logger
}

func payPalBase(live bool) string {
	if live {
		return paypal.APIBaseLive
	}
	return paypal.APIBaseSandBox
}

// NewPayPalGateway authenticates against apiBase so that bad credentials
// fail at startup instead of at the first checkout.
func NewPayPalGateway(ctx context.Context, clientID, secret, apiBase string, log *logger.Logger) (*PayPalGateway, error) {
	client, err := paypal.NewClient(clientID, secret, apiBase)
	if err != nil {
		return nil, fmt.Errorf("creating paypal client: %w", err)
	}
	if _, err := client.GetAccessToken(ctx); err != nil {
		return nil, fmt.Errorf("authenticating with paypal: %w", err)
	}
	log.Info("paypal gateway ready", "api_base", apiBase)
	return &PayPalGateway{client: client, log: log.With("component", "paypal")}, nil
}

func (g *PayPalGateway) CreatePayment(ctx context.Context, req PaymentRequest) (Intent, error) {
	units := []paypal.PurchaseUnitRequest{{
		ReferenceID: req.OrderID,
		Description: req.Description,
		Amount: &paypal.PurchaseUnitAmount{
			Currency: req.Currency,
			Value:    fmt.Sprintf("%.2f", req.Amount),
		},
	}}
	appCtx := &paypal.ApplicationContext{
		ReturnURL: req.ReturnURL,
		CancelURL: req.CancelURL,
	}

	order, err := g.client.CreateOrder(ctx, paypal.OrderIntentCapture, units, nil, appCtx)
	if err != nil {
		return Intent{}, fmt.Errorf("creating paypal order: %w", err)
	}
	for _, link := range order.Links {
		if link.Rel == "approve" || link.Rel == "payer-action" {
			g.log.Debug("paypal order created", "payment_id", order.ID, "order_id", req.OrderID)
			return Intent{ID: order.ID, ApprovalURL: link.Href}, nil
		}
	}
	return Intent{}, fmt.Errorf("paypal order %s has no approval link", order.ID)
}

func (g *PayPalGateway) CapturePayment(ctx context.Context, paymentID, payerID string) (Capture, error) {
	resp, err := g.client.CaptureOrder(ctx, paymentID, paypal.CaptureOrderRequest{})
	if err != nil {
		var apiErr *paypal.ErrorResponse
		if errors.As(err, &apiErr) && apiErr.Response != nil {
			switch apiErr.Response.StatusCode {
			case http.StatusUnprocessableEntity:
				// Instrument declined or order not approved by the buyer.
				g.log.Warn("paypal declined capture", "payment_id", paymentID, "name", apiErr.Name)
				return Capture{Status: StatusDeclined, PayerID: payerID}, nil
			case http.StatusNotFound:
				return Capture{}, fmt.Errorf("%w: %s", ErrUnknownPayment, paymentID)
			}
		}
		return Capture{}, fmt.Errorf("capturing paypal order: %w", err)
	}

	capture := Capture{Status: resp.Status, PayerID: payerID}
	if resp.Payer != nil && resp.Payer.PayerID != "" {
		capture.PayerID = resp.Payer.PayerID
	}
	if capture.Status != StatusCompleted {
		capture.Status = StatusDeclined
	}
	return capture, nil
}
