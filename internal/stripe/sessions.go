package stripe

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/clipbot/clipbot/internal/consts"
	"github.com/clipbot/clipbot/internal/database"
	"github.com/clipbot/clipbot/internal/logger"
	"github.com/stripe/stripe-go/v82"
)

var ErrNoPendingInvoice = errors.New("no pending invoice")

// Invoice is an open checkout the user still has to pay
type Invoice struct {
	ID     string
	URL    string
	Tier   database.Tier
	Amount int64 // cents
}

// Capture is the state of a checkout at the time it was looked up
type Capture struct {
	SessionID string
	Paid      bool
	UserID    int64
	Tier      database.Tier
	Amount    int64
}

func pendingKey(userID int64, tier database.Tier) string {
	return fmt.Sprintf("%s%d:%s", consts.CacheKeyInvoicePrefix, userID, tier)
}

// CreateInvoice opens a one-off Checkout session for tier priced from the
// tier table and remembers it for the user for consts.InvoiceTTL.
func (sm *Manager) CreateInvoice(ctx context.Context, userID int64, tier database.Tier) (*Invoice, error) {
	if !sm.Enabled() {
		return nil, ErrNotConfigured
	}
	def, err := sm.tiers.Get(tier)
	if err != nil {
		return nil, err
	}
	if !tier.IsPaid() || def.PriceCents() <= 0 {
		return nil, fmt.Errorf("%w: %s is not for sale", database.ErrInvalidTier, tier)
	}

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(string(stripe.CurrencyUSD)),
					UnitAmount: stripe.Int64(def.PriceCents()),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("ClipBot %s, %d days", tierTitle(tier), sm.days)),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(sm.baseURL + "/payment-success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(sm.baseURL + "/payment-cancel"),
		ClientReferenceID: stripe.String(strconv.FormatInt(userID, 10)),
		Metadata: map[string]string{
			"user_id":      strconv.FormatInt(userID, 10),
			"tier":         string(tier),
			"days":         strconv.Itoa(sm.days),
			"payment_type": "subscription",
		},
	}
	params.Context = ctx

	s, err := sm.sessions.New(params)
	if err != nil {
		sm.metrics.RecordPayment("checkout_error")
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	inv := &Invoice{ID: s.ID, URL: s.URL, Tier: tier, Amount: def.PriceCents()}
	if sm.pending != nil {
		sm.pending.SetWithExpiry(pendingKey(userID, tier), inv.ID, consts.InvoiceTTL)
	}

	sm.metrics.RecordPayment("checkout_created")
	logger.Info("Checkout session created", map[string]interface{}{
		"user_id":    userID,
		"tier":       tier,
		"session_id": s.ID,
		"amount":     inv.Amount,
	})
	return inv, nil
}

// PendingInvoice returns the open checkout for the user and tier, if any
func (sm *Manager) PendingInvoice(userID int64, tier database.Tier) (string, bool) {
	if sm.pending == nil {
		return "", false
	}
	v, ok := sm.pending.Get(pendingKey(userID, tier))
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

// ForgetInvoice drops the pending checkout once it has been applied
func (sm *Manager) ForgetInvoice(userID int64, tier database.Tier) {
	if sm.pending != nil {
		sm.pending.Delete(pendingKey(userID, tier))
	}
}

// CaptureInvoice looks the checkout up and reports whether it is paid
func (sm *Manager) CaptureInvoice(ctx context.Context, invoiceID string) (*Capture, error) {
	if !sm.Enabled() {
		return nil, ErrNotConfigured
	}
	if invoiceID == "" {
		return nil, ErrNoPendingInvoice
	}

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := sm.sessions.Get(invoiceID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve checkout session %s: %w", invoiceID, err)
	}

	c, err := captureFromSession(s)
	if err != nil {
		return nil, err
	}
	if c.Paid {
		sm.metrics.RecordPayment("captured")
	}
	return c, nil
}

func captureFromSession(s *stripe.CheckoutSession) (*Capture, error) {
	userID, err := strconv.ParseInt(s.Metadata["user_id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("session %s: invalid user_id metadata: %w", s.ID, err)
	}
	tier, err := database.ParseTier(s.Metadata["tier"])
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", s.ID, err)
	}

	return &Capture{
		SessionID: s.ID,
		Paid:      s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		UserID:    userID,
		Tier:      tier,
		Amount:    s.AmountTotal,
	}, nil
}

func tierTitle(t database.Tier) string {
	s := string(t)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
