package billing

import (
	"context"
	"log/slog"
	"time"

	"studypal/internal/types"
)

// Event is a validated payment provider webhook event, normalized from the
// provider's wire format by the intake handler.
type Event struct {
	Type              string
	ProviderPaymentID string
	AccountID         string
	Plan              types.Plan
	Amount            int64
	Currency          string
}

// Provider event types. payment.success is an older alias for
// payment.completed that the provider still emits for some products.
const (
	EventPaymentCompleted     = "payment.completed"
	EventPaymentSuccess       = "payment.success"
	EventPaymentFailed        = "payment.failed"
	EventSubscriptionCreated  = "subscription.created"
	EventSubscriptionCanceled = "subscription.cancelled"
)

// SubscriptionWriter is the slice of the subscription repository the
// lifecycle needs.
type SubscriptionWriter interface {
	Activate(ctx context.Context, accountID string, plan types.Plan, expiresAt time.Time) error
	Cancel(ctx context.Context, accountID string) error
}

// PaymentLedger records payment outcomes idempotently. Record reports
// whether the row was newly inserted.
type PaymentLedger interface {
	Record(ctx context.Context, p *types.PaymentRecord) (bool, error)
}

// Lifecycle is the subscription state machine. It is driven exclusively by
// provider webhook events; nothing else writes entitlement state.
//
// Ordering: the payment is recorded before the entitlement side effect, and
// activation only runs when the record was newly inserted. A redelivered
// webhook therefore hits the ledger's idempotency key and becomes a no-op,
// even if the first delivery crashed between record and activation (the
// provider retries until it gets a 2xx, and the retry resolves the gap).
type Lifecycle struct {
	subs     SubscriptionWriter
	payments PaymentLedger
	logger   *slog.Logger
	now      func() time.Time
}

// NewLifecycle creates the state machine over the given ledgers.
func NewLifecycle(subs SubscriptionWriter, payments PaymentLedger, logger *slog.Logger) *Lifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{subs: subs, payments: payments, logger: logger, now: time.Now}
}

// Apply processes one provider event. Malformed events return
// ErrCodeMalformedEvent, which intake acknowledges without retry; storage
// failures return ErrCodeInternalDB so the provider redelivers.
// Unrecognized event types are logged and dropped.
func (l *Lifecycle) Apply(ctx context.Context, ev Event) error {
	switch ev.Type {
	case EventPaymentCompleted, EventPaymentSuccess:
		return l.applyPaymentCompleted(ctx, ev)
	case EventPaymentFailed:
		return l.applyPaymentFailed(ctx, ev)
	case EventSubscriptionCanceled:
		return l.applyCancellation(ctx, ev)
	case EventSubscriptionCreated:
		// Informational. Entitlement is granted by payment.completed.
		l.logger.Info("subscription created event acknowledged",
			slog.String("account_id", ev.AccountID),
		)
		return nil
	default:
		l.logger.Info("unhandled webhook event type dropped",
			slog.String("type", ev.Type),
		)
		return nil
	}
}

func (l *Lifecycle) applyPaymentCompleted(ctx context.Context, ev Event) error {
	if ev.AccountID == "" || ev.ProviderPaymentID == "" {
		return types.NewAppErrorWithDetails(types.ErrCodeMalformedEvent,
			"payment event missing account or payment id", nil,
			map[string]any{"type": ev.Type})
	}
	if !ev.Plan.Valid() {
		return types.NewAppErrorWithDetails(types.ErrCodeMalformedEvent,
			"payment event carries unknown plan", nil,
			map[string]any{"type": ev.Type, "plan": string(ev.Plan)})
	}

	inserted, err := l.payments.Record(ctx, &types.PaymentRecord{
		AccountID:         ev.AccountID,
		ProviderPaymentID: ev.ProviderPaymentID,
		Amount:            ev.Amount,
		Currency:          ev.Currency,
		Plan:              string(ev.Plan),
		Status:            types.PaymentCompleted,
	})
	if err != nil {
		return err
	}
	if !inserted {
		l.logger.Info("duplicate payment webhook ignored",
			slog.String("provider_payment_id", ev.ProviderPaymentID),
			slog.String("account_id", ev.AccountID),
		)
		return nil
	}

	expiresAt := types.LifetimeExpiry
	if ev.Plan == types.PlanMonthly {
		expiresAt = l.now().UTC().Add(types.MonthlyDuration)
	}
	return l.subs.Activate(ctx, ev.AccountID, ev.Plan, expiresAt)
}

func (l *Lifecycle) applyPaymentFailed(ctx context.Context, ev Event) error {
	if ev.AccountID == "" || ev.ProviderPaymentID == "" {
		return types.NewAppErrorWithDetails(types.ErrCodeMalformedEvent,
			"payment event missing account or payment id", nil,
			map[string]any{"type": ev.Type})
	}

	// Record only. A failed payment never changes entitlement; the account
	// keeps whatever state it had.
	inserted, err := l.payments.Record(ctx, &types.PaymentRecord{
		AccountID:         ev.AccountID,
		ProviderPaymentID: ev.ProviderPaymentID,
		Amount:            ev.Amount,
		Currency:          ev.Currency,
		Plan:              string(ev.Plan),
		Status:            types.PaymentFailed,
	})
	if err != nil {
		return err
	}
	if inserted {
		l.logger.Warn("payment failed",
			slog.String("provider_payment_id", ev.ProviderPaymentID),
			slog.String("account_id", ev.AccountID),
			slog.String("plan", string(ev.Plan)),
		)
	}
	return nil
}

func (l *Lifecycle) applyCancellation(ctx context.Context, ev Event) error {
	if ev.AccountID == "" {
		return types.NewAppErrorWithDetails(types.ErrCodeMalformedEvent,
			"cancellation event missing account id", nil,
			map[string]any{"type": ev.Type})
	}
	return l.subs.Cancel(ctx, ev.AccountID)
}
