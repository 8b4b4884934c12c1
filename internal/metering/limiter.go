// Package metering decides whether a chat request may proceed. It combines
// the subscription ledger (authenticated accounts) with the shared quota
// store (anonymous callers) behind a single Authorize call.
package metering

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"studypal/internal/quota"
	"studypal/internal/types"
)

// SubscriptionLedger is the narrow view of the subscription repository the
// limiter needs.
type SubscriptionLedger interface {
	GetByAccount(ctx context.Context, accountID string) (*types.Subscription, error)
	EnsureDefault(ctx context.Context, accountID string) error
	IncrementMessagesUsed(ctx context.Context, accountID string, limit int) (int, bool, error)
	RefundMessage(ctx context.Context, accountID string) error
	MarkExpired(ctx context.Context, accountID string) error
}

// Policy holds the metering knobs, resolved from configuration at startup.
type Policy struct {
	AnonymousLimit int
	FreeTierLimit  int
	// FailOpen allows requests through when the counter backend is
	// unreachable. The product favors availability; a brief metering
	// outage must not take chat down with it.
	FailOpen bool
}

// Grant is a successful authorization. A quota unit has already been
// consumed (charge on attempt) unless Unlimited is set.
type Grant struct {
	Identity types.Identity
	// Unlimited marks an entitled subscriber; no counter was touched.
	Unlimited bool
	Remaining int
	ResetAt   time.Time
}

// Limiter authorizes chat requests against the caller's monthly allowance.
type Limiter struct {
	store  quota.Store
	ledger SubscriptionLedger
	policy Policy
	logger *slog.Logger
	now    func() time.Time
}

// NewLimiter creates a Limiter over the given quota store and ledger.
func NewLimiter(store quota.Store, ledger SubscriptionLedger, policy Policy, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		store:  store,
		ledger: ledger,
		policy: policy,
		logger: logger,
		now:    time.Now,
	}
}

// Authorize consumes one unit of the caller's allowance and reports the
// grant. Denials come back as AppErrors: ErrCodeQuotaExceededAnonymous for
// anonymous callers and ErrCodeQuotaExceededFreeTier for signed-in accounts
// without an entitled subscription.
//
// The charge happens before the completion call (charge on attempt), so a
// Grant means a unit was spent even if the caller's request later fails.
func (l *Limiter) Authorize(ctx context.Context, id types.Identity) (*Grant, error) {
	if id.Kind == types.IdentityAccount {
		return l.authorizeAccount(ctx, id)
	}
	return l.authorizeAnonymous(ctx, id)
}

func (l *Limiter) authorizeAnonymous(ctx context.Context, id types.Identity) (*Grant, error) {
	d, err := l.store.IncrementIfAllowed(ctx, id.Key, l.policy.AnonymousLimit)
	if err != nil {
		return l.failOpen(id, "quota store unreachable", err)
	}
	if !d.Allowed {
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeQuotaExceededAnonymous,
			"monthly free message limit reached",
			nil,
			map[string]any{"reset_at": d.ResetAt, "limit": l.policy.AnonymousLimit},
		)
	}
	return &Grant{Identity: id, Remaining: d.Remaining, ResetAt: d.ResetAt}, nil
}

func (l *Limiter) authorizeAccount(ctx context.Context, id types.Identity) (*Grant, error) {
	sub, err := l.ledger.GetByAccount(ctx, id.Key)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundSubscription {
			// First chat before the first profile save. Create the
			// free-tier row and meter against it.
			if err := l.ledger.EnsureDefault(ctx, id.Key); err != nil {
				return l.failOpen(id, "ledger unreachable", err)
			}
			return l.meterFreeTier(ctx, id)
		}
		return l.failOpen(id, "ledger unreachable", err)
	}

	now := l.now()
	if sub.EntitledAt(now) {
		return &Grant{Identity: id, Unlimited: true}, nil
	}

	// Lazy expiry: fold the stored status into what the read just
	// concluded. Best effort; metering proceeds either way.
	if sub.Status == types.SubStatusActive {
		if err := l.ledger.MarkExpired(ctx, id.Key); err != nil {
			l.logger.Warn("failed to mark subscription expired",
				slog.String("account_id", id.Key),
				slog.String("error", err.Error()),
			)
		}
	}

	return l.meterFreeTier(ctx, id)
}

func (l *Limiter) meterFreeTier(ctx context.Context, id types.Identity) (*Grant, error) {
	used, ok, err := l.ledger.IncrementMessagesUsed(ctx, id.Key, l.policy.FreeTierLimit)
	if err != nil {
		return l.failOpen(id, "ledger unreachable", err)
	}
	if !ok {
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeQuotaExceededFreeTier,
			"free tier message limit reached; upgrade to continue",
			nil,
			map[string]any{"limit": l.policy.FreeTierLimit},
		)
	}
	return &Grant{Identity: id, Remaining: l.policy.FreeTierLimit - used}, nil
}

// Refund returns the unit consumed by a prior Grant. Used when the
// completion call fails and refunds are enabled. Refund failures are
// logged, not propagated; the user already got their error response.
func (l *Limiter) Refund(ctx context.Context, grant *Grant) {
	if grant == nil || grant.Unlimited {
		return
	}

	var err error
	if grant.Identity.Kind == types.IdentityAccount {
		err = l.ledger.RefundMessage(ctx, grant.Identity.Key)
	} else {
		err = l.store.Refund(ctx, grant.Identity.Key)
	}
	if err != nil {
		l.logger.Warn("quota refund failed",
			slog.String("identity", grant.Identity.Key),
			slog.String("error", err.Error()),
		)
	}
}

// failOpen resolves a backend failure per policy: allow with a warning when
// FailOpen is set, otherwise surface the error.
func (l *Limiter) failOpen(id types.Identity, msg string, err error) (*Grant, error) {
	if l.policy.FailOpen {
		l.logger.Warn("metering backend failure, allowing request",
			slog.String("identity", id.Key),
			slog.String("kind", string(id.Kind)),
			slog.String("reason", msg),
			slog.String("error", err.Error()),
		)
		// Unlimited so a later refund does not touch the backend that
		// just failed.
		return &Grant{Identity: id, Unlimited: true}, nil
	}

	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return nil, appErr
	}
	return nil, types.NewAppError(types.ErrCodeInternalQuotaStore, msg, err)
}
