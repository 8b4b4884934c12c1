package db

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"studypal/internal/types"
)

// SubscriptionRepo manages the per-account subscription ledger. It is the
// single source of truth for entitlement state and the authenticated
// free-tier usage counter.
//
// Key invariants:
//   - IncrementMessagesUsed is the only path that raises messages_used, and
//     it does so with a conditional UPDATE so concurrent requests can never
//     push the counter past the limit.
//   - Activate resets messages_used to zero; a fresh paid period always
//     starts with a clean counter.
type SubscriptionRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewSubscriptionRepo creates a new SubscriptionRepo backed by the given
// database connection (pool or transaction).
func NewSubscriptionRepo(db DBTX, logger *slog.Logger) *SubscriptionRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionRepo{db: db, logger: logger}
}

// subColumns defines the standard set of columns selected for subscription
// queries. Used consistently across all query methods to avoid column drift.
const subColumns = `s.account_id, s.status, s.plan, s.expires_at,
	s.messages_used, s.created_at, s.updated_at`

// scanSub scans a single subscription row. The columns must match the order
// defined in subColumns.
func scanSub(row pgx.Row) (*types.Subscription, error) {
	var sub types.Subscription
	var plan *string

	err := row.Scan(
		&sub.AccountID,
		&sub.Status,
		&plan,
		&sub.ExpiresAt,
		&sub.MessagesUsed,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if plan != nil {
		sub.Plan = types.Plan(*plan)
	}
	return &sub, nil
}

// GetByAccount retrieves the subscription row for an account.
// Returns ErrCodeNotFoundSubscription if the account has no row yet.
func (r *SubscriptionRepo) GetByAccount(ctx context.Context, accountID string) (*types.Subscription, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+subColumns+`
		 FROM subscriptions s
		 WHERE s.account_id = $1`,
		accountID,
	)

	sub, err := scanSub(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSubscription, "subscription not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve subscription", err)
	}
	return sub, nil
}

// EnsureDefault creates the default free-tier row for an account if none
// exists. Safe to call on every profile save; an existing row (free or paid)
// is left untouched.
func (r *SubscriptionRepo) EnsureDefault(ctx context.Context, accountID string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO subscriptions (account_id, status, messages_used, created_at, updated_at)
		 VALUES ($1, 'free', 0, NOW(), NOW())
		 ON CONFLICT (account_id) DO NOTHING`,
		accountID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to ensure default subscription", err)
	}
	return nil
}

// Activate transitions the account to an active paid subscription: sets the
// plan and paid-through date and resets messages_used to zero. The row is
// created if it does not exist, so a payment webhook arriving before the
// first profile save still lands.
func (r *SubscriptionRepo) Activate(ctx context.Context, accountID string, plan types.Plan, expiresAt time.Time) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO subscriptions (account_id, status, plan, expires_at, messages_used, created_at, updated_at)
		 VALUES ($1, 'active', $2, $3, 0, NOW(), NOW())
		 ON CONFLICT (account_id)
		 DO UPDATE SET status = 'active',
		     plan = EXCLUDED.plan,
		     expires_at = EXCLUDED.expires_at,
		     messages_used = 0,
		     updated_at = NOW()`,
		accountID,
		plan,
		expiresAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to activate subscription", err)
	}

	r.logger.Info("subscription activated",
		slog.String("account_id", accountID),
		slog.String("plan", string(plan)),
		slog.Time("expires_at", expiresAt),
	)
	return nil
}

// Cancel marks the subscription cancelled while preserving plan and
// expires_at, so a cancelled monthly plan keeps access until its
// paid-through date. Cancelling an account with no subscription row is a
// no-op; there is nothing to revoke.
func (r *SubscriptionRepo) Cancel(ctx context.Context, accountID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE subscriptions
		 SET status = 'cancelled',
		     updated_at = NOW()
		 WHERE account_id = $1`,
		accountID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to cancel subscription", err)
	}

	if tag.RowsAffected() == 0 {
		r.logger.Warn("cancellation for unknown account ignored",
			slog.String("account_id", accountID),
		)
	}
	return nil
}

// MarkExpired downgrades an active subscription whose paid-through date has
// lapsed. Entitlement checks already treat such rows as expired; this write
// only makes the stored status match what readers report.
func (r *SubscriptionRepo) MarkExpired(ctx context.Context, accountID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE subscriptions
		 SET status = 'expired',
		     updated_at = NOW()
		 WHERE account_id = $1
		   AND status = 'active'
		   AND expires_at IS NOT NULL
		   AND expires_at <= NOW()`,
		accountID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark subscription expired", err)
	}
	return nil
}

// IncrementMessagesUsed atomically consumes one free-tier message if the
// account is still under the limit. Returns the counter value after the
// increment and whether the charge was applied. A false result with a nil
// error means the limit is reached (or the row is missing, which callers
// treat the same way).
//
// The conditional WHERE clause is what makes concurrent requests safe: two
// racing requests at messages_used = limit-1 serialize on the row lock and
// only the first one matches.
func (r *SubscriptionRepo) IncrementMessagesUsed(ctx context.Context, accountID string, limit int) (int, bool, error) {
	var used int
	err := r.db.QueryRow(ctx,
		`UPDATE subscriptions
		 SET messages_used = messages_used + 1,
		     updated_at = NOW()
		 WHERE account_id = $1
		   AND messages_used < $2
		 RETURNING messages_used`,
		accountID,
		limit,
	).Scan(&used)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, types.NewAppError(types.ErrCodeInternalDB, "failed to increment message counter", err)
	}
	return used, true, nil
}

// RefundMessage returns one previously charged free-tier message, clamped
// at zero. Used when the completion provider fails after the quota charge
// and refunds are enabled.
func (r *SubscriptionRepo) RefundMessage(ctx context.Context, accountID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE subscriptions
		 SET messages_used = GREATEST(messages_used - 1, 0),
		     updated_at = NOW()
		 WHERE account_id = $1`,
		accountID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to refund message counter", err)
	}
	return nil
}
