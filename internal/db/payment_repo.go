package db

import (
	"context"

	"github.com/google/uuid"

	"studypal/internal/types"
)

// PaymentRepo manages the append-only payment ledger. Rows are keyed by the
// provider's payment id, which makes webhook redelivery idempotent at the
// storage layer.
type PaymentRepo struct {
	db DBTX
}

// NewPaymentRepo creates a new PaymentRepo backed by the given database
// connection (pool or transaction).
func NewPaymentRepo(db DBTX) *PaymentRepo {
	return &PaymentRepo{db: db}
}

// Record inserts a payment row if its provider payment id has not been seen
// before. Returns true when the row was newly inserted and false when a row
// with the same provider id already existed. Callers use the bool to decide
// whether the corresponding entitlement side effect should run.
func (r *PaymentRepo) Record(ctx context.Context, p *types.PaymentRecord) (bool, error) {
	if p.ID == "" {
		p.ID = "pay_" + uuid.NewString()
	}

	tag, err := r.db.Exec(ctx,
		`INSERT INTO payments (id, account_id, provider_payment_id, amount, currency, plan, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		 ON CONFLICT (provider_payment_id) DO NOTHING`,
		p.ID,
		p.AccountID,
		p.ProviderPaymentID,
		p.Amount,
		p.Currency,
		p.Plan,
		p.Status,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to record payment", err)
	}
	return tag.RowsAffected() > 0, nil
}

// paymentColumns defines the standard set of columns selected for payment
// queries.
const paymentColumns = `p.id, p.account_id, p.provider_payment_id, p.amount,
	p.currency, p.plan, p.status, p.created_at`

// ListByAccount returns the account's payment history, newest first.
func (r *PaymentRepo) ListByAccount(ctx context.Context, accountID string) ([]types.PaymentRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+paymentColumns+`
		 FROM payments p
		 WHERE p.account_id = $1
		 ORDER BY p.created_at DESC`,
		accountID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list payments", err)
	}
	defer rows.Close()

	payments := []types.PaymentRecord{}
	for rows.Next() {
		var p types.PaymentRecord
		if err := rows.Scan(
			&p.ID,
			&p.AccountID,
			&p.ProviderPaymentID,
			&p.Amount,
			&p.Currency,
			&p.Plan,
			&p.Status,
			&p.CreatedAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan payment row", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate payment rows", err)
	}
	return payments, nil
}
