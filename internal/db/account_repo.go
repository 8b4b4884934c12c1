package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"studypal/internal/types"
)

// AccountRepo provides data access for account profiles.
type AccountRepo struct {
	db DBTX
}

// NewAccountRepo creates a new AccountRepo backed by the given database
// connection (pool or transaction).
func NewAccountRepo(db DBTX) *AccountRepo {
	return &AccountRepo{db: db}
}

const accountColumns = `a.id, a.email, a.country, a.university, a.course,
	a.year, a.created_at, a.updated_at`

// Upsert writes the account profile, creating the row on first save.
// Profile saves are idempotent; later saves simply overwrite the mutable
// fields.
func (r *AccountRepo) Upsert(ctx context.Context, acct *types.Account) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO accounts (id, email, country, university, course, year, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		 ON CONFLICT (id)
		 DO UPDATE SET email = EXCLUDED.email,
		     country = EXCLUDED.country,
		     university = EXCLUDED.university,
		     course = EXCLUDED.course,
		     year = EXCLUDED.year,
		     updated_at = NOW()`,
		acct.ID,
		acct.Email,
		acct.Country,
		acct.University,
		acct.Course,
		acct.Year,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to save account profile", err)
	}
	return nil
}

// GetByID retrieves an account profile by id.
// Returns ErrCodeNotFoundAccount if no account exists.
func (r *AccountRepo) GetByID(ctx context.Context, id string) (*types.Account, error) {
	var acct types.Account
	err := r.db.QueryRow(ctx,
		`SELECT `+accountColumns+`
		 FROM accounts a
		 WHERE a.id = $1`,
		id,
	).Scan(
		&acct.ID,
		&acct.Email,
		&acct.Country,
		&acct.University,
		&acct.Course,
		&acct.Year,
		&acct.CreatedAt,
		&acct.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundAccount, "account not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve account", err)
	}
	return &acct, nil
}
