package db

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/jackc/pgx/v5"

	"studypal/internal/types"
)

// SessionRepo resolves bearer session tokens to accounts. Tokens are stored
// hashed so a database leak does not expose live credentials.
type SessionRepo struct {
	db DBTX
}

// NewSessionRepo creates a new SessionRepo backed by the given database
// connection (pool or transaction).
func NewSessionRepo(db DBTX) *SessionRepo {
	return &SessionRepo{db: db}
}

// HashToken returns the hex-encoded SHA-256 digest under which a session
// token is stored.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// GetByToken resolves a raw bearer token to its session. Expired sessions
// are excluded at the query level. Returns ErrCodeAuthTokenInvalid when no
// live session matches.
func (r *SessionRepo) GetByToken(ctx context.Context, token string) (*types.Session, error) {
	var sess types.Session
	err := r.db.QueryRow(ctx,
		`SELECT token_hash, account_id, expires_at, created_at
		 FROM sessions
		 WHERE token_hash = $1 AND expires_at > NOW()`,
		HashToken(token),
	).Scan(
		&sess.TokenHash,
		&sess.AccountID,
		&sess.ExpiresAt,
		&sess.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "session not found or expired", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to look up session", err)
	}
	return &sess, nil
}
