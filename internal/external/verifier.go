package external

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"

	"studypal/internal/types"
)

// WebhookVerifier checks the authenticity of an inbound webhook payload
// against its signature header.
type WebhookVerifier interface {
	// Verify returns nil when the signature is valid for the payload.
	// Invalid or missing signatures come back as auth-class AppErrors.
	Verify(payload []byte, signature string) error
}

// DodoVerifier verifies DodoPayments webhook signatures: hex-encoded
// HMAC-SHA256 of the raw request body under the shared webhook secret.
type DodoVerifier struct {
	secret types.SecretString
	logger *slog.Logger
}

// NewDodoVerifier creates a verifier for the given shared secret. An empty
// secret disables verification entirely; the startup warning makes that a
// conscious state rather than a silent one.
func NewDodoVerifier(secret types.SecretString, logger *slog.Logger) *DodoVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	if secret.Unmask() == "" {
		logger.Warn("webhook secret not configured; signature verification is DISABLED")
	}
	return &DodoVerifier{secret: secret, logger: logger}
}

// Verify implements WebhookVerifier. Comparison is constant time.
func (v *DodoVerifier) Verify(payload []byte, signature string) error {
	if v.secret.Unmask() == "" {
		return nil
	}

	if signature == "" {
		return types.NewAppError(types.ErrCodeWebhookSignatureMissing,
			"webhook signature header missing", nil)
	}

	mac := hmac.New(sha256.New, []byte(v.secret.Unmask()))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return types.NewAppError(types.ErrCodeWebhookSignatureInvalid,
			"webhook signature mismatch", nil)
	}
	return nil
}

var _ WebhookVerifier = (*DodoVerifier)(nil)
