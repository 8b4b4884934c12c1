package types

import "time"

// SubscriptionStatus is the lifecycle state of an account's subscription.
type SubscriptionStatus string

const (
	SubStatusFree      SubscriptionStatus = "free"
	SubStatusActive    SubscriptionStatus = "active"
	SubStatusCancelled SubscriptionStatus = "cancelled"
	SubStatusExpired   SubscriptionStatus = "expired"
)

// Plan identifies a paid plan. The empty string means no plan (free tier).
type Plan string

const (
	PlanMonthly  Plan = "monthly"
	PlanLifetime Plan = "lifetime"
)

// Valid reports whether p is a recognized paid plan.
func (p Plan) Valid() bool {
	return p == PlanMonthly || p == PlanLifetime
}

// LifetimeExpiry is the far-future sentinel written as expires_at for
// lifetime plans. Entitlement checks treat it like any other expiry.
var LifetimeExpiry = time.Date(2099, 12, 31, 23, 59, 59, 0, time.UTC)

// MonthlyDuration is the entitlement window granted per monthly payment.
const MonthlyDuration = 30 * 24 * time.Hour

// IdentityKind distinguishes anonymous callers from authenticated accounts.
type IdentityKind string

const (
	IdentityAnonymous IdentityKind = "anonymous"
	IdentityAccount   IdentityKind = "account"
)

/// Identity is the key under which quota and entitlement are tracked:
// an anonymous network address or an authenticated account id.
type Identity struct {
	Kind IdentityKind
	// Key is the client IP for anonymous identities and the account id
	// for authenticated ones.
	Key string
}

// AnonymousIdentity returns an Identity tracked by network address.
func AnonymousIdentity(ip string) Identity {
	return Identity{Kind: IdentityAnonymous, Key: ip}
}

// AccountIdentity returns an Identity tracked by account id.
func AccountIdentity(accountID string) Identity {
	return Identity{Kind: IdentityAccount, Key: accountID}
}

// Subscription is the durable entitlement record for one account.
// The state machine is the only writer of Status/Plan/ExpiresAt; the
// metering path is the only writer of MessagesUsed.
type Subscription struct {
	AccountID    string             `json:"account_id"`
	Status       SubscriptionStatus `json:"status"`
	Plan         Plan               `json:"plan,omitempty"`
	ExpiresAt    *time.Time         `json:"expires_at,omitempty"`
	MessagesUsed int                `json:"messages_used"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// EntitledAt reports whether the subscription exempts the account from
// quota metering at the given instant. Expiry is evaluated lazily here
// rather than by a background sweeper, so an active row with a past
// expires_at is already treated as not entitled.
//
/// Policy for cancelled subscriptions: a cancelled monthly plan remains
// entitled until its paid-through expires_at (standard provider
// semantics); a cancelled lifetime plan loses access immediately, since
// its sentinel expiry would otherwise never lapse.
func (s *Subscription) EntitledAt(now time.Time) bool {
	switch s.Status {
	case SubStatusActive:
		if s.Plan == PlanLifetime {
			return true
		}
		return s.ExpiresAt != nil && s.ExpiresAt.After(now)
	case SubStatusCancelled:
		if s.Plan != PlanMonthly {
			return false
		}
		return s.ExpiresAt != nil && s.ExpiresAt.After(now)
	default:
		return false
	}
}

// PaymentStatus is the terminal outcome of a payment attempt.
type PaymentStatus string

const (
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// PaymentRecord is one row of the append-only payment ledger. The
// ProviderPaymentID is the idempotency key: exactly one row exists per
// distinct id observed, no matter how many times the provider delivers
// the corresponding webhook.
type PaymentRecord struct {
	ID                string        `json:"id"`
	AccountID         string        `json:"account_id"`
	ProviderPaymentID string        `json:"provider_payment_id"`
	Amount            int64         `json:"amount"`
	Currency          string        `json:"currency"`
	Plan              string        `json:"plan"`
	Status            PaymentStatus `json:"status"`
	CreatedAt         time.Time     `json:"created_at"`
}

// Account is the profile record surrounding a subscription. Profile
// fields are plain UI data; the core only cares that saving a profile
// implicitly creates the default free subscription.
type Account struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Country    string    `json:"country,omitempty"`
	University string    `json:"university,omitempty"`
	Course     string    `json:"course,omitempty"`
	Year       int       `json:"year,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Session maps a bearer token (stored hashed) to an account.
type Session struct {
	TokenHash string    `json:"-"`
	AccountID string    `json:"account_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageSender distinguishes the two sides of a chat transcript.
type MessageSender string

const (
	SenderUser MessageSender = "user"
	SenderAI   MessageSender = "ai"
)

// Chat is a persisted conversation owned by a signed-in account.
type Chat struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	Title     string    `json:"title"`
	Subject   string    `json:"subject"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one transcript entry within a chat.
type Message struct {
	ID        string        `json:"id"`
	ChatID    string        `json:"chat_id"`
	Sender    MessageSender `json:"sender"`
	Content   string        `json:"content"`
	Mode      string        `json:"mode,omitempty"`
	Subject   string        `json:"subject,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}
