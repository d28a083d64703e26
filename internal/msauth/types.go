package msauth

import (
	"time"
)

// Identity is one signed-in Microsoft account.
type Identity struct {
	// ID is the provider-assigned account identifier: the principal name
	// claim when present, otherwise the "<oid>.<tid>" pair. Unique per
	// account and immutable once a record is created.
	ID string `json:"id"`

	// Label is a human-readable hint (usually the UPN/email) used only for
	// account selection UX. It may change between logins; ID never does.
	Label string `json:"label"`
}

// TokenSet holds the cached credentials for a single identity.
type TokenSet struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
	Scopes       []string  `json:"scopes,omitempty"`
}

// Fresh reports whether the access token is still usable given the safety
// margin, i.e. it will not expire within margin from now.
func (t TokenSet) Fresh(now time.Time, margin time.Duration) bool {
	if t.AccessToken == "" {
		return false
	}
	if t.Expiry.IsZero() {
		return false
	}
	return now.Add(margin).Before(t.Expiry)
}

// Record is one persisted registry entry: an identity, its token set, and the
// time it first authenticated. AddedAt drives the durable default-account
// ordering, so it is written once and never updated on refresh.
type Record struct {
	Identity Identity  `json:"identity"`
	Tokens   TokenSet  `json:"tokens"`
	AddedAt  time.Time `json:"added_at"`
}

// PendingFlow describes an in-flight device-authorization attempt. The caller
// shows UserCode and VerificationURI to the human, then presents Handle
// unchanged to Complete. The device code itself stays inside the handle and is
// never exposed as a separate field.
type PendingFlow struct {
	UserCode        string        `json:"user_code"`
	VerificationURI string        `json:"verification_uri"`
	ExpiresAt       time.Time     `json:"expires_at"`
	Interval        time.Duration `json:"interval"`

	// Handle is the opaque, serialized flow state. It is single-use: once
	// Complete returns a terminal result the handle cannot be reused.
	Handle string `json:"handle"`
}
