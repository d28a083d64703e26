package msauth

import (
	"errors"
	"fmt"
)

// Sentinel errors for authentication-protocol outcomes. Flow outcomes are
// terminal for that flow and are reported verbatim; they are never retried
// internally because they reflect an explicit human or deadline decision.
var (
	// ErrNoAccounts indicates the registry is empty and no default account
	// can be resolved.
	ErrNoAccounts = errors.New("no accounts authenticated")

	// ErrFlowExpired indicates the device flow's deadline passed before the
	// user completed authorization.
	ErrFlowExpired = errors.New("device flow expired")

	// ErrFlowDenied indicates the user explicitly denied consent.
	ErrFlowDenied = errors.New("authorization denied by user")

	// ErrInvalidFlowHandle indicates the flow handle could not be decoded.
	ErrInvalidFlowHandle = errors.New("invalid flow handle")
)

// UnknownAccountError indicates an explicit account selector did not match
// any signed-in identity.
type UnknownAccountError struct {
	ID string
}

func (e *UnknownAccountError) Error() string {
	return fmt.Sprintf("unknown account: %s", e.ID)
}

// ReauthRequiredError indicates the refresh token for an identity was
// rejected, expired, or revoked. It is never resolved automatically; the
// caller must re-run the device flow for the named identity.
type ReauthRequiredError struct {
	Identity string
	Err      error
}

func (e *ReauthRequiredError) Error() string {
	return fmt.Sprintf("re-authentication required for account %s: %v", e.Identity, e.Err)
}

func (e *ReauthRequiredError) Unwrap() error { return e.Err }

// TransientProviderError indicates a network or service failure talking to
// the identity provider. Distinct from ReauthRequiredError so callers can
// retry with backoff instead of prompting the human.
type TransientProviderError struct {
	Op  string
	Err error
}

func (e *TransientProviderError) Error() string {
	return fmt.Sprintf("transient provider error during %s: %v", e.Op, e.Err)
}

func (e *TransientProviderError) Unwrap() error { return e.Err }

// CorruptStoreError indicates the credential store exists but could not be
// read or parsed. This is deliberately distinct from a missing store (which
// is the normal zero-accounts state) and must never be silently treated as
// empty.
type CorruptStoreError struct {
	Path string
	Err  error
}

func (e *CorruptStoreError) Error() string {
	return fmt.Sprintf("corrupt credential store at %s: %v", e.Path, e.Err)
}

func (e *CorruptStoreError) Unwrap() error { return e.Err }

// IsReauthRequired reports whether err indicates the identity needs a new
// interactive login.
func IsReauthRequired(err error) bool {
	var re *ReauthRequiredError
	return errors.As(err, &re)
}

// IsTransient reports whether err is safe to retry with backoff.
func IsTransient(err error) bool {
	var te *TransientProviderError
	return errors.As(err, &te)
}
