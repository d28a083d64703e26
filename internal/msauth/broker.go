package msauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/graphbridge/graphbridge/internal/logging"
)

// DefaultSafetyMargin is how long before expiry a cached access token is
// treated as stale. Graph calls that start with a nearly-expired token can
// fail mid-flight, so tokens are rotated early.
const DefaultSafetyMargin = 5 * time.Minute

// Broker hands out valid access tokens for registered accounts. Tokens inside
// the safety margin are served from the registry without a network call;
// stale tokens are refreshed against the provider, with concurrent refreshes
// for the same account collapsed into a single exchange so the refresh token
// is consumed exactly once.
type Broker struct {
	conf     *oauth2.Config
	registry *Registry
	margin   time.Duration
	group    singleflight.Group
	logger   *slog.Logger
	now      func() time.Time

	// httpClient is injected into refresh calls via the oauth2 context. Never
	// nil: a hung token endpoint must not block refresh waiters forever, so
	// the provider default client with its request timeout applies when the
	// caller supplies none.
	httpClient *http.Client

	// onRefresh, when set, is told the outcome of every provider refresh
	// attempt: "success", "expired" (re-auth needed), or "failure".
	onRefresh func(ctx context.Context, result string)
}

// NewBroker creates a broker over the given registry.
func NewBroker(cfg ProviderConfig, registry *Registry, margin time.Duration, logger *slog.Logger) *Broker {
	if margin <= 0 {
		margin = DefaultSafetyMargin
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		conf:       cfg.oauthConfig(),
		registry:   registry,
		margin:     margin,
		logger:     logger,
		now:        time.Now,
		httpClient: cfg.httpClient(),
	}
}

// Token returns a currently valid access token for the account. The fast
// path is a registry read; refresh happens only when the cached token is
// within the safety margin of expiry.
func (b *Broker) Token(ctx context.Context, accountID string) (string, error) {
	rec, ok := b.registry.Get(accountID)
	if !ok {
		return "", &UnknownAccountError{ID: accountID}
	}

	if rec.Tokens.Fresh(b.now(), b.margin) {
		return rec.Tokens.AccessToken, nil
	}

	token, err, _ := b.group.Do(accountID, func() (interface{}, error) {
		return b.refresh(ctx, accountID)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

// SetRefreshObserver installs a callback for refresh outcomes. Used to feed
// the token-refresh metric without coupling this package to the meter.
func (b *Broker) SetRefreshObserver(fn func(ctx context.Context, result string)) {
	b.onRefresh = fn
}

func (b *Broker) observeRefresh(ctx context.Context, result string) {
	if b.onRefresh != nil {
		b.onRefresh(ctx, result)
	}
}

// Invalidate marks the account's cached access token as expired so the next
// Token call refreshes. Used after the resource API rejects a token the
// broker still considered fresh.
func (b *Broker) Invalidate(accountID string) {
	b.registry.Invalidate(accountID)
}

// refresh exchanges the account's refresh token for a new token set and
// persists it. Runs inside the singleflight group, so at most one refresh per
// account is in flight.
func (b *Broker) refresh(ctx context.Context, accountID string) (string, error) {
	// Re-check under the flight: a waiter queued behind the winning refresh
	// finds fresh tokens here and skips the network entirely.
	rec, ok := b.registry.Get(accountID)
	if !ok {
		return "", &UnknownAccountError{ID: accountID}
	}
	if rec.Tokens.Fresh(b.now(), b.margin) {
		return rec.Tokens.AccessToken, nil
	}
	if rec.Tokens.RefreshToken == "" {
		return "", &ReauthRequiredError{
			Identity: rec.Identity.ID,
			Err:      errors.New("no refresh token on record"),
		}
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, b.httpClient)

	b.logger.Debug("refreshing access token", logging.UserHash(accountID))

	// Hand the token source only the refresh token: keeping the access token
	// would let the library serve it back unrefreshed when it is inside our
	// safety margin but not yet expired by the library's own clock.
	src := b.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: rec.Tokens.RefreshToken})
	newToken, err := src.Token()
	if err != nil {
		classified := b.classifyRefreshError(rec.Identity.ID, err)
		var reauth *ReauthRequiredError
		if errors.As(classified, &reauth) {
			b.observeRefresh(ctx, "expired")
		} else {
			b.observeRefresh(ctx, "failure")
		}
		return "", classified
	}

	tokens := TokenSet{
		AccessToken:  newToken.AccessToken,
		RefreshToken: newToken.RefreshToken,
		Expiry:       newToken.Expiry,
		Scopes:       rec.Tokens.Scopes,
	}
	// Some providers omit the refresh token on rotation; keep the old one.
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = rec.Tokens.RefreshToken
	}

	if err := b.registry.Upsert(rec.Identity, tokens); err != nil {
		return "", fmt.Errorf("failed to persist refreshed tokens: %w", err)
	}

	b.logger.Info("refreshed access token", logging.UserHash(accountID), "expires_at", tokens.Expiry)
	b.observeRefresh(ctx, "success")
	return tokens.AccessToken, nil
}

// classifyRefreshError maps a provider refresh failure to the caller-facing
// taxonomy: a rejected refresh token means the human has to log in again;
// anything else is treated as retryable.
func (b *Broker) classifyRefreshError(identity string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		switch retrieveErr.ErrorCode {
		case "invalid_grant", "expired_token", "interaction_required", "unauthorized_client":
			return &ReauthRequiredError{Identity: identity, Err: err}
		}
	}
	return &TransientProviderError{Op: "token refresh", Err: err}
}
