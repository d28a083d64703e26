package msauth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// refreshServer counts refresh exchanges and answers each with a numbered
// access token, or with a canned OAuth error.
type refreshServer struct {
	srv       *httptest.Server
	calls     atomic.Int64
	errorCode string // when set, every refresh fails with this code
}

func newRefreshServer(t *testing.T) *refreshServer {
	t.Helper()
	rs := &refreshServer{}
	rs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))

		n := rs.calls.Add(1)
		if rs.errorCode != "" {
			writeJSON(t, w, http.StatusBadRequest, map[string]any{"error": rs.errorCode})
			return
		}
		writeJSON(t, w, http.StatusOK, map[string]any{
			"access_token":  fmt.Sprintf("refreshed-access-%s-%d", r.Form.Get("refresh_token"), n),
			"refresh_token": "rotated-refresh",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}))
	t.Cleanup(rs.srv.Close)
	return rs
}

func (rs *refreshServer) config() ProviderConfig {
	return ProviderConfig{
		ClientID: "client-123",
		Endpoint: oauth2.Endpoint{
			AuthURL:  rs.srv.URL + "/authorize",
			TokenURL: rs.srv.URL + "/token",
		},
		HTTPClient: rs.srv.Client(),
	}
}

func newTestBroker(t *testing.T, rs *refreshServer, margin time.Duration) (*Broker, *Registry) {
	t.Helper()
	store := NewCredentialStore(filepath.Join(t.TempDir(), "credentials.json"), nil)
	registry, err := NewRegistry(store, nil)
	require.NoError(t, err)
	return NewBroker(rs.config(), registry, margin, nil), registry
}

func TestNewBroker_DefaultHTTPClientHasTimeout(t *testing.T) {
	// Without an injected client, refreshes must still run against a client
	// with a request timeout, not http.DefaultClient: a hung token endpoint
	// would otherwise block the refreshing caller and every waiter behind it.
	store := NewCredentialStore(filepath.Join(t.TempDir(), "credentials.json"), nil)
	registry, err := NewRegistry(store, nil)
	require.NoError(t, err)

	broker := NewBroker(ProviderConfig{ClientID: "client-123"}, registry, 0, nil)
	require.NotNil(t, broker.httpClient)
	assert.Positive(t, broker.httpClient.Timeout)
}

func TestBroker_FreshTokenSkipsNetwork(t *testing.T) {
	rs := newRefreshServer(t)
	broker, registry := newTestBroker(t, rs, time.Minute)

	require.NoError(t, registry.Upsert(Identity{ID: "alice@example.com"}, TokenSet{
		AccessToken:  "cached-access",
		RefreshToken: "refresh-alice",
		Expiry:       time.Now().Add(time.Hour),
	}))

	token, err := broker.Token(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "cached-access", token)
	assert.EqualValues(t, 0, rs.calls.Load())
}

func TestBroker_SafetyMarginForcesRefresh(t *testing.T) {
	rs := newRefreshServer(t)
	broker, registry := newTestBroker(t, rs, time.Minute)

	// Expires in 30s: inside the one-minute margin, so still-valid tokens
	// are refreshed early.
	require.NoError(t, registry.Upsert(Identity{ID: "alice@example.com"}, TokenSet{
		AccessToken:  "almost-expired",
		RefreshToken: "refresh-alice",
		Expiry:       time.Now().Add(30 * time.Second),
	}))

	token, err := broker.Token(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "almost-expired", token)
	assert.EqualValues(t, 1, rs.calls.Load())
}

func TestBroker_RefreshPersistsNewTokens(t *testing.T) {
	rs := newRefreshServer(t)
	store := NewCredentialStore(filepath.Join(t.TempDir(), "credentials.json"), nil)
	registry, err := NewRegistry(store, nil)
	require.NoError(t, err)
	broker := NewBroker(rs.config(), registry, time.Minute, nil)

	require.NoError(t, registry.Upsert(Identity{ID: "alice@example.com"}, TokenSet{
		AccessToken:  "old-access",
		RefreshToken: "refresh-alice",
		Expiry:       time.Now().Add(-time.Minute),
	}))

	_, err = broker.Token(context.Background(), "alice@example.com")
	require.NoError(t, err)

	// The rotated refresh token reaches the durable store before Token
	// returns.
	records, err := store.Load()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "rotated-refresh", records[0].Tokens.RefreshToken)
	assert.True(t, records[0].Tokens.Expiry.After(time.Now()))
}

func TestBroker_ConcurrentRefreshHitsProviderOnce(t *testing.T) {
	rs := newRefreshServer(t)
	broker, registry := newTestBroker(t, rs, time.Minute)

	require.NoError(t, registry.Upsert(Identity{ID: "alice@example.com"}, TokenSet{
		AccessToken:  "expired-access",
		RefreshToken: "refresh-alice",
		Expiry:       time.Now().Add(-time.Minute),
	}))

	const workers = 8
	tokens := make([]string, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = broker.Token(context.Background(), "alice@example.com")
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, tokens[0], tokens[i])
	}
	assert.EqualValues(t, 1, rs.calls.Load(), "all callers must share a single refresh exchange")
}

func TestBroker_IndependentAccountsRefreshIndependently(t *testing.T) {
	rs := newRefreshServer(t)
	broker, registry := newTestBroker(t, rs, time.Minute)

	expired := func(id string) TokenSet {
		return TokenSet{
			AccessToken:  "expired-" + id,
			RefreshToken: "refresh-" + id,
			Expiry:       time.Now().Add(-time.Minute),
		}
	}
	require.NoError(t, registry.Upsert(Identity{ID: "alice@example.com"}, expired("alice")))
	require.NoError(t, registry.Upsert(Identity{ID: "bob@example.com"}, expired("bob")))

	aliceToken, err := broker.Token(context.Background(), "alice@example.com")
	require.NoError(t, err)
	bobToken, err := broker.Token(context.Background(), "bob@example.com")
	require.NoError(t, err)

	assert.NotEqual(t, aliceToken, bobToken)
	assert.EqualValues(t, 2, rs.calls.Load())
}

func TestBroker_RejectedRefreshTokenRequiresReauth(t *testing.T) {
	rs := newRefreshServer(t)
	rs.errorCode = "invalid_grant"
	broker, registry := newTestBroker(t, rs, time.Minute)

	require.NoError(t, registry.Upsert(Identity{ID: "alice@example.com"}, TokenSet{
		AccessToken:  "expired-access",
		RefreshToken: "revoked-refresh",
		Expiry:       time.Now().Add(-time.Minute),
	}))

	_, err := broker.Token(context.Background(), "alice@example.com")

	var reauth *ReauthRequiredError
	require.ErrorAs(t, err, &reauth)
	assert.Equal(t, "alice@example.com", reauth.Identity)
	assert.True(t, IsReauthRequired(err))
	assert.False(t, IsTransient(err))
}

func TestBroker_ProviderOutageIsTransient(t *testing.T) {
	rs := newRefreshServer(t)
	rs.errorCode = "temporarily_unavailable"
	broker, registry := newTestBroker(t, rs, time.Minute)

	require.NoError(t, registry.Upsert(Identity{ID: "alice@example.com"}, TokenSet{
		AccessToken:  "expired-access",
		RefreshToken: "refresh-alice",
		Expiry:       time.Now().Add(-time.Minute),
	}))

	_, err := broker.Token(context.Background(), "alice@example.com")
	assert.True(t, IsTransient(err))
	assert.False(t, IsReauthRequired(err))
}

func TestBroker_MissingRefreshTokenRequiresReauth(t *testing.T) {
	rs := newRefreshServer(t)
	broker, registry := newTestBroker(t, rs, time.Minute)

	require.NoError(t, registry.Upsert(Identity{ID: "alice@example.com"}, TokenSet{
		AccessToken: "expired-access",
		Expiry:      time.Now().Add(-time.Minute),
	}))

	_, err := broker.Token(context.Background(), "alice@example.com")
	assert.True(t, IsReauthRequired(err))
	assert.EqualValues(t, 0, rs.calls.Load())
}

func TestBroker_UnknownAccount(t *testing.T) {
	rs := newRefreshServer(t)
	broker, _ := newTestBroker(t, rs, time.Minute)

	_, err := broker.Token(context.Background(), "nobody@example.com")

	var unknown *UnknownAccountError
	assert.ErrorAs(t, err, &unknown)
}

func TestBroker_RefreshObserver(t *testing.T) {
	rs := newRefreshServer(t)
	broker, registry := newTestBroker(t, rs, time.Minute)

	var outcomes []string
	broker.SetRefreshObserver(func(_ context.Context, result string) {
		outcomes = append(outcomes, result)
	})

	require.NoError(t, registry.Upsert(Identity{ID: "alice@example.com"}, TokenSet{
		AccessToken:  "expired-access",
		RefreshToken: "refresh-alice",
		Expiry:       time.Now().Add(-time.Minute),
	}))

	_, err := broker.Token(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"success"}, outcomes)

	rs.errorCode = "invalid_grant"
	broker.Invalidate("alice@example.com")
	_, err = broker.Token(context.Background(), "alice@example.com")
	require.Error(t, err)
	assert.Equal(t, []string{"success", "expired"}, outcomes)
}

func TestBroker_InvalidateForcesRefresh(t *testing.T) {
	rs := newRefreshServer(t)
	broker, registry := newTestBroker(t, rs, time.Minute)

	require.NoError(t, registry.Upsert(Identity{ID: "alice@example.com"}, TokenSet{
		AccessToken:  "cached-access",
		RefreshToken: "refresh-alice",
		Expiry:       time.Now().Add(time.Hour),
	}))

	token, err := broker.Token(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "cached-access", token)

	broker.Invalidate("alice@example.com")

	token, err = broker.Token(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "cached-access", token)
	assert.EqualValues(t, 1, rs.calls.Load())
}
