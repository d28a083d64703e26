package graph

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTokens is a TokenProvider that rotates to a new token on Invalidate.
type fakeTokens struct {
	mu            sync.Mutex
	token         string
	invalidations int
}

func (f *fakeTokens) Token(ctx context.Context, accountID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, nil
}

func (f *fakeTokens) Invalidate(accountID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidations++
	f.token = "rotated-token"
}

func (f *fakeTokens) invalidationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.invalidations
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *fakeTokens) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tokens := &fakeTokens{token: "initial-token"}
	client := NewClient(tokens, "user@example.com",
		WithBaseURL(srv.URL),
		WithHTTPClient(srv.Client()),
		WithRetryBaseDelay(time.Millisecond),
	)
	client.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return client, tokens
}

func TestClient_AttachesBearerToken(t *testing.T) {
	var gotAuth string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(Site{ID: "site-1", Name: "Engineering"})
	}))

	site, err := client.GetSite(context.Background(), "site-1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer initial-token", gotAuth)
	assert.Equal(t, "Engineering", site.Name)
}

func TestClient_RetriesOnceAfterTokenRejection(t *testing.T) {
	var calls int
	var lastAuth string
	client, tokens := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		lastAuth = r.Header.Get("Authorization")
		if calls == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(Site{ID: "site-1"})
	}))

	_, err := client.GetSite(context.Background(), "site-1")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, tokens.invalidationCount())
	assert.Equal(t, "Bearer rotated-token", lastAuth)
}

func TestClient_SecondRejectionIsTerminal(t *testing.T) {
	var calls int
	client, tokens := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":"InvalidAuthenticationToken","message":"bad token"}}`))
	}))

	_, err := client.GetSite(context.Background(), "site-1")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "InvalidAuthenticationToken", apiErr.Code)
	// Exactly one invalidate-and-retry cycle; no loop.
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, tokens.invalidationCount())
}

func TestClient_HonorsRetryAfterOnThrottle(t *testing.T) {
	var calls int
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(Site{ID: "site-1"})
	}))

	var waits []time.Duration
	client.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	_, err := client.GetSite(context.Background(), "site-1")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, waits, 1)
	assert.Equal(t, 7*time.Second, waits[0])
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, defaultRetryAfter, parseRetryAfter(""))
	assert.Equal(t, defaultRetryAfter, parseRetryAfter("soon"))
	assert.Equal(t, 12*time.Second, parseRetryAfter("12"))
	// Long server-requested waits are capped.
	assert.Equal(t, maxRetryAfter, parseRetryAfter("600"))
}

func TestParseRetryAfter_HTTPDate(t *testing.T) {
	wait := parseRetryAfter(time.Now().Add(10 * time.Second).UTC().Format(http.TimeFormat))
	assert.Greater(t, wait, 8*time.Second)
	assert.LessOrEqual(t, wait, 10*time.Second)

	// A date in the past means retry immediately, not the fallback wait.
	assert.Equal(t, time.Duration(0), parseRetryAfter(time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat)))

	// Far-future dates are capped like large second counts.
	assert.Equal(t, maxRetryAfter, parseRetryAfter(time.Now().Add(time.Hour).UTC().Format(http.TimeFormat)))
}

func TestClient_BacksOffOnServerErrors(t *testing.T) {
	var calls int
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(Site{ID: "site-1"})
	}))

	_, err := client.GetSite(context.Background(), "site-1")
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestClient_ServerErrorExhaustsRetries(t *testing.T) {
	var calls int
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"code":"generalException","message":"down"}}`))
	}))

	_, err := client.GetSite(context.Background(), "site-1")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, defaultMaxRetries+1, calls)
}

func TestClient_ClientErrorDoesNotRetry(t *testing.T) {
	var calls int
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"itemNotFound","message":"no such item"}}`))
	}))

	_, err := client.GetSite(context.Background(), "missing")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsNotFound())
	assert.Equal(t, "itemNotFound", apiErr.Code)
	assert.Equal(t, "no such item", apiErr.Message)
	assert.Equal(t, 1, calls)
}

func TestClient_FollowsPagination(t *testing.T) {
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("$skiptoken") == "abc" {
			_ = json.NewEncoder(w).Encode(map[string]any{"value": []Drive{{ID: "drive-3"}}})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"value":           []Drive{{ID: "drive-1"}, {ID: "drive-2"}},
			"@odata.nextLink": srvURL + "/sites/site-1/drives?$skiptoken=abc",
		})
	}))
	t.Cleanup(srv.Close)
	srvURL = srv.URL

	tokens := &fakeTokens{token: "initial-token"}
	client := NewClient(tokens, "user@example.com", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))

	drives, err := client.ListDrives(context.Background(), "site-1")
	require.NoError(t, err)
	require.Len(t, drives, 3)
	assert.Equal(t, "drive-1", drives[0].ID)
	assert.Equal(t, "drive-3", drives[2].ID)
}

func TestClient_TokenProviderErrorPassesThrough(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request must not reach the API without a token")
	}))
	client.tokens = failingTokens{}

	_, err := client.GetSite(context.Background(), "site-1")
	assert.ErrorContains(t, err, "token unavailable")
}

type failingTokens struct{}

func (failingTokens) Token(ctx context.Context, accountID string) (string, error) {
	return "", errors.New("token unavailable")
}

func (failingTokens) Invalidate(accountID string) {}
