package msauth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/graphbridge/graphbridge/internal/logging"
)

const (
	// deviceCodeGrantType is the RFC 8628 grant type for the token poll.
	deviceCodeGrantType = "urn:ietf:params:oauth:grant-type:device_code"

	// defaultPollInterval applies when the provider omits an interval.
	defaultPollInterval = 5 * time.Second

	// maxPollInterval caps the slow_down backoff.
	maxPollInterval = 60 * time.Second
)

// DefaultScopes is the fixed scope set requested for every login: file and
// site read/write, the user profile (source of the identity claims), and
// offline access so a refresh token is issued.
var DefaultScopes = []string{
	"Files.ReadWrite.All",
	"Sites.ReadWrite.All",
	"User.Read",
	"offline_access",
}

// ProviderConfig describes the identity provider an Authenticator (and the
// Broker) talks to.
type ProviderConfig struct {
	// ClientID is the registered public-client application ID. Required.
	ClientID string

	// TenantID selects the Entra tenant; "common" (the default) allows any
	// account.
	TenantID string

	// Scopes requested during login. Defaults to DefaultScopes.
	Scopes []string

	// Endpoint overrides the provider endpoints. Used by tests to point at a
	// mock server; production use leaves it zero and gets the Microsoft
	// endpoints for TenantID.
	Endpoint oauth2.Endpoint

	// HTTPClient overrides the HTTP client for provider calls.
	HTTPClient *http.Client
}

func (c ProviderConfig) oauthConfig() *oauth2.Config {
	tenant := c.TenantID
	if tenant == "" {
		tenant = "common"
	}
	endpoint := c.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = microsoft.AzureADEndpoint(tenant)
	}
	scopes := c.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	return &oauth2.Config{
		ClientID: c.ClientID,
		Endpoint: endpoint,
		Scopes:   scopes,
	}
}

func (c ProviderConfig) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// Authenticator drives the device-code grant. It is stateless between Start
// and Complete: everything Complete needs travels inside the opaque flow
// handle the caller holds, so no server-side session survives the human's
// out-of-band action.
type Authenticator struct {
	conf       *oauth2.Config
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
	sleep      func(context.Context, time.Duration) error
}

// NewAuthenticator creates an authenticator for the given provider.
func NewAuthenticator(cfg ProviderConfig, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		conf:       cfg.oauthConfig(),
		httpClient: cfg.httpClient(),
		logger:     logger,
		now:        time.Now,
		sleep:      sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// flowState is the decoded content of a flow handle. The device code is a
// secret shared with the provider; it lives only inside the handle.
type flowState struct {
	DeviceCode string `json:"device_code"`
	ExpiresAt  int64  `json:"expires_at"`
	Interval   int64  `json:"interval"`
}

func encodeFlowHandle(st flowState) (string, error) {
	data, err := json.Marshal(st)
	if err != nil {
		return "", fmt.Errorf("failed to encode flow handle: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

func decodeFlowHandle(handle string) (flowState, error) {
	data, err := base64.RawURLEncoding.DecodeString(handle)
	if err != nil {
		return flowState{}, fmt.Errorf("%w: %v", ErrInvalidFlowHandle, err)
	}
	var st flowState
	if err := json.Unmarshal(data, &st); err != nil {
		return flowState{}, fmt.Errorf("%w: %v", ErrInvalidFlowHandle, err)
	}
	if st.DeviceCode == "" {
		return flowState{}, ErrInvalidFlowHandle
	}
	return st, nil
}

// Start contacts the device-authorization endpoint and returns the pending
// flow. No polling happens here; the caller shows the user code, then calls
// Complete with the returned handle.
func (a *Authenticator) Start(ctx context.Context) (*PendingFlow, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)

	resp, err := a.conf.DeviceAuth(ctx)
	if err != nil {
		return nil, &TransientProviderError{Op: "device authorization", Err: err}
	}

	interval := time.Duration(resp.Interval) * time.Second
	if interval <= 0 {
		interval = defaultPollInterval
	}

	handle, err := encodeFlowHandle(flowState{
		DeviceCode: resp.DeviceCode,
		ExpiresAt:  resp.Expiry.Unix(),
		Interval:   int64(interval / time.Second),
	})
	if err != nil {
		return nil, err
	}

	a.logger.Info("started device flow",
		"user_code", resp.UserCode,
		"verification_uri", resp.VerificationURI,
		"expires_at", resp.Expiry)

	return &PendingFlow{
		UserCode:        resp.UserCode,
		VerificationURI: resp.VerificationURI,
		ExpiresAt:       resp.Expiry,
		Interval:        interval,
		Handle:          handle,
	}, nil
}

// Complete polls the token endpoint until the flow reaches a terminal state.
// It honors the provider-dictated interval and slow_down instructions, and it
// checks the flow deadline lazily before every poll: a handle whose deadline
// has passed fails with ErrFlowExpired no matter what the provider would
// answer. On success it returns the identity extracted from the ID token and
// the issued token set; it persists nothing.
func (a *Authenticator) Complete(ctx context.Context, handle string) (Identity, TokenSet, error) {
	st, err := decodeFlowHandle(handle)
	if err != nil {
		return Identity{}, TokenSet{}, err
	}

	deadline := time.Unix(st.ExpiresAt, 0)
	interval := time.Duration(st.Interval) * time.Second
	if interval <= 0 {
		interval = defaultPollInterval
	}

	for {
		if !a.now().Before(deadline) {
			return Identity{}, TokenSet{}, ErrFlowExpired
		}

		if err := a.sleep(ctx, interval); err != nil {
			return Identity{}, TokenSet{}, err
		}

		// The deadline may have passed during the sleep; polling a dead
		// device code anyway would violate RFC 8628.
		if !a.now().Before(deadline) {
			return Identity{}, TokenSet{}, ErrFlowExpired
		}

		identity, tokens, pollErr := a.pollToken(ctx, st.DeviceCode)
		if pollErr == nil {
			a.logger.Info("device flow completed", logging.UserHash(identity.ID))
			return identity, tokens, nil
		}

		var perr *providerError
		if !errors.As(pollErr, &perr) {
			return Identity{}, TokenSet{}, &TransientProviderError{Op: "device flow poll", Err: pollErr}
		}

		switch perr.Code {
		case "authorization_pending":
			continue
		case "slow_down":
			// RFC 8628 requires backing off when told to; polling faster
			// than instructed is a protocol violation.
			interval = minDuration(interval+5*time.Second, maxPollInterval)
			a.logger.Debug("provider requested slower polling", "interval", interval)
			continue
		case "expired_token":
			return Identity{}, TokenSet{}, ErrFlowExpired
		case "access_denied":
			return Identity{}, TokenSet{}, ErrFlowDenied
		default:
			return Identity{}, TokenSet{}, fmt.Errorf("device flow failed: %s: %s", perr.Code, perr.Description)
		}
	}
}

// providerError is a decoded OAuth error response from the token endpoint.
type providerError struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *providerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// tokenResponse is the raw token endpoint success payload.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
	IDToken      string `json:"id_token"`
}

// pollToken performs a single device-code exchange against the token
// endpoint.
func (a *Authenticator) pollToken(ctx context.Context, deviceCode string) (Identity, TokenSet, error) {
	form := url.Values{}
	form.Set("grant_type", deviceCodeGrantType)
	form.Set("client_id", a.conf.ClientID)
	form.Set("device_code", deviceCode)

	resp, err := a.postForm(ctx, a.conf.Endpoint.TokenURL, form)
	if err != nil {
		return Identity{}, TokenSet{}, err
	}

	identity, err := identityFromIDToken(resp.IDToken)
	if err != nil {
		return Identity{}, TokenSet{}, err
	}

	return identity, tokenSetFromResponse(resp, a.now()), nil
}

// postForm sends a form-encoded request to the token endpoint and decodes
// either a token response or a providerError.
func (a *Authenticator) postForm(ctx context.Context, endpoint string, form url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpResp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		var perr providerError
		if jsonErr := json.Unmarshal(body, &perr); jsonErr == nil && perr.Code != "" {
			return nil, &perr
		}
		return nil, fmt.Errorf("token endpoint returned status %d: %s", httpResp.StatusCode, body)
	}

	var resp tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}
	return &resp, nil
}

func tokenSetFromResponse(resp *tokenResponse, now time.Time) TokenSet {
	ts := TokenSet{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
	}
	if resp.ExpiresIn > 0 {
		ts.Expiry = now.Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	if resp.Scope != "" {
		ts.Scopes = strings.Fields(resp.Scope)
	}
	return ts
}

// identityFromIDToken extracts the stable account identifier and display
// label from the ID token claims. The token arrived over TLS directly from
// the issuer, so the claims are parsed without signature verification; this
// mirrors how public clients consume their own ID tokens.
func identityFromIDToken(idToken string) (Identity, error) {
	if idToken == "" {
		return Identity{}, fmt.Errorf("token response missing id_token; ensure the User.Read and offline_access scopes are granted")
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(idToken, claims); err != nil {
		return Identity{}, fmt.Errorf("failed to parse id_token: %w", err)
	}

	username, _ := claims["preferred_username"].(string)
	if username == "" {
		username, _ = claims["email"].(string)
	}
	if username != "" {
		return Identity{ID: username, Label: username}, nil
	}

	// Guest and service accounts may carry no username claim; fall back to
	// the object/tenant ID pair, which is stable for the account's lifetime.
	oid, _ := claims["oid"].(string)
	tid, _ := claims["tid"].(string)
	if oid == "" || tid == "" {
		return Identity{}, fmt.Errorf("id_token missing account claims")
	}
	return Identity{ID: oid + "." + tid, Label: oid}, nil
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
