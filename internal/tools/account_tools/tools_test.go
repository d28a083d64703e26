package account_tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/oauth2"

	"github.com/graphbridge/graphbridge/internal/msauth"
	"github.com/graphbridge/graphbridge/internal/server"
)

// fakeProvider serves the device-authorization and token endpoints of a
// sign-in that succeeds on the first poll.
func fakeProvider(t *testing.T) *httptest.Server {
	t.Helper()

	idToken := makeIDToken(t, map[string]interface{}{
		"preferred_username": "user@example.com",
		"oid":                "oid-1",
		"tid":                "tid-1",
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/devicecode", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"device_code":      "device-code-secret",
			"user_code":        "ABCD-1234",
			"verification_uri": "https://microsoft.com/devicelogin",
			"expires_in":       900,
			"interval":         1,
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "access-token-1",
			"refresh_token": "refresh-token-1",
			"expires_in":    3600,
			"id_token":      idToken,
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func makeIDToken(t *testing.T, claims map[string]interface{}) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("failed to encode claims: %v", err)
	}
	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + "."
}

func newTestServerContext(t *testing.T, provider *httptest.Server) *server.ServerContext {
	t.Helper()

	cfg := msauth.ProviderConfig{ClientID: "test-client"}
	if provider != nil {
		cfg.Endpoint = oauth2.Endpoint{
			AuthURL:       provider.URL + "/authorize",
			TokenURL:      provider.URL + "/token",
			DeviceAuthURL: provider.URL + "/devicecode",
		}
		cfg.HTTPClient = provider.Client()
	}

	mgr, err := msauth.NewManager(msauth.ManagerConfig{
		Provider:  cfg,
		StorePath: filepath.Join(t.TempDir(), "credentials.json"),
	})
	if err != nil {
		t.Fatalf("failed to create account manager: %v", err)
	}

	sc := server.NewServerContext(context.Background(), mgr)
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

func requestWithArgs(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil || len(result.Content) == 0 {
		t.Fatal("expected a result with content")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	return text.Text
}

func TestHandleListAccounts_Empty(t *testing.T) {
	sc := newTestServerContext(t, nil)

	result, err := handleListAccounts(context.Background(), mcp.CallToolRequest{}, sc)
	if err != nil {
		t.Fatalf("handleListAccounts() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", resultText(t, result))
	}
	if !strings.Contains(resultText(t, result), "No accounts are signed in") {
		t.Errorf("expected empty-registry message, got %q", resultText(t, result))
	}
}

func TestAuthenticateThenComplete(t *testing.T) {
	provider := fakeProvider(t)
	sc := newTestServerContext(t, provider)
	ctx := context.Background()

	result, err := handleAuthenticate(ctx, mcp.CallToolRequest{}, sc)
	if err != nil {
		t.Fatalf("handleAuthenticate() error = %v", err)
	}
	text := resultText(t, result)
	if !strings.Contains(text, "ABCD-1234") {
		t.Errorf("expected user code in response, got %q", text)
	}
	if !strings.Contains(text, "https://microsoft.com/devicelogin") {
		t.Errorf("expected verification URL in response, got %q", text)
	}

	// The handle also travels in the text; use the manager directly for a
	// handle we can trust in assertions.
	flow, err := sc.Accounts().StartLogin(ctx)
	if err != nil {
		t.Fatalf("StartLogin() error = %v", err)
	}
	if !strings.Contains(text, flow.UserCode) {
		t.Errorf("authenticate response %q does not carry the user code", text)
	}

	result, err = handleCompleteAuthentication(ctx, requestWithArgs(map[string]interface{}{
		"flowHandle": flow.Handle,
	}), sc)
	if err != nil {
		t.Fatalf("handleCompleteAuthentication() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", resultText(t, result))
	}
	if !strings.Contains(resultText(t, result), "user@example.com") {
		t.Errorf("expected signed-in identity, got %q", resultText(t, result))
	}

	// The account now lists as the default.
	result, err = handleListAccounts(ctx, mcp.CallToolRequest{}, sc)
	if err != nil {
		t.Fatalf("handleListAccounts() error = %v", err)
	}
	text = resultText(t, result)
	if !strings.Contains(text, "user@example.com") || !strings.Contains(text, "[DEFAULT]") {
		t.Errorf("expected default account listing, got %q", text)
	}
}

func TestHandleCompleteAuthentication_MissingHandle(t *testing.T) {
	sc := newTestServerContext(t, nil)

	result, err := handleCompleteAuthentication(context.Background(), requestWithArgs(nil), sc)
	if err != nil {
		t.Fatalf("handleCompleteAuthentication() error = %v", err)
	}
	if !result.IsError {
		t.Error("expected an error result for a missing handle")
	}
}

func TestHandleCompleteAuthentication_InvalidHandle(t *testing.T) {
	sc := newTestServerContext(t, nil)

	result, err := handleCompleteAuthentication(context.Background(), requestWithArgs(map[string]interface{}{
		"flowHandle": "not-a-handle",
	}), sc)
	if err != nil {
		t.Fatalf("handleCompleteAuthentication() error = %v", err)
	}
	if !result.IsError {
		t.Fatal("expected an error result for an invalid handle")
	}
	if !strings.Contains(resultText(t, result), "not valid") {
		t.Errorf("expected invalid-handle message, got %q", resultText(t, result))
	}
}

func TestHandleRemoveAccount(t *testing.T) {
	provider := fakeProvider(t)
	sc := newTestServerContext(t, provider)
	ctx := context.Background()

	flow, err := sc.Accounts().StartLogin(ctx)
	if err != nil {
		t.Fatalf("StartLogin() error = %v", err)
	}
	if _, err := sc.Accounts().CompleteLogin(ctx, flow.Handle); err != nil {
		t.Fatalf("CompleteLogin() error = %v", err)
	}

	result, err := handleRemoveAccount(ctx, requestWithArgs(map[string]interface{}{
		"account": "user@example.com",
	}), sc)
	if err != nil {
		t.Fatalf("handleRemoveAccount() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", resultText(t, result))
	}

	if got := sc.Accounts().Accounts(); len(got) != 0 {
		t.Errorf("expected no accounts after removal, got %d", len(got))
	}
}

func TestHandleRemoveAccount_Unknown(t *testing.T) {
	sc := newTestServerContext(t, nil)

	result, err := handleRemoveAccount(context.Background(), requestWithArgs(map[string]interface{}{
		"account": "ghost@example.com",
	}), sc)
	if err != nil {
		t.Fatalf("handleRemoveAccount() error = %v", err)
	}
	if !result.IsError {
		t.Error("expected an error result for an unknown account")
	}
}
