package server

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/graphbridge/graphbridge/internal/msauth"
)

func newTestManager(t *testing.T, seedAccounts ...string) *msauth.Manager {
	t.Helper()

	storePath := filepath.Join(t.TempDir(), "credentials.json")
	if len(seedAccounts) > 0 {
		doc := `{"version":1,"identities":[`
		for i, id := range seedAccounts {
			if i > 0 {
				doc += ","
			}
			doc += `{"identity":{"id":"` + id + `","label":"` + id + `"},` +
				`"tokens":{"access_token":"access-` + id + `","refresh_token":"refresh-` + id + `",` +
				`"expiry":"` + time.Now().Add(time.Hour).UTC().Format(time.RFC3339) + `"},` +
				`"added_at":"` + time.Now().UTC().Format(time.RFC3339) + `"}`
		}
		doc += `]}`
		if err := os.WriteFile(storePath, []byte(doc), 0600); err != nil {
			t.Fatalf("failed to seed credential store: %v", err)
		}
	}

	mgr, err := msauth.NewManager(msauth.ManagerConfig{
		Provider:  msauth.ProviderConfig{ClientID: "test-client"},
		StorePath: storePath,
	})
	if err != nil {
		t.Fatalf("failed to create account manager: %v", err)
	}
	return mgr
}

func TestServerContext_GraphClientForAccount(t *testing.T) {
	mgr := newTestManager(t, "alice@example.com", "bob@example.com")
	sc := NewServerContext(context.Background(), mgr)

	client, err := sc.GraphClientForAccount("alice@example.com")
	if err != nil {
		t.Fatalf("GraphClientForAccount() error = %v", err)
	}
	if client.AccountID() != "alice@example.com" {
		t.Errorf("AccountID() = %q, want %q", client.AccountID(), "alice@example.com")
	}

	again, err := sc.GraphClientForAccount("alice@example.com")
	if err != nil {
		t.Fatalf("GraphClientForAccount() second call error = %v", err)
	}
	if again != client {
		t.Error("expected the cached client on repeated lookup")
	}

	other, err := sc.GraphClientForAccount("bob@example.com")
	if err != nil {
		t.Fatalf("GraphClientForAccount() error = %v", err)
	}
	if other == client {
		t.Error("expected distinct clients for distinct accounts")
	}
}

func TestServerContext_DefaultAccount(t *testing.T) {
	mgr := newTestManager(t, "alice@example.com", "bob@example.com")
	sc := NewServerContext(context.Background(), mgr)

	client, err := sc.GraphClientForAccount("")
	if err != nil {
		t.Fatalf("GraphClientForAccount() error = %v", err)
	}
	if client.AccountID() != "alice@example.com" {
		t.Errorf("default account = %q, want first authenticated %q", client.AccountID(), "alice@example.com")
	}
}

func TestServerContext_NoAccounts(t *testing.T) {
	mgr := newTestManager(t)
	sc := NewServerContext(context.Background(), mgr)

	_, err := sc.GraphClientForAccount("")
	if !errors.Is(err, msauth.ErrNoAccounts) {
		t.Errorf("GraphClientForAccount() error = %v, want ErrNoAccounts", err)
	}
}

func TestServerContext_UnknownAccount(t *testing.T) {
	mgr := newTestManager(t, "alice@example.com")
	sc := NewServerContext(context.Background(), mgr)

	_, err := sc.GraphClientForAccount("carol@example.com")
	var unknown *msauth.UnknownAccountError
	if !errors.As(err, &unknown) {
		t.Fatalf("GraphClientForAccount() error = %v, want UnknownAccountError", err)
	}
	if unknown.ID != "carol@example.com" {
		t.Errorf("UnknownAccountError.ID = %q, want %q", unknown.ID, "carol@example.com")
	}
}

func TestServerContext_DropGraphClient(t *testing.T) {
	mgr := newTestManager(t, "alice@example.com")
	sc := NewServerContext(context.Background(), mgr)

	client, err := sc.GraphClientForAccount("alice@example.com")
	if err != nil {
		t.Fatalf("GraphClientForAccount() error = %v", err)
	}

	sc.DropGraphClient("alice@example.com")

	replacement, err := sc.GraphClientForAccount("alice@example.com")
	if err != nil {
		t.Fatalf("GraphClientForAccount() after drop error = %v", err)
	}
	if replacement == client {
		t.Error("expected a fresh client after DropGraphClient")
	}
}

func TestServerContext_Shutdown(t *testing.T) {
	mgr := newTestManager(t)
	sc := NewServerContext(context.Background(), mgr)

	if sc.IsShutdown() {
		t.Error("new context reports shutdown")
	}
	if err := sc.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if !sc.IsShutdown() {
		t.Error("context does not report shutdown")
	}
	select {
	case <-sc.Context().Done():
	default:
		t.Error("context not cancelled after shutdown")
	}

	// Shutdown is idempotent.
	if err := sc.Shutdown(); err != nil {
		t.Fatalf("second Shutdown() error = %v", err)
	}
}

func TestServerContext_ReadOnly(t *testing.T) {
	mgr := newTestManager(t)

	sc := NewServerContext(context.Background(), mgr)
	if sc.ReadOnly() {
		t.Error("context is read-only by default")
	}

	sc = NewServerContext(context.Background(), mgr, WithReadOnly(true))
	if !sc.ReadOnly() {
		t.Error("WithReadOnly(true) not applied")
	}
}
