package msauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ManagerConfig configures the account manager.
type ManagerConfig struct {
	Provider ProviderConfig

	// StorePath is the credential file location. Defaults to
	// DefaultStorePath().
	StorePath string

	// SafetyMargin controls how early access tokens are refreshed.
	SafetyMargin time.Duration

	// IgnoreCorruptStore starts with an empty registry when the credential
	// file cannot be parsed, instead of failing startup. The corrupt file is
	// left untouched until the first successful login overwrites it.
	IgnoreCorruptStore bool

	Logger *slog.Logger
}

// Manager is the facade the tool layer talks to: account enumeration, the
// interactive login flow, and token acquisition all go through here.
type Manager struct {
	registry      *Registry
	broker        *Broker
	authenticator *Authenticator
	logger        *slog.Logger
}

// NewManager wires the credential store, registry, broker, and authenticator.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Provider.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	path := cfg.StorePath
	if path == "" {
		path = DefaultStorePath()
	}

	store := NewCredentialStore(path, logger)

	registry, err := NewRegistry(store, logger)
	if err != nil {
		var corrupt *CorruptStoreError
		if cfg.IgnoreCorruptStore && errors.As(err, &corrupt) {
			logger.Warn("credential store is unreadable, starting without accounts",
				"path", corrupt.Path, "error", corrupt.Err)
			registry = NewEmptyRegistry(store, logger)
		} else {
			return nil, err
		}
	}

	return &Manager{
		registry:      registry,
		broker:        NewBroker(cfg.Provider, registry, cfg.SafetyMargin, logger),
		authenticator: NewAuthenticator(cfg.Provider, logger),
		logger:        logger,
	}, nil
}

// Accounts lists registered accounts in the order they first authenticated.
func (m *Manager) Accounts() []Identity {
	return m.registry.List()
}

// Resolve maps an account selector to a concrete account ID. An empty
// selector picks the default account.
func (m *Manager) Resolve(selector string) (string, error) {
	return m.registry.Resolve(selector)
}

// StartLogin begins a device-code flow. The returned flow carries the user
// code to display and the handle to pass to CompleteLogin.
func (m *Manager) StartLogin(ctx context.Context) (*PendingFlow, error) {
	return m.authenticator.Start(ctx)
}

// CompleteLogin polls the provider until the flow started with the given
// handle finishes, then registers the authenticated account. Completing a
// flow for an already-registered account replaces its tokens in place.
func (m *Manager) CompleteLogin(ctx context.Context, handle string) (Identity, error) {
	identity, tokens, err := m.authenticator.Complete(ctx, handle)
	if err != nil {
		return Identity{}, err
	}
	if err := m.registry.Upsert(identity, tokens); err != nil {
		return Identity{}, fmt.Errorf("failed to save account %s: %w", identity.ID, err)
	}
	return identity, nil
}

// Token returns a valid access token for the account, refreshing if needed.
func (m *Manager) Token(ctx context.Context, accountID string) (string, error) {
	return m.broker.Token(ctx, accountID)
}

// SetRefreshObserver forwards refresh outcomes to the given callback.
func (m *Manager) SetRefreshObserver(fn func(ctx context.Context, result string)) {
	m.broker.SetRefreshObserver(fn)
}

// Invalidate discards the account's cached access token.
func (m *Manager) Invalidate(accountID string) {
	m.broker.Invalidate(accountID)
}

// Remove deletes the account and its tokens.
func (m *Manager) Remove(accountID string) error {
	return m.registry.Remove(accountID)
}
