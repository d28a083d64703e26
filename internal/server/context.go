package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/graphbridge/graphbridge/internal/graph"
	"github.com/graphbridge/graphbridge/internal/instrumentation"
	"github.com/graphbridge/graphbridge/internal/msauth"
)

// ServerContext holds the shared state for the MCP server: the account
// manager, a per-account cache of Graph clients, and optional
// instrumentation.
type ServerContext struct {
	ctx          context.Context
	cancel       context.CancelFunc
	accounts     *msauth.Manager
	graphClients map[string]*graph.Client // keyed by resolved account ID
	graphOpts    []graph.Option
	logger       *slog.Logger
	readOnly     bool

	instrProvider *instrumentation.Provider
	metrics       *instrumentation.Metrics
	auditLogger   *instrumentation.AuditLogger

	mu       sync.RWMutex
	shutdown bool
}

// ContextOption customizes a ServerContext.
type ContextOption func(*ServerContext)

// WithReadOnly disables tools that modify remote state.
func WithReadOnly(readOnly bool) ContextOption {
	return func(sc *ServerContext) { sc.readOnly = readOnly }
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) ContextOption {
	return func(sc *ServerContext) { sc.logger = logger }
}

// WithGraphOptions passes extra options to every Graph client the context
// creates. Tests use this to point clients at a mock API.
func WithGraphOptions(opts ...graph.Option) ContextOption {
	return func(sc *ServerContext) { sc.graphOpts = opts }
}

// WithInstrumentation attaches an instrumentation provider.
func WithInstrumentation(provider *instrumentation.Provider) ContextOption {
	return func(sc *ServerContext) {
		sc.instrProvider = provider
		if provider != nil {
			sc.metrics = provider.Metrics()
		}
	}
}

// WithAuditLogger attaches an audit logger.
func WithAuditLogger(auditLogger *instrumentation.AuditLogger) ContextOption {
	return func(sc *ServerContext) { sc.auditLogger = auditLogger }
}

// NewServerContext creates a new server context around the account manager.
func NewServerContext(ctx context.Context, accounts *msauth.Manager, opts ...ContextOption) *ServerContext {
	shutdownCtx, cancel := context.WithCancel(ctx)

	sc := &ServerContext{
		ctx:          shutdownCtx,
		cancel:       cancel,
		accounts:     accounts,
		graphClients: make(map[string]*graph.Client),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(sc)
	}
	return sc
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Accounts returns the account manager.
func (sc *ServerContext) Accounts() *msauth.Manager {
	return sc.accounts
}

// Logger returns the server logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// ReadOnly reports whether write tools are disabled.
func (sc *ServerContext) ReadOnly() bool {
	return sc.readOnly
}

// InstrumentationProvider returns the attached provider, or nil.
func (sc *ServerContext) InstrumentationProvider() *instrumentation.Provider {
	return sc.instrProvider
}

// Metrics returns the metrics recorder, or nil when instrumentation is off.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.metrics
}

// SetMetrics sets the metrics recorder directly. Tests use this to inject a
// recorder without a full provider.
func (sc *ServerContext) SetMetrics(metrics *instrumentation.Metrics) {
	sc.metrics = metrics
}

// AuditLogger returns the audit logger, or nil.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	return sc.auditLogger
}

// SetAuditLogger sets the audit logger.
func (sc *ServerContext) SetAuditLogger(auditLogger *instrumentation.AuditLogger) {
	sc.auditLogger = auditLogger
}

// GraphClientForAccount resolves the account selector and returns a cached
// Graph client for the resolved account, creating one on first use. An empty
// selector resolves to the default account.
func (sc *ServerContext) GraphClientForAccount(selector string) (*graph.Client, error) {
	accountID, err := sc.accounts.Resolve(selector)
	if err != nil {
		return nil, err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()

	if client, ok := sc.graphClients[accountID]; ok {
		return client, nil
	}

	opts := append([]graph.Option{graph.WithLogger(sc.logger)}, sc.graphOpts...)
	client := graph.NewClient(sc.accounts, accountID, opts...)
	sc.graphClients[accountID] = client
	return client, nil
}

// DropGraphClient evicts the cached client for an account. Called after the
// account is removed.
func (sc *ServerContext) DropGraphClient(accountID string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	delete(sc.graphClients, accountID)
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown shuts down the server context
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}
