package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/graphbridge/graphbridge/internal/instrumentation"
	"github.com/graphbridge/graphbridge/internal/msauth"
	"github.com/graphbridge/graphbridge/internal/resources"
	"github.com/graphbridge/graphbridge/internal/server"
	"github.com/graphbridge/graphbridge/internal/tools/account_tools"
	"github.com/graphbridge/graphbridge/internal/tools/excel_tools"
	"github.com/graphbridge/graphbridge/internal/tools/sharepoint_tools"
)

func newServeCmd() *cobra.Command {
	var (
		debug              bool
		yolo               bool
		clientID           string
		tenantID           string
		credentialsFile    string
		safetyMargin       time.Duration
		ignoreCorruptStore bool
		scopes             string
		metricsEnabled     bool
		metricsAddr        string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server for Microsoft 365 access",
		Long: `Start an MCP (Model Context Protocol) server that provides AI assistants
with tools for SharePoint sites, drive files, and Excel workbooks across
multiple signed-in Microsoft accounts.

The server communicates over stdio. By default it runs in read-only mode;
pass --yolo to enable write operations (file upload, delete, Excel edits).

Accounts are added through the device-code login flow, either with the
accounts_authenticate MCP tool or the "graphbridge accounts login" command.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(serveOptions{
				debug:              debug,
				yolo:               yolo,
				clientID:           clientID,
				tenantID:           tenantID,
				credentialsFile:    credentialsFile,
				safetyMargin:       safetyMargin,
				ignoreCorruptStore: ignoreCorruptStore,
				scopes:             parseCommaSeparatedList(scopes),
				metricsEnabled:     metricsEnabled,
				metricsAddr:        metricsAddr,
			})
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
	cmd.Flags().BoolVar(&yolo, "yolo", false, "Enable write operations (default is read-only mode)")
	cmd.Flags().StringVar(&clientID, "client-id", os.Getenv("GRAPH_CLIENT_ID"), "Entra application (client) ID (env: GRAPH_CLIENT_ID)")
	cmd.Flags().StringVar(&tenantID, "tenant", envOrDefault("GRAPH_TENANT_ID", "common"), "Entra tenant ID (env: GRAPH_TENANT_ID)")
	cmd.Flags().StringVar(&credentialsFile, "credentials-file", os.Getenv("GRAPH_CREDENTIALS_FILE"), "Credential cache location (env: GRAPH_CREDENTIALS_FILE)")
	cmd.Flags().DurationVar(&safetyMargin, "safety-margin", 5*time.Minute, "Refresh access tokens this long before they expire")
	cmd.Flags().BoolVar(&ignoreCorruptStore, "ignore-corrupt-credentials", false, "Start with no accounts when the credential file cannot be parsed")
	cmd.Flags().StringVar(&scopes, "scopes", "", "Comma-separated OAuth scopes to request at login (default: the built-in Graph scope set)")
	cmd.Flags().BoolVar(&metricsEnabled, "metrics-enabled", false, "Expose Prometheus metrics over HTTP")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server listen address")

	return cmd
}

type serveOptions struct {
	debug              bool
	yolo               bool
	clientID           string
	tenantID           string
	credentialsFile    string
	safetyMargin       time.Duration
	ignoreCorruptStore bool
	scopes             []string
	metricsEnabled     bool
	metricsAddr        string
}

func runServe(opts serveOptions) error {
	// stdout carries the MCP protocol, so all logging goes to stderr.
	level := slog.LevelInfo
	if opts.debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if opts.clientID == "" {
		return fmt.Errorf("client ID is required: pass --client-id or set GRAPH_CLIENT_ID")
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	instrProvider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize instrumentation: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := instrProvider.Shutdown(ctx); err != nil {
			logger.Error("instrumentation shutdown failed", "error", err)
		}
	}()

	accounts, err := msauth.NewManager(msauth.ManagerConfig{
		Provider: msauth.ProviderConfig{
			ClientID: opts.clientID,
			TenantID: opts.tenantID,
			Scopes:   opts.scopes,
		},
		StorePath:          opts.credentialsFile,
		SafetyMargin:       opts.safetyMargin,
		IgnoreCorruptStore: opts.ignoreCorruptStore,
		Logger:             logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize account manager: %w", err)
	}
	if metrics := instrProvider.Metrics(); metrics != nil {
		accounts.SetRefreshObserver(metrics.RecordOAuthTokenRefresh)
	}

	readOnly := !opts.yolo
	if readOnly {
		logger.Info("running in read-only mode, write tools are disabled (pass --yolo to enable)")
	} else {
		logger.Warn("write operations enabled")
	}

	sc := server.NewServerContext(shutdownCtx, accounts,
		server.WithReadOnly(readOnly),
		server.WithLogger(logger),
		server.WithInstrumentation(instrProvider),
		server.WithAuditLogger(instrumentation.NewAuditLoggerWithConfig(logger, instrConfig.AuditLogging)),
	)
	defer func() {
		if err := sc.Shutdown(); err != nil {
			logger.Error("server context shutdown failed", "error", err)
		}
	}()

	mcpSrv := mcpserver.NewMCPServer("graphbridge", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false),
	)

	if err := registerAllTools(mcpSrv, sc, readOnly); err != nil {
		return err
	}

	if opts.metricsEnabled && instrProvider.Enabled() {
		metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    opts.metricsAddr,
			Enabled:                 true,
			InstrumentationProvider: instrProvider,
			HealthChecker:           server.NewHealthChecker(sc),
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		go func() {
			if err := metricsServer.Start(); err != nil && !strings.Contains(err.Error(), "Server closed") {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(ctx); err != nil {
				logger.Error("metrics server shutdown failed", "error", err)
			}
		}()
	}

	logger.Info("starting MCP server on stdio",
		"version", version,
		"accounts", len(accounts.Accounts()),
		"read_only", readOnly)

	errCh := make(chan error, 1)
	go func() {
		errCh <- mcpserver.ServeStdio(mcpSrv)
	}()

	select {
	case <-shutdownCtx.Done():
		logger.Info("shutdown signal received")
		return nil
	case err := <-errCh:
		if err != nil && shutdownCtx.Err() == nil {
			return fmt.Errorf("MCP server error: %w", err)
		}
		return nil
	}
}

// registerAllTools wires every tool group and resource into the MCP server.
func registerAllTools(mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	registrations := []struct {
		name     string
		register func() error
	}{
		{"account tools", func() error { return account_tools.RegisterAccountTools(mcpSrv, sc) }},
		{"SharePoint tools", func() error { return sharepoint_tools.RegisterSharePointTools(mcpSrv, sc, readOnly) }},
		{"Excel tools", func() error { return excel_tools.RegisterExcelTools(mcpSrv, sc, readOnly) }},
		{"account resources", func() error { return resources.RegisterAccountResources(mcpSrv, sc) }},
	}

	for _, r := range registrations {
		if err := r.register(); err != nil {
			return fmt.Errorf("failed to register %s: %w", r.name, err)
		}
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// parseCommaSeparatedList splits a comma-separated flag value, trimming
// whitespace and dropping empty entries. Returns nil for an empty input.
func parseCommaSeparatedList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("graphbridge version %s\n", version)
		},
	}
}
