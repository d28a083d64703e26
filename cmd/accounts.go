package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/graphbridge/graphbridge/internal/msauth"
)

// accountsFlags carries the provider settings shared by every accounts
// subcommand. They mirror the serve flags so the CLI and the MCP server
// operate on the same credential cache.
type accountsFlags struct {
	clientID        string
	tenantID        string
	credentialsFile string
}

func (f *accountsFlags) register(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&f.clientID, "client-id", os.Getenv("GRAPH_CLIENT_ID"), "Entra application (client) ID (env: GRAPH_CLIENT_ID)")
	cmd.PersistentFlags().StringVar(&f.tenantID, "tenant", envOrDefault("GRAPH_TENANT_ID", "common"), "Entra tenant ID (env: GRAPH_TENANT_ID)")
	cmd.PersistentFlags().StringVar(&f.credentialsFile, "credentials-file", os.Getenv("GRAPH_CREDENTIALS_FILE"), "Credential cache location (env: GRAPH_CREDENTIALS_FILE)")
}

func (f *accountsFlags) manager() (*msauth.Manager, error) {
	if f.clientID == "" {
		return nil, fmt.Errorf("client ID is required: pass --client-id or set GRAPH_CLIENT_ID")
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return msauth.NewManager(msauth.ManagerConfig{
		Provider: msauth.ProviderConfig{
			ClientID: f.clientID,
			TenantID: f.tenantID,
		},
		StorePath: f.credentialsFile,
		Logger:    logger,
	})
}

func newAccountsCmd() *cobra.Command {
	flags := &accountsFlags{}

	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage signed-in Microsoft accounts",
		Long: `List, add, and remove the Microsoft accounts graphbridge can act as.

Accounts are stored in a local credential cache shared with the MCP
server. The first account to sign in is the default used by tools when
no account is specified.`,
	}
	flags.register(cmd)

	cmd.AddCommand(newAccountsListCmd(flags))
	cmd.AddCommand(newAccountsLoginCmd(flags))
	cmd.AddCommand(newAccountsRemoveCmd(flags))

	return cmd
}

func newAccountsListCmd(flags *accountsFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List signed-in accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := flags.manager()
			if err != nil {
				return err
			}

			accounts := mgr.Accounts()
			if len(accounts) == 0 {
				fmt.Println("No accounts are signed in. Run 'graphbridge accounts login' to add one.")
				return nil
			}

			for i, identity := range accounts {
				marker := ""
				if i == 0 {
					marker = " (default)"
				}
				fmt.Printf("%s%s\n", identity.Label, marker)
			}
			return nil
		},
	}
}

func newAccountsLoginCmd(flags *accountsFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in a Microsoft account with the device-code flow",
		Long: `Start a device-code login: a code and a verification URL are printed,
and the command waits until you finish signing in from a browser (on
any device) or the code expires.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := flags.manager()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			flow, err := mgr.StartLogin(ctx)
			if err != nil {
				return fmt.Errorf("failed to start login: %w", err)
			}

			fmt.Printf("To sign in, open %s and enter the code:\n\n", flow.VerificationURI)
			fmt.Printf("    %s\n\n", flow.UserCode)
			fmt.Printf("The code expires at %s. Waiting for you to finish...\n",
				flow.ExpiresAt.Local().Format(time.Kitchen))

			identity, err := mgr.CompleteLogin(ctx, flow.Handle)
			switch {
			case errors.Is(err, msauth.ErrFlowExpired):
				return fmt.Errorf("the code expired before sign-in completed; run login again")
			case errors.Is(err, msauth.ErrFlowDenied):
				return fmt.Errorf("sign-in was declined")
			case errors.Is(err, context.Canceled):
				return fmt.Errorf("login canceled")
			case err != nil:
				return fmt.Errorf("login failed: %w", err)
			}

			fmt.Printf("Signed in as %s\n", identity.Label)
			return nil
		},
	}
}

func newAccountsRemoveCmd(flags *accountsFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <account>",
		Short: "Remove a signed-in account and its cached tokens",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := flags.manager()
			if err != nil {
				return err
			}

			accountID, err := mgr.Resolve(args[0])
			if err != nil {
				return err
			}
			if err := mgr.Remove(accountID); err != nil {
				return fmt.Errorf("failed to remove account: %w", err)
			}

			fmt.Printf("Removed account %s\n", args[0])
			return nil
		},
	}
}
