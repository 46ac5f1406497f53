// Command adminutil holds operator chores run against the postgres store.
//
//	adminutil migrate
//	adminutil audit-wallets
//	adminutil grant-role --mobile 9800000000 --role admin
//	adminutil token --user u1 --roles provider,seeker
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/sudo-init-do/workerlly/internal/config"
	"github.com/sudo-init-do/workerlly/internal/db"
	"github.com/sudo-init-do/workerlly/internal/fees"
	"github.com/sudo-init-do/workerlly/internal/logger"
	mware "github.com/sudo-init-do/workerlly/internal/middleware"
	"github.com/sudo-init-do/workerlly/internal/store/pgstore"
	"github.com/sudo-init-do/workerlly/internal/wallet"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "adminutil",
		Short:        "Workerlly operator tools",
		SilenceUsage: true,
	}
	root.AddCommand(migrateCommand(), auditCommand(), grantRoleCommand(), tokenCommand())
	return root
}

func connect(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger.Init(cfg.Env)
	if cfg.StoreDriver != "postgres" {
		return nil, nil, errors.New("adminutil works on the postgres store only")
	}
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, pool, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := db.EnsureSchema(cmd.Context(), pool); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}

func auditCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "audit-wallets",
		Short: "Recompute every wallet from its transactions and report mismatches",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, pool, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()
			ledger := wallet.NewLedger(pgstore.New(pool), fees.NewCalculator(cfg.PlatformFeePct, cfg.GSTPct), nil)
			bad, err := ledger.AuditAll(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range bad {
				fmt.Fprintf(out, "%s\tcached=%s\tcomputed=%s\tentries=%d\n", r.UserID, r.Cached, r.Computed, r.Entries)
			}
			if len(bad) > 0 {
				return fmt.Errorf("%d wallets out of balance", len(bad))
			}
			fmt.Fprintln(out, "all wallets consistent")
			return nil
		},
	}
}

func grantRoleCommand() *cobra.Command {
	var mobile, role string
	cmd := &cobra.Command{
		Use:   "grant-role",
		Short: "Add a role to the user with the given mobile number",
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch role {
			case "admin", "provider", "seeker":
			default:
				return fmt.Errorf("unknown role %q", role)
			}
			_, pool, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()
			ok, err := pgstore.New(pool).GrantRole(cmd.Context(), mobile, role)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no user found with mobile: %s", mobile)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %s now has role %s\n", mobile, role)
			return nil
		},
	}
	cmd.Flags().StringVar(&mobile, "mobile", "", "mobile number of the user")
	cmd.Flags().StringVar(&role, "role", "admin", "role to grant: admin, provider or seeker")
	_ = cmd.MarkFlagRequired("mobile")
	return cmd
}

// tokenCommand signs a token with the configured secret, for local testing against a
// server that shares it.
func tokenCommand() *cobra.Command {
	var (
		user   string
		mobile string
		roles  []string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign an access token for local testing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			tok, err := mware.Sign(cfg.JWTSecret, mware.Claims{UserID: user, Mobile: mobile, Roles: roles}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id")
	cmd.Flags().StringVar(&mobile, "mobile", "", "mobile number")
	cmd.Flags().StringSliceVar(&roles, "roles", []string{"seeker"}, "comma separated roles")
	cmd.Flags().DurationVar(&ttl, "ttl", 72*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
