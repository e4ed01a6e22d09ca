package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"library_circulation/app"
	"library_circulation/circulation"
	"library_circulation/db"
	"library_circulation/routes"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// rootOptions holds global flags for all commands.
type rootOptions struct {
	Store string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "circulation",
		Short:         "Library circulation service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			app.LoadEnv()
		},
	}
	cmd.PersistentFlags().StringVar(&opts.Store, "store", "", "storage backend (postgres|memory); overrides STORE")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newSweepCommand(opts))
	cmd.AddCommand(newReconcileCommand(opts))
	return cmd
}

func loadConfig(opts *rootOptions) (app.Config, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return cfg, err
	}
	if opts.Store != "" {
		cfg.Store = opts.Store
	}
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	var noSweeps bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the background sweeps",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			routes.RegisterRoutes(a.Router, a)

			if !noSweeps {
				go app.RunSweeps(ctx, a.Service, cfg.SweepEvery, a.Log)
			}

			srv := &http.Server{Addr: ":" + cfg.Port, Handler: a.Router, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdown)
			}()
			a.Log.Info("listening", slog.String("addr", srv.Addr), slog.String("store", cfg.Store))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noSweeps, "no-sweeps", false, "do not run periodic sweeps in this process")
	return cmd
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the Postgres schema",
		RunE: func(*cobra.Command, []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			app.NewLogger(cfg.LogLevel)
			conn, err := db.ConnectDB(cfg.DB)
			if err != nil {
				return err
			}
			if err := db.Migrate(conn); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			slog.Info("schema up to date")
			return nil
		},
	}
}

func newSweepCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "sweep <overdue|pickups|availability|all>",
		Short:     "Run one periodic circulation job now",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"overdue", "pickups", "availability", "all"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()
			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			var reports []circulation.SweepReport
			run := func(job func(context.Context) (circulation.SweepReport, error)) error {
				rep, err := job(ctx)
				if err != nil {
					return err
				}
				reports = append(reports, rep)
				return nil
			}
			switch args[0] {
			case "overdue":
				err = run(a.Service.MarkOverdue)
			case "pickups":
				err = run(a.Service.ExpirePickups)
			case "availability":
				err = run(a.Service.FulfillWaiting)
			case "all":
				reports = app.SweepOnce(ctx, a.Service, a.Log)
			default:
				return fmt.Errorf("unknown job %q", args[0])
			}
			if err != nil {
				return err
			}
			return printJSON(cmd, reports)
		},
	}
}

func newReconcileCommand(opts *rootOptions) *cobra.Command {
	var fix bool
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute member balances and loan counts from the ledger",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()
			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			drifts, err := a.Service.Reconcile(ctx, fix)
			if err != nil {
				return err
			}
			if drifts == nil {
				drifts = []circulation.Drift{}
			}
			return printJSON(cmd, drifts)
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "rewrite drifted counters")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
