package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sudo-init-do/circle/internal/alerts"
	"github.com/sudo-init-do/circle/internal/app"
	"github.com/sudo-init-do/circle/internal/auth"
	"github.com/sudo-init-do/circle/internal/config"
	"github.com/sudo-init-do/circle/internal/logging"
	"github.com/sudo-init-do/circle/internal/lots"
	"github.com/sudo-init-do/circle/internal/storage"
)

type cli struct {
	cfg    config.Config
	logger *zap.Logger
	store  storage.Store
}

func newRootCmd() (*cobra.Command, *cli) {
	c := &cli{}
	root := &cobra.Command{
		Use:           "adminutil",
		Short:         "Administration tasks for circle",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.LogLevel, cfg.LogDev)
			if err != nil {
				return err
			}
			store, err := app.OpenStore(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			c.cfg, c.logger, c.store = cfg, logger, store
			return nil
		},
	}
	root.AddCommand(
		c.issueTokenCmd(),
		c.pendingLotsCmd(),
		c.moderateCmd(),
		c.accessTokenCmd(),
		c.migrateCmd(),
	)
	return root, c
}

// close releases what PersistentPreRunE opened. It runs even when a command
// fails.
func (c *cli) close() {
	if c.store != nil {
		_ = c.store.Close()
	}
	if c.logger != nil {
		_ = c.logger.Sync()
	}
}

func (c *cli) issueTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "issue-token",
		Short: "Create a single-use invite token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := c.store.CreateToken(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}

func (c *cli) pendingLotsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending-lots",
		Short: "List lots waiting for moderation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := c.store.ListListings(cmd.Context(), storage.ListingFilter{Status: storage.ListingPending})
			if err != nil {
				return err
			}
			for _, l := range list {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\t%s\t%s\n", l.ID, l.OwnerID, l.Direction, l.Title)
			}
			return nil
		},
	}
}

// notifier queues owner notifications for the running server when the queue
// is configured. Direct mode has no channel in this process.
func (c *cli) notifier() (alerts.Notifier, func()) {
	if c.cfg.NotifyMode != "queue" {
		return alerts.NewDiscard(c.logger), func() {}
	}
	client := asynq.NewClient(asynq.RedisClientOpt{Addr: c.cfg.RedisAddr})
	return alerts.NewQueue(client, c.logger), func() { _ = client.Close() }
}

func (c *cli) moderateCmd() *cobra.Command {
	var as int64
	cmd := &cobra.Command{
		Use:       "moderate <lot-id> approve|reject",
		Short:     "Approve or reject a pending lot",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"approve", "reject"},
		RunE: func(cmd *cobra.Command, args []string) error {
			decision := map[string]storage.ListingStatus{
				"approve": storage.ListingApproved,
				"reject":  storage.ListingRejected,
			}[args[1]]
			if decision == "" {
				return fmt.Errorf("decision must be approve or reject, got %q", args[1])
			}
			if as == 0 && len(c.cfg.AdminIDs) > 0 {
				as = c.cfg.AdminIDs[0]
			}

			notify, done := c.notifier()
			defer done()
			svc := lots.NewService(c.store, notify, c.cfg.AdminIDs, c.logger)
			l, err := svc.Moderate(cmd.Context(), as, args[0], decision)
			if errors.Is(err, lots.ErrNotAdmin) {
				return fmt.Errorf("participant %d is not in ADMIN_IDS", as)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", l.ID, l.Status)
			return nil
		},
	}
	cmd.Flags().Int64Var(&as, "as", 0, "administrator id (defaults to the first ADMIN_IDS entry)")
	return cmd
}

func (c *cli) accessTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "access-token <participant-id>",
		Short: "Sign an API access token for a participant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("participant id: %w", err)
			}
			issuer, err := auth.NewIssuer(c.cfg.JWTSecret, c.cfg.TokenTTL)
			if err != nil {
				return err
			}
			token, err := issuer.Issue(id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema changes and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Opening the store already applied migrations.
			c.logger.Info("schema up to date", zap.String("driver", c.cfg.DBDriver))
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}
