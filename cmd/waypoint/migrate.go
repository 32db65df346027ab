package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/xraph/waypoint/internal/logging"
)

func newMigrateCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the store schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			logger := logging.New("migrate")

			st, closeStore, err := openStore(cmd.Context(), cfg.Store, logger)
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()

			if err := st.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate %s store: %w", cfg.Store.Driver, err)
			}
			logger.Info("migrations applied", slog.String("store", cfg.Store.Driver))
			return nil
		},
	}
}
