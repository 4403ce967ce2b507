package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"hud-backend/pkg/docstore"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	var printOnly bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the documents table and batch function in PostgreSQL",
		Long: "Applies the document schema to POSTGRES_DSN. The same schema backs the\n" +
			"Supabase store; use --print to paste it into the Supabase SQL editor.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if printOnly {
				_, err := fmt.Fprint(cmd.OutOrStdout(), docstore.Schema)
				return err
			}
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.PostgresDSN == "" {
				return fmt.Errorf("POSTGRES_DSN is required for migrate")
			}

			store, err := docstore.NewPostgresStore(cfg.PostgresDSN)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Migrate(cmd.Context()); err != nil {
				return err
			}
			logrus.Info("document schema applied")
			return nil
		},
	}
	cmd.Flags().BoolVar(&printOnly, "print", false, "print the schema SQL instead of applying it")
	return cmd
}
