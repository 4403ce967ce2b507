package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"hud-backend/pkg/auth"
	"hud-backend/pkg/config"
	"hud-backend/pkg/dashboard"
	"hud-backend/pkg/docstore"
	"hud-backend/pkg/gateway"
	"hud-backend/pkg/models"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		logrus.WithError(err).Error("hud command failed")
		os.Exit(1)
	}
}

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	envDir string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "hud",
		Short:         "Personal dashboard backend: tabs, widgets and accounts",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&opts.envDir, "env-dir", ".", "directory holding .env.local / .env.production")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newMigrateCmd(opts))
	root.AddCommand(newUsersCmd(opts))
	root.AddCommand(newTabsCmd(opts))

	return root
}

// load reads the configuration and configures the standard logger from it.
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.LoadFrom(o.envDir)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	setupLogger(logrus.StandardLogger(), cfg)
	return cfg, nil
}

func setupLogger(logger *logrus.Logger, cfg *config.Config) {
	logger.SetOutput(os.Stderr)
	if cfg.IsProduction() {
		logger.Formatter = &logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "severity",
				logrus.FieldKeyMsg:   "message",
			},
			TimestampFormat: time.RFC3339Nano,
		}
	} else {
		logger.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	}
	logger.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logger.SetLevel(logrus.DebugLevel)
	}
}

// openStore opens the configured store directly; the CLI does not pool.
func (o *rootOptions) openStore() (*config.Config, docstore.Store, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, nil, err
	}
	store, err := docstore.NewStore(cfg.StoreConfig())
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}

// resolveUser accepts either an account email or an account id.
func resolveUser(ctx context.Context, accounts *auth.Service, who string) (models.User, error) {
	who = strings.TrimSpace(who)
	if strings.Contains(who, "@") {
		return accounts.LookupEmail(ctx, who)
	}
	return accounts.Lookup(ctx, who)
}

func newManager(store docstore.Store) *dashboard.Manager {
	return dashboard.NewManager(gateway.New(store))
}
