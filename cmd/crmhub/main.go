// @title                       crmhub API
// @version                     1.0
// @description                 Multi-tenant CRM: contacts, deals, quotes, tasks, meetings, campaigns and reports.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"crmhub/internal/app"
	"crmhub/internal/config"
	"crmhub/internal/logger"
)

var Version = "dev"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "crmhub",
		Short:         "crmhub - multi-tenant CRM API",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $CRMHUB_CONFIG or config/config.yaml)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply all pending migrations, or roll back the last one",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			direction := "up"
			if len(args) == 1 {
				direction = args[0]
			}
			cfg, log, err := setup(configPath)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck
			return app.Migrate(cfg, log, direction)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(path string) (*config.Config, *zap.Logger, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.New(cfg.Log), nil
}

func serve(path string) error {
	cfg, log, err := setup(path)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg, log); err != nil {
		log.Error("[app] stopped with error", zap.Error(err))
		return err
	}
	log.Info("[app] stopped")
	return nil
}
