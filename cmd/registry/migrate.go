package main

import (
	"github.com/spf13/cobra"
)

func newMigrateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the registry database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			logger, flush, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer flush()

			c := &components{cfg: cfg, logger: logger}
			defer c.Close(cmd.Context())

			if err := c.connectPostgres(cmd.Context()); err != nil {
				return err
			}
			if err := c.migrate(); err != nil {
				return err
			}
			logger.Info("Migrations applied")
			return nil
		},
	}
}
