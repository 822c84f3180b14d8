package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/routine-tracker/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database tables if they do not exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		if err := database.Migrate(cmd.Context(), db, cfg.DBDriver); err != nil {
			return err
		}
		logger.Info("schema up to date", zap.String("driver", cfg.DBDriver))
		return nil
	},
}
