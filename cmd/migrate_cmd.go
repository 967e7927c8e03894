package cmd

import (
	"context"
	"time"

	"github.com/gobuffalo/pop/v6"
	"github.com/gobuffalo/pop/v6/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/funcsea/appbackend/internal/conf"
	"github.com/funcsea/appbackend/internal/models"
	"github.com/funcsea/appbackend/internal/storage"
)

var migrateCmd = cobra.Command{
	Use:  "migrate",
	Long: "Migrate database structures. This will create the application tables and, with DB_SCHEMA_REPAIR, add missing columns.",
	Run: func(cmd *cobra.Command, args []string) {
		execWithConfig(cmd, migrate)
	},
}

func migrate(ctx context.Context, config *conf.GlobalConfiguration) {
	log := logrus.StandardLogger()

	if log.Level != logrus.DebugLevel {
		// Hide pop migration logging
		pop.SetLogger(func(lvl logging.Level, s string, args ...interface{}) {})
	}

	if !config.DB.Configured() {
		log.Fatal(storage.ErrDatabaseNotConfigured)
	}

	started := time.Now()

	conn, err := storage.DialContext(ctx, config)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	defer conn.Close()

	count, err := storage.Migrate(conn.WithContext(ctx))
	if err != nil {
		log.Fatalf("%+v", err)
	}

	if config.DB.SchemaRepair {
		storage.RepairSchema(ctx, conn, models.All()...)
	}

	log.WithFields(logrus.Fields{
		"count":    count,
		"duration": time.Since(started).String(),
	}).Info("migrations applied successfully")
}
