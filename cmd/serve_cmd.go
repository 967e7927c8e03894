package cmd

import (
	"context"
	"net"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/funcsea/appbackend/internal/api"
	"github.com/funcsea/appbackend/internal/conf"
	"github.com/funcsea/appbackend/internal/models"
	"github.com/funcsea/appbackend/internal/observability"
	"github.com/funcsea/appbackend/internal/storage"
	"github.com/funcsea/appbackend/internal/utilities"
)

var serveCmd = cobra.Command{
	Use:  "serve",
	Long: "Start API server",
	Run: func(cmd *cobra.Command, args []string) {
		serve(cmd.Context())
	},
}

func serve(ctx context.Context) {
	config := loadGlobalConfig(ctx)

	if err := utilities.InitVersionMetrics(ctx); err != nil {
		logrus.WithError(err).Warn("unable to record version metrics")
	}

	db := storage.NewManager(config, models.All()...)
	defer func() {
		if err := db.Close(); err != nil {
			logrus.WithError(err).Error("error closing database")
		}
	}()

	if err := bootstrap(ctx, config, db); err != nil {
		// the API still serves the routes that do not need the database
		logrus.WithError(err).Error("startup tasks failed, the database will be retried on first use")
	}

	a := api.NewAPIWithVersion(ctx, config, db, utilities.Version)

	addr := net.JoinHostPort(config.API.Host, config.API.Port)
	logrus.Infof("API started on: %s", addr)

	if err := a.ListenAndServe(ctx, addr); err != nil {
		logrus.WithError(err).Fatal("http server listen failed")
	}

	api.WaitForCleanup(context.Background())
	observability.WaitForCleanup(context.Background())
}

// bootstrap runs the one-time startup tasks: connect and create tables, load
// mock data, then make sure the configured admin exists.
func bootstrap(ctx context.Context, config *conf.GlobalConfiguration, db *storage.Manager) error {
	if !db.Configured() {
		logrus.Warn("DATABASE_URL is not set, database features are disabled")
		return nil
	}

	conn, err := db.Connection(ctx)
	if err != nil {
		return err
	}

	if _, err := storage.SeedMockData(ctx, conn, config.DB.MockDataDir); err != nil {
		logrus.WithError(err).Error("unable to load mock data")
	}

	admin, err := models.EnsureAdminUser(conn.WithContext(ctx), config.Admin.UserID, config.Admin.Email)
	if err != nil {
		return errors.Wrap(err, "ensuring admin user")
	}
	if admin != nil {
		logrus.WithField("user_id", admin.ID).Info("admin user ready")
	}

	return nil
}
