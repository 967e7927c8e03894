package cmd

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/funcsea/appbackend/internal/api"
	"github.com/funcsea/appbackend/internal/conf"
	"github.com/funcsea/appbackend/internal/lambda"
	"github.com/funcsea/appbackend/internal/models"
	"github.com/funcsea/appbackend/internal/storage"
	"github.com/funcsea/appbackend/internal/utilities"
)

var lambdaCmd = cobra.Command{
	Use:  "lambda",
	Long: "Serve AWS Lambda invocations, routing API calls to the API and everything else to the static frontend",
	Run: func(cmd *cobra.Command, args []string) {
		execWithConfig(cmd, serveLambda)
	},
}

func serveLambda(ctx context.Context, config *conf.GlobalConfiguration) {
	config.Lambda.Enabled = true
	// ApplyDefaults already ran, shrink the pool for the sandbox here too
	config.DB.MaxPoolSize = 1
	config.DB.MaxIdlePoolSize = 0

	db := storage.NewManager(config, models.All()...)
	defer db.Close()

	a := api.NewAPIWithVersion(ctx, config, db, utilities.Version)

	h := lambda.New(config, a.Handler(), func(ctx context.Context) error {
		return bootstrap(ctx, config, db)
	})

	logrus.WithFields(logrus.Fields{
		"function":   config.Lambda.FunctionName,
		"static_dir": config.Lambda.StaticDir,
	}).Info("Lambda handler started")

	h.Start(ctx)
}
