package cmd

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/funcsea/appbackend/internal/conf"
	"github.com/funcsea/appbackend/internal/models"
	"github.com/funcsea/appbackend/internal/storage"
)

var seedDir string

var seedCmd = cobra.Command{
	Use:  "seed",
	Long: "Load <table>.json files from the mock data directory into empty tables",
	Run: func(cmd *cobra.Command, args []string) {
		execWithConfig(cmd, seed)
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedDir, "dir", "", "mock data directory, defaults to MOCK_DATA_DIR")
}

func seed(ctx context.Context, config *conf.GlobalConfiguration) {
	dir := seedDir
	if dir == "" {
		dir = config.DB.MockDataDir
	}

	db := storage.NewManager(config, models.All()...)
	defer db.Close()

	conn, err := db.Connection(ctx)
	if err != nil {
		logrus.Fatalf("Error opening database: %+v", err)
	}

	results, err := storage.SeedMockData(ctx, conn, dir)
	if err != nil {
		logrus.Fatalf("Error loading mock data: %+v", err)
	}

	inserted, failed := 0, 0
	for _, res := range results {
		inserted += res.Inserted
		if res.Err != nil {
			failed++
		}
	}

	entry := logrus.WithFields(logrus.Fields{
		"files":  len(results),
		"rows":   inserted,
		"failed": failed,
	})
	if failed > 0 {
		entry.Fatal("mock data loaded with errors")
	}
	entry.Info("mock data loaded")
}
