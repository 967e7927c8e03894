package cmd

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/funcsea/appbackend/internal/conf"
	"github.com/funcsea/appbackend/internal/models"
	"github.com/funcsea/appbackend/internal/storage"
)

var adminID, adminEmail string

func adminCmd() *cobra.Command {
	var adminCmd = &cobra.Command{
		Use:  "admin",
		Long: "Create or promote the admin user. Defaults to ADMIN_USER_ID and ADMIN_USER_EMAIL.",
		Run: func(cmd *cobra.Command, args []string) {
			execWithConfig(cmd, adminBootstrap)
		},
	}

	adminCmd.AddCommand(&adminSetRoleCmd)
	adminCmd.Flags().StringVar(&adminID, "id", "", "subject id of the admin user")
	adminCmd.Flags().StringVar(&adminEmail, "email", "", "email of the admin user")

	return adminCmd
}

var adminSetRoleCmd = cobra.Command{
	Use:  "setrole <user id> <user|admin>",
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		execWithConfig(cmd, func(ctx context.Context, config *conf.GlobalConfiguration) {
			adminSetRole(ctx, config, args[0], args[1])
		})
	},
}

func openAdminConnection(ctx context.Context, config *conf.GlobalConfiguration) (*storage.Manager, *storage.Connection) {
	db := storage.NewManager(config, models.All()...)

	conn, err := db.Connection(ctx)
	if err != nil {
		logrus.Fatalf("Error opening database: %+v", err)
	}
	return db, conn.WithContext(ctx)
}

func adminBootstrap(ctx context.Context, config *conf.GlobalConfiguration) {
	id, email := adminID, adminEmail
	if id == "" {
		id = config.Admin.UserID
	}
	if email == "" {
		email = config.Admin.Email
	}
	if id == "" {
		logrus.Fatal("No admin id given, pass --id or set ADMIN_USER_ID")
	}

	db, conn := openAdminConnection(ctx, config)
	defer db.Close()

	user, err := models.EnsureAdminUser(conn, id, email)
	if err != nil {
		logrus.Fatalf("Unable to create admin user (%s): %+v", id, err)
	}

	logrus.WithField("email", user.Email).Infof("Admin user ready: %s", user.ID)
}

func adminSetRole(ctx context.Context, config *conf.GlobalConfiguration, id, role string) {
	if role != models.RoleUser && role != models.RoleAdmin {
		logrus.Fatalf("Unknown role %q, expected %s or %s", role, models.RoleUser, models.RoleAdmin)
	}

	db, conn := openAdminConnection(ctx, config)
	defer db.Close()

	user, err := models.FindUserByID(conn, id)
	if err != nil {
		logrus.Fatalf("Error finding user (%s): %+v", id, err)
	}

	if err := user.SetRole(conn, role); err != nil {
		logrus.Fatalf("Unable to set role of user (%s): %+v", id, err)
	}

	logrus.Infof("User %s now has role %s", id, role)
}
