package storage

import (
	"github.com/gobuffalo/pop/v6"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/funcsea/appbackend/internal/storage/migrations"
)

const migrationTableName = "schema_migrations"

// Migrate creates the application tables. Every migration is written with
// IF NOT EXISTS, so running it against an initialized database is a no-op
// and instances racing on first start both succeed.
func Migrate(conn *Connection) (int, error) {
	box, err := pop.NewMigrationBox(migrations.FS, conn.Connection)
	if err != nil {
		return 0, errors.Wrap(err, "creating db migrator")
	}

	mig := box.Migrator

	// turn off schema dump
	mig.SchemaPath = ""

	count, err := mig.UpTo(0)
	if err != nil {
		if isDuplicateObject(err) {
			logrus.WithError(err).Info("tables created concurrently by another instance, ignored")
			return count, nil
		}
		return count, errors.Wrap(err, "running db migrations")
	}

	return count, nil
}

func isDuplicateObject(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case pgerrcode.DuplicateTable, pgerrcode.UniqueViolation, pgerrcode.DuplicateObject:
		return true
	}
	return false
}
