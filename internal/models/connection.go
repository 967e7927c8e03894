package models

import (
	"github.com/gobuffalo/pop/v6"

	"github.com/funcsea/appbackend/internal/storage"
)

// All returns a zero value of every persisted model, in table creation
// order. Schema repair checks these tables.
func All() []interface{} {
	return []interface{}{
		&User{},
		&OIDCState{},
	}
}

// TruncateAll deletes all data from the database. Not intended for use
// outside of tests.
func TruncateAll(conn *storage.Connection) error {
	return conn.Transaction(func(tx *storage.Connection) error {
		for _, model := range All() {
			tableName := (&pop.Model{Value: model}).TableName()
			if err := tx.RawQuery("DELETE FROM " + tableName).Exec(); err != nil {
				return err
			}
		}

		return nil
	})
}
