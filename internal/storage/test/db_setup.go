package test

import (
	"testing"

	"github.com/funcsea/appbackend/internal/conf"
	"github.com/funcsea/appbackend/internal/storage"
)

// SetupDBConnection connects to the test database and creates the tables.
func SetupDBConnection(globalConfig *conf.GlobalConfiguration) (*storage.Connection, error) {
	conn, err := storage.Dial(globalConfig)
	if err != nil {
		return nil, err
	}
	if _, err := storage.Migrate(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// SetupDBConnectionOrSkip skips t when no test database is reachable.
func SetupDBConnectionOrSkip(t testing.TB, globalConfig *conf.GlobalConfiguration) *storage.Connection {
	t.Helper()

	conn, err := SetupDBConnection(globalConfig)
	if err != nil {
		t.Skipf("test database unavailable: %v", err)
	}
	return conn
}
