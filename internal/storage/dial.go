package storage

import (
	"context"
	"database/sql"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/gobuffalo/pop/v6"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/funcsea/appbackend/internal/conf"
)

// ErrDatabaseNotConfigured is returned when no DATABASE_URL is set.
var ErrDatabaseNotConfigured = errors.New("DATABASE_URL environment variable is required")

// Connection is the interface a storage provider must implement.
type Connection struct {
	*pop.Connection

	sqldb *sql.DB
}

// NormalizeURL rewrites driver-qualified Postgres URLs, such as
// postgresql+asyncpg://, into the postgres:// form pgx understands.
// Query parameters like sslmode are kept.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrDatabaseNotConfigured
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.Wrap(err, "parsing db connection url")
	}

	scheme := u.Scheme
	if i := strings.IndexByte(scheme, '+'); i >= 0 {
		scheme = scheme[:i]
	}

	switch scheme {
	case "postgres", "postgresql":
		u.Scheme = "postgres"
	default:
		return "", errors.Errorf("unsupported database scheme %q, only PostgreSQL is supported", u.Scheme)
	}

	return u.String(), nil
}

func newConnectionDetails(config *conf.GlobalConfiguration) (*pop.ConnectionDetails, error) {
	dbURL, err := NormalizeURL(config.DB.URL)
	if err != nil {
		return nil, err
	}
	config.DB.Driver = "postgres"

	// pop uses pgx as the default PostgreSQL driver
	driver := "pgx"

	if config.Tracing.Enabled || config.Metrics.Enabled {
		instrumentedDriver, err := otelsql.Register(driver)
		if err != nil {
			logrus.WithError(err).Errorf("unable to instrument sql driver %q for use with OpenTelemetry", driver)
		} else {
			logrus.Debugf("using %s as an instrumented driver for OpenTelemetry", instrumentedDriver)

			// sqlx needs to be informed that the new instrumented
			// driver has the same semantics as the
			// non-instrumented driver
			sqlx.BindDriver(instrumentedDriver, sqlx.BindType(driver))

			driver = instrumentedDriver
		}
	}

	options := map[string]string{
		"migration_table_name": migrationTableName,
	}

	if config.DB.HealthCheckPeriod != time.Duration(0) {
		options["pool_health_check_period"] = config.DB.HealthCheckPeriod.String()
	}

	if config.DB.ConnMaxIdleTime != time.Duration(0) {
		options["pool_max_conn_idle_time"] = config.DB.ConnMaxIdleTime.String()
	}

	return &pop.ConnectionDetails{
		Dialect:         config.DB.Driver,
		Driver:          driver,
		URL:             dbURL,
		Pool:            config.DB.MaxPoolSize,
		IdlePool:        config.DB.MaxIdlePoolSize,
		ConnMaxLifetime: config.DB.ConnMaxLifetime,
		ConnMaxIdleTime: config.DB.ConnMaxIdleTime,
		Options:         options,
	}, nil
}

// Dial will connect to that storage engine
func Dial(config *conf.GlobalConfiguration) (*Connection, error) {
	return DialContext(context.Background(), config)
}

// DialContext opens the pool and verifies it with a ping.
func DialContext(ctx context.Context, config *conf.GlobalConfiguration) (*Connection, error) {
	cd, err := newConnectionDetails(config)
	if err != nil {
		return nil, err
	}

	db, err := pop.NewConnection(cd)
	if err != nil {
		return nil, errors.Wrap(err, "opening database connection")
	}
	if err := db.Open(); err != nil {
		return nil, errors.Wrap(err, "checking database connection")
	}

	sqldb, ok := popConnToStd(db)
	if !ok {
		return nil, errors.New("unable to access the underlying database handle")
	}

	conn := &Connection{Connection: db, sqldb: sqldb}
	if err := conn.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "checking database connection")
	}

	if config.Metrics.Enabled {
		registerOpenTelemetryDatabaseStats(sqldb)
	}

	return conn, nil
}

// Ping runs SELECT 1 against the pool.
func (c *Connection) Ping(ctx context.Context) error {
	if c.sqldb == nil {
		return c.WithContext(ctx).RawQuery("SELECT 1").Exec()
	}
	_, err := c.sqldb.ExecContext(ctx, "SELECT 1")
	return err
}

// Stats returns pool statistics, zero for transactions.
func (c *Connection) Stats() sql.DBStats {
	if c.sqldb == nil {
		return sql.DBStats{}
	}
	return c.sqldb.Stats()
}

// popConnToStd digs the *sql.DB out of a pop connection. Connections
// derived with WithContext or inside a transaction are not supported.
func popConnToStd(db *pop.Connection) (sqldb *sql.DB, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			sqldb, ok = nil, false
		}
	}()

	dbval := reflect.Indirect(reflect.ValueOf(db.Store))
	dbfield := dbval.Field(0)
	sqldbfield := reflect.Indirect(dbfield).Field(0)

	sqldb, ok = sqldbfield.Interface().(*sql.DB)
	return sqldb, ok && sqldb != nil
}

func registerOpenTelemetryDatabaseStats(sqldb *sql.DB) {
	if err := otelsql.RegisterDBStatsMetrics(sqldb); err != nil {
		logrus.WithError(err).Error("unable to register OpenTelemetry stats metrics for database")
	} else {
		logrus.Debug("registered OpenTelemetry stats metrics for database")
	}
}

type CommitWithError struct {
	Err error
}

func (e *CommitWithError) Error() string {
	return e.Err.Error()
}

func (e *CommitWithError) Cause() error {
	return e.Err
}

// NewCommitWithError creates an error that can be returned in a pop transaction
// without rolling back the transaction. This should only be used in cases where
// you want the transaction to commit but return an error message to the user.
func NewCommitWithError(err error) *CommitWithError {
	return &CommitWithError{Err: err}
}

func (c *Connection) Transaction(fn func(*Connection) error) error {
	if c.TX == nil {
		var returnErr, fnErr error
		terr := c.Connection.Transaction(func(tx *pop.Connection) error {
			err := fn(&Connection{Connection: tx})
			switch err.(type) {
			case *CommitWithError:
				returnErr = err
				return nil
			default:
				fnErr = err
				return err
			}
		})
		return transactionResult(terr, fnErr, returnErr)
	}
	return fn(c)
}

// transactionResult picks the error a finished transaction reports. A
// transaction whose context expired may already be committed, in which case
// rollback reports ErrTxDone. That is only ignored when fn itself succeeded.
func transactionResult(terr, fnErr, returnErr error) error {
	if terr != nil {
		if !errors.Is(terr, sql.ErrTxDone) {
			return terr
		}
		if fnErr != nil {
			return fnErr
		}
	}
	return returnErr
}

// WithContext returns a new connection with an updated context. This is
// typically used for tracing as the context contains trace span information.
func (c *Connection) WithContext(ctx context.Context) *Connection {
	return &Connection{Connection: c.Connection.WithContext(ctx), sqldb: c.sqldb}
}
