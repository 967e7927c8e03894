package storage

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"time"

	"github.com/gobuffalo/pop/v6"
	"github.com/gobuffalo/pop/v6/columns"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const maxConcurrentRepairs = 10

var identifierPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidIdentifier reports whether s is safe to quote as a table or column name.
func ValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

func quoteIdentifier(s string) string {
	return `"` + s + `"`
}

type declaredColumn struct {
	Name string
	Type string
}

var (
	timeType = reflect.TypeOf(time.Time{})
	uuidType = reflect.TypeOf(uuid.UUID{})
)

// declaredColumns lists the db-tagged fields of model with a Postgres type
// for each.
func declaredColumns(model interface{}) (string, []declaredColumn) {
	sm := &pop.Model{Value: model}
	table := sm.TableName()
	cols := columns.ForStruct(model, table, sm.IDField())

	var declared []declaredColumn
	var walk func(t reflect.Type)
	walk = func(t reflect.Type) {
		if t.Kind() == reflect.Ptr {
			t = t.Elem()
		}
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if f.Anonymous && f.Type.Kind() == reflect.Struct && f.Tag.Get("db") == "" {
				walk(f.Type)
				continue
			}
			name := f.Tag.Get("db")
			if name == "" || name == "-" {
				continue
			}
			if _, ok := cols.Cols[name]; !ok {
				continue
			}
			declared = append(declared, declaredColumn{Name: name, Type: postgresType(f.Type)})
		}
	}
	walk(reflect.TypeOf(model))

	return table, declared
}

func postgresType(t reflect.Type) string {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	switch t {
	case timeType:
		return "timestamptz"
	case uuidType:
		return "uuid"
	}

	switch t.Kind() {
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int64, reflect.Uint32, reflect.Uint64:
		return "bigint"
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Uint8, reflect.Uint16:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "double precision"
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return "bytea"
		}
		return "jsonb"
	case reflect.Map, reflect.Struct:
		return "jsonb"
	default:
		return "text"
	}
}

// liveColumns returns the column names and types of table in the current
// schema. An empty map means the table does not exist.
func liveColumns(ctx context.Context, conn *Connection, table string) (map[string]string, error) {
	var rows []struct {
		Name     string `db:"column_name"`
		DataType string `db:"data_type"`
	}
	if err := conn.WithContext(ctx).Store.Select(&rows,
		"SELECT column_name, data_type FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1",
		table); err != nil {
		return nil, errors.Wrapf(err, "reading columns of %s", table)
	}

	live := make(map[string]string, len(rows))
	for _, r := range rows {
		live[r.Name] = r.DataType
	}
	return live, nil
}

// RepairSchema adds columns that models declare but the live tables lack.
// It never drops or alters existing columns, and failures are only logged.
func RepairSchema(ctx context.Context, conn *Connection, models ...interface{}) {
	log := logrus.WithField("component", "db.repair")
	started := time.Now()

	var g errgroup.Group
	g.SetLimit(maxConcurrentRepairs)

	for _, model := range models {
		model := model
		g.Go(func() error {
			table, added, err := repairTable(ctx, conn, model)
			entry := log.WithField("table", table)
			if err != nil {
				entry.WithError(err).Error("schema repair failed")
				return nil
			}
			if len(added) > 0 {
				entry.WithField("columns", added).Info("added missing columns")
			}
			return nil
		})
	}
	_ = g.Wait()

	log.WithField("duration", time.Since(started).String()).Info("schema repair completed")
}

func repairTable(ctx context.Context, conn *Connection, model interface{}) (string, []string, error) {
	table, declared := declaredColumns(model)
	if !ValidIdentifier(table) {
		return table, nil, fmt.Errorf("invalid table name %q", table)
	}

	live, err := liveColumns(ctx, conn, table)
	if err != nil {
		return table, nil, err
	}
	if len(live) == 0 {
		// not created yet, nothing to repair
		return table, nil, nil
	}

	var added []string
	for _, col := range declared {
		if _, ok := live[col.Name]; ok {
			continue
		}
		if !ValidIdentifier(col.Name) {
			logrus.WithField("table", table).Warnf("skipping column with invalid name %q", col.Name)
			continue
		}

		// added columns are always nullable, existing rows have no value
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s",
			quoteIdentifier(table), quoteIdentifier(col.Name), col.Type)
		if _, err := conn.WithContext(ctx).Store.Exec(stmt); err != nil {
			return table, added, errors.Wrapf(err, "adding column %s", col.Name)
		}
		added = append(added, col.Name)
	}

	return table, added, nil
}
