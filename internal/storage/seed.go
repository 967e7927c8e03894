package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const maxConcurrentSeedFiles = 5

// SeedResult reports what happened to one mock data file.
type SeedResult struct {
	Table    string
	Inserted int
	Skipped  string
	Err      error
}

// SeedMockData loads every <table>.json in dir into its table, provided the
// table exists and is still empty. A missing dir is not an error.
func SeedMockData(ctx context.Context, conn *Connection, dir string) ([]SeedResult, error) {
	log := logrus.WithField("component", "db.seed")

	if dir == "" {
		return nil, nil
	}
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			log.Infof("mock data directory %s not found, skipping", dir)
			return nil, nil
		}
		return nil, errors.Wrap(err, "reading mock data directory")
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, errors.Wrap(err, "listing mock data files")
	}
	sort.Strings(files)

	results := make([]SeedResult, len(files))

	var g errgroup.Group
	g.SetLimit(maxConcurrentSeedFiles)

	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			res := seedFile(ctx, conn, file)
			results[i] = res

			entry := log.WithField("table", res.Table)
			switch {
			case res.Err != nil:
				entry.WithError(res.Err).Errorf("unable to load %s", filepath.Base(file))
			case res.Skipped != "":
				entry.Debugf("skipped: %s", res.Skipped)
			default:
				entry.WithField("rows", res.Inserted).Info("mock data loaded")
			}
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

func seedFile(ctx context.Context, conn *Connection, path string) SeedResult {
	table := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	res := SeedResult{Table: table}

	if !ValidIdentifier(table) {
		res.Err = fmt.Errorf("invalid table name %q", table)
		return res
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path comes from the configured mock data directory
	if err != nil {
		res.Err = err
		return res
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		res.Err = errors.Wrap(err, "decoding json")
		return res
	}

	live, err := liveColumns(ctx, conn, table)
	if err != nil {
		res.Err = err
		return res
	}
	if len(live) == 0 {
		res.Skipped = "table does not exist"
		return res
	}

	var count int
	if err := conn.WithContext(ctx).Store.Get(&count, "SELECT COUNT(*) FROM "+quoteIdentifier(table)); err != nil {
		res.Err = errors.Wrap(err, "counting rows")
		return res
	}
	if count > 0 {
		res.Skipped = "table is not empty"
		return res
	}

	records, err := prepareRecords(raw, live)
	if err != nil {
		res.Err = err
		return res
	}
	if len(records) == 0 {
		res.Skipped = "no matching records"
		return res
	}

	res.Err = conn.WithContext(ctx).Transaction(func(tx *Connection) error {
		for _, record := range records {
			query, args := insertStatement(table, record)
			if _, err := tx.Store.Exec(query, args...); err != nil {
				return errors.Wrap(err, "inserting record")
			}
			res.Inserted++
		}
		return nil
	})
	if res.Err != nil {
		res.Inserted = 0
	}

	return res
}

// prepareRecords keeps the keys of each object that match a live column.
// Nested objects and arrays are stored as JSON text.
func prepareRecords(raw interface{}, live map[string]string) ([]map[string]interface{}, error) {
	var items []interface{}
	switch v := raw.(type) {
	case map[string]interface{}:
		items = []interface{}{v}
	case []interface{}:
		items = v
	default:
		return nil, nil
	}

	var records []map[string]interface{}
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}

		record := make(map[string]interface{})
		for key, value := range obj {
			if _, ok := live[key]; !ok {
				continue
			}
			coerced, err := coerceValue(value)
			if err != nil {
				return nil, errors.Wrapf(err, "column %s", key)
			}
			record[key] = coerced
		}
		if len(record) > 0 {
			records = append(records, record)
		}
	}

	return records, nil
}

func coerceValue(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		return v.Float64()
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		return v, nil
	}
}

func insertStatement(table string, record map[string]interface{}) (string, []interface{}) {
	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cols := make([]string, len(keys))
	placeholders := make([]string, len(keys))
	args := make([]interface{}, len(keys))
	for i, k := range keys {
		cols[i] = quoteIdentifier(k)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = record[k]
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdentifier(table), strings.Join(cols, ", "), strings.Join(placeholders, ", ")), args
}
