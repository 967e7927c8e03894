package models

import (
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/funcsea/appbackend/internal/conf"
	"github.com/funcsea/appbackend/internal/observability"
	"github.com/funcsea/appbackend/internal/storage"
)

type Cleanup struct {
	cleanupStatements []string

	// cleanupNext holds an atomically incrementing value that determines which of
	// the cleanupStatements will be run next.
	cleanupNext uint32

	// cleanupAffectedRows counts the rows removed by cleanup runs.
	cleanupAffectedRows metric.Int64Counter
}

func NewCleanup(config *conf.GlobalConfiguration) *Cleanup {
	tableStates := OIDCState{}.TableName()

	c := &Cleanup{}

	// SKIP LOCKED leaves rows alone that a callback is consuming right now.
	c.cleanupStatements = append(c.cleanupStatements,
		fmt.Sprintf("delete from %q where id in (select id from %q where expires_at < now() limit 100 for update skip locked);", tableStates, tableStates),
	)

	if ttl := config.OIDC.StateTTL; ttl > 0 {
		// rows written with a longer TTL before a config change
		c.cleanupStatements = append(c.cleanupStatements,
			fmt.Sprintf("delete from %q where id in (select id from %q where created_at < now() - interval '%d seconds' limit 100 for update skip locked);", tableStates, tableStates, int(ttl.Seconds())),
		)
	}

	cleanupAffectedRows, err := observability.Meter("appbackend").Int64Counter(
		"appbackend_cleanup_affected_rows",
		metric.WithDescription("Number of affected rows from cleaning up stale entities"),
	)
	if err != nil {
		logrus.WithError(err).Error("unable to get appbackend_cleanup_affected_rows counter metric")
	}

	c.cleanupAffectedRows = cleanupAffectedRows

	return c
}

// Clean removes a small batch of expired login states. It is cheap enough to
// call after every mutating request and never waits on locked rows.
func (c *Cleanup) Clean(db *storage.Connection) (int, error) {
	ctx, span := observability.Tracer("appbackend").Start(db.Context(), "database-cleanup")
	defer span.End()

	affectedRows := 0
	defer func() {
		span.SetAttributes(attribute.Int64("appbackend.cleanup.affected_rows", int64(affectedRows)))
	}()

	if err := db.WithContext(ctx).Transaction(func(tx *storage.Connection) error {
		nextIndex := atomic.AddUint32(&c.cleanupNext, 1) % uint32(len(c.cleanupStatements))
		statement := c.cleanupStatements[nextIndex]

		count, terr := tx.RawQuery(statement).ExecWithCount()
		if terr != nil {
			return terr
		}

		affectedRows += count

		return nil
	}); err != nil {
		return affectedRows, err
	}

	if c.cleanupAffectedRows != nil {
		c.cleanupAffectedRows.Add(ctx, int64(affectedRows))
	}

	return affectedRows, nil
}
