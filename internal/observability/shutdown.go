package observability

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/funcsea/appbackend/internal/utilities"
)

const exporterShutdownTimeout = 5 * time.Second

var cleanupWaitGroup sync.WaitGroup

// WaitForCleanup blocks until every exporter started here has flushed, or
// until ctx is done.
func WaitForCleanup(ctx context.Context) {
	utilities.WaitForCleanup(ctx, &cleanupWaitGroup)
}

// onShutdown runs stop once ctx is done and tracks it in cleanupWaitGroup.
func onShutdown(ctx context.Context, what string, stop func(context.Context) error) {
	cleanupWaitGroup.Add(1)
	go func() {
		defer cleanupWaitGroup.Done()
		<-ctx.Done()

		stopCtx, cancel := context.WithTimeout(context.Background(), exporterShutdownTimeout)
		defer cancel()

		if err := stop(stopCtx); err != nil {
			logrus.WithError(err).WithField("component", what).Error("shutdown failed")
			return
		}
		logrus.WithField("component", what).Info("shut down")
	}()
}
