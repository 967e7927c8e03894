package api

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/funcsea/appbackend/internal/utilities"
)

const shutdownTimeout = 30 * time.Second

var cleanupWaitGroup sync.WaitGroup

// WaitForCleanup blocks until every server started by ListenAndServe has
// shut down, or until ctx is done.
func WaitForCleanup(ctx context.Context) {
	utilities.WaitForCleanup(ctx, &cleanupWaitGroup)
}

// ListenAndServe serves the API on hostAndPort until ctx is cancelled, then
// gives in-flight requests, SSE streams included, shutdownTimeout to finish.
func (a *API) ListenAndServe(ctx context.Context, hostAndPort string) error {
	log := logrus.WithFields(logrus.Fields{"component": "api", "addr": hostAndPort})

	// requests keep running while the server drains
	reqCtx, cancelRequests := context.WithCancel(context.Background())
	defer cancelRequests()

	server := &http.Server{
		Addr:              hostAndPort,
		Handler:           a.handler,
		ReadHeaderTimeout: 2 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return reqCtx },
	}

	cleanupWaitGroup.Add(1)
	go func() {
		defer cleanupWaitGroup.Done()
		defer cancelRequests()
		<-ctx.Done()

		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		log.Info("api server draining")
		if err := server.Shutdown(drainCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("api server did not drain in time")
		}
	}()

	log.Info("api server listening")
	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return errors.Wrap(err, "api server")
}
