package utilities

import (
	"io"

	"github.com/sirupsen/logrus"
)

// maxDrainBytes bounds how much of an unread upstream body is discarded so
// the keep-alive connection can go back to the pool.
const maxDrainBytes = 64 << 10

// SafeClose closes c and logs a failure instead of returning it.
func SafeClose(c io.Closer) {
	if err := c.Close(); err != nil {
		logrus.WithError(err).Warn("close failed")
	}
}

// DrainAndClose discards what is left of an upstream response body, up to
// maxDrainBytes, then closes it.
func DrainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	if _, err := io.CopyN(io.Discard, body, maxDrainBytes); err != nil && err != io.EOF {
		logrus.WithError(err).Debug("draining upstream body")
	}
	SafeClose(body)
}
