package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/funcsea/appbackend/internal/conf"
	"github.com/funcsea/appbackend/internal/storage"
)

type OIDCStateTestSuite struct {
	suite.Suite
	db     *storage.Connection
	config *conf.GlobalConfiguration
}

func (ts *OIDCStateTestSuite) SetupTest() {
	require.NoError(ts.T(), TruncateAll(ts.db))
}

func TestOIDCState(t *testing.T) {
	config, conn := setupModelsDB(t)

	ts := &OIDCStateTestSuite{
		db:     conn,
		config: config,
	}
	defer ts.db.Close()

	suite.Run(t, ts)
}

func (ts *OIDCStateTestSuite) TestConsumeOnce() {
	_, err := StoreOIDCState(ts.db, "state-1", "nonce-1", "verifier-1", time.Minute)
	require.NoError(ts.T(), err)

	obj, err := ConsumeOIDCState(ts.db, "state-1")
	require.NoError(ts.T(), err)
	assert.Equal(ts.T(), "nonce-1", obj.Nonce)
	assert.Equal(ts.T(), "verifier-1", obj.CodeVerifier)

	_, err = ConsumeOIDCState(ts.db, "state-1")
	require.Error(ts.T(), err)
	assert.True(ts.T(), IsNotFoundError(err))
}

func (ts *OIDCStateTestSuite) TestExpiredStateRejected() {
	obj, err := NewOIDCState("state-old", "n", "v", time.Minute)
	require.NoError(ts.T(), err)
	obj.ExpiresAt = time.Now().UTC().Add(-time.Second)
	require.NoError(ts.T(), ts.db.Create(obj))

	_, err = ConsumeOIDCState(ts.db, "state-old")
	require.Error(ts.T(), err)
	assert.True(ts.T(), IsNotFoundError(err))
}

func (ts *OIDCStateTestSuite) TestStoreSweepsExpired() {
	obj, err := NewOIDCState("state-stale", "n", "v", time.Minute)
	require.NoError(ts.T(), err)
	obj.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	require.NoError(ts.T(), ts.db.Create(obj))

	_, err = StoreOIDCState(ts.db, "state-fresh", "n", "v", time.Minute)
	require.NoError(ts.T(), err)

	count, err := ts.db.Q().Where("state = ?", "state-stale").Count(&OIDCState{})
	require.NoError(ts.T(), err)
	assert.Equal(ts.T(), 0, count)
}

func (ts *OIDCStateTestSuite) TestCleanup() {
	obj, err := NewOIDCState("state-clean", "n", "v", time.Minute)
	require.NoError(ts.T(), err)
	obj.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	require.NoError(ts.T(), ts.db.Create(obj))

	cleanup := NewCleanup(ts.config)
	total := 0
	for range cleanup.cleanupStatements {
		n, err := cleanup.Clean(ts.db)
		require.NoError(ts.T(), err)
		total += n
	}
	assert.Equal(ts.T(), 1, total)
}

func TestConsumeEmptyState(t *testing.T) {
	_, err := ConsumeOIDCState(nil, "")
	assert.True(t, IsNotFoundError(err))
}

func TestOIDCStateExpiry(t *testing.T) {
	obj, err := NewOIDCState("s", "n", "v", 0)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(DefaultOIDCStateTTL), obj.ExpiresAt, 5*time.Second)
	assert.False(t, obj.IsExpired(time.Now()))
	assert.True(t, obj.IsExpired(obj.ExpiresAt))
}
