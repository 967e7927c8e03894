package storage_provider

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gopkg.in/h2non/gock.v1"

	"github.com/funcsea/appbackend/internal/conf"
	"github.com/funcsea/appbackend/internal/utilities"
)

const ossTestURL = "https://oss.example.com"

type OSSProviderTestSuite struct {
	suite.Suite
	provider StorageProvider
}

func TestOSSProvider(t *testing.T) {
	suite.Run(t, &OSSProviderTestSuite{})
}

func (ts *OSSProviderTestSuite) SetupTest() {
	var err error
	ts.provider, err = NewOSSProvider(conf.OSSConfiguration{
		ServiceURL: ossTestURL + "/",
		APIKey:     "oss-key",
	}, utilities.NewHTTPClient(5*time.Second))
	require.NoError(ts.T(), err)
}

func (ts *OSSProviderTestSuite) TearDownTest() {
	assert.True(ts.T(), gock.IsDone(), "pending mocks")
	gock.OffAll()
}

func (ts *OSSProviderTestSuite) TestListBuckets() {
	gock.New(ossTestURL).
		Get("/api/v1/infra/client/oss/buckets").
		MatchHeader("Authorization", "Bearer oss-key").
		Reply(200).
		JSON(map[string]interface{}{
			"code": 0,
			"data": map[string]interface{}{
				"buckets": []map[string]string{
					{"bucket_name": "photos", "visibility": "public"},
					{"bucket_name": "docs", "visibility": "private"},
				},
			},
		})

	buckets, err := ts.provider.ListBuckets(context.Background())
	require.NoError(ts.T(), err)
	require.Len(ts.T(), buckets, 2)
	assert.Equal(ts.T(), Bucket{BucketName: "docs", Visibility: "private"}, buckets[1])
}

func (ts *OSSProviderTestSuite) TestListObjects() {
	gock.New(ossTestURL).
		Get("/api/v1/infra/client/oss/buckets/photos/objects").
		Reply(200).
		JSON(map[string]interface{}{
			"code": 0,
			"data": map[string]interface{}{
				"objects": []map[string]interface{}{
					{"key": "a.png", "size": 10, "last_modified": "2025-01-01T00:00:00Z", "etag": "abc"},
				},
			},
		})

	objects, err := ts.provider.ListObjects(context.Background(), "photos")
	require.NoError(ts.T(), err)
	require.Len(ts.T(), objects, 1)
	assert.Equal(ts.T(), Object{
		BucketName:   "photos",
		ObjectKey:    "a.png",
		Size:         10,
		LastModified: "2025-01-01T00:00:00Z",
		ETag:         "abc",
	}, objects[0])
}

func (ts *OSSProviderTestSuite) TestGetObjectInfo() {
	gock.New(ossTestURL).
		Get("/api/v1/infra/client/oss/buckets/photos/objects/metadata").
		MatchParam("object_key", "a.png").
		Reply(200).
		JSON(map[string]interface{}{
			"code": 0,
			"data": map[string]interface{}{"key": "a.png", "size": 10, "etag": "abc"},
		})

	info, err := ts.provider.GetObjectInfo(context.Background(), "photos", "a.png")
	require.NoError(ts.T(), err)
	assert.True(ts.T(), info.Exists)
	assert.Equal(ts.T(), int64(10), info.Size)
}

func (ts *OSSProviderTestSuite) TestRenameAndDelete() {
	gock.New(ossTestURL).
		Post("/api/v1/infra/client/oss/buckets/photos/objects/rename").
		MatchType("json").
		JSON(map[string]interface{}{"overwrite_key": true, "source_key": "a.png", "target_key": "b.png"}).
		Reply(200).
		JSON(map[string]interface{}{"code": 0})

	gock.New(ossTestURL).
		Delete("/api/v1/infra/client/oss/buckets/photos/objects").
		MatchType("json").
		JSON(map[string]interface{}{"object_keys": []string{"b.png"}}).
		Reply(200).
		JSON(map[string]interface{}{"code": 0})

	require.NoError(ts.T(), ts.provider.RenameObject(context.Background(), "photos", "a.png", "b.png", true))
	require.NoError(ts.T(), ts.provider.DeleteObject(context.Background(), "photos", "b.png"))
}

func (ts *OSSProviderTestSuite) TestPresignedURLs() {
	gock.New(ossTestURL).
		Post("/api/v1/infra/client/oss/buckets/photos/objects/upload_url").
		Reply(200).
		JSON(map[string]interface{}{
			"code": 0,
			"data": map[string]string{"upload_url": "https://put.example.com", "expires_at": "2025-01-01T01:00:00Z"},
		})

	gock.New(ossTestURL).
		Post("/api/v1/infra/client/oss/buckets/photos/objects/download_url").
		MatchType("json").
		JSON(map[string]interface{}{"content_type": "image/png", "expires_in": 0, "object_key": "a.png"}).
		Reply(200).
		JSON(map[string]interface{}{
			"code": 0,
			"data": map[string]string{"download_url": "https://get.example.com", "expires_at": "2025-01-01T01:00:00Z"},
		})

	up, err := ts.provider.UploadURL(context.Background(), "photos", "a.png")
	require.NoError(ts.T(), err)
	assert.Equal(ts.T(), "https://put.example.com", up.URL)

	down, err := ts.provider.DownloadURL(context.Background(), "photos", "a.png")
	require.NoError(ts.T(), err)
	assert.Equal(ts.T(), "https://get.example.com", down.URL)
	assert.Equal(ts.T(), "2025-01-01T01:00:00Z", down.ExpiresAt)
}

func (ts *OSSProviderTestSuite) TestServiceErrors() {
	gock.New(ossTestURL).
		Get("/api/v1/infra/client/oss/buckets").
		Reply(200).
		JSON(map[string]interface{}{"code": 1001, "error": "quota", "message": "bucket limit reached"})

	_, err := ts.provider.ListBuckets(context.Background())
	require.Error(ts.T(), err)
	assert.Contains(ts.T(), err.Error(), "ObjectStorage service error: quota. bucket limit reached")
	assert.False(ts.T(), IsValidationError(err))

	gock.New(ossTestURL).
		Get("/api/v1/infra/client/oss/buckets").
		Reply(http.StatusBadGateway).
		BodyString("upstream down")

	_, err = ts.provider.ListBuckets(context.Background())
	require.Error(ts.T(), err)
	assert.Contains(ts.T(), err.Error(), "502 - upstream down")
}

func TestOSSNotConfigured(t *testing.T) {
	_, err := GetStorageProvider(conf.StorageConfiguration{Provider: "oss"}, http.DefaultClient)
	require.ErrorIs(t, err, ErrNotConfigured)

	_, err = GetStorageProvider(conf.StorageConfiguration{Provider: "ftp"}, http.DefaultClient)
	require.Error(t, err)
}
