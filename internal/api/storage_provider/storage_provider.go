package storage_provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/funcsea/appbackend/internal/conf"
)

const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

// ErrNotConfigured is returned when the selected backend lacks credentials.
var ErrNotConfigured = errors.New("Storage service not configured")

// ValidationError is a problem with the caller's input. Its message is safe
// to return to the client.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationError(fmtString string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(fmtString, args...)}
}

// IsValidationError reports whether err was caused by caller input.
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

type Bucket struct {
	BucketName string `json:"bucket_name"`
	Visibility string `json:"visibility"`
	CreatedAt  string `json:"created_at,omitempty"`
}

type Object struct {
	BucketName   string `json:"bucket_name"`
	ObjectKey    string `json:"object_key"`
	Size         int64  `json:"size"`
	LastModified string `json:"last_modified"`
	ETag         string `json:"etag"`
}

// ObjectInfo is Object plus whether the object was found.
type ObjectInfo struct {
	Object
	Exists bool `json:"exists"`
}

// PresignedURL is a time limited URL for a direct upload or download.
type PresignedURL struct {
	URL       string
	ExpiresAt string
}

// StorageProvider is an object storage backend.
type StorageProvider interface {
	CreateBucket(ctx context.Context, bucketName, visibility string) (*Bucket, error)
	ListBuckets(ctx context.Context) ([]Bucket, error)
	ListObjects(ctx context.Context, bucketName string) ([]Object, error)
	GetObjectInfo(ctx context.Context, bucketName, objectKey string) (*ObjectInfo, error)
	RenameObject(ctx context.Context, bucketName, sourceKey, targetKey string, overwrite bool) error
	DeleteObject(ctx context.Context, bucketName, objectKey string) error
	UploadURL(ctx context.Context, bucketName, objectKey string) (*PresignedURL, error)
	DownloadURL(ctx context.Context, bucketName, objectKey string) (*PresignedURL, error)
}

// GetStorageProvider returns the backend selected by STORAGE_PROVIDER.
func GetStorageProvider(config conf.StorageConfiguration, client *http.Client) (StorageProvider, error) {
	switch name := config.Provider; name {
	case "", "oss":
		return NewOSSProvider(config.OSS, client)
	case "s3":
		return NewS3Provider(config.S3, config.URLExpiry)
	case "minio":
		return NewMinIOProvider(config.MinIO, config.URLExpiry)
	default:
		return nil, fmt.Errorf("storage provider %s could not be found", name)
	}
}

func expiresAt(ttl time.Duration) string {
	return time.Now().UTC().Add(ttl).Format(time.RFC3339)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func defaultExpiry(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return time.Hour
	}
	return ttl
}
