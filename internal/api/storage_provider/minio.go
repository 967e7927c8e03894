package storage_provider

import (
	"context"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"

	"github.com/funcsea/appbackend/internal/conf"
)

// MinIOProvider talks to a MinIO server.
type MinIOProvider struct {
	Config *conf.MinIOConfiguration
	Expiry time.Duration
	client *minio.Client
}

// NewMinIOProvider creates a StorageProvider backed by minio-go.
func NewMinIOProvider(config conf.MinIOConfiguration, expiry time.Duration) (StorageProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(ErrNotConfigured, err.Error())
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
		Region: config.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "error creating minio client")
	}

	return &MinIOProvider{
		Config: &config,
		Expiry: defaultExpiry(expiry),
		client: client,
	}, nil
}

func isMinIONotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound", "NoSuchBucketPolicy":
		return true
	}
	return false
}

func (p *MinIOProvider) CreateBucket(ctx context.Context, bucketName, visibility string) (*Bucket, error) {
	exists, err := p.client.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, errors.Wrap(err, "error checking bucket")
	}
	if !exists {
		if err := p.client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{Region: p.Config.Region}); err != nil {
			return nil, errors.Wrap(err, "error creating bucket")
		}
	}

	if visibility == VisibilityPublic {
		if err := p.client.SetBucketPolicy(ctx, bucketName, publicReadPolicy(bucketName)); err != nil {
			return nil, errors.Wrap(err, "error setting bucket policy")
		}
	}

	return &Bucket{
		BucketName: bucketName,
		Visibility: visibility,
		CreatedAt:  formatTime(time.Now()),
	}, nil
}

func (p *MinIOProvider) visibility(ctx context.Context, bucketName string) string {
	policy, err := p.client.GetBucketPolicy(ctx, bucketName)
	if err != nil || policy == "" {
		return VisibilityPrivate
	}
	return policyVisibility(policy)
}

func (p *MinIOProvider) ListBuckets(ctx context.Context) ([]Bucket, error) {
	infos, err := p.client.ListBuckets(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "error listing buckets")
	}

	buckets := make([]Bucket, 0, len(infos))
	for _, b := range infos {
		buckets = append(buckets, Bucket{
			BucketName: b.Name,
			Visibility: p.visibility(ctx, b.Name),
			CreatedAt:  formatTime(b.CreationDate),
		})
	}
	return buckets, nil
}

func (p *MinIOProvider) ListObjects(ctx context.Context, bucketName string) ([]Object, error) {
	objects := []Object{}
	for o := range p.client.ListObjects(ctx, bucketName, minio.ListObjectsOptions{Recursive: true}) {
		if o.Err != nil {
			return nil, errors.Wrap(o.Err, "error listing objects")
		}
		objects = append(objects, Object{
			BucketName:   bucketName,
			ObjectKey:    o.Key,
			Size:         o.Size,
			LastModified: formatTime(o.LastModified),
			ETag:         o.ETag,
		})
	}
	return objects, nil
}

func (p *MinIOProvider) GetObjectInfo(ctx context.Context, bucketName, objectKey string) (*ObjectInfo, error) {
	o, err := p.client.StatObject(ctx, bucketName, objectKey, minio.StatObjectOptions{})
	if err != nil {
		if isMinIONotFound(err) {
			return &ObjectInfo{Object: Object{BucketName: bucketName, ObjectKey: objectKey}}, nil
		}
		return nil, errors.Wrap(err, "error reading object metadata")
	}
	return &ObjectInfo{
		Object: Object{
			BucketName:   bucketName,
			ObjectKey:    o.Key,
			Size:         o.Size,
			LastModified: formatTime(o.LastModified),
			ETag:         o.ETag,
		},
		Exists: true,
	}, nil
}

func (p *MinIOProvider) RenameObject(ctx context.Context, bucketName, sourceKey, targetKey string, overwrite bool) error {
	if !overwrite {
		info, err := p.GetObjectInfo(ctx, bucketName, targetKey)
		if err != nil {
			return err
		}
		if info.Exists {
			return validationError("target object %s already exists", targetKey)
		}
	}

	if _, err := p.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: bucketName, Object: targetKey},
		minio.CopySrcOptions{Bucket: bucketName, Object: sourceKey},
	); err != nil {
		return errors.Wrap(err, "error copying object")
	}
	return p.DeleteObject(ctx, bucketName, sourceKey)
}

func (p *MinIOProvider) DeleteObject(ctx context.Context, bucketName, objectKey string) error {
	if err := p.client.RemoveObject(ctx, bucketName, objectKey, minio.RemoveObjectOptions{}); err != nil {
		return errors.Wrap(err, "error deleting object")
	}
	return nil
}

func (p *MinIOProvider) UploadURL(ctx context.Context, bucketName, objectKey string) (*PresignedURL, error) {
	u, err := p.client.PresignedPutObject(ctx, bucketName, objectKey, p.Expiry)
	if err != nil {
		return nil, errors.Wrap(err, "error presigning upload")
	}
	return &PresignedURL{URL: u.String(), ExpiresAt: expiresAt(p.Expiry)}, nil
}

func (p *MinIOProvider) DownloadURL(ctx context.Context, bucketName, objectKey string) (*PresignedURL, error) {
	params := url.Values{}
	params.Set("response-content-type", ContentTypeForKey(objectKey))
	u, err := p.client.PresignedGetObject(ctx, bucketName, objectKey, p.Expiry, params)
	if err != nil {
		return nil, errors.Wrap(err, "error presigning download")
	}
	return &PresignedURL{URL: u.String(), ExpiresAt: expiresAt(p.Expiry)}, nil
}
