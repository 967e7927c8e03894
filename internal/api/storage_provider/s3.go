package storage_provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	pkgerrors "github.com/pkg/errors"

	"github.com/funcsea/appbackend/internal/conf"
)

// S3Provider talks to S3 or an S3 compatible endpoint.
type S3Provider struct {
	Config  *conf.S3Configuration
	Expiry  time.Duration
	client  *s3.Client
	presign *s3.PresignClient
}

// NewS3Provider creates a StorageProvider backed by aws-sdk-go-v2.
func NewS3Provider(config conf.S3Configuration, expiry time.Duration) (StorageProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, pkgerrors.Wrap(ErrNotConfigured, err.Error())
	}

	options := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(config.Region),
	}
	if config.AccessKeyID != "" {
		options = append(options, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), options...)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "error loading AWS configuration")
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if config.Endpoint != "" {
			o.BaseEndpoint = aws.String(config.Endpoint)
		}
		o.UsePathStyle = config.UsePathStyle
	})

	return &S3Provider{
		Config:  &config,
		Expiry:  defaultExpiry(expiry),
		client:  client,
		presign: s3.NewPresignClient(client),
	}, nil
}

func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket", "NoSuchBucketPolicy":
			return true
		}
	}
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	return errors.As(err, &notFound) || errors.As(err, &noSuchKey)
}

func (p *S3Provider) CreateBucket(ctx context.Context, bucketName, visibility string) (*Bucket, error) {
	input := &s3.CreateBucketInput{Bucket: aws.String(bucketName)}
	if p.Config.Region != "" && p.Config.Region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(p.Config.Region),
		}
	}
	if _, err := p.client.CreateBucket(ctx, input); err != nil {
		return nil, pkgerrors.Wrap(err, "error creating bucket")
	}

	if visibility == VisibilityPublic {
		if _, err := p.client.PutBucketPolicy(ctx, &s3.PutBucketPolicyInput{
			Bucket: aws.String(bucketName),
			Policy: aws.String(publicReadPolicy(bucketName)),
		}); err != nil {
			return nil, pkgerrors.Wrap(err, "error setting bucket policy")
		}
	}

	return &Bucket{
		BucketName: bucketName,
		Visibility: visibility,
		CreatedAt:  formatTime(time.Now()),
	}, nil
}

func (p *S3Provider) visibility(ctx context.Context, bucketName string) string {
	out, err := p.client.GetBucketPolicy(ctx, &s3.GetBucketPolicyInput{Bucket: aws.String(bucketName)})
	if err != nil || out.Policy == nil {
		return VisibilityPrivate
	}
	return policyVisibility(*out.Policy)
}

func (p *S3Provider) ListBuckets(ctx context.Context) ([]Bucket, error) {
	out, err := p.client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "error listing buckets")
	}

	buckets := make([]Bucket, 0, len(out.Buckets))
	for _, b := range out.Buckets {
		name := aws.ToString(b.Name)
		buckets = append(buckets, Bucket{
			BucketName: name,
			Visibility: p.visibility(ctx, name),
			CreatedAt:  formatTime(aws.ToTime(b.CreationDate)),
		})
	}
	return buckets, nil
}

func (p *S3Provider) ListObjects(ctx context.Context, bucketName string) ([]Object, error) {
	objects := []Object{}
	paginator := s3.NewListObjectsV2Paginator(p.client, &s3.ListObjectsV2Input{Bucket: aws.String(bucketName)})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "error listing objects")
		}
		for _, o := range page.Contents {
			objects = append(objects, Object{
				BucketName:   bucketName,
				ObjectKey:    aws.ToString(o.Key),
				Size:         aws.ToInt64(o.Size),
				LastModified: formatTime(aws.ToTime(o.LastModified)),
				ETag:         strings.Trim(aws.ToString(o.ETag), `"`),
			})
		}
	}
	return objects, nil
}

func (p *S3Provider) GetObjectInfo(ctx context.Context, bucketName, objectKey string) (*ObjectInfo, error) {
	out, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		if isS3NotFound(err) {
			return &ObjectInfo{Object: Object{BucketName: bucketName, ObjectKey: objectKey}}, nil
		}
		return nil, pkgerrors.Wrap(err, "error reading object metadata")
	}
	return &ObjectInfo{
		Object: Object{
			BucketName:   bucketName,
			ObjectKey:    objectKey,
			Size:         aws.ToInt64(out.ContentLength),
			LastModified: formatTime(aws.ToTime(out.LastModified)),
			ETag:         strings.Trim(aws.ToString(out.ETag), `"`),
		},
		Exists: true,
	}, nil
}

func (p *S3Provider) RenameObject(ctx context.Context, bucketName, sourceKey, targetKey string, overwrite bool) error {
	if !overwrite {
		info, err := p.GetObjectInfo(ctx, bucketName, targetKey)
		if err != nil {
			return err
		}
		if info.Exists {
			return validationError("target object %s already exists", targetKey)
		}
	}

	if _, err := p.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(bucketName),
		Key:        aws.String(targetKey),
		CopySource: aws.String(fmt.Sprintf("%s/%s", bucketName, sourceKey)),
	}); err != nil {
		return pkgerrors.Wrap(err, "error copying object")
	}
	return p.DeleteObject(ctx, bucketName, sourceKey)
}

func (p *S3Provider) DeleteObject(ctx context.Context, bucketName, objectKey string) error {
	if _, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(objectKey),
	}); err != nil {
		return pkgerrors.Wrap(err, "error deleting object")
	}
	return nil
}

func (p *S3Provider) UploadURL(ctx context.Context, bucketName, objectKey string) (*PresignedURL, error) {
	req, err := p.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(objectKey),
	}, s3.WithPresignExpires(p.Expiry))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "error presigning upload")
	}
	return &PresignedURL{URL: req.URL, ExpiresAt: expiresAt(p.Expiry)}, nil
}

func (p *S3Provider) DownloadURL(ctx context.Context, bucketName, objectKey string) (*PresignedURL, error) {
	req, err := p.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:              aws.String(bucketName),
		Key:                 aws.String(objectKey),
		ResponseContentType: aws.String(ContentTypeForKey(objectKey)),
	}, s3.WithPresignExpires(p.Expiry))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "error presigning download")
	}
	return &PresignedURL{URL: req.URL, ExpiresAt: expiresAt(p.Expiry)}, nil
}
