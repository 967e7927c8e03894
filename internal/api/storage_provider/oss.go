package storage_provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/pkg/errors"

	"github.com/funcsea/appbackend/internal/conf"
	"github.com/funcsea/appbackend/internal/utilities"
)

const ossBucketsPath = "/api/v1/infra/client/oss/buckets"

// OSSProvider proxies the hosted object storage HTTP API.
type OSSProvider struct {
	Config *conf.OSSConfiguration
	client *http.Client
}

type ossEnvelope struct {
	Code    int             `json:"code"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

type ossObject struct {
	Key          string `json:"key"`
	Size         int64  `json:"size"`
	LastModified string `json:"last_modified"`
	ETag         string `json:"etag"`
}

// NewOSSProvider creates a StorageProvider backed by the OSS service.
func NewOSSProvider(config conf.OSSConfiguration, client *http.Client) (StorageProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(ErrNotConfigured, err.Error())
	}
	config.ServiceURL = strings.TrimRight(config.ServiceURL, "/")
	return &OSSProvider{
		Config: &config,
		client: client,
	}, nil
}

func (p *OSSProvider) bucketPath(bucketName string, parts ...string) string {
	return path.Join(append([]string{ossBucketsPath, url.PathEscape(bucketName)}, parts...)...)
}

func (p *OSSProvider) do(ctx context.Context, method, endpoint string, query url.Values, payload interface{}, dst interface{}) error {
	u := p.Config.ServiceURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.Config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := p.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "ObjectStorage service request failed")
	}
	defer utilities.DrainAndClose(res.Body)

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return errors.Wrap(err, "ObjectStorage service response could not be read")
	}

	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("ObjectStorage service HTTP error: %d - %s", res.StatusCode, string(raw))
	}

	var envelope ossEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return errors.Wrap(err, "ObjectStorage service returned invalid JSON")
	}
	if envelope.Code != 0 {
		errMsg := envelope.Error
		if errMsg == "" {
			errMsg = "Unknown error"
		}
		return fmt.Errorf("ObjectStorage service error: %s. %s", errMsg, envelope.Message)
	}

	if dst == nil || len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil
	}
	return json.Unmarshal(envelope.Data, dst)
}

func (p *OSSProvider) CreateBucket(ctx context.Context, bucketName, visibility string) (*Bucket, error) {
	var res Bucket
	if err := p.do(ctx, http.MethodPost, ossBucketsPath, nil, map[string]string{
		"bucket_name": bucketName,
		"visibility":  visibility,
	}, &res); err != nil {
		return nil, err
	}
	if res.BucketName == "" {
		res.BucketName = bucketName
	}
	res.Visibility = visibility
	return &res, nil
}

func (p *OSSProvider) ListBuckets(ctx context.Context) ([]Bucket, error) {
	var res struct {
		Buckets []Bucket `json:"buckets"`
	}
	if err := p.do(ctx, http.MethodGet, ossBucketsPath, nil, nil, &res); err != nil {
		return nil, err
	}
	buckets := make([]Bucket, 0, len(res.Buckets))
	for _, b := range res.Buckets {
		buckets = append(buckets, Bucket{BucketName: b.BucketName, Visibility: b.Visibility})
	}
	return buckets, nil
}

func (p *OSSProvider) ListObjects(ctx context.Context, bucketName string) ([]Object, error) {
	var res struct {
		Objects []ossObject `json:"objects"`
	}
	if err := p.do(ctx, http.MethodGet, p.bucketPath(bucketName, "objects"), nil, nil, &res); err != nil {
		return nil, err
	}
	objects := make([]Object, 0, len(res.Objects))
	for _, o := range res.Objects {
		objects = append(objects, Object{
			BucketName:   bucketName,
			ObjectKey:    o.Key,
			Size:         o.Size,
			LastModified: o.LastModified,
			ETag:         o.ETag,
		})
	}
	return objects, nil
}

func (p *OSSProvider) GetObjectInfo(ctx context.Context, bucketName, objectKey string) (*ObjectInfo, error) {
	var res ossObject
	query := url.Values{"object_key": []string{objectKey}}
	if err := p.do(ctx, http.MethodGet, p.bucketPath(bucketName, "objects", "metadata"), query, nil, &res); err != nil {
		return nil, err
	}
	return &ObjectInfo{
		Object: Object{
			BucketName:   bucketName,
			ObjectKey:    res.Key,
			Size:         res.Size,
			LastModified: res.LastModified,
			ETag:         res.ETag,
		},
		Exists: res.Key != "",
	}, nil
}

func (p *OSSProvider) RenameObject(ctx context.Context, bucketName, sourceKey, targetKey string, overwrite bool) error {
	return p.do(ctx, http.MethodPost, p.bucketPath(bucketName, "objects", "rename"), nil, map[string]interface{}{
		"overwrite_key": overwrite,
		"source_key":    sourceKey,
		"target_key":    targetKey,
	}, nil)
}

func (p *OSSProvider) DeleteObject(ctx context.Context, bucketName, objectKey string) error {
	return p.do(ctx, http.MethodDelete, p.bucketPath(bucketName, "objects"), nil, map[string]interface{}{
		"object_keys": []string{objectKey},
	}, nil)
}

func (p *OSSProvider) UploadURL(ctx context.Context, bucketName, objectKey string) (*PresignedURL, error) {
	var res struct {
		UploadURL string `json:"upload_url"`
		ExpiresAt string `json:"expires_at"`
	}
	if err := p.do(ctx, http.MethodPost, p.bucketPath(bucketName, "objects", "upload_url"), nil, map[string]interface{}{
		"expires_in": 0,
		"object_key": objectKey,
	}, &res); err != nil {
		return nil, err
	}
	return &PresignedURL{URL: res.UploadURL, ExpiresAt: res.ExpiresAt}, nil
}

func (p *OSSProvider) DownloadURL(ctx context.Context, bucketName, objectKey string) (*PresignedURL, error) {
	var res struct {
		DownloadURL string `json:"download_url"`
		ExpiresAt   string `json:"expires_at"`
	}
	if err := p.do(ctx, http.MethodPost, p.bucketPath(bucketName, "objects", "download_url"), nil, map[string]interface{}{
		"content_type": ContentTypeForKey(objectKey),
		"expires_in":   0,
		"object_key":   objectKey,
	}, &res); err != nil {
		return nil, err
	}
	return &PresignedURL{URL: res.DownloadURL, ExpiresAt: res.ExpiresAt}, nil
}

// ContentTypeForKey guesses a MIME type from the key's extension.
func ContentTypeForKey(objectKey string) string {
	if ct := mime.TypeByExtension(path.Ext(objectKey)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
