package api

import (
	"net/http"

	"github.com/pkg/errors"

	"github.com/funcsea/appbackend/internal/api/apierrors"
	"github.com/funcsea/appbackend/internal/api/storage_provider"
)

type CreateBucketParams struct {
	BucketName string `json:"bucket_name"`
	Visibility string `json:"visibility"`
}

type RenameObjectParams struct {
	BucketName   string `json:"bucket_name"`
	SourceKey    string `json:"source_key"`
	TargetKey    string `json:"target_key"`
	OverwriteKey *bool  `json:"overwrite_key"`
}

// overwrite defaults to true when overwrite_key is omitted.
func (p *RenameObjectParams) overwrite() bool {
	return p.OverwriteKey == nil || *p.OverwriteKey
}

type ObjectParams struct {
	BucketName string `json:"bucket_name"`
	ObjectKey  string `json:"object_key"`
}

type ListBucketsResponse struct {
	Buckets []storage_provider.Bucket `json:"buckets"`
}

type ListObjectsResponse struct {
	Objects []storage_provider.Object `json:"objects"`
}

type StorageSuccessResponse struct {
	Success bool `json:"success"`
}

type UploadURLResponse struct {
	UploadURL string `json:"upload_url"`
	ExpiresAt string `json:"expires_at"`
}

type DownloadURLResponse struct {
	DownloadURL string `json:"download_url"`
	ExpiresAt   string `json:"expires_at"`
}

func (a *API) storageProvider() (storage_provider.StorageProvider, error) {
	if a.providerOpts.Storage != nil {
		return a.providerOpts.Storage, nil
	}

	p, err := storage_provider.GetStorageProvider(a.config.Storage, a.httpClient)
	if err != nil {
		if errors.Is(err, storage_provider.ErrNotConfigured) {
			return nil, serviceUnavailableError(apierrors.ErrorCodeStorageDisabled, "Storage service not configured")
		}
		return nil, internalServerError("Storage service error: %s", err.Error()).WithInternalError(err)
	}
	return p, nil
}

// storageError maps a provider failure to the API error returned to the
// caller.
func storageError(err error) error {
	if storage_provider.IsValidationError(err) {
		return badRequestError(apierrors.ErrorCodeValidationFailed, "%s", err.Error())
	}
	if errors.Is(err, storage_provider.ErrNotConfigured) {
		return serviceUnavailableError(apierrors.ErrorCodeStorageDisabled, "Storage service not configured")
	}
	return internalServerError("Storage service error: %s", err.Error()).WithInternalError(err)
}

// normalizeTransferParams is used by upload-url and download-url only: the
// key is reduced to a safe base name there. Every other route addresses
// objects by their exact key.
func normalizeTransferParams(params *ObjectParams) (string, string, error) {
	bucketName, err := storage_provider.NormalizeBucketName(params.BucketName)
	if err != nil {
		return "", "", storageError(err)
	}
	objectKey, err := storage_provider.NormalizeObjectKey(params.ObjectKey)
	if err != nil {
		return "", "", storageError(err)
	}
	return bucketName, objectKey, nil
}

// StorageCreateBucket creates a bucket. Admin only.
func (a *API) StorageCreateBucket(w http.ResponseWriter, r *http.Request) error {
	params := &CreateBucketParams{}
	if err := retrieveRequestParams(r, params); err != nil {
		return err
	}

	bucketName, err := storage_provider.NormalizeBucketName(params.BucketName)
	if err != nil {
		return storageError(err)
	}
	visibility, err := storage_provider.NormalizeVisibility(params.Visibility)
	if err != nil {
		return storageError(err)
	}

	p, err := a.storageProvider()
	if err != nil {
		return err
	}

	bucket, err := p.CreateBucket(r.Context(), bucketName, visibility)
	if err != nil {
		return storageError(err)
	}
	return sendJSON(w, http.StatusOK, bucket)
}

func (a *API) StorageListBuckets(w http.ResponseWriter, r *http.Request) error {
	p, err := a.storageProvider()
	if err != nil {
		return err
	}

	buckets, err := p.ListBuckets(r.Context())
	if err != nil {
		return storageError(err)
	}
	if buckets == nil {
		buckets = []storage_provider.Bucket{}
	}
	return sendJSON(w, http.StatusOK, ListBucketsResponse{Buckets: buckets})
}

func (a *API) StorageListObjects(w http.ResponseWriter, r *http.Request) error {
	bucketName, err := storage_provider.NormalizeBucketName(r.URL.Query().Get("bucket_name"))
	if err != nil {
		return storageError(err)
	}

	p, err := a.storageProvider()
	if err != nil {
		return err
	}

	objects, err := p.ListObjects(r.Context(), bucketName)
	if err != nil {
		return storageError(err)
	}
	if objects == nil {
		objects = []storage_provider.Object{}
	}
	return sendJSON(w, http.StatusOK, ListObjectsResponse{Objects: objects})
}

func (a *API) StorageGetObjectInfo(w http.ResponseWriter, r *http.Request) error {
	query := r.URL.Query()
	bucketName, err := storage_provider.NormalizeBucketName(query.Get("bucket_name"))
	if err != nil {
		return storageError(err)
	}
	objectKey := query.Get("object_key")

	p, err := a.storageProvider()
	if err != nil {
		return err
	}

	info, err := p.GetObjectInfo(r.Context(), bucketName, objectKey)
	if err != nil {
		return storageError(err)
	}
	return sendJSON(w, http.StatusOK, info)
}

// StorageRenameObject moves source_key to target_key inside one bucket.
func (a *API) StorageRenameObject(w http.ResponseWriter, r *http.Request) error {
	params := &RenameObjectParams{}
	if err := retrieveRequestParams(r, params); err != nil {
		return err
	}

	bucketName, err := storage_provider.NormalizeBucketName(params.BucketName)
	if err != nil {
		return storageError(err)
	}

	p, err := a.storageProvider()
	if err != nil {
		return err
	}

	if err := p.RenameObject(r.Context(), bucketName, params.SourceKey, params.TargetKey, params.overwrite()); err != nil {
		return storageError(err)
	}
	return sendJSON(w, http.StatusOK, StorageSuccessResponse{Success: true})
}

// StorageDeleteObject removes the object named by the exact object_key.
func (a *API) StorageDeleteObject(w http.ResponseWriter, r *http.Request) error {
	params := &ObjectParams{}
	if err := retrieveRequestParams(r, params); err != nil {
		return err
	}

	bucketName, err := storage_provider.NormalizeBucketName(params.BucketName)
	if err != nil {
		return storageError(err)
	}

	p, err := a.storageProvider()
	if err != nil {
		return err
	}

	if err := p.DeleteObject(r.Context(), bucketName, params.ObjectKey); err != nil {
		return storageError(err)
	}
	return sendJSON(w, http.StatusOK, StorageSuccessResponse{Success: true})
}

func (a *API) StorageUploadURL(w http.ResponseWriter, r *http.Request) error {
	params := &ObjectParams{}
	if err := retrieveRequestParams(r, params); err != nil {
		return err
	}

	bucketName, objectKey, err := normalizeTransferParams(params)
	if err != nil {
		return err
	}

	p, err := a.storageProvider()
	if err != nil {
		return err
	}

	u, err := p.UploadURL(r.Context(), bucketName, objectKey)
	if err != nil {
		return storageError(err)
	}
	return sendJSON(w, http.StatusOK, UploadURLResponse{UploadURL: u.URL, ExpiresAt: u.ExpiresAt})
}

func (a *API) StorageDownloadURL(w http.ResponseWriter, r *http.Request) error {
	params := &ObjectParams{}
	if err := retrieveRequestParams(r, params); err != nil {
		return err
	}

	bucketName, objectKey, err := normalizeTransferParams(params)
	if err != nil {
		return err
	}

	p, err := a.storageProvider()
	if err != nil {
		return err
	}

	u, err := p.DownloadURL(r.Context(), bucketName, objectKey)
	if err != nil {
		return storageError(err)
	}
	return sendJSON(w, http.StatusOK, DownloadURLResponse{DownloadURL: u.URL, ExpiresAt: u.ExpiresAt})
}
