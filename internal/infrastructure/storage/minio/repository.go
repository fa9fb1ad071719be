package minio

import (
	"bytes"
	"context"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/terminal-planner/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/terminal-planner/pkg/errors"
)

var (
	ErrObjectNotFound = errors.New(errors.ErrCodeNotFound, "object not found")
	ErrInvalidRequest = errors.New(errors.ErrCodeValidation, "invalid request")
)

// ObjectStorageRepository reads and writes objects in the report bucket.
type ObjectStorageRepository interface {
	Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error)
	Delete(ctx context.Context, objectKey string) error
	Exists(ctx context.Context, objectKey string) (bool, error)
	GetMetadata(ctx context.Context, objectKey string) (*ObjectMetadata, error)
	List(ctx context.Context, prefix string) ([]*ObjectMetadata, error)
	GetPresignedDownloadURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
}

type UploadRequest struct {
	ObjectKey   string
	Data        []byte
	ContentType string
	Metadata    map[string]string
	Tags        map[string]string
}

type UploadResult struct {
	Bucket     string
	ObjectKey  string
	ETag       string
	Size       int64
	UploadedAt time.Time
}

type ObjectMetadata struct {
	Bucket       string
	ObjectKey    string
	Size         int64
	ContentType  string
	ETag         string
	LastModified time.Time
	Metadata     map[string]string
}

type minioRepository struct {
	client *MinIOClient
	logger logging.Logger
}

func NewMinIORepository(client *MinIOClient, log logging.Logger) ObjectStorageRepository {
	return &minioRepository{client: client, logger: log}
}

func (r *minioRepository) Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error) {
	if r.client.isClosed() {
		return nil, ErrMinIOClientClosed
	}
	if req == nil || req.ObjectKey == "" {
		return nil, ErrInvalidRequest
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	opts := minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: req.Metadata,
		UserTags:     req.Tags,
	}
	bucket := r.client.Bucket()
	info, err := r.client.GetClient().PutObject(ctx, bucket, req.ObjectKey, bytes.NewReader(req.Data), int64(len(req.Data)), opts)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "upload failed").WithDetail(req.ObjectKey)
	}
	r.logger.Debug("Object uploaded",
		logging.String("bucket", bucket),
		logging.String("key", req.ObjectKey),
		logging.Int64("size", info.Size))
	return &UploadResult{
		Bucket:     bucket,
		ObjectKey:  req.ObjectKey,
		ETag:       info.ETag,
		Size:       info.Size,
		UploadedAt: time.Now(),
	}, nil
}

func (r *minioRepository) Delete(ctx context.Context, objectKey string) error {
	if err := r.client.GetClient().RemoveObject(ctx, r.client.Bucket(), objectKey, minio.RemoveObjectOptions{}); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "delete failed").WithDetail(objectKey)
	}
	return nil
}

func (r *minioRepository) Exists(ctx context.Context, objectKey string) (bool, error) {
	_, err := r.GetMetadata(ctx, objectKey)
	if errors.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

func (r *minioRepository) GetMetadata(ctx context.Context, objectKey string) (*ObjectMetadata, error) {
	bucket := r.client.Bucket()
	info, err := r.client.GetClient().StatObject(ctx, bucket, objectKey, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrObjectNotFound.WithDetail(objectKey)
		}
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "stat failed")
	}
	return toMetadata(bucket, info), nil
}

func (r *minioRepository) List(ctx context.Context, prefix string) ([]*ObjectMetadata, error) {
	bucket := r.client.Bucket()
	var out []*ObjectMetadata
	for obj := range r.client.GetClient().ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, errors.Wrap(obj.Err, errors.ErrCodeInternal, "list failed")
		}
		out = append(out, toMetadata(bucket, obj))
	}
	return out, nil
}

func (r *minioRepository) GetPresignedDownloadURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	return r.client.GeneratePresignedGetURL(ctx, objectKey, expiry)
}

func toMetadata(bucket string, info minio.ObjectInfo) *ObjectMetadata {
	return &ObjectMetadata{
		Bucket:       bucket,
		ObjectKey:    info.Key,
		Size:         info.Size,
		ContentType:  info.ContentType,
		ETag:         info.ETag,
		LastModified: info.LastModified,
		Metadata:     info.UserMetadata,
	}
}
