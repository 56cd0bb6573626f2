package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/your-org/facegate/internal/config"
)

// Object key layout inside the bucket:
//
//	faces/<identity_id>/<face_record_id>.jpg   enrollment crops
//	snapshots/<station_id>/<ts>_<uuid>.jpg     scan-time match snapshots
const (
	enrollmentPrefix = "faces/"
	snapshotPrefix   = "snapshots/"
)

type MinIOStore struct {
	client *minio.Client
	bucket string
}

func NewMinIOStore(cfg config.MinIOConfig) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinIOStore{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	return nil
}

// EnrollmentKey builds the object key for an enrollment crop.
func EnrollmentKey(identityID, faceID uuid.UUID) string {
	return fmt.Sprintf("%s%s/%s.jpg", enrollmentPrefix, identityID, faceID)
}

// SnapshotKey builds the object key for a scan-time snapshot.
func SnapshotKey(stationID uuid.UUID, ts time.Time) string {
	return fmt.Sprintf("%s%s/%s_%s.jpg", snapshotPrefix, stationID,
		ts.UTC().Format("20060102T150405"), uuid.New())
}

// PutObject uploads data under the given key.
func (s *MinIOStore) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	reader := bytes.NewReader(data)
	_, err := s.client.PutObject(ctx, s.bucket, key, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// GetObject retrieves data by key.
func (s *MinIOStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

// DeleteObject removes a single object.
func (s *MinIOStore) DeleteObject(ctx context.Context, key string) error {
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}

// deleteBatch removes multiple objects in a single batch request.
func (s *MinIOStore) deleteBatch(ctx context.Context, keys []string) error {
	objectsCh := make(chan minio.ObjectInfo, len(keys))
	for _, key := range keys {
		objectsCh <- minio.ObjectInfo{Key: key}
	}
	close(objectsCh)
	for result := range s.client.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if result.Err != nil {
			return fmt.Errorf("delete object %s: %w", result.ObjectName, result.Err)
		}
	}
	return nil
}

// DeleteEnrollmentImages removes every stored crop for an identity.
func (s *MinIOStore) DeleteEnrollmentImages(ctx context.Context, identityID uuid.UUID) error {
	prefix := enrollmentPrefix + identityID.String() + "/"
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return fmt.Errorf("list objects %s: %w", prefix, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	if len(keys) == 0 {
		return nil
	}
	return s.deleteBatch(ctx, keys)
}

// PruneSnapshots deletes scan snapshots older than the cutoff and reports
// how many were removed. Called from the scanner's retention job.
func (s *MinIOStore) PruneSnapshots(ctx context.Context, cutoff time.Time) (int, error) {
	var stale []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    snapshotPrefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return 0, fmt.Errorf("list snapshots: %w", obj.Err)
		}
		if obj.LastModified.Before(cutoff) {
			stale = append(stale, obj.Key)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := s.deleteBatch(ctx, stale); err != nil {
		return 0, err
	}
	return len(stale), nil
}

// Ping checks MinIO connectivity.
func (s *MinIOStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}
