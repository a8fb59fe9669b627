package minio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var ErrSnapshotNotFound = errors.New("snapshot not found")

func Connect(endpoint, accessKey, secretKey string, secure bool) (*minio.Client, error) {
	return minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
}

// SnapshotStore mirrors index artifacts to an object store bucket under
// a common prefix.
type SnapshotStore struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewSnapshotStore(ctx context.Context, client *minio.Client, bucket, prefix string) (*SnapshotStore, error) {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}

	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}
	}

	return &SnapshotStore{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}, nil
}

func (s *SnapshotStore) key(name string) string {
	return objectKey(s.prefix, name)
}

func objectKey(prefix, name string) string {
	return path.Join(strings.Trim(prefix, "/"), filepath.Base(name))
}

func (s *SnapshotStore) Upload(ctx context.Context, localPath string) error {
	_, err := s.client.FPutObject(ctx, s.bucket, s.key(localPath), localPath, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", localPath, err)
	}
	return nil
}

// Download fetches the object named after localPath's base name and
// writes it to localPath.
func (s *SnapshotStore) Download(ctx context.Context, localPath string) error {
	key := s.key(localPath)

	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return fmt.Errorf("%w: %s", ErrSnapshotNotFound, key)
		}
		return err
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}

	if err := s.client.FGetObject(ctx, s.bucket, key, localPath, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("download %s: %w", key, err)
	}
	return nil
}
