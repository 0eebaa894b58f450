package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// presignTTL: long enough for a classification call plus retries.
const presignTTL = 15 * time.Minute

// Store holds evidence payloads in MinIO. A payloadRef is the object key;
// nothing in the engine ever treats it as a filesystem path.
type Store struct {
	client     *minio.Client
	bucketName string
	region     string
}

// New buat koneksi MinIO
func New(ctx context.Context, endpoint, region, bucket, accessKey, secretKey string, useSSL bool) (*Store, error) {
	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, err
	}

	// pastikan bucket ada
	exists, err := cli.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := cli.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return nil, err
		}
	}

	return &Store{client: cli, bucketName: bucket, region: region}, nil
}

// PutPayload stores one payload (e.g. an image extracted from an uploaded
// archive) and returns its payloadRef.
func (s *Store) PutPayload(ctx context.Context, batchID, name string, r io.Reader, size int64) (string, error) {
	key := path.Join("payloads", batchID, name)

	contentType := "application/octet-stream"
	switch path.Ext(name) {
	case ".jpg", ".jpeg":
		contentType = "image/jpeg"
	case ".png":
		contentType = "image/png"
	case ".pdf":
		contentType = "application/pdf"
	}

	_, err := s.client.PutObject(ctx, s.bucketName, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("uploading payload %s: %w", name, err)
	}
	return key, nil
}

// PayloadURL implements the classifier gateway's Resolver: a short-lived
// presigned URL the external classifier can fetch.
func (s *Store) PayloadURL(ctx context.Context, payloadRef string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucketName, payloadRef, presignTTL, nil)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// RemovePayload deletes a stored payload; used by the audited purge path.
func (s *Store) RemovePayload(ctx context.Context, payloadRef string) error {
	return s.client.RemoveObject(ctx, s.bucketName, payloadRef, minio.RemoveObjectOptions{})
}
