// Package blob stores photo and document files in an S3-compatible
// bucket and hands out the public URLs the rest of the system records.
package blob

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Service struct {
	client        *minio.Client
	bucket        string
	publicBaseURL string
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicBaseURL is the externally reachable prefix for objects,
	// e.g. https://cdn.example.com/fruitlog. Defaults to the endpoint.
	PublicBaseURL string
}

func New(cfg Config) (*Service, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}

	publicBase := cfg.PublicBaseURL
	if publicBase == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicBase = fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket)
	}

	return &Service{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimRight(publicBase, "/"),
	}, nil
}

// EnsureBucket creates the bucket when it does not exist yet. Called
// once at startup.
func (s *Service) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Upload writes an object, replacing any previous version. Used for
// edited photos, whose path is derived from the photo id and therefore
// legitimately overwritten on every re-edit.
func (s *Service) Upload(ctx context.Context, objectPath string, reader io.Reader, size int64, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, objectPath, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", objectPath, err)
	}
	return s.PublicURL(objectPath), nil
}

// UploadNew writes an object only when the path is not taken yet. Used
// for originals and documents, which must never be silently replaced.
func (s *Service) UploadNew(ctx context.Context, objectPath string, reader io.Reader, size int64, contentType string) (string, error) {
	_, err := s.client.StatObject(ctx, s.bucket, objectPath, minio.StatObjectOptions{})
	if err == nil {
		return "", fmt.Errorf("object %s already exists", objectPath)
	}
	response := minio.ToErrorResponse(err)
	if response.Code != "NoSuchKey" {
		return "", fmt.Errorf("check object %s: %w", objectPath, err)
	}
	return s.Upload(ctx, objectPath, reader, size, contentType)
}

// Remove deletes an object. Removing a missing object is not an error.
func (s *Service) Remove(ctx context.Context, objectPath string) error {
	err := s.client.RemoveObject(ctx, s.bucket, objectPath, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("remove %s: %w", objectPath, err)
	}
	return nil
}

// PublicURL returns the externally reachable URL for an object path.
func (s *Service) PublicURL(objectPath string) string {
	return s.publicBaseURL + "/" + strings.TrimLeft(objectPath, "/")
}

// PathFromURL recovers the object path from a public URL previously
// produced by PublicURL. Returns false for foreign URLs.
func (s *Service) PathFromURL(url string) (string, bool) {
	prefix := s.publicBaseURL + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	return strings.TrimPrefix(url, prefix), true
}
