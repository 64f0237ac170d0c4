// Package storage uploads company logos to object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

const logoPrefix = "company-logos"

type LogoStore interface {
	UploadLogo(ctx context.Context, companyID, filename, contentType string, r io.Reader) (string, error)
	DeleteLogo(ctx context.Context, url string) error
}

// objectWriter and objectDeleter reach the bucket. They are swapped out in tests.
type (
	objectWriter  func(ctx context.Context, bucket, object, contentType string) io.WriteCloser
	objectDeleter func(ctx context.Context, bucket, object string) error
)

type GCSLogoStore struct {
	client *storage.Client
	bucket string
	open   objectWriter
	remove objectDeleter
}

// NewGCSLogoStore uses the given service account key when credentialsFile is
// set and application default credentials otherwise.
func NewGCSLogoStore(ctx context.Context, bucket, credentialsFile string) (*GCSLogoStore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	s := &GCSLogoStore{client: client, bucket: bucket}
	s.open = s.gcsWriter
	s.remove = s.gcsDelete
	return s, nil
}

func (s *GCSLogoStore) gcsWriter(ctx context.Context, bucket, object, contentType string) io.WriteCloser {
	w := s.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=86400"
	return w
}

func (s *GCSLogoStore) gcsDelete(ctx context.Context, bucket, object string) error {
	return s.client.Bucket(bucket).Object(object).Delete(ctx)
}

// UploadLogo stores the image under company-logos/ and returns its public URL.
func (s *GCSLogoStore) UploadLogo(ctx context.Context, companyID, filename, contentType string, r io.Reader) (string, error) {
	object := ObjectName(companyID, filename)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	w := s.open(ctx, s.bucket, object, contentType)
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to upload logo to gs://%s/%s: %w", s.bucket, object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer for %s: %w", object, err)
	}
	return PublicURL(s.bucket, object), nil
}

// DeleteLogo removes an object previously returned by UploadLogo. A missing
// object is not an error.
func (s *GCSLogoStore) DeleteLogo(ctx context.Context, url string) error {
	prefix := PublicURL(s.bucket, "")
	object := strings.TrimPrefix(url, prefix)
	if object == url || object == "" {
		return fmt.Errorf("logo %q is not in bucket %s", url, s.bucket)
	}
	err := s.remove(ctx, s.bucket, object)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete gs://%s/%s: %w", s.bucket, object, err)
	}
	return nil
}

func (s *GCSLogoStore) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// ObjectName builds a collision-free object path that keeps the file extension.
func ObjectName(companyID, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	id := strings.NewReplacer("/", "-", " ", "-").Replace(companyID)
	return fmt.Sprintf("%s/%s-%s%s", logoPrefix, id, uuid.NewString(), ext)
}

func PublicURL(bucket, object string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bucket, object)
}
