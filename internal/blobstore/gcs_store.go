package blobstore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

const gcsPublicBaseURL = "https://storage.googleapis.com"

// GCSStore keeps objects in Google Cloud Storage buckets.
type GCSStore struct {
	client  *storage.Client
	baseURL string
}

// NewGCSStore wraps an authenticated storage client.
func NewGCSStore(client *storage.Client) *GCSStore {
	return &GCSStore{client: client, baseURL: gcsPublicBaseURL}
}

// Upload writes data; without Upsert the write is conditioned on the object not existing.
func (s *GCSStore) Upload(ctx context.Context, bucket, objectPath string, data []byte, opts UploadOptions) (UploadResult, error) {
	cleaned, err := CleanPath(objectPath)
	if err != nil {
		return UploadResult{}, err
	}
	object := s.client.Bucket(bucket).Object(cleaned)
	if !opts.Upsert {
		object = object.If(storage.Conditions{DoesNotExist: true})
	}

	writer := object.NewWriter(ctx)
	if opts.ContentType != "" {
		writer.ObjectAttrs.ContentType = opts.ContentType
	}
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return UploadResult{}, fmt.Errorf("gcs write %s/%s: %w", bucket, cleaned, err)
	}
	if err := writer.Close(); err != nil {
		if !opts.Upsert && isPreconditionFailed(err) {
			return UploadResult{}, ErrObjectExists
		}
		return UploadResult{}, fmt.Errorf("gcs close %s/%s: %w", bucket, cleaned, err)
	}
	return UploadResult{Bucket: bucket, Path: cleaned}, nil
}

// PublicURL returns the storage.googleapis.com URL of the object.
func (s *GCSStore) PublicURL(bucket, objectPath string) string {
	cleaned, err := CleanPath(objectPath)
	if err != nil {
		cleaned = objectPath
	}
	return publicURL(s.baseURL, bucket, cleaned)
}

// List iterates objects under prefix.
func (s *GCSStore) List(ctx context.Context, bucket, prefix string) ([]Entry, error) {
	entries := make([]Entry, 0)
	objects := s.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := objects.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gcs list %s/%s: %w", bucket, prefix, err)
		}
		entries = append(entries, Entry{Path: attrs.Name, Size: attrs.Size, UpdatedAt: attrs.Updated.UTC()})
	}
	return entries, nil
}

// Delete removes objects; missing objects are ignored.
func (s *GCSStore) Delete(ctx context.Context, bucket string, objectPaths ...string) error {
	for _, objectPath := range objectPaths {
		cleaned, err := CleanPath(objectPath)
		if err != nil {
			return err
		}
		err = s.client.Bucket(bucket).Object(cleaned).Delete(ctx)
		if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("gcs delete %s/%s: %w", bucket, cleaned, err)
		}
	}
	return nil
}
