// Package blobstore stores photo files and exported selections.
package blobstore

import (
	"context"
	"errors"
	"net/url"
	"path"
	"strings"
	"time"
)

var (
	// ErrObjectExists is returned by a non-upsert upload onto an existing object.
	ErrObjectExists = errors.New("blobstore: object already exists")
	// ErrInvalidPath indicates an empty or escaping object path.
	ErrInvalidPath = errors.New("blobstore: invalid object path")
)

// UploadOptions tunes a single upload.
type UploadOptions struct {
	Upsert      bool
	ContentType string
}

// UploadResult describes a stored object.
type UploadResult struct {
	Bucket string
	Path   string
}

// Entry is one listed object.
type Entry struct {
	Path      string
	Size      int64
	UpdatedAt time.Time
}

// Store is the object storage contract.
type Store interface {
	Upload(ctx context.Context, bucket, objectPath string, data []byte, opts UploadOptions) (UploadResult, error)
	PublicURL(bucket, objectPath string) string
	List(ctx context.Context, bucket, prefix string) ([]Entry, error)
	Delete(ctx context.Context, bucket string, objectPaths ...string) error
}

// CleanPath normalizes an object path and rejects traversal outside the bucket.
func CleanPath(objectPath string) (string, error) {
	trimmed := strings.TrimSpace(strings.ReplaceAll(objectPath, "\\", "/"))
	if trimmed == "" {
		return "", ErrInvalidPath
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+trimmed), "/")
	if cleaned == "" || cleaned == "." {
		return "", ErrInvalidPath
	}
	for _, segment := range strings.Split(trimmed, "/") {
		if segment == ".." {
			return "", ErrInvalidPath
		}
	}
	return cleaned, nil
}

func publicURL(baseURL, bucket, objectPath string) string {
	segments := strings.Split(objectPath, "/")
	for index, segment := range segments {
		segments[index] = url.PathEscape(segment)
	}
	return strings.TrimRight(baseURL, "/") + "/" + url.PathEscape(bucket) + "/" + strings.Join(segments, "/")
}
