package blobstore

import (
	"context"
	"errors"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// FSStore keeps objects under <root>/<bucket>/<path> on an afero filesystem.
type FSStore struct {
	fs      afero.Fs
	root    string
	baseURL string
}

// NewFSStore builds a filesystem store; baseURL prefixes public URLs.
func NewFSStore(fs afero.Fs, root, baseURL string) *FSStore {
	return &FSStore{fs: fs, root: root, baseURL: baseURL}
}

// Filesystem exposes the backing filesystem (served by the HTTP layer).
func (s *FSStore) Filesystem() afero.Fs {
	return afero.NewBasePathFs(s.fs, s.root)
}

// Upload writes data, refusing to overwrite unless opts.Upsert is set.
func (s *FSStore) Upload(ctx context.Context, bucket, objectPath string, data []byte, opts UploadOptions) (UploadResult, error) {
	if err := ctx.Err(); err != nil {
		return UploadResult{}, err
	}
	cleaned, fullPath, err := s.resolve(bucket, objectPath)
	if err != nil {
		return UploadResult{}, err
	}
	if !opts.Upsert {
		exists, err := afero.Exists(s.fs, fullPath)
		if err != nil {
			return UploadResult{}, err
		}
		if exists {
			return UploadResult{}, ErrObjectExists
		}
	}
	if err := s.fs.MkdirAll(path.Dir(fullPath), 0o755); err != nil {
		return UploadResult{}, err
	}
	if err := afero.WriteFile(s.fs, fullPath, data, 0o644); err != nil {
		return UploadResult{}, err
	}
	return UploadResult{Bucket: bucket, Path: cleaned}, nil
}

// PublicURL returns the URL under which the HTTP layer serves the object.
func (s *FSStore) PublicURL(bucket, objectPath string) string {
	cleaned, err := CleanPath(objectPath)
	if err != nil {
		cleaned = objectPath
	}
	return publicURL(s.baseURL, bucket, cleaned)
}

// List returns objects whose path starts with prefix, sorted by path.
func (s *FSStore) List(ctx context.Context, bucket, prefix string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bucketRoot := path.Join(s.root, bucket)
	entries := make([]Entry, 0)
	err := afero.Walk(s.fs, bucketRoot, func(walkPath string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, os.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		if info.IsDir() {
			return nil
		}
		relative := strings.TrimPrefix(strings.TrimPrefix(walkPath, bucketRoot), "/")
		if !strings.HasPrefix(relative, prefix) {
			return nil
		}
		entries = append(entries, Entry{Path: relative, Size: info.Size(), UpdatedAt: info.ModTime().UTC()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// Delete removes the given objects; missing objects are ignored.
func (s *FSStore) Delete(ctx context.Context, bucket string, objectPaths ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, objectPath := range objectPaths {
		_, fullPath, err := s.resolve(bucket, objectPath)
		if err != nil {
			return err
		}
		if err := s.fs.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (s *FSStore) resolve(bucket, objectPath string) (string, string, error) {
	if strings.TrimSpace(bucket) == "" || strings.Contains(bucket, "/") || bucket == ".." {
		return "", "", ErrInvalidPath
	}
	cleaned, err := CleanPath(objectPath)
	if err != nil {
		return "", "", err
	}
	return cleaned, path.Join(s.root, bucket, cleaned), nil
}
