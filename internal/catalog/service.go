// Package catalog manages galleries and their photos: rows in the shared
// record store and image bytes in the blob store.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/proofing/internal/blobstore"
	"github.com/MarcoPoloResearchLab/proofing/internal/ids"
	"github.com/MarcoPoloResearchLab/proofing/internal/recordstore"
	"github.com/MarcoPoloResearchLab/proofing/internal/svcerr"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	maxGalleryNameLength = 120
	maxFileNameLength    = 180
)

const (
	opServiceNew      = "catalog.service.new"
	opCreateGallery   = "catalog.create_gallery"
	opGetGallery      = "catalog.get_gallery"
	opListGalleries   = "catalog.list_galleries"
	opUpdateGallery   = "catalog.update_gallery"
	opDeleteGallery   = "catalog.delete_gallery"
	opVerifyPassword  = "catalog.verify_password"
	opUploadPhoto     = "catalog.upload_photo"
	opListPhotos      = "catalog.list_photos"
	opDeletePhoto     = "catalog.delete_photo"
	reasonStoreFailed = "store_failed"
	reasonBlobFailed  = "blob_failed"
)

var (
	// ErrGalleryNotFound indicates an unknown gallery id.
	ErrGalleryNotFound = errors.New("catalog: gallery not found")
	// ErrPhotoNotFound indicates an unknown photo id.
	ErrPhotoNotFound = errors.New("catalog: photo not found")
	// ErrInvalidGallery indicates rejected gallery input.
	ErrInvalidGallery = errors.New("catalog: invalid gallery")
	// ErrInvalidPhoto indicates rejected upload input.
	ErrInvalidPhoto = errors.New("catalog: invalid photo")

	errMissingRecords = errors.New("record store is required")
	errMissingBlobs   = errors.New("blob store is required")
	noOpLogger        = zap.NewNop()

	unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

// ServiceConfig wires the catalog service.
type ServiceConfig struct {
	Records      recordstore.Store
	Blobs        blobstore.Store
	Bucket       string
	Clock        func() time.Time
	IDProvider   ids.Provider
	Logger       *zap.Logger
	PasswordCost int
}

// Service implements gallery and photo management.
type Service struct {
	records      recordstore.Store
	blobs        blobstore.Store
	bucket       string
	clock        func() time.Time
	idProvider   ids.Provider
	logger       *zap.Logger
	passwordCost int
}

// GalleryInput carries the fields of a new gallery.
type GalleryInput struct {
	Name           string
	Description    string
	Password       string
	AllowComments  bool
	AllowFavorites bool
}

// GalleryUpdate carries optional field changes. An empty Password removes protection.
type GalleryUpdate struct {
	Name           *string
	Description    *string
	Password       *string
	AllowComments  *bool
	AllowFavorites *bool
}

// PhotoUpload carries one image to store.
type PhotoUpload struct {
	GalleryID   string
	Subfolder   string
	FileName    string
	ContentType string
	Data        []byte
}

// NewService validates the configuration and builds a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Records == nil {
		return nil, svcerr.New(opServiceNew, "missing_records", errMissingRecords)
	}
	if cfg.Blobs == nil {
		return nil, svcerr.New(opServiceNew, "missing_blobs", errMissingBlobs)
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		bucket = "photos"
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = ids.NewUUIDProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	cost := cfg.PasswordCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Service{
		records:      cfg.Records,
		blobs:        cfg.Blobs,
		bucket:       bucket,
		clock:        clock,
		idProvider:   idProvider,
		logger:       logger,
		passwordCost: cost,
	}, nil
}

// Bucket returns the blob bucket holding photos and exported selections.
func (s *Service) Bucket() string {
	return s.bucket
}

// CreateGallery stores a new gallery, hashing its password when one is set.
func (s *Service) CreateGallery(ctx context.Context, input GalleryInput) (Gallery, error) {
	name, err := validateGalleryName(opCreateGallery, input.Name)
	if err != nil {
		return Gallery{}, err
	}
	hash, err := s.hashPassword(input.Password)
	if err != nil {
		return Gallery{}, svcerr.New(opCreateGallery, "hash_failed", err)
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		return Gallery{}, svcerr.New(opCreateGallery, "id_generation_failed", err)
	}
	now := s.clock().UTC().UnixMilli()
	row := recordstore.Row{
		columnID:             id,
		columnName:           name,
		columnDescription:    strings.TrimSpace(input.Description),
		columnPasswordHash:   hash,
		columnAllowComments:  input.AllowComments,
		columnAllowFavorites: input.AllowFavorites,
		columnCreatedAt:      now,
		columnUpdatedAt:      now,
	}
	if _, err := s.records.Insert(ctx, recordstore.TableGalleries, row); err != nil {
		s.logError(opCreateGallery, reasonStoreFailed, err)
		return Gallery{}, svcerr.New(opCreateGallery, reasonStoreFailed, err)
	}
	s.logger.Info("gallery created", zap.String("gallery_id", id))
	return galleryFromRow(row), nil
}

// GetGallery returns the gallery or ErrGalleryNotFound.
func (s *Service) GetGallery(ctx context.Context, galleryID string) (Gallery, error) {
	rows, err := s.records.Select(ctx, recordstore.TableGalleries,
		[]recordstore.Filter{recordstore.Eq(columnID, strings.TrimSpace(galleryID))})
	if err != nil {
		s.logError(opGetGallery, reasonStoreFailed, err, zap.String("gallery_id", galleryID))
		return Gallery{}, svcerr.New(opGetGallery, reasonStoreFailed, err)
	}
	if len(rows) == 0 {
		return Gallery{}, svcerr.New(opGetGallery, "not_found", ErrGalleryNotFound)
	}
	return galleryFromRow(rows[0]), nil
}

// ListGalleries returns every gallery, newest first.
func (s *Service) ListGalleries(ctx context.Context) ([]Gallery, error) {
	rows, err := s.records.Select(ctx, recordstore.TableGalleries, nil,
		recordstore.Desc(columnCreatedAt), recordstore.Desc(columnID))
	if err != nil {
		s.logError(opListGalleries, reasonStoreFailed, err)
		return nil, svcerr.New(opListGalleries, reasonStoreFailed, err)
	}
	galleries := make([]Gallery, 0, len(rows))
	for _, row := range rows {
		galleries = append(galleries, galleryFromRow(row))
	}
	return galleries, nil
}

// UpdateGallery applies the non-nil fields of update.
func (s *Service) UpdateGallery(ctx context.Context, galleryID string, update GalleryUpdate) (Gallery, error) {
	if _, err := s.GetGallery(ctx, galleryID); err != nil {
		return Gallery{}, err
	}
	values := recordstore.Row{columnUpdatedAt: s.clock().UTC().UnixMilli()}
	if update.Name != nil {
		name, err := validateGalleryName(opUpdateGallery, *update.Name)
		if err != nil {
			return Gallery{}, err
		}
		values[columnName] = name
	}
	if update.Description != nil {
		values[columnDescription] = strings.TrimSpace(*update.Description)
	}
	if update.Password != nil {
		hash, err := s.hashPassword(*update.Password)
		if err != nil {
			return Gallery{}, svcerr.New(opUpdateGallery, "hash_failed", err)
		}
		values[columnPasswordHash] = hash
	}
	if update.AllowComments != nil {
		values[columnAllowComments] = *update.AllowComments
	}
	if update.AllowFavorites != nil {
		values[columnAllowFavorites] = *update.AllowFavorites
	}
	if _, err := s.records.Update(ctx, recordstore.TableGalleries,
		[]recordstore.Filter{recordstore.Eq(columnID, galleryID)}, values); err != nil {
		s.logError(opUpdateGallery, reasonStoreFailed, err, zap.String("gallery_id", galleryID))
		return Gallery{}, svcerr.New(opUpdateGallery, reasonStoreFailed, err)
	}
	return s.GetGallery(ctx, galleryID)
}

// DeleteGallery removes the gallery, its photo files and rows, and every
// favorite and comment attached to it.
func (s *Service) DeleteGallery(ctx context.Context, galleryID string) error {
	if _, err := s.GetGallery(ctx, galleryID); err != nil {
		return err
	}
	entries, err := s.blobs.List(ctx, s.bucket, galleryID+"/")
	if err != nil {
		s.logError(opDeleteGallery, reasonBlobFailed, err, zap.String("gallery_id", galleryID))
		return svcerr.New(opDeleteGallery, reasonBlobFailed, err)
	}
	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		paths = append(paths, entry.Path)
	}
	if len(paths) > 0 {
		if err := s.blobs.Delete(ctx, s.bucket, paths...); err != nil {
			s.logError(opDeleteGallery, reasonBlobFailed, err, zap.String("gallery_id", galleryID))
			return svcerr.New(opDeleteGallery, reasonBlobFailed, err)
		}
	}
	byGallery := []recordstore.Filter{recordstore.Eq(columnGalleryID, galleryID)}
	for _, table := range []string{recordstore.TableFavorites, recordstore.TableComments, recordstore.TablePhotos} {
		if _, err := s.records.Delete(ctx, table, byGallery); err != nil {
			s.logError(opDeleteGallery, reasonStoreFailed, err, zap.String("gallery_id", galleryID), zap.String("table", table))
			return svcerr.New(opDeleteGallery, reasonStoreFailed, err)
		}
	}
	if _, err := s.records.Delete(ctx, recordstore.TableGalleries,
		[]recordstore.Filter{recordstore.Eq(columnID, galleryID)}); err != nil {
		s.logError(opDeleteGallery, reasonStoreFailed, err, zap.String("gallery_id", galleryID))
		return svcerr.New(opDeleteGallery, reasonStoreFailed, err)
	}
	s.logger.Info("gallery deleted", zap.String("gallery_id", galleryID), zap.Int("files", len(paths)))
	return nil
}

// VerifyPassword reports whether password opens the gallery. Galleries
// without a password accept anything.
func (s *Service) VerifyPassword(ctx context.Context, galleryID, password string) (bool, error) {
	gallery, err := s.GetGallery(ctx, galleryID)
	if err != nil {
		return false, err
	}
	if gallery.passwordHash == "" {
		return true, nil
	}
	err = bcrypt.CompareHashAndPassword([]byte(gallery.passwordHash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		s.logError(opVerifyPassword, "compare_failed", err, zap.String("gallery_id", galleryID))
		return false, svcerr.New(opVerifyPassword, "compare_failed", err)
	}
}

// UploadPhoto stores the bytes under <gallery>/<subfolder>/<uuid>-<name> and
// records the photo.
func (s *Service) UploadPhoto(ctx context.Context, upload PhotoUpload) (Photo, error) {
	if len(upload.Data) == 0 {
		return Photo{}, svcerr.New(opUploadPhoto, "empty_file", ErrInvalidPhoto)
	}
	if _, err := s.GetGallery(ctx, upload.GalleryID); err != nil {
		return Photo{}, err
	}
	originalName := strings.TrimSpace(path.Base(strings.ReplaceAll(upload.FileName, "\\", "/")))
	name := SanitizeFileName(originalName)
	if name == "" {
		return Photo{}, svcerr.New(opUploadPhoto, "invalid_name", ErrInvalidPhoto)
	}
	subfolder, err := cleanSubfolder(upload.Subfolder)
	if err != nil {
		return Photo{}, svcerr.New(opUploadPhoto, "invalid_subfolder", fmt.Errorf("%w: %v", ErrInvalidPhoto, err))
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		return Photo{}, svcerr.New(opUploadPhoto, "id_generation_failed", err)
	}

	storagePath := path.Join(upload.GalleryID, subfolder, id+"-"+name)
	if _, err := s.blobs.Upload(ctx, s.bucket, storagePath, upload.Data, blobstore.UploadOptions{ContentType: upload.ContentType}); err != nil {
		s.logError(opUploadPhoto, reasonBlobFailed, err, zap.String("gallery_id", upload.GalleryID), zap.String("path", storagePath))
		return Photo{}, svcerr.New(opUploadPhoto, reasonBlobFailed, err)
	}

	row := recordstore.Row{
		columnID:           id,
		columnGalleryID:    upload.GalleryID,
		columnName:         name,
		columnOriginalName: originalName,
		columnSubfolder:    subfolder,
		columnStoragePath:  storagePath,
		columnURL:          s.blobs.PublicURL(s.bucket, storagePath),
		columnContentType:  upload.ContentType,
		columnSizeBytes:    int64(len(upload.Data)),
		columnCreatedAt:    s.clock().UTC().UnixMilli(),
	}
	if _, err := s.records.Insert(ctx, recordstore.TablePhotos, row); err != nil {
		s.logError(opUploadPhoto, reasonStoreFailed, err, zap.String("gallery_id", upload.GalleryID))
		if cleanupErr := s.blobs.Delete(ctx, s.bucket, storagePath); cleanupErr != nil {
			s.logError(opUploadPhoto, "cleanup_failed", cleanupErr, zap.String("path", storagePath))
		}
		return Photo{}, svcerr.New(opUploadPhoto, reasonStoreFailed, err)
	}
	return photoFromRow(row), nil
}

// ListPhotos returns every photo of the gallery, oldest first.
func (s *Service) ListPhotos(ctx context.Context, galleryID string) ([]Photo, error) {
	return s.listPhotos(ctx, []recordstore.Filter{recordstore.Eq(columnGalleryID, galleryID)})
}

// ListPhotosIn returns the photos of one subfolder; "" selects the gallery root.
func (s *Service) ListPhotosIn(ctx context.Context, galleryID, subfolder string) ([]Photo, error) {
	cleaned, err := cleanSubfolder(subfolder)
	if err != nil {
		return nil, svcerr.New(opListPhotos, "invalid_subfolder", fmt.Errorf("%w: %v", ErrInvalidPhoto, err))
	}
	return s.listPhotos(ctx, []recordstore.Filter{
		recordstore.Eq(columnGalleryID, galleryID),
		recordstore.Eq(columnSubfolder, cleaned),
	})
}

func (s *Service) listPhotos(ctx context.Context, filters []recordstore.Filter) ([]Photo, error) {
	rows, err := s.records.Select(ctx, recordstore.TablePhotos, filters,
		recordstore.Asc(columnCreatedAt), recordstore.Asc(columnID))
	if err != nil {
		s.logError(opListPhotos, reasonStoreFailed, err)
		return nil, svcerr.New(opListPhotos, reasonStoreFailed, err)
	}
	photos := make([]Photo, 0, len(rows))
	for _, row := range rows {
		photos = append(photos, photoFromRow(row))
	}
	return photos, nil
}

// ListSubfolders returns the distinct non-root subfolders of the gallery, sorted.
func (s *Service) ListSubfolders(ctx context.Context, galleryID string) ([]string, error) {
	photos, err := s.ListPhotos(ctx, galleryID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	subfolders := make([]string, 0)
	for _, photo := range photos {
		if photo.Subfolder == "" {
			continue
		}
		if _, ok := seen[photo.Subfolder]; ok {
			continue
		}
		seen[photo.Subfolder] = struct{}{}
		subfolders = append(subfolders, photo.Subfolder)
	}
	sort.Strings(subfolders)
	return subfolders, nil
}

// DeletePhoto removes the photo file and row.
func (s *Service) DeletePhoto(ctx context.Context, galleryID, photoID string) error {
	filters := []recordstore.Filter{
		recordstore.Eq(columnID, photoID),
		recordstore.Eq(columnGalleryID, galleryID),
	}
	rows, err := s.records.Select(ctx, recordstore.TablePhotos, filters)
	if err != nil {
		s.logError(opDeletePhoto, reasonStoreFailed, err, zap.String("photo_id", photoID))
		return svcerr.New(opDeletePhoto, reasonStoreFailed, err)
	}
	if len(rows) == 0 {
		return svcerr.New(opDeletePhoto, "not_found", ErrPhotoNotFound)
	}
	photo := photoFromRow(rows[0])
	if err := s.blobs.Delete(ctx, s.bucket, photo.StoragePath); err != nil {
		s.logError(opDeletePhoto, reasonBlobFailed, err, zap.String("photo_id", photoID))
		return svcerr.New(opDeletePhoto, reasonBlobFailed, err)
	}
	if _, err := s.records.Delete(ctx, recordstore.TablePhotos, filters); err != nil {
		s.logError(opDeletePhoto, reasonStoreFailed, err, zap.String("photo_id", photoID))
		return svcerr.New(opDeletePhoto, reasonStoreFailed, err)
	}
	return nil
}

// SanitizeFileName keeps letters, digits, dots, dashes and underscores,
// replacing other runs with a single underscore.
func SanitizeFileName(name string) string {
	cleaned := strings.Trim(unsafeFileChars.ReplaceAllString(strings.TrimSpace(name), "_"), "._")
	if len(cleaned) > maxFileNameLength {
		cleaned = cleaned[len(cleaned)-maxFileNameLength:]
	}
	return cleaned
}

func cleanSubfolder(subfolder string) (string, error) {
	trimmed := strings.Trim(strings.TrimSpace(subfolder), "/")
	if trimmed == "" {
		return "", nil
	}
	segments := strings.Split(trimmed, "/")
	cleaned := make([]string, 0, len(segments))
	for _, segment := range segments {
		if segment == ".." {
			return "", fmt.Errorf("subfolder %q escapes the gallery", subfolder)
		}
		safe := SanitizeFileName(segment)
		if safe == "" {
			continue
		}
		cleaned = append(cleaned, safe)
	}
	return strings.Join(cleaned, "/"), nil
}

func validateGalleryName(operation, name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || utf8.RuneCountInString(trimmed) > maxGalleryNameLength {
		return "", svcerr.New(operation, "invalid_name", ErrInvalidGallery)
	}
	return trimmed, nil
}

func (s *Service) hashPassword(password string) (string, error) {
	if password == "" {
		return "", nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.passwordCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}, fields...)
	if err != nil {
		allFields = append(allFields, zap.Error(err))
	}
	s.logger.Error("catalog operation failed", allFields...)
}
