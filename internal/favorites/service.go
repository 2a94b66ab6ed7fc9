// Package favorites reconciles a client's favorites and comments between the
// shared record store and the device-local store.
//
// The shared store is authoritative whenever it is configured and reachable.
// Otherwise every operation is served from the device-local store, and the
// caller cannot tell which path answered.
package favorites

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/proofing/internal/identity"
	"github.com/MarcoPoloResearchLab/proofing/internal/ids"
	"github.com/MarcoPoloResearchLab/proofing/internal/recordstore"
	"github.com/MarcoPoloResearchLab/proofing/internal/svcerr"
	"go.uber.org/zap"
)

const (
	maxIdentifierLength = 190
	maxCommentLength    = 2000
)

const (
	opServiceNew         = "favorites.service.new"
	opGetFavorites       = "favorites.get_favorites"
	opAddFavorite        = "favorites.add_favorite"
	opRemoveFavorite     = "favorites.remove_favorite"
	opClearFavorites     = "favorites.clear_favorites"
	opGetComments        = "favorites.get_comments"
	opAddComment         = "favorites.add_comment"
	opRemoveComment      = "favorites.remove_comment"
	opMigrate            = "favorites.migrate"
	reasonNotConfigured  = "not_configured"
	reasonTransport      = "transport_unavailable"
	reasonUnexpected     = "unexpected_remote_error"
	reasonLocalFailed    = "local_store_failed"
	reasonInvalidGallery = "invalid_gallery_id"
	reasonInvalidPhoto   = "invalid_photo_id"
)

var (
	// ErrInvalidGalleryID indicates an empty or oversized gallery id.
	ErrInvalidGalleryID = errors.New("favorites: invalid gallery id")
	// ErrInvalidPhotoID indicates an empty or oversized photo id.
	ErrInvalidPhotoID = errors.New("favorites: invalid photo id")
	// ErrInvalidCommentID indicates an empty or oversized comment id.
	ErrInvalidCommentID = errors.New("favorites: invalid comment id")
	// ErrEmptyComment indicates comment text that is blank after trimming.
	ErrEmptyComment = errors.New("favorites: comment text is required")
	// ErrCommentTooLong indicates comment text over the accepted length.
	ErrCommentTooLong = errors.New("favorites: comment text is too long")
	// ErrRemoteNotConfigured indicates an operation that needs the shared store.
	ErrRemoteNotConfigured = errors.New("favorites: shared store is not configured")

	errMissingLocalStore = errors.New("local store is required")
	errMissingIdentity   = errors.New("identity source is required")
	noOpLogger           = zap.NewNop()
)

// KeyValueStore is the device-local persistence used in Local-Fallback mode.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Rename(ctx context.Context, from, to string) error
}

// PrincipalSource resolves who is acting on this device.
type PrincipalSource interface {
	Principal(ctx context.Context) identity.Principal
}

// EventPublisher receives a notification after every successful mutation.
type EventPublisher interface {
	PublishSelectionEvent(event SelectionEvent)
}

// FallbackRecorder counts fallbacks and migration outcomes.
type FallbackRecorder interface {
	Fallback(operation, reason string)
	Migration(outcome string)
}

// ServiceConfig wires the reconciler. A nil Remote keeps the service in
// Local-Fallback mode permanently.
type ServiceConfig struct {
	Remote     recordstore.Store
	Local      KeyValueStore
	Identity   PrincipalSource
	Migration  *MigrationState
	Clock      func() time.Time
	IDProvider ids.Provider
	Logger     *zap.Logger
	Events     EventPublisher
	Metrics    FallbackRecorder
}

// Service is the favorites and comments reconciler for one device.
type Service struct {
	remote     recordstore.Store
	local      *legacyStore
	identity   PrincipalSource
	migration  *MigrationState
	clock      func() time.Time
	idProvider ids.Provider
	logger     *zap.Logger
	events     EventPublisher
	metrics    FallbackRecorder
}

// NewService validates the configuration and builds a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Local == nil {
		return nil, svcerr.New(opServiceNew, "missing_local_store", errMissingLocalStore)
	}
	if cfg.Identity == nil {
		return nil, svcerr.New(opServiceNew, "missing_identity", errMissingIdentity)
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
	migration := cfg.Migration
	if migration == nil {
		migration = &MigrationState{}
	}

	return &Service{
		remote:     cfg.Remote,
		local:      &legacyStore{kv: cfg.Local, clock: clock},
		identity:   cfg.Identity,
		migration:  migration,
		clock:      clock,
		idProvider: idProvider,
		logger:     logger,
		events:     cfg.Events,
		metrics:    cfg.Metrics,
	}, nil
}

// RemoteConfigured reports whether a shared store was supplied.
func (s *Service) RemoteConfigured() bool {
	return s.remote != nil
}

// Favorites returns the gallery's favorites, one per photo, newest first.
func (s *Service) Favorites(ctx context.Context, galleryID string) ([]Favorite, error) {
	rows, err := s.FavoriteRows(ctx, galleryID)
	if err != nil {
		return nil, err
	}
	return DedupeFavorites(rows), nil
}

// FavoriteRows returns every favorite row for the gallery without
// deduplication, so per-user attribution survives.
func (s *Service) FavoriteRows(ctx context.Context, galleryID string) ([]Favorite, error) {
	galleryID, err := normalizeID(opGetFavorites, reasonInvalidGallery, galleryID, ErrInvalidGalleryID)
	if err != nil {
		return nil, err
	}

	if s.remoteReady(ctx, opGetFavorites) {
		rows, err := s.remote.Select(ctx, recordstore.TableFavorites,
			[]recordstore.Filter{recordstore.Eq(columnGalleryID, galleryID)},
			recordstore.Desc(columnCreatedAt), recordstore.Desc(columnID))
		if err == nil {
			favorites := make([]Favorite, 0, len(rows))
			for _, row := range rows {
				favorites = append(favorites, favoriteFromRow(row))
			}
			return favorites, nil
		}
		s.fallback(opGetFavorites, err, zap.String("gallery_id", galleryID))
	}

	favorites, err := s.local.favorites(ctx, galleryID, s.identity.Principal(ctx))
	if err != nil {
		s.logError(opGetFavorites, reasonLocalFailed, err, zap.String("gallery_id", galleryID))
		return []Favorite{}, nil
	}
	return favorites, nil
}

// AddToFavorites marks photoID for the current principal. Adding a photo the
// principal already favorited returns the existing favorite unchanged.
func (s *Service) AddToFavorites(ctx context.Context, galleryID, photoID string) (Favorite, error) {
	galleryID, photoID, err := normalizePair(opAddFavorite, galleryID, photoID)
	if err != nil {
		return Favorite{}, err
	}
	principal := s.identity.Principal(ctx)

	if s.remoteReady(ctx, opAddFavorite) {
		favorite, created, err := s.addRemoteFavorite(ctx, galleryID, photoID, principal)
		if err == nil {
			if created {
				s.publish(SelectionEvent{GalleryID: galleryID, Type: EventFavoriteAdded, PhotoID: photoID})
			}
			return favorite, nil
		}
		s.fallback(opAddFavorite, err, zap.String("gallery_id", galleryID), zap.String("photo_id", photoID))
	}

	favorite, err := s.local.addFavorite(ctx, galleryID, photoID, principal)
	if err != nil {
		s.logError(opAddFavorite, reasonLocalFailed, err, zap.String("gallery_id", galleryID))
		return Favorite{}, svcerr.New(opAddFavorite, reasonLocalFailed, err)
	}
	s.publish(SelectionEvent{GalleryID: galleryID, Type: EventFavoriteAdded, PhotoID: photoID})
	return favorite, nil
}

func (s *Service) addRemoteFavorite(ctx context.Context, galleryID, photoID string, principal identity.Principal) (Favorite, bool, error) {
	filters := []recordstore.Filter{
		recordstore.Eq(columnGalleryID, galleryID),
		recordstore.Eq(columnPhotoID, photoID),
	}
	if principal.HasUser() {
		filters = append(filters, recordstore.Eq(columnUserID, principal.UserID))
	} else {
		filters = append(filters, recordstore.Eq(columnDeviceID, principal.DeviceID))
	}
	existing, err := s.remote.Select(ctx, recordstore.TableFavorites, filters, recordstore.Asc(columnCreatedAt))
	if err != nil {
		return Favorite{}, false, err
	}
	if len(existing) > 0 {
		return favoriteFromRow(existing[0]), false, nil
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		return Favorite{}, false, err
	}
	now := s.now()
	favorite := Favorite{
		ID:        id,
		GalleryID: galleryID,
		PhotoID:   photoID,
		DeviceID:  principal.DeviceID,
		UserID:    principal.UserID,
		UserName:  principal.UserName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.remote.Insert(ctx, recordstore.TableFavorites, favorite.row()); err != nil {
		return Favorite{}, false, err
	}
	return favorite, true, nil
}

// RemoveFromFavorites unmarks photoID for every user and device. It reports
// false only when neither store could be updated.
func (s *Service) RemoveFromFavorites(ctx context.Context, galleryID, photoID string) (bool, error) {
	galleryID, photoID, err := normalizePair(opRemoveFavorite, galleryID, photoID)
	if err != nil {
		return false, err
	}

	if s.remoteReady(ctx, opRemoveFavorite) {
		_, err := s.remote.Delete(ctx, recordstore.TableFavorites, []recordstore.Filter{
			recordstore.Eq(columnGalleryID, galleryID),
			recordstore.Eq(columnPhotoID, photoID),
		})
		if err == nil {
			s.publish(SelectionEvent{GalleryID: galleryID, Type: EventFavoriteRemoved, PhotoID: photoID})
			return true, nil
		}
		s.fallback(opRemoveFavorite, err, zap.String("gallery_id", galleryID), zap.String("photo_id", photoID))
	}

	if err := s.local.removeFavorite(ctx, galleryID, photoID); err != nil {
		s.logError(opRemoveFavorite, reasonLocalFailed, err, zap.String("gallery_id", galleryID))
		return false, nil
	}
	s.publish(SelectionEvent{GalleryID: galleryID, Type: EventFavoriteRemoved, PhotoID: photoID})
	return true, nil
}

// ClearAllFavorites removes every favorite of the gallery from both stores.
func (s *Service) ClearAllFavorites(ctx context.Context, galleryID string) (bool, error) {
	galleryID, err := normalizeID(opClearFavorites, reasonInvalidGallery, galleryID, ErrInvalidGalleryID)
	if err != nil {
		return false, err
	}

	ok := true
	if s.remoteReady(ctx, opClearFavorites) {
		if _, err := s.remote.Delete(ctx, recordstore.TableFavorites, []recordstore.Filter{
			recordstore.Eq(columnGalleryID, galleryID),
		}); err != nil {
			s.fallback(opClearFavorites, err, zap.String("gallery_id", galleryID))
			ok = false
		}
	}
	if err := s.local.clearFavorites(ctx, galleryID); err != nil {
		s.logError(opClearFavorites, reasonLocalFailed, err, zap.String("gallery_id", galleryID))
		ok = false
	}
	if ok {
		s.publish(SelectionEvent{GalleryID: galleryID, Type: EventFavoritesCleared})
	}
	return ok, nil
}

// IsFavorite reports whether anyone favorited photoID.
func (s *Service) IsFavorite(ctx context.Context, galleryID, photoID string) (bool, error) {
	favorites, err := s.Favorites(ctx, galleryID)
	if err != nil {
		return false, err
	}
	for _, favorite := range favorites {
		if favorite.PhotoID == photoID {
			return true, nil
		}
	}
	return false, nil
}

// MyFavorites returns the favorites made by the current principal: the
// session's user when logged in, otherwise this device.
func (s *Service) MyFavorites(ctx context.Context, galleryID string) ([]Favorite, error) {
	rows, err := s.FavoriteRows(ctx, galleryID)
	if err != nil {
		return nil, err
	}
	principal := s.identity.Principal(ctx)
	mine := make([]Favorite, 0, len(rows))
	for _, row := range rows {
		if principal.HasUser() {
			if row.UserID == principal.UserID {
				mine = append(mine, row)
			}
			continue
		}
		if row.DeviceID == principal.DeviceID {
			mine = append(mine, row)
		}
	}
	return DedupeFavorites(mine), nil
}

// FavoritesCount returns the number of distinct favorited photos.
func (s *Service) FavoritesCount(ctx context.Context, galleryID string) (int, error) {
	favorites, err := s.Favorites(ctx, galleryID)
	if err != nil {
		return 0, err
	}
	return len(favorites), nil
}

// remoteReady reports whether the shared store should serve the operation,
// running the one-shot migration first when it is.
func (s *Service) remoteReady(ctx context.Context, operation string) bool {
	if s.remote == nil {
		s.recordFallback(operation, reasonNotConfigured)
		return false
	}
	if err := s.remote.Ready(ctx); err != nil {
		s.fallback(operation, err)
		return false
	}
	s.ensureMigrated(ctx)
	return true
}

// fallback logs a failed shared-store call and records the switch to local data.
func (s *Service) fallback(operation string, err error, fields ...zap.Field) {
	if recordstore.IsUnavailable(err) {
		s.logger.Warn("shared store unavailable; using local store",
			append(fields, zap.String("operation", operation), zap.String("reason", reasonTransport), zap.Error(err))...)
		s.recordFallback(operation, reasonTransport)
		return
	}
	s.logError(operation, reasonUnexpected, err, fields...)
	s.recordFallback(operation, reasonUnexpected)
}

func (s *Service) recordFallback(operation, reason string) {
	if s.metrics != nil {
		s.metrics.Fallback(operation, reason)
	}
}

func (s *Service) publish(event SelectionEvent) {
	if s.events == nil {
		return
	}
	event.At = s.now()
	s.events.PublishSelectionEvent(event)
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	if s.logger == nil {
		return
	}
	allFields := append([]zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}, fields...)
	if err != nil {
		allFields = append(allFields, zap.Error(err))
	}
	s.logger.Error("favorites operation failed", allFields...)
}

func normalizePair(operation, galleryID, photoID string) (string, string, error) {
	galleryID, err := normalizeID(operation, reasonInvalidGallery, galleryID, ErrInvalidGalleryID)
	if err != nil {
		return "", "", err
	}
	photoID, err = normalizeID(operation, reasonInvalidPhoto, photoID, ErrInvalidPhotoID)
	if err != nil {
		return "", "", err
	}
	return galleryID, photoID, nil
}

func normalizeID(operation, reason, value string, sentinel error) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || len(trimmed) > maxIdentifierLength {
		return "", svcerr.New(operation, reason, sentinel)
	}
	return trimmed, nil
}
