package favorites

import (
	"context"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/proofing/internal/identity"
	"github.com/MarcoPoloResearchLab/proofing/internal/recordstore"
	"github.com/MarcoPoloResearchLab/proofing/internal/svcerr"
	"go.uber.org/zap"
)

const (
	migrationOutcomeCompleted = "completed"
	migrationOutcomeFailed    = "failed"
)

// MigrationState remembers whether this process already moved the local
// favorites and comments into the shared store. It is never persisted, so a
// new process migrates again if local data remains.
type MigrationState struct {
	run       sync.Mutex
	mu        sync.Mutex
	completed bool
}

// Completed reports whether a migration finished without failures.
func (m *MigrationState) Completed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completed
}

// Reset forgets a completed migration.
func (m *MigrationState) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = false
}

func (m *MigrationState) markCompleted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = true
}

// MigrationReport summarizes one migration pass.
type MigrationReport struct {
	FavoritesMigrated int  `json:"favorites_migrated"`
	FavoritesSkipped  int  `json:"favorites_skipped"`
	CommentsMigrated  int  `json:"comments_migrated"`
	Failed            int  `json:"failed"`
	Completed         bool `json:"completed"`
}

// Migrate copies local favorites and comments into the shared store. Every
// entry written moves to the backup keys; failed entries stay for a retry.
func (s *Service) Migrate(ctx context.Context) (MigrationReport, error) {
	if s.remote == nil {
		return MigrationReport{}, svcerr.New(opMigrate, reasonNotConfigured, ErrRemoteNotConfigured)
	}
	if err := s.remote.Ready(ctx); err != nil {
		s.fallback(opMigrate, err)
		return MigrationReport{}, svcerr.New(opMigrate, reasonTransport, err)
	}
	s.migration.run.Lock()
	defer s.migration.run.Unlock()
	return s.migrate(ctx), nil
}

func (s *Service) ensureMigrated(ctx context.Context) {
	if s.migration.Completed() {
		return
	}
	s.migration.run.Lock()
	defer s.migration.run.Unlock()
	if s.migration.Completed() {
		return
	}
	s.migrate(ctx)
}

// migrate runs one pass; the caller holds the run lock.
func (s *Service) migrate(ctx context.Context) MigrationReport {
	report := MigrationReport{}
	favorites, comments, galleries, err := s.local.snapshot(ctx)
	if err != nil {
		s.logError(opMigrate, "local_read_failed", err)
		report.Failed++
		s.finishMigration(&report)
		return report
	}

	principal := s.identity.Principal(ctx)
	migrated := newMigratedEntries()
	for _, galleryID := range galleries {
		for _, photoID := range favorites[galleryID] {
			inserted, err := s.migrateFavorite(ctx, galleryID, photoID, principal)
			switch {
			case err != nil:
				report.Failed++
				s.logError(opMigrate, "favorite_insert_failed", err,
					zap.String("gallery_id", galleryID), zap.String("photo_id", photoID))
				continue
			case inserted:
				report.FavoritesMigrated++
			default:
				report.FavoritesSkipped++
			}
			migrated.addFavorite(galleryID, photoID)
		}
		for _, comment := range comments[galleryID] {
			if err := s.migrateComment(ctx, comment.toComment(galleryID)); err != nil {
				report.Failed++
				s.logError(opMigrate, "comment_insert_failed", err,
					zap.String("gallery_id", galleryID), zap.String("comment_id", comment.ID))
				continue
			}
			report.CommentsMigrated++
			migrated.addComment(galleryID, comment.ID)
		}
	}

	// Migrated entries leave the live keys even when others failed, so a
	// retry only pushes what is left.
	if !migrated.empty() {
		if err := s.local.settle(ctx, migrated); err != nil {
			report.Failed++
			s.logError(opMigrate, "local_archive_failed", err)
		}
	}
	s.finishMigration(&report)
	return report
}

func (s *Service) finishMigration(report *MigrationReport) {
	if report.Failed > 0 {
		s.logger.Warn("local data migration incomplete; it will be retried",
			zap.Int("failed", report.Failed),
			zap.Int("favorites_migrated", report.FavoritesMigrated),
			zap.Int("comments_migrated", report.CommentsMigrated))
		if s.metrics != nil {
			s.metrics.Migration(migrationOutcomeFailed)
		}
		return
	}
	report.Completed = true
	s.migration.markCompleted()
	if report.FavoritesMigrated+report.FavoritesSkipped+report.CommentsMigrated > 0 {
		s.logger.Info("local data migrated to shared store",
			zap.Int("favorites_migrated", report.FavoritesMigrated),
			zap.Int("favorites_skipped", report.FavoritesSkipped),
			zap.Int("comments_migrated", report.CommentsMigrated))
	}
	if s.metrics != nil {
		s.metrics.Migration(migrationOutcomeCompleted)
	}
}

// migrateFavorite inserts the favorite unless the photo is already favorited
// in the shared store.
func (s *Service) migrateFavorite(ctx context.Context, galleryID, photoID string, principal identity.Principal) (bool, error) {
	existing, err := s.remote.Select(ctx, recordstore.TableFavorites, []recordstore.Filter{
		recordstore.Eq(columnGalleryID, galleryID),
		recordstore.Eq(columnPhotoID, photoID),
	})
	if err != nil {
		return false, err
	}
	if len(existing) > 0 {
		return false, nil
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		return false, err
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
		return false, err
	}
	return true, nil
}

// migrateComment inserts the comment under a fresh id. Comments carry no
// natural key, so two concurrent migrations of the same data duplicate them.
func (s *Service) migrateComment(ctx context.Context, comment Comment) error {
	id, err := s.idProvider.NewID()
	if err != nil {
		return err
	}
	comment.ID = id
	if comment.CreatedAt.IsZero() || comment.CreatedAt.Equal(time.UnixMilli(0).UTC()) {
		comment.CreatedAt = s.now()
	}
	comment.UpdatedAt = s.now()
	_, err = s.remote.Insert(ctx, recordstore.TableComments, comment.row())
	return err
}
