package favorites

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/proofing/internal/identity"
	"github.com/MarcoPoloResearchLab/proofing/internal/localstore"
)

// localComment is the device-local comment shape, keyed by gallery id in
// the proofing_comments entry.
type localComment struct {
	ID        string `json:"id"`
	PhotoID   string `json:"photoId"`
	Comment   string `json:"comment"`
	DeviceID  string `json:"deviceId"`
	UserID    string `json:"userId,omitempty"`
	UserName  string `json:"userName,omitempty"`
	CreatedAt int64  `json:"createdAt"`
}

// localFavorites maps a gallery id to the favorited photo ids in insertion order.
type localFavorites map[string][]string

// localComments maps a gallery id to its comments in insertion order.
type localComments map[string][]localComment

// legacyStore reads and writes the device-local schema.
type legacyStore struct {
	kv    KeyValueStore
	clock func() time.Time

	mu sync.Mutex
}

func (l *legacyStore) loadFavorites(ctx context.Context) (localFavorites, error) {
	favorites := localFavorites{}
	if err := l.load(ctx, localstore.KeyFavorites, &favorites); err != nil {
		return localFavorites{}, err
	}
	return favorites, nil
}

func (l *legacyStore) loadComments(ctx context.Context) (localComments, error) {
	comments := localComments{}
	if err := l.load(ctx, localstore.KeyComments, &comments); err != nil {
		return localComments{}, err
	}
	return comments, nil
}

func (l *legacyStore) load(ctx context.Context, key string, target any) error {
	raw, ok, err := l.kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), target); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (l *legacyStore) save(ctx context.Context, key string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return l.kv.Set(ctx, key, string(encoded))
}

func (l *legacyStore) favorites(ctx context.Context, galleryID string, principal identity.Principal) ([]Favorite, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	stored, err := l.loadFavorites(ctx)
	if err != nil {
		return nil, err
	}
	now := l.clock().UTC()
	photoIDs := stored[galleryID]
	result := make([]Favorite, 0, len(photoIDs))
	for _, photoID := range photoIDs {
		result = append(result, localFavorite(galleryID, photoID, principal, now))
	}
	return result, nil
}

func (l *legacyStore) addFavorite(ctx context.Context, galleryID, photoID string, principal identity.Principal) (Favorite, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	stored, err := l.loadFavorites(ctx)
	if err != nil {
		return Favorite{}, err
	}
	favorite := localFavorite(galleryID, photoID, principal, l.clock().UTC())
	if slices.Contains(stored[galleryID], photoID) {
		return favorite, nil
	}
	stored[galleryID] = append(stored[galleryID], photoID)
	if err := l.save(ctx, localstore.KeyFavorites, stored); err != nil {
		return Favorite{}, err
	}
	return favorite, nil
}

func (l *legacyStore) removeFavorite(ctx context.Context, galleryID, photoID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	stored, err := l.loadFavorites(ctx)
	if err != nil {
		return err
	}
	remaining := make([]string, 0, len(stored[galleryID]))
	for _, candidate := range stored[galleryID] {
		if candidate != photoID {
			remaining = append(remaining, candidate)
		}
	}
	if len(remaining) == 0 {
		delete(stored, galleryID)
	} else {
		stored[galleryID] = remaining
	}
	return l.save(ctx, localstore.KeyFavorites, stored)
}

func (l *legacyStore) clearFavorites(ctx context.Context, galleryID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	stored, err := l.loadFavorites(ctx)
	if err != nil {
		return err
	}
	if _, ok := stored[galleryID]; !ok {
		return nil
	}
	delete(stored, galleryID)
	return l.save(ctx, localstore.KeyFavorites, stored)
}

func (l *legacyStore) comments(ctx context.Context, galleryID string) ([]Comment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	stored, err := l.loadComments(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]Comment, 0, len(stored[galleryID]))
	for _, comment := range stored[galleryID] {
		result = append(result, comment.toComment(galleryID))
	}
	return result, nil
}

func (l *legacyStore) addComment(ctx context.Context, comment Comment) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	stored, err := l.loadComments(ctx)
	if err != nil {
		return err
	}
	stored[comment.GalleryID] = append(stored[comment.GalleryID], localComment{
		ID:        comment.ID,
		PhotoID:   comment.PhotoID,
		Comment:   comment.Comment,
		DeviceID:  comment.DeviceID,
		UserID:    comment.UserID,
		UserName:  comment.UserName,
		CreatedAt: comment.CreatedAt.UnixMilli(),
	})
	return l.save(ctx, localstore.KeyComments, stored)
}

// removeComment deletes the comment with commentID written by deviceID and
// returns the gallery it belonged to. An empty galleryID matches any gallery.
func (l *legacyStore) removeComment(ctx context.Context, galleryID, commentID, deviceID string) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	stored, err := l.loadComments(ctx)
	if err != nil {
		return "", false, err
	}
	for storedGalleryID, comments := range stored {
		if galleryID != "" && storedGalleryID != galleryID {
			continue
		}
		for index, comment := range comments {
			if comment.ID != commentID || comment.DeviceID != deviceID {
				continue
			}
			stored[storedGalleryID] = append(comments[:index:index], comments[index+1:]...)
			if len(stored[storedGalleryID]) == 0 {
				delete(stored, storedGalleryID)
			}
			if err := l.save(ctx, localstore.KeyComments, stored); err != nil {
				return "", false, err
			}
			return storedGalleryID, true, nil
		}
	}
	return "", false, nil
}

// snapshot returns both local collections for migration, galleries sorted.
func (l *legacyStore) snapshot(ctx context.Context) (localFavorites, localComments, []string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	favorites, err := l.loadFavorites(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	comments, err := l.loadComments(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	seen := make(map[string]struct{})
	galleries := make([]string, 0, len(favorites)+len(comments))
	for galleryID := range favorites {
		seen[galleryID] = struct{}{}
		galleries = append(galleries, galleryID)
	}
	for galleryID := range comments {
		if _, ok := seen[galleryID]; !ok {
			galleries = append(galleries, galleryID)
		}
	}
	sort.Strings(galleries)
	return favorites, comments, galleries, nil
}

// migratedEntries records what one migration pass wrote to the shared store:
// photo ids and local comment ids, both keyed by gallery id.
type migratedEntries struct {
	favorites map[string]map[string]struct{}
	comments  map[string]map[string]struct{}
}

func newMigratedEntries() migratedEntries {
	return migratedEntries{
		favorites: make(map[string]map[string]struct{}),
		comments:  make(map[string]map[string]struct{}),
	}
}

func (m migratedEntries) addFavorite(galleryID, photoID string) {
	markEntry(m.favorites, galleryID, photoID)
}

func (m migratedEntries) addComment(galleryID, commentID string) {
	markEntry(m.comments, galleryID, commentID)
}

func (m migratedEntries) empty() bool {
	return len(m.favorites) == 0 && len(m.comments) == 0
}

func markEntry(entries map[string]map[string]struct{}, galleryID, id string) {
	if entries[galleryID] == nil {
		entries[galleryID] = make(map[string]struct{})
	}
	entries[galleryID][id] = struct{}{}
}

func hasEntry(entries map[string]map[string]struct{}, galleryID, id string) bool {
	_, ok := entries[galleryID][id]
	return ok
}

// settle moves migrated entries from the live keys to their backup keys, so
// only entries that failed stay behind for the next pass. A live key left
// empty with no earlier backup is renamed as a whole.
func (l *legacyStore) settle(ctx context.Context, migrated migratedEntries) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.settleFavorites(ctx, migrated); err != nil {
		return fmt.Errorf("settle %s: %w", localstore.KeyFavorites, err)
	}
	if err := l.settleComments(ctx, migrated); err != nil {
		return fmt.Errorf("settle %s: %w", localstore.KeyComments, err)
	}
	return nil
}

func (l *legacyStore) settleFavorites(ctx context.Context, migrated migratedEntries) error {
	live, err := l.loadFavorites(ctx)
	if err != nil {
		return err
	}
	moved, kept := localFavorites{}, localFavorites{}
	for galleryID, photoIDs := range live {
		for _, photoID := range photoIDs {
			if hasEntry(migrated.favorites, galleryID, photoID) {
				moved[galleryID] = append(moved[galleryID], photoID)
			} else {
				kept[galleryID] = append(kept[galleryID], photoID)
			}
		}
	}
	if len(moved) == 0 {
		return nil
	}
	backupKey := localstore.KeyFavorites + localstore.BackupSuffix
	renamed, err := l.renameWhenSettled(ctx, localstore.KeyFavorites, backupKey, len(kept) == 0)
	if err != nil || renamed {
		return err
	}
	backup := localFavorites{}
	if err := l.load(ctx, backupKey, &backup); err != nil {
		return err
	}
	for galleryID, photoIDs := range moved {
		for _, photoID := range photoIDs {
			if !slices.Contains(backup[galleryID], photoID) {
				backup[galleryID] = append(backup[galleryID], photoID)
			}
		}
	}
	if err := l.save(ctx, backupKey, backup); err != nil {
		return err
	}
	return l.saveOrDelete(ctx, localstore.KeyFavorites, kept, len(kept) == 0)
}

func (l *legacyStore) settleComments(ctx context.Context, migrated migratedEntries) error {
	live, err := l.loadComments(ctx)
	if err != nil {
		return err
	}
	moved, kept := localComments{}, localComments{}
	for galleryID, comments := range live {
		for _, comment := range comments {
			if hasEntry(migrated.comments, galleryID, comment.ID) {
				moved[galleryID] = append(moved[galleryID], comment)
			} else {
				kept[galleryID] = append(kept[galleryID], comment)
			}
		}
	}
	if len(moved) == 0 {
		return nil
	}
	backupKey := localstore.KeyComments + localstore.BackupSuffix
	renamed, err := l.renameWhenSettled(ctx, localstore.KeyComments, backupKey, len(kept) == 0)
	if err != nil || renamed {
		return err
	}
	backup := localComments{}
	if err := l.load(ctx, backupKey, &backup); err != nil {
		return err
	}
	for galleryID, comments := range moved {
		backup[galleryID] = append(backup[galleryID], comments...)
	}
	if err := l.save(ctx, backupKey, backup); err != nil {
		return err
	}
	return l.saveOrDelete(ctx, localstore.KeyComments, kept, len(kept) == 0)
}

// renameWhenSettled renames key to backupKey when nothing is left to migrate
// and no backup exists yet.
func (l *legacyStore) renameWhenSettled(ctx context.Context, key, backupKey string, settled bool) (bool, error) {
	if !settled {
		return false, nil
	}
	_, exists, err := l.kv.Get(ctx, backupKey)
	if err != nil || exists {
		return false, err
	}
	if err := l.kv.Rename(ctx, key, backupKey); err != nil {
		return false, err
	}
	return true, nil
}

func (l *legacyStore) saveOrDelete(ctx context.Context, key string, value any, empty bool) error {
	if empty {
		return l.kv.Delete(ctx, key)
	}
	return l.save(ctx, key, value)
}

func (c localComment) toComment(galleryID string) Comment {
	created := time.UnixMilli(c.CreatedAt).UTC()
	return Comment{
		ID:        c.ID,
		GalleryID: galleryID,
		PhotoID:   c.PhotoID,
		Comment:   c.Comment,
		DeviceID:  c.DeviceID,
		UserID:    c.UserID,
		UserName:  c.UserName,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func localFavorite(galleryID, photoID string, principal identity.Principal, now time.Time) Favorite {
	return Favorite{
		ID:        fmt.Sprintf("local_%s_%s", galleryID, photoID),
		GalleryID: galleryID,
		PhotoID:   photoID,
		DeviceID:  principal.DeviceID,
		UserID:    principal.UserID,
		UserName:  principal.UserName,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
