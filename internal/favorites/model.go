package favorites

import (
	"time"

	"github.com/MarcoPoloResearchLab/proofing/internal/recordstore"
)

// Column names shared by the favorites and comments tables.
const (
	columnID        = "id"
	columnGalleryID = "gallery_id"
	columnPhotoID   = "photo_id"
	columnDeviceID  = "device_id"
	columnUserID    = "user_id"
	columnUserName  = "user_name"
	columnComment   = "comment"
	columnCreatedAt = "created_at"
	columnUpdatedAt = "updated_at"
)

// FavoriteRecord is the schema of the shared favorites table. Timestamps are
// epoch milliseconds.
type FavoriteRecord struct {
	ID        string `gorm:"column:id;primaryKey;size:64"`
	GalleryID string `gorm:"column:gallery_id;size:190;not null;index:idx_favorites_gallery_photo,priority:1"`
	PhotoID   string `gorm:"column:photo_id;size:190;not null;index:idx_favorites_gallery_photo,priority:2"`
	DeviceID  string `gorm:"column:device_id;size:190;not null"`
	UserID    string `gorm:"column:user_id;size:190;not null;default:''"`
	UserName  string `gorm:"column:user_name;size:190;not null;default:''"`
	CreatedAt int64  `gorm:"column:created_at;not null;autoCreateTime:false"`
	UpdatedAt int64  `gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

// TableName provides the explicit table binding for GORM.
func (FavoriteRecord) TableName() string {
	return recordstore.TableFavorites
}

// CommentRecord is the schema of the shared comments table.
type CommentRecord struct {
	ID        string `gorm:"column:id;primaryKey;size:64"`
	GalleryID string `gorm:"column:gallery_id;size:190;not null;index:idx_comments_gallery_photo,priority:1"`
	PhotoID   string `gorm:"column:photo_id;size:190;not null;index:idx_comments_gallery_photo,priority:2"`
	Comment   string `gorm:"column:comment;type:text;not null"`
	DeviceID  string `gorm:"column:device_id;size:190;not null"`
	UserID    string `gorm:"column:user_id;size:190;not null;default:''"`
	UserName  string `gorm:"column:user_name;size:190;not null;default:''"`
	CreatedAt int64  `gorm:"column:created_at;not null;autoCreateTime:false"`
	UpdatedAt int64  `gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

// TableName provides the explicit table binding for GORM.
func (CommentRecord) TableName() string {
	return recordstore.TableComments
}

// Favorite is one client's mark on one photo.
type Favorite struct {
	ID        string    `json:"id"`
	GalleryID string    `json:"gallery_id"`
	PhotoID   string    `json:"photo_id"`
	DeviceID  string    `json:"device_id"`
	UserID    string    `json:"user_id,omitempty"`
	UserName  string    `json:"user_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Comment is free text attached to one photo.
type Comment struct {
	ID        string    `json:"id"`
	GalleryID string    `json:"gallery_id"`
	PhotoID   string    `json:"photo_id"`
	Comment   string    `json:"comment"`
	DeviceID  string    `json:"device_id"`
	UserID    string    `json:"user_id,omitempty"`
	UserName  string    `json:"user_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Event types published after successful mutations.
const (
	EventFavoriteAdded    = "favorite.added"
	EventFavoriteRemoved  = "favorite.removed"
	EventFavoritesCleared = "favorites.cleared"
	EventCommentAdded     = "comment.added"
	EventCommentRemoved   = "comment.removed"
)

// SelectionEvent notifies other viewers of a gallery that its selection changed.
type SelectionEvent struct {
	GalleryID string    `json:"gallery_id"`
	Type      string    `json:"type"`
	PhotoID   string    `json:"photo_id,omitempty"`
	CommentID string    `json:"comment_id,omitempty"`
	At        time.Time `json:"at"`
}

// DedupeFavorites collapses rows to one Favorite per photo, keeping the first
// occurrence in input order.
func DedupeFavorites(rows []Favorite) []Favorite {
	seen := make(map[string]struct{}, len(rows))
	unique := make([]Favorite, 0, len(rows))
	for _, row := range rows {
		if _, ok := seen[row.PhotoID]; ok {
			continue
		}
		seen[row.PhotoID] = struct{}{}
		unique = append(unique, row)
	}
	return unique
}

func favoriteFromRow(row recordstore.Row) Favorite {
	return Favorite{
		ID:        row.String(columnID),
		GalleryID: row.String(columnGalleryID),
		PhotoID:   row.String(columnPhotoID),
		DeviceID:  row.String(columnDeviceID),
		UserID:    row.String(columnUserID),
		UserName:  row.String(columnUserName),
		CreatedAt: row.Millis(columnCreatedAt),
		UpdatedAt: row.Millis(columnUpdatedAt),
	}
}

func (f Favorite) row() recordstore.Row {
	return recordstore.Row{
		columnID:        f.ID,
		columnGalleryID: f.GalleryID,
		columnPhotoID:   f.PhotoID,
		columnDeviceID:  f.DeviceID,
		columnUserID:    f.UserID,
		columnUserName:  f.UserName,
		columnCreatedAt: f.CreatedAt.UnixMilli(),
		columnUpdatedAt: f.UpdatedAt.UnixMilli(),
	}
}

func commentFromRow(row recordstore.Row) Comment {
	return Comment{
		ID:        row.String(columnID),
		GalleryID: row.String(columnGalleryID),
		PhotoID:   row.String(columnPhotoID),
		Comment:   row.String(columnComment),
		DeviceID:  row.String(columnDeviceID),
		UserID:    row.String(columnUserID),
		UserName:  row.String(columnUserName),
		CreatedAt: row.Millis(columnCreatedAt),
		UpdatedAt: row.Millis(columnUpdatedAt),
	}
}

func (c Comment) row() recordstore.Row {
	return recordstore.Row{
		columnID:        c.ID,
		columnGalleryID: c.GalleryID,
		columnPhotoID:   c.PhotoID,
		columnComment:   c.Comment,
		columnDeviceID:  c.DeviceID,
		columnUserID:    c.UserID,
		columnUserName:  c.UserName,
		columnCreatedAt: c.CreatedAt.UnixMilli(),
		columnUpdatedAt: c.UpdatedAt.UnixMilli(),
	}
}
