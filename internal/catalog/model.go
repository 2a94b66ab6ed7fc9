package catalog

import (
	"time"

	"github.com/MarcoPoloResearchLab/proofing/internal/recordstore"
)

const (
	columnID             = "id"
	columnGalleryID      = "gallery_id"
	columnName           = "name"
	columnDescription    = "description"
	columnPasswordHash   = "password_hash"
	columnAllowComments  = "allow_comments"
	columnAllowFavorites = "allow_favorites"
	columnOriginalName   = "original_name"
	columnSubfolder      = "subfolder"
	columnStoragePath    = "storage_path"
	columnURL            = "url"
	columnContentType    = "content_type"
	columnSizeBytes      = "size_bytes"
	columnCreatedAt      = "created_at"
	columnUpdatedAt      = "updated_at"
)

// GalleryRecord is the schema of the galleries table. Timestamps are epoch milliseconds.
type GalleryRecord struct {
	ID             string `gorm:"column:id;primaryKey;size:64"`
	Name           string `gorm:"column:name;size:190;not null"`
	Description    string `gorm:"column:description;type:text;not null;default:''"`
	PasswordHash   string `gorm:"column:password_hash;size:255;not null;default:''"`
	AllowComments  bool   `gorm:"column:allow_comments;not null;default:true"`
	AllowFavorites bool   `gorm:"column:allow_favorites;not null;default:true"`
	CreatedAt      int64  `gorm:"column:created_at;not null;autoCreateTime:false"`
	UpdatedAt      int64  `gorm:"column:updated_at;not null;default:0;autoUpdateTime:false"`
}

// TableName provides the explicit table binding for GORM.
func (GalleryRecord) TableName() string {
	return recordstore.TableGalleries
}

// PhotoRecord is the schema of the photos table.
type PhotoRecord struct {
	ID           string `gorm:"column:id;primaryKey;size:64"`
	GalleryID    string `gorm:"column:gallery_id;size:64;not null;index"`
	Name         string `gorm:"column:name;size:255;not null"`
	OriginalName string `gorm:"column:original_name;size:255;not null"`
	Subfolder    string `gorm:"column:subfolder;size:255;not null;default:''"`
	StoragePath  string `gorm:"column:storage_path;size:512;not null"`
	URL          string `gorm:"column:url;size:1024;not null"`
	ContentType  string `gorm:"column:content_type;size:128;not null;default:''"`
	SizeBytes    int64  `gorm:"column:size_bytes;not null;default:0"`
	CreatedAt    int64  `gorm:"column:created_at;not null;autoCreateTime:false"`
}

// TableName provides the explicit table binding for GORM.
func (PhotoRecord) TableName() string {
	return recordstore.TablePhotos
}

// Gallery is a named collection of photos.
type Gallery struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	PasswordProtected bool      `json:"password_protected"`
	AllowComments     bool      `json:"allow_comments"`
	AllowFavorites    bool      `json:"allow_favorites"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`

	passwordHash string
}

// Photo is one uploaded image.
type Photo struct {
	ID           string    `json:"id"`
	GalleryID    string    `json:"gallery_id"`
	Name         string    `json:"name"`
	OriginalName string    `json:"original_name"`
	Subfolder    string    `json:"subfolder,omitempty"`
	StoragePath  string    `json:"storage_path"`
	URL          string    `json:"url"`
	ContentType  string    `json:"content_type,omitempty"`
	SizeBytes    int64     `json:"size_bytes"`
	CreatedAt    time.Time `json:"created_at"`
}

func galleryFromRow(row recordstore.Row) Gallery {
	hash := row.String(columnPasswordHash)
	return Gallery{
		ID:                row.String(columnID),
		Name:              row.String(columnName),
		Description:       row.String(columnDescription),
		PasswordProtected: hash != "",
		AllowComments:     row.Bool(columnAllowComments),
		AllowFavorites:    row.Bool(columnAllowFavorites),
		CreatedAt:         row.Millis(columnCreatedAt),
		UpdatedAt:         row.Millis(columnUpdatedAt),
		passwordHash:      hash,
	}
}

func photoFromRow(row recordstore.Row) Photo {
	return Photo{
		ID:           row.String(columnID),
		GalleryID:    row.String(columnGalleryID),
		Name:         row.String(columnName),
		OriginalName: row.String(columnOriginalName),
		Subfolder:    row.String(columnSubfolder),
		StoragePath:  row.String(columnStoragePath),
		URL:          row.String(columnURL),
		ContentType:  row.String(columnContentType),
		SizeBytes:    row.Int64(columnSizeBytes),
		CreatedAt:    row.Millis(columnCreatedAt),
	}
}
