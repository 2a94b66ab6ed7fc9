package recordstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type testFavorite struct {
	ID        string `gorm:"column:id;primaryKey;size:64"`
	GalleryID string `gorm:"column:gallery_id;size:64;not null"`
	PhotoID   string `gorm:"column:photo_id;size:190;not null"`
	CreatedAt int64  `gorm:"column:created_at;not null"`
	Pinned    bool   `gorm:"column:pinned;not null;default:false"`
}

func (testFavorite) TableName() string {
	return TableFavorites
}

func mustGormStore(t *testing.T) (*GormStore, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "records.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&testFavorite{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return NewGormStore(db), db
}

func TestGormStoreInsertSelectOrdered(t *testing.T) {
	store, _ := mustGormStore(t)
	ctx := context.Background()

	rows := []Row{
		{"id": "f1", "gallery_id": "g1", "photo_id": "p1", "created_at": int64(100), "pinned": true},
		{"id": "f2", "gallery_id": "g1", "photo_id": "p2", "created_at": int64(300)},
		{"id": "f3", "gallery_id": "g2", "photo_id": "p1", "created_at": int64(200)},
	}
	for _, row := range rows {
		if _, err := store.Insert(ctx, TableFavorites, row); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	selected, err := store.Select(ctx, TableFavorites, []Filter{Eq("gallery_id", "g1")}, Desc("created_at"))
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if len(selected) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(selected))
	}
	if selected[0].String("id") != "f2" || selected[1].String("id") != "f1" {
		t.Fatalf("unexpected order: %v", selected)
	}
	if selected[1].Int64("created_at") != 100 {
		t.Fatalf("unexpected created_at %d", selected[1].Int64("created_at"))
	}
	if !selected[1].Bool("pinned") || selected[0].Bool("pinned") {
		t.Fatalf("unexpected pinned flags: %v", selected)
	}
}

func TestGormStoreUpdateAndDelete(t *testing.T) {
	store, _ := mustGormStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		photoID := "p1"
		if id == "c" {
			photoID = "p2"
		}
		if _, err := store.Insert(ctx, TableFavorites, Row{"id": id, "gallery_id": "g1", "photo_id": photoID, "created_at": int64(1)}); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	updated, err := store.Update(ctx, TableFavorites, []Filter{Eq("id", "c")}, Row{"created_at": int64(9)})
	if err != nil || updated != 1 {
		t.Fatalf("unexpected update result %d err=%v", updated, err)
	}

	removed, err := store.Delete(ctx, TableFavorites, []Filter{Eq("gallery_id", "g1"), Eq("photo_id", "p1")})
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected both p1 rows removed, got %d", removed)
	}

	remaining, err := store.Select(ctx, TableFavorites, nil)
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Int64("created_at") != 9 {
		t.Fatalf("unexpected remaining rows %v", remaining)
	}
}

func TestGormStoreRejectsInvalidQueries(t *testing.T) {
	store, _ := mustGormStore(t)
	ctx := context.Background()

	if _, err := store.Delete(ctx, TableFavorites, nil); !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("expected unfiltered delete to be rejected, got %v", err)
	}
	if _, err := store.Select(ctx, "favorites; DROP TABLE x", nil); !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("expected bad table name to be rejected, got %v", err)
	}
	if _, err := store.Select(ctx, TableFavorites, []Filter{Eq("photo_id OR 1=1", "x")}); !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("expected bad column to be rejected, got %v", err)
	}
	if IsUnavailable(ErrInvalidQuery) {
		t.Fatalf("invalid queries are not transport failures")
	}
}

func TestGormStoreReportsUnavailable(t *testing.T) {
	store, db := mustGormStore(t)
	ctx := context.Background()

	if err := store.Ready(ctx); err != nil {
		t.Fatalf("expected open store to be ready: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	if err := sqlDB.Close(); err != nil {
		t.Fatalf("failed to close sql db: %v", err)
	}

	if err := store.Ready(ctx); !IsUnavailable(err) {
		t.Fatalf("expected closed store to be unavailable, got %v", err)
	}
	_, err = store.Select(ctx, TableFavorites, nil)
	var storeErr *Error
	if !errors.As(err, &storeErr) || storeErr.Op != opSelect || !IsUnavailable(err) {
		t.Fatalf("expected unavailable select error, got %v", err)
	}

	var missing *GormStore
	if err := missing.Ready(ctx); !IsUnavailable(err) {
		t.Fatalf("nil store should never be ready, got %v", err)
	}
}
