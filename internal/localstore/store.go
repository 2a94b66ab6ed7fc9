// Package localstore persists per-device key/value entries, the device-local
// counterpart of the shared record store.
package localstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Keys written by the proofing runtime.
const (
	KeyDeviceID      = "proofing_device_id"
	KeyUserSession   = "proofing_user_session"
	KeyFavorites     = "proofing_favorites"
	KeyComments      = "proofing_comments"
	KeyEmailSettings = "proofing_email_settings"

	// BackupSuffix is appended to keys preserved after a migration.
	BackupSuffix = "-backup"
)

var (
	// ErrInvalidKey indicates an empty key.
	ErrInvalidKey = errors.New("localstore: invalid key")
	// ErrClosed indicates the store has no open database.
	ErrClosed = errors.New("localstore: store is closed")
)

// Entry is one persisted key/value pair.
type Entry struct {
	Key             string `gorm:"column:entry_key;primaryKey;size:190;not null"`
	Value           string `gorm:"column:entry_value;type:text;not null"`
	UpdatedAtMillis int64  `gorm:"column:updated_at_ms;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Entry) TableName() string {
	return "local_entries"
}

// Store is a key/value store backed by a SQLite file private to this device.
type Store struct {
	db    *gorm.DB
	clock func() time.Time
}

// Open creates or opens the SQLite file at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("localstore: path is required")
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, err
	}
	return &Store{db: db, clock: time.Now}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Get returns the value stored at key and whether it exists.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if err := s.check(key); err != nil {
		return "", false, err
	}
	var entry Entry
	err := s.db.WithContext(ctx).Where("entry_key = ?", key).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return entry.Value, true, nil
}

// Set stores value at key, replacing any previous value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.check(key); err != nil {
		return err
	}
	entry := Entry{Key: key, Value: value, UpdatedAtMillis: s.clock().UTC().UnixMilli()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"entry_value", "updated_at_ms"}),
	}).Create(&entry).Error
}

// Delete removes key; deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.check(key); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Where("entry_key = ?", key).Delete(&Entry{}).Error
}

// Rename moves the value at from to to, overwriting to. A missing source is a no-op.
func (s *Store) Rename(ctx context.Context, from, to string) error {
	if err := s.check(from); err != nil {
		return err
	}
	if err := s.check(to); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		var entry Entry
		err := transaction.Where("entry_key = ?", from).Take(&entry).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		moved := Entry{Key: to, Value: entry.Value, UpdatedAtMillis: s.clock().UTC().UnixMilli()}
		if err := transaction.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "entry_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"entry_value", "updated_at_ms"}),
		}).Create(&moved).Error; err != nil {
			return err
		}
		return transaction.Where("entry_key = ?", from).Delete(&Entry{}).Error
	})
}

// Keys lists every stored key in lexical order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	var keys []string
	if err := s.db.WithContext(ctx).Model(&Entry{}).Order("entry_key ASC").Pluck("entry_key", &keys).Error; err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *Store) check(key string) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	return nil
}
