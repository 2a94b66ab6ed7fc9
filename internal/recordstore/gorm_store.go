package recordstore

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opReady  = "ready"
	opSelect = "select"
	opInsert = "insert"
	opUpdate = "update"
	opDelete = "delete"
)

var errMissingDatabase = errors.New("database handle is required")

// GormStore implements Store over any gorm dialector.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps db. A nil handle yields a store that is never ready.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Ready pings the database.
func (s *GormStore) Ready(ctx context.Context) error {
	if s == nil || s.db == nil {
		return unavailable(opReady, "", errMissingDatabase)
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return unavailable(opReady, "", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return unavailable(opReady, "", err)
	}
	return nil
}

// Select returns rows matching every filter, sorted by the given orders.
func (s *GormStore) Select(ctx context.Context, table string, filters []Filter, order ...Order) ([]Row, error) {
	if err := validateIdentifiers(opSelect, table, filters, order, nil); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, unavailable(opSelect, table, errMissingDatabase)
	}

	query := applyFilters(s.db.WithContext(ctx).Table(table), filters)
	for _, sortOrder := range order {
		query = query.Order(clause.OrderByColumn{
			Column: clause.Column{Name: sortOrder.Column},
			Desc:   sortOrder.Descending,
		})
	}

	var results []map[string]any
	if err := query.Find(&results).Error; err != nil {
		return nil, unavailable(opSelect, table, err)
	}
	rows := make([]Row, 0, len(results))
	for _, result := range results {
		rows = append(rows, Row(result))
	}
	return rows, nil
}

// Insert stores row and returns it as written.
func (s *GormStore) Insert(ctx context.Context, table string, row Row) (Row, error) {
	if err := validateIdentifiers(opInsert, table, nil, nil, row); err != nil {
		return nil, err
	}
	if len(row) == 0 {
		return nil, invalid(opInsert, table, "empty row")
	}
	if s == nil || s.db == nil {
		return nil, unavailable(opInsert, table, errMissingDatabase)
	}
	values := make(map[string]any, len(row))
	for column, value := range row {
		values[column] = value
	}
	if err := s.db.WithContext(ctx).Table(table).Create(values).Error; err != nil {
		return nil, unavailable(opInsert, table, err)
	}
	return row, nil
}

// Update assigns values on rows matching every filter.
func (s *GormStore) Update(ctx context.Context, table string, filters []Filter, values Row) (int64, error) {
	if err := validateIdentifiers(opUpdate, table, filters, nil, values); err != nil {
		return 0, err
	}
	if len(filters) == 0 {
		return 0, invalid(opUpdate, table, "update requires at least one filter")
	}
	if len(values) == 0 {
		return 0, invalid(opUpdate, table, "no values")
	}
	if s == nil || s.db == nil {
		return 0, unavailable(opUpdate, table, errMissingDatabase)
	}
	result := applyFilters(s.db.WithContext(ctx).Table(table), filters).Updates(map[string]any(values))
	if result.Error != nil {
		return 0, unavailable(opUpdate, table, result.Error)
	}
	return result.RowsAffected, nil
}

// Delete removes rows matching every filter and reports how many were removed.
func (s *GormStore) Delete(ctx context.Context, table string, filters []Filter) (int64, error) {
	if err := validateIdentifiers(opDelete, table, filters, nil, nil); err != nil {
		return 0, err
	}
	if len(filters) == 0 {
		return 0, invalid(opDelete, table, "delete requires at least one filter")
	}
	if s == nil || s.db == nil {
		return 0, unavailable(opDelete, table, errMissingDatabase)
	}

	conditions := make([]string, 0, len(filters))
	args := make([]any, 0, len(filters))
	for _, filter := range filters {
		conditions = append(conditions, filter.Column+" = ?")
		args = append(args, filter.Value)
	}
	statement := "DELETE FROM " + table + " WHERE " + strings.Join(conditions, " AND ")
	result := s.db.WithContext(ctx).Exec(statement, args...)
	if result.Error != nil {
		return 0, unavailable(opDelete, table, result.Error)
	}
	return result.RowsAffected, nil
}

func applyFilters(query *gorm.DB, filters []Filter) *gorm.DB {
	for _, filter := range filters {
		query = query.Where(filter.Column+" = ?", filter.Value)
	}
	return query
}
