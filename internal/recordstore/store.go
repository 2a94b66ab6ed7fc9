// Package recordstore adapts the shared relational store behind a generic
// table/filter interface.
package recordstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Table names consumed by the proofing services.
const (
	TableGalleries = "galleries"
	TablePhotos    = "photos"
	TableFavorites = "favorites"
	TableComments  = "comments"
)

var (
	// ErrUnavailable marks failures reaching or using the shared store.
	// Callers treat it as the signal to fall back to device-local data.
	ErrUnavailable = errors.New("recordstore: shared store unavailable")
	// ErrInvalidQuery marks malformed requests (bad identifiers, unfiltered deletes).
	ErrInvalidQuery = errors.New("recordstore: invalid query")
)

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Row is a single record keyed by column name.
type Row map[string]any

// Filter matches rows whose Column equals Value.
type Filter struct {
	Column string
	Value  any
}

// Eq builds an equality filter.
func Eq(column string, value any) Filter {
	return Filter{Column: column, Value: value}
}

// Order sorts selected rows by Column.
type Order struct {
	Column     string
	Descending bool
}

// Asc orders by column ascending.
func Asc(column string) Order {
	return Order{Column: column}
}

// Desc orders by column descending.
func Desc(column string) Order {
	return Order{Column: column, Descending: true}
}

// Store is the record store contract consumed by catalog and favorites.
type Store interface {
	Ready(ctx context.Context) error
	Select(ctx context.Context, table string, filters []Filter, order ...Order) ([]Row, error)
	Insert(ctx context.Context, table string, row Row) (Row, error)
	Update(ctx context.Context, table string, filters []Filter, values Row) (int64, error)
	Delete(ctx context.Context, table string, filters []Filter) (int64, error)
}

// Error describes a failed store operation.
type Error struct {
	Op    string
	Table string
	Err   error
}

func (e *Error) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("recordstore %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("recordstore %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsUnavailable reports whether err is a transport-class failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

func unavailable(op, table string, cause error) error {
	return &Error{Op: op, Table: table, Err: fmt.Errorf("%w: %v", ErrUnavailable, cause)}
}

func invalid(op, table, detail string) error {
	return &Error{Op: op, Table: table, Err: fmt.Errorf("%w: %s", ErrInvalidQuery, detail)}
}

func validateIdentifiers(op, table string, filters []Filter, orders []Order, values Row) error {
	if !identifierPattern.MatchString(table) {
		return invalid(op, table, "table name")
	}
	for _, filter := range filters {
		if !identifierPattern.MatchString(filter.Column) {
			return invalid(op, table, fmt.Sprintf("filter column %q", filter.Column))
		}
	}
	for _, order := range orders {
		if !identifierPattern.MatchString(order.Column) {
			return invalid(op, table, fmt.Sprintf("order column %q", order.Column))
		}
	}
	for column := range values {
		if !identifierPattern.MatchString(column) {
			return invalid(op, table, fmt.Sprintf("column %q", column))
		}
	}
	return nil
}
