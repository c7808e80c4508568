package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Scanner is the subset of sql.Row/sql.Rows needed to hydrate a record.
type Scanner interface {
	Scan(dest ...any) error
}

// Mapping describes how an entity type maps onto its table. Column order must
// match the Scan function. Every table carries an is_deleted flag and an id
// primary key.
type Mapping[T any] struct {
	Table   string
	Columns []string
	Scan    func(row Scanner) (T, error)
}

// Page is one page of a listing, 1-based.
type Page[T any] struct {
	Items    []T  `json:"items"`
	Page     int  `json:"page"`
	PerPage  int  `json:"per_page"`
	Total    int  `json:"total"`
	HasPrev  bool `json:"has_prev"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Repo provides soft-delete-aware reads and deletes over a single table.
// Entity stores embed it and add their own inserts and updates. Every read
// path excludes soft-deleted rows; only HardRemove touches them.
type Repo[T any] struct {
	db *sql.DB
	m  Mapping[T]
}

func NewRepo[T any](db *sql.DB, m Mapping[T]) *Repo[T] {
	return &Repo[T]{db: db, m: m}
}

func (r *Repo[T]) selectClause() string {
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(r.m.Columns, ", "), r.m.Table)
}

// FindByID returns the live record with the given surrogate id.
// Missing and soft-deleted rows both yield ErrNotFound.
func (r *Repo[T]) FindByID(ctx context.Context, id int) (T, error) {
	var zero T
	query := r.selectClause() + " WHERE id = $1 AND NOT is_deleted"
	record, err := r.m.Scan(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return zero, ErrNotFound
		}
		return zero, err
	}
	return record, nil
}

// FindBy returns the first live record matching the condition, which may use
// $1.. placeholders for args.
func (r *Repo[T]) FindBy(ctx context.Context, cond string, args ...any) (T, error) {
	var zero T
	query := r.selectClause() + " WHERE NOT is_deleted AND (" + cond + ") LIMIT 1"
	record, err := r.m.Scan(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return zero, ErrNotFound
		}
		return zero, err
	}
	return record, nil
}

// FilterBy returns all live records matching the condition, ordered by id.
// An empty condition returns every live record.
func (r *Repo[T]) FilterBy(ctx context.Context, cond string, args ...any) ([]T, error) {
	query := r.selectClause() + " WHERE NOT is_deleted"
	if strings.TrimSpace(cond) != "" {
		query += " AND (" + cond + ")"
	}
	query += " ORDER BY id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []T
	for rows.Next() {
		record, err := r.m.Scan(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Count returns the number of live records.
func (r *Repo[T]) Count(ctx context.Context) (int, error) {
	query := fmt.Sprintf("SELECT COUNT(1) FROM %s WHERE NOT is_deleted", r.m.Table)
	var total int
	if err := r.db.QueryRowContext(ctx, query).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// Paginate returns one page of live records, ordered by id. Pages are
// 1-based; perPage is clamped to maxPerPage; a page past the end yields an
// empty item list rather than an error.
func (r *Repo[T]) Paginate(ctx context.Context, page, perPage, maxPerPage int) (Page[T], error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 1
	}
	if maxPerPage > 0 && perPage > maxPerPage {
		perPage = maxPerPage
	}

	total, err := r.Count(ctx)
	if err != nil {
		return Page[T]{}, err
	}

	query := r.selectClause() + " WHERE NOT is_deleted ORDER BY id OFFSET $1 LIMIT $2"
	rows, err := r.db.QueryContext(ctx, query, (page-1)*perPage, perPage)
	if err != nil {
		return Page[T]{}, err
	}
	defer rows.Close()

	items := make([]T, 0, perPage)
	for rows.Next() {
		record, err := r.m.Scan(rows)
		if err != nil {
			return Page[T]{}, err
		}
		items = append(items, record)
	}
	if err := rows.Err(); err != nil {
		return Page[T]{}, err
	}

	result := Page[T]{
		Items:   items,
		Page:    page,
		PerPage: perPage,
		Total:   total,
		HasPrev: page > 1,
		HasNext: page*perPage < total,
	}
	if result.HasPrev {
		result.PrevPage = page - 1
	}
	if result.HasNext {
		result.NextPage = page + 1
	}
	return result, nil
}

// SoftDelete flips the deleted flag. Applying it to an already soft-deleted
// record is a no-op; only a physically absent row is an error.
func (r *Repo[T]) SoftDelete(ctx context.Context, id int) error {
	query := fmt.Sprintf("UPDATE %s SET is_deleted = TRUE WHERE id = $1", r.m.Table)
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// HardRemove physically erases the row. Cleanup tooling only; auth flows
// never call it.
func (r *Repo[T]) HardRemove(ctx context.Context, id int) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", r.m.Table)
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
