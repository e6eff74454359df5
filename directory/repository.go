package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound signals the requested faculty member does not exist.
var ErrNotFound = errors.New("directory: not found")

// Repository provides read access to the faculty directory.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID fetches a faculty member by primary key.
func (r *Repository) GetByID(ctx context.Context, id string) (Member, error) {
	const query = `
		SELECT id, full_name, research_area, pending_reviews, created_at
		FROM users
		WHERE id = $1 AND role = 'faculty'
	`

	var m Member
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&m.ID,
		&m.FullName,
		&m.ResearchArea,
		&m.PendingReviews,
		&m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Member{}, ErrNotFound
		}
		return Member{}, fmt.Errorf("directory: query by id: %w", err)
	}

	return m, nil
}

// ListArea fetches the faculty of one research area ordered by id. The id
// ordering is the same stable ordering the reviewer rotation relies on.
func (r *Repository) ListArea(ctx context.Context, area string) ([]Member, error) {
	const query = `
		SELECT id, full_name, research_area, pending_reviews, created_at
		FROM users
		WHERE role = 'faculty' AND research_area = $1
		ORDER BY id ASC
	`

	rows, err := r.pool.Query(ctx, query, area)
	if err != nil {
		return nil, fmt.Errorf("directory: list area: %w", err)
	}
	defer rows.Close()

	return collectMembers(rows)
}

// ListAll fetches every faculty member ordered by research area, then id.
func (r *Repository) ListAll(ctx context.Context) ([]Member, error) {
	const query = `
		SELECT id, full_name, research_area, pending_reviews, created_at
		FROM users
		WHERE role = 'faculty' AND research_area IS NOT NULL
		ORDER BY research_area ASC, id ASC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("directory: list all: %w", err)
	}
	defer rows.Close()

	return collectMembers(rows)
}

func collectMembers(rows pgx.Rows) ([]Member, error) {
	members := make([]Member, 0, 16)
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ID, &m.FullName, &m.ResearchArea, &m.PendingReviews, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("directory: scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("directory: iterate members: %w", err)
	}
	return members, nil
}
