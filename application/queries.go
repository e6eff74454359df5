package application

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Queries exposes the read accessors for applications.
type Queries struct {
	pool *pgxpool.Pool
}

func NewQueries(pool *pgxpool.Pool) *Queries {
	return &Queries{pool: pool}
}

// ListByStudent returns a student's applications, newest first.
func (q *Queries) ListByStudent(ctx context.Context, studentID string) ([]Record, error) {
	return q.list(ctx, `
		SELECT a.id, a.student_id, a.proposal_id, a.status::text, a.created_at, a.updated_at,
		       p.owner_id, p.title
		FROM applications a
		JOIN proposals p ON p.id = a.proposal_id
		WHERE a.student_id = $1
		ORDER BY a.created_at DESC
	`, studentID)
}

// ListByProposal returns the applications to one proposal, oldest first.
func (q *Queries) ListByProposal(ctx context.Context, proposalID string) ([]Record, error) {
	return q.list(ctx, `
		SELECT a.id, a.student_id, a.proposal_id, a.status::text, a.created_at, a.updated_at,
		       p.owner_id, p.title
		FROM applications a
		JOIN proposals p ON p.id = a.proposal_id
		WHERE a.proposal_id = $1
		ORDER BY a.created_at ASC
	`, proposalID)
}

// ListForOwner returns every application across a faculty member's proposals.
func (q *Queries) ListForOwner(ctx context.Context, ownerID string) ([]Record, error) {
	return q.list(ctx, `
		SELECT a.id, a.student_id, a.proposal_id, a.status::text, a.created_at, a.updated_at,
		       p.owner_id, p.title
		FROM applications a
		JOIN proposals p ON p.id = a.proposal_id
		WHERE p.owner_id = $1
		ORDER BY a.created_at DESC
	`, ownerID)
}

func (q *Queries) list(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := q.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("application: list: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

func collectRecords(rows pgx.Rows) ([]Record, error) {
	out := make([]Record, 0, 8)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.ID, &rec.StudentID, &rec.ProposalID, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt,
			&rec.ProposalOwnerID, &rec.ProposalTitle,
		); err != nil {
			return nil, fmt.Errorf("application: scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("application: iterate records: %w", err)
	}
	return out, nil
}
