package proposal

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Queries exposes the read accessors for proposals. Reads run without locks
// against committed snapshots.
type Queries struct {
	pool *pgxpool.Pool
}

func NewQueries(pool *pgxpool.Pool) *Queries {
	return &Queries{pool: pool}
}

const proposalColumns = `id, owner_id, research_area, title, summary, status::text, seat_capacity, seats_remaining, approvals, created_at, updated_at`

// Get returns a proposal with its panel and recorded reviews.
func (q *Queries) Get(ctx context.Context, proposalID string) (Detail, error) {
	p, err := scanProposal(q.pool.QueryRow(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE id = $1`, proposalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Detail{}, ErrNotFound
		}
		return Detail{}, fmt.Errorf("proposal: get: %w", err)
	}

	detail := Detail{Proposal: p}

	panelRows, err := q.pool.Query(ctx, `
		SELECT reviewer_id FROM proposal_reviewers WHERE proposal_id = $1 ORDER BY position ASC
	`, proposalID)
	if err != nil {
		return Detail{}, fmt.Errorf("proposal: get panel: %w", err)
	}
	defer panelRows.Close()
	for panelRows.Next() {
		var id string
		if err := panelRows.Scan(&id); err != nil {
			return Detail{}, fmt.Errorf("proposal: scan panel: %w", err)
		}
		detail.Panel = append(detail.Panel, id)
	}
	if err := panelRows.Err(); err != nil {
		return Detail{}, fmt.Errorf("proposal: iterate panel: %w", err)
	}

	reviewRows, err := q.pool.Query(ctx, `
		SELECT id, proposal_id, reviewer_id, decision::text, feedback, created_at
		FROM reviews
		WHERE proposal_id = $1
		ORDER BY created_at ASC
	`, proposalID)
	if err != nil {
		return Detail{}, fmt.Errorf("proposal: get reviews: %w", err)
	}
	defer reviewRows.Close()
	for reviewRows.Next() {
		var rev Review
		if err := reviewRows.Scan(&rev.ID, &rev.ProposalID, &rev.ReviewerID, &rev.Decision, &rev.Feedback, &rev.CreatedAt); err != nil {
			return Detail{}, fmt.Errorf("proposal: scan review: %w", err)
		}
		detail.Reviews = append(detail.Reviews, rev)
	}
	if err := reviewRows.Err(); err != nil {
		return Detail{}, fmt.Errorf("proposal: iterate reviews: %w", err)
	}

	return detail, nil
}

// ListByStatus returns proposals in a lifecycle status, newest first.
func (q *Queries) ListByStatus(ctx context.Context, status Status) ([]Proposal, error) {
	return q.list(ctx, `
		SELECT `+proposalColumns+`
		FROM proposals
		WHERE status = $1::proposal_status
		ORDER BY created_at DESC
	`, status)
}

// ListByOwner returns a faculty member's own proposals, newest first.
func (q *Queries) ListByOwner(ctx context.Context, ownerID string) ([]Proposal, error) {
	return q.list(ctx, `
		SELECT `+proposalColumns+`
		FROM proposals
		WHERE owner_id = $1
		ORDER BY created_at DESC
	`, ownerID)
}

// ListForReviewer returns pending proposals awaiting the reviewer's decision.
func (q *Queries) ListForReviewer(ctx context.Context, reviewerID string) ([]Proposal, error) {
	return q.list(ctx, `
		SELECT `+proposalColumnsPrefixed("p")+`
		FROM proposals p
		JOIN proposal_reviewers pr ON pr.proposal_id = p.id
		WHERE pr.reviewer_id = $1
		  AND p.status = 'pending'
		  AND NOT EXISTS (
		      SELECT 1 FROM reviews v
		      WHERE v.proposal_id = p.id AND v.reviewer_id = pr.reviewer_id
		  )
		ORDER BY p.created_at ASC
	`, reviewerID)
}

func (q *Queries) list(ctx context.Context, query string, args ...any) ([]Proposal, error) {
	rows, err := q.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("proposal: list: %w", err)
	}
	defer rows.Close()

	out := make([]Proposal, 0, 16)
	for rows.Next() {
		var p Proposal
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.ResearchArea, &p.Title, &p.Summary, &p.Status, &p.SeatCapacity, &p.SeatsRemaining, &p.Approvals, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("proposal: scan: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("proposal: iterate: %w", err)
	}
	return out, nil
}

func proposalColumnsPrefixed(alias string) string {
	return alias + `.id, ` + alias + `.owner_id, ` + alias + `.research_area, ` + alias + `.title, ` + alias + `.summary, ` +
		alias + `.status::text, ` + alias + `.seat_capacity, ` + alias + `.seats_remaining, ` + alias + `.approvals, ` +
		alias + `.created_at, ` + alias + `.updated_at`
}
