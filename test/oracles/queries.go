package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

// All returns the invariant queries. Each query selects violating rows, so an
// empty result set means the invariant held at the moment of the check.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_seat_bounds",
			SQL: `SELECT id, seats_remaining, seat_capacity FROM proposals
                  WHERE seats_remaining < 0 OR seats_remaining > seat_capacity`,
		},
		{
			Name: "O2_application_cap",
			SQL: `SELECT student_id, COUNT(*) FROM applications
                  GROUP BY student_id HAVING COUNT(*) > 3`,
		},
		{
			Name: "O3_single_selection",
			SQL: `SELECT student_id, COUNT(*) FROM applications
                  WHERE status = 'selected'
                  GROUP BY student_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O4_panel_size",
			SQL: `SELECT p.id, COUNT(pr.reviewer_id) FROM proposals p
                  LEFT JOIN proposal_reviewers pr ON pr.proposal_id = p.id
                  GROUP BY p.id HAVING COUNT(pr.reviewer_id) <> 5`,
		},
		{
			Name: "O5_panel_excludes_owner",
			SQL: `SELECT pr.proposal_id FROM proposal_reviewers pr
                  JOIN proposals p ON p.id = pr.proposal_id
                  WHERE pr.reviewer_id = p.owner_id`,
		},
		{
			Name: "O6_review_provenance",
			SQL: `SELECT r.id FROM reviews r
                  WHERE NOT EXISTS (
                      SELECT 1 FROM proposal_reviewers pr
                      WHERE pr.proposal_id = r.proposal_id AND pr.reviewer_id = r.reviewer_id)`,
		},
		{
			Name: "O7_pending_load_reconciles",
			SQL: `SELECT u.id, u.pending_reviews FROM users u
                  WHERE u.role = 'faculty' AND u.pending_reviews <> (
                      SELECT COUNT(*) FROM proposal_reviewers pr
                      JOIN proposals p ON p.id = pr.proposal_id
                      WHERE pr.reviewer_id = u.id AND p.status = 'pending')`,
		},
		{
			Name: "O8_load_ceiling",
			SQL:  `SELECT id, pending_reviews FROM users WHERE pending_reviews > 7`,
		},
		{
			Name: "O9_consensus_state",
			SQL: `SELECT p.id, p.status, p.approvals FROM proposals p
                  WHERE (p.status = 'approved' AND p.approvals < 3)
                     OR (p.status = 'pending' AND p.approvals >= 3)
                     OR (p.status = 'rejected' AND NOT EXISTS (
                           SELECT 1 FROM reviews r
                           WHERE r.proposal_id = p.id AND r.decision = 'reject'))
                     OR (p.status = 'pending' AND EXISTS (
                           SELECT 1 FROM reviews r
                           WHERE r.proposal_id = p.id AND r.decision = 'reject'))`,
		},
		{
			Name: "O10_reject_feedback",
			SQL: `SELECT id FROM reviews
                  WHERE decision = 'reject' AND length(trim(feedback)) = 0`,
		},
		{
			Name: "O11_applications_on_approved_only",
			SQL: `SELECT a.id FROM applications a
                  JOIN proposals p ON p.id = a.proposal_id
                  WHERE p.status <> 'approved'`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row
// text) or an empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		if rows.Next() {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
