package directory

import "time"

// Member captures the subset of faculty data exposed via the public API layer.
type Member struct {
	ID             string
	FullName       string
	ResearchArea   string
	PendingReviews int
	CreatedAt      time.Time
}

// AreaGroup bundles the faculty of one research area, ordered by identifier.
type AreaGroup struct {
	Area    string
	Members []Member
}
