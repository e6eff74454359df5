package proposal

import "errors"

var (
	// ErrInsufficientReviewers signals fewer than PanelSize eligible faculty in the area.
	ErrInsufficientReviewers = errors.New("proposal: not enough eligible reviewers in area")
	// ErrWorkloadExceeded signals a selected reviewer already at the load ceiling.
	ErrWorkloadExceeded = errors.New("proposal: reviewer workload ceiling reached")
)

// panelFor selects the reviewer panel from the area ring. The ring holds the
// area's faculty excluding the proposer, sorted by id; prior is the number of
// proposals previously submitted in the area. Successive proposals advance the
// ring by PanelSize positions so panel duty rotates evenly instead of always
// landing on the first five identifiers.
func panelFor(ring []Candidate, prior int) ([]Candidate, error) {
	if len(ring) < PanelSize {
		return nil, ErrInsufficientReviewers
	}

	offset := (prior * PanelSize) % len(ring)
	panel := make([]Candidate, 0, PanelSize)
	for i := 0; i < PanelSize; i++ {
		panel = append(panel, ring[(offset+i)%len(ring)])
	}

	for _, c := range panel {
		if c.PendingReviews >= LoadCeiling {
			return nil, ErrWorkloadExceeded
		}
	}
	return panel, nil
}
