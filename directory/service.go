package directory

import "context"

// MemberReader abstracts repository operations for the service.
type MemberReader interface {
	GetByID(ctx context.Context, id string) (Member, error)
	ListArea(ctx context.Context, area string) ([]Member, error)
	ListAll(ctx context.Context) ([]Member, error)
}

// Service exposes read-only directory operations.
type Service struct {
	repo MemberReader
}

// NewService builds a Service using the provided repository.
func NewService(repo MemberReader) *Service {
	return &Service{repo: repo}
}

// GetByID returns one faculty member.
func (s *Service) GetByID(ctx context.Context, id string) (Member, error) {
	return s.repo.GetByID(ctx, id)
}

// ListArea returns the faculty of a research area in rotation order.
func (s *Service) ListArea(ctx context.Context, area string) ([]Member, error) {
	return s.repo.ListArea(ctx, area)
}

// List returns all faculty grouped by research area.
func (s *Service) List(ctx context.Context) ([]AreaGroup, error) {
	members, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	groups := make([]AreaGroup, 0, 8)
	for _, m := range members {
		if len(groups) == 0 || groups[len(groups)-1].Area != m.ResearchArea {
			groups = append(groups, AreaGroup{Area: m.ResearchArea})
		}
		last := &groups[len(groups)-1]
		last.Members = append(last.Members, m)
	}
	return groups, nil
}
