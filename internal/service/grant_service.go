package service

import (
	"context"

	"github.com/disrupton/collaborators/internal/domain"
	"github.com/disrupton/collaborators/internal/repository"
)

// GrantService exposes the ledger's read side for the admin surface.
type GrantService interface {
	GetGrant(ctx context.Context, grantID string) (*domain.AccessGrant, error)
	ListGrants(ctx context.Context, limit, offset int) ([]domain.AccessGrant, error)
	ListGrantsByUser(ctx context.Context, userID string, limit, offset int) ([]domain.AccessGrant, error)
	Stats(ctx context.Context) (*domain.GrantStats, error)
}

type grantService struct {
	grants repository.GrantRepository
}

func NewGrantService(grants repository.GrantRepository) GrantService {
	return &grantService{grants: grants}
}

func (s *grantService) GetGrant(ctx context.Context, grantID string) (*domain.AccessGrant, error) {
	return s.grants.GetByID(ctx, grantID)
}

func (s *grantService) ListGrants(ctx context.Context, limit, offset int) ([]domain.AccessGrant, error) {
	return s.grants.List(ctx, limit, offset)
}

func (s *grantService) ListGrantsByUser(ctx context.Context, userID string, limit, offset int) ([]domain.AccessGrant, error) {
	return s.grants.ListByUser(ctx, userID, limit, offset)
}

func (s *grantService) Stats(ctx context.Context) (*domain.GrantStats, error) {
	return s.grants.Stats(ctx)
}
