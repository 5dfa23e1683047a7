package service

import (
	"context"

	"github.com/disrupton/collaborators/internal/domain"
	"github.com/disrupton/collaborators/internal/repository"
)

type AccessService interface {
	// CheckAccess decides whether userID may see collaboratorID's premium
	// fields right now. An empty userID is a guest: always no access,
	// without touching the ledger.
	CheckAccess(ctx context.Context, userID, collaboratorID string) (domain.AccessDecision, error)
	// GetProfile fetches the full profile for projection. Returns nil when
	// the collaborator is unknown.
	GetProfile(ctx context.Context, collaboratorID string) (*domain.CollaboratorProfile, error)
}

type accessService struct {
	grants   repository.GrantRepository
	profiles repository.ProfileStore
}

func NewAccessService(grants repository.GrantRepository, profiles repository.ProfileStore) AccessService {
	return &accessService{grants: grants, profiles: profiles}
}

// CheckAccess evaluates expiry by live timestamp comparison inside the
// ledger query; there is no background sweep. Two calls straddling a grant's
// expiry instant can legitimately disagree about the same stored row.
func (s *accessService) CheckAccess(ctx context.Context, userID, collaboratorID string) (domain.AccessDecision, error) {
	if userID == "" {
		return domain.AccessDecision{HasAccess: false}, nil
	}

	grant, err := s.grants.FindEffective(ctx, userID, collaboratorID)
	if err != nil {
		return domain.AccessDecision{}, err
	}
	return domain.AccessDecision{HasAccess: grant != nil, Grant: grant}, nil
}

func (s *accessService) GetProfile(ctx context.Context, collaboratorID string) (*domain.CollaboratorProfile, error) {
	return s.profiles.GetProfile(ctx, collaboratorID)
}
