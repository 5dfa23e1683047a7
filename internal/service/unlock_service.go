package service

import (
	"context"
	"strings"
	"time"

	"github.com/disrupton/collaborators/internal/domain"
	"github.com/disrupton/collaborators/internal/mailer"
	"github.com/disrupton/collaborators/internal/payments"
	"github.com/disrupton/collaborators/internal/repository"
	"github.com/disrupton/collaborators/pkg/config"
	"github.com/disrupton/collaborators/pkg/events"
	"github.com/disrupton/collaborators/pkg/logger"
)

type UnlockService interface {
	// Unlock runs the paid-unlock transaction for userID against
	// collaboratorID. Safe to retry and safe under concurrent calls for the
	// same pair: at most one grant is ever created.
	Unlock(ctx context.Context, userID, collaboratorID string, req *domain.UnlockRequest) (*domain.UnlockResult, error)
	// Revoke terminates a grant. Administrative; irreversible for that
	// grant, though a new one may later be created for the same pair.
	Revoke(ctx context.Context, grantID string) error
}

type unlockService struct {
	grants   repository.GrantRepository
	profiles repository.ProfileStore
	verifier payments.Verifier
	eventBus events.Publisher
	mail     mailer.Service
	cfg      *config.Config
}

func NewUnlockService(
	grants repository.GrantRepository,
	profiles repository.ProfileStore,
	verifier payments.Verifier,
	eventBus events.Publisher,
	mail mailer.Service,
	cfg *config.Config,
) UnlockService {
	return &unlockService{
		grants:   grants,
		profiles: profiles,
		verifier: verifier,
		eventBus: eventBus,
		mail:     mail,
		cfg:      cfg,
	}
}

func (s *unlockService) Unlock(ctx context.Context, userID, collaboratorID string, req *domain.UnlockRequest) (*domain.UnlockResult, error) {
	// Identity comes first: a missing userID is an authentication failure,
	// not a bad request, no matter what else the payload contains.
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	if collaboratorID == "" {
		return nil, domain.NewValidationError("collaborator_id", "must not be empty")
	}
	if req == nil || strings.TrimSpace(req.PaymentRef) == "" {
		return nil, domain.NewValidationError("payment_ref", "must not be empty")
	}

	expiry, err := s.resolveExpiry(req.DurationDays)
	if err != nil {
		return nil, err
	}

	profile, err := s.profiles.GetProfile(ctx, collaboratorID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, domain.ErrNotFound
	}

	// Repeated unlocks by an already-entitled user return the existing
	// grant without touching payment or the ledger again.
	if existing, err := s.grants.FindEffective(ctx, userID, collaboratorID); err != nil {
		return nil, err
	} else if existing != nil {
		return &domain.UnlockResult{Grant: existing, Granted: false}, nil
	}

	if err := s.verifier.VerifyRef(ctx, req.PaymentRef); err != nil {
		return nil, err
	}

	now := time.Now()
	grant := &domain.AccessGrant{
		UserID:         userID,
		CollaboratorID: collaboratorID,
		PaymentID:      req.PaymentRef,
		Price:          req.Price,
		Currency:       req.Currency,
		Description:    req.Description,
		Status:         domain.GrantActive,
		GrantedAt:      now,
	}
	if expiry > 0 {
		expiresAt := now.Add(expiry)
		grant.ExpiresAt = &expiresAt
	}
	if grant.Price <= 0 {
		grant.Price = profile.UnlockPrice
		grant.Currency = profile.Currency
	}
	if grant.Currency == "" {
		grant.Currency = s.cfg.Entitlement.DefaultCurrency
	}

	// Losing the creation race is success: the ledger hands back the
	// winner's grant and created stays false.
	stored, created, err := s.grants.CreateIfAbsent(ctx, grant)
	if err != nil {
		return nil, err
	}

	if created {
		s.notifyGranted(ctx, stored, profile)
	}

	return &domain.UnlockResult{Grant: stored, Granted: created}, nil
}

// resolveExpiry maps the requested duration to a grant lifetime. Returns 0
// for a non-expiring grant, which callers must only get when explicitly
// requested and allowed by configuration.
func (s *unlockService) resolveExpiry(durationDays *int) (time.Duration, error) {
	if durationDays == nil {
		return time.Duration(s.cfg.Entitlement.DefaultGrantDays) * 24 * time.Hour, nil
	}
	days := *durationDays
	if days < 0 {
		return 0, domain.NewValidationError("duration_days", "must not be negative")
	}
	if days == 0 {
		if !s.cfg.Entitlement.AllowUnlimited {
			return 0, domain.NewValidationError("duration_days", "unlimited grants are not enabled")
		}
		return 0, nil
	}
	return time.Duration(days) * 24 * time.Hour, nil
}

func (s *unlockService) Revoke(ctx context.Context, grantID string) error {
	grant, err := s.grants.GetByID(ctx, grantID)
	if err != nil {
		return err
	}
	if grant == nil {
		return domain.ErrNotFound
	}

	ok, err := s.grants.Revoke(ctx, grantID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotFound
	}

	event := events.AccessRevokedEvent{
		GrantID:        grant.ID,
		UserID:         grant.UserID,
		CollaboratorID: grant.CollaboratorID,
		RevokedAt:      time.Now(),
	}
	if err := s.eventBus.Publish(ctx, events.AccessRevoked, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish access revoked event", "error", err, "grant_id", grant.ID)
	}
	return nil
}

// notifyGranted fans out the analytics event and the collaborator email.
// Both are best-effort: failures are logged and never fail the unlock.
func (s *unlockService) notifyGranted(ctx context.Context, grant *domain.AccessGrant, profile *domain.CollaboratorProfile) {
	event := events.AccessGrantedEvent{
		GrantID:        grant.ID,
		UserID:         grant.UserID,
		CollaboratorID: grant.CollaboratorID,
		PaymentID:      grant.PaymentID,
		Price:          grant.Price,
		Currency:       grant.Currency,
		GrantedAt:      grant.GrantedAt,
		ExpiresAt:      grant.ExpiresAt,
	}
	if err := s.eventBus.Publish(ctx, events.AccessGranted, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish access granted event", "error", err, "grant_id", grant.ID)
	}

	if profile.Email != "" {
		if err := s.mail.SendUnlockNotification(profile.Email, profile.Name, grant.Price, grant.Currency); err != nil {
			logger.ErrorContext(ctx, "Failed to send unlock notification", "error", err, "collaborator_id", profile.ID)
		}
	}
}
