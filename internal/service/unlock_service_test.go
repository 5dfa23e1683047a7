package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/disrupton/collaborators/internal/domain"
	"github.com/disrupton/collaborators/internal/payments"
	"github.com/disrupton/collaborators/pkg/config"
)

// ---------- Mocks ----------

type mockGrantRepo struct {
	mu        sync.Mutex
	nextID    int
	grants    map[string]*domain.AccessGrant
	findCalls int
	failWith  error
}

func newMockGrantRepo() *mockGrantRepo {
	return &mockGrantRepo{grants: make(map[string]*domain.AccessGrant)}
}

func (m *mockGrantRepo) add(g *domain.AccessGrant) *domain.AccessGrant {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g.ID == "" {
		m.nextID++
		g.ID = fmt.Sprintf("grant-%d", m.nextID)
	}
	stored := *g
	m.grants[g.ID] = &stored
	return &stored
}

func (m *mockGrantRepo) effectiveLocked(userID, collaboratorID string) *domain.AccessGrant {
	now := time.Now()
	var best *domain.AccessGrant
	for _, g := range m.grants {
		if g.UserID != userID || g.CollaboratorID != collaboratorID {
			continue
		}
		if !g.IsEffective(now) {
			continue
		}
		if best == nil || g.GrantedAt.After(best.GrantedAt) {
			best = g
		}
	}
	return best
}

func (m *mockGrantRepo) FindEffective(_ context.Context, userID, collaboratorID string) (*domain.AccessGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findCalls++
	if m.failWith != nil {
		return nil, m.failWith
	}
	if g := m.effectiveLocked(userID, collaboratorID); g != nil {
		copied := *g
		return &copied, nil
	}
	return nil, nil
}

func (m *mockGrantRepo) CreateIfAbsent(_ context.Context, grant *domain.AccessGrant) (*domain.AccessGrant, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, false, m.failWith
	}
	if existing := m.effectiveLocked(grant.UserID, grant.CollaboratorID); existing != nil {
		copied := *existing
		return &copied, false, nil
	}
	if grant.ID == "" {
		m.nextID++
		grant.ID = fmt.Sprintf("grant-%d", m.nextID)
	}
	stored := *grant
	m.grants[grant.ID] = &stored
	copied := stored
	return &copied, true, nil
}

func (m *mockGrantRepo) Revoke(_ context.Context, grantID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.grants[grantID]
	if !ok {
		return false, nil
	}
	if g.Status == domain.GrantRevoked {
		return true, nil
	}
	now := time.Now()
	g.Status = domain.GrantRevoked
	g.RevokedAt = &now
	return true, nil
}

func (m *mockGrantRepo) GetByID(_ context.Context, grantID string) (*domain.AccessGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.grants[grantID]; ok {
		copied := *g
		return &copied, nil
	}
	return nil, nil
}

func (m *mockGrantRepo) ListByUser(_ context.Context, userID string, limit, offset int) ([]domain.AccessGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AccessGrant
	for _, g := range m.grants {
		if g.UserID == userID {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (m *mockGrantRepo) List(_ context.Context, limit, offset int) ([]domain.AccessGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AccessGrant
	for _, g := range m.grants {
		out = append(out, *g)
	}
	return out, nil
}

func (m *mockGrantRepo) Stats(_ context.Context) (*domain.GrantStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &domain.GrantStats{}
	now := time.Now()
	for _, g := range m.grants {
		s.Total++
		s.TotalRevenue += g.Price
		switch g.Status {
		case domain.GrantActive:
			s.Active++
			if g.IsExpired(now) {
				s.Expired++
			}
		case domain.GrantRevoked:
			s.Revoked++
		}
	}
	return s, nil
}

func (m *mockGrantRepo) countForPair(userID, collaboratorID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, g := range m.grants {
		if g.UserID == userID && g.CollaboratorID == collaboratorID {
			n++
		}
	}
	return n
}

type mockProfileStore struct {
	profiles map[string]*domain.CollaboratorProfile
}

func newMockProfileStore(profiles ...*domain.CollaboratorProfile) *mockProfileStore {
	m := &mockProfileStore{profiles: make(map[string]*domain.CollaboratorProfile)}
	for _, p := range profiles {
		m.profiles[p.ID] = p
	}
	return m
}

func (m *mockProfileStore) GetProfile(_ context.Context, id string) (*domain.CollaboratorProfile, error) {
	return m.profiles[id], nil
}

type mockPublisher struct {
	mu       sync.Mutex
	subjects []string
	failWith error
}

func (m *mockPublisher) Publish(_ context.Context, subject string, _ interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.subjects = append(m.subjects, subject)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

type mockMailer struct {
	mu      sync.Mutex
	lastTo  string
	sendErr error
}

func (m *mockMailer) SendUnlockNotification(toEmail, toName string, price float64, currency string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastTo = toEmail
	return m.sendErr
}

// ---------- Fixtures ----------

func testConfig() *config.Config {
	return &config.Config{
		Entitlement: config.EntitlementConfig{
			DefaultGrantDays: 30,
			AllowUnlimited:   false,
			DefaultCurrency:  "PEN",
		},
	}
}

func testProfile() *domain.CollaboratorProfile {
	return &domain.CollaboratorProfile{
		ID:          "c1",
		Name:        "Rosa Quispe",
		Role:        "artisan",
		UnlockPrice: 15,
		Currency:    "PEN",
		Email:       "rosa@example.com",
		Phone:       "+51 984 000 111",
		WhatsApp:    "+51984000111",
	}
}

func newUnlockFixture() (*mockGrantRepo, *mockPublisher, *mockMailer, UnlockService) {
	grants := newMockGrantRepo()
	bus := &mockPublisher{}
	mail := &mockMailer{}
	svc := NewUnlockService(grants, newMockProfileStore(testProfile()), payments.NewOpaqueVerifier(), bus, mail, testConfig())
	return grants, bus, mail, svc
}

func validRequest() *domain.UnlockRequest {
	return &domain.UnlockRequest{PaymentRef: "pay_1"}
}

// ---------- Tests ----------

func TestUnlockCreatesGrant(t *testing.T) {
	grants, bus, mail, svc := newUnlockFixture()

	before := time.Now()
	result, err := svc.Unlock(context.Background(), "u1", "c1", validRequest())
	if err != nil {
		t.Fatalf("unlock failed: %v", err)
	}
	if !result.Granted {
		t.Error("expected granted=true on first unlock")
	}

	g := result.Grant
	if g.UserID != "u1" || g.CollaboratorID != "c1" {
		t.Errorf("grant pair mismatch: %s/%s", g.UserID, g.CollaboratorID)
	}
	if g.Status != domain.GrantActive {
		t.Errorf("expected active status, got %s", g.Status)
	}
	if g.PaymentID != "pay_1" {
		t.Errorf("expected payment ref pay_1, got %s", g.PaymentID)
	}
	// Price falls back to the profile's unlock price when the request names none.
	if g.Price != 15 || g.Currency != "PEN" {
		t.Errorf("expected profile price 15 PEN, got %v %s", g.Price, g.Currency)
	}
	if g.ExpiresAt == nil {
		t.Fatal("expected an expiry from the configured default duration")
	}
	wantExpiry := before.Add(30 * 24 * time.Hour)
	if diff := g.ExpiresAt.Sub(wantExpiry); diff < -time.Minute || diff > time.Minute {
		t.Errorf("expiry %v not close to %v", g.ExpiresAt, wantExpiry)
	}

	if n := grants.countForPair("u1", "c1"); n != 1 {
		t.Errorf("expected 1 stored grant, found %d", n)
	}
	if len(bus.subjects) != 1 || bus.subjects[0] != "access.granted" {
		t.Errorf("expected one access.granted event, got %v", bus.subjects)
	}
	if mail.lastTo != "rosa@example.com" {
		t.Errorf("expected unlock notification to collaborator, got %q", mail.lastTo)
	}
}

func TestUnlockIsIdempotent(t *testing.T) {
	grants, bus, _, svc := newUnlockFixture()

	first, err := svc.Unlock(context.Background(), "u1", "c1", validRequest())
	if err != nil {
		t.Fatalf("first unlock failed: %v", err)
	}
	second, err := svc.Unlock(context.Background(), "u1", "c1", &domain.UnlockRequest{PaymentRef: "pay_2"})
	if err != nil {
		t.Fatalf("second unlock failed: %v", err)
	}

	if !first.Granted {
		t.Error("first call should create the grant")
	}
	if second.Granted {
		t.Error("second call must not create a duplicate grant")
	}
	if second.Grant.ID != first.Grant.ID {
		t.Errorf("second call returned grant %s, want %s", second.Grant.ID, first.Grant.ID)
	}
	if n := grants.countForPair("u1", "c1"); n != 1 {
		t.Errorf("expected exactly 1 stored grant, found %d", n)
	}
	if len(bus.subjects) != 1 {
		t.Errorf("replay must not emit a second event, got %v", bus.subjects)
	}
}

func TestUnlockConcurrentCallsCreateOneGrant(t *testing.T) {
	grants, _, _, svc := newUnlockFixture()

	const n = 25
	results := make([]*domain.UnlockResult, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			result, err := svc.Unlock(context.Background(), "u1", "c1", validRequest())
			results[i] = result
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent unlock failed: %v", err)
	}

	if stored := grants.countForPair("u1", "c1"); stored != 1 {
		t.Fatalf("expected exactly 1 stored grant across %d concurrent calls, found %d", n, stored)
	}

	created := 0
	for _, r := range results {
		if r.Granted {
			created++
		}
		if r.Grant == nil {
			t.Fatal("every caller must observe a grant")
		}
	}
	if created != 1 {
		t.Errorf("expected exactly one caller with granted=true, got %d", created)
	}
}

func TestUnlockValidationOrdering(t *testing.T) {
	_, _, _, svc := newUnlockFixture()

	// Missing identity wins over everything else, even with valid payment data.
	_, err := svc.Unlock(context.Background(), "", "c1", validRequest())
	if !errors.Is(err, domain.ErrUnauthenticated) {
		t.Errorf("expected ErrUnauthenticated for anonymous unlock, got %v", err)
	}

	// Valid identity, missing payment reference.
	_, err = svc.Unlock(context.Background(), "u1", "c1", &domain.UnlockRequest{PaymentRef: "   "})
	if !domain.IsValidation(err) {
		t.Errorf("expected validation error for blank payment ref, got %v", err)
	}

	_, err = svc.Unlock(context.Background(), "u1", "", validRequest())
	if !domain.IsValidation(err) {
		t.Errorf("expected validation error for empty collaborator id, got %v", err)
	}

	_, err = svc.Unlock(context.Background(), "u1", "nope", validRequest())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown collaborator, got %v", err)
	}
}

func TestUnlockDurationRules(t *testing.T) {
	_, _, _, svc := newUnlockFixture()

	negative := -1
	req := validRequest()
	req.DurationDays = &negative
	if _, err := svc.Unlock(context.Background(), "u1", "c1", req); !domain.IsValidation(err) {
		t.Errorf("expected validation error for negative duration, got %v", err)
	}

	// Unlimited grants are rejected unless the deployment opts in.
	zero := 0
	req = validRequest()
	req.DurationDays = &zero
	if _, err := svc.Unlock(context.Background(), "u1", "c1", req); !domain.IsValidation(err) {
		t.Errorf("expected validation error for unlimited grant when disabled, got %v", err)
	}

	grants := newMockGrantRepo()
	cfg := testConfig()
	cfg.Entitlement.AllowUnlimited = true
	allowSvc := NewUnlockService(grants, newMockProfileStore(testProfile()), payments.NewOpaqueVerifier(), &mockPublisher{}, &mockMailer{}, cfg)

	result, err := allowSvc.Unlock(context.Background(), "u1", "c1", req)
	if err != nil {
		t.Fatalf("unlimited unlock failed: %v", err)
	}
	if result.Grant.ExpiresAt != nil {
		t.Errorf("expected nil expiry for unlimited grant, got %v", result.Grant.ExpiresAt)
	}

	seven := 7
	req = validRequest()
	req.DurationDays = &seven
	result, err = allowSvc.Unlock(context.Background(), "u2", "c1", req)
	if err != nil {
		t.Fatalf("7-day unlock failed: %v", err)
	}
	if result.Grant.ExpiresAt == nil {
		t.Fatal("expected expiry for bounded grant")
	}
	want := time.Now().Add(7 * 24 * time.Hour)
	if diff := result.Grant.ExpiresAt.Sub(want); diff < -time.Minute || diff > time.Minute {
		t.Errorf("expiry %v not close to %v", result.Grant.ExpiresAt, want)
	}
}

func TestUnlockAfterExpiryCreatesNewGrant(t *testing.T) {
	grants, _, _, svc := newUnlockFixture()

	expired := time.Now().Add(-time.Second)
	grants.add(&domain.AccessGrant{
		UserID:         "u1",
		CollaboratorID: "c1",
		Status:         domain.GrantActive,
		GrantedAt:      time.Now().Add(-31 * 24 * time.Hour),
		ExpiresAt:      &expired,
	})

	result, err := svc.Unlock(context.Background(), "u1", "c1", validRequest())
	if err != nil {
		t.Fatalf("unlock after expiry failed: %v", err)
	}
	if !result.Granted {
		t.Error("expected a fresh grant once the old one expired")
	}
	if n := grants.countForPair("u1", "c1"); n != 2 {
		t.Errorf("ledger is append-only: expected 2 rows, found %d", n)
	}
}

func TestUnlockEventFailureDoesNotFailTransaction(t *testing.T) {
	grants := newMockGrantRepo()
	bus := &mockPublisher{failWith: errors.New("nats down")}
	mail := &mockMailer{sendErr: errors.New("smtp down")}
	svc := NewUnlockService(grants, newMockProfileStore(testProfile()), payments.NewOpaqueVerifier(), bus, mail, testConfig())

	result, err := svc.Unlock(context.Background(), "u1", "c1", validRequest())
	if err != nil {
		t.Fatalf("unlock must not fail on side-effect errors: %v", err)
	}
	if !result.Granted {
		t.Error("expected granted=true despite publisher failure")
	}
}

func TestUnlockStorageFailureSurfaces(t *testing.T) {
	grants := newMockGrantRepo()
	grants.failWith = domain.StorageError(errors.New("connection refused"))
	svc := NewUnlockService(grants, newMockProfileStore(testProfile()), payments.NewOpaqueVerifier(), &mockPublisher{}, &mockMailer{}, testConfig())

	_, err := svc.Unlock(context.Background(), "u1", "c1", validRequest())
	if !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Errorf("expected ErrStorageUnavailable, got %v", err)
	}
}

type rejectingVerifier struct{}

func (rejectingVerifier) VerifyRef(_ context.Context, ref string) error {
	return domain.NewValidationError("payment_ref", "unknown payment reference")
}

func TestUnlockRejectedPaymentRef(t *testing.T) {
	grants := newMockGrantRepo()
	svc := NewUnlockService(grants, newMockProfileStore(testProfile()), rejectingVerifier{}, &mockPublisher{}, &mockMailer{}, testConfig())

	_, err := svc.Unlock(context.Background(), "u1", "c1", validRequest())
	if !domain.IsValidation(err) {
		t.Errorf("expected validation error from verifier, got %v", err)
	}
	if n := grants.countForPair("u1", "c1"); n != 0 {
		t.Errorf("no grant may be created for a rejected payment, found %d", n)
	}
}

func TestRevokeGrant(t *testing.T) {
	grants, bus, _, svc := newUnlockFixture()

	result, err := svc.Unlock(context.Background(), "u1", "c1", validRequest())
	if err != nil {
		t.Fatalf("unlock failed: %v", err)
	}

	if err := svc.Revoke(context.Background(), result.Grant.ID); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}

	stored, _ := grants.GetByID(context.Background(), result.Grant.ID)
	if stored.Status != domain.GrantRevoked {
		t.Errorf("expected revoked status, got %s", stored.Status)
	}
	if stored.RevokedAt == nil {
		t.Error("expected revoked_at to be set")
	}

	// Revoking again is a no-op success.
	if err := svc.Revoke(context.Background(), result.Grant.ID); err != nil {
		t.Errorf("second revoke must succeed as no-op, got %v", err)
	}

	if err := svc.Revoke(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown grant, got %v", err)
	}

	found := false
	for _, s := range bus.subjects {
		if s == "access.revoked" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected access.revoked event, got %v", bus.subjects)
	}
}
