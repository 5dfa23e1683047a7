package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/disrupton/collaborators/internal/domain"
)

// GrantRepository is the entitlement ledger. Rows are append-only: the only
// mutation ever applied is the active→revoked transition.
type GrantRepository interface {
	// FindEffective returns the most recent grant for the pair that is
	// active and not past its expiry at query time, or nil.
	FindEffective(ctx context.Context, userID, collaboratorID string) (*domain.AccessGrant, error)
	// CreateIfAbsent inserts the grant unless the pair already holds an
	// effective one, in which case the existing grant is returned with
	// created=false. The check and insert are atomic with respect to
	// concurrent calls for the same pair.
	CreateIfAbsent(ctx context.Context, grant *domain.AccessGrant) (*domain.AccessGrant, bool, error)
	// Revoke transitions a grant to revoked. Revoking an already-revoked
	// grant succeeds as a no-op; an unknown id returns false.
	Revoke(ctx context.Context, grantID string) (bool, error)
	GetByID(ctx context.Context, grantID string) (*domain.AccessGrant, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.AccessGrant, error)
	List(ctx context.Context, limit, offset int) ([]domain.AccessGrant, error)
	Stats(ctx context.Context) (*domain.GrantStats, error)
}

type grantRepository struct {
	pool *pgxpool.Pool
}

func NewGrantRepository(pool *pgxpool.Pool) GrantRepository {
	return &grantRepository{pool: pool}
}

const grantCols = `id, user_id, collaborator_id, payment_id,
price, currency, description, status,
granted_at, expires_at, revoked_at`

func scanGrant(row pgx.Row) (*domain.AccessGrant, error) {
	var g domain.AccessGrant
	err := row.Scan(
		&g.ID, &g.UserID, &g.CollaboratorID, &g.PaymentID,
		&g.Price, &g.Currency, &g.Description, &g.Status,
		&g.GrantedAt, &g.ExpiresAt, &g.RevokedAt,
	)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *grantRepository) FindEffective(ctx context.Context, userID, collaboratorID string) (*domain.AccessGrant, error) {
	const q = `SELECT ` + grantCols + ` FROM access_grants
		WHERE user_id=$1 AND collaborator_id=$2 AND status='active'
		AND (expires_at IS NULL OR expires_at > now())
		ORDER BY granted_at DESC
		LIMIT 1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	g, err := scanGrant(r.pool.QueryRow(ctx, q, userID, collaboratorID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.StorageError(err)
	}
	return g, nil
}

// CreateIfAbsent serializes concurrent unlocks for the same pair with a
// transaction-scoped advisory lock, then rechecks for an effective grant
// before inserting. A plain unique index cannot express "effective" because
// expired rows keep status active, so the lock is the atomic primitive here.
func (r *grantRepository) CreateIfAbsent(ctx context.Context, grant *domain.AccessGrant) (*domain.AccessGrant, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, false, domain.StorageError(err)
	}
	defer tx.Rollback(ctx)

	const lockQ = `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`
	if _, err := tx.Exec(ctx, lockQ, pairLockKey(grant.UserID, grant.CollaboratorID)); err != nil {
		return nil, false, domain.StorageError(err)
	}

	const checkQ = `SELECT ` + grantCols + ` FROM access_grants
		WHERE user_id=$1 AND collaborator_id=$2 AND status='active'
		AND (expires_at IS NULL OR expires_at > now())
		ORDER BY granted_at DESC
		LIMIT 1`
	existing, err := scanGrant(tx.QueryRow(ctx, checkQ, grant.UserID, grant.CollaboratorID))
	if err == nil {
		if err := tx.Commit(ctx); err != nil {
			return nil, false, domain.StorageError(err)
		}
		return existing, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, domain.StorageError(err)
	}

	const insertQ = `INSERT INTO access_grants (
		id, user_id, collaborator_id, payment_id,
		price, currency, description, status,
		granted_at, expires_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,'active',$8,$9)
	RETURNING ` + grantCols

	if grant.ID == "" {
		grant.ID = uuid.NewString()
	}
	created, err := scanGrant(tx.QueryRow(ctx, insertQ,
		grant.ID, grant.UserID, grant.CollaboratorID, grant.PaymentID,
		grant.Price, grant.Currency, grant.Description,
		grant.GrantedAt, grant.ExpiresAt,
	))
	if err != nil {
		return nil, false, domain.StorageError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, domain.StorageError(err)
	}
	return created, true, nil
}

func (r *grantRepository) Revoke(ctx context.Context, grantID string) (bool, error) {
	const q = `UPDATE access_grants SET status='revoked', revoked_at=now()
		WHERE id=$1 AND status='active'`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, grantID)
	if err != nil {
		return false, domain.StorageError(err)
	}
	if result.RowsAffected() > 0 {
		return true, nil
	}

	// Nothing updated: either the grant is unknown or already revoked.
	const existsQ = `SELECT status FROM access_grants WHERE id=$1`
	var status string
	err = r.pool.QueryRow(ctx, existsQ, grantID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, domain.StorageError(err)
	}
	return status == string(domain.GrantRevoked), nil
}

func (r *grantRepository) GetByID(ctx context.Context, grantID string) (*domain.AccessGrant, error) {
	const q = `SELECT ` + grantCols + ` FROM access_grants WHERE id=$1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	g, err := scanGrant(r.pool.QueryRow(ctx, q, grantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.StorageError(err)
	}
	return g, nil
}

func (r *grantRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.AccessGrant, error) {
	limit, offset = clampPage(limit, offset)
	const q = `SELECT ` + grantCols + ` FROM access_grants
		WHERE user_id=$1 ORDER BY granted_at DESC LIMIT $2 OFFSET $3`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, userID, limit, offset)
	if err != nil {
		return nil, domain.StorageError(err)
	}
	defer rows.Close()
	return collectGrants(rows)
}

func (r *grantRepository) List(ctx context.Context, limit, offset int) ([]domain.AccessGrant, error) {
	limit, offset = clampPage(limit, offset)
	const q = `SELECT ` + grantCols + ` FROM access_grants
		ORDER BY granted_at DESC LIMIT $1 OFFSET $2`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, domain.StorageError(err)
	}
	defer rows.Close()
	return collectGrants(rows)
}

func (r *grantRepository) Stats(ctx context.Context) (*domain.GrantStats, error) {
	const q = `SELECT
		count(*),
		count(*) FILTER (WHERE status='active'),
		count(*) FILTER (WHERE status='revoked'),
		count(*) FILTER (WHERE status='active' AND expires_at IS NOT NULL AND expires_at <= now()),
		COALESCE(sum(price), 0)
	FROM access_grants`

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var s domain.GrantStats
	err := r.pool.QueryRow(ctx, q).Scan(&s.Total, &s.Active, &s.Revoked, &s.Expired, &s.TotalRevenue)
	if err != nil {
		return nil, domain.StorageError(err)
	}
	return &s, nil
}

func collectGrants(rows pgx.Rows) ([]domain.AccessGrant, error) {
	var grants []domain.AccessGrant
	for rows.Next() {
		var g domain.AccessGrant
		if err := rows.Scan(
			&g.ID, &g.UserID, &g.CollaboratorID, &g.PaymentID,
			&g.Price, &g.Currency, &g.Description, &g.Status,
			&g.GrantedAt, &g.ExpiresAt, &g.RevokedAt,
		); err != nil {
			return nil, domain.StorageError(err)
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError(err)
	}
	return grants, nil
}

// pairLockKey derives the advisory-lock key for a user/collaborator pair.
// The unit separator keeps concatenated ids unambiguous, and unlike NUL it
// is a byte Postgres accepts inside a text parameter.
func pairLockKey(userID, collaboratorID string) string {
	return userID + "\x1f" + collaboratorID
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
