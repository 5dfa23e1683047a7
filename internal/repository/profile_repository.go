package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/disrupton/collaborators/internal/domain"
)

// ProfileStore supplies collaborator profiles by id. Profile lifecycle (CRUD,
// search, listing) is owned elsewhere; the entitlement core only reads.
type ProfileStore interface {
	GetProfile(ctx context.Context, id string) (*domain.CollaboratorProfile, error)
}

type profileRepository struct {
	pool *pgxpool.Pool
}

func NewProfileRepository(pool *pgxpool.Pool) ProfileStore {
	return &profileRepository{pool: pool}
}

func (r *profileRepository) GetProfile(ctx context.Context, id string) (*domain.CollaboratorProfile, error) {
	const q = `SELECT id, name, role, description, rating, rating_count,
		gallery_images, unlock_price, currency, created_at,
		email, phone, whatsapp, contact_channels
	FROM collaborators WHERE id=$1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var p domain.CollaboratorProfile
	err := r.pool.QueryRow(ctx, q, id).Scan(
		&p.ID, &p.Name, &p.Role, &p.Description, &p.Rating, &p.RatingCount,
		&p.GalleryImages, &p.UnlockPrice, &p.Currency, &p.CreatedAt,
		&p.Email, &p.Phone, &p.WhatsApp, &p.ContactChannels,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.StorageError(err)
	}

	comments, err := r.featuredComments(ctx, id)
	if err != nil {
		return nil, err
	}
	p.FeaturedComments = comments
	return &p, nil
}

// featuredComments returns the best-rated comments shown on the public card.
func (r *profileRepository) featuredComments(ctx context.Context, collaboratorID string) ([]domain.FeaturedComment, error) {
	const q = `SELECT id, author_name, text, rating, created_at
		FROM collaborator_comments
		WHERE collaborator_id=$1 AND featured
		ORDER BY rating DESC, created_at DESC
		LIMIT 5`

	rows, err := r.pool.Query(ctx, q, collaboratorID)
	if err != nil {
		return nil, domain.StorageError(err)
	}
	defer rows.Close()

	var comments []domain.FeaturedComment
	for rows.Next() {
		var c domain.FeaturedComment
		if err := rows.Scan(&c.ID, &c.AuthorName, &c.Text, &c.Rating, &c.CreatedAt); err != nil {
			return nil, domain.StorageError(err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError(err)
	}
	return comments, nil
}
