package domain

import "time"

// CollaboratorProfile is the full record of a cultural agent (artisan or
// guide) as held by the profile store. It is read-only from this service's
// perspective; the entitlement core only projects it into tiered views.
//
// The contact fields (Email, Phone, WhatsApp, ContactChannels) are premium
// tier: they must only ever reach a caller through ProjectPremium.
type CollaboratorProfile struct {
	ID               string
	Name             string
	Role             string
	Description      string
	Rating           float64
	RatingCount      int
	GalleryImages    []string
	FeaturedComments []FeaturedComment
	UnlockPrice      float64
	Currency         string
	CreatedAt        time.Time

	// Premium tier.
	Email           string
	Phone           string
	WhatsApp        string
	ContactChannels map[string]string
}

type FeaturedComment struct {
	ID         string    `json:"id"`
	AuthorName string    `json:"author_name"`
	Text       string    `json:"text"`
	Rating     float64   `json:"rating"`
	CreatedAt  time.Time `json:"created_at"`
}
