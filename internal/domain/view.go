package domain

// PublicProfileView is the paywalled projection of a collaborator profile.
// It deliberately has no fields for contact data, so a leak would require a
// code change here, not just a missed copy. Unlock price and currency are
// included so clients can render the paywall.
type PublicProfileView struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Role             string            `json:"role"`
	Description      string            `json:"description"`
	Rating           float64           `json:"rating"`
	RatingCount      int               `json:"rating_count"`
	GalleryImages    []string          `json:"gallery_images"`
	FeaturedComments []FeaturedComment `json:"featured_comments"`
	UnlockPrice      float64           `json:"unlock_price"`
	Currency         string            `json:"currency"`
	HasAccess        bool              `json:"has_access"`
}

// PremiumProfileView adds the contact channels for callers holding an
// effective grant.
type PremiumProfileView struct {
	PublicProfileView
	Email           string            `json:"email,omitempty"`
	Phone           string            `json:"phone,omitempty"`
	WhatsApp        string            `json:"whatsapp,omitempty"`
	ContactChannels map[string]string `json:"contact_channels,omitempty"`
}

// ProjectPublic copies only the public-tier fields. HasAccess is explicitly
// false so the client can present the paywall.
func ProjectPublic(p *CollaboratorProfile) PublicProfileView {
	return PublicProfileView{
		ID:               p.ID,
		Name:             p.Name,
		Role:             p.Role,
		Description:      p.Description,
		Rating:           p.Rating,
		RatingCount:      p.RatingCount,
		GalleryImages:    p.GalleryImages,
		FeaturedComments: p.FeaturedComments,
		UnlockPrice:      p.UnlockPrice,
		Currency:         p.Currency,
		HasAccess:        false,
	}
}

// ProjectPremium copies the public tier plus the contact channels.
func ProjectPremium(p *CollaboratorProfile) PremiumProfileView {
	pub := ProjectPublic(p)
	pub.HasAccess = true
	return PremiumProfileView{
		PublicProfileView: pub,
		Email:             p.Email,
		Phone:             p.Phone,
		WhatsApp:          p.WhatsApp,
		ContactChannels:   p.ContactChannels,
	}
}

// Project dispatches on the access decision. Handlers must serialize profiles
// through this function only; nothing else in the service emits profile data.
func Project(p *CollaboratorProfile, decision AccessDecision) any {
	if decision.HasAccess {
		return ProjectPremium(p)
	}
	return ProjectPublic(p)
}
