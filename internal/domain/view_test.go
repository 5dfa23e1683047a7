package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func fullProfile() *CollaboratorProfile {
	return &CollaboratorProfile{
		ID:            "c1",
		Name:          "Rosa Quispe",
		Role:          "artisan",
		Description:   "Textile weaver from Chinchero",
		Rating:        4.8,
		RatingCount:   126,
		GalleryImages: []string{"https://cdn.example.com/g1.jpg"},
		FeaturedComments: []FeaturedComment{
			{ID: "cm1", AuthorName: "Ana", Text: "Wonderful workshop", Rating: 5, CreatedAt: time.Now()},
		},
		UnlockPrice: 15,
		Currency:    "PEN",
		Email:       "rosa@example.com",
		Phone:       "+51 984 000 111",
		WhatsApp:    "+51984000111",
		ContactChannels: map[string]string{
			"instagram": "@rosa.tejidos",
		},
	}
}

func TestPublicViewNeverLeaksContactData(t *testing.T) {
	view := ProjectPublic(fullProfile())

	raw, err := json.Marshal(view)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	body := string(raw)

	for _, secret := range []string{
		"rosa@example.com",
		"+51 984 000 111",
		"+51984000111",
		"@rosa.tejidos",
		"email",
		"phone",
		"whatsapp",
		"contact_channels",
	} {
		if strings.Contains(body, secret) {
			t.Errorf("public view leaked %q: %s", secret, body)
		}
	}

	if view.HasAccess {
		t.Error("public view must carry has_access=false")
	}
	if view.UnlockPrice != 15 || view.Currency != "PEN" {
		t.Error("public view must carry the paywall price")
	}
}

func TestPremiumViewIsComplete(t *testing.T) {
	p := fullProfile()
	view := ProjectPremium(p)

	if !view.HasAccess {
		t.Error("premium view must carry has_access=true")
	}
	if view.Name != p.Name || view.Rating != p.Rating || view.UnlockPrice != p.UnlockPrice {
		t.Error("premium view must include every public-tier field")
	}
	if len(view.FeaturedComments) != len(p.FeaturedComments) {
		t.Error("premium view lost featured comments")
	}
	if view.Email != p.Email || view.Phone != p.Phone || view.WhatsApp != p.WhatsApp {
		t.Error("premium view must include the contact channels")
	}
	if view.ContactChannels["instagram"] != "@rosa.tejidos" {
		t.Error("premium view must include the structured contact map")
	}
}

func TestProjectDispatchesOnDecision(t *testing.T) {
	p := fullProfile()

	if _, ok := Project(p, AccessDecision{HasAccess: false}).(PublicProfileView); !ok {
		t.Error("no access must project the public view")
	}
	if _, ok := Project(p, AccessDecision{HasAccess: true}).(PremiumProfileView); !ok {
		t.Error("access must project the premium view")
	}
}

func TestGrantEffectiveness(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	unlimited := &AccessGrant{Status: GrantActive}
	if !unlimited.IsEffective(now) {
		t.Error("active grant without expiry is always effective")
	}

	bounded := &AccessGrant{Status: GrantActive, ExpiresAt: &future}
	if !bounded.IsEffective(now) {
		t.Error("active grant before expiry is effective")
	}

	expired := &AccessGrant{Status: GrantActive, ExpiresAt: &past}
	if expired.IsEffective(now) {
		t.Error("active grant past expiry is not effective")
	}
	if !expired.IsExpired(now) {
		t.Error("grant past expiry must report expired")
	}

	revoked := &AccessGrant{Status: GrantRevoked, ExpiresAt: &future}
	if revoked.IsEffective(now) {
		t.Error("revoked grant is never effective")
	}
}
