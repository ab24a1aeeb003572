package crypto

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/godamri/helix-audit/pkg/contextx"
)

// HelixClaims is the access token body issued by the platform identity
// provider.
type HelixClaims struct {
	jwt.RegisteredClaims
	Sid          string             `json:"sid,omitempty"`
	Email        string             `json:"email,omitempty"`
	Roles        []string           `json:"roles"`
	ProfileLinks []ProfileLinkClaim `json:"profile_links,omitempty"`
}

// ProfileLinkClaim is one profile the subject is linked to.
type ProfileLinkClaim struct {
	ProfileID   string `json:"profile_id"`
	ProfileType string `json:"profile_type"`
	AccessLevel string `json:"access_level"`
}

func (c *HelixClaims) GetRoles() []string {
	if c.Roles == nil {
		return []string{}
	}
	return c.Roles
}

// Links converts the profile claims, skipping entries with a malformed id.
func (c *HelixClaims) Links() []contextx.ProfileLink {
	out := make([]contextx.ProfileLink, 0, len(c.ProfileLinks))
	for _, l := range c.ProfileLinks {
		id, err := uuid.Parse(l.ProfileID)
		if err != nil {
			continue
		}
		out = append(out, contextx.ProfileLink{
			ProfileID:   id,
			ProfileType: l.ProfileType,
			AccessLevel: l.AccessLevel,
		})
	}
	return out
}
