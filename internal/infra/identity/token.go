package identity

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	domainidentity "campusmarket/internal/domain/identity"
)

var ErrInvalidToken = errors.New("identity: invalid token")

// Claims mirrors the access tokens minted by the campus SSO gateway. The
// profile fields ride along so handlers can stamp snapshots without an extra
// directory round trip.
type Claims struct {
	Name        string   `json:"name"`
	AvatarURL   string   `json:"avatar_url,omitempty"`
	Affiliation string   `json:"affiliation,omitempty"`
	Verified    bool     `json:"verified"`
	Email       string   `json:"email,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller derived from a verified token.
type Principal struct {
	Profile domainidentity.Profile
	Roles   []string
}

func (p Principal) HasRole(role string) bool {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return false
	}
	for _, r := range p.Roles {
		if strings.ToLower(r) == role {
			return true
		}
	}
	return false
}

// TokenResolver verifies HMAC-signed access tokens.
type TokenResolver struct {
	secret []byte
}

func NewTokenResolver(secret string) *TokenResolver {
	return &TokenResolver{secret: []byte(secret)}
}

func (r *TokenResolver) Resolve(token string) (Principal, error) {
	if len(r.secret) == 0 {
		return Principal{}, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return r.secret, nil
	})
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return Principal{}, ErrInvalidToken
	}
	return Principal{
		Profile: domainidentity.Profile{
			ID:          claims.Subject,
			Name:        claims.Name,
			AvatarURL:   claims.AvatarURL,
			Affiliation: claims.Affiliation,
			Verified:    claims.Verified,
			Email:       claims.Email,
		},
		Roles: claims.Roles,
	}, nil
}
