package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/securecookie"
)

// ErrInvalidToken is returned for a token that is malformed, expired or
// signed with another key.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the payload of an API token.
type Claims struct {
	Username  string `json:"username"`
	CanCreate bool   `json:"canCreate"`
	CanUpdate bool   `json:"canUpdate"`
	CanDelete bool   `json:"canDelete"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 API tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a token service. An empty secret is replaced by a
// random one.
func NewTokenService(secret string, ttl time.Duration) *TokenService {
	key := []byte(secret)
	if len(key) == 0 {
		key = securecookie.GenerateRandomKey(32)
	}
	return &TokenService{secret: key, ttl: ttl}
}

// Issue signs a token for p.
func (t *TokenService) Issue(p *Principal) (string, error) {
	now := time.Now()
	claims := Claims{
		Username:  p.Username,
		CanCreate: p.Can(CapCreate),
		CanUpdate: p.Can(CapUpdate),
		CanDelete: p.Can(CapDelete),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Username,
			Issuer:    "folio",
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Parse verifies tokenString and returns the principal it carries.
func (t *TokenService) Parse(tokenString string) (*Principal, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	p := &Principal{Username: claims.Username}
	if claims.CanCreate {
		p.Capabilities = append(p.Capabilities, CapCreate)
	}
	if claims.CanUpdate {
		p.Capabilities = append(p.Capabilities, CapUpdate)
	}
	if claims.CanDelete {
		p.Capabilities = append(p.Capabilities, CapDelete)
	}
	return p, nil
}
