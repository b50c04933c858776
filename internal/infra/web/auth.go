package web

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ActorClaims identifies the authenticated account making a request.
// Subject carries the account ID.
type ActorClaims struct {
	jwt.RegisteredClaims
}

// AuthManager mints and validates the HS256 bearer tokens the learner-facing
// endpoints run on. The admin surface uses the shared API key instead.
type AuthManager struct {
	secret []byte
	ttl    time.Duration
}

func NewAuthManager(secret string, ttl time.Duration) *AuthManager {
	return &AuthManager{secret: []byte(secret), ttl: ttl}
}

func (a *AuthManager) Mint(actorID string) (string, error) {
	now := time.Now()
	claims := ActorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actorID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *AuthManager) ParseFromRequest(r *http.Request) (*ActorClaims, error) {
	hdr := r.Header.Get("Authorization")
	if hdr == "" || !strings.HasPrefix(strings.ToLower(hdr), "bearer ") {
		return nil, errors.New("missing token")
	}
	return a.parse(strings.TrimSpace(hdr[7:]))
}

func (a *AuthManager) parse(tok string) (*ActorClaims, error) {
	claims := &ActorClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil || !tkn.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
