package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// TokenUse separates access tokens from refresh tokens signed with the same key.
type TokenUse string

const (
	AccessToken  TokenUse = "access"
	RefreshToken TokenUse = "refresh"
)

type Claims struct {
	Role     string   `json:"role"`
	Document string   `json:"doc,omitempty"`
	Use      TokenUse `json:"use"`
	jwt.RegisteredClaims
}

// IssuerOptions configures token lifetimes; zero values use 24h and 7 days.
type IssuerOptions struct {
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Now        func() time.Time
}

// Issuer signs and verifies HS256 tokens for one shared secret.
type Issuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewIssuer(secret string, opts IssuerOptions) (*Issuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	iss := &Issuer{
		secret:     []byte(secret),
		issuer:     opts.Issuer,
		accessTTL:  opts.AccessTTL,
		refreshTTL: opts.RefreshTTL,
		now:        opts.Now,
	}
	if iss.issuer == "" {
		iss.issuer = "clinicapi"
	}
	if iss.accessTTL <= 0 {
		iss.accessTTL = 24 * time.Hour
	}
	if iss.refreshTTL <= 0 {
		iss.refreshTTL = 7 * 24 * time.Hour
	}
	if iss.now == nil {
		iss.now = time.Now
	}
	return iss, nil
}

func (i *Issuer) AccessTTL() time.Duration { return i.accessTTL }

// Issue signs a token of the given use for subject. It returns the token and
// its expiry.
func (i *Issuer) Issue(use TokenUse, subject, role, document string) (string, time.Time, error) {
	ttl := i.accessTTL
	if use == RefreshToken {
		ttl = i.refreshTTL
	}
	now := i.now()
	exp := now.Add(ttl)
	claims := Claims{
		Role:     role,
		Document: document,
		Use:      use,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", use, err)
	}
	return signed, exp, nil
}

// Verify checks signature, issuer, expiry and token use.
func (i *Issuer) Verify(token string, use TokenUse) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if claims.Use != use || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
