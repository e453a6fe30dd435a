// Package auth resolves bearer tokens to helpdesk profiles.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-helpdesk/core"
)

var (
	ErrMissingToken   = errors.New("auth: bearer token is required")
	ErrInvalidToken   = errors.New("auth: bearer token is invalid")
	ErrMissingSubject = errors.New("auth: token subject is required")
)

// Claims are the registered claims plus the optional fields issued by the
// identity provider alongside the subject.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type Config struct {
	Secret   string
	Issuer   string
	Audience string
	Leeway   time.Duration
}

// JWTAuthenticator verifies HS256 bearer tokens and maps the subject claim to
// a profile id.
type JWTAuthenticator struct {
	secret []byte
	parser *jwt.Parser
	now    func() time.Time
}

func NewJWTAuthenticator(cfg Config) (*JWTAuthenticator, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, fmt.Errorf("auth: jwt secret is required")
	}
	a := &JWTAuthenticator{
		secret: []byte(secret),
		now:    time.Now,
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return a.now() }),
	}
	if cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(cfg.Leeway))
	}
	if issuer := strings.TrimSpace(cfg.Issuer); issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience := strings.TrimSpace(cfg.Audience); audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	a.parser = jwt.NewParser(opts...)
	return a, nil
}

// WithClock overrides the time source used for exp and nbf checks.
func (a *JWTAuthenticator) WithClock(now func() time.Time) *JWTAuthenticator {
	if a != nil && now != nil {
		a.now = now
	}
	return a
}

func (a *JWTAuthenticator) Authenticate(_ context.Context, bearerToken string) (core.Principal, error) {
	if a == nil || a.parser == nil {
		return core.Principal{}, fmt.Errorf("auth: authenticator is not configured")
	}
	raw := strings.TrimSpace(bearerToken)
	if raw == "" {
		return core.Principal{}, ErrMissingToken
	}

	claims := &Claims{}
	token, err := a.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return core.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return core.Principal{}, ErrInvalidToken
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return core.Principal{}, ErrMissingSubject
	}

	principal := core.Principal{
		ProfileID: subject,
		Claims:    map[string]any{"sub": subject},
	}
	if claims.Email != "" {
		principal.Claims["email"] = claims.Email
	}
	if claims.Role != "" {
		principal.Claims["role"] = claims.Role
	}
	return principal, nil
}

// SignToken issues an HS256 token for profileID. Used by local tooling and tests.
func SignToken(secret string, profileID string, ttl time.Duration, now time.Time) (string, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", fmt.Errorf("auth: jwt secret is required")
	}
	if strings.TrimSpace(profileID) == "" {
		return "", ErrMissingSubject
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   profileID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < len("Bearer ") || !strings.EqualFold(header[:len("Bearer ")], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(header[len("Bearer "):])
}

var _ core.Authenticator = (*JWTAuthenticator)(nil)
