package trigger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"google.golang.org/api/idtoken"

	"github.com/yungbote/ragdesk-backend/internal/domain"
)

// TokenProvider mints a bearer token for a receiving service.
type TokenProvider interface {
	Token(ctx context.Context, audience string) (string, error)
}

// TokenVerifier checks a bearer token presented to the webhook.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) error
}

// GoogleIDTokens fetches Google-signed ID tokens from ambient credentials.
// Token sources are cached per audience and refresh themselves, so they are
// built on a process-lifetime context rather than the first caller's.
type GoogleIDTokens struct {
	mu        sync.Mutex
	sources   map[string]oauth2.TokenSource
	newSource func(ctx context.Context, audience string) (oauth2.TokenSource, error)
}

func NewGoogleIDTokens() *GoogleIDTokens {
	return &GoogleIDTokens{
		sources: map[string]oauth2.TokenSource{},
		newSource: func(ctx context.Context, audience string) (oauth2.TokenSource, error) {
			return idtoken.NewTokenSource(ctx, audience)
		},
	}
}

func (g *GoogleIDTokens) Token(ctx context.Context, audience string) (string, error) {
	g.mu.Lock()
	ts, ok := g.sources[audience]
	if !ok {
		var err error
		ts, err = g.newSource(context.Background(), audience)
		if err != nil {
			g.mu.Unlock()
			return "", &domain.AuthError{Audience: audience, Err: err}
		}
		g.sources[audience] = ts
	}
	g.mu.Unlock()

	tok, err := ts.Token()
	if err != nil {
		return "", &domain.AuthError{Audience: audience, Err: err}
	}
	return tok.AccessToken, nil
}

// GoogleVerifier validates Google-signed ID tokens for one audience.
type GoogleVerifier struct {
	Audience string
}

func (v GoogleVerifier) Verify(ctx context.Context, token string) error {
	if _, err := idtoken.Validate(ctx, token, v.Audience); err != nil {
		return &domain.AuthError{Audience: v.Audience, Err: err}
	}
	return nil
}

// SignedTokens issues and checks HS256 tokens with a shared secret. Used where
// Google credentials are unavailable.
type SignedTokens struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

func NewSignedTokens(secret string, ttl time.Duration) (*SignedTokens, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, &domain.ConfigError{Field: "auth.secret", Message: "is required for signed tokens"}
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SignedTokens{secret: []byte(secret), ttl: ttl, issuer: "ragdesk-trigger", now: time.Now}, nil
}

func (s *SignedTokens) Token(ctx context.Context, audience string) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", &domain.AuthError{Audience: audience, Err: err}
	}
	return signed, nil
}

// Verifier checks tokens minted by Token for audience.
func (s *SignedTokens) Verifier(audience string) TokenVerifier {
	return signedVerifier{s: s, audience: audience}
}

type signedVerifier struct {
	s        *SignedTokens
	audience string
}

func (v signedVerifier) Verify(ctx context.Context, token string) error {
	_, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.s.secret, nil
	},
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.s.now),
	)
	if err != nil {
		return &domain.AuthError{Audience: v.audience, Err: err}
	}
	return nil
}

var ErrMissingToken = errors.New("missing bearer token")

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(parts[1]), nil
}
