package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultHMACIssuer = "duka"

var errMissingSecret = errors.New("auth secret is not configured")

// Claims represents the HS256 development token claims.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// HMACVerifier issues and verifies HS256 tokens. It stands in for the
// identity provider in local development and tests.
type HMACVerifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// HMACOption configures HMACVerifier.
type HMACOption func(*HMACVerifier)

// WithHMACIssuer overrides the issuer claim written and required.
func WithHMACIssuer(issuer string) HMACOption {
	return func(v *HMACVerifier) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			v.issuer = issuer
		}
	}
}

// WithHMACClock overrides the time source.
func WithHMACClock(fn func() time.Time) HMACOption {
	return func(v *HMACVerifier) {
		if fn != nil {
			v.now = fn
		}
	}
}

func NewHMACVerifier(secret string, opts ...HMACOption) (*HMACVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errMissingSecret
	}
	v := &HMACVerifier{secret: []byte(secret), issuer: defaultHMACIssuer, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// GenerateToken signs a token for subject valid for ttl.
func (v *HMACVerifier) GenerateToken(subject, email string, ttl time.Duration) (string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", errors.New("subject is required")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be greater than zero")
	}
	now := v.now().UTC()
	claims := Claims{
		Email: strings.TrimSpace(email),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and required claims.
func (v *HMACVerifier) Verify(_ context.Context, token string) (VerifiedToken, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return VerifiedToken{}, fmt.Errorf("%w: token is empty", ErrInvalidToken)
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithTimeFunc(v.now), jwt.WithExpirationRequired())
	if err != nil {
		return VerifiedToken{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return VerifiedToken{}, ErrInvalidToken
	}
	if err := v.validateClaims(claims); err != nil {
		return VerifiedToken{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return VerifiedToken{Subject: claims.Subject, Issuer: claims.Issuer, Email: claims.Email}, nil
}

func (v *HMACVerifier) validateClaims(claims *Claims) error {
	if claims.Issuer != v.issuer {
		return fmt.Errorf("unexpected issuer: %s", claims.Issuer)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if claims.IssuedAt == nil {
		return errors.New("issued-at missing")
	}
	// Allow a small clock skew of 5 seconds when validating issued-at.
	if claims.IssuedAt.Time.After(v.now().Add(clockSkew)) {
		return errors.New("token issued in the future")
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return errors.New("token expiry precedes issued-at")
	}
	return nil
}
