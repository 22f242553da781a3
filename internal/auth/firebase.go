package auth

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	firebaseCertsURL     = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"
	firebaseIssuerPrefix = "https://securetoken.google.com/"
	maxSubjectLength     = 128
	defaultCertsTTL      = time.Hour
	clockSkew            = 5 * time.Second
)

type firebaseClaims struct {
	AuthTime int64  `json:"auth_time"`
	Email    string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// FirebaseVerifier verifies Firebase Authentication ID tokens: RS256 JWTs
// signed by one of Google's rotating securetoken certificates.
type FirebaseVerifier struct {
	projectID string
	issuer    string
	certsURL  string
	client    *http.Client
	now       func() time.Time

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	expiresAt time.Time
}

// FirebaseOption configures FirebaseVerifier.
type FirebaseOption func(*FirebaseVerifier)

// WithCertsURL overrides the certificate endpoint (tests, emulators).
func WithCertsURL(u string) FirebaseOption {
	return func(v *FirebaseVerifier) {
		if u = strings.TrimSpace(u); u != "" {
			v.certsURL = u
		}
	}
}

func WithHTTPClient(c *http.Client) FirebaseOption {
	return func(v *FirebaseVerifier) {
		if c != nil {
			v.client = c
		}
	}
}

func WithFirebaseClock(fn func() time.Time) FirebaseOption {
	return func(v *FirebaseVerifier) {
		if fn != nil {
			v.now = fn
		}
	}
}

func NewFirebaseVerifier(projectID string, opts ...FirebaseOption) (*FirebaseVerifier, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, errors.New("firebase project id is required")
	}
	v := &FirebaseVerifier{
		projectID: projectID,
		issuer:    firebaseIssuerPrefix + projectID,
		certsURL:  firebaseCertsURL,
		client:    &http.Client{Timeout: 10 * time.Second},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify validates an ID token and returns the Firebase uid as subject.
func (v *FirebaseVerifier) Verify(ctx context.Context, token string) (VerifiedToken, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return VerifiedToken{}, fmt.Errorf("%w: token is empty", ErrInvalidToken)
	}
	parsed, err := jwt.ParseWithClaims(token, &firebaseClaims{}, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token has no kid header")
		}
		return v.publicKey(ctx, kid)
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.projectID),
		jwt.WithIssuer(v.issuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return VerifiedToken{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*firebaseClaims)
	if !ok || !parsed.Valid {
		return VerifiedToken{}, ErrInvalidToken
	}
	if claims.Subject == "" {
		return VerifiedToken{}, fmt.Errorf("%w: subject missing", ErrInvalidToken)
	}
	if len(claims.Subject) > maxSubjectLength {
		return VerifiedToken{}, fmt.Errorf("%w: subject longer than %d characters", ErrInvalidToken, maxSubjectLength)
	}
	if claims.AuthTime > 0 && time.Unix(claims.AuthTime, 0).After(v.now().Add(clockSkew)) {
		return VerifiedToken{}, fmt.Errorf("%w: auth_time is in the future", ErrInvalidToken)
	}
	return VerifiedToken{Subject: claims.Subject, Issuer: claims.Issuer, Email: claims.Email}, nil
}

func (v *FirebaseVerifier) publicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.keys == nil || !v.now().Before(v.expiresAt) {
		if err := v.refreshLocked(ctx); err != nil {
			return nil, err
		}
	}
	key, ok := v.keys[kid]
	if !ok {
		return nil, fmt.Errorf("no certificate for kid %q", kid)
	}
	return key, nil
}

func (v *FirebaseVerifier) refreshLocked(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.certsURL, nil)
	if err != nil {
		return fmt.Errorf("build certs request: %w", err)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch certs: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch certs: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read certs: %w", err)
	}
	keys, err := parseCertificates(body)
	if err != nil {
		return err
	}
	v.keys = keys
	v.expiresAt = v.now().Add(cacheMaxAge(resp.Header.Get("Cache-Control")))
	return nil
}

func parseCertificates(body []byte) (map[string]*rsa.PublicKey, error) {
	var raw map[string]string
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode certs: %w", err)
	}
	keys := make(map[string]*rsa.PublicKey, len(raw))
	for kid, certPEM := range raw {
		block, _ := pem.Decode([]byte(certPEM))
		if block == nil {
			return nil, fmt.Errorf("certificate %s: invalid PEM", kid)
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("certificate %s: %w", kid, err)
		}
		pub, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("certificate %s: not an RSA key", kid)
		}
		keys[kid] = pub
	}
	return keys, nil
}

// cacheMaxAge reads max-age from a Cache-Control header value.
func cacheMaxAge(header string) time.Duration {
	for _, directive := range strings.Split(header, ",") {
		directive = strings.TrimSpace(directive)
		name, value, ok := strings.Cut(directive, "=")
		if !ok || !strings.EqualFold(name, "max-age") {
			continue
		}
		secs, err := strconv.Atoi(strings.Trim(value, `"`))
		if err != nil || secs <= 0 {
			return defaultCertsTTL
		}
		return time.Duration(secs) * time.Second
	}
	return defaultCertsTTL
}
