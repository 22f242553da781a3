package config

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"duka.app/internal/auth"
)

// Config holds the process settings read from DUKA_* environment variables.
type Config struct {
	HTTPAddr string
	GRPCAddr string
	PGDSN    string

	FirebaseProjectID    string
	FirebaseCertsURL     string
	FirebaseCertsTimeout time.Duration
	AuthSecret           string
	AuthIssuer           string

	ProtectedPrefix     string
	RoleMismatchStatus  int
	MissingPolicy       auth.MissingPolicyMode
	RequiredPolicyPaths []string

	RateLimitRPS   int
	RateLimitBurst int
	MaxBodyBytes   int64
}

// Load reads the environment and applies defaults.
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	cfg := Config{
		HTTPAddr:          stringOr(getenv("DUKA_HTTP_ADDR"), ":8080"),
		GRPCAddr:          strings.TrimSpace(getenv("DUKA_GRPC_ADDR")),
		PGDSN:             strings.TrimSpace(getenv("DUKA_PG_DSN")),
		FirebaseProjectID: strings.TrimSpace(getenv("DUKA_FIREBASE_PROJECT_ID")),
		FirebaseCertsURL:  strings.TrimSpace(getenv("DUKA_FIREBASE_CERTS_URL")),
		AuthSecret:        getenv("DUKA_AUTH_SECRET"),
		AuthIssuer:        strings.TrimSpace(getenv("DUKA_AUTH_ISSUER")),
		ProtectedPrefix:   stringOr(getenv("DUKA_PROTECTED_PREFIX"), auth.DefaultProtectedPrefix),
	}

	var err error
	if cfg.RoleMismatchStatus, err = intOr(getenv, "DUKA_ROLE_MISMATCH_STATUS", auth.StatusRoleMismatchLegacy); err != nil {
		return Config{}, err
	}
	if cfg.RoleMismatchStatus < http.StatusBadRequest || cfg.RoleMismatchStatus > 599 {
		return Config{}, fmt.Errorf("DUKA_ROLE_MISMATCH_STATUS must be a 4xx or 5xx code, got %d", cfg.RoleMismatchStatus)
	}
	if cfg.MissingPolicy, err = auth.ParseMissingPolicyMode(getenv("DUKA_MISSING_POLICY")); err != nil {
		return Config{}, fmt.Errorf("DUKA_MISSING_POLICY: %w", err)
	}
	cfg.RequiredPolicyPaths = splitList(getenv("DUKA_REQUIRED_POLICY_PATHS"))

	if cfg.RateLimitRPS, err = intOr(getenv, "DUKA_RATE_LIMIT_RPS", 50); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitBurst, err = intOr(getenv, "DUKA_RATE_LIMIT_BURST", 100); err != nil {
		return Config{}, err
	}
	maxBody, err := intOr(getenv, "DUKA_MAX_BODY_BYTES", 1<<20)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxBodyBytes = int64(maxBody)
	certsTimeout, err := intOr(getenv, "DUKA_FIREBASE_CERTS_TIMEOUT_SECONDS", 10)
	if err != nil {
		return Config{}, err
	}
	cfg.FirebaseCertsTimeout = time.Duration(certsTimeout) * time.Second

	if cfg.FirebaseProjectID == "" && cfg.AuthSecret == "" {
		return Config{}, fmt.Errorf("either DUKA_FIREBASE_PROJECT_ID or DUKA_AUTH_SECRET must be set")
	}
	return cfg, nil
}

// UseFirebase reports whether tokens are verified against Firebase rather
// than the local HS256 secret.
func (c Config) UseFirebase() bool { return c.FirebaseProjectID != "" }

func stringOr(v, def string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	return v
}

func intOr(getenv func(string) string, key string, def int) (int, error) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, raw)
	}
	return n, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
