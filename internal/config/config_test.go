package config

import (
	"testing"
	"time"

	"duka.app/internal/auth"
)

func env(values map[string]string) func(string) string {
	return func(k string) string { return values[k] }
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(env(map[string]string{"DUKA_AUTH_SECRET": "dev"}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.ProtectedPrefix != "/api/" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.RoleMismatchStatus != auth.StatusRoleMismatchLegacy {
		t.Fatalf("expected legacy mismatch status, got %d", cfg.RoleMismatchStatus)
	}
	if cfg.MissingPolicy != auth.MissingPolicyAllow {
		t.Fatalf("expected fail-open default, got %s", cfg.MissingPolicy)
	}
	if cfg.RateLimitRPS != 50 || cfg.RateLimitBurst != 100 || cfg.MaxBodyBytes != 1<<20 {
		t.Fatalf("unexpected limits: %+v", cfg)
	}
	if cfg.UseFirebase() {
		t.Fatalf("expected HS256 mode without a project id")
	}
	if cfg.FirebaseCertsURL != "" || cfg.FirebaseCertsTimeout != 10*time.Second {
		t.Fatalf("unexpected firebase cert settings: %q %s", cfg.FirebaseCertsURL, cfg.FirebaseCertsTimeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := load(env(map[string]string{
		"DUKA_FIREBASE_PROJECT_ID":            "duka-prod",
		"DUKA_ROLE_MISMATCH_STATUS":           "403",
		"DUKA_MISSING_POLICY":                 "reject",
		"DUKA_REQUIRED_POLICY_PATHS":          " /api/a/, ,/api/b/ ",
		"DUKA_GRPC_ADDR":                      ":9090",
		"DUKA_FIREBASE_CERTS_URL":             "http://localhost:9099/certs",
		"DUKA_FIREBASE_CERTS_TIMEOUT_SECONDS": "3",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.UseFirebase() || cfg.RoleMismatchStatus != 403 || cfg.MissingPolicy != auth.MissingPolicyReject {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if len(cfg.RequiredPolicyPaths) != 2 || cfg.RequiredPolicyPaths[1] != "/api/b/" {
		t.Fatalf("unexpected required paths: %v", cfg.RequiredPolicyPaths)
	}
	if cfg.GRPCAddr != ":9090" {
		t.Fatalf("unexpected grpc addr %q", cfg.GRPCAddr)
	}
	if cfg.FirebaseCertsURL != "http://localhost:9099/certs" || cfg.FirebaseCertsTimeout != 3*time.Second {
		t.Fatalf("unexpected firebase cert settings: %q %s", cfg.FirebaseCertsURL, cfg.FirebaseCertsTimeout)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]map[string]string{
		"no verifier":    {},
		"status range":   {"DUKA_AUTH_SECRET": "x", "DUKA_ROLE_MISMATCH_STATUS": "200"},
		"status not int": {"DUKA_AUTH_SECRET": "x", "DUKA_ROLE_MISMATCH_STATUS": "abc"},
		"policy mode":    {"DUKA_AUTH_SECRET": "x", "DUKA_MISSING_POLICY": "maybe"},
		"negative limit": {"DUKA_AUTH_SECRET": "x", "DUKA_RATE_LIMIT_RPS": "-1"},
	}
	for name, values := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := load(env(values)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
