package main

import (
	"strings"
	"testing"
	"time"
)

func TestResolveStorageDriverDefaultsToPostgresWithDSN(t *testing.T) {
	driver, err := resolveStorageDriver("", "", "postgres://example")
	if err != nil {
		t.Fatalf("resolveStorageDriver returned error: %v", err)
	}
	if driver != "postgres" {
		t.Fatalf("expected postgres driver, got %q", driver)
	}
}

func TestResolveStorageDriverDefaultsToJSON(t *testing.T) {
	driver, err := resolveStorageDriver("", "", "")
	if err != nil {
		t.Fatalf("resolveStorageDriver returned error: %v", err)
	}
	if driver != "json" {
		t.Fatalf("expected json driver, got %q", driver)
	}
}

func TestResolveStorageDriverPrefersFlag(t *testing.T) {
	driver, err := resolveStorageDriver("JSON", "postgres", "postgres://example")
	if err != nil {
		t.Fatalf("resolveStorageDriver returned error: %v", err)
	}
	if driver != "json" {
		t.Fatalf("expected flag to win, got %q", driver)
	}
}

func TestValidateProductionDatastoreRejectsJSON(t *testing.T) {
	if err := validateProductionDatastore("json", "postgres://example"); err == nil {
		t.Fatal("expected error when production mode uses non-postgres driver")
	}
}

func TestValidateProductionDatastoreRequiresDSN(t *testing.T) {
	if err := validateProductionDatastore("postgres", " "); err == nil {
		t.Fatal("expected error when resolved Postgres DSN is empty")
	}
}

func TestResolvePostgresDSNPriority(t *testing.T) {
	t.Setenv("SLIDECAST_POSTGRES_DSN", "postgres://env")
	t.Setenv("DATABASE_URL", "postgres://database")

	if got := resolvePostgresDSN("postgres://flag"); got != "postgres://flag" {
		t.Fatalf("expected flag DSN to win, got %q", got)
	}
	if got := resolvePostgresDSN(""); got != "postgres://env" {
		t.Fatalf("expected SLIDECAST_POSTGRES_DSN to win, got %q", got)
	}
	t.Setenv("SLIDECAST_POSTGRES_DSN", "")
	if got := resolvePostgresDSN(""); got != "postgres://database" {
		t.Fatalf("expected DATABASE_URL fallback, got %q", got)
	}
}

func TestResolveJWTSecret(t *testing.T) {
	_, err := resolveJWTSecret("", "", "production")
	if err == nil {
		t.Fatal("expected error in production without a secret")
	}
	if !strings.Contains(err.Error(), "SLIDECAST_JWT_SECRET") {
		t.Fatalf("expected error to name SLIDECAST_JWT_SECRET, got %q", err)
	}

	secret, err := resolveJWTSecret("flag-secret", "env-secret", "production")
	if err != nil {
		t.Fatalf("resolveJWTSecret returned error: %v", err)
	}
	if secret != "flag-secret" {
		t.Fatalf("expected flag secret to win, got %q", secret)
	}

	generated, err := resolveJWTSecret("", "", "development")
	if err != nil {
		t.Fatalf("resolveJWTSecret returned error: %v", err)
	}
	if len(generated) != 64 {
		t.Fatalf("expected 64 hex characters, got %d", len(generated))
	}
}

func TestResolveListenAddr(t *testing.T) {
	if got := resolveListenAddr("", "development", ""); got != ":8080" {
		t.Fatalf("expected development default :8080, got %q", got)
	}
	if got := resolveListenAddr("", "production", ""); got != ":80" {
		t.Fatalf("expected production default :80, got %q", got)
	}
	if got := resolveListenAddr(":9999", "production", ":7777"); got != ":9999" {
		t.Fatalf("expected flag to win, got %q", got)
	}
	if got := resolveListenAddr("", "production", ":7777"); got != ":7777" {
		t.Fatalf("expected env to win over default, got %q", got)
	}
}

func TestResolveDuration(t *testing.T) {
	t.Setenv("SLIDECAST_TEST_DURATION", "90s")

	if got := resolveDuration(time.Second, "SLIDECAST_TEST_DURATION", time.Minute); got != time.Second {
		t.Fatalf("expected flag to win, got %v", got)
	}
	if got := resolveDuration(0, "SLIDECAST_TEST_DURATION", time.Minute); got != 90*time.Second {
		t.Fatalf("expected env to win, got %v", got)
	}
	if got := resolveDuration(0, "SLIDECAST_TEST_MISSING", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback, got %v", got)
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := splitAndTrim(" https://a.example.com , ,https://b.example.com ")
	if len(got) != 2 || got[0] != "https://a.example.com" || got[1] != "https://b.example.com" {
		t.Fatalf("unexpected result: %v", got)
	}
	if splitAndTrim("  ") != nil {
		t.Fatal("expected nil for blank input")
	}
}
