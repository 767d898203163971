package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.APIPort != "8080" {
		t.Fatalf("APIPort default = %q", cfg.APIPort)
	}
	if cfg.RecordStoreDriver != "postgres" || cfg.BlobStoreDriver != "localfs" {
		t.Fatalf("driver defaults = %q / %q", cfg.RecordStoreDriver, cfg.BlobStoreDriver)
	}
	if cfg.DedupWindowMinutes != 60 || cfg.DedupCandidateLimit != 20 {
		t.Fatalf("dedup defaults = %d / %d", cfg.DedupWindowMinutes, cfg.DedupCandidateLimit)
	}
	if cfg.NATSSubject != "invoices.ingested" {
		t.Fatalf("NATSSubject default = %q", cfg.NATSSubject)
	}
	if cfg.MaxUploadBytes != 25<<20 {
		t.Fatalf("MaxUploadBytes default = %d", cfg.MaxUploadBytes)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("RECORD_STORE_DRIVER", "firestore")
	t.Setenv("FIRESTORE_PROJECT_ID", "acme-prod")
	t.Setenv("API_RATE_LIMIT_RPS", "2.5")
	t.Setenv("LIST_LIMIT", "100")

	cfg := Load()
	if cfg.RecordStoreDriver != "firestore" || cfg.FirestoreProjectID != "acme-prod" {
		t.Fatalf("env override lost: %q / %q", cfg.RecordStoreDriver, cfg.FirestoreProjectID)
	}
	if cfg.APIRateLimitRPS != 2.5 {
		t.Fatalf("APIRateLimitRPS = %v", cfg.APIRateLimitRPS)
	}
	if cfg.ListLimit != 100 {
		t.Fatalf("ListLimit = %d", cfg.ListLimit)
	}
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("DEDUP_WINDOW_MINUTES", "soon")
	t.Setenv("API_RATE_LIMIT_RPS", "fast")

	cfg := Load()
	if cfg.DedupWindowMinutes != 60 {
		t.Fatalf("malformed int must fall back, got %d", cfg.DedupWindowMinutes)
	}
	if cfg.APIRateLimitRPS != 50 {
		t.Fatalf("malformed float must fall back, got %v", cfg.APIRateLimitRPS)
	}
}
