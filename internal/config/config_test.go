package config

import (
	"os"
	"path/filepath"
	"testing"
)

// inTempDir runs the test from an empty directory so a developer's .env
// does not leak into the assertions.
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	inTempDir(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 8080 || cfg.Storage != "postgres" || cfg.EmailProvider != "log" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.SQSRegion != cfg.AWSRegion || cfg.SNSRegion != cfg.AWSRegion {
		t.Errorf("queue regions should default to AWS_REGION, got %q/%q", cfg.SQSRegion, cfg.SNSRegion)
	}
	if cfg.ReminderLookaheadHours != 24 || cfg.BreakerMaxFailures != 5 {
		t.Errorf("unexpected worker defaults %+v", cfg)
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	inTempDir(t)
	t.Setenv("PORT", "9090")
	t.Setenv("STORAGE", "memory")
	t.Setenv("EMAIL_PROVIDER", "smtp")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("SQS_QUEUE_URL", "https://sqs.eu-west-1.amazonaws.com/1/events")
	t.Setenv("EMAIL_RATE_PER_SECOND", "2.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 9090 || cfg.Storage != "memory" || cfg.EmailProvider != "smtp" || cfg.SMTPPort != 2525 {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.SQSRegion != "eu-west-1" {
		t.Errorf("expected SQS region from AWS_REGION, got %q", cfg.SQSRegion)
	}
	if cfg.EmailRatePerSecond != 2.5 {
		t.Errorf("expected 2.5 emails/s, got %v", cfg.EmailRatePerSecond)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"port", "PORT", "eighty"},
		{"db port", "DB_PORT", "x"},
		{"storage", "STORAGE", "sqlite"},
		{"provider", "EMAIL_PROVIDER", "pigeon"},
		{"email rate", "EMAIL_RATE_PER_SECOND", "-1"},
		{"breaker", "BREAKER_MAX_FAILURES", "many"},
		{"admin ids", "ADMIN_USER_IDS", "1,bob"},
		{"admin id zero", "ADMIN_USER_IDS", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inTempDir(t)
			t.Setenv(tt.key, tt.value)

			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestLoad_AdminUserIDs(t *testing.T) {
	inTempDir(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.AdminUserIDs) != 0 {
		t.Errorf("expected no admins by default, got %v", cfg.AdminUserIDs)
	}

	t.Setenv("ADMIN_USER_IDS", " 1, 42 ,,7")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []int64{1, 42, 7}
	if len(cfg.AdminUserIDs) != len(want) {
		t.Fatalf("expected %v, got %v", want, cfg.AdminUserIDs)
	}
	for i, id := range want {
		if cfg.AdminUserIDs[i] != id {
			t.Errorf("admin %d: expected %d, got %d", i, id, cfg.AdminUserIDs[i])
		}
	}
}

func TestLoad_SendGridNeedsKey(t *testing.T) {
	inTempDir(t)
	t.Setenv("EMAIL_PROVIDER", "sendgrid")

	if _, err := Load(); err == nil {
		t.Fatal("expected error without SENDGRID_API_KEY")
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := inTempDir(t)
	content := "STORAGE=memory\nAPP_BASE_URL=https://applytrack.example.com\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	// godotenv sets process variables; clear them after the test.
	t.Setenv("STORAGE", "")
	t.Setenv("APP_BASE_URL", "")
	os.Unsetenv("STORAGE")
	os.Unsetenv("APP_BASE_URL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Storage != "memory" || cfg.AppBaseURL != "https://applytrack.example.com" {
		t.Errorf("expected values from .env, got %+v", cfg)
	}
}
