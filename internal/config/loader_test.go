package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var managedKeys = []string{
	"FIELDSCHED_CONFIG",
	"FIELDSCHED_HTTP_PORT",
	"FIELDSCHED_SQLITE_DSN",
	"FIELDSCHED_TIME_ZONE",
	"FIELDSCHED_DELIVERY_TIMEOUT",
	"FIELDSCHED_DELIVERY_RATE",
	"FIELDSCHED_NOTIFICATION_RECIPIENTS",
	"FIELDSCHED_SMTP_USER",
	"FIELDSCHED_SMTP_PASSWORD",
	"FIELDSCHED_SMTP_FROM",
	"FIELDSCHED_WEATHER_LOCATIONS",
	"FIELDSCHED_REDIS_ADDR",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range managedKeys {
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("failed to unset %s: %v", key, err)
		}
	}
}

func TestLoader_ParseEnvironment(t *testing.T) {

	t.Run("applies defaults when optional variables are missing", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("FIELDSCHED_SMTP_USER", "ops@example.com")
		t.Setenv("FIELDSCHED_SMTP_PASSWORD", "secret")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.HTTPPort != 8080 {
			t.Fatalf("expected default HTTP port 8080, got %d", cfg.HTTPPort)
		}
		if cfg.SQLiteDSN != "fieldsched.db" {
			t.Fatalf("unexpected default DSN: %q", cfg.SQLiteDSN)
		}
		if cfg.SMTP.From != "ops@example.com" {
			t.Fatalf("expected sender to default to SMTP user, got %q", cfg.SMTP.From)
		}
		if cfg.Jobs.Rerouting != "@hourly" {
			t.Fatalf("unexpected rerouting schedule %q", cfg.Jobs.Rerouting)
		}
		if cfg.Weather.DefaultLocation != "Site A" {
			t.Fatalf("unexpected default weather location %q", cfg.Weather.DefaultLocation)
		}
		if cfg.Location != time.UTC {
			t.Fatalf("expected UTC business location, got %v", cfg.Location)
		}
	})

	t.Run("errors when required values are missing", func(t *testing.T) {
		clearEnv(t)

		_, err := Load()
		if err == nil {
			t.Fatalf("expected error when required values are missing")
		}
		expected := "必須の環境変数が設定されていません: FIELDSCHED_SMTP_USER, FIELDSCHED_SMTP_PASSWORD"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})

	t.Run("parses duration, list, and numeric fields", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("FIELDSCHED_SMTP_USER", "ops@example.com")
		t.Setenv("FIELDSCHED_SMTP_PASSWORD", "secret")
		t.Setenv("FIELDSCHED_HTTP_PORT", "9090")
		t.Setenv("FIELDSCHED_DELIVERY_TIMEOUT", "3s")
		t.Setenv("FIELDSCHED_DELIVERY_RATE", "2.5")
		t.Setenv("FIELDSCHED_NOTIFICATION_RECIPIENTS", "a@example.com, b@example.com,")
		t.Setenv("FIELDSCHED_WEATHER_LOCATIONS", "Site A,Site B")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.HTTPPort != 9090 {
			t.Fatalf("expected port 9090, got %d", cfg.HTTPPort)
		}
		if cfg.Delivery.Timeout != 3*time.Second {
			t.Fatalf("expected 3s timeout, got %s", cfg.Delivery.Timeout)
		}
		if cfg.Delivery.RatePerSecond != 2.5 {
			t.Fatalf("expected rate 2.5, got %v", cfg.Delivery.RatePerSecond)
		}
		if len(cfg.Delivery.Recipients) != 2 || cfg.Delivery.Recipients[1] != "b@example.com" {
			t.Fatalf("unexpected recipients %#v", cfg.Delivery.Recipients)
		}
		if len(cfg.Weather.Locations) != 2 {
			t.Fatalf("unexpected weather locations %#v", cfg.Weather.Locations)
		}
	})

	t.Run("reports invalid values", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("FIELDSCHED_SMTP_USER", "ops@example.com")
		t.Setenv("FIELDSCHED_SMTP_PASSWORD", "secret")
		t.Setenv("FIELDSCHED_HTTP_PORT", "-1")
		t.Setenv("FIELDSCHED_DELIVERY_TIMEOUT", "soon")

		_, err := Load()
		if err == nil {
			t.Fatalf("expected error for invalid values")
		}
		expected := "環境変数の値が不正です: FIELDSCHED_HTTP_PORT, FIELDSCHED_DELIVERY_TIMEOUT"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})
}

func TestLoader_YAMLFileWithEnvironmentOverride(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "fieldsched.yaml")
	content := []byte(`
http_port: 7070
sqlite_dsn: /var/lib/fieldsched/data.db
time_zone: America/Los_Angeles
jobs:
  notifications: "0 7 * * *"
delivery:
  timeout: 20s
  recipients: [dispatch@example.com]
smtp:
  username: file-user
  password: file-pass
weather:
  locations: [Site B]
redis:
  addr: localhost:6379
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv("FIELDSCHED_CONFIG", path)
	t.Setenv("FIELDSCHED_HTTP_PORT", "9191")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.HTTPPort != 9191 {
		t.Fatalf("expected environment to override file port, got %d", cfg.HTTPPort)
	}
	if cfg.SQLiteDSN != "/var/lib/fieldsched/data.db" {
		t.Fatalf("expected DSN from file, got %q", cfg.SQLiteDSN)
	}
	if cfg.Location.String() != "America/Los_Angeles" {
		t.Fatalf("expected location from file, got %v", cfg.Location)
	}
	if cfg.Jobs.Notifications != "0 7 * * *" {
		t.Fatalf("unexpected notifications schedule %q", cfg.Jobs.Notifications)
	}
	if cfg.Delivery.Timeout != 20*time.Second {
		t.Fatalf("expected timeout from file, got %s", cfg.Delivery.Timeout)
	}
	if cfg.SMTP.Username != "file-user" || cfg.SMTP.From != "file-user" {
		t.Fatalf("unexpected SMTP settings %#v", cfg.SMTP)
	}
	if cfg.Weather.Locations[0] != "Site B" {
		t.Fatalf("unexpected weather locations %#v", cfg.Weather.Locations)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("unexpected redis addr %q", cfg.Redis.Addr)
	}
}

func TestLoader_MalformedFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("http_port: [unterminated"), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	t.Setenv("FIELDSCHED_CONFIG", path)

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for malformed YAML")
	}
}
