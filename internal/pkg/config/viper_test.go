package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestNewViperFromBytes(t *testing.T) {
	cfg, err := NewViperFromBytes("yaml", []byte(`
otp:
  ttl_seconds: 300
  channels: "email, sms,,"
  brands: [one, " two "]
  labels: "env:dev, team : auth"
  enabled: true
`))
	if err != nil {
		t.Fatalf("NewViperFromBytes() error = %v", err)
	}

	if got := cfg.GetSecond("otp.ttl_seconds"); got != 5*time.Minute {
		t.Fatalf("GetSecond() = %v, want 5m", got)
	}
	if got := cfg.GetArray("otp.channels"); !reflect.DeepEqual(got, []string{"email", "sms"}) {
		t.Fatalf("GetArray(string) = %#v", got)
	}
	if got := cfg.GetArray("otp.brands"); !reflect.DeepEqual(got, []string{"one", "two"}) {
		t.Fatalf("GetArray(list) = %#v", got)
	}
	if got := cfg.GetArray("otp.missing"); got != nil {
		t.Fatalf("GetArray(missing) = %#v, want nil", got)
	}
	if got := cfg.GetMap("otp.labels"); !reflect.DeepEqual(got, map[string]string{"env": "dev", "team": "auth"}) {
		t.Fatalf("GetMap() = %#v", got)
	}
	if !cfg.GetBool("otp.enabled") {
		t.Fatal("GetBool() = false, want true")
	}
}

func TestNewViperFromBytesRequiresType(t *testing.T) {
	if _, err := NewViperFromBytes(" ", nil); err != ErrConfigTypeRequired {
		t.Fatalf("error = %v, want %v", err, ErrConfigTypeRequired)
	}
}

func TestNewViperEnvOverride(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(file, []byte("otp:\n  ttl_seconds: 300\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OTP_TTL_SECONDS", "60")

	cfg, err := NewViper(file, WithEnv(""))
	if err != nil {
		t.Fatalf("NewViper() error = %v", err)
	}

	if got := cfg.GetSecond("otp.ttl_seconds"); got != time.Minute {
		t.Fatalf("GetSecond() = %v, want 1m", got)
	}
}

func TestNewViperMissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewViper(filepath.Join(t.TempDir(), "absent.yaml"), WithDefaults(map[string]any{
		"otp.store.driver": "memory",
	}))
	if err != nil {
		t.Fatalf("NewViper() error = %v", err)
	}

	if got := cfg.GetString("otp.store.driver"); got != "memory" {
		t.Fatalf("GetString() = %q, want memory", got)
	}
}

func TestNewViperMissingFileWithoutOptions(t *testing.T) {
	if _, err := NewViper(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("NewViper() error = nil, want not found")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".env")
	if err := os.WriteFile(file, []byte("OTPGATE_DOTENV_PROBE=loaded\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OTPGATE_DOTENV_PROBE", "")
	os.Unsetenv("OTPGATE_DOTENV_PROBE")

	if err := LoadDotEnv(file, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv("OTPGATE_DOTENV_PROBE"); got != "loaded" {
		t.Fatalf("env = %q, want loaded", got)
	}
}

func TestWithOverridesBeatsFileAndEnv(t *testing.T) {
	t.Setenv("APP_SERVER_HTTP_ADDRESS", ":7000")

	cfg, err := NewViperFromBytes("yaml", []byte("app:\n  server:\n    http:\n      address: \":8080\"\n"),
		WithEnv(""),
		WithOverrides(map[string]any{"app.server.http.address": ":3000"}),
	)
	if err != nil {
		t.Fatalf("NewViperFromBytes() error = %v", err)
	}

	if got := cfg.GetString("app.server.http.address"); got != ":3000" {
		t.Fatalf("GetString() = %q, want :3000", got)
	}
}
