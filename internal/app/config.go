package app

import (
	"log/slog"
	"net"
	"os"
	"strings"

	"github.com/shandysiswandi/otpgate/internal/pkg/config"
)

const defaultConfigPath = "./config/config.yaml"

// defaults let the service boot from environment alone: in-memory ledger,
// synchronous delivery and no optional backends.
var defaults = map[string]any{
	"app.tz":                                      "UTC",
	"app.server.http.address":                     ":8080",
	"app.server.http.read_timeout_seconds":        10,
	"app.server.http.read_header_timeout_seconds": 5,
	"app.server.http.write_timeout_seconds":       10,
	"app.server.http.idle_timeout_seconds":        60,
	"app.server.cors":                             []string{"*"},

	"instrument.service_name":       "otpgate",
	"instrument.log_mask_fields":    []string{"otp", "code", "password", "authorization", "token"},
	"instrument.trace_sample_ratio": 1.0,

	"http_client.timeout_seconds":     10,
	"http_client.retry.attempts":      3,
	"http_client.retry.base_delay_ms": 200,
	"http_client.retry.max_delay_ms":  2000,

	"otp.ttl_seconds":                   300,
	"otp.brand":                         "OTP Gate",
	"otp.delivery.mode":                 "sync",
	"otp.delivery.email.provider":       "smtp",
	"otp.store.driver":                  "memory",
	"otp.store.sweep_interval_seconds":  60,
	"otp.store.retention_grace_seconds": 86400,
	"otp.cooldown.driver":               "memory",
	"otp.rollback_on_delivery_failure":  false,
	"otp.token.enabled":                 false,
	"otp.events.enabled":                false,

	"jwt.issuer":      "otpgate",
	"jwt.ttl_minutes": 15,

	"mail.smtp.port": 465,

	"modules.otp.enabled":              true,
	"modules.otp.consumer_names":       []string{"otp_challenge_requested_delivery"},
	"modules.otp.consumer_concurrency": 4,
	"modules.notification.enabled":     true,
}

func loadConfig() config.Config {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = defaultConfigPath
	}

	opts := []config.Option{config.WithDefaults(defaults), config.WithEnv("")}
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		opts = append(opts, config.WithOverrides(map[string]any{
			"app.server.http.address": net.JoinHostPort("", port),
		}))
	}

	cfg, err := config.NewViper(path, opts...)
	if err != nil {
		slog.Error("failed to init config", "path", path, "error", err)
		os.Exit(1)
	}

	//nolint:errcheck,gosec // ignore error
	os.Setenv("TZ", cfg.GetString("app.tz"))

	return cfg
}
