package app

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/segmentio/kafka-go"
	"github.com/shandysiswandi/otpgate/internal/otp/ledger"
	"github.com/shandysiswandi/otpgate/internal/otp/outbound/store"
	"github.com/shandysiswandi/otpgate/internal/otp/usecase"
	"github.com/shandysiswandi/otpgate/internal/pkg/apiclient"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/cooldown"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/goroutine"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/jwt"
	"github.com/shandysiswandi/otpgate/internal/pkg/mail"
	"github.com/shandysiswandi/otpgate/internal/pkg/messaging"
	"github.com/shandysiswandi/otpgate/internal/pkg/push"
	"github.com/shandysiswandi/otpgate/internal/pkg/router"
	"github.com/shandysiswandi/otpgate/internal/pkg/sms"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
	"github.com/shandysiswandi/otpgate/internal/pkg/validator"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

const (
	emailProviderSMTP = "smtp"
	emailProviderAPI  = "api"
)

func (a *App) initInstrument() {
	ins, err := instrument.New(a.ctx, &instrument.Config{
		Enabled:          a.config.GetBool("instrument.enabled"),
		ServiceName:      a.config.GetString("instrument.service_name"),
		ServiceVersion:   a.config.GetString("instrument.service_version"),
		Environment:      a.config.GetString("instrument.env"),
		OTLPEndpoint:     a.config.GetString("instrument.otlp_endpoint"),
		OTLPSecure:       a.config.GetBool("instrument.otlp_secure"),
		TraceSampleRatio: a.config.GetFloat64("instrument.trace_sample_ratio"),
		MetricsInterval:  a.config.GetSecond("instrument.metric_interval_seconds"),
		MaskFields:       a.config.GetArray("instrument.log_mask_fields"),
		LogLevel:         a.config.GetString("instrument.log_level"),
	})
	if err != nil {
		slog.Error("failed to init instrumentation", "error", err)
		os.Exit(1)
	}
	a.ins = ins
}

func (a *App) initLibraries() {
	a.clock = clock.New()
	a.uuid = uid.NewUUID()
	a.goroutine = goroutine.NewManager(a.config.GetInt("app.server.max_goroutine"))

	validator, err := validator.NewV10Validator()
	if err != nil {
		slog.Error("failed to init validation v10 validator", "error", err)
		os.Exit(1)
	}
	a.validator = validator

	snow, err := uid.NewSnowflake()
	if err != nil {
		slog.Error("failed to init uid number snowflake", "error", err)
		os.Exit(1)
	}
	a.uid = snow
}

func (a *App) initJWT() {
	if !a.config.GetBool("otp.token.enabled") {
		return
	}

	symmetric, err := jwt.NewHS512(jwt.Config{
		Secret:    []byte(a.config.GetString("jwt.secret")),
		Issuer:    a.config.GetString("jwt.issuer"),
		Audiences: a.config.GetArray("jwt.audiences"),
		TTL:       a.config.GetMinute("jwt.ttl_minutes"),
		Clock:     a.clock,
		UUID:      a.uuid,
	})
	if err != nil {
		slog.Error("failed to init jwt token", "error", err)
		os.Exit(1)
	}
	a.jwt = symmetric
}

func (a *App) storeDriver() string {
	driver, err := store.ParseDriver(a.config.GetString("otp.store.driver"))
	if err != nil {
		slog.Error("failed to parse otp store driver", "error", err)
		os.Exit(1)
	}
	return driver
}

func (a *App) cooldownEnabled() bool {
	return a.config.GetSecond("otp.cooldown_seconds") > 0
}

func (a *App) initCache() {
	needed := a.storeDriver() == store.DriverRedis ||
		(a.cooldownEnabled() && strings.EqualFold(a.config.GetString("otp.cooldown.driver"), "redis"))
	if !needed {
		return
	}

	opt, err := redis.ParseURL(a.config.GetString("redis.url"))
	if err != nil {
		slog.Error("failed to parse redis url", "error", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(a.ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		slog.Error("failed to init redis", "error", err)
		os.Exit(1)
	}

	a.cacheConn = rdb
}

func (a *App) initDatabase() {
	if a.storeDriver() != store.DriverPostgres {
		return
	}

	dsn := a.config.GetString("database.url")
	if a.config.GetBool("database.auto_migrate") {
		if err := store.Migrate(dsn); err != nil {
			slog.Error("failed to migrate DB", "error", err)
			os.Exit(1)
		}
	}

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		slog.Error("failed to parse DB connection string.", "error", err)
		os.Exit(1)
	}

	if v := a.config.GetInt32("database.pool.max_conns"); v > 0 {
		config.MaxConns = v
	}
	if v := a.config.GetInt32("database.pool.min_conns"); v > 0 {
		config.MinConns = v
	}
	if v := a.config.GetSecond("database.pool.max_conn_lifetime_seconds"); v > 0 {
		config.MaxConnLifetime = v
	}
	if v := a.config.GetSecond("database.pool.max_conn_idle_seconds"); v > 0 {
		config.MaxConnIdleTime = v
	}
	if v := a.config.GetSecond("database.pool.health_check_period_seconds"); v > 0 {
		config.HealthCheckPeriod = v
	}

	pool, err := pgxpool.NewWithConfig(a.ctx, config)
	if err != nil {
		slog.Error("failed to create DB connection pool", "error", err)
		os.Exit(1)
	}

	pingCtx, cancel := context.WithTimeout(a.ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		slog.Error("failed to ping DB", "error", err)
		os.Exit(1)
	}

	a.dbConn = pool
}

func (a *App) initLedgerStore() {
	driver := a.storeDriver()

	grace := a.config.GetSecond("otp.store.retention_grace_seconds")
	if grace <= 0 {
		grace = ledger.DefaultRetentionGrace
	}
	interval := a.config.GetSecond("otp.store.sweep_interval_seconds")
	if interval <= 0 {
		interval = time.Minute
	}

	// sweep is set for backends that retire entries themselves.
	var sweep func(ctx context.Context, interval time.Duration) error

	switch driver {
	case store.DriverRedis:
		a.ledgerStore = store.NewRedis(a.cacheConn, grace, a.ins)
	case store.DriverPostgres:
		pg := store.NewPostgres(a.dbConn, a.clock, grace, a.ins)
		a.ledgerStore, sweep = pg, pg.Run
	case store.DriverBbolt:
		db, err := store.NewBbolt(a.config.GetString("otp.store.bbolt.path"), a.clock, grace)
		if err != nil {
			slog.Error("failed to open bbolt ledger store", "error", err)
			os.Exit(1)
		}
		a.ledgerStore, sweep = db, db.Run
		a.addCloser("Ledger Store", func(context.Context) error { return db.Close() })
	default:
		mem := store.NewMemory(a.clock, grace)
		a.ledgerStore, sweep = mem, mem.Run
	}

	if sweep != nil {
		a.goroutine.Go(a.ctx, func(ctx context.Context) error {
			return sweep(ctx, interval)
		})
	}

	slog.Info("otp ledger store ready", "driver", driver, "retention_grace", grace.String())
}

func (a *App) initCooldown() {
	if !a.cooldownEnabled() {
		return
	}

	if a.cacheConn != nil && strings.EqualFold(a.config.GetString("otp.cooldown.driver"), "redis") {
		a.cooldown = cooldown.NewRedis(a.cacheConn)
		return
	}
	a.cooldown = cooldown.NewMemory(a.clock)
}

func (a *App) apiClient() *apiclient.Client {
	return apiclient.New(apiclient.Config{
		HTTPClient: &http.Client{Timeout: a.config.GetSecond("http_client.timeout_seconds")},
		Attempts:   uint64(a.config.GetUint("http_client.retry.attempts")),
		BaseDelay:  time.Duration(a.config.GetInt("http_client.retry.base_delay_ms")) * time.Millisecond,
		MaxDelay:   time.Duration(a.config.GetInt("http_client.retry.max_delay_ms")) * time.Millisecond,
	})
}

func (a *App) initMail() {
	provider := strings.ToLower(strings.TrimSpace(a.config.GetString("otp.delivery.email.provider")))

	var (
		m   mail.Mail
		err error
	)
	switch provider {
	case emailProviderSMTP:
		if a.config.GetString("mail.smtp.host") == "" {
			slog.Warn("smtp host not configured, email delivery disabled")
			return
		}
		m, err = mail.NewSMTP(mail.SMTPConfig{
			Host:        a.config.GetString("mail.smtp.host"),
			Port:        a.config.GetInt("mail.smtp.port"),
			Username:    a.config.GetString("mail.smtp.username"),
			Password:    a.config.GetString("mail.smtp.password"),
			From:        a.config.GetString("mail.smtp.from"),
			ImplicitTLS: a.config.GetBool("mail.smtp.implicit_tls"),
			Timeout:     a.config.GetSecond("mail.smtp.timeout_seconds"),
		})
	case emailProviderAPI:
		m, err = mail.NewAPI(mail.APIConfig{
			Endpoint: a.config.GetString("mail.api.endpoint"),
			APIKey:   a.config.GetString("mail.api.key"),
			From:     a.config.GetString("mail.api.from"),
			Client:   a.apiClient(),
		})
	case "", "none":
		slog.Warn("email provider not configured, email delivery disabled")
		return
	default:
		slog.Error("failed to init mail, unknown email provider", "provider", provider)
		os.Exit(1)
	}
	if err != nil {
		slog.Error("failed to init mail", "provider", provider, "error", err)
		os.Exit(1)
	}

	a.mail = m
}

func (a *App) initSMS() {
	if a.config.GetString("sms.api_key") == "" {
		slog.Warn("sms api key not configured, sms delivery disabled")
		return
	}

	gateway, err := sms.NewGateway(sms.Config{
		APIKey:   a.config.GetString("sms.api_key"),
		BaseURL:  a.config.GetString("sms.base_url"),
		SenderID: a.config.GetString("sms.sender_id"),
		Client:   a.apiClient(),
	})
	if err != nil {
		slog.Error("failed to init sms gateway", "error", err)
		os.Exit(1)
	}

	a.sms = gateway
}

func (a *App) initPush() {
	serviceAccount := a.config.GetBinary("push.fcm.service_account_json")
	if file := strings.TrimSpace(a.config.GetString("push.fcm.service_account_file")); file != "" {
		// #nosec G304 -- path is from trusted config file.
		raw, err := os.ReadFile(file)
		if err != nil {
			slog.Error("failed to read firebase service account file", "error", err)
			os.Exit(1)
		}
		serviceAccount = raw
	}
	if len(serviceAccount) == 0 {
		slog.Warn("firebase service account not configured, push notification disabled")
		return
	}

	fcm, err := push.NewFCMFromServiceAccount(a.ctx, serviceAccount, push.FCMConfig{
		ProjectID: a.config.GetString("push.fcm.project_id"),
		Endpoint:  a.config.GetString("push.fcm.endpoint"),
		Client:    a.apiClient(),
	})
	if err != nil {
		slog.Error("failed to init firebase cloud messaging", "error", err)
		os.Exit(1)
	}

	a.push = fcm
}

func (a *App) initMessaging() {
	driver := a.config.GetString("messaging.driver")
	async := strings.EqualFold(a.config.GetString("otp.delivery.mode"), usecase.DeliveryModeAsync)
	if driver == "" && !async && !a.config.GetBool("otp.events.enabled") {
		return
	}

	opts := messaging.Options{
		NSQ: messaging.NSQConfig{
			ProducerAddr: a.config.GetString("messaging.nsq.producer_addr"),
			NSQDAddrs:    a.config.GetArray("messaging.nsq.consumer_nsqd_addrs"),
			LookupdAddrs: a.config.GetArray("messaging.nsq.consumer_lookupd_addrs"),
		},
		NATS: messaging.NATSConfig{
			URL: a.config.GetString("messaging.nats.url"),
			Options: []nats.Option{
				nats.Name(a.config.GetString("messaging.nats.name")),
				nats.MaxReconnects(a.config.GetInt("messaging.nats.max_reconnects")),
				nats.ReconnectWait(a.config.GetSecond("messaging.nats.reconnect_wait_seconds")),
				nats.RetryOnFailedConnect(a.config.GetBool("messaging.nats.retry_on_failed_connect")),
			},
		},
		Kafka: messaging.KafkaConfig{
			Brokers: a.config.GetArray("messaging.kafka.brokers"),
			Dialer: &kafka.Dialer{
				ClientID:  a.config.GetString("messaging.kafka.client_id"),
				Timeout:   a.config.GetSecond("messaging.kafka.dial_timeout_seconds"),
				DualStack: true,
			},
			HandlerAttempts:  uint64(a.config.GetUint("messaging.kafka.handler_retry.attempts")),
			HandlerBaseDelay: time.Duration(a.config.GetInt("messaging.kafka.handler_retry.base_delay_ms")) * time.Millisecond,
			HandlerMaxDelay:  time.Duration(a.config.GetInt("messaging.kafka.handler_retry.max_delay_ms")) * time.Millisecond,
		},
		PubSub: messaging.PubSubConfig{
			ProjectID:     a.config.GetString("messaging.pubsub.project_id"),
			ClientOptions: a.pubsubOptions(),
		},
	}

	client, err := messaging.New(a.ctx, driver, opts)
	if err != nil {
		slog.Error("failed to init messaging", "error", err, "driver", driver)
		os.Exit(1)
	}

	a.messaging = client
}

func (a *App) pubsubOptions() []option.ClientOption {
	var opts []option.ClientOption
	if a.config.GetBool("messaging.pubsub.without_auth") {
		opts = append(opts, option.WithoutAuthentication())
	}
	if v := a.config.GetBinary("messaging.pubsub.credentials_json"); len(v) > 0 {
		creds, err := google.CredentialsFromJSON(a.ctx, v, "https://www.googleapis.com/auth/pubsub")
		if err != nil {
			slog.Error("failed to parse pubsub credentials json", "error", err)
			os.Exit(1)
		}
		opts = append(opts, option.WithCredentials(creds))
	}
	if v := strings.TrimSpace(a.config.GetString("messaging.pubsub.endpoint")); v != "" {
		opts = append(opts, option.WithEndpoint(v))
	}
	return opts
}

type healthResponse struct{}

func (healthResponse) Message() string { return "OK" }

func (healthResponse) Data() any { return nil }

func (a *App) health(r *router.Request) (any, error) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if a.cacheConn != nil {
		if err := a.cacheConn.Ping(ctx).Err(); err != nil {
			slog.ErrorContext(ctx, "failed to ping redis", "error", err)
			return nil, goerror.NewServer(err, "Redis unavailable")
		}
	}
	if a.dbConn != nil {
		if err := a.dbConn.Ping(ctx); err != nil {
			slog.ErrorContext(ctx, "failed to ping DB", "error", err)
			return nil, goerror.NewServer(err, "Database unavailable")
		}
	}

	return healthResponse{}, nil
}

func (a *App) initHTTPServer() {
	a.router = router.NewRouter(router.Config{
		Config:     a.config,
		UUID:       a.uuid,
		Instrument: a.ins,
	})

	a.router.GET("/health", a.health)
	a.router.GETRaw("/metrics", promhttp.Handler())

	routerWithCORS := cors.New(cors.Options{
		AllowedOrigins: a.config.GetArray("app.server.cors"),
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(a.router)

	a.httpServer = &http.Server{
		Addr:              a.config.GetString("app.server.http.address"),
		Handler:           routerWithCORS,
		ReadTimeout:       a.config.GetSecond("app.server.http.read_timeout_seconds"),
		ReadHeaderTimeout: a.config.GetSecond("app.server.http.read_header_timeout_seconds"),
		WriteTimeout:      a.config.GetSecond("app.server.http.write_timeout_seconds"),
		IdleTimeout:       a.config.GetSecond("app.server.http.idle_timeout_seconds"),
	}
}

func (a *App) initClosers() {
	if a.messaging != nil {
		a.addCloser("Messaging", func(context.Context) error {
			return a.messaging.Close()
		})
	}
	if a.mail != nil {
		a.addCloser("Mail", func(context.Context) error {
			return a.mail.Close()
		})
	}
	if a.cacheConn != nil {
		a.addCloser("Redis", func(context.Context) error {
			return a.cacheConn.Close()
		})
	}
	if a.dbConn != nil {
		a.addCloser("Database", func(context.Context) error {
			a.dbConn.Close()

			return nil
		})
	}
	a.addCloser("Instrument", func(ctx context.Context) error {
		return a.ins.Shutdown(ctx)
	})
	a.addCloser("Config", func(context.Context) error {
		return a.config.Close()
	})
}
