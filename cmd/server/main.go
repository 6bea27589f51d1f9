package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"consentry/internal/audit"
	"consentry/internal/consent"
	"consentry/internal/contact"
	"consentry/internal/crypto"
	"consentry/internal/platform/config"
	"consentry/internal/platform/httpserver"
	"consentry/internal/platform/logger"
	"consentry/internal/platform/metrics"
	"consentry/internal/platform/postgres"
	"consentry/internal/platform/redis"
	"consentry/internal/program"
	"consentry/internal/token"
	httptransport "consentry/internal/transport/http"
	"consentry/internal/vault"
	"consentry/internal/verification"
)

// main wires dependencies and owns the server lifecycle. Business logic lives
// in the internal services packages.
func main() {
	log := logger.New()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cryptoSvc, err := crypto.New(cfg.PIIRootKey)
	if err != nil {
		// Running with a bad PII key would derive wrong contact IDs; refuse
		// to start.
		log.Error("pii crypto init failed", "error", err)
		os.Exit(1)
	}

	vaultKey, keySource, err := vault.Resolve(ctx, vault.DefaultChain(
		cfg.VaultKeyEnvVar, nil, cfg.VaultMountedKey, cfg.VaultSystemKey, cfg.VaultDevKey, log,
	)...)
	if err != nil {
		log.Error("vault key resolution failed", "error", err)
		os.Exit(1)
	}
	v, err := vault.New(cfg.VaultPath, vaultKey, log)
	if err != nil {
		log.Error("vault init failed", "error", err)
		os.Exit(1)
	}
	log.Info("vault opened", "key_source", keySource, "path", cfg.VaultPath)

	// Stores: Postgres when configured, in-memory otherwise.
	var (
		contactStore contact.Store      = contact.NewInMemoryStore()
		programStore program.Store      = program.NewInMemoryStore()
		consentStore consent.Store      = consent.NewInMemoryStore()
		codeStore    verification.Store = verification.NewInMemoryStore()
		codeTx       verification.Tx
	)
	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("postgres init failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			log.Error("schema init failed", "error", err)
			os.Exit(1)
		}
		contactStore = contact.NewPostgres(db)
		programStore = program.NewPostgres(db)
		consentStore = consent.NewPostgres(db)
		codeStore = verification.NewPostgres(db)
		codeTx = verification.NewPostgresTx(db)
	} else {
		memStore := codeStore.(*verification.InMemoryStore)
		codeTx = verification.NewInMemoryTx(memStore)
		log.Warn("no DATABASE_URL configured, using in-memory stores")
	}

	m := metrics.New()
	tokens := token.NewService(cfg.JWTSigningKey, "consentry", "consentry")
	staff := token.NewStaffAuth(tokens, cfg.AdminSecretHash)

	contacts := contact.NewService(cryptoSvc, contactStore, log)
	programs := program.NewService(programStore, log)

	var publisher audit.Publisher = audit.NewInMemoryPublisher()
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher, err := audit.NewKafkaPublisher(ctx, cfg.KafkaBrokers, cfg.AuditTopic, log)
		if err != nil {
			log.Error("kafka init failed", "error", err)
			os.Exit(1)
		}
		defer kafkaPublisher.Close()
		async := audit.NewAsyncPublisher(kafkaPublisher, 256, log)
		defer async.Close()
		publisher = async
	}

	verificationOpts := []verification.Option{
		verification.WithLogger(log),
		verification.WithMetrics(m),
		verification.WithAudit(publisher),
	}
	redisClient, err := redis.New(ctx, cfg.RedisURL)
	if err != nil {
		log.Error("redis init failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		verificationOpts = append(verificationOpts,
			verification.WithLimiter(verification.NewRedisLimiter(redisClient.Client, 5, 10*time.Minute)),
		)
	}
	verificationSvc := verification.NewService(
		contacts, codeStore, codeTx, verification.LogSender{Logger: log}, tokens,
		verificationOpts...,
	)

	consents := consent.NewService(consentStore, contacts, programStore, cryptoSvc, log,
		consent.WithAudit(publisher),
		consent.WithMetrics(m),
	)

	handler := httptransport.NewHandler(verificationSvc, consents, contacts, programs, v, tokens, staff, m, log)
	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(handler))

	go func() {
		log.Info("starting consentry", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
