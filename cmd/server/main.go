package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc/health"

	accounthandler "orbit-account/backend/internal/account/handler"
	"orbit-account/backend/internal/account/repository"
	"orbit-account/backend/internal/account/service"
	"orbit-account/backend/internal/audit"
	"orbit-account/backend/internal/config"
	"orbit-account/backend/internal/db"
	"orbit-account/backend/internal/db/migrate"
	"orbit-account/backend/internal/delivery"
	healthhandler "orbit-account/backend/internal/health/handler"
	"orbit-account/backend/internal/otp"
	policyengine "orbit-account/backend/internal/policy/engine"
	"orbit-account/backend/internal/security"
	"orbit-account/backend/internal/server"
	"orbit-account/backend/internal/server/interceptors"
	"orbit-account/backend/internal/telemetry"
	oteltelemetry "orbit-account/backend/internal/telemetry/otel"
)

const (
	shutdownTimeout = 15 * time.Second
	sweepInterval   = time.Minute
	healthInterval  = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.ValidateServer(); err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := oteltelemetry.NewProviders(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			log.Printf("otel: shutdown: %v", err)
		}
	}()

	conn, err := db.OpenDriver(cfg.DatabaseDriver, cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()
	if cfg.AutoMigrate {
		if err := migrate.Run(conn, cfg.DatabaseDriver, "up"); err != nil {
			log.Fatalf("migrate: %v", err)
		}
	}
	repo := newRepository(cfg.DatabaseDriver, conn)

	store, closeStore, err := newOTPStore(ctx, cfg)
	if err != nil {
		log.Fatalf("otp: %v", err)
	}
	defer closeStore()
	challenges := otp.NewManager(store, otp.Options{
		Digits:      cfg.OTPDigits,
		TTL:         cfg.OTPTTL(),
		MaxAttempts: cfg.OTPMaxAttempts,
	})

	policy, err := newPolicy(ctx, cfg)
	if err != nil {
		log.Fatalf("policy: %v", err)
	}

	key, err := security.NewSigningKeyFromConfig(cfg.TokenSecret, cfg.TokenPrivateKey, cfg.TokenPublicKey)
	if err != nil {
		log.Fatalf("token key: %v", err)
	}
	tokens := security.NewTokenIssuer(key, cfg.TokenIssuer, cfg.TokenAudience, cfg.TokenTTL())

	meter := providers.MeterProvider.Meter("orbit-account")
	metrics, err := telemetry.NewMetrics(meter)
	if err != nil {
		log.Fatalf("metrics: %v", err)
	}
	defer func() { _ = metrics.Close() }()
	auditLogger := audit.NewLogger(providers.LoggerProvider, interceptors.ClientIP)

	// The delivery package logs each failure; this hook only records it.
	onFailure := func(msg delivery.Message, _ error) {
		metrics.DeliveryFailure(context.Background())
		auditLogger.LogEvent(context.Background(), audit.Event{
			Action:   audit.ActionDeliveryFailed,
			Identity: msg.To,
			Detail:   "send_failed",
		})
	}

	var (
		enqueuer delivery.Enqueuer
		outbox   *delivery.DevOutbox
	)
	if cfg.OTPReturnToClient {
		log.Println("delivery: dev OTP mode; codes are served from GET /dev/otp and not mailed")
		outbox = delivery.NewDevOutbox()
	} else {
		q, err := newEnqueuer(cfg, onFailure)
		if err != nil {
			log.Fatalf("delivery: %v", err)
		}
		defer func() {
			if err := q.Close(); err != nil {
				log.Printf("delivery: close: %v", err)
			}
		}()
		if dc, ok := q.(telemetry.DropCounter); ok {
			if err := metrics.ObserveDropped(meter, dc); err != nil {
				log.Fatalf("metrics: %v", err)
			}
		}
		enqueuer = q
	}

	svc := service.NewAccountService(service.Deps{
		Repo:              repo,
		Hasher:            security.NewHasher(cfg.BcryptCost),
		Challenges:        challenges,
		Tokens:            tokens,
		Delivery:          enqueuer,
		DevOutbox:         outbox,
		Policy:            policy,
		Audit:             auditLogger,
		Metrics:           metrics,
		PasswordMinLength: cfg.PasswordMinLength,
	})

	checker := healthhandler.NewChecker(conn, policy)
	healthServer := health.NewServer()
	go checker.Watch(ctx, healthServer, healthInterval, "", accounthandler.ServiceName)

	errCh := make(chan error, 2)

	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.Fatalf("listen: %v", err)
		}
		s := server.NewGRPCServer(server.GRPCDeps{
			Account: accounthandler.NewGRPCServer(svc),
			Tokens:  tokens,
			Health:  healthServer,
		})
		go func() {
			log.Printf("gRPC server listening on %s", cfg.GRPCAddr)
			if err := s.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc serve: %w", err)
			}
		}()
		defer func() {
			log.Println("shutting down gRPC server...")
			healthServer.Shutdown()
			s.GracefulStop()
			log.Println("gRPC server stopped")
		}()
	}

	// Closed once the HTTP server has shut down. The deferred cleanup above must not run while
	// HTTP requests are still in flight.
	httpDone := make(chan struct{})
	if cfg.HTTPAddr == "" {
		close(httpDone)
	} else {
		httpSrv := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           server.NewHTTPRouter(accounthandler.NewHTTPHandler(svc, cfg.OTPReturnToClient), checker),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			defer close(httpDone)
			if err := server.ServeHTTP(ctx, httpSrv, shutdownTimeout); err != nil {
				errCh <- fmt.Errorf("http serve: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Printf("server: %v", err)
		stop()
	}
	<-httpDone
}

func newRepository(driver string, conn *sql.DB) repository.Repository {
	if driver == config.DriverPostgres {
		return repository.NewPostgresRepository(conn)
	}
	return repository.NewSQLiteRepository(conn)
}

// newOTPStore returns the configured challenge store and a cleanup func.
func newOTPStore(ctx context.Context, cfg *config.Config) (otp.Store, func(), error) {
	if cfg.OTPStore == config.OTPStoreRedis {
		client, err := otp.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("otp: using redis store (prefix %q)", cfg.RedisKeyPrefix)
		return otp.NewRedisStore(client, cfg.RedisKeyPrefix), func() { _ = client.Close() }, nil
	}
	store := otp.NewMemoryStore()
	sweepCtx, cancel := context.WithCancel(ctx)
	go store.RunSweeper(sweepCtx, sweepInterval)
	return store, cancel, nil
}

func newPolicy(ctx context.Context, cfg *config.Config) (*policyengine.OPAEvaluator, error) {
	var module string
	if cfg.RegistrationPolicyFile != "" {
		b, err := os.ReadFile(cfg.RegistrationPolicyFile)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", cfg.RegistrationPolicyFile, err)
		}
		module = string(b)
	}
	return policyengine.NewOPAEvaluator(ctx, cfg.AllowedDomains(), module)
}

func newEnqueuer(cfg *config.Config, onFailure delivery.FailureFunc) (delivery.Enqueuer, error) {
	if cfg.DeliveryMode == config.DeliveryKafka {
		log.Printf("delivery: publishing to kafka topic %s", cfg.DeliveryKafkaTopic)
		return delivery.NewKafkaQueue(cfg.KafkaBrokersList(), cfg.DeliveryKafkaTopic, onFailure)
	}
	return delivery.NewQueue(newSender(cfg), cfg.DeliveryBuffer, onFailure), nil
}

func newSender(cfg *config.Config) delivery.Sender {
	if cfg.SMTPHost == "" {
		log.Println("delivery: SMTP_HOST not set; OTP mails are logged, not sent")
		return delivery.LogSender{}
	}
	return delivery.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.MailFrom)
}
