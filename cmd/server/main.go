package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/repguard/internal/api"
	"github.com/ignite/repguard/internal/bounce"
	"github.com/ignite/repguard/internal/campaign"
	"github.com/ignite/repguard/internal/config"
	"github.com/ignite/repguard/internal/dispatch"
	"github.com/ignite/repguard/internal/domain"
	"github.com/ignite/repguard/internal/events"
	"github.com/ignite/repguard/internal/ingest"
	"github.com/ignite/repguard/internal/pkg/distlock"
	"github.com/ignite/repguard/internal/pkg/secrets"
	"github.com/ignite/repguard/internal/repository/postgres"
	"github.com/ignite/repguard/internal/reputation"
	"github.com/ignite/repguard/internal/suppression"
	"github.com/ignite/repguard/internal/training"
)

// logSender stands in for the SMTP relay, which lives outside this
// service. Every accepted send is logged so dispatch decisions remain
// observable end to end.
type logSender struct{}

func (logSender) Send(_ context.Context, c *domain.Campaign, recipient string) error {
	log.Printf("[Dispatch] campaign=%s recipient=%s handed to relay", c.ID, recipient)
	return nil
}

func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Minute)
	if err := db.Ping(); err != nil {
		log.Fatalf("Database unreachable: %v", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled && cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Invalid Redis URL: %v", err)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Printf("Redis unreachable, falling back to in-process locks and limits: %v", err)
			redisClient = nil
		}
	}

	// Repositories
	metricsRepo := postgres.NewMetricsRepo(db)
	trainingRepo := postgres.NewTrainingRepo(db)
	suppressionRepo := postgres.NewSuppressionRepo(db)
	bounceRepo := postgres.NewBounceRepo(db)
	campaignRepo := postgres.NewCampaignRepo(db)

	// Core services
	bus := events.NewBus()
	go func() {
		// Audit trail for stage changes, suppressions and campaign
		// lifecycle. Notification fan-out lives outside this service.
		for e := range bus.Subscribe("audit-log") {
			log.Printf("[Event] %s domain=%s campaign=%s %v", e.Type, e.Domain, e.CampaignID, e.Fields)
		}
	}()
	ingestor := ingest.NewService(metricsRepo, cfg.Metrics.LogDir)
	evaluator := reputation.NewEvaluator(metricsRepo, reputation.Thresholds{
		WarnBouncePct:        cfg.Training.AdvanceBouncePct,
		WarnComplaintPct:     cfg.Training.AdvanceComplaintPct,
		CriticalBouncePct:    cfg.Training.RollbackBouncePct,
		CriticalComplaintPct: cfg.Training.RollbackComplaintPct,
	})

	locks := distlock.NewFactory(redisClient, db, cfg.Training.LockTTL())
	engine := training.NewEngine(trainingRepo, evaluator, locks, bus, training.Options{
		StageCaps:            cfg.Training.StageCaps,
		LookbackHours:        cfg.Training.LookbackHours,
		AdvanceBouncePct:     cfg.Training.AdvanceBouncePct,
		AdvanceComplaintPct:  cfg.Training.AdvanceComplaintPct,
		RollbackBouncePct:    cfg.Training.RollbackBouncePct,
		RollbackComplaintPct: cfg.Training.RollbackComplaintPct,
		MinDwellHours:        cfg.Training.MinDwellHours,
	})

	suppressions := suppression.NewService(suppressionRepo)

	box, err := secrets.New(cfg.Bounce.SecretKey)
	if err != nil {
		log.Fatalf("Invalid bounce secret key: %v", err)
	}
	dialer := bounce.NewDialer(cfg.Bounce.ConnectTimeout())
	credentials := bounce.NewCredentialService(bounceRepo, box, dialer)
	collector := bounce.NewCollector(bounceRepo, box, dialer, suppressions, bus, bounce.Options{
		PollInterval:        cfg.Bounce.PollInterval(),
		MaxConcurrent:       cfg.Bounce.MaxConcurrent,
		SoftBounceThreshold: cfg.Bounce.SoftBounceThreshold,
		SoftBounceWindow:    cfg.Bounce.SoftBounceWindow(),
	})

	var limiter dispatch.Limiter
	if redisClient != nil {
		limiter = dispatch.NewRedisLimiter(redisClient)
	} else {
		limiter = dispatch.NewLocalLimiter()
	}
	gate := dispatch.NewGate(suppressions, limiter, cfg.Dispatch.RatePeriod())

	campaigns := campaign.NewService(campaignRepo, bus, campaign.Options{
		AbortFailurePct:  cfg.Dispatch.AbortFailurePct,
		AbortMinAttempts: cfg.Dispatch.AbortMinAttempts,
	})
	runner := campaign.NewRunner(campaigns, trainingRepo, gate, logSender{}, cfg.Dispatch.RatePeriod())

	// Background loops
	trainingScheduler := training.NewScheduler(engine, cfg.Training.Interval())
	trainingScheduler.Start()
	defer trainingScheduler.Stop()

	bouncePoller := bounce.NewPoller(collector, cfg.Bounce.PollInterval())
	bouncePoller.Start()
	defer bouncePoller.Stop()

	ingestCtx, cancelIngest := context.WithCancel(context.Background())
	defer cancelIngest()
	go func() {
		ticker := time.NewTicker(cfg.Metrics.IngestInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := ingestor.IngestWindow(ingestCtx, "", cfg.Metrics.DefaultHours); err != nil {
					log.Printf("[Ingest] scheduled run failed: %v", err)
				}
			case <-ingestCtx.Done():
				return
			}
		}
	}()

	handlers := api.NewHandlers(engine, evaluator, ingestor, credentials, collector,
		suppressions, campaigns, runner, cfg.Unsubscribe.SigningKey)
	server := api.NewServer(handlers, nil)

	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
	go func() {
		log.Printf("Reputation core listening on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	if err := db.Close(); err != nil {
		log.Printf("Database close error: %v", err)
	}
}
