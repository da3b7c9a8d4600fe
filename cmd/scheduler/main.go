package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/segyhp/rental-ledger/internal/config"
	"github.com/segyhp/rental-ledger/internal/events"
	"github.com/segyhp/rental-ledger/internal/logging"
	"github.com/segyhp/rental-ledger/internal/repository"
	"github.com/segyhp/rental-ledger/internal/service"
	"github.com/segyhp/rental-ledger/internal/tasks"
)

// The scheduler enqueues a late fee sweep on a cron schedule and runs the
// asynq worker that processes the sweep and the per-charge tasks it fans out.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := logging.Setup(os.Stdout, cfg, "ledger-scheduler")
	defer logger.Sync()

	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		logger.Error("failed to initialize database", zap.Error(err))
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.GetConnMaxLifetime())

	publisher := events.NewPublisher(cfg.KafkaBrokers(), cfg.Kafka.Topic, logger)
	defer publisher.Close()

	ledger := service.NewLedgerService(repository.NewPostgresStore(db, cfg.Ledger.TxMaxRetries),
		service.WithLocation(cfg.LedgerLocation()),
		service.WithPublisher(publisher),
		service.WithLogger(logger),
	)

	redisOpt := tasks.RedisOpt(cfg.Redis)
	client := asynq.NewClient(redisOpt)
	defer client.Close()

	processor := tasks.NewTaskProcessor(ledger, client, cfg.Scheduler.ActorID, cfg.Ledger.SweepBatchLimit, logger)
	srv := tasks.NewServer(redisOpt, cfg.Scheduler.Concurrency, logger)
	if err := srv.Start(tasks.NewServeMux(processor)); err != nil {
		logger.Error("could not start task server", zap.Error(err))
		os.Exit(1)
	}

	c := cron.New(cron.WithLocation(cfg.SchedulerLocation()))
	if err := setupCronJobs(c, client, cfg, logger); err != nil {
		logger.Error("error scheduling late fee sweep", zap.Error(err))
		os.Exit(1)
	}
	c.Start()
	logger.Info("scheduler started", zap.String("late_fee_cron", cfg.Scheduler.LateFeeCron))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down scheduler")
	<-c.Stop().Done()
	srv.Shutdown()
	logger.Info("scheduler stopped")
}

func setupCronJobs(c *cron.Cron, client tasks.Enqueuer, cfg *config.Config, logger *zap.Logger) error {
	_, err := c.AddFunc(cfg.Scheduler.LateFeeCron, func() {
		task, err := tasks.NewLateFeeSweepTask(cfg.Ledger.SweepBatchLimit)
		if err != nil {
			logger.Error("build late fee sweep task", zap.Error(err))
			return
		}
		info, err := client.EnqueueContext(context.Background(), task)
		if err != nil {
			logger.Error("enqueue late fee sweep", zap.Error(err))
			return
		}
		logger.Info("late fee sweep enqueued", zap.String("task_id", info.ID))
	})
	return err
}
