package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/segyhp/rental-ledger/internal/config"
	"github.com/segyhp/rental-ledger/internal/logging"
	"github.com/segyhp/rental-ledger/internal/repository/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := logging.Setup(os.Stdout, cfg, "ledger-migrate")
	defer logger.Sync()

	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		logger.Error("failed to connect to database", zap.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	applied, err := migrations.Apply(ctx, db)
	if err != nil {
		logger.Error("migration failed", zap.Error(err))
		os.Exit(1)
	}
	if len(applied) == 0 {
		logger.Info("schema up to date", zap.Int("migrations", len(migrations.Names())))
		return
	}
	for _, name := range applied {
		logger.Info("applied migration", zap.String("name", name))
	}
}
