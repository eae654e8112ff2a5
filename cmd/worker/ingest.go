package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smoradi/quotameter/internal/config"
	"github.com/smoradi/quotameter/internal/db"
	"github.com/smoradi/quotameter/internal/kafka"
	"github.com/smoradi/quotameter/internal/logger"
	"github.com/smoradi/quotameter/internal/metrics"
	"github.com/smoradi/quotameter/internal/repository"
	"github.com/smoradi/quotameter/internal/worker"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Mirror settled usage records into ClickHouse",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1) load config
		cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger.Init(cfg.Log.Level)
		defer logger.Sync()

		metrics.MustRegister(prometheus.DefaultRegisterer)

		// 2) ClickHouse connection
		chDB, err := db.NewClickHouseConnection(db.ClickHouseOpts{
			DSN:             cfg.ClickHouse.DSN,
			MaxOpenConns:    cfg.ClickHouse.MaxOpenConns,
			MaxIdleConns:    cfg.ClickHouse.MaxIdleConns,
			ConnMaxLifetime: cfg.ClickHouse.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.ClickHouse.ConnMaxIdleTime,
			PingTimeout:     cfg.ClickHouse.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("clickhouse connect: %w", err)
		}
		defer func() { _ = chDB.Close() }()

		// 3) kafka consumer on the settled-usage topic
		groupID := cfg.Kafka.GroupID
		if groupID == "" {
			groupID = "quotameter-ingest"
		}
		consumer := kafka.NewConsumerFromConfig(kafka.Config{
			Brokers:        cfg.Kafka.Brokers,
			Topic:          repository.UsageSettledTopic,
			GroupID:        groupID,
			MinBytes:       cfg.Kafka.MinBytes,
			MaxBytes:       cfg.Kafka.MaxBytes,
			CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
		})
		defer consumer.Close()

		w := worker.NewIngestor(
			consumer,
			repository.NewCHUsageRepository(chDB),
			cfg.Ingest.BatchSize,
			cfg.Ingest.BatchWait,
			logger.Log,
		)

		// 4) graceful shutdown
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Printf(">> ingest started topic=%s group=%s batchSize=%d batchWait=%s",
			repository.UsageSettledTopic, groupID, w.BatchSize, w.BatchWait)

		return w.Run(ctx)
	},
}
