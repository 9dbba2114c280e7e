package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kenvote/registry/internal/domain"
	"github.com/kenvote/registry/internal/infra"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("event consumer failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	groupID := os.Getenv("KAFKA_GROUP_ID")
	if groupID == "" {
		groupID = "registry-audit"
	}

	consumer := infra.NewKafkaConsumer(cfg.KafkaBrokerList(), infra.EventTopics, groupID, cfg.KafkaEnabled, logger)
	if !consumer.Enabled() {
		return errors.New("kafka is disabled; set KAFKA_ENABLED=true and KAFKA_BROKERS")
	}
	defer consumer.Close()
	logger.Info("event-consumer starting", "topics", infra.EventTopics, "group_id", groupID)

	for {
		msg, err := consumer.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("event-consumer shutting down")
				return nil
			}
			logger.Error("read error", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		var ev domain.EventDraft
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			logger.Warn("undecodable event", "topic", msg.Topic, "offset", msg.Offset, "error", err)
			continue
		}
		logger.Info("registry event",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"event_id", ev.EventID,
			"event_type", ev.EventType,
			"aggregate_type", ev.AggregateType,
			"aggregate_id", ev.AggregateID,
			"actor", ev.Actor,
			"occurred_at", ev.OccurredAt,
		)
	}
}
