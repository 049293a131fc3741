package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/pagemap-facets/internal/config"
	"github.com/DeafMist/pagemap-facets/internal/dedupe"
	"github.com/DeafMist/pagemap-facets/internal/logger"
	"github.com/DeafMist/pagemap-facets/internal/models"
	"github.com/DeafMist/pagemap-facets/internal/wiring"
)

type resultStorer interface {
	StoreResult(ctx context.Context, result models.RawResult, topics []string) error
}

func main() {
	_ = godotenv.Load()

	log := logger.New("worker")
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	profile, err := config.LoadProfile(cfg.ProfilePath)
	if err != nil {
		log.Error("load profile", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	st, closeStore, err := wiring.OpenStore(ctx, cfg.Common, log)
	if err != nil {
		log.Error("open store", slog.Any("err", err))
		os.Exit(1)
	}
	defer closeStore()

	builder := wiring.NewBuilder(profile, st, log)
	cache := dedupe.NewCache(cfg.DedupeCapacity, cfg.DedupeTTL)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		Topic:          cfg.KafkaTopic,
		GroupID:        cfg.KafkaConsumer,
		QueueCapacity:  cfg.BatchSize,
		MinBytes:       1e3,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit only
	})
	defer reader.Close()

	dlqTopic := cfg.KafkaTopic + "_dlq"
	dlqWriter := &kafka.Writer{
		Addr:        kafka.TCP(cfg.KafkaBrokers...),
		Topic:       dlqTopic,
		MaxAttempts: 3,
	}
	defer dlqWriter.Close()

	log.Info("worker started",
		slog.String("topic", cfg.KafkaTopic),
		slog.String("group", cfg.KafkaConsumer),
		slog.String("dlq_topic", dlqTopic),
		slog.String("store", cfg.StoreBackend),
	)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("context canceled, stopping")
				return
			}
			log.Error("fetch message", slog.Any("err", err))
			continue
		}

		if err := processMessage(ctx, log, builder, cache, profile.TopicNames(), msg); err != nil {
			log.Warn("process message failed, sending to DLQ",
				slog.Any("err", err),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)

			if !sendToDLQ(ctx, log, dlqWriter, msg, err) {
				if ctx.Err() != nil {
					return
				}
				log.Error("DLQ write exhausted retries, message may be lost if later messages commit",
					slog.Int("partition", msg.Partition),
					slog.Int64("offset", msg.Offset),
				)
				continue
			}
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Error("commit message", slog.Any("err", err))
		}
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// sendToDLQ forwards msg with error context, retrying with exponential
// backoff. It reports whether the write succeeded.
func sendToDLQ(ctx context.Context, log *slog.Logger, w messageWriter, msg kafka.Message, cause error) bool {
	dlqMsg := dlqMessage(msg, cause, time.Now())

	for attempt := range 5 {
		dlqErr := w.WriteMessages(ctx, dlqMsg)
		if dlqErr == nil {
			log.Info("message sent to DLQ",
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.Int("attempt", attempt+1),
			)
			return true
		}

		backoff := time.Duration(1<<uint(attempt)) * time.Second
		log.Warn("DLQ write failed, retrying",
			slog.Any("err", dlqErr),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			log.Info("context canceled during DLQ retry")
			return false
		}
	}
	return false
}

func dlqMessage(msg kafka.Message, cause error, now time.Time) kafka.Message {
	headers := make([]kafka.Header, 0, len(msg.Headers)+4)
	headers = append(headers, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: "original_partition", Value: []byte(fmt.Sprintf("%d", msg.Partition))},
		kafka.Header{Key: "original_offset", Value: []byte(fmt.Sprintf("%d", msg.Offset))},
		kafka.Header{Key: "error", Value: []byte(cause.Error())},
		kafka.Header{Key: "timestamp", Value: []byte(now.UTC().Format(time.RFC3339))},
	)
	return kafka.Message{Key: msg.Key, Value: msg.Value, Headers: headers}
}

func processMessage(ctx context.Context, log *slog.Logger, storer resultStorer, cache *dedupe.Cache, defaultTopics []string, msg kafka.Message) error {
	var payload models.ResultMessage
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}

	payload.Result.Link = strings.TrimSpace(payload.Result.Link)
	if payload.Result.Link == "" {
		return errors.New("result has no link")
	}

	key := payload.DedupeKey()
	if !cache.Claim(key) {
		log.Debug("duplicate result", slog.String("round", payload.Round), slog.String("url", payload.Result.Link))
		return nil
	}

	topics := payload.Topics
	if len(topics) == 0 {
		topics = defaultTopics
	}
	if err := storer.StoreResult(ctx, payload.Result, topics); err != nil {
		cache.Release(key)
		return err
	}

	log.Info("stored result",
		slog.String("round", payload.Round),
		slog.Int("page", payload.Page),
		slog.String("url", payload.Result.Link),
	)
	return nil
}
