package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"mirakl-orchestrator/internal/config"
	"mirakl-orchestrator/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/segmentio/kafka-go"
)

type ExportIngester interface {
	IngestCSV(ctx context.Context, marketplace, sourceURL, raw string) (service.IngestSummary, error)
}

// ExportMessage is one marketplace export pushed through the bus.
type ExportMessage struct {
	Marketplace string `json:"marketplace,omitempty"`
	SourceURL   string `json:"source_url,omitempty"`
	CSV         string `json:"csv" validate:"required"`
}

type kafkaHandler struct {
	dlq      *kafka.Writer
	reader   *kafka.Reader
	logger   *slog.Logger
	validate *validator.Validate
	ingester ExportIngester
}

func NewKafkaHandler(logger *slog.Logger, cfg config.Kafka, ingester ExportIngester) *kafkaHandler {
	return &kafkaHandler{
		logger: logger.With(slog.String("handler", "kafka")),
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: cfg.Brokers,
			GroupID: cfg.GroupID,
			Topic:   cfg.Topic,
			MaxWait: cfg.ReaderMaxWait,
		}),
		dlq: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: cfg.BatchTimeout,
		},
		validate: validator.New(),
		ingester: ingester,
	}
}

func (h *kafkaHandler) Consume(ctx context.Context) {
	for {
		m, err := h.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				break
			} else {
				h.logger.Error("failed to fetch message", slog.Any("error", err))
				continue
			}
		}

		if err := h.handleExport(ctx, m); err != nil {
			exportsFailed.Inc()
			h.logger.Error("failed to handle message", slog.Any("error", err))

			if err := h.WriteToDLQ(ctx, m); err != nil {
				h.logger.Error("failed to write message to DLQ", slog.Any("error", err))
				continue
			}
			exportsDLQ.Inc()
		} else {
			exportsProcessed.Inc()
		}

		if err := h.reader.CommitMessages(ctx, m); err != nil {
			commitErrors.Inc()
			h.logger.Error("failed to commit message", slog.Any("error", err))
		}
	}
}

func (h *kafkaHandler) handleExport(ctx context.Context, m kafka.Message) error {
	var msg ExportMessage
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal export: %w", err)
	}

	if err := h.validate.Struct(msg); err != nil {
		return fmt.Errorf("invalid export message: %w", err)
	}

	summary, err := h.ingester.IngestCSV(ctx, msg.Marketplace, msg.SourceURL, msg.CSV)
	if err != nil {
		return err
	}
	ordersIngested.Add(float64(summary.Accepted))
	return nil
}

func (h *kafkaHandler) WriteToDLQ(ctx context.Context, m kafka.Message) error {
	m.Topic = fmt.Sprintf("%s-dlq", m.Topic)
	return h.dlq.WriteMessages(ctx, m)
}

func (h *kafkaHandler) Close() error {
	if err := h.reader.Close(); err != nil {
		return err
	}
	return h.dlq.Close()
}
