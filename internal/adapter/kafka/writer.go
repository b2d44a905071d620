package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/francis-2008-happy/project1-energy-analysis/internal/config"
	"github.com/francis-2008-happy/project1-energy-analysis/internal/domain"
)

// ReportPublisher produces quality reports to a Kafka topic.
// It implements pipeline.ReportSink.
type ReportPublisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewReportPublisher creates a Kafka producer for the configured report topic.
func NewReportPublisher(cfg *config.Config, logger *slog.Logger) *ReportPublisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaReportTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &ReportPublisher{writer: w, logger: logger}
}

// PublishReport sends one message per report, keyed by run ID.
func (p *ReportPublisher) PublishReport(ctx context.Context, report domain.QualityReport) error {
	msg, err := serializeToMessage(report)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish quality report: %w", err)
	}
	p.logger.Info("quality report published", "topic", p.writer.Topic, "run_id", report.RunID)
	return nil
}

func (p *ReportPublisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a QualityReport into a Kafka message.
func serializeToMessage(report domain.QualityReport) (kafkago.Message, error) {
	if report.MissingValues == nil {
		report.MissingValues = map[string]domain.MissingStat{}
	}
	if report.Outliers == nil {
		report.Outliers = []domain.Outlier{}
	}
	data, err := json.Marshal(report)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize quality report: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(report.RunID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "run_id", Value: []byte(report.RunID)},
			{Key: "is_fresh", Value: []byte(strconv.FormatBool(report.Freshness.IsFresh))},
			{Key: "generated_at", Value: []byte(report.GeneratedAt.Format(time.RFC3339))},
		},
	}, nil
}
