package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/image-crawler/internal/crawler"
	"github.com/JakeFAU/image-crawler/internal/progress"
)

// PublishSink announces finished runs on a message topic.
type PublishSink struct {
	publisher crawler.Publisher
	topic     string
	logger    *zap.Logger
}

// NewPublishSink publishes COMPLETE summaries to topic.
func NewPublishSink(publisher crawler.Publisher, topic string, logger *zap.Logger) *PublishSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublishSink{publisher: publisher, topic: topic, logger: logger}
}

// Consume publishes one message per COMPLETE event.
func (s *PublishSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.publisher == nil {
		return nil
	}
	for _, evt := range batch {
		if evt.Stage != progress.StageComplete || evt.Stats == nil {
			continue
		}
		summary := *evt.Stats
		if summary.RunID == "" {
			summary.RunID = evt.RunUUID().String()
		}
		id, err := s.publisher.Publish(ctx, s.topic, summary)
		if err != nil {
			return fmt.Errorf("publish run summary: %w", err)
		}
		s.logger.Debug("run summary published",
			zap.String("run_id", summary.RunID),
			zap.String("topic", s.topic),
			zap.String("message_id", id),
		)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PublishSink) Close(context.Context) error {
	return nil
}
