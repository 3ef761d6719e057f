package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/image-crawler/internal/logging"
	"github.com/JakeFAU/image-crawler/internal/progress"
)

// LogSink mirrors run events into structured logs. LOG events keep their own
// level; everything else logs at info, and ERROR events at warn.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.Stringer("run_id", evt.RunUUID()),
			zap.String("stage", string(evt.Stage)),
		}
		if evt.Source != "" {
			fields = append(fields, zap.String("source", evt.Source))
		}
		level := zapcore.InfoLevel
		msg := evt.Message
		switch evt.Stage {
		case progress.StageLog:
			level = logging.ParseLevel(evt.Level)
		case progress.StageError:
			level = zapcore.WarnLevel
			if evt.Details != "" {
				fields = append(fields, zap.String("details", evt.Details))
			}
		case progress.StageProgress:
			msg = "source progress"
			fields = append(fields,
				zap.Int("discovered", evt.Discovered),
				zap.Int("downloaded", evt.Downloaded),
				zap.Int("requested", evt.Requested),
			)
		case progress.StageState:
			msg = "run state changed"
			fields = append(fields, zap.String("state", string(evt.State)))
		case progress.StageComplete:
			msg = "run complete"
			fields = append(fields, zap.String("state", string(evt.State)))
			if evt.Stats != nil {
				fields = append(fields,
					zap.Int("downloaded", evt.Stats.Totals.Downloaded),
					zap.Int("skipped", evt.Stats.Totals.Skipped),
					zap.Int("errored", evt.Stats.Totals.Errored),
				)
			}
		}
		if ce := s.logger.Check(level, msg); ce != nil {
			ce.Write(fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
