package bus

import (
	"context"
	"time"

	"go.uber.org/zap"

	"wallettx/internal/logging"
)

// RunRetention trims the acknowledged messages of topics every interval until
// ctx is cancelled. Failed trims are logged and retried on the next tick.
func RunRetention(ctx context.Context, t Trimmer, topics []string, interval time.Duration, logger *zap.Logger) error {
	logger = logging.OrNop(logger)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, topic := range topics {
				n, err := t.TrimAcknowledged(ctx, topic)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					logger.Warn("trim failed", zap.String("topic", topic), zap.Error(err))
					continue
				}
				if n > 0 {
					logger.Debug("trimmed acknowledged messages", zap.String("topic", topic), zap.Int64("count", n))
				}
			}
		}
	}
}
