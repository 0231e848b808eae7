package antiabuse

import (
	"context"
	"time"

	"github.com/goatnetwork/goat-escrow/internal/config"
)

// Start sweeps expired address states until ctx is done.
func (l *Limiter) Start(ctx context.Context) {
	interval := config.AppConfig.JanitorInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	l.logger.Info("AntiAbuse janitor started.")
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("AntiAbuse janitor stopping...")
			return
		case <-ticker.C:
			n, err := l.Prune(ctx, uint64(time.Now().Unix()))
			if err != nil {
				l.logger.Errorf("Failed to prune address states: %v", err)
				continue
			}
			if n > 0 {
				l.logger.Debugf("Pruned %d expired address states", n)
			}
		}
	}
}
