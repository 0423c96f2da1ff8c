package auth

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const DefaultCleanupInterval = time.Hour

// Cleaner periodically purges expired tokens. It satisfies runner.Service.
type Cleaner struct {
	svc      *Service
	interval time.Duration
}

func NewCleaner(svc *Service, interval time.Duration) *Cleaner {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	return &Cleaner{svc: svc, interval: interval}
}

func (c *Cleaner) Name() string { return "token-cleaner" }

// Run blocks until ctx is done. Purge failures are logged, never returned.
func (c *Cleaner) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := c.svc.PurgeExpired(ctx)
			if err != nil {
				c.svc.log.Error("cleanup expired tokens", zap.Error(err))
				continue
			}
			if n > 0 {
				c.svc.log.Info("purged expired tokens", zap.Int64("count", n))
			}
		}
	}
}
