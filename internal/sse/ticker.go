package sse

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/starford/lightauth/internal/apperr"
)

// CodeSource returns the payload of a codes.tick event for now.
type CodeSource func(now time.Time) (any, error)

// RunTicker publishes a codes.tick event every interval while at least one
// client is connected. Ticks are skipped while the vault is locked. It
// returns when ctx is cancelled.
func (b *Broker) RunTicker(ctx context.Context, interval time.Duration, src CodeSource, logger *slog.Logger) error {
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-t.C:
			if b.ClientCount() == 0 {
				continue
			}
			data, err := src(now)
			switch {
			case errors.Is(err, apperr.ErrLocked):
				continue
			case err != nil:
				logger.Warn("sse: code tick failed", slog.String("error", err.Error()))
				continue
			}
			b.Publish(Event{Type: TypeCodesTick, Data: data})
		}
	}
}
