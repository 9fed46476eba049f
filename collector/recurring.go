package collector

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Watch runs fn right away and then every interval until ctx is done. Each run is a single
// attempt: failures are logged and the next tick starts over. A non-positive interval runs
// fn once and returns its error.
func Watch(ctx context.Context, interval time.Duration, fn func(context.Context) error) error {
	if interval <= 0 {
		return fn(ctx)
	}

	log.Info().Dur("Interval", interval).Msg("Starting recurring collection")

	for {
		if err := fn(ctx); err != nil {
			log.Warn().
				Err(err).
				Dur("RetryInSec", interval).
				Msg("Collection failed, will try again on the next tick")
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("Recurring collection is shutting down")
			return nil
		case <-time.After(interval):
			log.Trace().Dur("Interval", interval).Msg("Recurring collector tick: collecting...")
		}
	}
}
