package collector

import (
	"context"
	"time"

	"github.com/robertof/go-proximity-scanner/device"
	"github.com/rs/zerolog/log"
)

const DefaultPollInterval = 250 * time.Millisecond

// waitForProperty blocks until the property reaches want, until ctx is done, whichever comes
// first. Change notifications resolve the wait immediately; the property is also polled every
// pollInterval in case a notification was lost (or the stack doesn't send any).
func waitForProperty(
	ctx context.Context,
	dev device.Device,
	changes <-chan device.PropertyChange,
	name device.Property,
	want any,
	pollInterval time.Duration,
) error {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		current, err := dev.Property(ctx, name)

		if err == nil && current == want {
			return nil
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		log.Trace().
			Str("Device", dev.ObjectID()).
			Str("Property", string(name)).
			Interface("Value", current).
			AnErr("PollError", err).
			Msg("collector: waiting for property")

	wait:
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case change, ok := <-changes:
				if !ok {
					// notifications are gone, polling only from now on.
					changes = nil
					continue
				}

				if change.Name == name && change.Value == want {
					return nil
				}
			case <-ticker.C:
				break wait
			}
		}
	}
}
