package ble

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-ble/ble"
	"github.com/rs/zerolog/log"

	"github.com/robertof/go-meshtastic-recorder/utils"
)

var ErrDeviceNotFound = errors.New("device not found")

type ScanOptions struct {
	// Extra check applied to advertisements that already match the target.
	FilterAdvertisement func(Advertisement) bool
}

func WrapContextWithSigHandler(ctx context.Context, cancel func()) context.Context {
	return ble.WithSigHandler(ctx, cancel)
}

// Perform an active or passive scan and return every advertisement found.
func (h *Handle) ScanAll(ctx context.Context, onDevice func(Advertisement)) error {
	err := h.dev.Scan(ctx, true, onDevice)

	if err != nil {
		return fmt.Errorf("failed to initiate scan: %w", err)
	}

	return nil
}

// Scan until an advertisement matching the target shows up and return it. Fails with
// ErrDeviceNotFound if the context expires first.
func (h *Handle) FindDevice(parentCtx context.Context, target Target, opts ScanOptions) (Advertisement, error) {
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	found := make(chan Advertisement, 1)

	err := h.dev.Scan(ctx, false, func(a Advertisement) {
		if !target.Matches(a) {
			return
		}

		if opts.FilterAdvertisement != nil && !opts.FilterAdvertisement(a) {
			log.Trace().
				Str("Addr", a.Addr().String()).
				Str("LocalName", a.LocalName()).
				Msg("ble: advertisement matches target but was filtered out")
			return
		}

		// the BLE lib could deliver more advertisements before Scan() returns.
		select {
		case found <- a:
			cancel()
		default:
		}
	})

	select {
	case a := <-found:
		log.Debug().
			Str("Addr", a.Addr().String()).
			Str("LocalName", a.LocalName()).
			Int("RSSI", a.RSSI()).
			Msg("ble: found requested device")
		return a, nil
	default:
	}

	if err == nil || utils.ErrorIsAnyOf(err, context.Canceled, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %v", ErrDeviceNotFound, target)
	}

	return nil, fmt.Errorf("failed to scan for %v: %w", target, err)
}
