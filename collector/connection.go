package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robertof/go-meshtastic-recorder/ble"
	"github.com/robertof/go-meshtastic-recorder/mesh"
)

// ErrConnectionFailed wraps every failure before the radio answered: not found during the
// scan, refused connection, missing GATT service. Usually another client holds the link.
var ErrConnectionFailed = errors.New("couldn't connect to the node")

const (
	DefaultScanTimeout    = 20 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	DefaultConfigTimeout  = 60 * time.Second
)

type Options struct {
	ScanTimeout    time.Duration
	ConnectTimeout time.Duration
	ConfigTimeout  time.Duration
}

func (o Options) withDefaults() Options {
	if o.ScanTimeout <= 0 {
		o.ScanTimeout = DefaultScanTimeout
	}

	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}

	if o.ConfigTimeout <= 0 {
		o.ConfigTimeout = DefaultConfigTimeout
	}

	return o
}

// Open finds the target, connects to it and waits until the radio sent its configuration
// and node database. The caller must Close() the returned session.
func Open(ctx context.Context, handle *ble.Handle, target ble.Target, opts Options) (*mesh.Session, error) {
	opts = opts.withDefaults()

	log.Info().
		Stringer("Target", target).
		Dur("ScanTimeoutSec", opts.ScanTimeout).
		Msg("Scanning for the node, this may take a while")

	scanCtx, cancel := context.WithTimeout(ctx, opts.ScanTimeout)
	adv, err := handle.FindDevice(scanCtx, target, ble.ScanOptions{
		FilterAdvertisement: func(a ble.Advertisement) bool {
			return a.Connectable()
		},
	})
	cancel()

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	connCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	client, err := handle.Connect(connCtx, adv.Addr())
	cancel()

	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to %v: %w", ErrConnectionFailed, adv.Addr(), err)
	}

	t, err := mesh.NewGATTTransport(client)

	if err != nil {
		if cerr := client.CancelConnection(); cerr != nil {
			log.Debug().Err(cerr).Msg("Failed to drop connection")
		}

		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	session := mesh.NewSession(t)

	log.Info().Str("Addr", adv.Addr().String()).Msg("Connected, waiting for config")

	cfgCtx, cancel := context.WithTimeout(ctx, opts.ConfigTimeout)
	err = session.WaitForConfig(cfgCtx)
	cancel()

	if err != nil {
		session.Close()
		return nil, err
	}

	return session, nil
}
