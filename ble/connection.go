package ble

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	successfulConnectionsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meshtastic_recorder_ble_successful_connections_total",
		Help: "BLE connections established with a Meshtastic node.",
	})
	failedConnectionsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meshtastic_recorder_ble_failed_connections_total",
		Help: "BLE connection attempts that failed.",
	})
	disconnectsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meshtastic_recorder_ble_disconnections_total",
		Help: "BLE links that were closed, by either side.",
	})
)

// Connect dials the peripheral at addr. The returned client stays usable until
// CancelConnection() or until the peripheral drops the link.
func (h *Handle) Connect(ctx context.Context, addr Addr) (Client, error) {
	conn, err := ble.Dial(ctx, addr)

	if err != nil {
		failedConnectionsCounter.Inc()
		return nil, err
	}

	successfulConnectionsCounter.Inc()
	log.Debug().Str("Addr", addr.String()).Msg("ble: successfully opened new connection to device")

	go func() {
		<-conn.Disconnected()

		disconnectsCounter.Inc()
		log.Debug().Str("Addr", addr.String()).Msg("ble: connection with device closed")
	}()

	return conn, nil
}
