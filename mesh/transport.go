package mesh

import (
	"fmt"

	"github.com/robertof/go-meshtastic-recorder/ble"
	"github.com/rs/zerolog/log"
)

// Transport moves raw ToRadio/FromRadio frames between us and the radio.
type Transport interface {
	WriteToRadio(frame []byte) error
	// ReadFromRadio pops the next queued FromRadio frame. An empty frame means the queue
	// is drained.
	ReadFromRadio() ([]byte, error)
	// OnFromNum registers a callback fired whenever the radio has new frames queued.
	OnFromNum(func()) error
	Close() error
}

// GATTTransport is the BLE flavour of Transport.
type GATTTransport struct {
	client    ble.Client
	toRadio   *ble.Characteristic
	fromRadio *ble.Characteristic
	fromNum   *ble.Characteristic
}

func NewGATTTransport(client ble.Client) (*GATTTransport, error) {
	txMTU, err := client.ExchangeMTU(MTU)

	if err != nil {
		// linux controllers sometimes refuse; reads then get truncated to the default MTU.
		log.Warn().Err(err).Msg("mesh: MTU exchange failed, large frames may be truncated")
	} else {
		log.Debug().Int("MTU", txMTU).Msg("mesh: negotiated MTU")
	}

	p, err := client.DiscoverProfile(true)

	if err != nil {
		return nil, fmt.Errorf("cannot discover profile for device: %w", err)
	}

	t := &GATTTransport{client: client}

	for _, svc := range p.Services {
		if !svc.UUID.Equal(ServiceUUID) {
			continue
		}

		for _, char := range svc.Characteristics {
			switch {
			case char.UUID.Equal(ToRadioUUID):
				t.toRadio = char
			case char.UUID.Equal(FromRadioUUID):
				t.fromRadio = char
			case char.UUID.Equal(FromNumUUID):
				t.fromNum = char
			}
		}
	}

	if t.toRadio == nil || t.fromRadio == nil || t.fromNum == nil {
		return nil, fmt.Errorf("%w on %v (toRadio=%t, fromRadio=%t, fromNum=%t)",
			ErrServiceNotFound, client.Addr(), t.toRadio != nil, t.fromRadio != nil, t.fromNum != nil)
	}

	return t, nil
}

func (t *GATTTransport) WriteToRadio(frame []byte) error {
	log.Trace().Hex("Frame", frame).Msg("mesh: writing ToRadio")

	if err := t.client.WriteCharacteristic(t.toRadio, frame, false); err != nil {
		return fmt.Errorf("failed to write ToRadio: %w", err)
	}

	return nil
}

func (t *GATTTransport) ReadFromRadio() ([]byte, error) {
	frame, err := t.client.ReadCharacteristic(t.fromRadio)

	if err != nil {
		return nil, fmt.Errorf("failed to read FromRadio: %w", err)
	}

	log.Trace().Hex("Frame", frame).Msg("mesh: read FromRadio")

	return frame, nil
}

func (t *GATTTransport) OnFromNum(f func()) error {
	err := t.client.Subscribe(t.fromNum, false, func(_ []byte) {
		f()
	})

	if err != nil {
		return fmt.Errorf("failed to subscribe to FromNum: %w", err)
	}

	return nil
}

func (t *GATTTransport) Close() error {
	if err := t.client.ClearSubscriptions(); err != nil {
		log.Debug().Err(err).Msg("mesh: failed to clear subscriptions")
	}

	return t.client.CancelConnection()
}
