package mesh

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultPollInterval = 500 * time.Millisecond

	// received packets kept around for WaitTelemetry(). Older ones are dropped.
	maxQueuedPackets = 64
)

// Session is one conversation with a radio: the config download followed by whatever
// requests the caller makes. It is driven from a single goroutine; only the FromNum wake-up
// arrives from the transport's goroutine.
type Session struct {
	// FromRadio is polled at this interval in case a FromNum notification is lost.
	PollInterval time.Duration

	t    Transport
	wake chan struct{}

	newID func() uint32

	myNodeNum  uint32
	nodes      map[uint32]*Node
	configID   uint32
	configured bool
	packets    []Packet

	closeOnce sync.Once
}

func NewSession(t Transport) *Session {
	s := &Session{
		PollInterval: DefaultPollInterval,
		t:            t,
		wake:         make(chan struct{}, 1),
		newID:        randomID,
		nodes:        make(map[uint32]*Node),
	}

	if err := t.OnFromNum(s.notify); err != nil {
		log.Warn().Err(err).Msg("mesh: no FromNum notifications, falling back to polling")
	}

	return s
}

func randomID() uint32 {
	for {
		if id := rand.Uint32(); id != 0 {
			return id
		}
	}
}

func (s *Session) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// WaitForConfig asks the radio for its configuration and node database and blocks until
// the radio confirms it sent everything.
func (s *Session) WaitForConfig(ctx context.Context) error {
	s.configID = s.newID()
	s.configured = false

	log.Debug().Uint32("ConfigID", s.configID).Msg("mesh: requesting config")

	if err := s.t.WriteToRadio(encodeWantConfig(s.configID)); err != nil {
		return fmt.Errorf("failed to request config: %w", err)
	}

	err := s.pumpUntil(ctx, func() bool { return s.configured })

	if err != nil {
		return fmt.Errorf("config not received: %w", err)
	}

	log.Debug().
		Str("MyNodeID", NodeIDFromNum(s.myNodeNum)).
		Int("Nodes", len(s.nodes)).
		Msg("mesh: config complete")

	return nil
}

func (s *Session) MyNodeNum() uint32 {
	return s.myNodeNum
}

// Nodes returns a snapshot of the node database, ordered by node number.
func (s *Session) Nodes() []Node {
	out := make([]Node, 0, len(s.nodes))

	for _, n := range s.nodes {
		out = append(out, *n)
	}

	slices.SortFunc(out, func(a, b Node) int {
		switch {
		case a.Num < b.Num:
			return -1
		case a.Num > b.Num:
			return 1
		default:
			return 0
		}
	})

	return out
}

// SendTelemetryRequest sends an empty telemetry message of the given kind to dest and
// returns the packet id, which the answer carries as its request id.
func (s *Session) SendTelemetryRequest(
	ctx context.Context,
	dest uint32,
	kind TelemetryKind,
	wantResponse bool,
	channel uint32,
) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if !s.configured {
		return 0, ErrNotConfigured
	}

	p := Packet{
		To:       dest,
		Channel:  channel,
		ID:       s.newID(),
		HopLimit: DefaultHopLimit,
		Decoded: &Data{
			PortNum:      PortNumTelemetryApp,
			Payload:      encodeTelemetryRequest(kind),
			WantResponse: wantResponse,
		},
	}

	log.Debug().
		Str("Dest", NodeIDFromNum(dest)).
		Stringer("Kind", kind).
		Uint32("PacketID", p.ID).
		Uint32("Channel", channel).
		Bool("WantResponse", wantResponse).
		Msg("mesh: sending telemetry request")

	if err := s.t.WriteToRadio(encodeToRadioPacket(p)); err != nil {
		return 0, fmt.Errorf("failed to send telemetry request: %w", err)
	}

	return p.ID, nil
}

// WaitTelemetry blocks until a telemetry packet carrying kind arrives, either as the answer
// to requestID or sent by from. Returns ErrNoResponse when ctx expires first.
func (s *Session) WaitTelemetry(
	ctx context.Context,
	from uint32,
	kind TelemetryKind,
	requestID uint32,
) (sender uint32, t Telemetry, err error) {
	found := false

	err = s.pumpUntil(ctx, func() bool {
		for i, p := range s.packets {
			if p.Decoded == nil || p.Decoded.PortNum != PortNumTelemetryApp {
				continue
			}

			answer := requestID != 0 && p.Decoded.RequestID == requestID
			if !answer && p.From != from {
				continue
			}

			decoded, err := DecodeTelemetry(p.Decoded.Payload)
			if err != nil {
				log.Warn().
					Err(err).
					Str("From", NodeIDFromNum(p.From)).
					Msg("mesh: dropping undecodable telemetry packet")
				continue
			}

			if !decoded.Has(kind) {
				continue
			}

			s.packets = slices.Delete(s.packets, i, i+1)
			sender, t, found = p.From, decoded, true

			return true
		}

		return false
	})

	if !found {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, t, fmt.Errorf("%w: %v telemetry from %s", ErrNoResponse, kind, NodeIDFromNum(from))
		}

		return 0, t, err
	}

	return sender, t, nil
}

// Close tells the radio we're leaving and drops the link.
func (s *Session) Close() (err error) {
	s.closeOnce.Do(func() {
		if werr := s.t.WriteToRadio(encodeDisconnect()); werr != nil {
			log.Debug().Err(werr).Msg("mesh: failed to send disconnect")
		}

		err = s.t.Close()
	})

	return err
}

func (s *Session) pumpUntil(ctx context.Context, done func() bool) error {
	ticker := time.NewTicker(s.PollInterval)
	defer ticker.Stop()

	for {
		if err := s.drain(ctx); err != nil {
			return err
		}

		if done() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
		case <-ticker.C:
		}
	}
}

func (s *Session) drain(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, err := s.t.ReadFromRadio()

		if err != nil {
			return err
		}

		if len(frame) == 0 {
			return nil
		}

		fr, err := decodeFromRadio(frame)

		if err != nil {
			// garbled frames happen (e.g. truncated reads); skip them like the node db skips
			// garbled node infos.
			log.Warn().Err(err).Hex("Frame", frame).Msg("mesh: skipping undecodable FromRadio frame")
			continue
		}

		s.handle(fr)
	}
}

func (s *Session) handle(fr fromRadio) {
	switch {
	case fr.MyNodeNum != nil:
		s.myNodeNum = *fr.MyNodeNum
		log.Trace().Str("MyNodeID", NodeIDFromNum(s.myNodeNum)).Msg("mesh: got my_info")
	case fr.NodeInfo != nil:
		n := *fr.NodeInfo
		s.nodes[n.Num] = &n
		log.Trace().Stringer("Node", n).Msg("mesh: got node_info")
	case fr.ConfigCompleteID != nil:
		if *fr.ConfigCompleteID != s.configID {
			log.Debug().
				Uint32("Got", *fr.ConfigCompleteID).
				Uint32("Want", s.configID).
				Msg("mesh: ignoring config_complete_id for another request")
			return
		}
		s.configured = true
	case fr.Rebooted:
		log.Warn().Msg("mesh: radio rebooted")
	case fr.Packet != nil:
		s.handlePacket(*fr.Packet)
	}
}

func (s *Session) handlePacket(p Packet) {
	if n := s.nodes[p.From]; n != nil && p.RxTime > n.LastHeard {
		n.LastHeard = p.RxTime

		if p.RxSNR != 0 {
			snr := p.RxSNR
			n.SNR = &snr
		}

		if p.HopStart != 0 && p.HopStart >= p.HopLimit {
			hops := p.HopStart - p.HopLimit
			n.HopsAway = &hops
		}
	}

	if p.Decoded == nil {
		return
	}

	log.Trace().
		Str("From", NodeIDFromNum(p.From)).
		Uint32("PortNum", uint32(p.Decoded.PortNum)).
		Uint32("RequestID", p.Decoded.RequestID).
		Msg("mesh: got packet")

	if len(s.packets) >= maxQueuedPackets {
		s.packets = slices.Delete(s.packets, 0, 1)
	}

	s.packets = append(s.packets, p)
}
