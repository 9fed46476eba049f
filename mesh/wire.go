package mesh

import (
	"math"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// field numbers, from the Meshtastic protobuf definitions.
const (
	toRadioPacket       protowire.Number = 1
	toRadioWantConfigID protowire.Number = 3
	toRadioDisconnect   protowire.Number = 4

	fromRadioID               protowire.Number = 1
	fromRadioPacket           protowire.Number = 2
	fromRadioMyInfo           protowire.Number = 3
	fromRadioNodeInfo         protowire.Number = 4
	fromRadioConfigCompleteID protowire.Number = 7
	fromRadioRebooted         protowire.Number = 8

	myInfoMyNodeNum protowire.Number = 1

	nodeInfoNum           protowire.Number = 1
	nodeInfoUser          protowire.Number = 2
	nodeInfoPosition      protowire.Number = 3
	nodeInfoSNR           protowire.Number = 4
	nodeInfoLastHeard     protowire.Number = 5
	nodeInfoDeviceMetrics protowire.Number = 6
	nodeInfoChannel       protowire.Number = 7
	nodeInfoViaMQTT       protowire.Number = 8
	nodeInfoHopsAway      protowire.Number = 9

	userID        protowire.Number = 1
	userLongName  protowire.Number = 2
	userShortName protowire.Number = 3
	userHwModel   protowire.Number = 5

	positionLatitudeI  protowire.Number = 1
	positionLongitudeI protowire.Number = 2
	positionAltitude   protowire.Number = 3
	positionTime       protowire.Number = 4

	packetFrom     protowire.Number = 1
	packetTo       protowire.Number = 2
	packetChannel  protowire.Number = 3
	packetDecoded  protowire.Number = 4
	packetID       protowire.Number = 6
	packetRxTime   protowire.Number = 7
	packetRxSNR    protowire.Number = 8
	packetHopLimit protowire.Number = 9
	packetWantAck  protowire.Number = 10
	packetHopStart protowire.Number = 15

	dataPortNum      protowire.Number = 1
	dataPayload      protowire.Number = 2
	dataWantResponse protowire.Number = 3
	dataDest         protowire.Number = 4
	dataSource       protowire.Number = 5
	dataRequestID    protowire.Number = 6
	dataReplyID      protowire.Number = 7

	telemetryTime protowire.Number = 1
)

// Packet is a MeshPacket as received from or sent to the radio. Encrypted packets carry no
// Decoded payload.
type Packet struct {
	From     uint32
	To       uint32
	Channel  uint32
	ID       uint32
	RxTime   uint32
	RxSNR    float32
	HopLimit uint32
	HopStart uint32
	WantAck  bool
	Decoded  *Data
}

type Data struct {
	PortNum      PortNum
	Payload      []byte
	WantResponse bool
	Dest         uint32
	Source       uint32
	RequestID    uint32
	ReplyID      uint32
}

type fromRadio struct {
	ID               uint32
	Packet           *Packet
	MyNodeNum        *uint32
	NodeInfo         *Node
	ConfigCompleteID *uint32
	Rebooted         bool
}

type field struct {
	num protowire.Number
	typ protowire.Type
	// VarintType, Fixed32Type and Fixed64Type values.
	u64 uint64
	// BytesType values. Aliases the input buffer.
	bytes []byte
}

func (f field) u32() uint32 {
	return uint32(f.u64)
}

func (f field) i32() int32 {
	return int32(f.u64)
}

func (f field) f32() float32 {
	return math.Float32frombits(uint32(f.u64))
}

func (f field) boolean() bool {
	return f.u64 != 0
}

// walk calls fn for every field in a serialized message. Groups are skipped.
func walk(b []byte, fn func(field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errors.Wrap(ErrInvalidFrame, protowire.ParseError(n).Error())
		}

		b = b[n:]
		f := field{num: num, typ: typ}

		switch typ {
		case protowire.VarintType:
			f.u64, n = protowire.ConsumeVarint(b)
		case protowire.Fixed32Type:
			var v uint32
			v, n = protowire.ConsumeFixed32(b)
			f.u64 = uint64(v)
		case protowire.Fixed64Type:
			f.u64, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}

		if n < 0 {
			return errors.Wrapf(ErrInvalidFrame, "field %d: %v", num, protowire.ParseError(n))
		}

		b = b[n:]

		if typ == protowire.StartGroupType {
			continue
		}

		if err := fn(f); err != nil {
			return err
		}
	}

	return nil
}

// expect guards against a field arriving with a different wire type than the schema says,
// which would otherwise silently decode garbage.
func expect(f field, typ protowire.Type) error {
	if f.typ != typ {
		return errors.Wrapf(ErrInvalidFrame, "field %d: wire type %d, want %d", f.num, f.typ, typ)
	}

	return nil
}

func decodeFromRadio(b []byte) (fr fromRadio, err error) {
	err = walk(b, func(f field) error {
		switch f.num {
		case fromRadioID:
			fr.ID = f.u32()
		case fromRadioPacket:
			if err := expect(f, protowire.BytesType); err != nil {
				return err
			}
			p, err := decodePacket(f.bytes)
			if err != nil {
				return errors.Wrap(err, "packet")
			}
			fr.Packet = &p
		case fromRadioMyInfo:
			if err := expect(f, protowire.BytesType); err != nil {
				return err
			}
			num, err := decodeMyInfo(f.bytes)
			if err != nil {
				return errors.Wrap(err, "my_info")
			}
			fr.MyNodeNum = &num
		case fromRadioNodeInfo:
			if err := expect(f, protowire.BytesType); err != nil {
				return err
			}
			n, err := decodeNodeInfo(f.bytes)
			if err != nil {
				return errors.Wrap(err, "node_info")
			}
			fr.NodeInfo = &n
		case fromRadioConfigCompleteID:
			if err := expect(f, protowire.VarintType); err != nil {
				return err
			}
			id := f.u32()
			fr.ConfigCompleteID = &id
		case fromRadioRebooted:
			fr.Rebooted = f.boolean()
		}
		return nil
	})

	return fr, err
}

func decodeMyInfo(b []byte) (num uint32, err error) {
	err = walk(b, func(f field) error {
		if f.num == myInfoMyNodeNum {
			num = f.u32()
		}
		return nil
	})

	return num, err
}

func decodeNodeInfo(b []byte) (n Node, err error) {
	err = walk(b, func(f field) error {
		switch f.num {
		case nodeInfoNum:
			n.Num = f.u32()
		case nodeInfoUser:
			if err := expect(f, protowire.BytesType); err != nil {
				return err
			}
			u, err := decodeUser(f.bytes)
			if err != nil {
				return errors.Wrap(err, "user")
			}
			n.User = &u
		case nodeInfoPosition:
			if err := expect(f, protowire.BytesType); err != nil {
				return err
			}
			p, err := decodePosition(f.bytes)
			if err != nil {
				return errors.Wrap(err, "position")
			}
			n.Position = &p
		case nodeInfoSNR:
			if err := expect(f, protowire.Fixed32Type); err != nil {
				return err
			}
			snr := f.f32()
			n.SNR = &snr
		case nodeInfoLastHeard:
			if err := expect(f, protowire.Fixed32Type); err != nil {
				return err
			}
			n.LastHeard = f.u32()
		case nodeInfoDeviceMetrics:
			if err := expect(f, protowire.BytesType); err != nil {
				return err
			}
			m, err := decodeDeviceMetrics(f.bytes)
			if err != nil {
				return errors.Wrap(err, "device_metrics")
			}
			n.DeviceMetrics = &m
		case nodeInfoChannel:
			n.Channel = f.u32()
		case nodeInfoViaMQTT:
			n.ViaMQTT = f.boolean()
		case nodeInfoHopsAway:
			hops := f.u32()
			n.HopsAway = &hops
		}
		return nil
	})

	return n, err
}

func decodeUser(b []byte) (u User, err error) {
	err = walk(b, func(f field) error {
		switch f.num {
		case userID:
			u.ID = string(f.bytes)
		case userLongName:
			u.LongName = string(f.bytes)
		case userShortName:
			u.ShortName = string(f.bytes)
		case userHwModel:
			u.HwModel = HardwareModel(f.u32())
		}
		return nil
	})

	return u, err
}

func decodePosition(b []byte) (p Position, err error) {
	err = walk(b, func(f field) error {
		switch f.num {
		case positionLatitudeI:
			v := f.i32()
			p.LatitudeI = &v
		case positionLongitudeI:
			v := f.i32()
			p.LongitudeI = &v
		case positionAltitude:
			v := f.i32()
			p.Altitude = &v
		case positionTime:
			p.Time = f.u32()
		}
		return nil
	})

	return p, err
}

func decodePacket(b []byte) (p Packet, err error) {
	err = walk(b, func(f field) error {
		switch f.num {
		case packetFrom:
			p.From = f.u32()
		case packetTo:
			p.To = f.u32()
		case packetChannel:
			p.Channel = f.u32()
		case packetDecoded:
			if err := expect(f, protowire.BytesType); err != nil {
				return err
			}
			d, err := decodeData(f.bytes)
			if err != nil {
				return errors.Wrap(err, "decoded")
			}
			p.Decoded = &d
		case packetID:
			p.ID = f.u32()
		case packetRxTime:
			p.RxTime = f.u32()
		case packetRxSNR:
			p.RxSNR = f.f32()
		case packetHopLimit:
			p.HopLimit = f.u32()
		case packetHopStart:
			p.HopStart = f.u32()
		case packetWantAck:
			p.WantAck = f.boolean()
		}
		return nil
	})

	return p, err
}

func decodeData(b []byte) (d Data, err error) {
	err = walk(b, func(f field) error {
		switch f.num {
		case dataPortNum:
			d.PortNum = PortNum(f.u32())
		case dataPayload:
			d.Payload = f.bytes
		case dataWantResponse:
			d.WantResponse = f.boolean()
		case dataDest:
			d.Dest = f.u32()
		case dataSource:
			d.Source = f.u32()
		case dataRequestID:
			d.RequestID = f.u32()
		case dataReplyID:
			d.ReplyID = f.u32()
		}
		return nil
	})

	return d, err
}

// DecodeTelemetry parses the payload of a TELEMETRY_APP packet.
func DecodeTelemetry(b []byte) (t Telemetry, err error) {
	err = walk(b, func(f field) error {
		switch f.num {
		case telemetryTime:
			t.Time = f.u32()
		case protowire.Number(TelemetryDevice):
			if err := expect(f, protowire.BytesType); err != nil {
				return err
			}
			m, err := decodeDeviceMetrics(f.bytes)
			if err != nil {
				return errors.Wrap(err, "device_metrics")
			}
			t.Device = &m
		case protowire.Number(TelemetryEnvironment):
			if err := expect(f, protowire.BytesType); err != nil {
				return err
			}
			m, err := decodeEnvironmentMetrics(f.bytes)
			if err != nil {
				return errors.Wrap(err, "environment_metrics")
			}
			t.Environment = &m
		case protowire.Number(TelemetryPower):
			if err := expect(f, protowire.BytesType); err != nil {
				return err
			}
			m, err := decodePowerMetrics(f.bytes)
			if err != nil {
				return errors.Wrap(err, "power_metrics")
			}
			t.Power = &m
		}
		return nil
	})

	return t, err
}

func decodeDeviceMetrics(b []byte) (m DeviceMetrics, err error) {
	err = walk(b, func(f field) error {
		switch f.num {
		case 1:
			v := f.u32()
			m.BatteryLevel = &v
		case 2:
			m.Voltage = f32Ptr(f)
		case 3:
			m.ChannelUtilization = f32Ptr(f)
		case 4:
			m.AirUtilTx = f32Ptr(f)
		case 5:
			v := f.u32()
			m.UptimeSeconds = &v
		}
		return nil
	})

	return m, err
}

func decodeEnvironmentMetrics(b []byte) (m EnvironmentMetrics, err error) {
	err = walk(b, func(f field) error {
		switch f.num {
		case 1:
			m.Temperature = f32Ptr(f)
		case 2:
			m.RelativeHumidity = f32Ptr(f)
		case 3:
			m.BarometricPressure = f32Ptr(f)
		case 4:
			m.GasResistance = f32Ptr(f)
		case 5:
			m.Voltage = f32Ptr(f)
		case 6:
			m.Current = f32Ptr(f)
		}
		return nil
	})

	return m, err
}

func decodePowerMetrics(b []byte) (m PowerMetrics, err error) {
	err = walk(b, func(f field) error {
		switch f.num {
		case 1:
			m.Ch1Voltage = f32Ptr(f)
		case 2:
			m.Ch1Current = f32Ptr(f)
		case 3:
			m.Ch2Voltage = f32Ptr(f)
		case 4:
			m.Ch2Current = f32Ptr(f)
		case 5:
			m.Ch3Voltage = f32Ptr(f)
		case 6:
			m.Ch3Current = f32Ptr(f)
		}
		return nil
	})

	return m, err
}

func f32Ptr(f field) *float32 {
	if f.typ != protowire.Fixed32Type {
		return nil
	}

	v := f.f32()

	return &v
}

func encodeWantConfig(id uint32) []byte {
	b := protowire.AppendTag(nil, toRadioWantConfigID, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(id))
}

func encodeDisconnect() []byte {
	b := protowire.AppendTag(nil, toRadioDisconnect, protowire.VarintType)
	return protowire.AppendVarint(b, 1)
}

func encodeToRadioPacket(p Packet) []byte {
	b := protowire.AppendTag(nil, toRadioPacket, protowire.BytesType)
	return protowire.AppendBytes(b, appendPacket(nil, p))
}

func appendPacket(b []byte, p Packet) []byte {
	if p.From != 0 {
		b = appendFixed32(b, packetFrom, p.From)
	}

	b = appendFixed32(b, packetTo, p.To)
	b = appendVarint(b, packetChannel, uint64(p.Channel))

	if p.Decoded != nil {
		b = protowire.AppendTag(b, packetDecoded, protowire.BytesType)
		b = protowire.AppendBytes(b, appendData(nil, *p.Decoded))
	}

	b = appendFixed32(b, packetID, p.ID)

	if p.RxTime != 0 {
		b = appendFixed32(b, packetRxTime, p.RxTime)
	}

	b = appendVarint(b, packetHopLimit, uint64(p.HopLimit))

	if p.WantAck {
		b = appendVarint(b, packetWantAck, 1)
	}

	if p.HopStart != 0 {
		b = appendVarint(b, packetHopStart, uint64(p.HopStart))
	}

	return b
}

func appendData(b []byte, d Data) []byte {
	b = appendVarint(b, dataPortNum, uint64(d.PortNum))

	if len(d.Payload) > 0 {
		b = protowire.AppendTag(b, dataPayload, protowire.BytesType)
		b = protowire.AppendBytes(b, d.Payload)
	}

	if d.WantResponse {
		b = appendVarint(b, dataWantResponse, 1)
	}

	if d.Dest != 0 {
		b = appendFixed32(b, dataDest, d.Dest)
	}

	if d.Source != 0 {
		b = appendFixed32(b, dataSource, d.Source)
	}

	if d.RequestID != 0 {
		b = appendFixed32(b, dataRequestID, d.RequestID)
	}

	if d.ReplyID != 0 {
		b = appendFixed32(b, dataReplyID, d.ReplyID)
	}

	return b
}

// encodeTelemetryRequest builds a Telemetry message with an empty variant of the requested
// kind, which is what the firmware answers to when want_response is set.
func encodeTelemetryRequest(k TelemetryKind) []byte {
	b := protowire.AppendTag(nil, protowire.Number(k), protowire.BytesType)
	return protowire.AppendBytes(b, nil)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}

	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendFixed32(b []byte, num protowire.Number, v uint32) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, v)
}
