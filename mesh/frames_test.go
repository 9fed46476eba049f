package mesh

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Encoders for the radio side of the conversation. Production code only ever decodes these.

func frameMyInfo(num uint32) []byte {
	inner := appendVarint(nil, myInfoMyNodeNum, uint64(num))
	return appendMessage(nil, fromRadioMyInfo, inner)
}

func frameConfigComplete(id uint32) []byte {
	b := protowire.AppendTag(nil, fromRadioConfigCompleteID, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(id))
}

func frameNodeInfo(n Node) []byte {
	return appendMessage(nil, fromRadioNodeInfo, appendNodeInfo(nil, n))
}

func framePacket(p Packet) []byte {
	return appendMessage(nil, fromRadioPacket, appendPacket(nil, p))
}

func appendNodeInfo(b []byte, n Node) []byte {
	b = appendVarint(b, nodeInfoNum, uint64(n.Num))

	if n.User != nil {
		var u []byte
		u = appendString(u, userID, n.User.ID)
		u = appendString(u, userLongName, n.User.LongName)
		u = appendString(u, userShortName, n.User.ShortName)
		u = appendVarint(u, userHwModel, uint64(n.User.HwModel))
		b = appendMessage(b, nodeInfoUser, u)
	}

	if n.Position != nil {
		var p []byte
		if n.Position.LatitudeI != nil {
			p = appendFixed32(p, positionLatitudeI, uint32(*n.Position.LatitudeI))
		}
		if n.Position.LongitudeI != nil {
			p = appendFixed32(p, positionLongitudeI, uint32(*n.Position.LongitudeI))
		}
		if n.Position.Altitude != nil {
			p = protowire.AppendTag(p, positionAltitude, protowire.VarintType)
			p = protowire.AppendVarint(p, uint64(int64(*n.Position.Altitude)))
		}
		b = appendMessage(b, nodeInfoPosition, p)
	}

	if n.SNR != nil {
		b = appendFixed32(b, nodeInfoSNR, math.Float32bits(*n.SNR))
	}

	if n.LastHeard != 0 {
		b = appendFixed32(b, nodeInfoLastHeard, n.LastHeard)
	}

	if n.HopsAway != nil {
		b = protowire.AppendTag(b, nodeInfoHopsAway, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(*n.HopsAway))
	}

	return b
}

func appendTelemetry(b []byte, t Telemetry) []byte {
	if t.Time != 0 {
		b = appendFixed32(b, telemetryTime, t.Time)
	}

	if t.Device != nil {
		var m []byte
		if t.Device.BatteryLevel != nil {
			m = protowire.AppendTag(m, 1, protowire.VarintType)
			m = protowire.AppendVarint(m, uint64(*t.Device.BatteryLevel))
		}
		m = appendFloat(m, 2, t.Device.Voltage)
		b = appendMessage(b, protowire.Number(TelemetryDevice), m)
	}

	if t.Environment != nil {
		var m []byte
		m = appendFloat(m, 1, t.Environment.Temperature)
		m = appendFloat(m, 2, t.Environment.RelativeHumidity)
		b = appendMessage(b, protowire.Number(TelemetryEnvironment), m)
	}

	if t.Power != nil {
		var m []byte
		m = appendFloat(m, 1, t.Power.Ch1Voltage)
		m = appendFloat(m, 2, t.Power.Ch1Current)
		m = appendFloat(m, 3, t.Power.Ch2Voltage)
		m = appendFloat(m, 4, t.Power.Ch2Current)
		b = appendMessage(b, protowire.Number(TelemetryPower), m)
	}

	return b
}

func appendFloat(b []byte, num protowire.Number, v *float32) []byte {
	if v == nil {
		return b
	}

	return appendFixed32(b, num, math.Float32bits(*v))
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}

	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendMessage(b []byte, num protowire.Number, m []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m)
}

func ptr[T any](v T) *T {
	return &v
}
