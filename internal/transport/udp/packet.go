// SPDX-License-Identifier: MIT
package udp

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"pitchd/internal/pitch"
)

/*
Pitch Packet (BigEndian, 25 bytes)

|<- 4 ->|<---- 8 ---->|<- 4 ->|<--- 4 --->|<-- 4 -->|<- 1 ->|
+-------+-------------+-------+-----------+---------+-------+
|  Seq  |  Timestamp  | Pitch | Confidence| Latency | Flags |
| uint32|   float64   |float32|  float32  | float32 | uint8 |
+-------+-------------+-------+-----------+---------+-------+

Timestamp is the audio clock in seconds, Pitch is in Hz (0 when unvoiced),
Latency is the estimation time in milliseconds.
*/

// PacketSize is the length of an encoded pitch packet.
const PacketSize = 25

// FlagVoiced is set when the window carried a pitch.
const FlagVoiced uint8 = 1 << 0

// Packet is the decoded form of a pitch datagram.
type Packet struct {
	Sequence   uint32
	Timestamp  float64
	Pitch      float32
	Confidence float32
	Latency    float32 // ms
	Flags      uint8
}

// Voiced reports whether FlagVoiced is set.
func (p Packet) Voiced() bool {
	return p.Flags&FlagVoiced != 0
}

// EncodePacket writes ev into dst, which must hold PacketSize bytes.
// Performance Critical (Hot Path):
// - No allocations
func EncodePacket(dst []byte, seq uint32, ev pitch.Event) []byte {
	dst = dst[:PacketSize]
	var flags uint8
	if ev.Voiced {
		flags |= FlagVoiced
	}
	binary.BigEndian.PutUint32(dst[0:4], seq)
	binary.BigEndian.PutUint64(dst[4:12], math.Float64bits(ev.Timestamp))
	binary.BigEndian.PutUint32(dst[12:16], math.Float32bits(float32(ev.Frequency)))
	binary.BigEndian.PutUint32(dst[16:20], math.Float32bits(float32(ev.Confidence)))
	binary.BigEndian.PutUint32(dst[20:24], math.Float32bits(float32(ev.Latency)/float32(time.Millisecond)))
	dst[24] = flags
	return dst
}

// DecodePacket parses a datagram produced by EncodePacket.
func DecodePacket(b []byte) (Packet, error) {
	if len(b) != PacketSize {
		return Packet{}, fmt.Errorf("pitch packet: got %d bytes, want %d", len(b), PacketSize)
	}
	return Packet{
		Sequence:   binary.BigEndian.Uint32(b[0:4]),
		Timestamp:  math.Float64frombits(binary.BigEndian.Uint64(b[4:12])),
		Pitch:      math.Float32frombits(binary.BigEndian.Uint32(b[12:16])),
		Confidence: math.Float32frombits(binary.BigEndian.Uint32(b[16:20])),
		Latency:    math.Float32frombits(binary.BigEndian.Uint32(b[20:24])),
		Flags:      b[24],
	}, nil
}
