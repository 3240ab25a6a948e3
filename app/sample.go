package app

import (
	"encoding/binary"
	"fmt"

	"sparkrt/internal/config"
)

// PacketBytes is the queue item size of one sample.
const PacketBytes = config.SamplePacketBytes

// Sample is one sensor reading as carried on the sample queue.
type Sample struct {
	Seq   uint32
	Value uint32
}

func (s Sample) encode(dst []byte) {
	binary.BigEndian.PutUint32(dst[0:4], s.Seq)
	binary.BigEndian.PutUint32(dst[4:8], s.Value)
}

func decodeSample(b []byte) Sample {
	return Sample{
		Seq:   binary.BigEndian.Uint32(b[0:4]),
		Value: binary.BigEndian.Uint32(b[4:8]),
	}
}

func (s Sample) String() string {
	return fmt.Sprintf("sample seq=%d value=%d", s.Seq, s.Value)
}

const (
	sensorRegData = 0x3b
	sensorRead    = 0x80
)

// syntheticReading is what the demo sensor reports for a sequence number.
func syntheticReading(seq uint32) uint32 {
	return (seq * 17) & 0x00FF_FFFF
}

// readFrame builds a 4-byte register read carrying the expected reading, so
// a loopback bus hands the value back.
func readFrame(seq uint32) [4]byte {
	v := syntheticReading(seq)
	return [4]byte{sensorRead | sensorRegData, byte(v >> 16), byte(v >> 8), byte(v)}
}

func parseFrame(rx [4]byte) uint32 {
	return uint32(rx[1])<<16 | uint32(rx[2])<<8 | uint32(rx[3])
}
