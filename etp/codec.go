// Copyright 2025 R5 Labs
// This file is part of the R5 Core library.
//
// This software is provided "as is", without warranty of any kind,
// express or implied, including but not limited to the warranties
// of merchantability, fitness for a particular purpose and
// noninfringement. In no event shall the authors or copyright
// holders be liable for any claim, damages, or other liability,
// whether in an action of contract, tort or otherwise, arising
// from, out of or in connection with the software or the use or
// other dealings in the software.

package etp

import (
	"encoding/binary"
	"math"
)

// EncodedSize is the fixed wire length of an encoded Message: the 14
// fields in declared order, little-endian, IEEE-754 doubles for every
// real-valued field.
const EncodedSize = 1 + 8 + 8 + 1 + 8 + 8 + 8 + 8 + 8 + 1 + 8 + 1 + 8 + 8 // 84 bytes

// Encode serializes m into its fixed-length binary wire form. Encode
// never fails: any Message value, valid or not, has a well-defined byte
// representation — validity is the caller's responsibility via Validate.
func Encode(m *Message) []byte {
	buf := make([]byte, EncodedSize)
	off := 0

	buf[off] = uint8(m.MessageType)
	off++
	binary.LittleEndian.PutUint64(buf[off:], m.MessageID)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], m.DeviceID)
	off += 8
	buf[off] = m.TTL
	off++
	off = putFloat64(buf, off, m.BidPrice)
	off = putFloat64(buf, off, m.SalePrice)
	off = putFloat64(buf, off, m.EnergyTotal)
	off = putFloat64(buf, off, m.PercentageForSale)
	off = putFloat64(buf, off, m.RequiredEnergyAmount)
	buf[off] = m.TerminationCode
	off++
	off = putFloat64(buf, off, m.RemainingBatteryEnergy)
	buf[off] = m.BatteryHealthStatusCode
	off++
	off = putFloat64(buf, off, m.BatteryVoltage)
	off = putFloat64(buf, off, m.DischargeRate)

	return buf
}

// Decode parses a fixed-length binary wire form into a Message. It fails
// if the input is shorter than the schema or if the decoded fields fail
// Validate.
func Decode(b []byte) (*Message, error) {
	if len(b) < EncodedSize {
		return nil, newError(KindCodec, "short buffer: got %d bytes, need %d", len(b), EncodedSize)
	}

	m := &Message{}
	off := 0

	m.MessageType = MessageType(b[off])
	off++
	m.MessageID = binary.LittleEndian.Uint64(b[off:])
	off += 8
	m.DeviceID = binary.LittleEndian.Uint64(b[off:])
	off += 8
	m.TTL = b[off]
	off++
	m.BidPrice, off = getFloat64(b, off)
	m.SalePrice, off = getFloat64(b, off)
	m.EnergyTotal, off = getFloat64(b, off)
	m.PercentageForSale, off = getFloat64(b, off)
	m.RequiredEnergyAmount, off = getFloat64(b, off)
	m.TerminationCode = b[off]
	off++
	m.RemainingBatteryEnergy, off = getFloat64(b, off)
	m.BatteryHealthStatusCode = b[off]
	off++
	m.BatteryVoltage, off = getFloat64(b, off)
	m.DischargeRate, _ = getFloat64(b, off)

	if err := Validate(m); err != nil {
		return nil, err
	}
	return m, nil
}

func putFloat64(buf []byte, off int, v float64) int {
	binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(v))
	return off + 8
}

func getFloat64(buf []byte, off int) (float64, int) {
	bits := binary.LittleEndian.Uint64(buf[off:])
	return math.Float64frombits(bits), off + 8
}
