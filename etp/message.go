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

// Package etp implements the Energy Trading Protocol message: its
// fixed 14-field schema, binary codec, and the per-type deadline and
// priority table that the BESS server enforces.
package etp

import "fmt"

// MessageType identifies one of the ten ETP message kinds. Values 10 and
// above are invalid.
type MessageType uint8

const (
	Register      MessageType = 0
	Query         MessageType = 1
	QueryResponse MessageType = 2
	Bid           MessageType = 3
	BidAccept     MessageType = 4
	BidConfirm    MessageType = 5
	BidReject     MessageType = 6
	Terminate     MessageType = 7
	DeviceFailure MessageType = 8
	BESSStatus    MessageType = 9

	maxMessageType = 9
)

func (t MessageType) String() string {
	switch t {
	case Register:
		return "Register"
	case Query:
		return "Query"
	case QueryResponse:
		return "QueryResponse"
	case Bid:
		return "Bid"
	case BidAccept:
		return "BidAccept"
	case BidConfirm:
		return "BidConfirm"
	case BidReject:
		return "BidReject"
	case Terminate:
		return "Terminate"
	case DeviceFailure:
		return "DeviceFailure"
	case BESSStatus:
		return "BESSStatus"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(t))
	}
}

// Termination codes.
const (
	TermNormal              uint8 = 0
	TermPriceBelowReserve   uint8 = 1
	TermInsufficientEnergy  uint8 = 2
	TermPeerOffline         uint8 = 3
)

// Battery health status codes: 0 excellent .. 3 poor.
const (
	HealthExcellent uint8 = 0
	HealthGood      uint8 = 1
	HealthFair      uint8 = 2
	HealthPoor      uint8 = 3
)

// Message is the fixed 14-field ETP record. Field order here is the
// wire order used by Encode/Decode.
type Message struct {
	MessageType             MessageType
	MessageID               uint64
	DeviceID                uint64
	TTL                     uint8
	BidPrice                float64
	SalePrice               float64
	EnergyTotal             float64
	PercentageForSale       float64
	RequiredEnergyAmount    float64
	TerminationCode         uint8
	RemainingBatteryEnergy  float64
	BatteryHealthStatusCode uint8
	BatteryVoltage          float64
	DischargeRate           float64
}

// DecrementTTL decrements TTL by one, never underflowing past zero.
func (m *Message) DecrementTTL() {
	if m.TTL > 0 {
		m.TTL--
	}
}

// IsExpired reports whether the message's hop budget is exhausted.
func (m *Message) IsExpired() bool { return m.TTL == 0 }
