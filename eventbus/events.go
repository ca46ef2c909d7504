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

package eventbus

import (
	"encoding/json"
	"time"
)

// Event is implemented by every lifecycle event variant below. Kind
// names the variant for the JSON-tagged encoding external subscribers
// (the WebSocket fan-out, the persistence adapter) decode against.
type Event interface {
	Kind() string
}

// Envelope is the JSON-tagged wire shape external subscribers see: a
// discriminator plus the variant-specific payload, and the timestamp the
// core observed the condition becoming true.
type Envelope struct {
	Kind    string    `json:"kind"`
	At      time.Time `json:"at"`
	Payload Event     `json:"payload"`
}

type AuctionStarted struct {
	AuctionID    string  `json:"auction_id"`
	TotalEnergy  float64 `json:"total_energy"`
	ReservePrice float64 `json:"reserve_price"`
}

func (AuctionStarted) Kind() string { return "AuctionStarted" }

type QuerySent struct {
	AggregatorID uint64 `json:"aggregator_id"`
	BESSID       uint64 `json:"bess_id"`
}

func (QuerySent) Kind() string { return "QuerySent" }

type QueryResponseEvent struct {
	BESSID            uint64  `json:"bess_id"`
	EnergyAvailable   float64 `json:"energy_available"`
	PercentageForSale float64 `json:"percentage_for_sale"`
}

func (QueryResponseEvent) Kind() string { return "QueryResponse" }

type BidPlaced struct {
	AuctionID    string  `json:"auction_id"`
	AggregatorID uint64  `json:"aggregator_id"`
	BESSID       uint64  `json:"bess_id"`
	BidPrice     float64 `json:"bid_price"`
	EnergyAmount float64 `json:"energy_amount"`
}

func (BidPlaced) Kind() string { return "BidPlaced" }

type BidAccepted struct {
	AuctionID    string  `json:"auction_id"`
	AggregatorID uint64  `json:"aggregator_id"`
	BESSID       uint64  `json:"bess_id"`
	FinalPrice   float64 `json:"final_price"`
	EnergyAmount float64 `json:"energy_amount"`
}

func (BidAccepted) Kind() string { return "BidAccepted" }

type BidRejected struct {
	AggregatorID uint64 `json:"aggregator_id"`
	BESSID       uint64 `json:"bess_id"`
	Reason       string `json:"reason"`
}

func (BidRejected) Kind() string { return "BidRejected" }

type AuctionCompleted struct {
	AuctionID          string        `json:"auction_id"`
	WinnerAggregatorID uint64        `json:"winner_aggregator_id"`
	SellerBESSID       uint64        `json:"seller_bess_id"`
	EnergySold         float64       `json:"energy_sold"`
	FinalPrice         float64       `json:"final_price"`
	TotalValue         float64       `json:"total_value"`
	AuctionDuration    time.Duration `json:"auction_duration_ms"`
}

func (AuctionCompleted) Kind() string { return "AuctionCompleted" }

// MarshalJSON encodes AuctionDuration in whole milliseconds, as its
// auction_duration_ms tag names it, rather than time.Duration's
// nanoseconds.
func (e AuctionCompleted) MarshalJSON() ([]byte, error) {
	type plain AuctionCompleted
	return json.Marshal(struct {
		plain
		AuctionDuration int64 `json:"auction_duration_ms"`
	}{plain(e), e.AuctionDuration.Milliseconds()})
}

type EnergyDepleted struct {
	BESSID           uint64  `json:"bess_id"`
	FinalEnergy      float64 `json:"final_energy"`
	EnergyPercentage float64 `json:"energy_percentage"`
}

func (EnergyDepleted) Kind() string { return "EnergyDepleted" }

type EnergyRecharged struct {
	BESSID           uint64  `json:"bess_id"`
	EnergyAdded      float64 `json:"energy_added"`
	NewTotal         float64 `json:"new_total"`
	EnergyPercentage float64 `json:"energy_percentage"`
}

func (EnergyRecharged) Kind() string { return "EnergyRecharged" }

type BESSNodeStatus struct {
	BESSID            uint64  `json:"bess_id"`
	Online            bool    `json:"online"`
	CurrentLevel      float64 `json:"current_level"`
	PercentageForSale float64 `json:"percentage_for_sale"`
	HealthStatus      uint8   `json:"health_status"`
}

func (BESSNodeStatus) Kind() string { return "BESSNodeStatus" }

type AggregatorStatus struct {
	AggregatorID uint64 `json:"aggregator_id"`
	Online       bool   `json:"online"`
	Strategy     string `json:"strategy"`
	DiscoveredN  int    `json:"discovered_bess_count"`
}

func (AggregatorStatus) Kind() string { return "AggregatorStatus" }

type SystemMetrics struct {
	TotalAuctions              int     `json:"total_auctions"`
	TotalBids                  int     `json:"total_bids"`
	AvgPriceImprovementPercent float64 `json:"avg_price_improvement_percent"`
	ActiveBESSNodes            int     `json:"active_bess_nodes"`
	ActiveAggregators          int     `json:"active_aggregators"`
}

func (SystemMetrics) Kind() string { return "SystemMetrics" }
