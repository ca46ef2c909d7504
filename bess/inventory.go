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

// Package bess implements the BESS Inventory: the per-node
// capacity/reserve/health state a BESS server consults and mutates
// under a reader-writer discipline, and the bid-evaluation rules that
// decide whether an incoming Bid is accepted.
package bess

import (
	"sync"
	"time"

	"github.com/voltmesh/etp-core/etp"
)

// EnergyStatus buckets a BESS's current_level/total_capacity ratio into
// the four tiers that drive the reserve-price surcharge.
type EnergyStatus int

const (
	Critical EnergyStatus = iota // < 10%
	Low                          // < 25%
	Normal                       // < 75%
	High                         // >= 75%
)

func (s EnergyStatus) String() string {
	switch s {
	case Critical:
		return "Critical"
	case Low:
		return "Low"
	case Normal:
		return "Normal"
	case High:
		return "High"
	default:
		return "Unknown"
	}
}

// reserveMultiplier is the adjusted-reserve multiplier per energy status
//.
var reserveMultiplier = map[EnergyStatus]float64{
	Critical: 2.0,
	Low:      1.5,
	Normal:   1.0,
	High:     0.9,
}

// Inventory is one BESS's owned state. It is exclusively owned by
// its BESS server; any other goroutine accesses it only through these
// methods, which take the reader-writer lock for the duration of the
// call — never across a suspension point, so evaluation and mutation are
// two separate critical sections by default; TryReserve below closes
// that gap for the accept path.
type Inventory struct {
	DeviceID         uint64
	Name             string
	TotalCapacity    float64
	MaxDischargeRate float64
	Voltage          float64

	mu                sync.RWMutex
	currentLevel      float64
	reservePrice      float64
	healthStatus      uint8
	percentageForSale float64
	online            bool
	lastHeartbeat     time.Time
}

// New constructs an Inventory. currentLevel, reservePrice and
// percentageForSale are caller-supplied (callers typically derive the
// starting level from config.DefaultStartChargeFrac * totalCapacity and
// the starting percentage from config.DefaultPercentForSale).
func New(deviceID uint64, name string, totalCapacity, currentLevel, reservePrice, maxDischargeRate, voltage float64, healthStatus uint8, percentageForSale float64) *Inventory {
	return &Inventory{
		DeviceID:          deviceID,
		Name:              name,
		TotalCapacity:     totalCapacity,
		MaxDischargeRate:  maxDischargeRate,
		Voltage:           voltage,
		currentLevel:      currentLevel,
		reservePrice:      reservePrice,
		healthStatus:      healthStatus,
		percentageForSale: percentageForSale,
		online:            true,
		lastHeartbeat:     time.Now(),
	}
}

// CurrentLevel returns the current stored energy (kWh).
func (inv *Inventory) CurrentLevel() float64 {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return inv.currentLevel
}

// PercentageForSale returns the fraction of current_level eligible for
// trade, as a percentage in [0,100].
func (inv *Inventory) PercentageForSale() float64 {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return inv.percentageForSale
}

// ReservePrice returns the unadjusted reserve price.
func (inv *Inventory) ReservePrice() float64 {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return inv.reservePrice
}

// Online reports whether the BESS currently accepts trade.
func (inv *Inventory) Online() bool {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return inv.online
}

// HealthStatusCode returns the raw 0..3 battery health code.
func (inv *Inventory) HealthStatusCode() uint8 {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return inv.healthStatus
}

// AvailableEnergy returns current_level * percentage_for_sale/100.
func (inv *Inventory) AvailableEnergy() float64 {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return inv.availableEnergyLocked()
}

func (inv *Inventory) availableEnergyLocked() float64 {
	return inv.currentLevel * inv.percentageForSale / 100
}

// CanProvide reports whether e kWh can be supplied: true trivially for
// e == 0, otherwise true iff available energy covers e.
func (inv *Inventory) CanProvide(e float64) bool {
	if e == 0 {
		return true
	}
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return e > 0 && inv.availableEnergyLocked() >= e
}

// EnergyStatus buckets current_level/total_capacity.
func (inv *Inventory) EnergyStatus() EnergyStatus {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return inv.energyStatusLocked()
}

func (inv *Inventory) energyStatusLocked() EnergyStatus {
	ratio := inv.currentLevel / inv.TotalCapacity
	switch {
	case ratio < 0.10:
		return Critical
	case ratio < 0.25:
		return Low
	case ratio < 0.75:
		return Normal
	default:
		return High
	}
}

// Snapshot is a point-in-time copy of an Inventory's public fields, used
// for QueryResponse generation and for the aggregator's discovered-BESS
// map — copying instead of sharing the pointer keeps a
// caller from holding a reference into another node's lock-protected
// state.
type Snapshot struct {
	DeviceID          uint64
	Name              string
	TotalCapacity     float64
	CurrentLevel      float64
	ReservePrice      float64
	MaxDischargeRate  float64
	Voltage           float64
	HealthStatus      uint8
	PercentageForSale float64
	Online            bool
	AvailableEnergy   float64
}

// Snapshot copies the inventory's current state under a single read lock.
func (inv *Inventory) Snapshot() Snapshot {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return Snapshot{
		DeviceID:          inv.DeviceID,
		Name:              inv.Name,
		TotalCapacity:     inv.TotalCapacity,
		CurrentLevel:      inv.currentLevel,
		ReservePrice:      inv.reservePrice,
		MaxDischargeRate:  inv.MaxDischargeRate,
		Voltage:           inv.Voltage,
		HealthStatus:      inv.healthStatus,
		PercentageForSale: inv.percentageForSale,
		Online:            inv.online,
		AvailableEnergy:   inv.availableEnergyLocked(),
	}
}

// Evaluation is the outcome of evaluating a bid: exactly one of Accept
// or Reject is meaningful, discriminated by Accepted.
type Evaluation struct {
	Accepted  bool
	SalePrice float64
	Energy    float64
	Reason    string
	Code      uint8
}

// reasonForAdjustedReserve returns the energy-status-specific reject
// reason for a bid priced below the adjusted reserve.
func reasonForAdjustedReserve(status EnergyStatus) string {
	switch status {
	case Critical:
		return "Energy critical - only accepting premium bids"
	case Low:
		return "Energy low - bid below adjusted reserve price"
	default:
		return "Bid price below reserve price"
	}
}

// EvaluateBid runs the evaluation order under a single read lock
// and returns the outcome without mutating state, for callers that only
// want to know the outcome; TryReserve is the atomic evaluate-and-debit
// path used on the actual Bid/BidAccept flow.
func (inv *Inventory) EvaluateBid(bidPrice, requestedEnergy float64) Evaluation {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return inv.evaluateLocked(bidPrice, requestedEnergy)
}

func (inv *Inventory) evaluateLocked(bidPrice, requestedEnergy float64) Evaluation {
	if requestedEnergy != 0 && !(requestedEnergy > 0 && inv.availableEnergyLocked() >= requestedEnergy) {
		return Evaluation{Reason: "Insufficient energy available", Code: etp.TermInsufficientEnergy}
	}
	if !inv.online {
		return Evaluation{Reason: "BESS is offline", Code: etp.TermPeerOffline}
	}
	status := inv.energyStatusLocked()
	adjustedReserve := inv.reservePrice * reserveMultiplier[status]
	if bidPrice < adjustedReserve {
		return Evaluation{Reason: reasonForAdjustedReserve(status), Code: etp.TermPriceBelowReserve}
	}
	return Evaluation{Accepted: true, SalePrice: bidPrice, Energy: requestedEnergy}
}

// TryReserve atomically evaluates a bid and, on acceptance, debits
// current_level by the accepted energy, closing the evaluate/mutate
// race a separate evaluate-then-sell call pair would leave open. This
// is the path the BESS server drives for an incoming Bid message: the
// debit happens at BidAccept time, not at BidConfirm.
func (inv *Inventory) TryReserve(bidPrice, requestedEnergy float64) Evaluation {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	eval := inv.evaluateLocked(bidPrice, requestedEnergy)
	if eval.Accepted {
		inv.currentLevel -= eval.Energy
	}
	return eval
}

// SellEnergy decrements current_level by e, re-checking CanProvide under
// the write lock. It fails (returning false) rather than letting
// current_level go negative.
func (inv *Inventory) SellEnergy(e float64) bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if e < 0 || !(e == 0 || inv.availableEnergyLocked() >= e) {
		return false
	}
	inv.currentLevel -= e
	return true
}

// Recharge adds 0.05 * dtSeconds kWh to current_level, clamped to
// total_capacity.
func (inv *Inventory) Recharge(dtSeconds float64) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.currentLevel += 0.05 * dtSeconds
	if inv.currentLevel > inv.TotalCapacity {
		inv.currentLevel = inv.TotalCapacity
	}
}

// UpdateStatus sets the online flag, health status code, and heartbeat
// timestamp reported by a BESSStatus/DeviceFailure message.
func (inv *Inventory) UpdateStatus(online bool, healthStatus uint8, at time.Time) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.online = online
	inv.healthStatus = healthStatus
	inv.lastHeartbeat = at
}

// SetPercentageForSale clamps p to [0,100] and sets it.
func (inv *Inventory) SetPercentageForSale(p float64) {
	if p < 0 {
		p = 0
	} else if p > 100 {
		p = 100
	}
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.percentageForSale = p
}
