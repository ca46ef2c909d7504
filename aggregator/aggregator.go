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

// Package aggregator implements the buyer-side bidding engine: a
// discovered-BESS set, four bid-generation strategies, a greedy
// multi-BESS allocator, and a history of past bids a learning strategy
// draws on.
package aggregator

import (
	"math"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/sync/errgroup"

	"github.com/voltmesh/etp-core/bess"
	"github.com/voltmesh/etp-core/etp"
	"github.com/voltmesh/etp-core/eventbus"
	"github.com/voltmesh/etp-core/log"
)

// predictionFallback is returned by predictWinningPrice when history is
// empty or has no matching accepted entries.
const predictionFallback = 15.0

// maxQueryConcurrency bounds how many discovered-BESS entries
// queryBESSNodes evaluates at once.
const maxQueryConcurrency = 8

// HistoricalBid is one append-only record of a past bid outcome.
type HistoricalBid struct {
	BESSDeviceID uint64
	BidPrice     float64
	EnergyAmount float64
	WasAccepted  bool
	Timestamp    time.Time
}

// Aggregator is one buyer node: its discovered-BESS set, its bidding
// strategy, and its bid history. The discovered map and the history are
// each guarded by their own lock, matching how a BESS server's
// Inventory is the sole owner of its own state.
type Aggregator struct {
	DeviceID uint64
	Name     string

	log log.Logger
	bus *eventbus.Bus

	mu       sync.RWMutex
	strategy Strategy
	online   bool

	bidRangeMu  sync.RWMutex
	minBidPrice float64
	maxBidPrice float64

	discoveredMu sync.RWMutex
	discovered   map[uint64]bess.Snapshot
	order        []uint64
	seen         mapset.Set[uint64]

	historyMu sync.RWMutex
	history   []HistoricalBid

	nextMessageID atomic.Uint64

	randMu sync.Mutex
	rnd    *rand.Rand
}

// Option configures optional Aggregator behavior.
type Option func(*Aggregator)

// WithRandSource overrides the random source backing the Random
// strategy and the Intelligent strategy's prediction noise; tests
// inject a seeded source for determinism.
func WithRandSource(r *rand.Rand) Option {
	return func(a *Aggregator) { a.rnd = r }
}

// New constructs an Aggregator. If minBidPrice > maxBidPrice the two are
// swapped so the min_bid_price <= max_bid_price invariant always holds.
func New(deviceID uint64, name string, strategy Strategy, minBidPrice, maxBidPrice float64, logger log.Logger, opts ...Option) *Aggregator {
	if logger == nil {
		logger = log.Root()
	}
	if minBidPrice > maxBidPrice {
		minBidPrice, maxBidPrice = maxBidPrice, minBidPrice
	}
	a := &Aggregator{
		DeviceID:    deviceID,
		Name:        name,
		log:         logger.New("component", "aggregator", "device_id", deviceID),
		strategy:    strategy,
		online:      true,
		minBidPrice: minBidPrice,
		maxBidPrice: maxBidPrice,
		discovered:  make(map[uint64]bess.Snapshot),
		seen:        mapset.NewThreadUnsafeSet[uint64](),
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Strategy returns the current bidding strategy.
func (a *Aggregator) Strategy() Strategy {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.strategy
}

// SetStrategy atomically switches the bidding strategy.
func (a *Aggregator) SetStrategy(s Strategy) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.strategy = s
}

// Online reports whether the aggregator is actively bidding.
func (a *Aggregator) Online() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.online
}

// SetOnline toggles whether the aggregator is actively bidding.
func (a *Aggregator) SetOnline(online bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.online = online
}

// BidRange returns the configured [min, max] bid price bounds.
func (a *Aggregator) BidRange() (min, max float64) {
	a.bidRangeMu.RLock()
	defer a.bidRangeMu.RUnlock()
	return a.minBidPrice, a.maxBidPrice
}

// SetBidRange updates the bid price bounds, swapping them if inverted.
func (a *Aggregator) SetBidRange(min, max float64) {
	if min > max {
		min, max = max, min
	}
	a.bidRangeMu.Lock()
	defer a.bidRangeMu.Unlock()
	a.minBidPrice, a.maxBidPrice = min, max
}

// UpsertDiscovered records or updates a candidate BESS in the
// discovered set, e.g. from a QueryResponse observed on the discovery
// plane. Insertion order is tracked (via seen) so optimize_bids' stable
// sort has a deterministic tie-break for equal reserve prices.
func (a *Aggregator) UpsertDiscovered(snap bess.Snapshot) {
	a.discoveredMu.Lock()
	defer a.discoveredMu.Unlock()
	if !a.seen.Contains(snap.DeviceID) {
		a.seen.Add(snap.DeviceID)
		a.order = append(a.order, snap.DeviceID)
	}
	a.discovered[snap.DeviceID] = snap
}

// Discovered returns the known candidate set in first-seen order.
func (a *Aggregator) Discovered() []bess.Snapshot {
	return a.discoveredSnapshot()
}

// DiscoveredCount returns the number of known candidate BESS.
func (a *Aggregator) DiscoveredCount() int {
	a.discoveredMu.RLock()
	defer a.discoveredMu.RUnlock()
	return len(a.discovered)
}

func (a *Aggregator) discoveredSnapshot() []bess.Snapshot {
	a.discoveredMu.RLock()
	defer a.discoveredMu.RUnlock()
	out := make([]bess.Snapshot, 0, len(a.order))
	for _, id := range a.order {
		if snap, ok := a.discovered[id]; ok {
			out = append(out, snap)
		}
	}
	return out
}

func (a *Aggregator) randFloat64() float64 {
	a.randMu.Lock()
	defer a.randMu.Unlock()
	return a.rnd.Float64()
}

// GenerateBid builds a fully populated Bid message for requestedEnergy
// against a counterparty whose reserve price is reserve, with the bid
// price set per the current strategy:
//
//   - Random: a uniform sample of the closed interval between reserve
//     and maxPrice (the bounds are swapped for sampling if maxPrice <
//     reserve, since a uniform draw needs an ordered interval; this is
//     the only adjustment made, the strategies' own formulas are never
//     second-guessed).
//   - Conservative: reserve + 0.5.
//   - Aggressive: maxPrice - 0.5.
//   - Intelligent: predictWinningPrice(requestedEnergy).
//
// Never fails, even when maxPrice < reserve.
func (a *Aggregator) GenerateBid(reserve, requestedEnergy, maxPrice float64) *etp.Message {
	price := a.priceForStrategy(reserve, requestedEnergy, maxPrice)
	return &etp.Message{
		MessageType:          etp.Bid,
		MessageID:            a.nextMessageID.Add(1),
		DeviceID:             a.DeviceID,
		TTL:                  8,
		BidPrice:             price,
		RequiredEnergyAmount: requestedEnergy,
	}
}

func (a *Aggregator) priceForStrategy(reserve, energy, maxPrice float64) float64 {
	switch a.Strategy() {
	case Conservative:
		return reserve + 0.5
	case Aggressive:
		return maxPrice - 0.5
	case Intelligent:
		return a.predictWinningPrice(energy)
	default: // Random
		lo, hi := reserve, maxPrice
		if hi < lo {
			lo, hi = hi, lo
		}
		return lo + a.randFloat64()*(hi-lo)
	}
}

// predictWinningPrice returns predictionFallback if history is empty.
// Otherwise it scans the ten most recent history entries satisfying
// WasAccepted && EnergyAmount >= 0.8*energy; if none match, it also
// returns predictionFallback; otherwise it returns their mean plus
// uniform noise in [-0.5, +0.5].
func (a *Aggregator) predictWinningPrice(energy float64) float64 {
	a.historyMu.RLock()
	hist := a.history
	a.historyMu.RUnlock()

	if len(hist) == 0 {
		return predictionFallback
	}

	var matched []float64
	for i := len(hist) - 1; i >= 0 && len(matched) < 10; i-- {
		h := hist[i]
		if h.WasAccepted && h.EnergyAmount >= 0.8*energy {
			matched = append(matched, h.BidPrice)
		}
	}
	if len(matched) == 0 {
		return predictionFallback
	}

	sum := 0.0
	for _, p := range matched {
		sum += p
	}
	mean := sum / float64(len(matched))
	noise := -0.5 + a.randFloat64()*1.0
	return mean + noise
}

// AddHistoricalBid appends a new history record stamped with the
// current time.
func (a *Aggregator) AddHistoricalBid(bessDeviceID uint64, price, amount float64, wasAccepted bool) {
	a.historyMu.Lock()
	defer a.historyMu.Unlock()
	a.history = append(a.history, HistoricalBid{
		BESSDeviceID: bessDeviceID,
		BidPrice:     price,
		EnergyAmount: amount,
		WasAccepted:  wasAccepted,
		Timestamp:    time.Now(),
	})
}

// SuccessRate returns the fraction of history entries with
// WasAccepted, or 0 when history is empty.
func (a *Aggregator) SuccessRate() float64 {
	a.historyMu.RLock()
	defer a.historyMu.RUnlock()
	if len(a.history) == 0 {
		return 0
	}
	accepted := 0
	for _, h := range a.history {
		if h.WasAccepted {
			accepted++
		}
	}
	return float64(accepted) / float64(len(a.history))
}

// AverageBidPrice returns the arithmetic mean of BidPrice across
// history, or 0 when empty.
func (a *Aggregator) AverageBidPrice() float64 {
	a.historyMu.RLock()
	defer a.historyMu.RUnlock()
	if len(a.history) == 0 {
		return 0
	}
	sum := 0.0
	for _, h := range a.history {
		sum += h.BidPrice
	}
	return sum / float64(len(a.history))
}

// HistoryLen returns the number of recorded history entries.
func (a *Aggregator) HistoryLen() int {
	a.historyMu.RLock()
	defer a.historyMu.RUnlock()
	return len(a.history)
}

// OptimizeBids snapshots the discovered set, sorts it ascending by
// reserve price (stable, ties broken by first-seen order), and greedily
// allocates totalEnergy across it: each BESS is asked for
// min(remaining, its available energy) until remaining reaches zero or
// the set is exhausted. Every allocation becomes a Bid message via
// GenerateBid. Errors during optimization (there are none in this
// implementation; available data is always well-formed) would yield an
// empty slice rather than a panic.
func (a *Aggregator) OptimizeBids(totalEnergy, maxPrice float64) []*etp.Message {
	snaps := a.discoveredSnapshot()
	sort.SliceStable(snaps, func(i, j int) bool {
		return snaps[i].ReservePrice < snaps[j].ReservePrice
	})

	var bids []*etp.Message
	remaining := totalEnergy
	for _, s := range snaps {
		if remaining <= 0 {
			break
		}
		alloc := math.Min(remaining, s.AvailableEnergy)
		if alloc <= 0 {
			continue
		}
		bids = append(bids, a.GenerateBid(s.ReservePrice, alloc, maxPrice))
		remaining -= alloc
	}
	return bids
}

// EvaluateBidResponse records the outcome of a Bid/response round-trip
// into history: on BidAccept, the reported energy_amount; on BidReject,
// the originally requested amount from bid.
func (a *Aggregator) EvaluateBidResponse(bid, response *etp.Message) {
	switch response.MessageType {
	case etp.BidAccept:
		a.AddHistoricalBid(response.DeviceID, bid.BidPrice, response.RequiredEnergyAmount, true)
	case etp.BidReject:
		a.AddHistoricalBid(response.DeviceID, bid.BidPrice, bid.RequiredEnergyAmount, false)
	default:
		a.log.Warn("unexpected response type in evaluate_bid_response", "type", response.MessageType)
	}
}

// QueryBESSNodes synthesizes a QueryResponse for every discovered BESS
// that can provide required energy. Candidates are evaluated
// concurrently, bounded by maxQueryConcurrency, since in a large
// discovered set this is pure per-entry computation with no shared
// mutable state beyond the result slot each goroutine owns.
func (a *Aggregator) QueryBESSNodes(required float64) []*etp.Message {
	snaps := a.discoveredSnapshot()
	results := make([]*etp.Message, len(snaps))

	var g errgroup.Group
	g.SetLimit(maxQueryConcurrency)
	for i, s := range snaps {
		i, s := i, s
		g.Go(func() error {
			if !canProvide(s, required) {
				return nil
			}
			results[i] = &etp.Message{
				MessageType:             etp.QueryResponse,
				DeviceID:                s.DeviceID,
				TTL:                     8,
				EnergyTotal:             s.TotalCapacity,
				PercentageForSale:       s.PercentageForSale,
				RemainingBatteryEnergy:  s.CurrentLevel,
				BatteryHealthStatusCode: s.HealthStatus,
				BatteryVoltage:          s.Voltage,
				DischargeRate:           s.MaxDischargeRate,
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]*etp.Message, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func canProvide(s bess.Snapshot, required float64) bool {
	if required == 0 {
		return true
	}
	return required > 0 && s.AvailableEnergy >= required
}
