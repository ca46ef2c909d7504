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

package aggregator

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/voltmesh/etp-core/bess"
	"github.com/voltmesh/etp-core/etp"
	"github.com/voltmesh/etp-core/eventbus"
)

func newTestAggregator(t *testing.T, strategy Strategy) *Aggregator {
	t.Helper()
	return New(1, "agg-1", strategy, 0, 100, nil, WithRandSource(rand.New(rand.NewSource(42))))
}

func TestIntelligentFallbackWithEmptyHistory(t *testing.T) {
	a := newTestAggregator(t, Intelligent)
	bid := a.GenerateBid(15, 10.0, 25)
	require.Equal(t, 15.0, bid.BidPrice)
}

func TestConservativeStrategyExact(t *testing.T) {
	a := newTestAggregator(t, Conservative)
	bid := a.GenerateBid(15, 10, 25)
	require.Equal(t, 15.5, bid.BidPrice)
}

func TestAggressiveStrategyExact(t *testing.T) {
	a := newTestAggregator(t, Aggressive)
	bid := a.GenerateBid(15, 10, 25)
	require.Equal(t, 24.5, bid.BidPrice)
}

func TestRandomStrategyWithinBounds(t *testing.T) {
	a := newTestAggregator(t, Random)
	for i := 0; i < 50; i++ {
		bid := a.GenerateBid(15, 10, 25)
		require.GreaterOrEqual(t, bid.BidPrice, 15.0)
		require.LessOrEqual(t, bid.BidPrice, 25.0)
	}
}

func TestRandomStrategyHandlesInvertedBounds(t *testing.T) {
	a := newTestAggregator(t, Random)
	// max < reserve: generation must still succeed, never error, and the
	// price must land in the interval between the two bounds.
	bid := a.GenerateBid(20, 10, 5)
	require.GreaterOrEqual(t, bid.BidPrice, 5.0)
	require.LessOrEqual(t, bid.BidPrice, 20.0)
}

func TestHistoryStats(t *testing.T) {
	a := newTestAggregator(t, Random)
	a.AddHistoricalBid(1, 15.5, 10, true)
	a.AddHistoricalBid(1, 16.0, 10, true)
	a.AddHistoricalBid(1, 14.8, 10, false)
	a.AddHistoricalBid(1, 17.2, 10, true)

	require.Equal(t, 0.75, a.SuccessRate())
	require.InDelta(t, 15.875, a.AverageBidPrice(), 1e-9)
}

func TestSuccessRateZeroWhenEmpty(t *testing.T) {
	a := newTestAggregator(t, Random)
	require.Equal(t, 0.0, a.SuccessRate())
	require.Equal(t, 0.0, a.AverageBidPrice())
}

func TestIntelligentUsesRecentMatchingAcceptedHistory(t *testing.T) {
	a := newTestAggregator(t, Intelligent)
	a.AddHistoricalBid(1, 10, 10, true)  // energy 10 >= 0.8*10, matches
	a.AddHistoricalBid(1, 20, 3, true)   // 3 < 8, does not match for energy=10
	a.AddHistoricalBid(1, 30, 10, false) // not accepted, does not match

	bid := a.GenerateBid(5, 10.0, 50)
	// Only the first entry (price 10) matches; result is 10 +/- 0.5 noise.
	require.GreaterOrEqual(t, bid.BidPrice, 9.5)
	require.LessOrEqual(t, bid.BidPrice, 10.5)
}

func TestGreedyAllocationOrderAndTotal(t *testing.T) {
	a := newTestAggregator(t, Conservative)
	a.UpsertDiscovered(bess.Snapshot{DeviceID: 2, ReservePrice: 16, AvailableEnergy: 60})
	a.UpsertDiscovered(bess.Snapshot{DeviceID: 1, ReservePrice: 15, AvailableEnergy: 40})

	bids := a.OptimizeBids(80, 18)
	require.Len(t, bids, 2)
	// reserve-ascending: device 1 (reserve 15) first, then device 2 (reserve 16).
	require.Equal(t, 40.0, bids[0].RequiredEnergyAmount)
	require.Equal(t, 40.0, bids[1].RequiredEnergyAmount)

	total := 0.0
	for _, b := range bids {
		total += b.RequiredEnergyAmount
	}
	require.Equal(t, 80.0, total)
}

func TestOptimizeBidsStopsAtTotalEnergy(t *testing.T) {
	a := newTestAggregator(t, Conservative)
	a.UpsertDiscovered(bess.Snapshot{DeviceID: 1, ReservePrice: 15, AvailableEnergy: 100})
	a.UpsertDiscovered(bess.Snapshot{DeviceID: 2, ReservePrice: 16, AvailableEnergy: 100})

	bids := a.OptimizeBids(30, 18)
	require.Len(t, bids, 1)
	require.Equal(t, 30.0, bids[0].RequiredEnergyAmount)
}

func TestEvaluateBidResponseRecordsExactlyOneEntry(t *testing.T) {
	a := newTestAggregator(t, Random)
	bid := &etp.Message{MessageType: etp.Bid, BidPrice: 20, RequiredEnergyAmount: 10}
	accept := &etp.Message{MessageType: etp.BidAccept, DeviceID: 7, SalePrice: 20, RequiredEnergyAmount: 10}

	a.EvaluateBidResponse(bid, accept)
	require.Equal(t, 1, a.HistoryLen())
	require.Equal(t, 1.0, a.SuccessRate())

	reject := &etp.Message{MessageType: etp.BidReject, DeviceID: 8}
	a.EvaluateBidResponse(bid, reject)
	require.Equal(t, 2, a.HistoryLen())
	require.Equal(t, 0.5, a.SuccessRate())
}

func TestQueryBESSNodesFiltersByAvailability(t *testing.T) {
	a := newTestAggregator(t, Random)
	a.UpsertDiscovered(bess.Snapshot{DeviceID: 1, AvailableEnergy: 5})
	a.UpsertDiscovered(bess.Snapshot{DeviceID: 2, AvailableEnergy: 50})

	responses := a.QueryBESSNodes(10)
	require.Len(t, responses, 1)
	require.Equal(t, uint64(2), responses[0].DeviceID)
}

func TestBidRangeInvariantHoldsAfterSwap(t *testing.T) {
	a := New(1, "agg-1", Random, 100, 10, nil)
	min, max := a.BidRange()
	require.LessOrEqual(t, min, max)
	require.Equal(t, 10.0, min)
	require.Equal(t, 100.0, max)
}

func TestStartAuctionPublishesAuctionStartedWithUniqueID(t *testing.T) {
	bus := eventbus.New(8, nil)
	sub, events := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	a := New(1, "agg-1", Conservative, 0, 100, nil, WithEventBus(bus))
	a.UpsertDiscovered(bess.Snapshot{DeviceID: 1, ReservePrice: 15, AvailableEnergy: 40})

	id1, bids1 := a.StartAuction(20, 18)
	id2, _ := a.StartAuction(20, 18)

	require.NotEmpty(t, id1)
	require.NotEqual(t, id1, id2)
	require.Len(t, bids1, 1)

	env := <-events
	started, ok := env.Payload.(eventbus.AuctionStarted)
	require.True(t, ok)
	require.Equal(t, id1, started.AuctionID)
	require.Equal(t, 20.0, started.TotalEnergy)
}

func TestCompleteAuctionPublishesAuctionCompleted(t *testing.T) {
	bus := eventbus.New(8, nil)
	sub, events := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	a := New(2, "agg-2", Conservative, 0, 100, nil, WithEventBus(bus))
	id, _ := a.StartAuction(10, 18)
	<-events // drain AuctionStarted

	a.CompleteAuction(id, 2, 7, 10, 20, time.Now().Add(-5*time.Millisecond))

	env := <-events
	completed, ok := env.Payload.(eventbus.AuctionCompleted)
	require.True(t, ok)
	require.Equal(t, id, completed.AuctionID)
	require.Equal(t, 200.0, completed.TotalValue)
}
