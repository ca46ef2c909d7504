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
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/voltmesh/etp-core/etp"
	"github.com/voltmesh/etp-core/eventbus"
)

// WithEventBus attaches a Bus an Aggregator publishes its auction
// lifecycle events to. Without one, StartAuction still generates an id
// and bids but publishes nothing, and CompleteAuction does nothing.
func WithEventBus(bus *eventbus.Bus) Option {
	return func(a *Aggregator) { a.bus = bus }
}

// StartAuction mints a fresh auction id, runs OptimizeBids across the
// discovered set, and — if an event bus is attached — publishes
// AuctionStarted before returning the generated bids. The caller drives
// the actual send/receive round-trip over a Conn per bid and reports
// the outcome back via CompleteAuction and EvaluateBidResponse.
func (a *Aggregator) StartAuction(totalEnergy, maxPrice float64) (auctionID string, bids []*etp.Message) {
	auctionID = uuid.NewString()
	bids = a.OptimizeBids(totalEnergy, maxPrice)

	if a.bus != nil {
		a.bus.Publish(eventbus.AuctionStarted{
			AuctionID:    auctionID,
			TotalEnergy:  totalEnergy,
			ReservePrice: lowestReserveInBids(bids),
		})
	}
	return auctionID, bids
}

// CompleteAuction publishes AuctionCompleted for a finished auction
// round; startedAt is the instant StartAuction was called for auctionID.
func (a *Aggregator) CompleteAuction(auctionID string, winnerAggregatorID, sellerBESSID uint64, energySold, finalPrice float64, startedAt time.Time) {
	if a.bus == nil {
		return
	}
	a.bus.Publish(eventbus.AuctionCompleted{
		AuctionID:          auctionID,
		WinnerAggregatorID: winnerAggregatorID,
		SellerBESSID:       sellerBESSID,
		EnergySold:         energySold,
		FinalPrice:         finalPrice,
		TotalValue:         energySold * finalPrice,
		AuctionDuration:    time.Since(startedAt),
	})
}

// lowestReserveInBids approximates a representative reserve price for
// an AuctionStarted event from a batch of generated bids. A Bid message
// carries no reserve_price field of its own, so the lowest bid_price in
// the batch is used as a proxy — OptimizeBids targets BESS in ascending
// reserve-price order, so the first (lowest-priced, under Conservative
// or Random) bid corresponds to the cheapest counterparty. Returns 0
// for an empty batch.
func lowestReserveInBids(bids []*etp.Message) float64 {
	if len(bids) == 0 {
		return 0
	}
	lowest := math.Inf(1)
	for _, b := range bids {
		if b.BidPrice < lowest {
			lowest = b.BidPrice
		}
	}
	return lowest
}
