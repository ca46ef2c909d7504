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

package bess

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/voltmesh/etp-core/etp"
)

func TestEvaluateBidAcceptPath(t *testing.T) {
	inv := New(1, "bess-1", 100, 80, 15, 50, 400, 1, 50)

	eval := inv.EvaluateBid(20, 10)
	assert.True(t, eval.Accepted)
	assert.Equal(t, 20.0, eval.SalePrice)
	assert.Equal(t, 10.0, eval.Energy)
}

func TestEvaluateBidRejectLowPrice(t *testing.T) {
	inv := New(1, "bess-1", 100, 80, 15, 50, 400, 1, 50)

	eval := inv.EvaluateBid(10, 10)
	assert.False(t, eval.Accepted)
	assert.Equal(t, uint8(etp.TermPriceBelowReserve), eval.Code)
	assert.Equal(t, "Bid price below reserve price", eval.Reason)
}

func TestEvaluateBidRejectInsufficientEnergy(t *testing.T) {
	inv := New(1, "bess-1", 100, 80, 15, 50, 400, 1, 50)
	inv.SetPercentageForSale(10) // available = 8

	eval := inv.EvaluateBid(20, 50)
	assert.False(t, eval.Accepted)
	assert.Equal(t, uint8(etp.TermInsufficientEnergy), eval.Code)
	assert.Equal(t, "Insufficient energy available", eval.Reason)
}

func TestEvaluateBidCriticalSurcharge(t *testing.T) {
	inv := New(1, "bess-1", 100, 5, 15, 50, 400, 1, 100)
	assert.Equal(t, Critical, inv.EnergyStatus())

	rejected := inv.EvaluateBid(25, 1)
	assert.False(t, rejected.Accepted)
	assert.Equal(t, "Energy critical - only accepting premium bids", rejected.Reason)

	accepted := inv.EvaluateBid(31, 1)
	assert.True(t, accepted.Accepted)
}

func TestTryReserveDebitsOnAccept(t *testing.T) {
	inv := New(1, "bess-1", 100, 80, 15, 50, 400, 1, 100)

	eval := inv.TryReserve(20, 10)
	assert.True(t, eval.Accepted)
	assert.Equal(t, 70.0, inv.CurrentLevel())
}

func TestTryReserveDoesNotDebitOnReject(t *testing.T) {
	inv := New(1, "bess-1", 100, 80, 15, 50, 400, 1, 100)

	eval := inv.TryReserve(1, 10)
	assert.False(t, eval.Accepted)
	assert.Equal(t, 80.0, inv.CurrentLevel())
}

func TestSellEnergyDecrementsExactly(t *testing.T) {
	inv := New(1, "bess-1", 100, 80, 15, 50, 400, 1, 100)
	ok := inv.SellEnergy(30)
	assert.True(t, ok)
	assert.Equal(t, 50.0, inv.CurrentLevel())
}

func TestSellEnergyFailsWhenInsufficient(t *testing.T) {
	inv := New(1, "bess-1", 100, 10, 15, 50, 400, 1, 50) // available = 5
	ok := inv.SellEnergy(9)
	assert.False(t, ok)
	assert.Equal(t, 10.0, inv.CurrentLevel())
}

func TestRechargeClampsToCapacity(t *testing.T) {
	inv := New(1, "bess-1", 100, 99.9, 15, 50, 400, 1, 100)
	inv.Recharge(10) // would add 0.5
	assert.Equal(t, 100.0, inv.CurrentLevel())
}

func TestAvailableEnergyInvariant(t *testing.T) {
	inv := New(1, "bess-1", 100, 80, 15, 50, 400, 1, 50)
	avail := inv.AvailableEnergy()
	assert.GreaterOrEqual(t, avail, 0.0)
	assert.LessOrEqual(t, avail, inv.CurrentLevel())
	assert.LessOrEqual(t, inv.CurrentLevel(), inv.TotalCapacity)
}

// TestConcurrentTryReserveNeverOversells drives many concurrent bids
// against a single Inventory and checks current_level never goes
// negative — the race TryReserve exists to close.
func TestConcurrentTryReserveNeverOversells(t *testing.T) {
	inv := New(1, "bess-1", 100, 100, 0, 50, 400, 1, 100)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inv.TryReserve(10, 5)
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, inv.CurrentLevel(), 0.0)
}
