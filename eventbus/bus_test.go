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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeReceivesPublishedEvent(t *testing.T) {
	bus := New(4, nil)
	_, ch := bus.Subscribe()

	bus.Publish(AuctionStarted{AuctionID: "a1", TotalEnergy: 10, ReservePrice: 5})

	env := <-ch
	assert.Equal(t, "AuctionStarted", env.Kind)
	assert.Equal(t, AuctionStarted{AuctionID: "a1", TotalEnergy: 10, ReservePrice: 5}, env.Payload)
}

func TestEventsOrderedPerPublisher(t *testing.T) {
	bus := New(8, nil)
	_, ch := bus.Subscribe()

	for i := 0; i < 5; i++ {
		bus.Publish(BidPlaced{BESSID: uint64(i)})
	}

	for i := 0; i < 5; i++ {
		env := <-ch
		bp, ok := env.Payload.(BidPlaced)
		require.True(t, ok)
		assert.Equal(t, uint64(i), bp.BESSID)
	}
}

func TestFullQueueDropsOldestWithoutBlocking(t *testing.T) {
	bus := New(2, nil)
	_, ch := bus.Subscribe()

	for i := 0; i < 5; i++ {
		bus.Publish(BidPlaced{BESSID: uint64(i)})
	}

	// Capacity 2: the oldest events were evicted, only the last two survive.
	first := (<-ch).Payload.(BidPlaced)
	second := (<-ch).Payload.(BidPlaced)
	assert.Equal(t, uint64(3), first.BESSID)
	assert.Equal(t, uint64(4), second.BESSID)
}

func TestMultipleSubscribersEachReceive(t *testing.T) {
	bus := New(4, nil)
	_, ch1 := bus.Subscribe()
	_, ch2 := bus.Subscribe()

	bus.Publish(EnergyDepleted{BESSID: 7})

	assert.Equal(t, uint64(7), (<-ch1).Payload.(EnergyDepleted).BESSID)
	assert.Equal(t, uint64(7), (<-ch2).Payload.(EnergyDepleted).BESSID)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := New(4, nil)
	id, ch := bus.Subscribe()
	bus.Unsubscribe(id)

	_, open := <-ch
	assert.False(t, open)

	// Publishing after unsubscribe must not panic or block.
	bus.Publish(EnergyDepleted{BESSID: 1})
}

// TestConcurrentUnsubscribeDuringPublishNeverPanics drives Publish and
// Unsubscribe against the same subscriber concurrently. Publish snapshots
// the subscriber pointer outside the bus lock, so without synchronizing
// the close against in-flight sends this panics on a closed channel.
func TestConcurrentUnsubscribeDuringPublishNeverPanics(t *testing.T) {
	bus := New(4, nil)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		id, _ := bus.Subscribe()
		wg.Add(2)
		go func() {
			defer wg.Done()
			bus.Publish(EnergyDepleted{BESSID: 1})
		}()
		go func(id uint64) {
			defer wg.Done()
			bus.Unsubscribe(id)
		}(id)
	}
	wg.Wait()
}
