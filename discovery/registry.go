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

// Package discovery implements the multicast registration/query plane:
// a process joins a fixed IPv4 multicast group, BESS nodes broadcast
// Register announcements on it, and a Query broadcast fans out to a
// Registry of candidate BESS, each answering with a unicast
// QueryResponse.
package discovery

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/voltmesh/etp-core/bess"
)

// Registry is the RW-locked, device-id-keyed set of candidate BESS a
// Discovery instance has learned about, either from its own process
// (register_bess) or from Register datagrams observed on the multicast
// group. There are no back-pointers into a BESS's live Inventory — only
// the last snapshot reported, looked up by device_id.
type Registry struct {
	mu      sync.RWMutex
	entries map[uint64]bess.Snapshot
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[uint64]bess.Snapshot)}
}

// Put inserts or replaces the snapshot for its DeviceID.
func (r *Registry) Put(snap bess.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[snap.DeviceID] = snap
}

// Get looks up a single entry by device_id.
func (r *Registry) Get(id uint64) (bess.Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap, ok := r.entries[id]
	return snap, ok
}

// All returns a copy of every known entry. Order is unspecified.
func (r *Registry) All() []bess.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]bess.Snapshot, 0, len(r.entries))
	for _, snap := range r.entries {
		out = append(out, snap)
	}
	return out
}

// OnlineIDs returns the set of device ids currently marked online.
func (r *Registry) OnlineIDs() mapset.Set[uint64] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := mapset.NewThreadUnsafeSet[uint64]()
	for id, snap := range r.entries {
		if snap.Online {
			ids.Add(id)
		}
	}
	return ids
}
