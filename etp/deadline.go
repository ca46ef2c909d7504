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

import "time"

type deadlineEntry struct {
	maxDelay time.Duration
	priority int
}

// deadlineTable is the per-message-type deadline/priority table.
// Lower priority number is more urgent.
var deadlineTable = map[MessageType]deadlineEntry{
	Register:      {5000 * time.Millisecond, 80},
	Query:         {1000 * time.Millisecond, 50},
	QueryResponse: {500 * time.Millisecond, 50},
	Bid:           {1000 * time.Millisecond, 50},
	BidAccept:     {500 * time.Millisecond, 5},
	BidConfirm:    {500 * time.Millisecond, 5},
	BidReject:     {500 * time.Millisecond, 5},
	Terminate:     {1000 * time.Millisecond, 50},
	DeviceFailure: {200 * time.Millisecond, 0},
	BESSStatus:    {2000 * time.Millisecond, 60},
}

// MaxDelay returns the maximum elapsed time allowed between receiving m
// and dispatching its response. Unknown message types get the most
// permissive deadline of the table rather than zero, since "unknown" is
// not itself a timing violation.
func MaxDelay(m *Message) time.Duration {
	if e, ok := deadlineTable[m.MessageType]; ok {
		return e.maxDelay
	}
	return 5000 * time.Millisecond
}

// Priority returns the dispatch priority for m; lower is more urgent.
// Unknown message types sort last.
func Priority(m *Message) int {
	if e, ok := deadlineTable[m.MessageType]; ok {
		return e.priority
	}
	return 1 << 30
}
