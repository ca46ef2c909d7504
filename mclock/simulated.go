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

package mclock

import (
	"container/heap"
	"sync"
	"time"
)

// Simulated implements Clock for deterministic tests: time only advances
// when Run is called, so a test can assert "elapsed > deadline" without
// sleeping real wall time.
type Simulated struct {
	mu      sync.Mutex
	now     AbsTime
	waiters timerHeap
}

// NewSimulated returns a Simulated clock starting at the zero instant.
func NewSimulated() *Simulated {
	return &Simulated{now: AbsTime(time.Unix(0, 0))}
}

func (s *Simulated) Now() AbsTime {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *Simulated) After(d time.Duration) <-chan AbsTime {
	ch := make(chan AbsTime, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	heap.Push(&s.waiters, &timer{at: time.Time(s.now).Add(d), ch: ch})
	return ch
}

// Sleep advances the simulated clock by d and fires any waiters whose
// deadline has passed.
func (s *Simulated) Sleep(d time.Duration) {
	s.Run(d)
}

// Run advances the clock by d, firing due timers in order.
func (s *Simulated) Run(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	target := time.Time(s.now).Add(d)
	for s.waiters.Len() > 0 && !s.waiters[0].at.After(target) {
		t := heap.Pop(&s.waiters).(*timer)
		s.now = AbsTime(t.at)
		t.ch <- s.now
	}
	s.now = AbsTime(target)
}

type timer struct {
	at time.Time
	ch chan AbsTime
}

type timerHeap []*timer

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x interface{}) { *h = append(*h, x.(*timer)) }
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
