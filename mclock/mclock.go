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

// Package mclock abstracts the monotonic clock source used to enforce
// ETP's per-message-type response deadlines. Wall-clock time is never
// suitable for measuring elapsed duration (clock adjustments, NTP slew),
// so every deadline measurement goes through a Clock rather than
// time.Now() directly.
package mclock

import "time"

// AbsTime is a monotonic timestamp, opaque outside of Sub.
type AbsTime time.Time

// Sub returns the elapsed duration between two timestamps taken from the
// same Clock.
func (a AbsTime) Sub(b AbsTime) time.Duration {
	return time.Time(a).Sub(time.Time(b))
}

// Clock abstracts over time.Now / time.After so timing-sensitive code
// (the BESS server's deadline enforcement, in particular) can be driven
// deterministically in tests.
type Clock interface {
	Now() AbsTime
	After(d time.Duration) <-chan AbsTime
	Sleep(d time.Duration)
}

// System is the production Clock, backed by the Go runtime's monotonic
// clock reading (every time.Time obtained via time.Now carries one).
type System struct{}

func (System) Now() AbsTime { return AbsTime(time.Now()) }

func (System) After(d time.Duration) <-chan AbsTime {
	ch := make(chan AbsTime, 1)
	go func() {
		t := <-time.After(d)
		ch <- AbsTime(t)
	}()
	return ch
}

func (System) Sleep(d time.Duration) { time.Sleep(d) }
