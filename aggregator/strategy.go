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

// Strategy is the tagged variant an Aggregator dispatches bid generation
// on. It is a plain enum matched in a switch, not a class hierarchy.
type Strategy int

const (
	Random Strategy = iota
	Conservative
	Aggressive
	Intelligent
)

func (s Strategy) String() string {
	switch s {
	case Random:
		return "Random"
	case Conservative:
		return "Conservative"
	case Aggressive:
		return "Aggressive"
	case Intelligent:
		return "Intelligent"
	default:
		return "Unknown"
	}
}
