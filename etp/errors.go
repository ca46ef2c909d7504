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

import "fmt"

// Kind classifies an error by which part of the system raised it.
type Kind int

const (
	KindValidation Kind = iota
	KindCodec
	KindTransport
	KindTiming
	KindInventory
	KindDiscovery
	KindConfiguration
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindCodec:
		return "codec"
	case KindTransport:
		return "transport"
	case KindTiming:
		return "timing"
	case KindInventory:
		return "inventory"
	case KindDiscovery:
		return "discovery"
	case KindConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with the error kind that produced it,
// so callers can branch with errors.Is/As instead of matching strings.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("etp: %s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

func newError(k Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Err: fmt.Errorf(format, args...)}
}
