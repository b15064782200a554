package ixgbe

import (
	"errors"
	"fmt"

	"github.com/ixy-go/ixgbe/memory"
)

// Kind classifies a driver error the way the reference driver's error()
// call sites do, so callers can decide fatal-vs-retryable without string
// matching.
type Kind int

const (
	// ConfigError is a violated precondition: a malformed PCI address, a
	// mempool entry size that doesn't divide the huge-page size, a queue
	// entry count that isn't a power of two, multi-segment RX. Fatal.
	ConfigError Kind = iota
	// ResourceError is the OS refusing mmap/mlock/open/ftruncate, or a
	// mempool exhausted on RX refill. Fatal on RX refill; retryable
	// (returned as "none"/"full") everywhere else.
	ResourceError
	// MappingError is pagemap reporting a locked page as not present.
	// Fatal.
	MappingError
	// Timeout is link not coming up within the init budget. Logged, not
	// fatal.
	Timeout
)

func (k Kind) String() string {
	switch k {
	case ConfigError:
		return "config error"
	case ResourceError:
		return "resource error"
	case MappingError:
		return "mapping error"
	case Timeout:
		return "timeout"
	default:
		return "unknown error"
	}
}

// Error is the driver's error type. Call sites that need to distinguish
// kinds use errors.As against *Error and inspect Kind.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("ixgbe: %s: %s", e.Kind, e.Msg)
}

func newError(k Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// wrapMemoryErr builds an *Error for a failure returned by the memory
// package, promoting to MappingError when the underlying cause is a
// *memory.MappingError (a pagemap translation of a just-locked page
// coming back not-present) and falling back to ResourceError otherwise
// (mmap/mlock/open/ftruncate refusals, brute-force contiguity misses).
func wrapMemoryErr(err error, format string, args ...interface{}) *Error {
	k := ResourceError
	var me *memory.MappingError
	if errors.As(err, &me) {
		k = MappingError
	}
	return newError(k, format, args...)
}
