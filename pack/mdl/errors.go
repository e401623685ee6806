package mdl

import (
	"github.com/pkg/errors"

	"github.com/mogaika/odyssey_browser/utils"
)

// The four ways a load or store can fail. All of them abort the whole call:
// a half-built node tree is never returned.
var (
	// ErrTruncatedData means a required fixed-size read would cross the end
	// of the supplied buffer.
	ErrTruncatedData = errors.New("truncated data")

	// ErrConsistency means the file is well-formed but contradicts itself,
	// for example a declared vertex count that does not fit the companion
	// vertex file.
	ErrConsistency = errors.New("inconsistent data")

	// ErrUnsupportedVariant means a node flag combination or controller
	// (type, column) pair outside the known tables. Treated as a
	// forward-compatibility signal, never coerced to the nearest known kind.
	ErrUnsupportedVariant = errors.New("unsupported variant")

	// ErrCycleDetected means a child offset pointed at an already-visited
	// node. The format models a tree, never a graph.
	ErrCycleDetected = errors.New("cycle detected")
)

// recoverParseError converts BufStack overrun panics into ErrTruncatedData.
// Any other panic is a bug and keeps propagating.
func recoverParseError(err *error) {
	r := recover()
	if r == nil {
		return
	}
	if overrun, ok := r.(*utils.OverrunError); ok {
		*err = errors.Wrap(ErrTruncatedData, overrun.Error())
		return
	}
	panic(r)
}
