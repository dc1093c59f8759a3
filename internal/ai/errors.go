package ai

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrTransient marks failures worth retrying: rate limits, overload, network trouble.
	ErrTransient = errors.New("transient analysis failure")
	// ErrPermanent marks failures that will repeat on retry: malformed input or output.
	ErrPermanent = errors.New("permanent analysis failure")
)

type FailureKind string

const (
	FailureTransient FailureKind = "transient"
	FailurePermanent FailureKind = "permanent"
)

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, ErrTransient)
}

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, ErrPermanent)
}

// KindOf classifies err. Unmarked errors are treated as permanent.
func KindOf(err error) FailureKind {
	if errors.Is(err, ErrTransient) {
		return FailureTransient
	}
	return FailurePermanent
}
