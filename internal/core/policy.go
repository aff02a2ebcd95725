package core

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Policy decides what a failed step does to the surrounding workflow.
type Policy int

const (
	// Fatal failures abort the workflow.
	Fatal Policy = iota
	// BestEffort failures are logged and swallowed.
	BestEffort
)

func (p Policy) String() string {
	if p == BestEffort {
		return "best-effort"
	}
	return "fatal"
}

// Handle applies policy to the outcome of op. It returns nil for a nil err and
// for any BestEffort failure.
func Handle(logger zerolog.Logger, policy Policy, op string, err error) error {
	if err == nil {
		return nil
	}
	if policy == BestEffort {
		logger.Warn().Err(err).Str("op", op).Msg("ignoring failure")
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}
