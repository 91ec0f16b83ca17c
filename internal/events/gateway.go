package events

import "time"

// CompositionFinish is emitted after a supergraph composition attempt.
type CompositionFinish struct {
	Services   []string
	Hash       uint64
	Violations int
	Err        error
	Duration   time.Duration
}

// PlanCacheLookup is emitted for every plan cache lookup.
type PlanCacheLookup struct {
	Hit bool
}
