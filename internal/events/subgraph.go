package events

import "time"

// SubgraphStart is emitted before a request is sent to a subgraph.
type SubgraphStart struct {
	Service string
	StepID  int
	URL     string
}

// SubgraphFinish is emitted after a subgraph request completes.
type SubgraphFinish struct {
	Service  string
	StepID   int
	URL      string
	Status   int
	Err      error
	Duration time.Duration
}
