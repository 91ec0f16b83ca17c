package events

import "time"

// WaveStart is emitted before the steps of a wave are dispatched.
type WaveStart struct {
	Wave  int
	Steps []int
}

// WaveFinish is emitted once every step of a wave has settled.
type WaveFinish struct {
	Wave     int
	Failed   int
	Duration time.Duration
}

// StepFailure is emitted for a step that failed or became unreachable.
type StepFailure struct {
	StepID  int
	Service string
	Kind    string
	Message string
}

// StepRetry is emitted before a failed step is attempted again.
type StepRetry struct {
	StepID  int
	Service string
	Attempt int
	Err     error
}
