package events

import "time"

// HTTPStart is emitted when the GraphQL handler receives a request.
type HTTPStart struct {
	RequestID string
	Method    string
	Path      string
}

// HTTPFinish is emitted after the response has been written.
type HTTPFinish struct {
	RequestID string
	Method    string
	Path      string
	Status    int
	Duration  time.Duration
}

// GraphQLStart is emitted before an operation is planned and executed.
// A batch emits one pair per operation.
type GraphQLStart struct {
	OperationName string
	OperationType string
}

// GraphQLFinish is emitted after an operation completes. DataNull is set
// when errors bubbled to the root or the operation was never executed.
type GraphQLFinish struct {
	OperationName string
	OperationType string
	ErrorCount    int
	DataNull      bool
	Duration      time.Duration
}
