package events

import (
	"net/http"
	"time"
)

// HTTPStart is emitted when a request reaches the GraphQL handler. The
// context carries the request context and its request ID.
type HTTPStart struct {
	Request *http.Request
}

// HTTPFinish is emitted after the handler completes, including after an
// incremental response finished streaming.
type HTTPFinish struct {
	Request  *http.Request
	Status   int
	Duration time.Duration
}
