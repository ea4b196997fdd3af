package ai

import (
	"net/http"
	"time"
)

// Action is what the fallback loop does with a backend status code.
type Action int

const (
	// ActionSkip moves to the next candidate immediately.
	ActionSkip Action = iota
	// ActionAccept takes the response as the answer.
	ActionAccept
	// ActionRetryWithDelay waits Policy.Delay, then moves to the next candidate.
	ActionRetryWithDelay
	// ActionStop gives up without trying further candidates.
	ActionStop
)

func (a Action) String() string {
	switch a {
	case ActionAccept:
		return "accept"
	case ActionRetryWithDelay:
		return "retry_with_delay"
	case ActionStop:
		return "stop"
	default:
		return "skip"
	}
}

// Policy is an ordered list of candidate models plus the status -> action table.
type Policy struct {
	Candidates []string
	Delay      time.Duration
	// Overrides replaces the default action for specific status codes.
	Overrides map[int]Action
}

// ActionFor maps a response status to an action. 200 is accepted, 429 and 5xx
// back off, everything else is skipped.
func (p Policy) ActionFor(status int) Action {
	if action, ok := p.Overrides[status]; ok {
		return action
	}
	switch {
	case status == http.StatusOK:
		return ActionAccept
	case status == http.StatusTooManyRequests, status >= http.StatusInternalServerError:
		return ActionRetryWithDelay
	default:
		return ActionSkip
	}
}
