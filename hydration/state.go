package hydration

import (
	"errors"
	"fmt"
)

// ErrIllegalTransition is returned for a state change the machine does not allow
var ErrIllegalTransition = errors.New("illegal hydration transition")

// Status tracks loading of a domain's data for the active route
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusLoaded  Status = "loaded"
	StatusFailed  Status = "failed"
)

// PreloadStatus tracks the opportunistic warm of a domain from the persistent store
type PreloadStatus string

const (
	PreloadIdle       PreloadStatus = "idle"
	PreloadPreloading PreloadStatus = "preloading"
	PreloadPreloaded  PreloadStatus = "preloaded"
	PreloadFailed     PreloadStatus = "failed"
)

type machine[S ~string] struct {
	name  string
	edges map[S][]S
	all   []S
}

var statusMachine = machine[Status]{
	name: "status",
	edges: map[Status][]Status{
		StatusIdle:    {StatusLoading},
		StatusLoading: {StatusLoaded, StatusFailed},
		StatusLoaded:  {StatusLoading},
		StatusFailed:  {StatusLoading},
	},
	all: []Status{StatusIdle, StatusLoading, StatusLoaded, StatusFailed},
}

var preloadMachine = machine[PreloadStatus]{
	name: "preload",
	edges: map[PreloadStatus][]PreloadStatus{
		PreloadIdle:       {PreloadPreloading},
		PreloadPreloading: {PreloadPreloaded, PreloadFailed},
		PreloadPreloaded:  {PreloadPreloading},
		PreloadFailed:     {PreloadPreloading},
	},
	all: []PreloadStatus{PreloadIdle, PreloadPreloading, PreloadPreloaded, PreloadFailed},
}

// advance moves *current to to when the machine allows it
func (m machine[S]) advance(current *S, to S) error {
	for _, next := range m.edges[*current] {
		if next == to {
			*current = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s %s -> %s", ErrIllegalTransition, m.name, *current, to)
}

func (m machine[S]) names() []string {
	out := make([]string, len(m.all))
	for i, s := range m.all {
		out[i] = string(s)
	}
	return out
}

// DomainState is the hydration state of one data domain
type DomainState struct {
	Status        Status        `json:"status"`
	PreloadStatus PreloadStatus `json:"preload_status"`
	Error         string        `json:"error,omitempty"`
}
