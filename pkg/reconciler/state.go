package reconciler

import (
	"time"

	"github.com/cuemby/conduit/pkg/types"
)

// State is the phase the run loop is in
type State string

const (
	StateIdle        State = "idle"
	StateFetching    State = "fetching"
	StateNormalizing State = "normalizing"
	StatePersisting  State = "persisting"
	StateRebuilding  State = "rebuilding"
)

// TriggerSource names what asked for a refresh
type TriggerSource string

const (
	TriggerInitial    TriggerSource = "initial"
	TriggerManual     TriggerSource = "manual"
	TriggerVisibility TriggerSource = "visibility"
	TriggerFocus      TriggerSource = "focus"
	TriggerNavigation TriggerSource = "navigation"
	TriggerWrite      TriggerSource = "write"
	TriggerInterval   TriggerSource = "interval"
)

var triggerSources = []TriggerSource{
	TriggerInitial, TriggerManual, TriggerVisibility, TriggerFocus,
	TriggerNavigation, TriggerWrite, TriggerInterval,
}

// ParseTrigger accepts a trigger source name
func ParseTrigger(s string) (TriggerSource, bool) {
	for _, t := range triggerSources {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// KindStatus is the fetch health of one kind. A failed kind keeps serving
// the data of its last successful fetch.
type KindStatus struct {
	Kind        types.Kind `json:"kind"`
	Failed      bool       `json:"failed"`
	LastError   string     `json:"last_error,omitempty"`
	LastSuccess time.Time  `json:"last_success,omitempty"`
	LastFailure time.Time  `json:"last_failure,omitempty"`
	Count       int        `json:"count"`
}

// KindReport is the outcome of one kind within a cycle
type KindReport struct {
	Kind       types.Kind `json:"kind"`
	Count      int        `json:"count"`
	Dropped    int        `json:"dropped"`
	Duplicates int        `json:"duplicates"`
	Err        error      `json:"-"`
	PersistErr error      `json:"-"`
}

// Report summarizes one refresh cycle
type Report struct {
	Trigger   TriggerSource `json:"trigger"`
	Coalesced int           `json:"coalesced"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Kinds     []KindReport  `json:"kinds"`
}

// Failed returns the kinds whose fetch failed in this cycle
func (r Report) Failed() []types.Kind {
	var out []types.Kind
	for _, k := range r.Kinds {
		if k.Err != nil {
			out = append(out, k.Kind)
		}
	}
	return out
}

// Kind returns the report of one kind
func (r Report) Kind(kind types.Kind) (KindReport, bool) {
	for _, k := range r.Kinds {
		if k.Kind == kind {
			return k, true
		}
	}
	return KindReport{}, false
}
