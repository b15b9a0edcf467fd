// Package alerts turns per-metric samples into debounced threshold transitions.
//
// A metric enters the warning state only when its value rises strictly above
// the limit and leaves it only when the value falls strictly below. A value
// sitting exactly on the limit never changes the state, so a metric hovering
// at its threshold cannot flap.
package alerts

import "opsmon/internal/models"

// State holds the exceeded flag of every metric kind.
// The zero value is all-normal.
type State struct {
	exceeded [models.NumKinds]bool
}

// NewState returns an all-normal state
func NewState() *State { return &State{} }

// Exceeded reports whether kind was last reported as warning
func (s *State) Exceeded(kind models.MetricKind) bool {
	if !kind.IsValid() {
		return false
	}
	return s.exceeded[kind]
}

// Evaluate applies one sample to state and reports the transition it causes, if any.
// A limit <= 0 disables the kind: nothing is returned and state is left untouched.
func Evaluate(kind models.MetricKind, value, limit float64, state *State) (models.Transition, bool) {
	if limit <= 0 || !kind.IsValid() {
		return 0, false
	}

	exceeded := state.exceeded[kind]
	switch {
	case !exceeded && value > limit:
		state.exceeded[kind] = true
		return models.Warning, true
	case exceeded && value < limit:
		state.exceeded[kind] = false
		return models.Restored, true
	}
	return 0, false
}

// Tracker binds a set of thresholds to the state it drives.
// It is not safe for concurrent use; the evaluator calls it from one cycle at a time.
type Tracker struct {
	thresholds models.Thresholds
	state      *State
}

// NewTracker creates a tracker with a fresh all-normal state
func NewTracker(thresholds models.Thresholds) *Tracker {
	return &Tracker{thresholds: thresholds, state: NewState()}
}

// Observe evaluates a reading against its configured limit
func (t *Tracker) Observe(r models.Reading) (models.Transition, bool) {
	return Evaluate(r.Kind, r.Value, t.thresholds.Limit(r.Kind), t.state)
}

// Limit returns the configured limit for kind
func (t *Tracker) Limit(kind models.MetricKind) float64 {
	return t.thresholds.Limit(kind)
}

// Snapshot returns a copy of the exceeded flags of every enabled kind
func (t *Tracker) Snapshot() map[models.MetricKind]bool {
	out := make(map[models.MetricKind]bool, models.NumKinds)
	for _, k := range models.Kinds() {
		if t.thresholds.Enabled(k) {
			out[k] = t.state.Exceeded(k)
		}
	}
	return out
}
