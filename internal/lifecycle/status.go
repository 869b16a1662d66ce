package lifecycle

// Status is the lifecycle state of an escrow agreement.
type Status string

const (
	StatusInitialized Status = "initialized"
	StatusFunded      Status = "funded"
	StatusConfirmed   Status = "confirmed"
	StatusFailed      Status = "failed"
)

// legalTransitions lists, per source state, the states it may move to.
// Terminal states have no outgoing transitions.
var legalTransitions = map[Status]map[Status]bool{
	StatusInitialized: {
		StatusFunded: true,
		StatusFailed: true,
	},
	StatusFunded: {
		StatusConfirmed: true,
		StatusFailed:    true,
	},
	StatusConfirmed: {},
	StatusFailed:    {},
}

func (s Status) Valid() bool {
	_, ok := legalTransitions[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	next, ok := legalTransitions[s]
	return ok && len(next) == 0
}

// CanTransition reports whether from may move directly to to.
func CanTransition(from, to Status) bool {
	return legalTransitions[from][to]
}
