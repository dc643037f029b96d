package billing

// transitions is the allowed-transition graph for the generic state engine.
// The graph is data, not control flow: validation walks the table, so
// extending the lifecycle means editing the table, not adding conditionals.
//
// grace_period is deliberately absent as a generic target. It is reachable
// only through the dunning sweep's lock-guarded path, which also stamps the
// grace deadline; see SubscriptionStore.CompareAndSwapState.
var transitions = map[Status][]Status{
	StatusTrial:          {StatusActive, StatusCancelled, StatusPastDue, StatusPendingPayment},
	StatusPendingPayment: {StatusActive, StatusCancelled, StatusPastDue},
	StatusActive:         {StatusPaused, StatusCancelled, StatusPastDue, StatusSuspended},
	StatusPaused:         {StatusActive, StatusCancelled},
	StatusPastDue:        {StatusActive, StatusSuspended},
	StatusGracePeriod:    {StatusActive, StatusSuspended},
	StatusSuspended:      {StatusActive, StatusCancelled},
	StatusCancelled:      {}, // terminal
}

// CanTransition reports whether from -> to is allowed by the generic graph.
// A self-transition is always permitted as an idempotent no-op.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns an *InvalidTransitionError naming both states
// when from -> to is not allowed. Unknown states are rejected the same way.
func ValidateTransition(from, to Status) error {
	if !from.Valid() || !to.Valid() {
		return &InvalidTransitionError{From: from, To: to}
	}
	if !CanTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}

// AllowedTransitions returns the generic targets reachable from a state.
// The returned slice must not be mutated.
func AllowedTransitions(from Status) []Status {
	return transitions[from]
}
