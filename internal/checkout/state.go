package checkout

// State is a checkout phase.
type State string

const (
	StateIdle                 State = "IDLE"
	StateCreatingDraft        State = "CREATING_DRAFT"
	StateCreatingPaymentOrder State = "CREATING_PAYMENT_ORDER"
	StateAwaitingGateway      State = "AWAITING_GATEWAY"
	StateConfirming           State = "CONFIRMING"
	StateDone                 State = "DONE"
	StateFailed               State = "FAILED"
)

// Terminal reports whether no further transition happens without a new Start.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// next lists the legal transitions out of each state.
var next = map[State][]State{
	StateIdle:                 {StateCreatingDraft},
	StateCreatingDraft:        {StateCreatingPaymentOrder, StateFailed},
	StateCreatingPaymentOrder: {StateAwaitingGateway, StateFailed},
	StateAwaitingGateway:      {StateConfirming, StateFailed},
	StateConfirming:           {StateDone, StateFailed},
	StateDone:                 {StateIdle},
	StateFailed:               {StateIdle},
}

// CanTransition reports whether from → to is legal.
func CanTransition(from, to State) bool {
	for _, s := range next[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Failure reasons recorded in the snapshot.
const (
	ReasonDraftFailed        = "draft order could not be created"
	ReasonPaymentOrderFailed = "payment order could not be created"
	ReasonCancelled          = "cancelled"
	ReasonAmbiguous          = "payment could not be verified; contact support"
)
