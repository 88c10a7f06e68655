package agreements

import "github.com/fleethire/fleethire/internal/platform/httpx"

// Event is a lifecycle trigger on an agreement.
type Event string

const (
	EventStart   Event = "start"
	EventMarkDue Event = "mark_due"
	EventReturn  Event = "return"
	EventClose   Event = "close"
	EventCancel  Event = "cancel"
)

var transitions = map[Status]map[Event]Status{
	StatusDraft: {
		EventStart:  StatusActive,
		EventCancel: StatusCancelled,
	},
	StatusActive: {
		EventMarkDue: StatusDueForReturn,
		EventReturn:  StatusReturned,
		EventCancel:  StatusCancelled,
	},
	StatusDueForReturn: {
		EventReturn: StatusReturned,
		EventCancel: StatusCancelled,
	},
	StatusReturned: {
		EventClose: StatusClosed,
	},
}

// Transition applies ev to the current status and returns the next one.
// Undefined pairs fail with a validation error and no state change.
func Transition(from Status, ev Event) (Status, error) {
	if next, ok := transitions[from][ev]; ok {
		return next, nil
	}
	return from, httpx.Validation("agreement in status %q does not allow %s", from, ev)
}
