package domain

import "fmt"

// Status is the lifecycle stage a replenishment order occupies.
type Status string

const (
	StatusAlertRaised    Status = "ALERT_RAISED"
	StatusAwaitingStock  Status = "AWAITING_STOCK"
	StatusPendingPicking Status = "PENDING_PICKING"
	StatusInTransit      Status = "IN_TRANSIT"
	StatusCompleted      Status = "COMPLETED"
)

// allowedTransitions is the only place legal edges are defined.
var allowedTransitions = map[Status][]Status{
	StatusAlertRaised:    {StatusAwaitingStock, StatusPendingPicking},
	StatusAwaitingStock:  {StatusPendingPicking},
	StatusPendingPicking: {StatusInTransit},
	StatusInTransit:      {StatusCompleted},
	StatusCompleted:      {},
}

// CanTransition reports whether an order in current may move to target.
// Unknown stages, including the empty string, never transition.
func CanTransition(current, target Status) bool {
	for _, next := range allowedTransitions[current] {
		if next == target {
			return true
		}
	}
	return false
}

// AllStatuses lists every stage in lifecycle order.
func AllStatuses() []Status {
	return []Status{
		StatusAlertRaised,
		StatusAwaitingStock,
		StatusPendingPicking,
		StatusInTransit,
		StatusCompleted,
	}
}

// IsValid reports whether s is one of the five stages.
func (s Status) IsValid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s.IsValid() && len(allowedTransitions[s]) == 0
}

// MovesStock reports whether entering s reserves or receives inventory.
func (s Status) MovesStock() bool {
	return s == StatusPendingPicking || s == StatusCompleted
}

// ParseStatus validates a stage name as sent by clients.
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.IsValid() {
		return "", &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", s)}
	}
	return status, nil
}
