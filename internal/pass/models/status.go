package models

// Status is the lifecycle state of a visitor pass.
//
//	pending ──verify──▶ active ──exit──▶ completed
//	   │                  │
//	   ├──────expire──────┴──▶ expired
//	   └──cancel──▶ cancelled
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusActive, StatusCompleted, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusExpired || s == StatusCancelled
}

// IsLive reports whether the pass code may still be presented at the gate.
func (s Status) IsLive() bool {
	return s == StatusPending || s == StatusActive
}

func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusActive || next == StatusExpired || next == StatusCancelled
	case StatusActive:
		return next == StatusCompleted || next == StatusExpired
	}
	return false
}

func (s Status) String() string {
	return string(s)
}
