package domain

import "time"

// EventType tags the category of an emitted event.
type EventType string

const (
	EventTypePayment EventType = "payment"
	EventTypeError   EventType = "error"
	EventTypeStatus  EventType = "status"
)

// ErrorSeverity distinguishes instability notices from terminal failures.
type ErrorSeverity string

const (
	SeverityRecoverable ErrorSeverity = "recoverable"
	SeverityFatal       ErrorSeverity = "fatal"
)

// Event is the tagged union delivered to registered handlers. Exactly one
// payload field is set, matching Type. Events are ordered per monitor
// instance; there is no cross-instance ordering guarantee.
type Event struct {
	Type      EventType
	EmittedAt time.Time

	// Payment payload (Type == EventTypePayment)
	Payment *PaymentInfo

	// Error payload (Type == EventTypeError)
	Err         error
	Severity    ErrorSeverity
	Recoverable bool

	// Status payload (Type == EventTypeStatus)
	State MonitorState
}

// PaymentEvent builds a payment event.
func PaymentEvent(p PaymentInfo) Event {
	return Event{Type: EventTypePayment, EmittedAt: time.Now(), Payment: &p}
}

// ErrorEvent builds an error event.
func ErrorEvent(err error, recoverable bool) Event {
	sev := SeverityFatal
	if recoverable {
		sev = SeverityRecoverable
	}
	return Event{
		Type:        EventTypeError,
		EmittedAt:   time.Now(),
		Err:         err,
		Severity:    sev,
		Recoverable: recoverable,
	}
}

// StatusEvent builds a state-change event.
func StatusEvent(state MonitorState) Event {
	return Event{Type: EventTypeStatus, EmittedAt: time.Now(), State: state}
}
