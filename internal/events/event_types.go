package events

import (
	"time"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventServiceRequestCreated   EventType = "service_request.created"
	EventStageChanged            EventType = "service_request.stage_changed"
	EventQuoteSubmitted          EventType = "quote.submitted"
	EventQuoteAccepted           EventType = "quote.accepted"
	EventQuoteDeclined           EventType = "quote.declined"
	EventServiceRequestConverted EventType = "service_request.converted"
	EventServiceRequestCancelled EventType = "service_request.cancelled"
	EventScheduleUpdated         EventType = "service_request.schedule_updated"
	EventJobStatusChanged        EventType = "job.status_changed"
)

// AllEventTypes lists every type a subscriber may receive.
var AllEventTypes = []EventType{
	EventServiceRequestCreated,
	EventStageChanged,
	EventQuoteSubmitted,
	EventQuoteAccepted,
	EventQuoteDeclined,
	EventServiceRequestConverted,
	EventServiceRequestCancelled,
	EventScheduleUpdated,
	EventJobStatusChanged,
}

// Event is the change notification emitted after a committed mutation.
type Event struct {
	ID               string    `json:"id"`
	Type             EventType `json:"type"`
	ServiceRequestID string    `json:"service_request_id,omitempty"`
	TicketNumber     string    `json:"ticket_number,omitempty"`
	CustomerID       *string   `json:"customer_id,omitempty"`
	JobID            string    `json:"job_id,omitempty"`
	Stage            string    `json:"stage,omitempty"`
	Status           string    `json:"status,omitempty"`
	QuoteStatus      string    `json:"quote_status,omitempty"`
	Message          string    `json:"message,omitempty"`
	Actor            string    `json:"actor,omitempty"`
	OccurredAt       time.Time `json:"occurred_at"`
}
