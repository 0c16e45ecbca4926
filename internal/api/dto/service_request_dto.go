package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/spec-kit/repair-tracker/internal/domain"
)

// CreateServiceRequestRequest payload.
type CreateServiceRequestRequest struct {
	CustomerName  string   `json:"customer_name" validate:"required,max=120"`
	Phone         string   `json:"phone" validate:"required,max=32"`
	ServiceMode   string   `json:"service_mode" validate:"required,oneof=pickup service_center"`
	RequestIntent string   `json:"request_intent" validate:"required,oneof=quote repair"`
	Brand         string   `json:"brand" validate:"required,max=80"`
	Model         string   `json:"model" validate:"max=80"`
	ScreenSize    string   `json:"screen_size" validate:"max=20"`
	Issue         string   `json:"issue" validate:"required,max=200"`
	Description   string   `json:"description" validate:"max=2000"`
	Images        []string `json:"images" validate:"max=10,dive,url"`
	Address       string   `json:"address" validate:"max=500"`
	PickupTier    string   `json:"pickup_tier" validate:"omitempty,oneof=Regular Priority Emergency"`
	VisitDate     *string  `json:"visit_date"`
	VisitDeferred bool     `json:"visit_deferred"`
}

// TransitionStageRequest payload.
type TransitionStageRequest struct {
	ToStage       string  `json:"to_stage" validate:"required"`
	ExpectedStage *string `json:"expected_stage"`
	Message       string  `json:"message" validate:"max=500"`
}

// SubmitQuoteRequest payload. Amount accepts a JSON number or string.
type SubmitQuoteRequest struct {
	Amount *decimal.Decimal `json:"quote_amount" validate:"required"`
	Notes  string           `json:"quote_notes" validate:"max=2000"`
}

// AcceptQuoteRequest payload.
type AcceptQuoteRequest struct {
	ServiceOption string  `json:"service_option" validate:"required,oneof=home_pickup service_center"`
	Address       string  `json:"address" validate:"max=500"`
	PickupTier    string  `json:"pickup_tier" validate:"omitempty,oneof=Regular Priority Emergency"`
	VisitDate     *string `json:"visit_date"`
	VisitDeferred bool    `json:"visit_deferred"`
}

// ScheduleRequest payload.
type ScheduleRequest struct {
	ExpectedPickupDate *string `json:"expected_pickup_date"`
	ExpectedReturnDate *string `json:"expected_return_date"`
	ExpectedReadyDate  *string `json:"expected_ready_date"`
}

// CancelRequest payload.
type CancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// ServiceRequestListQuery captures list filters.
type ServiceRequestListQuery struct {
	Stages      []domain.Stage
	Statuses    []domain.RequestStatus
	ServiceMode *domain.ServiceMode
	Intent      *domain.RequestIntent
	Search      *string
	Page        int
	PageSize    int
}

// DeviceResponse describes the unit under repair.
type DeviceResponse struct {
	Brand       string   `json:"brand"`
	Model       string   `json:"model,omitempty"`
	ScreenSize  string   `json:"screen_size,omitempty"`
	Issue       string   `json:"issue"`
	Description string   `json:"description,omitempty"`
	Images      []string `json:"images"`
}

// EventResponse is one timeline entry.
type EventResponse struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	Message    string    `json:"message"`
	Actor      string    `json:"actor,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// VisitResponse renders the service-center visit choice.
type VisitResponse struct {
	Kind domain.VisitKind `json:"kind"`
	Date *time.Time       `json:"date,omitempty"`
}

// ServiceRequestResponse is the customer and staff view of a request.
type ServiceRequestResponse struct {
	ID                 string               `json:"id"`
	TicketNumber       string               `json:"ticket_number"`
	CustomerID         *string              `json:"customer_id"`
	CustomerName       string               `json:"customer_name"`
	Phone              string               `json:"phone"`
	ServiceMode        domain.ServiceMode   `json:"service_mode"`
	RequestIntent      domain.RequestIntent `json:"request_intent"`
	Stage              domain.Stage         `json:"stage"`
	Status             domain.RequestStatus `json:"status"`
	TrackingStatus     string               `json:"tracking_status"`
	IsQuote            bool                 `json:"is_quote"`
	QuoteStatus        domain.QuoteStatus   `json:"quote_status,omitempty"`
	QuoteAmount        *decimal.Decimal     `json:"quote_amount"`
	QuoteNotes         string               `json:"quote_notes,omitempty"`
	QuotedAt           *time.Time           `json:"quoted_at"`
	AcceptedAt         *time.Time           `json:"accepted_at"`
	PickupTier         *domain.PickupTier   `json:"pickup_tier"`
	PickupSurcharge    *decimal.Decimal     `json:"pickup_surcharge"`
	Address            string               `json:"address,omitempty"`
	Visit              VisitResponse        `json:"visit"`
	ExpectedPickupDate *time.Time           `json:"expected_pickup_date"`
	ExpectedReturnDate *time.Time           `json:"expected_return_date"`
	ExpectedReadyDate  *time.Time           `json:"expected_ready_date"`
	Device             DeviceResponse       `json:"device"`
	ConvertedJobID     *string              `json:"converted_job_id"`
	CancelReason       string               `json:"cancel_reason,omitempty"`
	NextStages         []domain.Stage       `json:"next_stages,omitempty"`
	Version            int                  `json:"version,omitempty"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
	Events             []EventResponse      `json:"events,omitempty"`
}

// TrackingResponse is the public read-only view looked up by ticket number.
type TrackingResponse struct {
	TicketNumber   string               `json:"ticket_number"`
	ServiceMode    domain.ServiceMode   `json:"service_mode"`
	Stage          domain.Stage         `json:"stage"`
	Status         domain.RequestStatus `json:"status"`
	TrackingStatus string               `json:"tracking_status"`
	QuoteStatus    domain.QuoteStatus   `json:"quote_status,omitempty"`
	Device         string               `json:"device"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
	Events         []EventResponse      `json:"events"`
}
