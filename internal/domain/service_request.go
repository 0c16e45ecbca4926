package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RequestStatus classifies the outcome of a service request.
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "Pending"
	RequestStatusAccepted  RequestStatus = "Accepted"
	RequestStatusDeclined  RequestStatus = "Declined"
	RequestStatusCancelled RequestStatus = "Cancelled"
	RequestStatusConverted RequestStatus = "Converted"
	RequestStatusCompleted RequestStatus = "Completed"
	RequestStatusClosed    RequestStatus = "Closed"
)

// ActorSystem labels events the engine records on its own.
const ActorSystem = "System"

// Device describes the unit under repair. The engine never interprets it.
type Device struct {
	Brand       string
	Model       string
	ScreenSize  string
	Issue       string
	Description string
	Images      []string
}

// RequestEvent is one write-once timeline entry.
type RequestEvent struct {
	ID               string
	ServiceRequestID string
	Status           string
	Message          string
	Actor            string
	OccurredAt       time.Time
}

// ServiceRequest is the aggregate root of the repair lifecycle.
type ServiceRequest struct {
	ID           string
	TicketNumber string
	CustomerID   *string
	CustomerName string
	Phone        string

	ServiceMode ServiceMode
	Intent      RequestIntent
	Stage       Stage
	Status      RequestStatus

	IsQuote     bool
	QuoteStatus QuoteStatus
	QuoteAmount *decimal.Decimal
	QuoteNotes  string
	QuotedAt    *time.Time
	AcceptedAt  *time.Time

	PickupTier *PickupTier
	Address    string
	Visit      VisitSchedule

	ExpectedPickupDate *time.Time
	ExpectedReturnDate *time.Time
	ExpectedReadyDate  *time.Time

	Device         Device
	ConvertedJobID *string
	CancelReason   string

	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
	Events    []RequestEvent
}

// NewRequestParams carries what intake collects.
type NewRequestParams struct {
	CustomerID   *string
	CustomerName string
	Phone        string
	ServiceMode  ServiceMode
	Intent       RequestIntent
	Device       Device
	Address      string
	PickupTier   PickupTier
	Visit        VisitSchedule
}

// NewServiceRequest validates intake data and builds a request at intake.
func NewServiceRequest(id, ticketNumber string, params NewRequestParams, now time.Time) (*ServiceRequest, RequestEvent, error) {
	if !params.ServiceMode.Valid() {
		return nil, RequestEvent{}, validationError("service_mode", "service mode must be pickup or service_center")
	}
	if !params.Intent.Valid() {
		return nil, RequestEvent{}, validationError("request_intent", "request intent must be quote or repair")
	}
	if strings.TrimSpace(params.CustomerName) == "" {
		return nil, RequestEvent{}, validationError("customer_name", "customer name is required")
	}
	if strings.TrimSpace(params.Phone) == "" {
		return nil, RequestEvent{}, validationError("phone", "phone is required")
	}
	if strings.TrimSpace(params.Device.Brand) == "" {
		return nil, RequestEvent{}, validationError("brand", "brand is required")
	}
	if strings.TrimSpace(params.Device.Issue) == "" {
		return nil, RequestEvent{}, validationError("issue", "issue is required")
	}

	req := &ServiceRequest{
		ID:           id,
		TicketNumber: ticketNumber,
		CustomerID:   params.CustomerID,
		CustomerName: strings.TrimSpace(params.CustomerName),
		Phone:        strings.TrimSpace(params.Phone),
		ServiceMode:  params.ServiceMode,
		Intent:       params.Intent,
		Stage:        StageIntake,
		Status:       RequestStatusPending,
		Device:       params.Device,
		Address:      strings.TrimSpace(params.Address),
		Visit:        VisitSchedule{Kind: VisitUnset},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if params.Intent == IntentQuote {
		req.IsQuote = true
		req.QuoteStatus = QuoteStatusPending
	} else if err := req.bindDirectRepairDetails(params); err != nil {
		return nil, RequestEvent{}, err
	}

	return req, req.event(string(StageIntake), StageIntake.Message(), ActorSystem, now), nil
}

func (r *ServiceRequest) bindDirectRepairDetails(params NewRequestParams) *Error {
	switch r.ServiceMode {
	case ServiceModePickup:
		if r.Address == "" {
			return missingDetail("address", "pickup address is required for home pickup")
		}
		tier := params.PickupTier
		if tier == "" {
			tier = PickupTierRegular
		}
		if !tier.Valid() {
			return validationError("pickup_tier", "pickup tier must be Regular, Priority, or Emergency")
		}
		r.PickupTier = &tier
	case ServiceModeServiceCenter:
		if params.Visit.Kind == VisitScheduled && params.Visit.Date == nil {
			return missingDetail("visit_date", "visit date is required")
		}
		if params.Visit.IsSet() {
			r.Visit = params.Visit
		}
	}
	return nil
}

// TrackingStatus is the legacy presentation label, derived from the stage.
func (r *ServiceRequest) TrackingStatus() string {
	return r.Stage.TrackingLabel()
}

// EffectiveQuoteStatus folds the read-time Expired state into the stored status.
func (r *ServiceRequest) EffectiveQuoteStatus(now time.Time, policy QuotePolicy) QuoteStatus {
	if r.QuoteStatus == QuoteStatusQuoted && r.QuotedAt != nil && policy.IsExpired(*r.QuotedAt, now) {
		return QuoteStatusExpired
	}
	return r.QuoteStatus
}

// NextStages lists the stages this request may move to.
func (r *ServiceRequest) NextStages() []Stage {
	if r.ConvertedJobID != nil {
		return []Stage{}
	}
	return NextStages(r.Stage, r.ServiceMode, r.Intent)
}

// IsConverted reports whether the request has become a job.
func (r *ServiceRequest) IsConverted() bool {
	return r.ConvertedJobID != nil
}

func (r *ServiceRequest) ensureMutable() *Error {
	if r.ConvertedJobID != nil {
		return alreadyConverted(*r.ConvertedJobID)
	}
	return nil
}

// Transition moves the request to target along a table edge.
func (r *ServiceRequest) Transition(target Stage, actor, message string, now time.Time) (RequestEvent, error) {
	if err := r.ensureMutable(); err != nil {
		return RequestEvent{}, err
	}
	if !target.Valid() || !CanTransition(r.Stage, target, r.ServiceMode, r.Intent) {
		return RequestEvent{}, invalidTransition(r.Stage, target)
	}
	if r.Intent == IntentQuote && target != StageClosed &&
		IsAtOrAfter(target, StageAuthorized, r.ServiceMode, r.Intent) &&
		r.QuoteStatus != QuoteStatusAccepted {
		return RequestEvent{}, NewError(ErrQuoteNotReady, "quote must be accepted before the repair is authorized", map[string]any{
			"quote_status": r.QuoteStatus,
			"to":           target,
		})
	}

	if strings.TrimSpace(message) == "" {
		message = target.Message()
	}
	r.Stage = target
	switch target {
	case StageClosed:
		r.Status = RequestStatusClosed
	case StageCompleted:
		r.Status = RequestStatusCompleted
	}
	r.UpdatedAt = now
	return r.event(string(target), message, actor, now), nil
}

// SubmitQuote prices the request. Re-quoting an outstanding quote restarts its window.
func (r *ServiceRequest) SubmitQuote(amount decimal.Decimal, notes, actor string, now time.Time) (RequestEvent, error) {
	if err := r.ensureMutable(); err != nil {
		return RequestEvent{}, err
	}
	if !r.IsQuote {
		return RequestEvent{}, NewError(ErrQuoteNotReady, "request was not created as a quote", nil)
	}
	if r.Stage.IsTerminal() {
		return RequestEvent{}, invalidTransition(r.Stage, StageAwaitingCustomer)
	}
	if r.QuoteStatus != QuoteStatusPending && r.QuoteStatus != QuoteStatusQuoted {
		return RequestEvent{}, NewError(ErrQuoteNotReady, "quote can no longer be priced", map[string]any{
			"quote_status": r.QuoteStatus,
		})
	}
	if !amount.IsPositive() {
		return RequestEvent{}, validationError("quote_amount", "quote amount must be greater than zero")
	}

	if !IsAtOrAfter(r.Stage, StageAwaitingCustomer, r.ServiceMode, r.Intent) {
		r.Stage = StageAwaitingCustomer
	}
	quotedAt := now
	r.QuoteAmount = &amount
	r.QuoteNotes = strings.TrimSpace(notes)
	r.QuotedAt = &quotedAt
	r.QuoteStatus = QuoteStatusQuoted
	r.UpdatedAt = now
	return r.event(string(QuoteStatusQuoted), "Your quote of "+amount.StringFixed(2)+" is ready for review.", actor, now), nil
}

// AcceptQuote binds fulfillment detail and authorizes the repair.
func (r *ServiceRequest) AcceptQuote(in AcceptInput, policy QuotePolicy, now time.Time) (RequestEvent, error) {
	if err := r.ensureMutable(); err != nil {
		return RequestEvent{}, err
	}
	switch r.EffectiveQuoteStatus(now, policy) {
	case QuoteStatusExpired:
		return RequestEvent{}, NewError(ErrQuoteExpired, "quote has expired, please request a new one", map[string]any{
			"quoted_at": r.QuotedAt,
		})
	case QuoteStatusQuoted:
	default:
		return RequestEvent{}, NewError(ErrQuoteNotReady, "quote is not awaiting a response", map[string]any{
			"quote_status": r.QuoteStatus,
		})
	}
	if r.Stage.IsTerminal() || !CanTransition(r.Stage, StageAuthorized, r.ServiceMode, r.Intent) {
		return RequestEvent{}, invalidTransition(r.Stage, StageAuthorized)
	}
	if err := in.validate(r.ServiceMode, now, policy.location()); err != nil {
		return RequestEvent{}, err
	}

	acceptedAt := now
	r.QuoteStatus = QuoteStatusAccepted
	r.Status = RequestStatusAccepted
	r.AcceptedAt = &acceptedAt
	r.Stage = StageAuthorized
	r.UpdatedAt = now

	message := "Your service request has been queued. Please bring your device to our service center."
	switch in.Option {
	case FulfillmentHomePickup:
		tier := in.PickupTier
		r.PickupTier = &tier
		r.Address = strings.TrimSpace(in.Address)
		message = "Our team is on the way to collect your device."
	case FulfillmentServiceCenter:
		r.PickupTier = nil
		r.Visit = in.Visit
		if in.Visit.Kind == VisitScheduled {
			message = "Your visit is scheduled for " + in.Visit.Date.In(policy.location()).Format("Monday, January 2, 2006") +
				". Please bring your device to our service center."
		}
		if strings.TrimSpace(in.Address) != "" {
			r.Address = strings.TrimSpace(in.Address)
		}
	}
	return r.event(string(QuoteStatusAccepted), message, "Customer", now), nil
}

// DeclineQuote closes the quote for further action. The stage does not move.
func (r *ServiceRequest) DeclineQuote(now time.Time) (RequestEvent, error) {
	if err := r.ensureMutable(); err != nil {
		return RequestEvent{}, err
	}
	if r.Stage.IsTerminal() {
		return RequestEvent{}, invalidTransition(r.Stage, r.Stage)
	}
	if r.QuoteStatus != QuoteStatusQuoted {
		return RequestEvent{}, NewError(ErrQuoteNotReady, "quote is not awaiting a response", map[string]any{
			"quote_status": r.QuoteStatus,
		})
	}
	r.QuoteStatus = QuoteStatusDeclined
	r.Status = RequestStatusDeclined
	r.UpdatedAt = now
	return r.event(string(QuoteStatusDeclined), "Quote declined.", "Customer", now), nil
}

// CanConvert reports why the request cannot become a job, or nil when it can.
func (r *ServiceRequest) CanConvert() error {
	if err := r.ensureMutable(); err != nil {
		return err
	}
	if r.Stage.IsTerminal() || !IsAtOrAfter(r.Stage, StageAuthorized, r.ServiceMode, r.Intent) {
		return NewError(ErrInvalidTransition, "only authorized requests can be converted to a job", map[string]any{
			"stage": r.Stage,
		})
	}
	return nil
}

// ConvertToJob links the request to its billable job, once.
func (r *ServiceRequest) ConvertToJob(jobID, actor string, now time.Time) (RequestEvent, error) {
	if err := r.CanConvert(); err != nil {
		return RequestEvent{}, err
	}
	if strings.TrimSpace(jobID) == "" {
		return RequestEvent{}, validationError("job_id", "job id is required")
	}
	id := jobID
	r.ConvertedJobID = &id
	r.Status = RequestStatusConverted
	r.UpdatedAt = now
	return r.event(string(RequestStatusConverted), "Job ticket "+jobID+" has been created.", actor, now), nil
}

// Cancel closes the request for good.
func (r *ServiceRequest) Cancel(reason, actor string, now time.Time) (RequestEvent, error) {
	if err := r.ensureMutable(); err != nil {
		return RequestEvent{}, err
	}
	if r.Stage.IsTerminal() {
		return RequestEvent{}, invalidTransition(r.Stage, StageClosed)
	}
	r.Stage = StageClosed
	r.Status = RequestStatusCancelled
	r.CancelReason = strings.TrimSpace(reason)
	r.UpdatedAt = now
	message := "Service request cancelled."
	if r.CancelReason != "" {
		message = "Service request cancelled: " + r.CancelReason
	}
	return r.event(string(RequestStatusCancelled), message, actor, now), nil
}

// ScheduleUpdate sets expected dates. Nil fields are left untouched.
type ScheduleUpdate struct {
	ExpectedPickupDate *time.Time
	ExpectedReturnDate *time.Time
	ExpectedReadyDate  *time.Time
}

// UpdateSchedule records the shop's expected dates for the request's mode.
func (r *ServiceRequest) UpdateSchedule(update ScheduleUpdate, actor string, now time.Time) (RequestEvent, error) {
	if err := r.ensureMutable(); err != nil {
		return RequestEvent{}, err
	}
	if r.Stage.IsTerminal() {
		return RequestEvent{}, NewError(ErrInvalidTransition, "request is closed", map[string]any{"stage": r.Stage})
	}
	switch r.ServiceMode {
	case ServiceModePickup:
		if update.ExpectedReadyDate != nil {
			return RequestEvent{}, validationError("expected_ready_date", "ready date applies to service center requests")
		}
		if update.ExpectedPickupDate == nil && update.ExpectedReturnDate == nil {
			return RequestEvent{}, validationError("schedule", "nothing to update")
		}
		if update.ExpectedPickupDate != nil {
			r.ExpectedPickupDate = update.ExpectedPickupDate
		}
		if update.ExpectedReturnDate != nil {
			r.ExpectedReturnDate = update.ExpectedReturnDate
		}
	case ServiceModeServiceCenter:
		if update.ExpectedPickupDate != nil || update.ExpectedReturnDate != nil {
			return RequestEvent{}, validationError("expected_pickup_date", "pickup and return dates apply to pickup requests")
		}
		if update.ExpectedReadyDate == nil {
			return RequestEvent{}, validationError("schedule", "nothing to update")
		}
		r.ExpectedReadyDate = update.ExpectedReadyDate
	}
	r.UpdatedAt = now
	return r.event("schedule_updated", "Expected dates updated.", actor, now), nil
}

func (r *ServiceRequest) event(status, message, actor string, now time.Time) RequestEvent {
	if strings.TrimSpace(actor) == "" {
		actor = ActorSystem
	}
	return RequestEvent{
		ServiceRequestID: r.ID,
		Status:           status,
		Message:          message,
		Actor:            actor,
		OccurredAt:       now,
	}
}

// Clone returns a deep enough copy for speculative mutation.
func (r *ServiceRequest) Clone() *ServiceRequest {
	if r == nil {
		return nil
	}
	out := *r
	out.Events = append([]RequestEvent(nil), r.Events...)
	out.Device.Images = append([]string(nil), r.Device.Images...)
	return &out
}
