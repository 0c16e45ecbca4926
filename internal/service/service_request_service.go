package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spec-kit/repair-tracker/internal/domain"
	"github.com/spec-kit/repair-tracker/internal/events"
	"github.com/spec-kit/repair-tracker/internal/observability"
	"github.com/spec-kit/repair-tracker/internal/repository"
)

// Actor identifies who performs an operation. A non-empty CustomerID scopes the
// call to that customer's own requests.
type Actor struct {
	Name       string
	CustomerID string
}

// StaffActor returns an unscoped actor.
func StaffActor(name string) Actor {
	return Actor{Name: name}
}

// CustomerActor returns an actor scoped to customerID.
func CustomerActor(customerID string) Actor {
	return Actor{Name: "Customer", CustomerID: customerID}
}

func (a Actor) canSee(req *domain.ServiceRequest) bool {
	if a.CustomerID == "" {
		return true
	}
	return req.CustomerID != nil && *req.CustomerID == a.CustomerID
}

// ServiceRequestService coordinates the service request lifecycle.
type ServiceRequestService struct {
	requests   repository.ServiceRequestRepository
	numbers    *NumberGenerator
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	policy     domain.QuotePolicy
	surcharges domain.SurchargeTable
	locks      *keyedLocker
	jobs       JobCreator
	now        func() time.Time
}

// JobCreator opens the job for a request that reached the shop.
type JobCreator interface {
	CreateFromServiceRequest(ctx context.Context, requestID string, in CreateJobInput) (*domain.Job, *RequestDetails, error)
}

// ServiceRequestDependencies bundles collaborators for the service.
type ServiceRequestDependencies struct {
	RequestRepo repository.ServiceRequestRepository
	Numbers     *NumberGenerator
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Metrics     *observability.Metrics
	QuotePolicy domain.QuotePolicy
	Surcharges  domain.SurchargeTable
}

// RequestDetails is a request together with the values derived from it at read time.
type RequestDetails struct {
	*domain.ServiceRequest
	TrackingStatus       string
	EffectiveQuoteStatus domain.QuoteStatus
	NextStages           []domain.Stage
	PickupSurcharge      *decimal.Decimal
}

// TransitionInput describes a stage change. ExpectedStage, when set, must match
// the stored stage or the change is rejected.
type TransitionInput struct {
	Target        domain.Stage
	ExpectedStage *domain.Stage
	Message       string
	Actor         Actor
}

// QuoteInput carries a technician's price.
type QuoteInput struct {
	Amount decimal.Decimal
	Notes  string
	Actor  Actor
}

// ListFilter narrows request listings.
type ListFilter struct {
	Stages      []domain.Stage
	Statuses    []domain.RequestStatus
	ServiceMode *domain.ServiceMode
	Intent      *domain.RequestIntent
	SearchTerm  *string
	Limit       int
	Offset      int
}

// NewServiceRequestService constructs the service.
func NewServiceRequestService(deps ServiceRequestDependencies) *ServiceRequestService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := deps.QuotePolicy
	if policy.Location == nil {
		policy.Location = time.UTC
	}
	surcharges := deps.Surcharges
	if surcharges == nil {
		surcharges = domain.DefaultSurcharges()
	}
	numbers := deps.Numbers
	if numbers == nil {
		numbers = NewNumberGenerator(repository.NewMemorySequenceRepository(), policy.Location).
			WithStoredNumbers(deps.RequestRepo, nil)
	}
	return &ServiceRequestService{
		requests:   deps.RequestRepo,
		numbers:    numbers,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		metrics:    deps.Metrics,
		policy:     policy,
		surcharges: surcharges,
		locks:      newKeyedLocker(),
		now:        time.Now,
	}
}

// WithClock replaces the time source.
func (s *ServiceRequestService) WithClock(now func() time.Time) *ServiceRequestService {
	if now != nil {
		s.now = now
	}
	return s
}

// UseJobCreator sets the collaborator that opens jobs when a request enters a
// job creation stage. Without one, jobs are only created through conversion.
func (s *ServiceRequestService) UseJobCreator(jobs JobCreator) {
	s.jobs = jobs
}

// Policy returns the quote policy in effect.
func (s *ServiceRequestService) Policy() domain.QuotePolicy {
	return s.policy
}

// Create registers a new request at intake.
func (s *ServiceRequestService) Create(ctx context.Context, params domain.NewRequestParams) (*RequestDetails, error) {
	now := s.now()
	req, initial, err := domain.NewServiceRequest(uuid.NewString(), "", params, now)
	if err != nil {
		s.recordRejection("create", "", err)
		return nil, err
	}
	ticketNumber, err := s.numbers.NextTicketNumber(ctx, now)
	if err != nil {
		return nil, err
	}
	req.TicketNumber = ticketNumber
	initial.ID = uuid.NewString()
	if err := s.requests.Create(ctx, req, initial); err != nil {
		s.logger.Error("persist service request", zap.String("ticket_number", ticketNumber), zap.Error(err))
		return nil, fmt.Errorf("create service request: %w", err)
	}
	req.Events = []domain.RequestEvent{initial}

	s.logger.Info("service request created",
		zap.String("service_request_id", req.ID),
		zap.String("ticket_number", req.TicketNumber),
		zap.String("service_mode", string(req.ServiceMode)),
		zap.String("request_intent", string(req.Intent)))
	s.publishEvent(ctx, s.changeEvent(events.EventServiceRequestCreated, req, initial))
	return s.details(req), nil
}

// Get loads a request with its timeline.
func (s *ServiceRequestService) Get(ctx context.Context, id string, actor Actor) (*RequestDetails, error) {
	req, err := s.load(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if req.Events, err = s.requests.ListEvents(ctx, req.ID); err != nil {
		return nil, err
	}
	return s.details(req), nil
}

// GetByTicketNumber serves public tracking lookups.
func (s *ServiceRequestService) GetByTicketNumber(ctx context.Context, ticketNumber string) (*RequestDetails, error) {
	req, err := s.requests.GetByTicketNumber(ctx, ticketNumber)
	if err != nil {
		return nil, notFound(err, "service request", ticketNumber)
	}
	if req.Events, err = s.requests.ListEvents(ctx, req.ID); err != nil {
		return nil, err
	}
	return s.details(req), nil
}

// List returns requests visible to actor.
func (s *ServiceRequestService) List(ctx context.Context, filter ListFilter, actor Actor) ([]RequestDetails, error) {
	repoFilter := repository.ServiceRequestFilter{
		Stages:      filter.Stages,
		Statuses:    filter.Statuses,
		ServiceMode: filter.ServiceMode,
		Intent:      filter.Intent,
		SearchTerm:  filter.SearchTerm,
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	}
	if actor.CustomerID != "" {
		customerID := actor.CustomerID
		repoFilter.CustomerID = &customerID
	}
	reqs, err := s.requests.List(ctx, repoFilter)
	if err != nil {
		return nil, err
	}
	out := make([]RequestDetails, 0, len(reqs))
	for i := range reqs {
		out = append(out, *s.details(&reqs[i]))
	}
	return out, nil
}

// NextStages lists the stages the stored request may move to.
func (s *ServiceRequestService) NextStages(ctx context.Context, id string) ([]domain.Stage, error) {
	req, err := s.load(ctx, id, Actor{})
	if err != nil {
		return nil, err
	}
	return req.NextStages(), nil
}

// Events returns the ordered timeline.
func (s *ServiceRequestService) Events(ctx context.Context, id string, actor Actor) ([]domain.RequestEvent, error) {
	req, err := s.load(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	return s.requests.ListEvents(ctx, req.ID)
}

// TransitionStage moves a request along its stage table.
func (s *ServiceRequestService) TransitionStage(ctx context.Context, id string, in TransitionInput) (*RequestDetails, error) {
	var from domain.Stage
	req, ev, err := s.mutate(ctx, id, "transition_stage", in.Actor, func(req *domain.ServiceRequest, now time.Time) (domain.RequestEvent, error) {
		if in.ExpectedStage != nil && *in.ExpectedStage != req.Stage {
			return domain.RequestEvent{}, domain.NewError(domain.ErrInvalidTransition, "stage changed since it was read", map[string]any{
				"expected": *in.ExpectedStage,
				"current":  req.Stage,
				"to":       in.Target,
			})
		}
		from = req.Stage
		return req.Transition(in.Target, in.Actor.Name, in.Message, now)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordTransition(string(req.Stage))
	s.logger.Info("service request stage changed",
		zap.String("service_request_id", req.ID),
		zap.String("from", string(from)),
		zap.String("to", string(req.Stage)),
		zap.String("actor", ev.Actor))
	s.publishEvent(ctx, s.changeEvent(events.EventStageChanged, req, ev))
	if req.Stage.CreatesJob() && !req.IsConverted() && s.jobs != nil {
		if details := s.openJob(ctx, req, in.Actor); details != nil {
			return details, nil
		}
	}
	return s.details(req), nil
}

// openJob creates the job for a request whose device just arrived. A failure
// leaves the committed transition in place; staff can still convert by hand.
func (s *ServiceRequestService) openJob(ctx context.Context, req *domain.ServiceRequest, actor Actor) *RequestDetails {
	job, details, err := s.jobs.CreateFromServiceRequest(ctx, req.ID, CreateJobInput{Actor: actor, Start: true})
	if err != nil {
		s.logger.Warn("automatic job creation failed",
			zap.String("service_request_id", req.ID),
			zap.String("stage", string(req.Stage)),
			zap.Error(err))
		return nil
	}
	s.logger.Info("job opened on arrival",
		zap.String("service_request_id", req.ID),
		zap.String("job_id", job.ID))
	if timeline, err := s.requests.ListEvents(ctx, req.ID); err == nil {
		details.Events = timeline
	}
	return details
}

// SubmitQuote prices a quote request and sends it to the customer.
func (s *ServiceRequestService) SubmitQuote(ctx context.Context, id string, in QuoteInput) (*RequestDetails, error) {
	req, ev, err := s.mutate(ctx, id, "submit_quote", in.Actor, func(req *domain.ServiceRequest, now time.Time) (domain.RequestEvent, error) {
		return req.SubmitQuote(in.Amount, in.Notes, in.Actor.Name, now)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("quote submitted",
		zap.String("service_request_id", req.ID),
		zap.String("amount", in.Amount.StringFixed(2)))
	s.publishEvent(ctx, s.changeEvent(events.EventQuoteSubmitted, req, ev))
	return s.details(req), nil
}

// AcceptQuote records the customer's acceptance and authorizes the repair.
func (s *ServiceRequestService) AcceptQuote(ctx context.Context, id string, actor Actor, in domain.AcceptInput) (*RequestDetails, error) {
	req, ev, err := s.mutate(ctx, id, "accept_quote", actor, func(req *domain.ServiceRequest, now time.Time) (domain.RequestEvent, error) {
		return req.AcceptQuote(in, s.policy, now)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordTransition(string(req.Stage))
	s.logger.Info("quote accepted",
		zap.String("service_request_id", req.ID),
		zap.String("service_option", string(in.Option)))
	s.publishEvent(ctx, s.changeEvent(events.EventQuoteAccepted, req, ev))
	return s.details(req), nil
}

// DeclineQuote records the customer's refusal. The stage is unchanged.
func (s *ServiceRequestService) DeclineQuote(ctx context.Context, id string, actor Actor) (*RequestDetails, error) {
	req, ev, err := s.mutate(ctx, id, "decline_quote", actor, func(req *domain.ServiceRequest, now time.Time) (domain.RequestEvent, error) {
		return req.DeclineQuote(now)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("quote declined", zap.String("service_request_id", req.ID))
	s.publishEvent(ctx, s.changeEvent(events.EventQuoteDeclined, req, ev))
	return s.details(req), nil
}

// ConvertToJob links the request to jobID. It succeeds at most once per request.
func (s *ServiceRequestService) ConvertToJob(ctx context.Context, id, jobID string, actor Actor) (*RequestDetails, error) {
	req, ev, err := s.mutate(ctx, id, "convert", actor, func(req *domain.ServiceRequest, now time.Time) (domain.RequestEvent, error) {
		return req.ConvertToJob(jobID, actor.Name, now)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("service request converted",
		zap.String("service_request_id", req.ID),
		zap.String("job_id", jobID))
	s.publishEvent(ctx, s.changeEvent(events.EventServiceRequestConverted, req, ev))
	return s.details(req), nil
}

// Cancel closes the request for good.
func (s *ServiceRequestService) Cancel(ctx context.Context, id, reason string, actor Actor) (*RequestDetails, error) {
	req, ev, err := s.mutate(ctx, id, "cancel", actor, func(req *domain.ServiceRequest, now time.Time) (domain.RequestEvent, error) {
		return req.Cancel(reason, actor.Name, now)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordTransition(string(req.Stage))
	s.logger.Info("service request cancelled",
		zap.String("service_request_id", req.ID),
		zap.String("reason", req.CancelReason))
	s.publishEvent(ctx, s.changeEvent(events.EventServiceRequestCancelled, req, ev))
	return s.details(req), nil
}

// UpdateSchedule records expected pickup, return, or ready dates.
func (s *ServiceRequestService) UpdateSchedule(ctx context.Context, id string, update domain.ScheduleUpdate, actor Actor) (*RequestDetails, error) {
	req, ev, err := s.mutate(ctx, id, "update_schedule", actor, func(req *domain.ServiceRequest, now time.Time) (domain.RequestEvent, error) {
		return req.UpdateSchedule(update, actor.Name, now)
	})
	if err != nil {
		return nil, err
	}
	s.publishEvent(ctx, s.changeEvent(events.EventScheduleUpdated, req, ev))
	return s.details(req), nil
}

type mutation func(req *domain.ServiceRequest, now time.Time) (domain.RequestEvent, error)

// mutate runs fn on a fresh copy of the request under the per-request lock and
// commits the copy with its new event. On any error the stored request is unchanged.
func (s *ServiceRequestService) mutate(ctx context.Context, id, op string, actor Actor, fn mutation) (*domain.ServiceRequest, domain.RequestEvent, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.RequestEvent{}, domain.NewError(domain.ErrNotFound, "service request not found", map[string]any{"id": id})
	}
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, domain.RequestEvent{}, err
	}
	defer unlock()

	stored, err := s.load(ctx, id, actor)
	if err != nil {
		return nil, domain.RequestEvent{}, err
	}
	req := stored.Clone()
	ev, err := fn(req, s.now())
	if err != nil {
		s.recordRejection(op, id, err)
		return nil, domain.RequestEvent{}, err
	}
	ev.ID = uuid.NewString()
	ev.ServiceRequestID = req.ID

	if err := s.requests.Update(ctx, req, []domain.RequestEvent{ev}); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			s.recordRejection(op, id, err)
			return nil, domain.RequestEvent{}, domain.NewError(domain.ErrInvalidTransition, "service request was changed concurrently", map[string]any{"id": id})
		}
		s.logger.Error("persist service request", zap.String("service_request_id", id), zap.String("op", op), zap.Error(err))
		return nil, domain.RequestEvent{}, fmt.Errorf("%s %s: %w", op, id, err)
	}
	req.Events = append(req.Events, ev)
	return req, ev, nil
}

func (s *ServiceRequestService) load(ctx context.Context, id string, actor Actor) (*domain.ServiceRequest, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.NewError(domain.ErrNotFound, "service request not found", map[string]any{"id": id})
	}
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "service request", id)
	}
	if !actor.canSee(req) {
		return nil, domain.NewError(domain.ErrNotFound, "service request not found", map[string]any{"id": id})
	}
	return req, nil
}

func (s *ServiceRequestService) details(req *domain.ServiceRequest) *RequestDetails {
	out := &RequestDetails{
		ServiceRequest:       req,
		TrackingStatus:       req.TrackingStatus(),
		EffectiveQuoteStatus: req.EffectiveQuoteStatus(s.now(), s.policy),
		NextStages:           req.NextStages(),
	}
	if req.PickupTier != nil {
		surcharge := s.surcharges.For(*req.PickupTier)
		out.PickupSurcharge = &surcharge
	}
	return out
}

func (s *ServiceRequestService) recordRejection(op, id string, err error) {
	kind := domain.KindOf(err)
	if kind == "" {
		kind = "CONFLICT"
	}
	s.metrics.RecordLifecycleError(string(kind))
	s.logger.Info("service request operation rejected",
		zap.String("op", op),
		zap.String("service_request_id", id),
		zap.String("kind", string(kind)),
		zap.Error(err))
}

func (s *ServiceRequestService) changeEvent(t events.EventType, req *domain.ServiceRequest, ev domain.RequestEvent) events.Event {
	event := events.Event{
		Type:             t,
		ServiceRequestID: req.ID,
		TicketNumber:     req.TicketNumber,
		CustomerID:       req.CustomerID,
		Stage:            string(req.Stage),
		Status:           string(req.Status),
		QuoteStatus:      string(req.QuoteStatus),
		Message:          ev.Message,
		Actor:            ev.Actor,
		OccurredAt:       ev.OccurredAt,
	}
	if req.ConvertedJobID != nil {
		event.JobID = *req.ConvertedJobID
	}
	return event
}

func (s *ServiceRequestService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}
	s.metrics.RecordNotification(string(event.Type))
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish event", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func notFound(err error, resource, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NewError(domain.ErrNotFound, resource+" not found", map[string]any{"id": id})
	}
	return err
}
