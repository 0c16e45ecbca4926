package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/repair-tracker/internal/domain"
	"github.com/spec-kit/repair-tracker/internal/events"
	"github.com/spec-kit/repair-tracker/internal/observability"
	"github.com/spec-kit/repair-tracker/internal/repository"
)

// JobService creates billable jobs from authorized requests and tracks their warranty.
type JobService struct {
	jobs       repository.JobRepository
	requests   *ServiceRequestService
	numbers    *NumberGenerator
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	locks      *keyedLocker
	loc        *time.Location
	now        func() time.Time
}

// JobDependencies bundles collaborators for the job service.
type JobDependencies struct {
	JobRepo    repository.JobRepository
	Requests   *ServiceRequestService
	Numbers    *NumberGenerator
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	// Location fixes warranty expiry and remaining days to business calendar days.
	Location *time.Location
}

// CreateJobInput carries the warranty terms agreed for the job. Start opens the
// job already In Progress, as when the device has arrived at the shop.
type CreateJobInput struct {
	ServiceWarrantyDays int
	PartsWarrantyDays   int
	Start               bool
	Actor               Actor
}

// CustomerWarranty pairs a completed job with its coverage.
type CustomerWarranty struct {
	Job      domain.Job
	Warranty domain.JobWarranty
}

// NewJobService constructs the service and registers it as the request
// service's job creator.
func NewJobService(deps JobDependencies) *JobService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	numbers := deps.Numbers
	if numbers == nil && deps.Requests != nil {
		numbers = deps.Requests.numbers.WithStoredNumbers(nil, deps.JobRepo)
	}
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	s := &JobService{
		jobs:       deps.JobRepo,
		requests:   deps.Requests,
		numbers:    numbers,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		metrics:    deps.Metrics,
		locks:      newKeyedLocker(),
		loc:        loc,
		now:        time.Now,
	}
	if deps.Requests != nil {
		deps.Requests.UseJobCreator(s)
	}
	return s
}

func (s *JobService) localNow() time.Time {
	return s.now().In(s.loc)
}

// WithClock replaces the time source.
func (s *JobService) WithClock(now func() time.Time) *JobService {
	if now != nil {
		s.now = now
	}
	return s
}

// CreateFromServiceRequest creates the job for an eligible request and converts
// the request. When conversion fails the new job is cancelled and the
// conversion error is returned.
func (s *JobService) CreateFromServiceRequest(ctx context.Context, requestID string, in CreateJobInput) (*domain.Job, *RequestDetails, error) {
	unlock, err := s.locks.Lock(ctx, "convert:"+requestID)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	current, err := s.requests.load(ctx, requestID, Actor{})
	if err != nil {
		return nil, nil, err
	}
	if err := current.CanConvert(); err != nil {
		s.requests.recordRejection("convert", requestID, err)
		return nil, nil, err
	}

	now := s.localNow()
	jobID, err := s.numbers.NextJobID(ctx, now)
	if err != nil {
		return nil, nil, err
	}
	job, err := domain.JobFromRequest(jobID, current, in.ServiceWarrantyDays, in.PartsWarrantyDays, now)
	if err != nil {
		return nil, nil, err
	}
	if in.Start {
		if err := job.SetStatus(domain.JobStatusInProgress, now); err != nil {
			return nil, nil, err
		}
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		s.logger.Error("persist job", zap.String("job_id", jobID), zap.Error(err))
		return nil, nil, fmt.Errorf("create job: %w", err)
	}

	details, err := s.requests.ConvertToJob(ctx, requestID, jobID, in.Actor)
	if err != nil {
		s.compensate(ctx, job)
		return nil, nil, err
	}
	s.logger.Info("job created",
		zap.String("job_id", job.ID),
		zap.String("service_request_id", requestID))
	return job, details, nil
}

func (s *JobService) compensate(ctx context.Context, job *domain.Job) {
	if err := job.SetStatus(domain.JobStatusCancelled, s.now()); err != nil {
		s.logger.Error("cancel orphan job", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	if err := s.jobs.Update(ctx, job); err != nil {
		s.logger.Error("cancel orphan job", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	s.logger.Warn("job cancelled after failed conversion", zap.String("job_id", job.ID))
}

// Get loads a job.
func (s *JobService) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, notFound(err, "job", jobID)
	}
	return job, nil
}

// UpdateStatus moves a job through its workshop states. Completing it fixes
// the warranty expiry dates.
func (s *JobService) UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus, actor Actor) (*domain.Job, error) {
	job, err := s.update(ctx, jobID, func(job *domain.Job, now time.Time) error {
		return job.SetStatus(status, now)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("job status changed",
		zap.String("job_id", job.ID),
		zap.String("status", string(job.Status)),
		zap.String("actor", actor.Name))
	s.publishEvent(ctx, events.Event{
		Type:             events.EventJobStatusChanged,
		ServiceRequestID: job.ServiceRequestID,
		CustomerID:       job.CustomerID,
		JobID:            job.ID,
		Status:           string(job.Status),
		Actor:            actor.Name,
		OccurredAt:       job.UpdatedAt,
	})
	return job, nil
}

// UpdateWarrantyDays edits coverage counts. Frozen expiry dates are not moved.
func (s *JobService) UpdateWarrantyDays(ctx context.Context, jobID string, serviceDays, partsDays int) (*domain.Job, error) {
	return s.update(ctx, jobID, func(job *domain.Job, now time.Time) error {
		return job.SetWarrantyDays(serviceDays, partsDays, now)
	})
}

func (s *JobService) update(ctx context.Context, jobID string, fn func(*domain.Job, time.Time) error) (*domain.Job, error) {
	unlock, err := s.locks.Lock(ctx, jobID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	job, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := fn(job, s.localNow()); err != nil {
		s.metrics.RecordLifecycleError(string(domain.KindOf(err)))
		return nil, err
	}
	if err := s.jobs.Update(ctx, job); err != nil {
		s.logger.Error("persist job", zap.String("job_id", jobID), zap.Error(err))
		return nil, fmt.Errorf("update job %s: %w", jobID, err)
	}
	return job, nil
}

// Warranty evaluates a job's coverage now.
func (s *JobService) Warranty(ctx context.Context, jobID string) (domain.JobWarranty, error) {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return domain.JobWarranty{}, err
	}
	return job.Warranty(s.localNow()), nil
}

// ListCustomerWarranties returns the customer's completed jobs that carry coverage.
func (s *JobService) ListCustomerWarranties(ctx context.Context, customerID string) ([]CustomerWarranty, error) {
	jobs, err := s.jobs.ListCompletedByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	now := s.localNow()
	out := make([]CustomerWarranty, 0, len(jobs))
	for _, job := range jobs {
		w := job.Warranty(now)
		if !w.HasCoverage() {
			continue
		}
		out = append(out, CustomerWarranty{Job: job, Warranty: w})
	}
	return out, nil
}

func (s *JobService) publishEvent(ctx context.Context, event events.Event) {
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
