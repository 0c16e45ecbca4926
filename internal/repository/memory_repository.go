package repository

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/repair-tracker/internal/domain"
)

// MemoryServiceRequestRepository keeps service requests in process memory.
// It honours the same version check as the Postgres repository.
type MemoryServiceRequestRepository struct {
	mu       sync.RWMutex
	requests map[string]*domain.ServiceRequest
	events   map[string][]domain.RequestEvent
}

// NewMemoryServiceRequestRepository creates an empty store.
func NewMemoryServiceRequestRepository() *MemoryServiceRequestRepository {
	return &MemoryServiceRequestRepository{
		requests: make(map[string]*domain.ServiceRequest),
		events:   make(map[string][]domain.RequestEvent),
	}
}

func (r *MemoryServiceRequestRepository) Create(_ context.Context, req *domain.ServiceRequest, initial domain.RequestEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.requests {
		if existing.TicketNumber == req.TicketNumber {
			return ErrVersionConflict
		}
	}
	req.Version = 1
	stored := req.Clone()
	stored.Events = nil
	r.requests[req.ID] = stored
	r.events[req.ID] = []domain.RequestEvent{initial}
	return nil
}

func (r *MemoryServiceRequestRepository) GetByID(_ context.Context, id string) (*domain.ServiceRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return req.Clone(), nil
}

func (r *MemoryServiceRequestRepository) GetByTicketNumber(_ context.Context, ticketNumber string) (*domain.ServiceRequest, error) {
	key := strings.ToUpper(strings.TrimSpace(ticketNumber))
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, req := range r.requests {
		if req.TicketNumber == key {
			return req.Clone(), nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *MemoryServiceRequestRepository) List(_ context.Context, filter ServiceRequestFilter) ([]domain.ServiceRequest, error) {
	r.mu.RLock()
	var out []domain.ServiceRequest
	for _, req := range r.requests {
		if matchesFilter(req, filter) {
			out = append(out, *req.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func matchesFilter(req *domain.ServiceRequest, f ServiceRequestFilter) bool {
	if f.CustomerID != nil && (req.CustomerID == nil || *req.CustomerID != *f.CustomerID) {
		return false
	}
	if len(f.Stages) > 0 && !containsStage(f.Stages, req.Stage) {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if s == req.Status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.ServiceMode != nil && *f.ServiceMode != req.ServiceMode {
		return false
	}
	if f.Intent != nil && *f.Intent != req.Intent {
		return false
	}
	if f.CreatedFrom != nil && req.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && req.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	if f.SearchTerm != nil && strings.TrimSpace(*f.SearchTerm) != "" {
		term := strings.ToLower(strings.TrimSpace(*f.SearchTerm))
		haystack := strings.ToLower(strings.Join([]string{req.TicketNumber, req.CustomerName, req.Phone, req.Device.Brand}, " "))
		if !strings.Contains(haystack, term) {
			return false
		}
	}
	return true
}

func containsStage(stages []domain.Stage, stage domain.Stage) bool {
	for _, s := range stages {
		if s == stage {
			return true
		}
	}
	return false
}

func (r *MemoryServiceRequestRepository) Update(_ context.Context, req *domain.ServiceRequest, newEvents []domain.RequestEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.requests[req.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if current.Version != req.Version {
		return ErrVersionConflict
	}
	stored := req.Clone()
	stored.Events = nil
	stored.Version = req.Version + 1
	r.requests[req.ID] = stored
	r.events[req.ID] = append(r.events[req.ID], newEvents...)
	req.Version++
	return nil
}

func (r *MemoryServiceRequestRepository) ListEvents(_ context.Context, serviceRequestID string) ([]domain.RequestEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.RequestEvent(nil), r.events[serviceRequestID]...), nil
}

func (r *MemoryServiceRequestRepository) MaxTicketSequence(_ context.Context, prefix string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var highest int64
	for _, req := range r.requests {
		highest = maxSuffix(highest, req.TicketNumber, prefix)
	}
	return highest, nil
}

func maxSuffix(current int64, id, prefix string) int64 {
	rest, ok := strings.CutPrefix(id, prefix)
	if !ok {
		return current
	}
	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || n <= current {
		return current
	}
	return n
}

// MemoryJobRepository keeps jobs in process memory.
type MemoryJobRepository struct {
	mu   sync.RWMutex
	jobs map[string]domain.Job
}

// NewMemoryJobRepository creates an empty store.
func NewMemoryJobRepository() *MemoryJobRepository {
	return &MemoryJobRepository{jobs: make(map[string]domain.Job)}
}

func (r *MemoryJobRepository) Create(_ context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; ok {
		return ErrVersionConflict
	}
	for _, existing := range r.jobs {
		if existing.ServiceRequestID == job.ServiceRequestID && existing.Status != domain.JobStatusCancelled {
			return ErrVersionConflict
		}
	}
	r.jobs[job.ID] = *job
	return nil
}

func (r *MemoryJobRepository) GetByID(_ context.Context, id string) (*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &job, nil
}

func (r *MemoryJobRepository) Update(_ context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; !ok {
		return pgx.ErrNoRows
	}
	r.jobs[job.ID] = *job
	return nil
}

func (r *MemoryJobRepository) ListCompletedByCustomer(_ context.Context, customerID string) ([]domain.Job, error) {
	r.mu.RLock()
	var out []domain.Job
	for _, job := range r.jobs {
		if job.Status == domain.JobStatusCompleted && job.CustomerID != nil && *job.CustomerID == customerID {
			out = append(out, job)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CompletedAt.After(*out[j].CompletedAt) })
	return out, nil
}

func (r *MemoryJobRepository) MaxJobSequence(_ context.Context, prefix string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var highest int64
	for id := range r.jobs {
		highest = maxSuffix(highest, id, prefix)
	}
	return highest, nil
}
