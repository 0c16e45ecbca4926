package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// JobStatus enumerates workshop states for a billable job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "Pending"
	JobStatusInProgress JobStatus = "In Progress"
	JobStatusCompleted  JobStatus = "Completed"
	JobStatusCancelled  JobStatus = "Cancelled"
)

var allowedJobTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusInProgress, JobStatusCancelled},
	JobStatusInProgress: {JobStatusCompleted, JobStatusCancelled},
	JobStatusCompleted:  {},
	JobStatusCancelled:  {},
}

func isValidJobTransition(current, next JobStatus) bool {
	for _, candidate := range allowedJobTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Job is the billable unit a service request is converted into.
type Job struct {
	ID                  string
	ServiceRequestID    string
	CustomerID          *string
	CustomerName        string
	Device              string
	Issue               string
	EstimatedCost       *decimal.Decimal
	Status              JobStatus
	ServiceWarrantyDays int
	PartsWarrantyDays   int
	CompletedAt         *time.Time
	ServiceExpiryDate   *time.Time
	PartsExpiryDate     *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// JobFromRequest prepares the job that an eligible request is converted into.
func JobFromRequest(id string, req *ServiceRequest, serviceDays, partsDays int, now time.Time) (*Job, error) {
	if serviceDays < 0 || partsDays < 0 {
		return nil, validationError("warranty_days", "warranty days cannot be negative")
	}
	device := req.Device.Brand
	if req.Device.Model != "" {
		device += " " + req.Device.Model
	}
	return &Job{
		ID:                  id,
		ServiceRequestID:    req.ID,
		CustomerID:          req.CustomerID,
		CustomerName:        req.CustomerName,
		Device:              device,
		Issue:               req.Device.Issue,
		EstimatedCost:       req.QuoteAmount,
		Status:              JobStatusPending,
		ServiceWarrantyDays: serviceDays,
		PartsWarrantyDays:   partsDays,
		CreatedAt:           now,
		UpdatedAt:           now,
	}, nil
}

// SetStatus moves the job. Completing it freezes both warranty expiry dates.
func (j *Job) SetStatus(next JobStatus, now time.Time) error {
	if !isValidJobTransition(j.Status, next) {
		return NewError(ErrInvalidTransition, "invalid job status transition", map[string]any{
			"from": j.Status,
			"to":   next,
		})
	}
	j.Status = next
	j.UpdatedAt = now
	if next == JobStatusCompleted {
		completedAt := now
		j.CompletedAt = &completedAt
		j.ServiceExpiryDate = expiryAfter(completedAt, j.ServiceWarrantyDays)
		j.PartsExpiryDate = expiryAfter(completedAt, j.PartsWarrantyDays)
	}
	return nil
}

// SetWarrantyDays edits coverage counts. Expiry dates already fixed stay as they are.
func (j *Job) SetWarrantyDays(serviceDays, partsDays int, now time.Time) error {
	if serviceDays < 0 || partsDays < 0 {
		return validationError("warranty_days", "warranty days cannot be negative")
	}
	j.ServiceWarrantyDays = serviceDays
	j.PartsWarrantyDays = partsDays
	j.UpdatedAt = now
	return nil
}

// JobWarranty is the pair of independent windows for a completed job.
type JobWarranty struct {
	JobID   string
	Service *WarrantyWindow
	Parts   *WarrantyWindow
}

// HasCoverage reports whether either window exists.
func (w JobWarranty) HasCoverage() bool {
	return w.Service != nil || w.Parts != nil
}

// Warranty evaluates the frozen windows at now. Jobs that are not completed have none.
func (j *Job) Warranty(now time.Time) JobWarranty {
	out := JobWarranty{JobID: j.ID}
	if j.Status != JobStatusCompleted {
		return out
	}
	if j.ServiceExpiryDate != nil {
		if w, ok := WindowFromExpiry(*j.ServiceExpiryDate, j.ServiceWarrantyDays, now); ok {
			out.Service = &w
		}
	}
	if j.PartsExpiryDate != nil {
		if w, ok := WindowFromExpiry(*j.PartsExpiryDate, j.PartsWarrantyDays, now); ok {
			out.Parts = &w
		}
	}
	return out
}

func expiryAfter(completedAt time.Time, days int) *time.Time {
	if days <= 0 {
		return nil
	}
	expiry := completedAt.AddDate(0, 0, days)
	return &expiry
}
