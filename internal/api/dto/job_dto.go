package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/spec-kit/repair-tracker/internal/domain"
)

// ConvertRequest payload for turning a request into a job.
type ConvertRequest struct {
	ServiceWarrantyDays int `json:"service_warranty_days" validate:"min=0,max=3650"`
	PartsWarrantyDays   int `json:"parts_warranty_days" validate:"min=0,max=3650"`
}

// JobStatusRequest payload.
type JobStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=Pending 'In Progress' Completed Cancelled"`
}

// WarrantyDaysRequest payload.
type WarrantyDaysRequest struct {
	ServiceWarrantyDays *int `json:"service_warranty_days" validate:"required,min=0,max=3650"`
	PartsWarrantyDays   *int `json:"parts_warranty_days" validate:"required,min=0,max=3650"`
}

// JobResponse describes a billable job.
type JobResponse struct {
	ID                  string           `json:"id"`
	ServiceRequestID    string           `json:"service_request_id"`
	CustomerID          *string          `json:"customer_id"`
	CustomerName        string           `json:"customer_name"`
	Device              string           `json:"device"`
	Issue               string           `json:"issue"`
	EstimatedCost       *decimal.Decimal `json:"estimated_cost"`
	Status              domain.JobStatus `json:"status"`
	ServiceWarrantyDays int              `json:"service_warranty_days"`
	PartsWarrantyDays   int              `json:"parts_warranty_days"`
	CompletedAt         *time.Time       `json:"completed_at"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// WarrantyWindowResponse is one coverage window.
type WarrantyWindowResponse struct {
	Days          int       `json:"days"`
	ExpiryDate    time.Time `json:"expiry_date"`
	IsActive      bool      `json:"is_active"`
	RemainingDays int       `json:"remaining_days"`
}

// WarrantyResponse pairs the two independent windows of a job.
type WarrantyResponse struct {
	JobID   string                  `json:"job_id"`
	Device  string                  `json:"device,omitempty"`
	Service *WarrantyWindowResponse `json:"service_warranty"`
	Parts   *WarrantyWindowResponse `json:"parts_warranty"`
}

// ConvertResponse returns the new job and the updated request.
type ConvertResponse struct {
	Job            JobResponse            `json:"job"`
	ServiceRequest ServiceRequestResponse `json:"service_request"`
}
