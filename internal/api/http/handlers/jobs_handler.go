package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/repair-tracker/internal/api/dto"
	"github.com/spec-kit/repair-tracker/internal/domain"
	"github.com/spec-kit/repair-tracker/internal/service"
	apperrors "github.com/spec-kit/repair-tracker/pkg/util/errorutil"
)

// JobsHandler serves job and warranty endpoints.
type JobsHandler struct {
	service *service.JobService
}

// NewJobsHandler constructs handler.
func NewJobsHandler(jobService *service.JobService) *JobsHandler {
	return &JobsHandler{service: jobService}
}

// Get GET /admin/jobs/:id.
func (h *JobsHandler) Get(c *fiber.Ctx) error {
	job, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": jobResponse(job)})
}

// UpdateStatus PATCH /admin/jobs/:id/status.
func (h *JobsHandler) UpdateStatus(c *fiber.Ctx) error {
	actor, err := staffActor(c)
	if err != nil {
		return err
	}
	var req dto.JobStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(&req); err != nil {
		return err
	}
	job, err := h.service.UpdateStatus(c.UserContext(), c.Params("id"), domain.JobStatus(req.Status), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": jobResponse(job)})
}

// UpdateWarranty PATCH /admin/jobs/:id/warranty.
func (h *JobsHandler) UpdateWarranty(c *fiber.Ctx) error {
	var req dto.WarrantyDaysRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(&req); err != nil {
		return err
	}
	job, err := h.service.UpdateWarrantyDays(c.UserContext(), c.Params("id"), *req.ServiceWarrantyDays, *req.PartsWarrantyDays)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": jobResponse(job)})
}

// Warranty GET /admin/jobs/:id/warranty.
func (h *JobsHandler) Warranty(c *fiber.Ctx) error {
	w, err := h.service.Warranty(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": warrantyResponse(w, "")})
}

// CustomerWarranties GET /customer/warranties.
func (h *JobsHandler) CustomerWarranties(c *fiber.Ctx) error {
	actor, err := customerActor(c)
	if err != nil {
		return err
	}
	items, err := h.service.ListCustomerWarranties(c.UserContext(), actor.CustomerID)
	if err != nil {
		return err
	}
	resp := make([]dto.WarrantyResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, warrantyResponse(item.Warranty, item.Job.Device))
	}
	return c.JSON(fiber.Map{"data": resp})
}

func jobResponse(job *domain.Job) dto.JobResponse {
	return dto.JobResponse{
		ID:                  job.ID,
		ServiceRequestID:    job.ServiceRequestID,
		CustomerID:          job.CustomerID,
		CustomerName:        job.CustomerName,
		Device:              job.Device,
		Issue:               job.Issue,
		EstimatedCost:       job.EstimatedCost,
		Status:              job.Status,
		ServiceWarrantyDays: job.ServiceWarrantyDays,
		PartsWarrantyDays:   job.PartsWarrantyDays,
		CompletedAt:         job.CompletedAt,
		CreatedAt:           job.CreatedAt,
		UpdatedAt:           job.UpdatedAt,
	}
}

func warrantyResponse(w domain.JobWarranty, device string) dto.WarrantyResponse {
	return dto.WarrantyResponse{
		JobID:   w.JobID,
		Device:  device,
		Service: windowResponse(w.Service),
		Parts:   windowResponse(w.Parts),
	}
}

func windowResponse(w *domain.WarrantyWindow) *dto.WarrantyWindowResponse {
	if w == nil {
		return nil
	}
	return &dto.WarrantyWindowResponse{
		Days:          w.Days,
		ExpiryDate:    w.ExpiryDate,
		IsActive:      w.IsActive,
		RemainingDays: w.RemainingDays,
	}
}
