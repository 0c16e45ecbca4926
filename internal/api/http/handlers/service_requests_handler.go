package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/repair-tracker/internal/api/dto"
	"github.com/spec-kit/repair-tracker/internal/auth"
	"github.com/spec-kit/repair-tracker/internal/domain"
	"github.com/spec-kit/repair-tracker/internal/service"
	apperrors "github.com/spec-kit/repair-tracker/pkg/util/errorutil"
)

// ServiceRequestsHandler serves the public, customer and admin request endpoints.
type ServiceRequestsHandler struct {
	service *service.ServiceRequestService
	jobs    *service.JobService
	loc     *time.Location
}

// NewServiceRequestsHandler constructs handler. Calendar dates in payloads are read in loc.
func NewServiceRequestsHandler(requestService *service.ServiceRequestService, jobService *service.JobService, loc *time.Location) *ServiceRequestsHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &ServiceRequestsHandler{service: requestService, jobs: jobService, loc: loc}
}

// Create POST /service-requests. Guests may submit; a customer token links the request.
func (h *ServiceRequestsHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateServiceRequestRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(&req); err != nil {
		return err
	}
	visit, err := h.visit(req.VisitDate, req.VisitDeferred)
	if err != nil {
		return err
	}

	params := domain.NewRequestParams{
		CustomerName: req.CustomerName,
		Phone:        req.Phone,
		ServiceMode:  domain.ServiceMode(req.ServiceMode),
		Intent:       domain.RequestIntent(req.RequestIntent),
		Device: domain.Device{
			Brand:       strings.TrimSpace(req.Brand),
			Model:       strings.TrimSpace(req.Model),
			ScreenSize:  strings.TrimSpace(req.ScreenSize),
			Issue:       strings.TrimSpace(req.Issue),
			Description: strings.TrimSpace(req.Description),
			Images:      req.Images,
		},
		Address:    req.Address,
		PickupTier: domain.PickupTier(req.PickupTier),
		Visit:      visit,
	}
	if principal, ok := auth.PrincipalFromContext(c); ok && principal.SubjectType == domain.SubjectTypeCustomer {
		customerID := principal.SubjectID
		params.CustomerID = &customerID
	}

	created, err := h.service.Create(c.UserContext(), params)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": serviceRequestResponse(created, false)})
}

// Track GET /track/:ticketNumber.
func (h *ServiceRequestsHandler) Track(c *fiber.Ctx) error {
	details, err := h.service.GetByTicketNumber(c.UserContext(), c.Params("ticketNumber"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": trackingResponse(details)})
}

// CustomerList GET /customer/service-requests.
func (h *ServiceRequestsHandler) CustomerList(c *fiber.Ctx) error {
	actor, err := customerActor(c)
	if err != nil {
		return err
	}
	return h.list(c, actor, false)
}

// CustomerGet GET /customer/service-requests/:id.
func (h *ServiceRequestsHandler) CustomerGet(c *fiber.Ctx) error {
	actor, err := customerActor(c)
	if err != nil {
		return err
	}
	details, err := h.service.Get(c.UserContext(), c.Params("id"), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": serviceRequestResponse(details, false)})
}

// CustomerEvents GET /customer/service-requests/:id/events.
func (h *ServiceRequestsHandler) CustomerEvents(c *fiber.Ctx) error {
	actor, err := customerActor(c)
	if err != nil {
		return err
	}
	timeline, err := h.service.Events(c.UserContext(), c.Params("id"), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": eventResponses(timeline, false)})
}

// AcceptQuote POST /customer/service-requests/:id/quote/accept.
func (h *ServiceRequestsHandler) AcceptQuote(c *fiber.Ctx) error {
	actor, err := customerActor(c)
	if err != nil {
		return err
	}
	var req dto.AcceptQuoteRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(&req); err != nil {
		return err
	}
	visit, err := h.visit(req.VisitDate, req.VisitDeferred)
	if err != nil {
		return err
	}
	details, err := h.service.AcceptQuote(c.UserContext(), c.Params("id"), actor, domain.AcceptInput{
		Option:     domain.FulfillmentOption(req.ServiceOption),
		Address:    req.Address,
		PickupTier: domain.PickupTier(req.PickupTier),
		Visit:      visit,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": serviceRequestResponse(details, false)})
}

// DeclineQuote POST /customer/service-requests/:id/quote/decline.
func (h *ServiceRequestsHandler) DeclineQuote(c *fiber.Ctx) error {
	actor, err := customerActor(c)
	if err != nil {
		return err
	}
	details, err := h.service.DeclineQuote(c.UserContext(), c.Params("id"), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": serviceRequestResponse(details, false)})
}

// CustomerCancel POST /customer/service-requests/:id/cancel.
func (h *ServiceRequestsHandler) CustomerCancel(c *fiber.Ctx) error {
	actor, err := customerActor(c)
	if err != nil {
		return err
	}
	return h.cancel(c, actor, false)
}

// AdminList GET /admin/service-requests.
func (h *ServiceRequestsHandler) AdminList(c *fiber.Ctx) error {
	actor, err := staffActor(c)
	if err != nil {
		return err
	}
	return h.list(c, actor, true)
}

// AdminGet GET /admin/service-requests/:id.
func (h *ServiceRequestsHandler) AdminGet(c *fiber.Ctx) error {
	actor, err := staffActor(c)
	if err != nil {
		return err
	}
	details, err := h.service.Get(c.UserContext(), c.Params("id"), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": serviceRequestResponse(details, true)})
}

// NextStages GET /admin/service-requests/:id/next-stages.
func (h *ServiceRequestsHandler) NextStages(c *fiber.Ctx) error {
	stages, err := h.service.NextStages(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stages})
}

// TransitionStage POST /admin/service-requests/:id/transition-stage.
func (h *ServiceRequestsHandler) TransitionStage(c *fiber.Ctx) error {
	actor, err := staffActor(c)
	if err != nil {
		return err
	}
	var req dto.TransitionStageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(&req); err != nil {
		return err
	}
	in := service.TransitionInput{
		Target:  domain.Stage(req.ToStage),
		Message: req.Message,
		Actor:   actor,
	}
	if req.ExpectedStage != nil && *req.ExpectedStage != "" {
		expected := domain.Stage(*req.ExpectedStage)
		in.ExpectedStage = &expected
	}
	details, err := h.service.TransitionStage(c.UserContext(), c.Params("id"), in)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": serviceRequestResponse(details, true)})
}

// SubmitQuote POST /admin/service-requests/:id/quote.
func (h *ServiceRequestsHandler) SubmitQuote(c *fiber.Ctx) error {
	actor, err := staffActor(c)
	if err != nil {
		return err
	}
	var req dto.SubmitQuoteRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(&req); err != nil {
		return err
	}
	details, err := h.service.SubmitQuote(c.UserContext(), c.Params("id"), service.QuoteInput{
		Amount: *req.Amount,
		Notes:  req.Notes,
		Actor:  actor,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": serviceRequestResponse(details, true)})
}

// UpdateSchedule PATCH /admin/service-requests/:id/schedule.
func (h *ServiceRequestsHandler) UpdateSchedule(c *fiber.Ctx) error {
	actor, err := staffActor(c)
	if err != nil {
		return err
	}
	var req dto.ScheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	var update domain.ScheduleUpdate
	if update.ExpectedPickupDate, err = dto.ParseDate("expected_pickup_date", req.ExpectedPickupDate, h.loc); err != nil {
		return err
	}
	if update.ExpectedReturnDate, err = dto.ParseDate("expected_return_date", req.ExpectedReturnDate, h.loc); err != nil {
		return err
	}
	if update.ExpectedReadyDate, err = dto.ParseDate("expected_ready_date", req.ExpectedReadyDate, h.loc); err != nil {
		return err
	}
	details, err := h.service.UpdateSchedule(c.UserContext(), c.Params("id"), update, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": serviceRequestResponse(details, true)})
}

// Convert POST /admin/service-requests/:id/convert.
func (h *ServiceRequestsHandler) Convert(c *fiber.Ctx) error {
	actor, err := staffActor(c)
	if err != nil {
		return err
	}
	var req dto.ConvertRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	if err := dto.Validate(&req); err != nil {
		return err
	}
	job, details, err := h.jobs.CreateFromServiceRequest(c.UserContext(), c.Params("id"), service.CreateJobInput{
		ServiceWarrantyDays: req.ServiceWarrantyDays,
		PartsWarrantyDays:   req.PartsWarrantyDays,
		Actor:               actor,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.ConvertResponse{
		Job:            jobResponse(job),
		ServiceRequest: serviceRequestResponse(details, true),
	}})
}

// AdminCancel POST /admin/service-requests/:id/cancel.
func (h *ServiceRequestsHandler) AdminCancel(c *fiber.Ctx) error {
	actor, err := staffActor(c)
	if err != nil {
		return err
	}
	return h.cancel(c, actor, true)
}

func (h *ServiceRequestsHandler) cancel(c *fiber.Ctx, actor service.Actor, admin bool) error {
	var req dto.CancelRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	if err := dto.Validate(&req); err != nil {
		return err
	}
	details, err := h.service.Cancel(c.UserContext(), c.Params("id"), req.Reason, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": serviceRequestResponse(details, admin)})
}

func (h *ServiceRequestsHandler) list(c *fiber.Ctx, actor service.Actor, admin bool) error {
	query := parseServiceRequestQuery(c)
	items, err := h.service.List(c.UserContext(), service.ListFilter{
		Stages:      query.Stages,
		Statuses:    query.Statuses,
		ServiceMode: query.ServiceMode,
		Intent:      query.Intent,
		SearchTerm:  query.Search,
		Limit:       query.PageSize,
		Offset:      (query.Page - 1) * query.PageSize,
	}, actor)
	if err != nil {
		return err
	}
	resp := make([]dto.ServiceRequestResponse, 0, len(items))
	for i := range items {
		resp = append(resp, serviceRequestResponse(&items[i], admin))
	}
	return c.JSON(fiber.Map{"data": resp, "meta": fiber.Map{"page": query.Page, "page_size": query.PageSize}})
}

func (h *ServiceRequestsHandler) visit(date *string, deferred bool) (domain.VisitSchedule, error) {
	if deferred {
		return domain.DeferredVisit(), nil
	}
	parsed, err := dto.ParseDate("visit_date", date, h.loc)
	if err != nil {
		return domain.VisitSchedule{}, err
	}
	if parsed == nil {
		return domain.VisitSchedule{Kind: domain.VisitUnset}, nil
	}
	return domain.ScheduledVisit(*parsed), nil
}

func customerActor(c *fiber.Ctx) (service.Actor, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.SubjectType != domain.SubjectTypeCustomer {
		return service.Actor{}, apperrors.NewUnauthorized("customer required")
	}
	return service.CustomerActor(principal.SubjectID), nil
}

func staffActor(c *fiber.Ctx) (service.Actor, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || !principal.IsStaff() {
		return service.Actor{}, apperrors.NewUnauthorized("staff required")
	}
	return service.StaffActor(principal.SubjectID), nil
}

func parseServiceRequestQuery(c *fiber.Ctx) dto.ServiceRequestListQuery {
	query := dto.ServiceRequestListQuery{}
	for _, part := range splitList(c.Query("stage")) {
		query.Stages = append(query.Stages, domain.Stage(part))
	}
	for _, part := range splitList(c.Query("status")) {
		query.Statuses = append(query.Statuses, domain.RequestStatus(part))
	}
	if mode := c.Query("service_mode"); mode != "" {
		m := domain.ServiceMode(mode)
		query.ServiceMode = &m
	}
	if intent := c.Query("request_intent"); intent != "" {
		i := domain.RequestIntent(intent)
		query.Intent = &i
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		query.Search = &search
	}
	query.Page = parseInt(c.Query("page"), 1)
	query.PageSize = parseInt(c.Query("page_size"), 20)
	if query.PageSize > 100 {
		query.PageSize = 100
	}
	return query
}

func splitList(val string) []string {
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func serviceRequestResponse(details *service.RequestDetails, admin bool) dto.ServiceRequestResponse {
	req := details.ServiceRequest
	images := req.Device.Images
	if images == nil {
		images = []string{}
	}
	resp := dto.ServiceRequestResponse{
		ID:                 req.ID,
		TicketNumber:       req.TicketNumber,
		CustomerID:         req.CustomerID,
		CustomerName:       req.CustomerName,
		Phone:              req.Phone,
		ServiceMode:        req.ServiceMode,
		RequestIntent:      req.Intent,
		Stage:              req.Stage,
		Status:             req.Status,
		TrackingStatus:     details.TrackingStatus,
		IsQuote:            req.IsQuote,
		QuoteStatus:        details.EffectiveQuoteStatus,
		QuoteAmount:        req.QuoteAmount,
		QuoteNotes:         req.QuoteNotes,
		QuotedAt:           req.QuotedAt,
		AcceptedAt:         req.AcceptedAt,
		PickupTier:         req.PickupTier,
		PickupSurcharge:    details.PickupSurcharge,
		Address:            req.Address,
		Visit:              dto.VisitResponse{Kind: req.Visit.Kind, Date: req.Visit.Date},
		ExpectedPickupDate: req.ExpectedPickupDate,
		ExpectedReturnDate: req.ExpectedReturnDate,
		ExpectedReadyDate:  req.ExpectedReadyDate,
		Device: dto.DeviceResponse{
			Brand:       req.Device.Brand,
			Model:       req.Device.Model,
			ScreenSize:  req.Device.ScreenSize,
			Issue:       req.Device.Issue,
			Description: req.Device.Description,
			Images:      images,
		},
		ConvertedJobID: req.ConvertedJobID,
		CancelReason:   req.CancelReason,
		CreatedAt:      req.CreatedAt,
		UpdatedAt:      req.UpdatedAt,
		Events:         eventResponses(req.Events, admin),
	}
	if admin {
		resp.NextStages = details.NextStages
		resp.Version = req.Version
	}
	return resp
}

func trackingResponse(details *service.RequestDetails) dto.TrackingResponse {
	req := details.ServiceRequest
	device := req.Device.Brand
	if req.Device.Model != "" {
		device += " " + req.Device.Model
	}
	return dto.TrackingResponse{
		TicketNumber:   req.TicketNumber,
		ServiceMode:    req.ServiceMode,
		Stage:          req.Stage,
		Status:         req.Status,
		TrackingStatus: details.TrackingStatus,
		QuoteStatus:    details.EffectiveQuoteStatus,
		Device:         device,
		CreatedAt:      req.CreatedAt,
		UpdatedAt:      req.UpdatedAt,
		Events:         eventResponses(req.Events, false),
	}
}

// eventResponses renders the timeline. Actor names are shown to staff only.
func eventResponses(entries []domain.RequestEvent, withActor bool) []dto.EventResponse {
	resp := make([]dto.EventResponse, 0, len(entries))
	for _, entry := range entries {
		item := dto.EventResponse{
			ID:         entry.ID,
			Status:     entry.Status,
			Message:    entry.Message,
			OccurredAt: entry.OccurredAt,
		}
		if withActor {
			item.Actor = entry.Actor
		}
		resp = append(resp, item)
	}
	return resp
}
