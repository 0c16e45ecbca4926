package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/repair-tracker/internal/api/http/handlers"
	"github.com/spec-kit/repair-tracker/internal/auth"
	"github.com/spec-kit/repair-tracker/internal/domain"
	"github.com/spec-kit/repair-tracker/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health          *handlers.HealthHandler
	ServiceRequests *handlers.ServiceRequestsHandler
	Jobs            *handlers.JobsHandler
	Events          *handlers.EventsHandler
	Metrics         *observability.Metrics
	AuthMiddleware  *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	sr := cfg.ServiceRequests
	app.Post("/service-requests", cfg.AuthMiddleware.Optional, sr.Create)
	app.Get("/track/:ticketNumber", sr.Track)

	customer := app.Group("/customer", cfg.AuthMiddleware.Handle, auth.RequireCustomer())
	customer.Get("/service-requests", sr.CustomerList)
	customer.Get("/service-requests/:id", sr.CustomerGet)
	customer.Get("/service-requests/:id/events", sr.CustomerEvents)
	customer.Post("/service-requests/:id/quote/accept", sr.AcceptQuote)
	customer.Post("/service-requests/:id/quote/decline", sr.DeclineQuote)
	customer.Post("/service-requests/:id/cancel", sr.CustomerCancel)
	customer.Get("/warranties", cfg.Jobs.CustomerWarranties)
	customer.Get("/events", cfg.Events.CustomerStream)

	admin := app.Group("/admin", cfg.AuthMiddleware.Handle,
		auth.RequireStaffRole(domain.StaffRoleAdmin, domain.StaffRoleTechnician))
	admin.Get("/service-requests", sr.AdminList)
	admin.Get("/service-requests/:id", sr.AdminGet)
	admin.Get("/service-requests/:id/next-stages", sr.NextStages)
	admin.Post("/service-requests/:id/transition-stage", sr.TransitionStage)
	admin.Post("/service-requests/:id/quote", sr.SubmitQuote)
	admin.Patch("/service-requests/:id/schedule", sr.UpdateSchedule)
	admin.Post("/service-requests/:id/convert", sr.Convert)
	admin.Post("/service-requests/:id/cancel", sr.AdminCancel)
	admin.Get("/jobs/:id", cfg.Jobs.Get)
	admin.Patch("/jobs/:id/status", cfg.Jobs.UpdateStatus)
	admin.Patch("/jobs/:id/warranty", cfg.Jobs.UpdateWarranty)
	admin.Get("/jobs/:id/warranty", cfg.Jobs.Warranty)
	admin.Get("/events", cfg.Events.AdminStream)
}
