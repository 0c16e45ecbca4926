package http

import (
	"bytes"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/repair-tracker/internal/api/http/handlers"
	"github.com/spec-kit/repair-tracker/internal/auth"
	"github.com/spec-kit/repair-tracker/internal/domain"
	"github.com/spec-kit/repair-tracker/internal/events"
	"github.com/spec-kit/repair-tracker/internal/observability"
	"github.com/spec-kit/repair-tracker/internal/realtime"
	"github.com/spec-kit/repair-tracker/internal/repository"
	"github.com/spec-kit/repair-tracker/internal/service"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testServer struct {
	app    *fiber.App
	tokens *auth.TokenManager
	clock  *testClock
	hub    *realtime.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	clock := &testClock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
	hub := realtime.NewHub(8, logger, metrics)
	dispatcher := events.NewInMemoryDispatcher()
	service.NewNotificationService(dispatcher, hub, logger).RegisterHandlers()

	requests := service.NewServiceRequestService(service.ServiceRequestDependencies{
		RequestRepo: repository.NewMemoryServiceRequestRepository(),
		Dispatcher:  dispatcher,
		Logger:      logger,
		Metrics:     metrics,
		QuotePolicy: domain.DefaultQuotePolicy(),
		Surcharges:  domain.DefaultSurcharges(),
	}).WithClock(clock.Now)
	jobs := service.NewJobService(service.JobDependencies{
		JobRepo:    repository.NewMemoryJobRepository(),
		Requests:   requests,
		Dispatcher: dispatcher,
		Logger:     logger,
		Metrics:    metrics,
	}).WithClock(clock.Now)

	tokens := auth.NewTokenManager("test-secret", 60)
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	RegisterMiddlewares(app, logger, metrics, 5*time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:          handlers.NewHealthHandler("repair-tracker", "test", nil, nil, hub),
		ServiceRequests: handlers.NewServiceRequestsHandler(requests, jobs, time.UTC),
		Jobs:            handlers.NewJobsHandler(jobs),
		Events:          handlers.NewEventsHandler(hub, time.Second, make(chan struct{}), logger),
		Metrics:         metrics,
		AuthMiddleware:  auth.NewAuthMiddleware(tokens),
	})
	return &testServer{app: app, tokens: tokens, clock: clock, hub: hub}
}

func (s *testServer) customerToken(t *testing.T, id string) string {
	t.Helper()
	token, _, err := s.tokens.GenerateToken(id, domain.SubjectTypeCustomer, nil)
	require.NoError(t, err)
	return token
}

func (s *testServer) staffToken(t *testing.T, role domain.StaffRole) string {
	t.Helper()
	token, _, err := s.tokens.GenerateToken("tech-1", domain.SubjectTypeStaff, &role)
	require.NoError(t, err)
	return token
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &env))
	}
	return resp.StatusCode, env
}

type requestView struct {
	ID              string   `json:"id"`
	TicketNumber    string   `json:"ticket_number"`
	Stage           string   `json:"stage"`
	TrackingStatus  string   `json:"tracking_status"`
	QuoteStatus     string   `json:"quote_status"`
	PickupSurcharge *string  `json:"pickup_surcharge"`
	ConvertedJobID  *string  `json:"converted_job_id"`
	NextStages      []string `json:"next_stages"`
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func (s *testServer) createQuote(t *testing.T, customer string) requestView {
	t.Helper()
	status, env := s.do(t, fiber.MethodPost, "/service-requests", customer, fiber.Map{
		"customer_name":  "Rahim",
		"phone":          "01700000000",
		"service_mode":   "pickup",
		"request_intent": "quote",
		"brand":          "Sony",
		"model":          "X90J",
		"issue":          "no picture",
	})
	require.Equal(t, fiber.StatusCreated, status)
	return decode[requestView](t, env.Data)
}

func TestPublicCreateAndTrack(t *testing.T) {
	s := newTestServer(t)
	created := s.createQuote(t, "")
	assert.Equal(t, "SRV-20260601-0001", created.TicketNumber)
	assert.Equal(t, "intake", created.Stage)

	status, env := s.do(t, fiber.MethodGet, "/track/srv-20260601-0001", "", nil)
	require.Equal(t, fiber.StatusOK, status)
	view := decode[map[string]any](t, env.Data)
	assert.Equal(t, "Request Received", view["tracking_status"])
	assert.NotContains(t, view, "phone")

	status, env = s.do(t, fiber.MethodGet, "/track/SRV-20260601-0099", "", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestCreateValidationEnvelope(t *testing.T) {
	s := newTestServer(t)
	status, env := s.do(t, fiber.MethodPost, "/service-requests", "", fiber.Map{"service_mode": "drone"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
	assert.Equal(t, "oneof", env.Error.Details["service_mode"])

	status, env = s.do(t, fiber.MethodPost, "/service-requests", "", fiber.Map{
		"customer_name": "A", "phone": "1", "service_mode": "pickup", "request_intent": "repair",
		"brand": "LG", "issue": "dead",
	})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, "MISSING_FULFILLMENT_DETAIL", env.Error.Code)
}

func TestQuoteAcceptFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	customer := s.customerToken(t, "cust-1")
	staff := s.staffToken(t, domain.StaffRoleTechnician)
	created := s.createQuote(t, customer)

	status, _ := s.do(t, fiber.MethodPost, "/admin/service-requests/"+created.ID+"/quote", staff, fiber.Map{
		"quote_amount": "5000", "quote_notes": "panel",
	})
	require.Equal(t, fiber.StatusOK, status)

	status, env := s.do(t, fiber.MethodPost, "/customer/service-requests/"+created.ID+"/quote/accept", customer, fiber.Map{
		"service_option": "home_pickup", "address": "12 Road 5", "pickup_tier": "Priority",
	})
	require.Equal(t, fiber.StatusOK, status)
	accepted := decode[requestView](t, env.Data)
	assert.Equal(t, "authorized", accepted.Stage)
	assert.Equal(t, "Accepted", accepted.QuoteStatus)
	require.NotNil(t, accepted.PickupSurcharge)

	status, env = s.do(t, fiber.MethodGet, "/admin/service-requests/"+created.ID, staff, nil)
	require.Equal(t, fiber.StatusOK, status)
	admin := decode[requestView](t, env.Data)
	assert.Contains(t, admin.NextStages, "pickup_scheduled")

	status, env = s.do(t, fiber.MethodPost, "/admin/service-requests/"+created.ID+"/convert", staff, fiber.Map{
		"service_warranty_days": 90,
	})
	require.Equal(t, fiber.StatusCreated, status)
	converted := decode[struct {
		Job            struct{ ID string } `json:"job"`
		ServiceRequest requestView         `json:"service_request"`
	}](t, env.Data)
	assert.Equal(t, "JOB-2026-0001", converted.Job.ID)

	status, env = s.do(t, fiber.MethodPost, "/admin/service-requests/"+created.ID+"/convert", staff, nil)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "ALREADY_CONVERTED", env.Error.Code)
}

func TestExpiredQuoteReturnsGone(t *testing.T) {
	s := newTestServer(t)
	customer := s.customerToken(t, "cust-1")
	staff := s.staffToken(t, domain.StaffRoleAdmin)
	created := s.createQuote(t, customer)

	status, _ := s.do(t, fiber.MethodPost, "/admin/service-requests/"+created.ID+"/quote", staff, fiber.Map{"quote_amount": 5000})
	require.Equal(t, fiber.StatusOK, status)
	s.clock.Advance(31 * 24 * time.Hour)

	status, env := s.do(t, fiber.MethodPost, "/customer/service-requests/"+created.ID+"/quote/accept", customer, fiber.Map{
		"service_option": "home_pickup", "address": "12 Road 5", "pickup_tier": "Priority",
	})
	assert.Equal(t, fiber.StatusGone, status)
	assert.Equal(t, "QUOTE_EXPIRED", env.Error.Code)

	status, env = s.do(t, fiber.MethodGet, "/customer/service-requests/"+created.ID, customer, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "Expired", decode[requestView](t, env.Data).QuoteStatus)
}

func TestTransitionConflictAndExpectedStage(t *testing.T) {
	s := newTestServer(t)
	staff := s.staffToken(t, domain.StaffRoleTechnician)
	created := s.createQuote(t, "")

	status, env := s.do(t, fiber.MethodPost, "/admin/service-requests/"+created.ID+"/transition-stage", staff, fiber.Map{
		"to_stage": "authorized",
	})
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "QUOTE_NOT_READY", env.Error.Code)

	status, _ = s.do(t, fiber.MethodPost, "/admin/service-requests/"+created.ID+"/transition-stage", staff, fiber.Map{
		"to_stage": "assessment", "expected_stage": "intake",
	})
	require.Equal(t, fiber.StatusOK, status)

	status, env = s.do(t, fiber.MethodPost, "/admin/service-requests/"+created.ID+"/transition-stage", staff, fiber.Map{
		"to_stage": "awaiting_customer", "expected_stage": "intake",
	})
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "INVALID_TRANSITION", env.Error.Code)
}

func TestAuthBoundaries(t *testing.T) {
	s := newTestServer(t)
	customer := s.customerToken(t, "cust-1")
	other := s.customerToken(t, "cust-2")
	created := s.createQuote(t, customer)

	status, env := s.do(t, fiber.MethodGet, "/admin/service-requests", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	status, env = s.do(t, fiber.MethodGet, "/admin/service-requests", customer, nil)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	status, _ = s.do(t, fiber.MethodGet, "/customer/service-requests/"+created.ID, other, nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, env = s.do(t, fiber.MethodGet, "/customer/service-requests", customer, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, decode[[]requestView](t, env.Data), 1)
	status, env = s.do(t, fiber.MethodGet, "/customer/service-requests", other, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Empty(t, decode[[]requestView](t, env.Data))
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	s := newTestServer(t)
	status, env := s.do(t, fiber.MethodGet, "/nope", "", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)
	status, _ := s.do(t, fiber.MethodGet, "/health/live", "", nil)
	assert.Equal(t, fiber.StatusOK, status)
	status, _ = s.do(t, fiber.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, fiber.StatusOK, status)

	s.createQuote(t, "")
	resp, err := s.app.Test(httptest.NewRequest(nethttp.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "http_requests_total")
	assert.Contains(t, string(body), "notifications_published_total")
}

func TestCommittedChangesReachHubSubscribers(t *testing.T) {
	s := newTestServer(t)
	admin := s.hub.SubscribeAdmin()
	defer s.hub.Unsubscribe(admin)

	created := s.createQuote(t, s.customerToken(t, "cust-1"))
	select {
	case event := <-admin.Events():
		assert.Equal(t, events.EventServiceRequestCreated, event.Type)
		assert.Equal(t, created.ID, event.ServiceRequestID)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}
