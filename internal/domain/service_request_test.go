package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func newQuoteRequest(t *testing.T, mode ServiceMode) *ServiceRequest {
	t.Helper()
	req, ev, err := NewServiceRequest("req-1", "SRV-20260310-0001", NewRequestParams{
		CustomerName: "Nadia",
		Phone:        "01711111111",
		ServiceMode:  mode,
		Intent:       IntentQuote,
		Device:       Device{Brand: "Samsung", Issue: "lines on screen"},
	}, t0)
	require.NoError(t, err)
	assert.Equal(t, string(StageIntake), ev.Status)
	assert.Equal(t, ActorSystem, ev.Actor)
	return req
}

func TestNewServiceRequestDirectRepairBindsDetail(t *testing.T) {
	req, _, err := NewServiceRequest("r", "T", NewRequestParams{
		CustomerName: "A", Phone: "1", ServiceMode: ServiceModePickup, Intent: IntentRepair,
		Device: Device{Brand: "LG", Issue: "dead"}, Address: " 4 Lake Rd ",
	}, t0)
	require.NoError(t, err)
	require.NotNil(t, req.PickupTier)
	assert.Equal(t, PickupTierRegular, *req.PickupTier)
	assert.Equal(t, "4 Lake Rd", req.Address)
	assert.False(t, req.IsQuote)
	assert.Empty(t, req.QuoteStatus)

	_, _, err = NewServiceRequest("r", "T", NewRequestParams{
		CustomerName: "A", Phone: "1", ServiceMode: ServiceModeServiceCenter, Intent: IntentRepair,
		Device: Device{Brand: "LG", Issue: "dead"}, Visit: VisitSchedule{Kind: VisitScheduled},
	}, t0)
	assert.True(t, IsKind(err, ErrMissingFulfillmentDetail))

	deferred, _, err := NewServiceRequest("r", "T", NewRequestParams{
		CustomerName: "A", Phone: "1", ServiceMode: ServiceModeServiceCenter, Intent: IntentRepair,
		Device: Device{Brand: "LG", Issue: "dead"}, Visit: DeferredVisit(),
	}, t0)
	require.NoError(t, err)
	assert.Equal(t, VisitDeferred, deferred.Visit.Kind)
}

func TestNewServiceRequestValidation(t *testing.T) {
	base := NewRequestParams{
		CustomerName: "A", Phone: "1", ServiceMode: ServiceModePickup, Intent: IntentQuote,
		Device: Device{Brand: "LG", Issue: "dead"},
	}
	cases := map[string]func(p *NewRequestParams){
		"mode":   func(p *NewRequestParams) { p.ServiceMode = "mail" },
		"intent": func(p *NewRequestParams) { p.Intent = "browse" },
		"name":   func(p *NewRequestParams) { p.CustomerName = "  " },
		"phone":  func(p *NewRequestParams) { p.Phone = "" },
		"brand":  func(p *NewRequestParams) { p.Device.Brand = "" },
		"issue":  func(p *NewRequestParams) { p.Device.Issue = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := base
			mutate(&p)
			_, _, err := NewServiceRequest("r", "T", p, t0)
			assert.True(t, IsKind(err, ErrValidation))
		})
	}
}

func TestSubmitQuoteRules(t *testing.T) {
	req := newQuoteRequest(t, ServiceModePickup)

	_, err := req.SubmitQuote(decimal.Zero, "", "tech", t0)
	assert.True(t, IsKind(err, ErrValidation))

	ev, err := req.SubmitQuote(decimal.RequireFromString("1250.5"), " board ", "tech", t0)
	require.NoError(t, err)
	assert.Equal(t, "Your quote of 1250.50 is ready for review.", ev.Message)
	assert.Equal(t, StageAwaitingCustomer, req.Stage)
	assert.Equal(t, "board", req.QuoteNotes)

	later := t0.Add(72 * time.Hour)
	_, err = req.SubmitQuote(decimal.NewFromInt(1100), "", "tech", later)
	require.NoError(t, err)
	assert.Equal(t, later, *req.QuotedAt)

	repair, _, err := NewServiceRequest("r", "T", NewRequestParams{
		CustomerName: "A", Phone: "1", ServiceMode: ServiceModeServiceCenter, Intent: IntentRepair,
		Device: Device{Brand: "LG", Issue: "dead"},
	}, t0)
	require.NoError(t, err)
	_, err = repair.SubmitQuote(decimal.NewFromInt(10), "", "tech", t0)
	assert.True(t, IsKind(err, ErrQuoteNotReady))
}

func TestAcceptQuoteBeforeQuotedIsNotReady(t *testing.T) {
	req := newQuoteRequest(t, ServiceModePickup)
	_, err := req.AcceptQuote(AcceptInput{Option: FulfillmentHomePickup, Address: "x", PickupTier: PickupTierRegular},
		DefaultQuotePolicy(), t0)
	assert.True(t, IsKind(err, ErrQuoteNotReady))
	assert.Equal(t, StageIntake, req.Stage)
}

func TestAcceptQuoteServiceCenterScheduled(t *testing.T) {
	req := newQuoteRequest(t, ServiceModeServiceCenter)
	_, err := req.SubmitQuote(decimal.NewFromInt(800), "", "tech", t0)
	require.NoError(t, err)

	visit := time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)
	ev, err := req.AcceptQuote(AcceptInput{Option: FulfillmentServiceCenter, Visit: ScheduledVisit(visit)},
		DefaultQuotePolicy(), t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Contains(t, ev.Message, "Thursday, March 12, 2026")
	assert.Nil(t, req.PickupTier)
	assert.Equal(t, VisitScheduled, req.Visit.Kind)
	assert.Equal(t, RequestStatusAccepted, req.Status)
}

func TestDeclineAllowedWhenExpired(t *testing.T) {
	req := newQuoteRequest(t, ServiceModePickup)
	_, err := req.SubmitQuote(decimal.NewFromInt(800), "", "tech", t0)
	require.NoError(t, err)

	_, err = req.DeclineQuote(t0.AddDate(0, 0, 45))
	require.NoError(t, err)
	assert.Equal(t, QuoteStatusDeclined, req.QuoteStatus)
	assert.Equal(t, StageAwaitingCustomer, req.Stage)

	_, err = req.DeclineQuote(t0.AddDate(0, 0, 46))
	assert.True(t, IsKind(err, ErrQuoteNotReady))
}

func TestEffectiveQuoteStatusOnlyDerivesFromQuoted(t *testing.T) {
	req := newQuoteRequest(t, ServiceModePickup)
	policy := DefaultQuotePolicy()
	assert.Equal(t, QuoteStatusPending, req.EffectiveQuoteStatus(t0.AddDate(1, 0, 0), policy))

	_, err := req.SubmitQuote(decimal.NewFromInt(1), "", "tech", t0)
	require.NoError(t, err)
	assert.Equal(t, QuoteStatusQuoted, req.EffectiveQuoteStatus(t0.AddDate(0, 0, 29), policy))
	assert.Equal(t, QuoteStatusExpired, req.EffectiveQuoteStatus(t0.AddDate(0, 0, 30), policy))
	assert.Equal(t, QuoteStatusQuoted, req.QuoteStatus)
}

func TestTransitionSetsStatusAndDefaultMessage(t *testing.T) {
	req, _, err := NewServiceRequest("r", "T", NewRequestParams{
		CustomerName: "A", Phone: "1", ServiceMode: ServiceModeServiceCenter, Intent: IntentRepair,
		Device: Device{Brand: "LG", Issue: "dead"},
	}, t0)
	require.NoError(t, err)

	ev, err := req.Transition(StageInRepair, "tech", "", t0)
	require.NoError(t, err)
	assert.Equal(t, StageInRepair.Message(), ev.Message)

	_, err = req.Transition(StageAssessment, "tech", "", t0)
	assert.True(t, IsKind(err, ErrInvalidTransition))

	_, err = req.Transition(StageCompleted, "tech", "all done", t0)
	require.NoError(t, err)
	assert.Equal(t, RequestStatusCompleted, req.Status)

	_, err = req.Transition(StageClosed, "tech", "", t0)
	assert.True(t, IsKind(err, ErrInvalidTransition))
}

func TestCloseIsReachableFromAnyOpenStage(t *testing.T) {
	req := newQuoteRequest(t, ServiceModePickup)
	_, err := req.Transition(StageClosed, "admin", "", t0)
	require.NoError(t, err)
	assert.Equal(t, RequestStatusClosed, req.Status)
	assert.Empty(t, req.NextStages())
}

func TestConvertedRequestIsFrozen(t *testing.T) {
	req := newQuoteRequest(t, ServiceModePickup)
	_, err := req.SubmitQuote(decimal.NewFromInt(800), "", "tech", t0)
	require.NoError(t, err)
	_, err = req.AcceptQuote(AcceptInput{Option: FulfillmentHomePickup, Address: "x", PickupTier: PickupTierEmergency},
		DefaultQuotePolicy(), t0)
	require.NoError(t, err)

	_, err = req.ConvertToJob("", "tech", t0)
	assert.True(t, IsKind(err, ErrValidation))

	_, err = req.ConvertToJob("JOB-2026-0001", "tech", t0)
	require.NoError(t, err)
	assert.True(t, req.IsConverted())
	assert.Empty(t, req.NextStages())

	_, err = req.ConvertToJob("JOB-2026-0002", "tech", t0)
	require.True(t, IsKind(err, ErrAlreadyConverted))
	assert.Equal(t, "JOB-2026-0001", *req.ConvertedJobID)

	_, err = req.UpdateSchedule(ScheduleUpdate{ExpectedPickupDate: &t0}, "tech", t0)
	assert.True(t, IsKind(err, ErrAlreadyConverted))
}

func TestCloneIsIndependent(t *testing.T) {
	req := newQuoteRequest(t, ServiceModePickup)
	req.Device.Images = []string{"a.jpg"}
	req.Events = []RequestEvent{{ID: "e1"}}

	c := req.Clone()
	c.Device.Images[0] = "b.jpg"
	c.Events[0].ID = "e2"
	c.Stage = StageAssessment

	assert.Equal(t, "a.jpg", req.Device.Images[0])
	assert.Equal(t, "e1", req.Events[0].ID)
	assert.Equal(t, StageIntake, req.Stage)
}
