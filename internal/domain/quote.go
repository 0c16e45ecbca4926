package domain

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// QuoteStatus tracks the quoting sub-workflow. Expired is never stored.
type QuoteStatus string

const (
	QuoteStatusPending  QuoteStatus = "Pending"
	QuoteStatusQuoted   QuoteStatus = "Quoted"
	QuoteStatusAccepted QuoteStatus = "Accepted"
	QuoteStatusDeclined QuoteStatus = "Declined"
	QuoteStatusExpired  QuoteStatus = "Expired"
)

// DefaultQuoteValidityDays is the window a quote stays acceptable.
const DefaultQuoteValidityDays = 30

// PickupTier selects pickup urgency for home pickup.
type PickupTier string

const (
	PickupTierRegular   PickupTier = "Regular"
	PickupTierPriority  PickupTier = "Priority"
	PickupTierEmergency PickupTier = "Emergency"
)

// Valid reports whether t is a known tier.
func (t PickupTier) Valid() bool {
	switch t {
	case PickupTierRegular, PickupTierPriority, PickupTierEmergency:
		return true
	}
	return false
}

// FulfillmentOption is the service option a customer picks when accepting a quote.
type FulfillmentOption string

const (
	FulfillmentHomePickup    FulfillmentOption = "home_pickup"
	FulfillmentServiceCenter FulfillmentOption = "service_center"
)

// Mode maps the option onto the request classification it fulfills.
func (o FulfillmentOption) Mode() (ServiceMode, bool) {
	switch o {
	case FulfillmentHomePickup:
		return ServiceModePickup, true
	case FulfillmentServiceCenter:
		return ServiceModeServiceCenter, true
	}
	return "", false
}

// VisitKind distinguishes "not chosen yet" from "deliberately deferred".
type VisitKind string

const (
	VisitUnset     VisitKind = "unset"
	VisitDeferred  VisitKind = "deferred"
	VisitScheduled VisitKind = "scheduled"
)

// VisitSchedule is the service-center visit choice.
type VisitSchedule struct {
	Kind VisitKind
	Date *time.Time
}

// DeferredVisit returns the "decide later" marker.
func DeferredVisit() VisitSchedule {
	return VisitSchedule{Kind: VisitDeferred}
}

// ScheduledVisit returns a visit booked for the given day.
func ScheduledVisit(date time.Time) VisitSchedule {
	return VisitSchedule{Kind: VisitScheduled, Date: &date}
}

// IsSet reports whether any visit decision has been recorded.
func (v VisitSchedule) IsSet() bool {
	return v.Kind == VisitDeferred || v.Kind == VisitScheduled
}

// SurchargeTable maps pickup tiers to the fee the ledger adds on invoicing.
type SurchargeTable map[PickupTier]decimal.Decimal

// DefaultSurcharges mirrors the shop's published pickup fees.
func DefaultSurcharges() SurchargeTable {
	return SurchargeTable{
		PickupTierRegular:   decimal.Zero,
		PickupTierPriority:  decimal.NewFromInt(500),
		PickupTierEmergency: decimal.NewFromInt(1000),
	}
}

// For returns the surcharge of tier, zero for unknown or empty tiers.
func (t SurchargeTable) For(tier PickupTier) decimal.Decimal {
	if amount, ok := t[tier]; ok {
		return amount
	}
	return decimal.Zero
}

// QuotePolicy carries the quote validity rule and the business calendar.
type QuotePolicy struct {
	ValidityDays int
	Location     *time.Location
}

// DefaultQuotePolicy is a 30-day window on the UTC calendar.
func DefaultQuotePolicy() QuotePolicy {
	return QuotePolicy{ValidityDays: DefaultQuoteValidityDays, Location: time.UTC}
}

func (p QuotePolicy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

func (p QuotePolicy) validityDays() int {
	if p.ValidityDays <= 0 {
		return DefaultQuoteValidityDays
	}
	return p.ValidityDays
}

// IsExpired reports whether a quote issued at quotedAt is no longer acceptable at now.
func (p QuotePolicy) IsExpired(quotedAt, now time.Time) bool {
	return CalendarDaysBetween(quotedAt, now, p.location()) >= p.validityDays()
}

// CalendarDaysBetween counts calendar-day boundaries from a to b in loc.
// 23:59 on one day to 00:01 on the next is one day; the same date is zero.
func CalendarDaysBetween(a, b time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	da := startOfDay(a, loc)
	db := startOfDay(b, loc)
	return int(math.Round(db.Sub(da).Hours() / 24))
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// AcceptInput is the customer's quote acceptance.
type AcceptInput struct {
	Option     FulfillmentOption
	Address    string
	PickupTier PickupTier
	Visit      VisitSchedule
}

func (in AcceptInput) validate(mode ServiceMode, now time.Time, loc *time.Location) *Error {
	optionMode, ok := in.Option.Mode()
	if !ok {
		return missingDetail("service_option", "select a service option")
	}
	if optionMode != mode {
		return NewError(ErrValidation, "service option does not match the request's service mode", map[string]any{
			"field":        "service_option",
			"service_mode": mode,
		})
	}
	switch in.Option {
	case FulfillmentHomePickup:
		if strings.TrimSpace(in.Address) == "" {
			return missingDetail("address", "pickup address is required for home pickup")
		}
		if in.PickupTier == "" {
			return missingDetail("pickup_tier", "pickup tier is required for home pickup")
		}
		if !in.PickupTier.Valid() {
			return validationError("pickup_tier", "pickup tier must be Regular, Priority, or Emergency")
		}
	case FulfillmentServiceCenter:
		switch in.Visit.Kind {
		case VisitDeferred:
		case VisitScheduled:
			if in.Visit.Date == nil {
				return missingDetail("visit_date", "visit date is required")
			}
			if CalendarDaysBetween(now, *in.Visit.Date, loc) < 0 {
				return validationError("visit_date", "visit date must not be in the past")
			}
		default:
			return missingDetail("visit_date", "choose a visit date or decide later")
		}
	}
	return nil
}
