package domain

// Stage is the canonical lifecycle position of a service request.
type Stage string

const (
	StageIntake           Stage = "intake"
	StageAssessment       Stage = "assessment"
	StageAwaitingCustomer Stage = "awaiting_customer"
	StageAuthorized       Stage = "authorized"
	StagePickupScheduled  Stage = "pickup_scheduled"
	StagePickedUp         Stage = "picked_up"
	StageAwaitingDropoff  Stage = "awaiting_dropoff"
	StageDeviceReceived   Stage = "device_received"
	StageInRepair         Stage = "in_repair"
	StageReady            Stage = "ready"
	StageOutForDelivery   Stage = "out_for_delivery"
	StageCompleted        Stage = "completed"
	StageClosed           Stage = "closed"
)

// AllStages lists every wire value in declaration order.
var AllStages = []Stage{
	StageIntake, StageAssessment, StageAwaitingCustomer, StageAuthorized,
	StagePickupScheduled, StagePickedUp, StageAwaitingDropoff, StageDeviceReceived,
	StageInRepair, StageReady, StageOutForDelivery, StageCompleted, StageClosed,
}

// ServiceMode selects how the device reaches the shop.
type ServiceMode string

const (
	ServiceModePickup        ServiceMode = "pickup"
	ServiceModeServiceCenter ServiceMode = "service_center"
)

// RequestIntent distinguishes quote-first requests from direct repairs.
type RequestIntent string

const (
	IntentQuote  RequestIntent = "quote"
	IntentRepair RequestIntent = "repair"
)

// Valid reports whether m is a known wire value.
func (m ServiceMode) Valid() bool {
	return m == ServiceModePickup || m == ServiceModeServiceCenter
}

// Valid reports whether i is a known wire value.
func (i RequestIntent) Valid() bool {
	return i == IntentQuote || i == IntentRepair
}

// Valid reports whether s is a known wire value.
func (s Stage) Valid() bool {
	for _, candidate := range AllStages {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition may leave s.
func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageClosed
}

// CreatesJob reports whether entering s puts the device in the shop's hands,
// which opens a job for the request when it has none.
func (s Stage) CreatesJob() bool {
	return s == StagePickedUp || s == StageDeviceReceived
}

type flowKey struct {
	mode   ServiceMode
	intent RequestIntent
}

// stageFlows holds the forward-progress order for every (mode, intent) pair.
// Repair flows are the quote flows without awaiting_customer.
var stageFlows = map[flowKey][]Stage{
	{ServiceModePickup, IntentQuote}: {
		StageIntake, StageAssessment, StageAwaitingCustomer, StageAuthorized,
		StagePickupScheduled, StagePickedUp, StageInRepair, StageReady,
		StageOutForDelivery, StageCompleted,
	},
	{ServiceModeServiceCenter, IntentQuote}: {
		StageIntake, StageAssessment, StageAwaitingCustomer, StageAuthorized,
		StageAwaitingDropoff, StageDeviceReceived, StageInRepair, StageReady,
		StageCompleted,
	},
	{ServiceModePickup, IntentRepair}: {
		StageIntake, StageAssessment, StageAuthorized,
		StagePickupScheduled, StagePickedUp, StageInRepair, StageReady,
		StageOutForDelivery, StageCompleted,
	},
	{ServiceModeServiceCenter, IntentRepair}: {
		StageIntake, StageAssessment, StageAuthorized,
		StageAwaitingDropoff, StageDeviceReceived, StageInRepair, StageReady,
		StageCompleted,
	},
}

// StageFlow returns the full forward sequence for a classification.
func StageFlow(mode ServiceMode, intent RequestIntent) []Stage {
	flow := stageFlows[flowKey{mode, intent}]
	out := make([]Stage, len(flow))
	copy(out, flow)
	return out
}

func flowIndex(flow []Stage, stage Stage) int {
	for i, candidate := range flow {
		if candidate == stage {
			return i
		}
	}
	return -1
}

// NextStages returns the stages reachable from current, in forward-progress order.
// Skipping ahead is allowed. closed is never listed; it is an out-of-band target.
func NextStages(current Stage, mode ServiceMode, intent RequestIntent) []Stage {
	flow := stageFlows[flowKey{mode, intent}]
	idx := flowIndex(flow, current)
	if idx < 0 || idx == len(flow)-1 {
		return []Stage{}
	}
	out := make([]Stage, len(flow)-idx-1)
	copy(out, flow[idx+1:])
	return out
}

// CanTransition reports whether from -> to is a legal edge for the classification.
func CanTransition(from, to Stage, mode ServiceMode, intent RequestIntent) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StageClosed {
		return flowIndex(stageFlows[flowKey{mode, intent}], from) >= 0
	}
	for _, candidate := range NextStages(from, mode, intent) {
		if candidate == to {
			return true
		}
	}
	return false
}

// IsAtOrAfter reports whether stage sits at or beyond pivot in the flow.
// Stages outside the flow (including closed) are never at or after anything.
func IsAtOrAfter(stage, pivot Stage, mode ServiceMode, intent RequestIntent) bool {
	flow := stageFlows[flowKey{mode, intent}]
	si, pi := flowIndex(flow, stage), flowIndex(flow, pivot)
	if si < 0 || pi < 0 {
		return false
	}
	return si >= pi
}

var trackingLabels = map[Stage]string{
	StageIntake:           "Request Received",
	StageAssessment:       "Queued",
	StageAwaitingCustomer: "Queued",
	StageAuthorized:       "Queued",
	StagePickupScheduled:  "Arriving to Receive",
	StagePickedUp:         "Received",
	StageAwaitingDropoff:  "Awaiting Drop-off",
	StageDeviceReceived:   "Received",
	StageInRepair:         "Repairing",
	StageReady:            "Ready for Delivery",
	StageOutForDelivery:   "Ready for Delivery",
	StageCompleted:        "Delivered",
	StageClosed:           "Cancelled",
}

// TrackingLabel is the customer-facing progress label derived from the stage.
func (s Stage) TrackingLabel() string {
	if label, ok := trackingLabels[s]; ok {
		return label
	}
	return trackingLabels[StageIntake]
}

var stageMessages = map[Stage]string{
	StageIntake:           "Request received and is being processed.",
	StageAssessment:       "Your device is being assessed by our team.",
	StageAwaitingCustomer: "Quote sent - awaiting your response.",
	StageAuthorized:       "Repair authorized and scheduled.",
	StagePickupScheduled:  "Pickup has been scheduled.",
	StagePickedUp:         "Device has been picked up.",
	StageAwaitingDropoff:  "Awaiting your device drop-off at our service center.",
	StageDeviceReceived:   "Device received at service center.",
	StageInRepair:         "Repair is in progress.",
	StageReady:            "Your device is ready.",
	StageOutForDelivery:   "Device is out for delivery.",
	StageCompleted:        "Service completed successfully.",
	StageClosed:           "Case closed.",
}

// Message is the default timeline message for entering s.
func (s Stage) Message() string {
	if msg, ok := stageMessages[s]; ok {
		return msg
	}
	return "Status updated to " + string(s)
}
