package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	allModes   = []ServiceMode{ServiceModePickup, ServiceModeServiceCenter}
	allIntents = []RequestIntent{IntentQuote, IntentRepair}
)

func TestNextStagesRepairNeverAwaitsCustomer(t *testing.T) {
	for _, mode := range allModes {
		for _, stage := range AllStages {
			assert.NotContains(t, NextStages(stage, mode, IntentRepair), StageAwaitingCustomer,
				"mode=%s stage=%s", mode, stage)
		}
	}
}

func TestNextStagesNeverListsClosed(t *testing.T) {
	for _, mode := range allModes {
		for _, intent := range allIntents {
			for _, stage := range AllStages {
				assert.NotContains(t, NextStages(stage, mode, intent), StageClosed)
			}
		}
	}
}

func TestNextStagesForwardOrder(t *testing.T) {
	got := NextStages(StageAuthorized, ServiceModePickup, IntentQuote)
	require.Equal(t, []Stage{
		StagePickupScheduled, StagePickedUp, StageInRepair, StageReady, StageOutForDelivery, StageCompleted,
	}, got)

	got = NextStages(StageAssessment, ServiceModeServiceCenter, IntentRepair)
	require.Equal(t, []Stage{
		StageAuthorized, StageAwaitingDropoff, StageDeviceReceived, StageInRepair, StageReady, StageCompleted,
	}, got)
}

func TestNextStagesTerminalAndForeign(t *testing.T) {
	assert.Empty(t, NextStages(StageCompleted, ServiceModePickup, IntentQuote))
	assert.Empty(t, NextStages(StageClosed, ServiceModePickup, IntentQuote))
	// out_for_delivery is not part of the service center flow
	assert.Empty(t, NextStages(StageOutForDelivery, ServiceModeServiceCenter, IntentQuote))
	assert.Empty(t, NextStages(Stage("bogus"), ServiceModePickup, IntentRepair))
}

func TestNextStagesReturnsCopy(t *testing.T) {
	got := NextStages(StageIntake, ServiceModePickup, IntentQuote)
	got[0] = StageClosed
	assert.Equal(t, StageAssessment, NextStages(StageIntake, ServiceModePickup, IntentQuote)[0])
}

func TestCanTransitionClosedFromAnyNonTerminal(t *testing.T) {
	for _, mode := range allModes {
		for _, intent := range allIntents {
			for _, stage := range StageFlow(mode, intent) {
				want := !stage.IsTerminal()
				assert.Equal(t, want, CanTransition(stage, StageClosed, mode, intent), "stage=%s", stage)
			}
		}
	}
}

func TestCanTransitionMatchesNextStages(t *testing.T) {
	for _, mode := range allModes {
		for _, intent := range allIntents {
			for _, from := range AllStages {
				allowed := map[Stage]bool{}
				for _, s := range NextStages(from, mode, intent) {
					allowed[s] = true
				}
				for _, to := range AllStages {
					if to == StageClosed {
						continue
					}
					assert.Equal(t, allowed[to], CanTransition(from, to, mode, intent), "%s -> %s", from, to)
				}
			}
		}
	}
}

func TestIsAtOrAfter(t *testing.T) {
	assert.True(t, IsAtOrAfter(StageAuthorized, StageAuthorized, ServiceModePickup, IntentQuote))
	assert.True(t, IsAtOrAfter(StageInRepair, StageAuthorized, ServiceModeServiceCenter, IntentRepair))
	assert.False(t, IsAtOrAfter(StageAwaitingCustomer, StageAuthorized, ServiceModePickup, IntentQuote))
	assert.False(t, IsAtOrAfter(StageClosed, StageAuthorized, ServiceModePickup, IntentQuote))
}

func TestTrackingLabelDerivedFromStage(t *testing.T) {
	assert.Equal(t, "Request Received", StageIntake.TrackingLabel())
	assert.Equal(t, "Awaiting Drop-off", StageAwaitingDropoff.TrackingLabel())
	assert.Equal(t, "Delivered", StageCompleted.TrackingLabel())
	for _, stage := range AllStages {
		assert.NotEmpty(t, stage.TrackingLabel())
		assert.NotEmpty(t, stage.Message())
	}
}

func TestCreatesJobOnlyWhenDeviceIsInHand(t *testing.T) {
	for _, stage := range AllStages {
		want := stage == StagePickedUp || stage == StageDeviceReceived
		assert.Equal(t, want, stage.CreatesJob(), stage)
	}
}
