package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aro-via/routing-maps/internal/domain"
)

func testConfig() Config {
	return Config{
		DelayThresholdMinutes: 5,
		TrafficIncreaseRatio:  1.20,
		MinRerouteInterval:    300 * time.Second,
	}
}

func TestEvaluate_CooldownSuppressesEverything(t *testing.T) {
	now := time.Now()
	last := now.Add(-100 * time.Second)
	state := &domain.DriverState{
		ScheduleDelayMinutes: 100, // would otherwise trigger rule 1
		LastRerouteTimestamp: &last,
	}
	should, reason := Evaluate(state, testConfig(), now)
	assert.False(t, should)
	assert.Equal(t, ReasonNone, reason)
}

func TestEvaluate_CooldownExpiredAllowsRule1(t *testing.T) {
	now := time.Now()
	last := now.Add(-301 * time.Second)
	state := &domain.DriverState{
		ScheduleDelayMinutes: 10,
		LastRerouteTimestamp: &last,
	}
	should, reason := Evaluate(state, testConfig(), now)
	assert.True(t, should)
	assert.Equal(t, ReasonTrafficDelay, reason)
}

func TestEvaluate_DelayThresholdIsStrictlyGreaterThan(t *testing.T) {
	now := time.Now()
	cfg := testConfig()

	exactlyFive := &domain.DriverState{ScheduleDelayMinutes: 5}
	should, _ := Evaluate(exactlyFive, cfg, now)
	assert.False(t, should, "exactly the threshold must not trigger")

	justOver := &domain.DriverState{ScheduleDelayMinutes: 5.0001}
	should, reason := Evaluate(justOver, cfg, now)
	assert.True(t, should)
	assert.Equal(t, ReasonTrafficDelay, reason)
}

func TestEvaluate_TrafficIncreaseRatioIsStrictlyGreaterThan(t *testing.T) {
	now := time.Now()
	cfg := testConfig()

	atRatio := &domain.DriverState{
		OriginalRemainingDuration: 100,
		RemainingDuration:         120, // exactly 1.20x
	}
	should, _ := Evaluate(atRatio, cfg, now)
	assert.False(t, should, "exactly at the ratio must not trigger")

	overRatio := &domain.DriverState{
		OriginalRemainingDuration: 100,
		RemainingDuration:         120.01,
	}
	should, reason := Evaluate(overRatio, cfg, now)
	assert.True(t, should)
	assert.Equal(t, ReasonTrafficDelay, reason)
}

func TestEvaluate_ZeroBaselineSkipsRule2(t *testing.T) {
	now := time.Now()
	state := &domain.DriverState{
		OriginalRemainingDuration: 0,
		RemainingDuration:         9999,
	}
	should, reason := Evaluate(state, testConfig(), now)
	assert.False(t, should)
	assert.Equal(t, ReasonNone, reason)
}

func TestEvaluate_StopsChangedTriggersRule3(t *testing.T) {
	now := time.Now()
	state := &domain.DriverState{StopsChanged: true}
	should, reason := Evaluate(state, testConfig(), now)
	assert.True(t, should)
	assert.Equal(t, ReasonStopModified, reason)
}

func TestEvaluate_NoTriggerReturnsFalseEmptyReason(t *testing.T) {
	now := time.Now()
	state := &domain.DriverState{}
	should, reason := Evaluate(state, testConfig(), now)
	assert.False(t, should)
	assert.Equal(t, ReasonNone, reason)
}
