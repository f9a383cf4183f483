package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func sev(s uint8) *uint8 { return &s }

func TestMatchesSeverity(t *testing.T) {
	cases := []struct {
		min      *uint8
		severity uint8
		expect   bool
	}{
		{nil, SeverityLow, true},
		{sev(SeverityHigh), SeverityCritical, true},
		{sev(SeverityHigh), SeverityHigh, true},
		{sev(SeverityHigh), SeverityMedium, false},
		{sev(SeverityHigh), SeverityLow, false},
		{sev(SeverityLow), SeverityInfo, false},
	}

	for _, c := range cases {
		r := NotificationRule{MinimumSeverity: c.min}
		assert.Equal(t, c.expect, r.MatchesSeverity(c.severity))
	}
}

func TestMatchesScope(t *testing.T) {
	r := NotificationRule{
		HostIDsRaw: `[1,2]`,
		TagsRaw:    `["prod"]`,
	}
	r.ResolveScope()

	assert.True(t, r.MatchesScope(&Event{HostID: 1, Tags: []string{"prod", "db"}}))
	assert.False(t, r.MatchesScope(&Event{HostID: 3, Tags: []string{"prod"}}))
	assert.False(t, r.MatchesScope(&Event{HostID: 1, Tags: []string{"staging"}}))

	// empty scope matches everything
	all := NotificationRule{}
	all.ResolveScope()
	assert.True(t, all.MatchesScope(&Event{HostID: 99}))
}

func TestBrokenScopeFailsClosed(t *testing.T) {
	r := NotificationRule{HostIDsRaw: `{"oops":`}
	r.ResolveScope()
	assert.True(t, r.ScopeBroken())
	assert.False(t, r.MatchesScope(&Event{HostID: 1}))
	assert.False(t, r.MatchesScope(&Event{}))
}

func TestIsWithinWorkingHours(t *testing.T) {
	r := NotificationRule{
		OnlyDuringWorkingHours: true,
		WorkingHoursStart:      "09:00",
		WorkingHoursEnd:        "18:00",
		WorkingDays:            "1,2,3,4,5",
		Timezone:               "UTC",
		CriticalBypass:         true,
	}

	monMorning := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC) // Monday
	monNight := time.Date(2024, 3, 4, 22, 0, 0, 0, time.UTC)
	sunday := time.Date(2024, 3, 3, 10, 0, 0, 0, time.UTC)

	assert.True(t, r.IsWithinWorkingHours(monMorning, SeverityMedium))
	assert.False(t, r.IsWithinWorkingHours(monNight, SeverityMedium))
	assert.False(t, r.IsWithinWorkingHours(sunday, SeverityMedium))

	// critical bypasses the window
	assert.True(t, r.IsWithinWorkingHours(monNight, SeverityCritical))

	r.CriticalBypass = false
	assert.False(t, r.IsWithinWorkingHours(monNight, SeverityCritical))

	// window disabled
	r.OnlyDuringWorkingHours = false
	assert.True(t, r.IsWithinWorkingHours(monNight, SeverityLow))
}
