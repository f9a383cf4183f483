package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ts(t time.Time) *time.Time { return &t }

func TestHostIsInMaintenance(t *testing.T) {
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

	h := Host{}
	assert.False(t, h.IsInMaintenance(now))

	h.MaintenanceStartAt = ts(now.Add(-time.Hour))
	assert.True(t, h.IsInMaintenance(now), "open-ended window")

	h.MaintenanceEndAt = ts(now.Add(time.Hour))
	assert.True(t, h.IsInMaintenance(now))

	h.MaintenanceEndAt = ts(now.Add(-time.Minute))
	assert.False(t, h.IsInMaintenance(now), "window already closed")

	h.MaintenanceStartAt = ts(now.Add(time.Minute))
	h.MaintenanceEndAt = nil
	assert.False(t, h.IsInMaintenance(now), "window not yet open")
}

func TestHostShouldAlert(t *testing.T) {
	now := time.Now()

	h := Host{MonitoringEnabled: true, AlertOnDown: true}
	assert.True(t, h.ShouldAlert(now))

	h.AlertOnDown = false
	assert.False(t, h.ShouldAlert(now))

	h.AlertOnDown = true
	h.MonitoringEnabled = false
	assert.False(t, h.ShouldAlert(now))

	h.MonitoringEnabled = true
	h.MaintenanceStartAt = ts(now.Add(-time.Hour))
	assert.False(t, h.ShouldAlert(now))
}

func TestHostHeartbeatOverdue(t *testing.T) {
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

	h := Host{AlertDelaySeconds: 90}
	assert.False(t, h.HeartbeatOverdue(now), "never-seen hosts are not overdue")

	h.LastSeenAt = ts(now.Add(-60 * time.Second))
	assert.False(t, h.HeartbeatOverdue(now))

	h.LastSeenAt = ts(now.Add(-91 * time.Second))
	assert.True(t, h.HeartbeatOverdue(now))
}

func TestCheckResolveConfigDefaults(t *testing.T) {
	c := Check{Type: CheckTypeHTTP, ConfigRaw: "{}"}
	assert.NoError(t, c.ResolveConfig())
	assert.Equal(t, "GET", c.HTTP.Method)
	assert.Equal(t, 200, c.HTTP.ExpectedStatusCode)
	assert.Equal(t, 14, c.HTTP.SSLWarningDays)

	c = Check{Type: CheckTypeDNS, ConfigRaw: "{}"}
	assert.NoError(t, c.ResolveConfig())
	assert.Equal(t, "A", c.DNS.RecordType)

	c = Check{Type: 99}
	assert.Error(t, c.ResolveConfig())
}
