package model

import (
	"time"

	"gorm.io/gorm"

	"github.com/vigilohq/vigilo/pkg/utils"
)

// Host is an agent-monitored machine. Its liveness signal is the heartbeat:
// the agent pushes metrics, and the absence of a push past AlertDelaySeconds
// is treated as a failing probe.
type Host struct {
	Common
	Name       string `json:"name"`
	CustomerID uint64 `json:"customer_id"`
	APIKey     string `gorm:"uniqueIndex" json:"-"`
	TagsRaw    string `gorm:"default:'[]'" json:"-"`

	OsType       string `json:"os_type"`
	OsVersion    string `json:"os_version"`
	AgentVersion string `json:"agent_version"`

	// Live metrics denormalized from the last heartbeat.
	PrimaryIP     string     `json:"primary_ip"`
	PublicIP      string     `json:"public_ip"`
	CPUPercent    float64    `json:"cpu_percent"`
	RAMPercent    float64    `json:"ram_percent"`
	RAMUsedMB     uint64     `json:"ram_used_mb"`
	RAMTotalMB    uint64     `json:"ram_total_mb"`
	UptimeSeconds uint64     `json:"uptime_seconds"`
	LastSeenAt    *time.Time `json:"last_seen_at"`
	DisksRaw      string     `gorm:"type:longtext;default:'[]'" json:"-"`
	ServicesRaw   string     `gorm:"type:longtext;default:'[]'" json:"-"`

	// Alert thresholds (percent).
	CPUWarning   float64 `gorm:"default:80" json:"cpu_warning"`
	CPUCritical  float64 `gorm:"default:95" json:"cpu_critical"`
	RAMWarning   float64 `gorm:"default:80" json:"ram_warning"`
	RAMCritical  float64 `gorm:"default:95" json:"ram_critical"`
	DiskWarning  float64 `gorm:"default:80" json:"disk_warning"`
	DiskCritical float64 `gorm:"default:95" json:"disk_critical"`

	MonitoringEnabled bool   `gorm:"default:true" json:"monitoring_enabled"`
	AlertOnDown       bool   `gorm:"default:true" json:"alert_on_down"`
	AlertDelaySeconds uint64 `gorm:"default:90" json:"alert_delay_seconds"`

	MaintenanceStartAt *time.Time `json:"maintenance_start_at"`
	MaintenanceEndAt   *time.Time `json:"maintenance_end_at"`
	MaintenanceReason  string     `json:"maintenance_reason"`

	Tags []string `gorm:"-" json:"tags"`
}

func (h *Host) BeforeSave(tx *gorm.DB) error {
	data, err := utils.Json.Marshal(h.Tags)
	if err != nil {
		return err
	}
	h.TagsRaw = string(data)
	return nil
}

func (h *Host) AfterFind(tx *gorm.DB) error {
	return utils.Json.Unmarshal([]byte(h.TagsRaw), &h.Tags)
}

// IsInMaintenance reports whether now falls inside the configured window.
func (h *Host) IsInMaintenance(now time.Time) bool {
	if h.MaintenanceStartAt == nil {
		return false
	}
	if now.Before(*h.MaintenanceStartAt) {
		return false
	}
	if h.MaintenanceEndAt != nil && now.After(*h.MaintenanceEndAt) {
		return false
	}
	return true
}

// ShouldAlert gates the incident correlator and the rule engine. Status
// records and history keep updating even when this is false.
func (h *Host) ShouldAlert(now time.Time) bool {
	return h.MonitoringEnabled && !h.IsInMaintenance(now) && h.AlertOnDown
}

// HeartbeatOverdue reports whether the host missed its heartbeat deadline.
func (h *Host) HeartbeatOverdue(now time.Time) bool {
	if h.LastSeenAt == nil {
		return false
	}
	return now.Sub(*h.LastSeenAt) > time.Duration(h.AlertDelaySeconds)*time.Second
}

// HostMetric is one time-series sample persisted per heartbeat.
type HostMetric struct {
	ID         uint64    `gorm:"primary_key" json:"id"`
	HostID     uint64    `gorm:"index" json:"host_id"`
	CPUPercent float64   `json:"cpu_percent"`
	RAMPercent float64   `json:"ram_percent"`
	RAMUsedMB  uint64    `json:"ram_used_mb"`
	DisksRaw   string    `gorm:"type:longtext" json:"-"`
	RecordedAt time.Time `gorm:"index" json:"recorded_at"`
}
