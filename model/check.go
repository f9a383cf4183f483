package model

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/vigilohq/vigilo/pkg/utils"
)

const (
	_ = iota
	CheckTypeHTTP
	CheckTypeTCP
	CheckTypePing
	CheckTypeDNS
)

// Per-type configuration variants. Exactly one applies to a Check,
// resolved once in AfterFind instead of re-parsing the blob on every probe.
type HTTPConfig struct {
	Method             string `json:"method,omitempty"`
	HeadersRaw         string `json:"headers,omitempty"` // JSON object, parsed per request
	Body               string `json:"body,omitempty"`
	ExpectedStatusCode int    `json:"expected_status_code,omitempty"`
	Keyword            string `json:"keyword,omitempty"`
	KeywordMustExist   bool   `json:"keyword_must_exist,omitempty"`
	FollowRedirects    bool   `json:"follow_redirects,omitempty"`
	MonitorSSL         bool   `json:"monitor_ssl,omitempty"`
	SSLWarningDays     int    `json:"ssl_warning_days,omitempty"`
	SkipVerifySSL      bool   `json:"skip_verify_ssl,omitempty"`
}

type TCPConfig struct {
	Port       int    `json:"port,omitempty"`
	SendData   string `json:"send_data,omitempty"`
	ExpectData string `json:"expect_data,omitempty"`
}

type DNSConfig struct {
	RecordType    string `json:"record_type,omitempty"` // A, AAAA, CNAME, TXT
	ExpectedValue string `json:"expected_value,omitempty"`
}

// Check is an actively probed target.
type Check struct {
	Common
	Name       string `json:"name"`
	Type       uint8  `json:"type"`
	Target     string `json:"target"`
	CustomerID uint64 `json:"customer_id"`
	HostID     uint64 `json:"host_id"` // optional owning host
	TagsRaw    string `gorm:"default:'[]'" json:"-"`

	IntervalSeconds uint64 `gorm:"default:60" json:"interval_seconds"`
	TimeoutSeconds  uint64 `gorm:"default:30" json:"timeout_seconds"`
	// Consecutive failures needed to confirm Down, successes to confirm Up.
	Retries        int `gorm:"default:3" json:"retries"`
	RecoverRetries int `gorm:"default:1" json:"recover_retries"`

	// Severity assigned to incidents opened for this check.
	DownSeverity uint8 `gorm:"default:1" json:"down_severity"`

	MonitoringEnabled bool `gorm:"default:true" json:"monitoring_enabled"`
	AlertOnDown       bool `gorm:"default:true" json:"alert_on_down"`

	MaintenanceStartAt *time.Time `json:"maintenance_start_at"`
	MaintenanceEndAt   *time.Time `json:"maintenance_end_at"`
	MaintenanceReason  string     `json:"maintenance_reason"`

	ConfigRaw string `gorm:"type:longtext;default:'{}'" json:"-"`

	Tags []string    `gorm:"-" json:"tags"`
	HTTP *HTTPConfig `gorm:"-" json:"http,omitempty"`
	TCP  *TCPConfig  `gorm:"-" json:"tcp,omitempty"`
	DNS  *DNSConfig  `gorm:"-" json:"dns,omitempty"`
}

func (c *Check) BeforeSave(tx *gorm.DB) error {
	data, err := utils.Json.Marshal(c.Tags)
	if err != nil {
		return err
	}
	c.TagsRaw = string(data)

	var cfg interface{}
	switch c.Type {
	case CheckTypeHTTP:
		cfg = c.HTTP
	case CheckTypeTCP:
		cfg = c.TCP
	case CheckTypeDNS:
		cfg = c.DNS
	}
	if cfg == nil {
		c.ConfigRaw = "{}"
		return nil
	}
	data, err = utils.Json.Marshal(cfg)
	if err != nil {
		return err
	}
	c.ConfigRaw = string(data)
	return nil
}

func (c *Check) AfterFind(tx *gorm.DB) error {
	if err := utils.Json.Unmarshal([]byte(c.TagsRaw), &c.Tags); err != nil {
		return err
	}
	return c.ResolveConfig()
}

// ResolveConfig materializes the typed variant for the check's type.
func (c *Check) ResolveConfig() error {
	switch c.Type {
	case CheckTypeHTTP:
		c.HTTP = &HTTPConfig{}
		if err := utils.Json.Unmarshal([]byte(c.ConfigRaw), c.HTTP); err != nil {
			return err
		}
		if c.HTTP.Method == "" {
			c.HTTP.Method = "GET"
		}
		if c.HTTP.ExpectedStatusCode == 0 {
			c.HTTP.ExpectedStatusCode = 200
		}
		if c.HTTP.SSLWarningDays == 0 {
			c.HTTP.SSLWarningDays = 14
		}
	case CheckTypeTCP:
		c.TCP = &TCPConfig{}
		if err := utils.Json.Unmarshal([]byte(c.ConfigRaw), c.TCP); err != nil {
			return err
		}
	case CheckTypeDNS:
		c.DNS = &DNSConfig{}
		if err := utils.Json.Unmarshal([]byte(c.ConfigRaw), c.DNS); err != nil {
			return err
		}
		if c.DNS.RecordType == "" {
			c.DNS.RecordType = "A"
		}
	case CheckTypePing:
		// no extra configuration
	default:
		return fmt.Errorf("unknown check type %d", c.Type)
	}
	return nil
}

func (c *Check) IsInMaintenance(now time.Time) bool {
	if c.MaintenanceStartAt == nil {
		return false
	}
	if now.Before(*c.MaintenanceStartAt) {
		return false
	}
	if c.MaintenanceEndAt != nil && now.After(*c.MaintenanceEndAt) {
		return false
	}
	return true
}

func (c *Check) ShouldAlert(now time.Time) bool {
	return c.MonitoringEnabled && !c.IsInMaintenance(now) && c.AlertOnDown
}

func (c *Check) Interval() time.Duration {
	if c.IntervalSeconds == 0 {
		return 60 * time.Second
	}
	return time.Duration(c.IntervalSeconds) * time.Second
}

func (c *Check) Timeout() time.Duration {
	if c.TimeoutSeconds == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}
