package model

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/vigilohq/vigilo/pkg/utils"
)

const (
	_ = iota
	ChannelTypeEmail
	ChannelTypeSMS
	ChannelTypeWebhook
	ChannelTypeTelegram
	ChannelTypeSlack
)

func ChannelTypeToString(t uint8) string {
	switch t {
	case ChannelTypeEmail:
		return "email"
	case ChannelTypeSMS:
		return "sms"
	case ChannelTypeWebhook:
		return "webhook"
	case ChannelTypeTelegram:
		return "telegram"
	case ChannelTypeSlack:
		return "slack"
	default:
		return "unknown"
	}
}

// Per-type channel configuration, one shape per ChannelType, resolved at
// load time rather than re-parsed per send.
type WebhookConfig struct {
	URL          string `json:"url,omitempty"`
	Method       string `json:"method,omitempty"` // GET or POST
	HeadersRaw   string `json:"headers,omitempty"`
	BodyTemplate string `json:"body_template,omitempty"` // with #MSG# / #SUBJECT# / #DATETIME# placeholders
	SkipVerify   bool   `json:"skip_verify,omitempty"`
}

type TelegramConfig struct {
	BotToken string `json:"bot_token,omitempty"`
	ChatID   string `json:"chat_id,omitempty"`
}

type SlackConfig struct {
	WebhookURL string `json:"webhook_url,omitempty"`
}

type EmailConfig struct {
	SMTPHost string `json:"smtp_host,omitempty"`
	SMTPPort int    `json:"smtp_port,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	From     string `json:"from,omitempty"`
}

type SMSConfig struct {
	GatewayURL string `json:"gateway_url,omitempty"`
	APIKey     string `json:"api_key,omitempty"`
	Sender     string `json:"sender,omitempty"`
}

// NotificationChannel is a configured delivery endpoint with a rolling
// hourly rate limit.
type NotificationChannel struct {
	Common
	Name    string `json:"name"`
	Type    uint8  `json:"type"`
	Enabled bool   `gorm:"default:true" json:"enabled"`

	RateLimitPerHour int        `gorm:"default:100" json:"rate_limit_per_hour"`
	HourCount        int        `json:"hour_count"`
	RateLimitResetAt *time.Time `json:"rate_limit_reset_at"`

	LastUsedAt   *time.Time `json:"last_used_at"`
	LastFailedAt *time.Time `json:"last_failed_at"`
	LastError    string     `json:"last_error"`

	ConfigRaw string `gorm:"type:longtext;default:'{}'" json:"-"`

	Webhook  *WebhookConfig  `gorm:"-" json:"webhook,omitempty"`
	Telegram *TelegramConfig `gorm:"-" json:"telegram,omitempty"`
	Slack    *SlackConfig    `gorm:"-" json:"slack,omitempty"`
	Email    *EmailConfig    `gorm:"-" json:"email,omitempty"`
	SMS      *SMSConfig      `gorm:"-" json:"sms,omitempty"`
}

func (n *NotificationChannel) BeforeSave(tx *gorm.DB) error {
	var cfg interface{}
	switch n.Type {
	case ChannelTypeWebhook:
		cfg = n.Webhook
	case ChannelTypeTelegram:
		cfg = n.Telegram
	case ChannelTypeSlack:
		cfg = n.Slack
	case ChannelTypeEmail:
		cfg = n.Email
	case ChannelTypeSMS:
		cfg = n.SMS
	}
	if cfg == nil {
		n.ConfigRaw = "{}"
		return nil
	}
	data, err := utils.Json.Marshal(cfg)
	if err != nil {
		return err
	}
	n.ConfigRaw = string(data)
	return nil
}

func (n *NotificationChannel) AfterFind(tx *gorm.DB) error {
	return n.ResolveConfig()
}

// ResolveConfig materializes the typed variant for the channel's type.
func (n *NotificationChannel) ResolveConfig() error {
	switch n.Type {
	case ChannelTypeWebhook:
		n.Webhook = &WebhookConfig{}
		return utils.Json.Unmarshal([]byte(n.ConfigRaw), n.Webhook)
	case ChannelTypeTelegram:
		n.Telegram = &TelegramConfig{}
		return utils.Json.Unmarshal([]byte(n.ConfigRaw), n.Telegram)
	case ChannelTypeSlack:
		n.Slack = &SlackConfig{}
		return utils.Json.Unmarshal([]byte(n.ConfigRaw), n.Slack)
	case ChannelTypeEmail:
		n.Email = &EmailConfig{}
		return utils.Json.Unmarshal([]byte(n.ConfigRaw), n.Email)
	case ChannelTypeSMS:
		n.SMS = &SMSConfig{}
		return utils.Json.Unmarshal([]byte(n.ConfigRaw), n.SMS)
	}
	return fmt.Errorf("unknown channel type %d", n.Type)
}
