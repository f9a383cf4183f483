package notifier

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/smtp"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/vigilohq/vigilo/model"
	"github.com/vigilohq/vigilo/pkg/utils"
)

// Adapter delivers one rendered notification through a channel. The
// returned externalID is the provider's message id when it hands one back.
type Adapter interface {
	Send(ctx context.Context, ch *model.NotificationChannel, recipient, subject, body string) (externalID string, err error)
}

// NewAdapters wires the built-in adapters by channel type.
func NewAdapters(loc *time.Location) map[uint8]Adapter {
	return map[uint8]Adapter{
		model.ChannelTypeWebhook:  &WebhookAdapter{Loc: loc},
		model.ChannelTypeTelegram: &TelegramAdapter{},
		model.ChannelTypeSlack:    &SlackAdapter{},
		model.ChannelTypeEmail:    &EmailAdapter{},
		model.ChannelTypeSMS:      &SMSAdapter{},
	}
}

// WebhookAdapter calls an arbitrary HTTP endpoint. #MSG#, #SUBJECT# and
// #DATETIME# placeholders are substituted in both the URL and the body
// template, query-escaped in the URL.
type WebhookAdapter struct {
	Loc *time.Location
}

func (a *WebhookAdapter) Send(ctx context.Context, ch *model.NotificationChannel, _, subject, body string) (string, error) {
	cfg := ch.Webhook
	if cfg == nil || cfg.URL == "" {
		return "", fmt.Errorf("webhook channel %d has no url", ch.ID)
	}
	method := cfg.Method
	if method == "" {
		method = http.MethodPost
	}

	target := a.replacePlaceholders(cfg.URL, subject, body, url.QueryEscape)
	var reqBody io.Reader
	if method != http.MethodGet && cfg.BodyTemplate != "" {
		rendered := a.replacePlaceholders(cfg.BodyTemplate, subject, body, func(s string) string {
			escaped, _ := utils.Json.Marshal(s)
			return string(escaped[1 : len(escaped)-1])
		})
		reqBody = strings.NewReader(rendered)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return "", err
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	headers, err := utils.GjsonParseStringMap(cfg.HeadersRaw)
	if err != nil {
		return "", err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := utils.HttpClient
	if cfg.SkipVerify {
		client = utils.HttpClientSkipTlsVerify
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%d@%s %s", resp.StatusCode, resp.Status, string(data))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return "", nil
}

func (a *WebhookAdapter) replacePlaceholders(str, subject, body string, mod func(string) string) string {
	if mod == nil {
		mod = func(s string) string { return s }
	}
	loc := a.Loc
	if loc == nil {
		loc = time.UTC
	}
	str = strings.ReplaceAll(str, "#MSG#", mod(body))
	str = strings.ReplaceAll(str, "#SUBJECT#", mod(subject))
	str = strings.ReplaceAll(str, "#DATETIME#", mod(time.Now().In(loc).String()))
	return str
}

// TelegramAdapter sends through the Bot API. BaseURL is swappable so tests
// can point it at a local server.
type TelegramAdapter struct {
	BaseURL string
}

func (a *TelegramAdapter) Send(ctx context.Context, ch *model.NotificationChannel, _, subject, body string) (string, error) {
	cfg := ch.Telegram
	if cfg == nil || cfg.BotToken == "" || cfg.ChatID == "" {
		return "", fmt.Errorf("telegram channel %d misconfigured", ch.ID)
	}
	base := a.BaseURL
	if base == "" {
		base = "https://api.telegram.org"
	}

	params := url.Values{}
	params.Set("chat_id", cfg.ChatID)
	params.Set("text", subject+"\n\n"+body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		base+"/bot"+cfg.BotToken+"/sendMessage",
		strings.NewReader(params.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := utils.HttpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%d@%s %s", resp.StatusCode, resp.Status, string(data))
	}
	return gjson.GetBytes(data, "result.message_id").String(), nil
}

// SlackAdapter posts to an incoming-webhook URL.
type SlackAdapter struct{}

func (a *SlackAdapter) Send(ctx context.Context, ch *model.NotificationChannel, _, subject, body string) (string, error) {
	cfg := ch.Slack
	if cfg == nil || cfg.WebhookURL == "" {
		return "", fmt.Errorf("slack channel %d has no webhook url", ch.ID)
	}
	payload, err := utils.Json.Marshal(map[string]string{
		"text": "*" + subject + "*\n" + body,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.WebhookURL, strings.NewReader(string(payload)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := utils.HttpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%d@%s %s", resp.StatusCode, resp.Status, string(data))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return "", nil
}

// EmailAdapter speaks plain SMTP.
type EmailAdapter struct{}

func (a *EmailAdapter) Send(_ context.Context, ch *model.NotificationChannel, recipient, subject, body string) (string, error) {
	cfg := ch.Email
	if cfg == nil || cfg.SMTPHost == "" {
		return "", fmt.Errorf("email channel %d misconfigured", ch.ID)
	}
	if recipient == "" {
		return "", fmt.Errorf("email channel %d needs a recipient", ch.ID)
	}
	port := cfg.SMTPPort
	if port == 0 {
		port = 587
	}
	msg := strings.Join([]string{
		"From: " + cfg.From,
		"To: " + recipient,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")

	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.SMTPHost)
	}
	addr := fmt.Sprintf("%s:%d", cfg.SMTPHost, port)
	if err := smtp.SendMail(addr, auth, cfg.From, []string{recipient}, []byte(msg)); err != nil {
		return "", err
	}
	return "", nil
}

// SMSAdapter posts to a JSON gateway.
type SMSAdapter struct{}

func (a *SMSAdapter) Send(ctx context.Context, ch *model.NotificationChannel, recipient, subject, _ string) (string, error) {
	cfg := ch.SMS
	if cfg == nil || cfg.GatewayURL == "" {
		return "", fmt.Errorf("sms channel %d has no gateway url", ch.ID)
	}
	if recipient == "" {
		return "", fmt.Errorf("sms channel %d needs a recipient", ch.ID)
	}
	payload, err := utils.Json.Marshal(map[string]string{
		"to":      recipient,
		"from":    cfg.Sender,
		"message": subject,
		"api_key": cfg.APIKey,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.GatewayURL, strings.NewReader(string(payload)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := utils.HttpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%d@%s %s", resp.StatusCode, resp.Status, string(data))
	}
	return gjson.GetBytes(data, "message_id").String(), nil
}
