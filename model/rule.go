package model

import (
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/vigilohq/vigilo/pkg/utils"
)

// NotificationRule filters events and names the channel to notify. Scope
// blobs are JSON arrays; an unparsable blob makes the rule match NOTHING.
type NotificationRule struct {
	Common
	Name      string `json:"name"`
	EventType string `json:"event_type"`
	Enabled   bool   `gorm:"default:true" json:"enabled"`

	// Nil means any severity. Ordering: Critical < High < Medium < Low,
	// so "meets minimum" is severity <= *MinimumSeverity.
	MinimumSeverity *uint8 `json:"minimum_severity"`

	// Scope filters; empty means match-all.
	CustomerIDsRaw string `gorm:"default:''" json:"-"`
	HostIDsRaw     string `gorm:"default:''" json:"-"`
	CheckIDsRaw    string `gorm:"default:''" json:"-"`
	TagsRaw        string `gorm:"default:''" json:"-"`

	ChannelID     uint64 `json:"channel_id"`
	RecipientsRaw string `gorm:"default:''" json:"-"`

	DelaySeconds    int `json:"delay_seconds"`
	CooldownMinutes int `json:"cooldown_minutes"`
	Priority        int `json:"priority"`

	// Working-hours window. Empty WorkingDays means every day.
	OnlyDuringWorkingHours bool   `json:"only_during_working_hours"`
	WorkingHoursStart      string `json:"working_hours_start"` // "09:00"
	WorkingHoursEnd        string `json:"working_hours_end"`   // "18:00"
	WorkingDays            string `json:"working_days"`        // "1,2,3,4,5", Sunday=0
	Timezone               string `json:"timezone"`
	CriticalBypass         bool   `gorm:"default:true" json:"critical_bypass"`

	EscalateAfterMinutes int    `json:"escalate_after_minutes"`
	EscalateToRuleID     uint64 `json:"escalate_to_rule_id"`

	CustomerIDs []uint64 `gorm:"-" json:"customer_ids"`
	HostIDs     []uint64 `gorm:"-" json:"host_ids"`
	CheckIDs    []uint64 `gorm:"-" json:"check_ids"`
	Tags        []string `gorm:"-" json:"tags"`
	Recipients  []string `gorm:"-" json:"recipients"`

	// scopeBroken is set when any scope blob failed to parse.
	scopeBroken bool
}

func (r *NotificationRule) BeforeSave(tx *gorm.DB) error {
	for _, pair := range []struct {
		dst *string
		src interface{}
	}{
		{&r.CustomerIDsRaw, r.CustomerIDs},
		{&r.HostIDsRaw, r.HostIDs},
		{&r.CheckIDsRaw, r.CheckIDs},
		{&r.TagsRaw, r.Tags},
		{&r.RecipientsRaw, r.Recipients},
	} {
		data, err := utils.Json.Marshal(pair.src)
		if err != nil {
			return err
		}
		*pair.dst = string(data)
	}
	return nil
}

func (r *NotificationRule) AfterFind(tx *gorm.DB) error {
	r.ResolveScope()
	return nil
}

// ResolveScope parses the scope blobs. Malformed blobs fail closed: the
// rule is flagged and Matches rejects every event.
func (r *NotificationRule) ResolveScope() {
	var err error
	r.scopeBroken = false
	if r.CustomerIDs, err = utils.GjsonParseUint64Array(r.CustomerIDsRaw); err != nil {
		r.scopeBroken = true
	}
	if r.HostIDs, err = utils.GjsonParseUint64Array(r.HostIDsRaw); err != nil {
		r.scopeBroken = true
	}
	if r.CheckIDs, err = utils.GjsonParseUint64Array(r.CheckIDsRaw); err != nil {
		r.scopeBroken = true
	}
	if r.Tags, err = utils.GjsonParseStringArray(r.TagsRaw); err != nil {
		r.scopeBroken = true
	}
	if r.Recipients, err = utils.GjsonParseStringArray(r.RecipientsRaw); err != nil {
		r.scopeBroken = true
	}
}

// ScopeBroken reports whether any scope blob failed to parse.
func (r *NotificationRule) ScopeBroken() bool {
	return r.scopeBroken
}

// MatchesSeverity applies the minimum-severity filter.
func (r *NotificationRule) MatchesSeverity(severity uint8) bool {
	if r.MinimumSeverity == nil {
		return true
	}
	return severity <= *r.MinimumSeverity
}

// MatchesScope applies the customer/host/check/tag filters; empty lists
// match everything.
func (r *NotificationRule) MatchesScope(ev *Event) bool {
	if r.scopeBroken {
		return false
	}
	if len(r.CustomerIDs) > 0 && !containsUint64(r.CustomerIDs, ev.CustomerID) {
		return false
	}
	if len(r.HostIDs) > 0 && !containsUint64(r.HostIDs, ev.HostID) {
		return false
	}
	if len(r.CheckIDs) > 0 && !containsUint64(r.CheckIDs, ev.CheckID) {
		return false
	}
	if len(r.Tags) > 0 && !anyTagMatch(r.Tags, ev.Tags) {
		return false
	}
	return true
}

// IsWithinWorkingHours applies the timezone-aware day/time window. Critical
// events pass regardless when the rule allows bypass. A broken timezone or
// time format fails open, matching how operators expect a misconfigured
// window to behave (the severity and scope filters still apply).
func (r *NotificationRule) IsWithinWorkingHours(now time.Time, severity uint8) bool {
	if !r.OnlyDuringWorkingHours {
		return true
	}
	if r.CriticalBypass && severity == SeverityCritical {
		return true
	}

	tz := r.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return true
	}
	local := now.In(loc)

	if r.WorkingDays != "" {
		dayOK := false
		for _, d := range strings.Split(r.WorkingDays, ",") {
			if n, err := strconv.Atoi(strings.TrimSpace(d)); err == nil && n == int(local.Weekday()) {
				dayOK = true
				break
			}
		}
		if !dayOK {
			return false
		}
	}

	if r.WorkingHoursStart != "" && r.WorkingHoursEnd != "" {
		start, err1 := parseClock(r.WorkingHoursStart)
		end, err2 := parseClock(r.WorkingHoursEnd)
		if err1 != nil || err2 != nil {
			return true
		}
		cur := local.Hour()*60 + local.Minute()
		return cur >= start && cur <= end
	}

	return true
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

func containsUint64(list []uint64, v uint64) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func anyTagMatch(ruleTags, evTags []string) bool {
	for _, rt := range ruleTags {
		for _, et := range evTags {
			if rt == et {
				return true
			}
		}
	}
	return false
}
