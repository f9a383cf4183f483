package model

import (
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

type Config struct {
	Debug bool   `mapstructure:"debug"`
	HTTP  struct {
		Listen string `mapstructure:"listen"`
	} `mapstructure:"http"`
	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`
	Location string `mapstructure:"location"` // IANA timezone for crons and working-hours defaults

	Scheduler struct {
		TickSeconds   int     `mapstructure:"tick_seconds"`
		MaxWorkers    int64   `mapstructure:"max_workers"`
		JitterPercent float64 `mapstructure:"jitter_percent"`
	} `mapstructure:"scheduler"`

	Incident struct {
		ResponseSLAMinutes   int `mapstructure:"response_sla_minutes"`
		ResolutionSLAMinutes int `mapstructure:"resolution_sla_minutes"`
	} `mapstructure:"incident"`

	Notification struct {
		MaxRetries       int `mapstructure:"max_retries"`
		RetryBaseSeconds int `mapstructure:"retry_base_seconds"`
		RetryMaxSeconds  int `mapstructure:"retry_max_seconds"`
	} `mapstructure:"notification"`

	Heartbeat struct {
		NextCheckInSeconds int `mapstructure:"next_check_in_seconds"`
	} `mapstructure:"heartbeat"`

	v *viper.Viper
}

// Read loads the config file and keeps it hot-reloaded on change.
func (c *Config) Read(path string) error {
	c.v = viper.New()
	c.v.SetConfigFile(path)
	if err := c.v.ReadInConfig(); err != nil {
		return err
	}
	if err := c.v.Unmarshal(c); err != nil {
		return err
	}
	c.applyDefaults()

	c.v.OnConfigChange(func(in fsnotify.Event) {
		if err := c.v.Unmarshal(c); err == nil {
			c.applyDefaults()
		}
	})
	go c.v.WatchConfig()

	return nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Listen == "" {
		c.HTTP.Listen = ":8008"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/vigilo.db"
	}
	if c.Location == "" {
		c.Location = "Europe/Istanbul"
	}
	if c.Scheduler.TickSeconds <= 0 {
		c.Scheduler.TickSeconds = 1
	}
	if c.Scheduler.MaxWorkers <= 0 {
		c.Scheduler.MaxWorkers = 32
	}
	if c.Scheduler.JitterPercent <= 0 || c.Scheduler.JitterPercent > 50 {
		c.Scheduler.JitterPercent = 10
	}
	if c.Incident.ResponseSLAMinutes <= 0 {
		c.Incident.ResponseSLAMinutes = 15
	}
	if c.Incident.ResolutionSLAMinutes <= 0 {
		c.Incident.ResolutionSLAMinutes = 240
	}
	if c.Notification.MaxRetries <= 0 {
		c.Notification.MaxRetries = 5
	}
	if c.Notification.RetryBaseSeconds <= 0 {
		c.Notification.RetryBaseSeconds = 60
	}
	if c.Notification.RetryMaxSeconds <= 0 {
		c.Notification.RetryMaxSeconds = 1800
	}
	if c.Heartbeat.NextCheckInSeconds <= 0 {
		c.Heartbeat.NextCheckInSeconds = 60
	}
}
