package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-uuid"
	"github.com/jinzhu/copier"

	"github.com/vigilohq/vigilo/model"
	"github.com/vigilohq/vigilo/service/heartbeat"
	"github.com/vigilohq/vigilo/service/incident"
)

func (a *app) routes() *gin.Engine {
	if !a.conf.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	v1 := r.Group("api/v1")
	{
		v1.POST("/agent/heartbeat", a.apiHeartbeat)

		v1.GET("/hosts", a.apiListHosts)
		v1.POST("/hosts", a.apiCreateHost)

		v1.POST("/incidents/:id/acknowledge", a.apiAcknowledgeIncident)
		v1.POST("/incidents/:id/close", a.apiCloseIncident)

		v1.POST("/reload/checks", a.apiReload(a.reloadChecks))
		v1.POST("/reload/hosts", a.apiReload(a.heartbeat.LoadHosts))
		v1.POST("/reload/rules", a.apiReload(a.rules.LoadRules))
		v1.POST("/reload/channels", a.apiReload(a.dispatcher.LoadChannels))
	}
	return r
}

func (a *app) apiHeartbeat(c *gin.Context) {
	apiKey := c.GetHeader("X-API-Key")
	if apiKey == "" {
		c.JSON(http.StatusUnauthorized, model.Response{Code: http.StatusUnauthorized, Message: "missing api key"})
		return
	}
	var req model.HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.Response{Code: http.StatusBadRequest, Message: err.Error()})
		return
	}
	resp, err := a.heartbeat.Ingest(apiKey, &req, time.Now())
	if err != nil {
		if errors.Is(err, heartbeat.ErrUnknownAPIKey) {
			c.JSON(http.StatusUnauthorized, model.Response{Code: http.StatusUnauthorized, Message: "unknown api key"})
			return
		}
		c.JSON(http.StatusInternalServerError, model.Response{Code: http.StatusInternalServerError, Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// hostView is the public host shape; the API key never leaves the server.
type hostView struct {
	ID            uint64     `json:"id"`
	Name          string     `json:"name"`
	CustomerID    uint64     `json:"customer_id"`
	OsType        string     `json:"os_type"`
	OsVersion     string     `json:"os_version"`
	AgentVersion  string     `json:"agent_version"`
	CPUPercent    float64    `json:"cpu_percent"`
	RAMPercent    float64    `json:"ram_percent"`
	UptimeSeconds uint64     `json:"uptime_seconds"`
	LastSeenAt    *time.Time `json:"last_seen_at"`
	Tags          []string   `json:"tags"`
}

func (a *app) apiListHosts(c *gin.Context) {
	hosts, err := a.store.ListHosts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.Response{Code: http.StatusInternalServerError, Message: err.Error()})
		return
	}
	views := make([]hostView, 0, len(hosts))
	for _, h := range hosts {
		var v hostView
		if err := copier.Copy(&v, h); err != nil {
			continue
		}
		views = append(views, v)
	}
	c.JSON(http.StatusOK, model.Response{Code: http.StatusOK, Result: views})
}

type createHostRequest struct {
	Name       string   `json:"name" binding:"required"`
	CustomerID uint64   `json:"customer_id"`
	Tags       []string `json:"tags"`
}

func (a *app) apiCreateHost(c *gin.Context) {
	var req createHostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.Response{Code: http.StatusBadRequest, Message: err.Error()})
		return
	}
	apiKey, err := uuid.GenerateUUID()
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.Response{Code: http.StatusInternalServerError, Message: err.Error()})
		return
	}
	h := &model.Host{
		Name:              req.Name,
		CustomerID:        req.CustomerID,
		Tags:              req.Tags,
		APIKey:            apiKey,
		MonitoringEnabled: true,
		AlertOnDown:       true,
		AlertDelaySeconds: 90,
	}
	if err := a.store.SaveHost(h); err != nil {
		c.JSON(http.StatusInternalServerError, model.Response{Code: http.StatusInternalServerError, Message: err.Error()})
		return
	}
	a.heartbeat.OnHostUpdate(h)
	// the key is shown exactly once, at registration
	c.JSON(http.StatusOK, model.Response{Code: http.StatusOK, Result: gin.H{
		"id":      h.ID,
		"api_key": apiKey,
	}})
}

type ackRequest struct {
	UserID uint64 `json:"user_id" binding:"required"`
}

func (a *app) apiAcknowledgeIncident(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, model.Response{Code: http.StatusBadRequest, Message: "bad incident id"})
		return
	}
	var req ackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.Response{Code: http.StatusBadRequest, Message: err.Error()})
		return
	}
	inc, err := a.correlator.Acknowledge(id, req.UserID, time.Now())
	if err != nil {
		if errors.Is(err, incident.ErrNotFound) {
			c.JSON(http.StatusNotFound, model.Response{Code: http.StatusNotFound, Message: "incident not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, model.Response{Code: http.StatusInternalServerError, Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, model.Response{Code: http.StatusOK, Result: inc})
}

type closeRequest struct {
	UserID               uint64 `json:"user_id" binding:"required"`
	RootCauseCategory    string `json:"root_cause_category"`
	RootCauseDescription string `json:"root_cause_description"`
	ResolutionSteps      string `json:"resolution_steps"`
}

func (a *app) apiCloseIncident(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, model.Response{Code: http.StatusBadRequest, Message: "bad incident id"})
		return
	}
	var req closeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.Response{Code: http.StatusBadRequest, Message: err.Error()})
		return
	}
	inc, err := a.correlator.Close(id, req.UserID,
		req.RootCauseCategory, req.RootCauseDescription, req.ResolutionSteps, time.Now())
	if err != nil {
		if errors.Is(err, incident.ErrNotFound) {
			c.JSON(http.StatusNotFound, model.Response{Code: http.StatusNotFound, Message: "incident not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, model.Response{Code: http.StatusInternalServerError, Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, model.Response{Code: http.StatusOK, Result: inc})
}

func (a *app) apiReload(reload func() error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := reload(); err != nil {
			c.JSON(http.StatusInternalServerError, model.Response{Code: http.StatusInternalServerError, Message: err.Error()})
			return
		}
		c.JSON(http.StatusOK, model.Response{Code: http.StatusOK, Message: "reloaded"})
	}
}
