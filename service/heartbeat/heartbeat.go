package heartbeat

import (
	"errors"
	"hash/fnv"
	"log"
	"sync"
	"time"

	"github.com/vigilohq/vigilo/model"
	"github.com/vigilohq/vigilo/pkg/utils"
	"github.com/vigilohq/vigilo/service/status"
	"github.com/vigilohq/vigilo/service/store"
)

var ErrUnknownAPIKey = errors.New("unknown api key")

// Service ingests agent heartbeats and watches for hosts that stop sending
// them. The host registry is an in-memory map keyed by API key; updates from
// the API swap entries without a restart.
type Service struct {
	store  store.Store
	status *status.Engine

	nextCheckInSeconds int

	mu     sync.RWMutex
	byKey  map[string]*model.Host
	byID   map[uint64]*model.Host
	queued map[uint64][]model.AgentCommand
}

func NewService(st store.Store, statusEngine *status.Engine, nextCheckInSeconds int) *Service {
	if nextCheckInSeconds <= 0 {
		nextCheckInSeconds = 60
	}
	return &Service{
		store:              st,
		status:             statusEngine,
		nextCheckInSeconds: nextCheckInSeconds,
		byKey:              make(map[string]*model.Host),
		byID:               make(map[uint64]*model.Host),
		queued:             make(map[uint64][]model.AgentCommand),
	}
}

// LoadHosts primes the registry from the store.
func (s *Service) LoadHosts() error {
	hosts, err := s.store.ListHosts()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey = make(map[string]*model.Host, len(hosts))
	s.byID = make(map[uint64]*model.Host, len(hosts))
	for _, h := range hosts {
		s.byKey[h.APIKey] = h
		s.byID[h.ID] = h
	}
	return nil
}

func (s *Service) OnHostUpdate(h *model.Host) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byID[h.ID]; ok && old.APIKey != h.APIKey {
		delete(s.byKey, old.APIKey)
	}
	s.byKey[h.APIKey] = h
	s.byID[h.ID] = h
}

func (s *Service) OnHostDelete(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.byID[id]; ok {
		delete(s.byKey, h.APIKey)
		delete(s.byID, id)
		delete(s.queued, id)
	}
}

func (s *Service) Host(id uint64) *model.Host {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[id]
}

// EnqueueCommand queues an agent command delivered with the next heartbeat
// response.
func (s *Service) EnqueueCommand(hostID uint64, cmd model.AgentCommand) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queued[hostID] = append(s.queued[hostID], cmd)
}

// Ingest applies one heartbeat: denormalizes live metrics onto the host,
// appends a metric sample, folds threshold and per-service health into the
// status engine, and returns the agent's marching orders.
func (s *Service) Ingest(apiKey string, req *model.HeartbeatRequest, now time.Time) (*model.HeartbeatResponse, error) {
	s.mu.Lock()
	h, ok := s.byKey[apiKey]
	if !ok {
		s.mu.Unlock()
		return nil, ErrUnknownAPIKey
	}

	h.OsType = req.System.OsType
	h.OsVersion = req.System.OsVersion
	h.AgentVersion = req.AgentVersion
	h.CPUPercent = req.System.CPUPercent
	h.RAMPercent = req.System.RAMPercent
	h.RAMUsedMB = req.System.RAMUsedMB
	h.RAMTotalMB = req.System.RAMTotalMB
	h.UptimeSeconds = req.System.UptimeSeconds
	if h.RAMPercent == 0 && h.RAMTotalMB > 0 {
		h.RAMPercent = float64(h.RAMUsedMB) / float64(h.RAMTotalMB) * 100
	}
	if req.Network != nil {
		h.PrimaryIP = req.Network.PrimaryIP
		h.PublicIP = req.Network.PublicIP
	}
	at := now
	h.LastSeenAt = &at
	if data, err := utils.Json.Marshal(req.Disks); err == nil {
		h.DisksRaw = string(data)
	}
	if data, err := utils.Json.Marshal(req.Services); err == nil {
		h.ServicesRaw = string(data)
	}

	commands := s.queued[h.ID]
	delete(s.queued, h.ID)
	s.mu.Unlock()

	if err := s.store.SaveHost(h); err != nil {
		log.Println("VIGILO>> heartbeat: persist host", h.ID, "failed:", err)
	}
	metric := &model.HostMetric{
		HostID:     h.ID,
		CPUPercent: h.CPUPercent,
		RAMPercent: h.RAMPercent,
		RAMUsedMB:  h.RAMUsedMB,
		DisksRaw:   h.DisksRaw,
		RecordedAt: now,
	}
	if err := s.store.SaveHostMetric(metric); err != nil {
		log.Println("VIGILO>> heartbeat: persist metric for host", h.ID, "failed:", err)
	}

	outcome := &model.ProbeOutcome{Status: s.thresholdStatus(h, req)}
	s.status.Apply(s.hostSubject(h, now), outcome, now)
	s.applyServices(h, req.Services, now)

	return &model.HeartbeatResponse{
		Success:     true,
		HostID:      h.ID,
		NextCheckIn: s.nextCheckInSeconds,
		Commands:    commands,
	}, nil
}

// thresholdStatus grades a heartbeat against the host's thresholds: any
// metric past critical is Degraded, past warning is Warning, else Up.
func (s *Service) thresholdStatus(h *model.Host, req *model.HeartbeatRequest) uint8 {
	worstDisk := 0.0
	for _, d := range req.Disks {
		if d.UsedPercent > worstDisk {
			worstDisk = d.UsedPercent
		}
	}
	switch {
	case past(h.CPUPercent, h.CPUCritical) || past(h.RAMPercent, h.RAMCritical) || past(worstDisk, h.DiskCritical):
		return model.StatusDegraded
	case past(h.CPUPercent, h.CPUWarning) || past(h.RAMPercent, h.RAMWarning) || past(worstDisk, h.DiskWarning):
		return model.StatusWarning
	default:
		return model.StatusUp
	}
}

func past(value, threshold float64) bool {
	return threshold > 0 && value >= threshold
}

// applyServices folds each reported service into its own status record so a
// stopped unit raises a service_down event independent of the host state.
func (s *Service) applyServices(h *model.Host, services []model.HeartbeatService, now time.Time) {
	for _, svc := range services {
		st := model.StatusUp
		errMsg := ""
		if !serviceRunning(svc.Status) {
			st = model.StatusDown
			errMsg = svc.Name + " is " + svc.Status
		}
		sub := &status.Subject{
			Kind:             model.SourceService,
			ID:               serviceID(h.ID, svc.Name),
			Name:             h.Name + "/" + svc.Name,
			CustomerID:       h.CustomerID,
			HostID:           h.ID,
			Tags:             h.Tags,
			FailThreshold:    2,
			RecoverThreshold: 1,
			Severity:         model.SeverityMedium,
			Alert:            h.ShouldAlert(now),
		}
		s.status.Apply(sub, &model.ProbeOutcome{Status: uint8(st), Error: errMsg}, now)
	}
}

func serviceRunning(state string) bool {
	switch state {
	case "running", "active", "up", "started":
		return true
	}
	return false
}

// serviceID derives a stable id for a (host, service name) pair.
func serviceID(hostID uint64, name string) uint64 {
	hash := fnv.New64a()
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(hostID >> (8 * i))
	}
	hash.Write(buf[:])
	hash.Write([]byte(name))
	return hash.Sum64()
}

func (s *Service) hostSubject(h *model.Host, now time.Time) *status.Subject {
	return &status.Subject{
		Kind:             model.SourceHost,
		ID:               h.ID,
		Name:             h.Name,
		CustomerID:       h.CustomerID,
		HostID:           h.ID,
		Tags:             h.Tags,
		FailThreshold:    1,
		RecoverThreshold: 1,
		Severity:         model.SeverityCritical,
		Alert:            h.ShouldAlert(now),
	}
}

// LivenessSweep marks hosts whose heartbeat deadline passed as Down. The
// delay already encodes the grace period, so one overdue sweep confirms.
func (s *Service) LivenessSweep(now time.Time) {
	s.mu.RLock()
	hosts := make([]*model.Host, 0, len(s.byID))
	for _, h := range s.byID {
		hosts = append(hosts, h)
	}
	s.mu.RUnlock()

	for _, h := range hosts {
		if !h.MonitoringEnabled || !h.HeartbeatOverdue(now) {
			continue
		}
		outcome := &model.ProbeOutcome{
			Status: model.StatusDown,
			Error:  "no heartbeat since " + h.LastSeenAt.Format("2006-01-02 15:04:05"),
		}
		s.status.Apply(s.hostSubject(h, now), outcome, now)
	}
}

// MaintenanceSweep clears maintenance windows that have ended so the next
// transition alerts again.
func (s *Service) MaintenanceSweep(now time.Time) {
	s.mu.RLock()
	hosts := make([]*model.Host, 0, len(s.byID))
	for _, h := range s.byID {
		hosts = append(hosts, h)
	}
	s.mu.RUnlock()

	for _, h := range hosts {
		if h.MaintenanceEndAt == nil || now.Before(*h.MaintenanceEndAt) {
			continue
		}
		h.MaintenanceStartAt = nil
		h.MaintenanceEndAt = nil
		h.MaintenanceReason = ""
		if err := s.store.SaveHost(h); err != nil {
			log.Println("VIGILO>> heartbeat: clear maintenance for host", h.ID, "failed:", err)
		} else {
			log.Println("VIGILO>> heartbeat: maintenance window ended for host", h.Name)
		}
	}
}
