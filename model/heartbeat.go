package model

import "time"

// Agent heartbeat wire shapes.

type HeartbeatSystem struct {
	Hostname      string  `json:"hostname"`
	OsType        string  `json:"osType"`
	OsVersion     string  `json:"osVersion"`
	CPUPercent    float64 `json:"cpuPercent"`
	RAMPercent    float64 `json:"ramPercent"`
	RAMUsedMB     uint64  `json:"ramUsedMB"`
	RAMTotalMB    uint64  `json:"ramTotalMB"`
	UptimeSeconds uint64  `json:"uptimeSeconds"`
}

type HeartbeatDisk struct {
	Name        string  `json:"name"`
	TotalGB     float64 `json:"totalGB"`
	UsedGB      float64 `json:"usedGB"`
	UsedPercent float64 `json:"usedPercent"`
	MountPoint  string  `json:"mountPoint"`
}

type HeartbeatService struct {
	Name        string            `json:"name"`
	DisplayName string            `json:"displayName"`
	Type        string            `json:"type"` // systemd_unit, windows_service, docker_container
	Status      string            `json:"status"`
	Config      map[string]string `json:"config,omitempty"`
}

type HeartbeatNetwork struct {
	PrimaryIP string `json:"primaryIP"`
	PublicIP  string `json:"publicIP"`
}

type HeartbeatRequest struct {
	Timestamp    time.Time          `json:"timestamp"`
	System       HeartbeatSystem    `json:"system"`
	Disks        []HeartbeatDisk    `json:"disks"`
	Services     []HeartbeatService `json:"services"`
	Network      *HeartbeatNetwork  `json:"network,omitempty"`
	AgentVersion string             `json:"agentVersion"`
}

type AgentCommand struct {
	CommandType string    `json:"commandType"`
	Payload     string    `json:"payload,omitempty"`
	IssuedAt    time.Time `json:"issuedAt"`
}

type HeartbeatResponse struct {
	Success     bool           `json:"success"`
	HostID      uint64         `json:"hostId"`
	NextCheckIn int            `json:"nextCheckIn"` // seconds
	Commands    []AgentCommand `json:"commands"`
	Message     string         `json:"message,omitempty"`
}
