package control

import "drone-relay/registry"

type RelayIdentityRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type RelayNameRequest struct {
	Name string `json:"name"`
}

// DroneRequest 标识一架无人机：name 为无人机名，parent 为所属中继名。
type DroneRequest struct {
	Name   string `json:"name"`
	Parent string `json:"parent"`
}

type NewDroneRequest struct {
	Name       string `json:"name"`
	Parent     string `json:"parent"`
	StatusPort int    `json:"status_port,omitempty"`
}

type StatusInformationRequest struct {
	Name              string `json:"name"`
	Parent            string `json:"parent"`
	StatusInformation string `json:"status_information"`
}

type CommandRequest struct {
	RelayName string `json:"relay_name"`
	DroneName string `json:"drone_name"`
	Cmd       []int  `json:"cmd"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Code  int    `json:"code"`
	Error string `json:"error"`
}

type RelayResponse struct {
	Message string         `json:"message"`
	Relay   registry.Relay `json:"relay"`
}

type DronesResponse struct {
	Message string           `json:"message"`
	Drones  []registry.Drone `json:"drones"`
}

type NewDroneResponse struct {
	Message    string `json:"message"`
	VideoPort  int    `json:"video_port"`
	StatusPort int    `json:"status_port"`
	SessionID  string `json:"session_id"`
}

type CommandResponse struct {
	Message string `json:"message"`
	Cmd     [4]int `json:"cmd"`
}

type DroneResponse struct {
	Message string         `json:"message"`
	Drone   registry.Drone `json:"drone"`
}

type FleetResponse struct {
	Message string           `json:"message"`
	Relays  []registry.Relay `json:"relays"`
}

type PortStateKindPayload struct {
	Total         int   `json:"total"`
	Idle          int   `json:"idle"`
	Occupied      int   `json:"occupied"`
	Blocked       int   `json:"blocked"`
	OccupiedPorts []int `json:"occupied_ports,omitempty"`
	BlockedPorts  []int `json:"blocked_ports,omitempty"`
}

// SessionPayload 是单个视频转发会话的实时码率。
type SessionPayload struct {
	Port       int     `json:"port"`
	SessionID  string  `json:"session_id"`
	Relay      string  `json:"relay"`
	Drone      string  `json:"drone"`
	Status     string  `json:"status"`
	Peers      int     `json:"peers"`
	MbpsIn     float64 `json:"mbps_in"`
	MbpsOut    float64 `json:"mbps_out"`
	Dropped    int64   `json:"dropped"`
	Oversized  int64   `json:"oversized"`
	SendErrors int64   `json:"send_errors"`
}

type HealthStatusPayload struct {
	Status          string               `json:"status"`
	StartedAtUnixMs int64                `json:"started_at_unix_ms"`
	NowUnixMs       int64                `json:"now_unix_ms"`
	SampledAtUnixMs int64                `json:"sampled_at_unix_ms"`
	Relays          int                  `json:"relays"`
	Drones          int                  `json:"drones"`
	CPUPercent      float64              `json:"cpu_percent"`
	MemMB           float64              `json:"mem_mb"`
	VideoPorts      PortStateKindPayload `json:"video_ports"`
	Sessions        []SessionPayload     `json:"sessions"`
}
