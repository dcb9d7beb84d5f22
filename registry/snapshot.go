package registry

import (
	"time"

	"drone-relay/status"
	"drone-relay/telemetry"
)

// Relay 是中继的只读快照。
type Relay struct {
	Name         string    `json:"name"`
	RegisteredAt time.Time `json:"registered_at"`
	// LastHeartbeatAt 在首次心跳前为零值。
	LastHeartbeatAt time.Time `json:"last_heartbeat_at"`
	Drones          []Drone   `json:"drones"`
}

// Drone 是无人机的只读快照。
type Drone struct {
	Name       string               `json:"name"`
	Relay      string               `json:"parent"`
	VideoPort  int                  `json:"video_port"`
	StatusPort int                  `json:"status_port"`
	State      status.DroneState    `json:"state"`
	Command    [4]int               `json:"cmd"`
	Telemetry  map[string]string    `json:"status_information"`
	SessionID  string               `json:"session_id"`
	Session    status.SessionStatus `json:"video_session"`
	Peers      int                  `json:"video_peers"`
	AddedAt    time.Time            `json:"added_at"`
}

func droneSnapshot(d *droneRecord) Drone {
	out := Drone{
		Name:       d.name,
		Relay:      d.relay,
		VideoPort:  d.videoPort,
		StatusPort: d.statusPort,
		State:      d.state,
		Command:    d.command,
		Telemetry:  telemetry.Clone(d.telemetry),
		Session:    status.SessionClosed,
		AddedAt:    d.addedAt,
	}
	if d.session != nil {
		out.SessionID = d.session.ID()
		out.Session = d.session.Status()
		out.Peers = len(d.session.Peers())
	}
	return out
}
