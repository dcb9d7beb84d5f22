package control

import (
	"fmt"
	"net/http"
	"time"

	derrors "drone-relay/errors"
)

func (s *Server) handleHandshake(w http.ResponseWriter, r *http.Request) {
	var req RelayIdentityRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	rel, err := s.orch.HandshakeRelay(r.Context(), req.Name, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RelayResponse{Message: fmt.Sprintf("%s registered", rel.Name), Relay: rel})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req RelayNameRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	rel, err := s.orch.Heartbeat(req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DronesResponse{Message: "heartbeat recorded", Drones: rel.Drones})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	var req RelayNameRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.orch.DisconnectRelay(req.Name); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: fmt.Sprintf("%s disconnected", req.Name)})
}

func (s *Server) handleNewDrone(w http.ResponseWriter, r *http.Request) {
	var req NewDroneRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.orch.AddDrone(req.Parent, req.Name, req.StatusPort)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewDroneResponse{
		Message:    fmt.Sprintf("%s added to %s", req.Name, req.Parent),
		VideoPort:  p.VideoPort,
		StatusPort: p.StatusPort,
		SessionID:  p.SessionID,
	})
}

func (s *Server) handleListDrones(w http.ResponseWriter, r *http.Request) {
	var req RelayNameRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	drones, err := s.orch.ListDrones(req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DronesResponse{Message: fmt.Sprintf("%d drones", len(drones)), Drones: drones})
}

func (s *Server) handleDroneDisconnected(w http.ResponseWriter, r *http.Request) {
	var req DroneRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.orch.RemoveDrone(req.Parent, req.Name); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: fmt.Sprintf("%s removed from %s", req.Name, req.Parent)})
}

// droneAction 包装只需要 {name, parent} 且无返回数据的无人机操作。
func (s *Server) droneAction(fn func(relay, drone string) error, message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DroneRequest
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := fn(req.Parent, req.Name); err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageResponse{Message: message})
	}
}

func (s *Server) handleGetCommand(w http.ResponseWriter, r *http.Request) {
	var req DroneRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	cmd, err := s.orch.GetCommand(req.Parent, req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CommandResponse{Message: "ok", Cmd: cmd})
}

func (s *Server) handleStatusInformation(w http.ResponseWriter, r *http.Request) {
	var req StatusInformationRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.orch.SetTelemetry(req.Parent, req.Name, req.StatusInformation); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "status information updated"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req RelayIdentityRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.orch.PilotLogin(r.Context(), req.Name, req.Password); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "login successful"})
}

func (s *Server) handleFleet(w http.ResponseWriter, r *http.Request) {
	relays := s.orch.Snapshot()
	writeJSON(w, http.StatusOK, FleetResponse{Message: fmt.Sprintf("%d relays", len(relays)), Relays: relays})
}

func (s *Server) handleNewCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(req.Cmd) != 4 {
		s.writeError(w, r, derrors.New(derrors.CodeBadRequest, fmt.Sprintf("cmd must have 4 elements, got %d", len(req.Cmd))))
		return
	}
	cmd := [4]int{req.Cmd[0], req.Cmd[1], req.Cmd[2], req.Cmd[3]}
	if err := s.orch.SetCommand(req.RelayName, req.DroneName, cmd); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CommandResponse{Message: "command accepted", Cmd: cmd})
}

func (s *Server) handleDroneStatus(w http.ResponseWriter, r *http.Request) {
	var req DroneRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	d, err := s.orch.Drone(req.Parent, req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DroneResponse{Message: string(d.State), Drone: d})
}

// handleStatus 返回健康状态：网关状态、中继/无人机数量、视频端口池与最近一次码率采样。
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	relays := s.orch.Snapshot()
	drones := 0
	for _, rel := range relays {
		drones += len(rel.Drones)
	}
	snap := s.orch.Registry().VideoPool().Snapshot()

	s.mu.RLock()
	hs := HealthStatusPayload{
		Status:          string(s.gwStatus),
		StartedAtUnixMs: s.started.UnixMilli(),
		NowUnixMs:       time.Now().UnixMilli(),
		Relays:          len(relays),
		Drones:          drones,
		CPUPercent:      s.cpu,
		MemMB:           s.sampler.MemMB(),
		VideoPorts: PortStateKindPayload{
			Total:         snap.Total,
			Idle:          snap.Idle,
			Occupied:      snap.Occupied,
			Blocked:       snap.Blocked,
			OccupiedPorts: snap.OccupiedPorts,
			BlockedPorts:  snap.BlockedPorts,
		},
		Sessions: make([]SessionPayload, 0, len(s.lastVideo)),
	}
	if !s.sampledAt.IsZero() {
		hs.SampledAtUnixMs = s.sampledAt.UnixMilli()
	}
	for _, m := range s.lastVideo {
		hs.Sessions = append(hs.Sessions, SessionPayload{
			Port:       m.Port,
			SessionID:  m.SessionID,
			Relay:      m.Relay,
			Drone:      m.Drone,
			Status:     string(m.Status),
			Peers:      m.Peers,
			MbpsIn:     m.MbpsIn,
			MbpsOut:    m.MbpsOut,
			Dropped:    m.Totals.Dropped,
			Oversized:  m.Totals.Oversized,
			SendErrors: m.Totals.SendErrors,
		})
	}
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, hs)
}
