package status

import (
	"encoding/json"
	"fmt"
	"strings"
)

type GatewayStatus string

const (
	GatewayStarting GatewayStatus = "Starting"
	GatewayRunning  GatewayStatus = "Running"
	GatewayStopping GatewayStatus = "Stopping"
	GatewayStopped  GatewayStatus = "Stopped"
)

// String 返回网关状态文本。
func (s GatewayStatus) String() string { return string(s) }

type DroneState string

const (
	DroneGrounded         DroneState = "Grounded"
	DroneTakeoffRequested DroneState = "TakeoffRequested"
	DroneAirborne         DroneState = "Airborne"
	DroneLandingRequested DroneState = "LandingRequested"
)

// String 返回无人机飞行状态文本。
func (s DroneState) String() string { return string(s) }

// Airborne 判断无人机是否处于空中（含等待降落）。
func (s DroneState) Airborne() bool { return s == DroneAirborne || s == DroneLandingRequested }

// ParseDroneState 将文本解析为 DroneState。
// 参数：
// - v: 状态文本（Grounded/TakeoffRequested/Airborne/LandingRequested）
// 返回：
// - DroneState: 解析结果
// - error: 未知状态时返回错误
func ParseDroneState(v string) (DroneState, error) {
	switch strings.TrimSpace(v) {
	case string(DroneGrounded):
		return DroneGrounded, nil
	case string(DroneTakeoffRequested):
		return DroneTakeoffRequested, nil
	case string(DroneAirborne):
		return DroneAirborne, nil
	case string(DroneLandingRequested):
		return DroneLandingRequested, nil
	default:
		return "", fmt.Errorf("unknown DroneState: %q", v)
	}
}

// MarshalJSON 将 DroneState 编码为 JSON 字符串。
func (s DroneState) MarshalJSON() ([]byte, error) { return json.Marshal(string(s)) }

// UnmarshalJSON 从 JSON 字符串解码为 DroneState。
func (s *DroneState) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	parsed, err := ParseDroneState(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

type PortStatus string

const (
	PortIdle     PortStatus = "Idle"
	PortOccupied PortStatus = "Occupied"
	PortBlocked  PortStatus = "Blocked"
)

// String 返回端口状态文本。
func (s PortStatus) String() string { return string(s) }

// ParsePortStatus 将文本解析为 PortStatus。
// 参数：
// - v: 状态文本（Idle/Occupied/Blocked）
// 返回：
// - PortStatus: 解析结果
// - error: 未知状态时返回错误
func ParsePortStatus(v string) (PortStatus, error) {
	switch strings.TrimSpace(v) {
	case string(PortIdle):
		return PortIdle, nil
	case string(PortOccupied):
		return PortOccupied, nil
	case string(PortBlocked):
		return PortBlocked, nil
	default:
		return "", fmt.Errorf("unknown PortStatus: %q", v)
	}
}

// MarshalJSON 将 PortStatus 编码为 JSON 字符串。
func (s PortStatus) MarshalJSON() ([]byte, error) { return json.Marshal(string(s)) }

// UnmarshalJSON 从 JSON 字符串解码为 PortStatus。
func (s *PortStatus) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	parsed, err := ParsePortStatus(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

type SessionStatus string

const (
	// SessionWaiting 已绑定端口，尚未凑齐两个对端。
	SessionWaiting    SessionStatus = "Waiting"
	SessionForwarding SessionStatus = "Forwarding"
	SessionClosed     SessionStatus = "Closed"
)

// String 返回视频转发会话状态文本。
func (s SessionStatus) String() string { return string(s) }

// ParseSessionStatus 将文本解析为 SessionStatus。
func ParseSessionStatus(v string) (SessionStatus, error) {
	switch strings.TrimSpace(v) {
	case string(SessionWaiting):
		return SessionWaiting, nil
	case string(SessionForwarding):
		return SessionForwarding, nil
	case string(SessionClosed):
		return SessionClosed, nil
	default:
		return "", fmt.Errorf("unknown SessionStatus: %q", v)
	}
}

// MarshalJSON 将 SessionStatus 编码为 JSON 字符串。
func (s SessionStatus) MarshalJSON() ([]byte, error) { return json.Marshal(string(s)) }

// UnmarshalJSON 从 JSON 字符串解码为 SessionStatus。
func (s *SessionStatus) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	parsed, err := ParseSessionStatus(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
