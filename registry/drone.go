package registry

import (
	"errors"
	"fmt"
	"sort"
	"syscall"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	derrors "drone-relay/errors"
	"drone-relay/ports"
	"drone-relay/status"
	"drone-relay/telemetry"
	"drone-relay/video"
)

// DronePorts 是无人机注册后分配到的端口。
type DronePorts struct {
	VideoPort  int    `json:"video_port"`
	StatusPort int    `json:"status_port"`
	SessionID  string `json:"session_id"`
}

// AddDrone 在中继下注册无人机：分配视频端口并启动视频转发会话。
// 端口分配与绑定在注册表锁外完成，锁内只做登记；同名无人机已存在时（中继重启抢在心跳超时之前重连，
// 或并发注册），后登记者生效，旧记录被完整拆除。
// 参数：
// - relayName: 中继名
// - droneName: 无人机名
// - statusPort: 中继上报的状态端口；<=0 时从该中继的状态端口池分配
// 返回：
// - DronePorts: 视频端口与状态端口
// - error: 中继不存在（404）、端口耗尽（503）或绑定异常（502/500）
func (r *Registry) AddDrone(relayName, droneName string, statusPort int) (DronePorts, error) {
	r.mu.Lock()
	rec, ok := r.relays[relayName]
	r.mu.Unlock()
	if !ok {
		return DronePorts{}, derrors.RelayNotFound(relayName)
	}

	d, err := r.newDrone(rec, droneName, statusPort)
	if err != nil {
		return DronePorts{}, err
	}

	r.mu.Lock()
	if cur, ok := r.relays[relayName]; !ok || cur != rec {
		r.mu.Unlock()
		r.discard(rec, d)
		return DronePorts{}, derrors.RelayNotFound(relayName)
	}
	var stale *droneRecord
	if old, ok := rec.drones[droneName]; ok {
		stale = r.detachDroneLocked(rec, old)
	}
	rec.drones[droneName] = d
	r.sessions[d.videoPort] = d.session
	d.session.Start()
	r.mu.Unlock()

	if stale != nil {
		r.logger.WithFields(logrus.Fields{"relay": relayName, "drone": droneName, "old_port": stale.videoPort, "status": "drone_replaced"}).Info("无人机重复注册，拆除旧会话")
		r.closeDrone(rec, stale)
	}

	r.logger.WithFields(logrus.Fields{
		"relay":       relayName,
		"drone":       droneName,
		"port":        d.videoPort,
		"status_port": d.statusPort,
		"sessionID":   d.session.ID(),
		"status":      "drone_added",
	}).Info("无人机注册成功")
	r.obs.DroneAdded(relayName, droneName)
	return DronePorts{VideoPort: d.videoPort, StatusPort: d.statusPort, SessionID: d.session.ID()}, nil
}

// newDrone 分配端口并绑定视频会话（不持有注册表锁）。
// 只有端口被占用（EADDRINUSE）时才阻断该端口并尝试下一个；其它绑定错误归还端口后直接返回。
func (r *Registry) newDrone(rec *relayRecord, droneName string, statusPort int) (*droneRecord, error) {
	d := &droneRecord{
		name:       droneName,
		relay:      rec.name,
		statusPort: statusPort,
		addedAt:    r.clock.Now(),
		state:      status.DroneGrounded,
		telemetry:  make(map[string]string),
	}

	if statusPort <= 0 && rec.statusPool != nil {
		a, err := rec.statusPool.Allocate(rec.name, droneName, "")
		if err != nil {
			r.exhausted(ports.KindStatus, rec.name, droneName)
			return nil, err
		}
		d.statusPort = a.Port
		d.statusOwned = true
	}
	releaseStatus := func() {
		if d.statusOwned {
			rec.statusPool.Release(d.statusPort)
		}
	}

	for {
		sessionID := uuid.NewString()
		a, err := r.opts.VideoPool.Allocate(rec.name, droneName, sessionID)
		if err != nil {
			releaseStatus()
			r.exhausted(ports.KindVideo, rec.name, droneName)
			return nil, err
		}
		sess, err := r.listen(video.Options{
			Host:            r.opts.BindHost,
			Port:            a.Port,
			SessionID:       sessionID,
			Relay:           rec.name,
			Drone:           droneName,
			MaxDatagram:     r.opts.MaxDatagram,
			PeerIdleTimeout: r.opts.PeerIdleTimeout,
		})
		switch {
		case err == nil:
			d.videoPort = a.Port
			d.session = sess
			return d, nil
		case errors.Is(err, syscall.EADDRINUSE):
			_ = r.opts.VideoPool.Block(a.Port, err.Error())
			r.logger.WithError(err).WithFields(logrus.Fields{"port": a.Port, "status": "port_blocked"}).Warn("视频端口被占用，已阻断")
		default:
			r.opts.VideoPool.Release(a.Port)
			releaseStatus()
			r.logger.WithError(err).WithFields(logrus.Fields{
				"relay":  rec.name,
				"drone":  droneName,
				"port":   a.Port,
				"status": "bind_failed",
			}).Error("视频端口绑定失败")
			if derrors.Code(err) == derrors.CodeBadRequest {
				return nil, derrors.Wrap(derrors.CodeInternal, "invalid video bind host", err)
			}
			return nil, derrors.Wrap(derrors.CodeTransientIO, fmt.Sprintf("bind video port %d", a.Port), err)
		}
	}
}

// discard 关闭一条从未登记进注册表的无人机记录并归还其端口。
func (r *Registry) discard(rec *relayRecord, d *droneRecord) {
	if err := d.session.Close(); err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{"relay": d.relay, "drone": d.name, "port": d.videoPort}).Warn("关闭视频会话失败")
	}
	r.opts.VideoPool.Release(d.videoPort)
	if d.statusOwned && rec.statusPool != nil {
		rec.statusPool.Release(d.statusPort)
	}
}

func (r *Registry) exhausted(kind ports.Kind, relay, drone string) {
	r.logger.WithFields(logrus.Fields{
		"relay":  relay,
		"drone":  drone,
		"kind":   kind,
		"status": "port_exhausted",
	}).Error("端口池已耗尽")
	r.obs.PortExhausted(kind)
}

// RemoveDrone 移除无人机：停止视频转发并归还端口。无人机已不存在时视为成功。
func (r *Registry) RemoveDrone(relayName, droneName string) error {
	r.mu.Lock()
	rec, ok := r.relays[relayName]
	if !ok {
		r.mu.Unlock()
		return derrors.RelayNotFound(relayName)
	}
	d, ok := rec.drones[droneName]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	r.detachDroneLocked(rec, d)
	r.mu.Unlock()

	r.closeDrone(rec, d)
	return nil
}

// ListDrones 返回中继下所有无人机的快照（按名称排序）。
func (r *Registry) ListDrones(relayName string) ([]Drone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.relays[relayName]
	if !ok {
		return nil, derrors.RelayNotFound(relayName)
	}
	out := make([]Drone, 0, len(rec.drones))
	for _, d := range rec.drones {
		out = append(out, droneSnapshot(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Drone 返回单架无人机的快照。
func (r *Registry) Drone(relayName, droneName string) (Drone, error) {
	var out Drone
	err := r.withDrone(relayName, droneName, func(d *droneRecord) error {
		out = droneSnapshot(d)
		return nil
	})
	return out, err
}

// withDrone 在持锁状态下先校验中继、再校验无人机，然后执行 fn。
func (r *Registry) withDrone(relayName, droneName string, fn func(d *droneRecord) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.relays[relayName]
	if !ok {
		return derrors.RelayNotFound(relayName)
	}
	d, ok := rec.drones[droneName]
	if !ok {
		return derrors.DroneNotFound(relayName, droneName)
	}
	return fn(d)
}

func (r *Registry) transition(d *droneRecord, to status.DroneState) {
	r.logger.WithFields(logrus.Fields{
		"relay":  d.relay,
		"drone":  d.name,
		"from":   d.state,
		"to":     to,
		"status": "drone_state",
	}).Info("无人机状态变更")
	d.state = to
}

// RequestTakeoff 飞手请求起飞：Grounded -> TakeoffRequested。
// 返回：
// - 208: 已有待处理的起飞请求
// - 406: 无人机已在空中
func (r *Registry) RequestTakeoff(relayName, droneName string) error {
	return r.withDrone(relayName, droneName, func(d *droneRecord) error {
		switch d.state {
		case status.DroneGrounded:
			r.transition(d, status.DroneTakeoffRequested)
			return nil
		case status.DroneTakeoffRequested:
			return derrors.New(derrors.CodeAlreadyReported, fmt.Sprintf("%s is already scheduled to takeoff", droneName))
		default:
			return derrors.New(derrors.CodeNotAcceptable, fmt.Sprintf("%s is already in the air", droneName))
		}
	})
}

// ShouldTakeoff 供中继轮询：有待处理的起飞请求时返回 nil，否则返回 425。读取不会清除请求。
func (r *Registry) ShouldTakeoff(relayName, droneName string) error {
	return r.withDrone(relayName, droneName, func(d *droneRecord) error {
		if d.state != status.DroneTakeoffRequested {
			return derrors.New(derrors.CodeTooEarly, fmt.Sprintf("%s is not scheduled to takeoff", droneName))
		}
		return nil
	})
}

// ConfirmTakeoff 中继确认起飞成功：TakeoffRequested -> Airborne，并清零指令向量。
func (r *Registry) ConfirmTakeoff(relayName, droneName string) error {
	return r.withDrone(relayName, droneName, func(d *droneRecord) error {
		switch d.state {
		case status.DroneTakeoffRequested:
			r.transition(d, status.DroneAirborne)
			d.command = [4]int{}
			return nil
		case status.DroneAirborne:
			return nil
		default:
			return derrors.New(derrors.CodeNotAcceptable, fmt.Sprintf("%s has no pending takeoff (state=%s)", droneName, d.state))
		}
	})
}

// RequestLanding 飞手请求降落：Airborne -> LandingRequested。
// 返回：
// - 208: 已有待处理的降落请求
// - 406: 无人机不在空中
func (r *Registry) RequestLanding(relayName, droneName string) error {
	return r.withDrone(relayName, droneName, func(d *droneRecord) error {
		switch d.state {
		case status.DroneAirborne:
			r.transition(d, status.DroneLandingRequested)
			return nil
		case status.DroneLandingRequested:
			return derrors.New(derrors.CodeAlreadyReported, fmt.Sprintf("%s is already scheduled to land", droneName))
		default:
			return derrors.New(derrors.CodeNotAcceptable, fmt.Sprintf("%s is not in the air", droneName))
		}
	})
}

// ShouldLand 供中继轮询：有待处理的降落请求时返回 nil，否则返回 425。
func (r *Registry) ShouldLand(relayName, droneName string) error {
	return r.withDrone(relayName, droneName, func(d *droneRecord) error {
		if d.state != status.DroneLandingRequested {
			return derrors.New(derrors.CodeTooEarly, fmt.Sprintf("%s is not scheduled to land", droneName))
		}
		return nil
	})
}

// ConfirmLanding 中继确认降落：LandingRequested/Airborne -> Grounded，并清零指令向量。
func (r *Registry) ConfirmLanding(relayName, droneName string) error {
	return r.withDrone(relayName, droneName, func(d *droneRecord) error {
		switch d.state {
		case status.DroneLandingRequested, status.DroneAirborne:
			r.transition(d, status.DroneGrounded)
			d.command = [4]int{}
			return nil
		case status.DroneGrounded:
			return nil
		default:
			return derrors.New(derrors.CodeNotAcceptable, fmt.Sprintf("%s has not taken off yet", droneName))
		}
	})
}

// SetCommand 写入指令向量（左右、前后、上下、偏航），后写覆盖先写；无人机不在空中时返回 425。
func (r *Registry) SetCommand(relayName, droneName string, cmd [4]int) error {
	return r.withDrone(relayName, droneName, func(d *droneRecord) error {
		if !d.state.Airborne() {
			return derrors.New(derrors.CodeTooEarly, fmt.Sprintf("%s has not taken off yet", droneName))
		}
		d.command = cmd
		return nil
	})
}

// GetCommand 读取当前指令向量；无人机不在空中时返回 425。
func (r *Registry) GetCommand(relayName, droneName string) ([4]int, error) {
	var out [4]int
	err := r.withDrone(relayName, droneName, func(d *droneRecord) error {
		if !d.state.Airborne() {
			return derrors.New(derrors.CodeTooEarly, fmt.Sprintf("%s has not taken off yet", droneName))
		}
		out = d.command
		return nil
	})
	return out, err
}

// SetTelemetry 解析并整体覆盖无人机遥测数据。
func (r *Registry) SetTelemetry(relayName, droneName, raw string) error {
	parsed := telemetry.Parse(raw)
	return r.withDrone(relayName, droneName, func(d *droneRecord) error {
		d.telemetry = parsed
		return nil
	})
}

// GetTelemetry 返回遥测数据的拷贝。
func (r *Registry) GetTelemetry(relayName, droneName string) (map[string]string, error) {
	var out map[string]string
	err := r.withDrone(relayName, droneName, func(d *droneRecord) error {
		out = telemetry.Clone(d.telemetry)
		return nil
	})
	return out, err
}
