package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"drone-relay/auth"
	derrors "drone-relay/errors"
	dlog "drone-relay/log"
	"drone-relay/registry"
)

// Orchestrator 是 API 层唯一调用的入口：认证后委托注册表完成状态变更。
// 自身不持有状态。
type Orchestrator struct {
	relays auth.Authenticator
	pilots auth.Authenticator
	reg    *registry.Registry
	logger *logrus.Entry
}

// New 创建编排器。
// 参数：
// - relays: 中继握手使用的认证服务
// - pilots: 飞手登录使用的认证服务
// - reg: 注册表
func New(relays, pilots auth.Authenticator, reg *registry.Registry) *Orchestrator {
	return &Orchestrator{
		relays: relays,
		pilots: pilots,
		reg:    reg,
		logger: dlog.Component("orchestrator"),
	}
}

// Registry 返回底层注册表（供健康检查与指标读取）。
func (o *Orchestrator) Registry() *registry.Registry { return o.reg }

// HandshakeRelay 校验中继凭据，成功后注册（或重连）中继。
// 返回：
// - registry.Relay: 中继快照
// - error: 401 认证失败；400 参数缺失
func (o *Orchestrator) HandshakeRelay(ctx context.Context, name, password string) (registry.Relay, error) {
	if err := requireNames(name); err != nil {
		return registry.Relay{}, err
	}
	if err := o.check(ctx, o.relays, "relay", name, password); err != nil {
		return registry.Relay{}, err
	}
	return o.reg.RegisterRelay(name)
}

// PilotLogin 校验飞手凭据。
func (o *Orchestrator) PilotLogin(ctx context.Context, name, password string) error {
	if err := requireNames(name); err != nil {
		return err
	}
	if err := o.check(ctx, o.pilots, "pilot", name, password); err != nil {
		return err
	}
	o.logger.WithFields(logrus.Fields{"pilot": name, "status": "pilot_login"}).Info("飞手登录成功")
	return nil
}

func (o *Orchestrator) check(ctx context.Context, a auth.Authenticator, role, name, password string) error {
	ok, err := a.Authenticate(ctx, name, password)
	if err != nil {
		o.logger.WithError(err).WithFields(logrus.Fields{role: name, "status": "auth_error"}).Error("认证服务异常")
		return derrors.WithMessage(err, "authentication unavailable")
	}
	if !ok {
		o.logger.WithFields(logrus.Fields{role: name, "status": "auth_failed"}).Warn("认证失败")
		return derrors.New(derrors.CodeAuthFailed, "incorrect username or password")
	}
	return nil
}

// Heartbeat 记录中继心跳。
// 参数：
// - name: 中继名
// 返回：
// - registry.Relay: 中继当前快照（含无人机列表，供中继对账）
// - error: 400 名称为空；404 中继不在线
func (o *Orchestrator) Heartbeat(name string) (registry.Relay, error) {
	if err := requireNames(name); err != nil {
		return registry.Relay{}, err
	}
	return o.reg.Heartbeat(name)
}

// DisconnectRelay 主动断开中继，级联移除其下所有无人机并归还端口。
// 返回：
// - error: 400 名称为空；404 中继不在线
func (o *Orchestrator) DisconnectRelay(name string) error {
	if err := requireNames(name); err != nil {
		return err
	}
	return o.reg.DisconnectRelay(name)
}

// AddDrone 注册无人机并返回分配到的端口。
func (o *Orchestrator) AddDrone(relay, drone string, statusPort int) (registry.DronePorts, error) {
	if err := requireNames(relay, drone); err != nil {
		return registry.DronePorts{}, err
	}
	if statusPort < 0 || statusPort > 65535 {
		return registry.DronePorts{}, derrors.New(derrors.CodeBadRequest, fmt.Sprintf("invalid status_port: %d", statusPort))
	}
	return o.reg.AddDrone(relay, drone, statusPort)
}

// RemoveDrone 移除无人机并停止其视频转发；无人机已不存在时视为成功。
// 参数：
// - relay: 中继名
// - drone: 无人机名
// 返回：
// - error: 400 名称为空；404 中继不在线
func (o *Orchestrator) RemoveDrone(relay, drone string) error {
	if err := requireNames(relay, drone); err != nil {
		return err
	}
	return o.reg.RemoveDrone(relay, drone)
}

// ListDrones 返回中继下全部无人机的快照（按名称排序）。
// 返回：
// - []registry.Drone: 无人机快照
// - error: 400 名称为空；404 中继不在线
func (o *Orchestrator) ListDrones(relay string) ([]registry.Drone, error) {
	if err := requireNames(relay); err != nil {
		return nil, err
	}
	return o.reg.ListDrones(relay)
}

// Snapshot 返回整个机队的快照（飞手面板）。
func (o *Orchestrator) Snapshot() []registry.Relay { return o.reg.Relays() }

// Drone 返回单架无人机的快照（飞手查询状态）。
// 返回：
// - error: 404 中继或无人机不存在（可用 errors.Is 区分）
func (o *Orchestrator) Drone(relay, drone string) (registry.Drone, error) {
	if err := requireNames(relay, drone); err != nil {
		return registry.Drone{}, err
	}
	return o.reg.Drone(relay, drone)
}

// RequestTakeoff 飞手请求起飞。
// 返回：
// - error: 208 已有待处理请求；406 已在空中；404 不存在
func (o *Orchestrator) RequestTakeoff(relay, drone string) error {
	return o.droneOp(relay, drone, o.reg.RequestTakeoff)
}

// ShouldTakeoff 供中继轮询是否应起飞；无待处理请求时返回 425。
func (o *Orchestrator) ShouldTakeoff(relay, drone string) error {
	return o.droneOp(relay, drone, o.reg.ShouldTakeoff)
}

// ConfirmTakeoff 中继确认起飞成功，无人机进入 Airborne。
func (o *Orchestrator) ConfirmTakeoff(relay, drone string) error {
	return o.droneOp(relay, drone, o.reg.ConfirmTakeoff)
}

// RequestLanding 飞手请求降落。
// 返回：
// - error: 208 已有待处理请求；406 不在空中；404 不存在
func (o *Orchestrator) RequestLanding(relay, drone string) error {
	return o.droneOp(relay, drone, o.reg.RequestLanding)
}

// ShouldLand 供中继轮询是否应降落；无待处理请求时返回 425。
func (o *Orchestrator) ShouldLand(relay, drone string) error {
	return o.droneOp(relay, drone, o.reg.ShouldLand)
}

// ConfirmLanding 中继确认降落，无人机回到 Grounded。
func (o *Orchestrator) ConfirmLanding(relay, drone string) error {
	return o.droneOp(relay, drone, o.reg.ConfirmLanding)
}

// SetCommand 写入飞手指令向量（左右、前后、上下、偏航）。
// 参数：
// - cmd: 四元指令，后写覆盖先写
// 返回：
// - error: 425 无人机不在空中；404 不存在
func (o *Orchestrator) SetCommand(relay, drone string, cmd [4]int) error {
	if err := requireNames(relay, drone); err != nil {
		return err
	}
	return o.reg.SetCommand(relay, drone, cmd)
}

// GetCommand 供中继拉取当前指令向量。
// 返回：
// - [4]int: 当前指令
// - error: 425 无人机不在空中；404 不存在
func (o *Orchestrator) GetCommand(relay, drone string) ([4]int, error) {
	if err := requireNames(relay, drone); err != nil {
		return [4]int{}, err
	}
	return o.reg.GetCommand(relay, drone)
}

// SetTelemetry 解析中继上报的状态串并整体覆盖遥测数据。
// 参数：
// - raw: Tello 格式状态串（k:v;k:v;...）
func (o *Orchestrator) SetTelemetry(relay, drone, raw string) error {
	if err := requireNames(relay, drone); err != nil {
		return err
	}
	return o.reg.SetTelemetry(relay, drone, raw)
}

// GetTelemetry 返回遥测数据的拷贝。
func (o *Orchestrator) GetTelemetry(relay, drone string) (map[string]string, error) {
	if err := requireNames(relay, drone); err != nil {
		return nil, err
	}
	return o.reg.GetTelemetry(relay, drone)
}

// droneOp 校验名称后执行无返回数据的无人机操作。
func (o *Orchestrator) droneOp(relay, drone string, fn func(relay, drone string) error) error {
	if err := requireNames(relay, drone); err != nil {
		return err
	}
	return fn(relay, drone)
}

// requireNames 校验名称非空。
func requireNames(names ...string) error {
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			return derrors.New(derrors.CodeBadRequest, "name must not be empty")
		}
	}
	return nil
}
