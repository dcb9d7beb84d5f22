package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"drone-relay/config"
	derrors "drone-relay/errors"
	dlog "drone-relay/log"
	"drone-relay/ports"
	"drone-relay/status"
	"drone-relay/video"
)

// Observer 接收注册表的生命周期事件（用于指标统计），实现必须是非阻塞的。
type Observer interface {
	RelayRegistered(relay string)
	RelayRemoved(relay string, evicted bool)
	DroneAdded(relay, drone string)
	DroneRemoved(relay, drone string)
	PortExhausted(kind ports.Kind)
}

type noopObserver struct{}

func (noopObserver) RelayRegistered(string)      {}
func (noopObserver) RelayRemoved(string, bool)   {}
func (noopObserver) DroneAdded(string, string)   {}
func (noopObserver) DroneRemoved(string, string) {}
func (noopObserver) PortExhausted(ports.Kind)    {}

type Options struct {
	// VideoPool 为全局共享的视频端口池。
	VideoPool *ports.Pool
	// StatusRange 为每个中继独立的状态端口范围；零值表示只透传中继上报的状态端口。
	StatusRange config.PortRange

	BindHost        string
	MaxDatagram     int
	PeerIdleTimeout time.Duration

	// Grace 为心跳宽限期：一个宽限期内未收到心跳即驱逐中继。
	Grace time.Duration
	Clock clock.Clock

	// Listen 绑定视频端口，默认 video.Listen。
	Listen   func(video.Options) (*video.Session, error)
	Observer Observer
}

// Registry 维护在线中继、无人机及其视频转发会话。
// 所有状态只通过 Registry 的方法访问，对外返回的均为快照拷贝。
type Registry struct {
	opts   Options
	clock  clock.Clock
	listen func(video.Options) (*video.Session, error)
	obs    Observer
	logger *logrus.Entry

	mu       sync.Mutex
	relays   map[string]*relayRecord
	sessions map[int]*video.Session
	closed   bool

	wg sync.WaitGroup
}

type relayRecord struct {
	name          string
	registeredAt  time.Time
	lastHeartbeat time.Time
	beats         uint64

	drones     map[string]*droneRecord
	statusPool *ports.Pool

	stop    chan struct{}
	removed bool
}

type droneRecord struct {
	name       string
	relay      string
	videoPort  int
	statusPort int
	// statusOwned 表示状态端口来自本中继的状态端口池，移除时需归还。
	statusOwned bool
	addedAt     time.Time

	state     status.DroneState
	command   [4]int
	telemetry map[string]string

	session *video.Session
}

// teardown 是一组已从注册表摘除、等待在锁外关闭与归还端口的资源。
type teardown struct {
	relay  *relayRecord
	drones []*droneRecord
}

// New 创建注册表。
// 参数：
// - opts: 端口池、绑定参数、心跳宽限期与可选的时钟/观察者
// 返回：
// - *Registry: 注册表实例
// - error: 缺少视频端口池或宽限期非法时返回错误
func New(opts Options) (*Registry, error) {
	if opts.VideoPool == nil {
		return nil, derrors.New(derrors.CodeInternal, "video port pool is required")
	}
	if opts.Grace <= 0 {
		return nil, derrors.New(derrors.CodeInternal, "heartbeat grace interval must be positive")
	}
	r := &Registry{
		opts:     opts,
		clock:    opts.Clock,
		listen:   opts.Listen,
		obs:      opts.Observer,
		logger:   dlog.Component("registry"),
		relays:   make(map[string]*relayRecord),
		sessions: make(map[int]*video.Session),
	}
	if r.clock == nil {
		r.clock = clock.New()
	}
	if r.listen == nil {
		r.listen = video.Listen
	}
	if r.obs == nil {
		r.obs = noopObserver{}
	}
	return r, nil
}

// RegisterRelay 注册中继；已存在时视为重连，保留现有无人机且不重复启动心跳看门狗。
// 参数：
// - name: 中继名
// 返回：
// - Relay: 中继快照
// - error: 注册表已关闭或状态端口池创建失败
func (r *Registry) RegisterRelay(name string) (Relay, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return Relay{}, derrors.New(derrors.CodeInternal, "registry is closed")
	}
	if rec, ok := r.relays[name]; ok {
		r.logger.WithFields(logrus.Fields{"relay": name, "drones": len(rec.drones), "status": "relay_reconnected"}).Info("中继重新握手")
		return r.relaySnapshotLocked(rec), nil
	}

	rec := &relayRecord{
		name:         name,
		registeredAt: r.clock.Now(),
		drones:       make(map[string]*droneRecord),
		stop:         make(chan struct{}),
	}
	if sr := r.opts.StatusRange; sr.Start > 0 {
		pool, err := ports.NewPool(ports.KindStatus, sr.Start, sr.End)
		if err != nil {
			return Relay{}, derrors.Wrap(derrors.CodeInternal, "create status port pool", err)
		}
		rec.statusPool = pool
	}
	r.relays[name] = rec

	r.wg.Add(1)
	go r.watch(rec)

	r.logger.WithFields(logrus.Fields{"relay": name, "status": "relay_registered"}).Info("中继注册成功")
	r.obs.RelayRegistered(name)
	return r.relaySnapshotLocked(rec), nil
}

// Heartbeat 记录中继心跳，并返回其当前无人机列表的快照供中继对账。
func (r *Registry) Heartbeat(name string) (Relay, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.relays[name]
	if !ok {
		return Relay{}, derrors.RelayNotFound(name)
	}
	rec.lastHeartbeat = r.clock.Now()
	rec.beats++
	return r.relaySnapshotLocked(rec), nil
}

// DisconnectRelay 主动断开中继，级联移除其下所有无人机与视频会话。
func (r *Registry) DisconnectRelay(name string) error {
	r.mu.Lock()
	rec, ok := r.relays[name]
	if !ok {
		r.mu.Unlock()
		return derrors.RelayNotFound(name)
	}
	td := r.detachRelayLocked(rec)
	r.mu.Unlock()

	r.finish(td)
	r.logger.WithFields(logrus.Fields{"relay": name, "drones": len(td.drones), "status": "relay_disconnected"}).Info("中继已断开")
	r.obs.RelayRemoved(name, false)
	return nil
}

// Relays 返回全部在线中继的快照（按名称排序）。
func (r *Registry) Relays() []Relay {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Relay, 0, len(r.relays))
	for _, rec := range r.relays {
		out = append(out, r.relaySnapshotLocked(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Relay 返回单个中继的快照。
func (r *Registry) Relay(name string) (Relay, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.relays[name]
	if !ok {
		return Relay{}, derrors.RelayNotFound(name)
	}
	return r.relaySnapshotLocked(rec), nil
}

// Sessions 返回当前存活的视频会话（按端口排序）。
func (r *Registry) Sessions() []*video.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*video.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Port() < out[j].Port() })
	return out
}

// VideoPool 返回全局视频端口池。
func (r *Registry) VideoPool() *ports.Pool { return r.opts.VideoPool }

// Close 断开全部中继并等待所有看门狗退出（幂等）。
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	var all []teardown
	for _, rec := range r.relays {
		all = append(all, r.detachRelayLocked(rec))
	}
	r.mu.Unlock()

	for _, td := range all {
		r.finish(td)
	}
	r.wg.Wait()
}

// detachRelayLocked 将中继及其无人机从注册表摘除并停止其看门狗（调用方需持锁）。
func (r *Registry) detachRelayLocked(rec *relayRecord) teardown {
	td := teardown{relay: rec}
	for _, d := range rec.drones {
		td.drones = append(td.drones, r.detachDroneLocked(rec, d))
	}
	if !rec.removed {
		rec.removed = true
		close(rec.stop)
	}
	if cur, ok := r.relays[rec.name]; ok && cur == rec {
		delete(r.relays, rec.name)
	}
	return td
}

func (r *Registry) detachDroneLocked(rec *relayRecord, d *droneRecord) *droneRecord {
	delete(rec.drones, d.name)
	if s, ok := r.sessions[d.videoPort]; ok && s == d.session {
		delete(r.sessions, d.videoPort)
	}
	return d
}

// finish 在锁外关闭被摘除的视频会话并归还端口：先停止转发，再释放端口。
func (r *Registry) finish(td teardown) {
	for _, d := range td.drones {
		r.closeDrone(td.relay, d)
	}
}

func (r *Registry) closeDrone(rec *relayRecord, d *droneRecord) {
	if d.session != nil {
		if err := d.session.Close(); err != nil {
			r.logger.WithError(err).WithFields(logrus.Fields{"relay": d.relay, "drone": d.name, "port": d.videoPort}).Warn("关闭视频会话失败")
		}
	}
	r.opts.VideoPool.Release(d.videoPort)
	if d.statusOwned && rec != nil && rec.statusPool != nil {
		rec.statusPool.Release(d.statusPort)
	}
	r.logger.WithFields(logrus.Fields{
		"relay":  d.relay,
		"drone":  d.name,
		"port":   d.videoPort,
		"status": "drone_removed",
	}).Info("无人机已移除，端口已归还")
	r.obs.DroneRemoved(d.relay, d.name)
}

func (r *Registry) relaySnapshotLocked(rec *relayRecord) Relay {
	out := Relay{
		Name:            rec.name,
		RegisteredAt:    rec.registeredAt,
		LastHeartbeatAt: rec.lastHeartbeat,
		Drones:          make([]Drone, 0, len(rec.drones)),
	}
	for _, d := range rec.drones {
		out.Drones = append(out.Drones, droneSnapshot(d))
	}
	sort.Slice(out.Drones, func(i, j int) bool { return out.Drones[i].Name < out.Drones[j].Name })
	return out
}
