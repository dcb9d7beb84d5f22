package ports

import (
	"fmt"
	"sort"
	"sync"
	"time"

	derrors "drone-relay/errors"
	"drone-relay/status"
)

type Kind string

const (
	KindVideo  Kind = "video"
	KindStatus Kind = "status"
)

type Allocation struct {
	Kind        Kind
	Port        int
	Relay       string
	Drone       string
	SessionID   string
	AllocatedAt time.Time
}

// Pool 是一个固定范围的端口池：升序扫描分配最小空闲端口，释放前绝不重复分配。
type Pool struct {
	kind  Kind
	ports []int

	mu      sync.RWMutex
	state   map[int]status.PortStatus
	alloc   map[int]Allocation
	blocked map[int]string
}

// NewPool 创建一个端口池。
// 参数：
// - kind: 端口类型（video/status）
// - start: 起始端口（含）
// - end: 结束端口（含）
// 返回：
// - *Pool: 端口池实例
// - error: 端口范围非法时返回错误
func NewPool(kind Kind, start, end int) (*Pool, error) {
	if start <= 0 || end <= 0 || end < start || end > 65535 {
		return nil, fmt.Errorf("invalid port range: %d-%d", start, end)
	}
	p := &Pool{
		kind:    kind,
		ports:   make([]int, 0, end-start+1),
		state:   make(map[int]status.PortStatus, end-start+1),
		alloc:   make(map[int]Allocation),
		blocked: make(map[int]string),
	}
	for i := start; i <= end; i++ {
		p.ports = append(p.ports, i)
		p.state[i] = status.PortIdle
	}
	return p, nil
}

// Kind 返回端口池类型。
func (p *Pool) Kind() Kind { return p.kind }

// Allocate 按升序扫描端口池，取编号最小的空闲端口并标记为 Occupied。
// 参数：
// - relay: 所属中继名
// - drone: 所属无人机名
// - sessionID: 视频会话 ID（状态端口可为空）
// 返回：
// - Allocation: 分配结果
// - error: 端口池耗尽时返回 CodeExhausted
func (p *Pool) Allocate(relay, drone, sessionID string) (Allocation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, port := range p.ports {
		if p.state[port] != status.PortIdle {
			continue
		}
		a := Allocation{
			Kind:        p.kind,
			Port:        port,
			Relay:       relay,
			Drone:       drone,
			SessionID:   sessionID,
			AllocatedAt: time.Now(),
		}
		p.state[port] = status.PortOccupied
		p.alloc[port] = a
		return a, nil
	}
	return Allocation{}, derrors.New(derrors.CodeExhausted, fmt.Sprintf("all available %s ports are taken", p.kind))
}

// Release 释放端口，将其标记回 Idle。
// 未分配、已阻断或不在范围内的端口释放均为空操作（幂等）。
// 参数：
// - port: 端口号
func (p *Pool) Release(port int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state[port] != status.PortOccupied {
		return
	}
	delete(p.alloc, port)
	p.state[port] = status.PortIdle
}

// Block 将端口标记为 Blocked（用于隔离被外部进程占用的异常端口）。
// 参数：
// - port: 端口号
// - reason: 阻断原因（出现在快照中）
// 返回：
// - error: 端口不在池内时返回错误
func (p *Pool) Block(port int, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.state[port]; !ok {
		return derrors.Wrap(derrors.CodeBadRequest, "unknown port", fmt.Errorf("port=%d", port))
	}
	delete(p.alloc, port)
	p.state[port] = status.PortBlocked
	p.blocked[port] = reason
	return nil
}

// Status 返回端口当前状态；不在池内的端口返回空字符串。
func (p *Pool) Status(port int) status.PortStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state[port]
}

// Snapshot 返回端口池的快照统计与各状态端口列表。
func (p *Pool) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var s Snapshot
	s.Kind = p.kind
	for _, port := range p.ports {
		switch p.state[port] {
		case status.PortIdle:
			s.Idle++
		case status.PortOccupied:
			s.Occupied++
			s.OccupiedPorts = append(s.OccupiedPorts, port)
		case status.PortBlocked:
			s.Blocked++
			s.BlockedPorts = append(s.BlockedPorts, port)
		}
	}
	sort.Ints(s.OccupiedPorts)
	sort.Ints(s.BlockedPorts)
	s.Total = len(p.ports)
	return s
}

type Snapshot struct {
	Kind Kind

	Total    int
	Idle     int
	Occupied int
	Blocked  int

	OccupiedPorts []int
	BlockedPorts  []int
}

// Allocation 查询指定端口的分配信息。
// 返回：
// - Allocation: 分配信息
// - bool: 是否存在
func (p *Pool) Allocation(port int) (Allocation, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	a, ok := p.alloc[port]
	return a, ok
}
