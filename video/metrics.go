package video

import (
	"sync"
	"sync/atomic"
	"time"

	"drone-relay/status"
)

type counters struct {
	rxPackets  atomic.Int64
	rxBytes    atomic.Int64
	txPackets  atomic.Int64
	txBytes    atomic.Int64
	dropped    atomic.Int64
	oversized  atomic.Int64
	sendErrors atomic.Int64
}

// Counters 是会话累计计数的只读快照。
type Counters struct {
	RxPackets  int64
	RxBytes    int64
	TxPackets  int64
	TxBytes    int64
	Dropped    int64
	// Oversized 是超过长度上限而被整体丢弃的数据报数。
	Oversized  int64
	SendErrors int64
}

func (c *counters) snapshot() Counters {
	return Counters{
		RxPackets:  c.rxPackets.Load(),
		RxBytes:    c.rxBytes.Load(),
		TxPackets:  c.txPackets.Load(),
		TxBytes:    c.txBytes.Load(),
		Dropped:    c.dropped.Load(),
		Oversized:  c.oversized.Load(),
		SendErrors: c.sendErrors.Load(),
	}
}

type Metrics struct {
	Port      int
	SessionID string
	Relay     string
	Drone     string
	Status    status.SessionStatus
	Peers     int

	MbpsIn  float64
	MbpsOut float64

	Totals    Counters
	UpdatedAt time.Time
}

// Sampler 基于两次采样之间的计数差值计算每个会话的实时码率。
type Sampler struct {
	mu   sync.Mutex
	prev map[string]sample
}

type sample struct {
	at time.Time
	c  Counters
}

// NewSampler 创建码率采样器。
func NewSampler() *Sampler { return &Sampler{prev: make(map[string]sample)} }

// Sample 对给定会话做一次采样。
// 参数：
// - sessions: 当前存活的会话列表
// - now: 采样时间
// 返回：
// - []Metrics: 每个会话的码率与累计计数；已消失的会话会被清理出采样缓存
func (s *Sampler) Sample(sessions []*Session, now time.Time) []Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Metrics, 0, len(sessions))
	next := make(map[string]sample, len(sessions))
	for _, sess := range sessions {
		c := sess.Counters()
		m := Metrics{
			Port:      sess.Port(),
			SessionID: sess.ID(),
			Relay:     sess.opts.Relay,
			Drone:     sess.opts.Drone,
			Status:    sess.Status(),
			Peers:     len(sess.Peers()),
			Totals:    c,
			UpdatedAt: now,
		}
		if p, ok := s.prev[sess.ID()]; ok {
			if secs := now.Sub(p.at).Seconds(); secs > 0 {
				m.MbpsIn = float64((c.RxBytes-p.c.RxBytes)*8) / 1e6 / secs
				m.MbpsOut = float64((c.TxBytes-p.c.TxBytes)*8) / 1e6 / secs
			}
		}
		next[sess.ID()] = sample{at: now, c: c}
		out = append(out, m)
	}
	s.prev = next
	return out
}
