package video

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	derrors "drone-relay/errors"
	dlog "drone-relay/log"
	"drone-relay/status"
)

// maxPeers 是单个视频端口允许同时登记的对端数量：推流端与观看端各一。
const maxPeers = 2

type Options struct {
	Host      string
	Port      int
	SessionID string
	Relay     string
	Drone     string

	// MaxDatagram 为允许转发的最大数据报长度，超出的数据报整体丢弃并计数；<=0 时不限制。
	MaxDatagram int
	// PeerIdleTimeout 大于 0 时，沉默超过该时长的对端可被新发送方顶替。
	PeerIdleTimeout time.Duration
}

// Peer 是一个已登记的对端地址及其活跃信息。
type Peer struct {
	Addr     netip.AddrPort
	LastSeen time.Time
	// Failed 表示最近一次向该对端发送失败。
	Failed bool
}

// Session 是绑定在单个 UDP 端口上的视频转发会话。
// 最先发来数据的两个不同地址成为对端，之后任一对端的数据原样转发给另一方。
type Session struct {
	opts   Options
	conn   *net.UDPConn
	port   int
	logger *logrus.Entry

	counters counters

	mu      sync.Mutex
	peers   []Peer
	started bool
	closed  bool

	closeOnce sync.Once
	done      chan struct{}
}

// Listen 绑定视频端口并创建会话（尚未开始转发）。
// 参数：
// - opts: 绑定地址、端口与归属信息
// 返回：
// - *Session: 会话实例
// - error: 绑定失败时返回 CodeTransientIO
func Listen(opts Options) (*Session, error) {
	ip := net.IPv4zero
	if opts.Host != "" {
		parsed := net.ParseIP(opts.Host)
		if parsed == nil {
			return nil, derrors.New(derrors.CodeBadRequest, fmt.Sprintf("invalid bind host: %q", opts.Host))
		}
		ip = parsed
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: ip, Port: opts.Port})
	if err != nil {
		return nil, derrors.Wrap(derrors.CodeTransientIO, fmt.Sprintf("bind video port %d", opts.Port), err)
	}
	port := conn.LocalAddr().(*net.UDPAddr).Port
	return &Session{
		opts: opts,
		conn: conn,
		port: port,
		logger: dlog.Component("video").WithFields(logrus.Fields{
			"port":      port,
			"sessionID": opts.SessionID,
			"relay":     opts.Relay,
			"drone":     opts.Drone,
		}),
		done: make(chan struct{}),
	}, nil
}

// Start 启动接收转发循环（重复调用或关闭后调用均为空操作）。
func (s *Session) Start() {
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go s.loop()
}

func (s *Session) loop() {
	defer close(s.done)

	buf := getBuf()
	defer putBuf(buf)

	for {
		n, from, err := s.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || s.isClosed() {
				return
			}
			s.logger.WithError(err).WithField("status", "read_error").Warn("视频数据读取失败")
			continue
		}
		s.counters.rxPackets.Add(1)
		s.counters.rxBytes.Add(int64(n))
		if s.opts.MaxDatagram > 0 && n > s.opts.MaxDatagram {
			s.counters.oversized.Add(1)
			s.logger.WithFields(logrus.Fields{"peer": from.String(), "bytes": n, "status": "oversized"}).Debug("数据报超过长度上限，已丢弃")
			continue
		}

		to, ok := s.route(unmap(from), time.Now())
		if !ok {
			continue
		}
		wn, err := s.conn.WriteToUDPAddrPort(buf[:n], to)
		if err != nil {
			if s.isClosed() {
				return
			}
			s.counters.sendErrors.Add(1)
			s.markFailed(to)
			s.logger.WithError(derrors.Wrap(derrors.CodeTransientIO, "forward datagram", err)).
				WithFields(logrus.Fields{"peer": to.String(), "status": "send_error"}).
				Warn("视频数据转发失败")
			continue
		}
		s.counters.txPackets.Add(1)
		s.counters.txBytes.Add(int64(wn))
	}
}

// route 登记发送方并返回转发目标。
// 返回：
// - netip.AddrPort: 另一对端地址
// - bool: false 表示该数据报不转发（对端未凑齐或发送方被拒绝）
func (s *Session) route(from netip.AddrPort, now time.Time) (netip.AddrPort, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i := range s.peers {
		if s.peers[i].Addr == from {
			idx = i
			break
		}
	}
	switch {
	case idx >= 0:
		s.peers[idx].LastSeen = now
		s.peers[idx].Failed = false
	case len(s.peers) < maxPeers:
		s.peers = append(s.peers, Peer{Addr: from, LastSeen: now})
		idx = len(s.peers) - 1
		s.logger.WithFields(logrus.Fields{"peer": from.String(), "peers": len(s.peers)}).Info("peer_joined")
	default:
		r := s.replaceable(now)
		if r < 0 {
			s.counters.dropped.Add(1)
			return netip.AddrPort{}, false
		}
		s.logger.WithFields(logrus.Fields{
			"peer":     from.String(),
			"replaced": s.peers[r].Addr.String(),
			"failed":   s.peers[r].Failed,
		}).Info("peer_replaced")
		s.peers[r] = Peer{Addr: from, LastSeen: now}
		idx = r
	}

	if len(s.peers) < maxPeers {
		return netip.AddrPort{}, false
	}
	return s.peers[1-idx].Addr, true
}

// replaceable 返回可被顶替的对端下标：优先发送失败的，其次沉默最久且超时的；没有则返回 -1。
func (s *Session) replaceable(now time.Time) int {
	if i := s.oldest(func(p Peer) bool { return p.Failed }); i >= 0 {
		return i
	}
	if s.opts.PeerIdleTimeout <= 0 {
		return -1
	}
	return s.oldest(func(p Peer) bool { return now.Sub(p.LastSeen) > s.opts.PeerIdleTimeout })
}

func (s *Session) oldest(match func(Peer) bool) int {
	best := -1
	for i, p := range s.peers {
		if !match(p) {
			continue
		}
		if best < 0 || p.LastSeen.Before(s.peers[best].LastSeen) {
			best = i
		}
	}
	return best
}

func (s *Session) markFailed(addr netip.AddrPort) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.peers {
		if s.peers[i].Addr == addr {
			s.peers[i].Failed = true
			return
		}
	}
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close 关闭套接字并等待转发循环退出（幂等）。
// 返回后该端口已不再被本进程占用，可安全归还端口池。
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		started := s.started
		s.mu.Unlock()

		err = s.conn.Close()
		if started {
			<-s.done
		}
		c := s.counters.snapshot()
		s.logger.WithFields(logrus.Fields{
			"rx_packets": c.RxPackets,
			"tx_packets": c.TxPackets,
			"dropped":    c.Dropped,
		}).Info("session_closed")
	})
	return err
}

// Status 返回会话状态：Waiting（对端未凑齐）、Forwarding 或 Closed。
func (s *Session) Status() status.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return status.SessionClosed
	case len(s.peers) == maxPeers:
		return status.SessionForwarding
	default:
		return status.SessionWaiting
	}
}

// Peers 返回已登记对端的副本（按登记顺序）。
func (s *Session) Peers() []Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Peer, len(s.peers))
	copy(out, s.peers)
	return out
}

func (s *Session) Counters() Counters { return s.counters.snapshot() }

func (s *Session) ID() string { return s.opts.SessionID }

// Port 返回实际绑定的端口。
func (s *Session) Port() int { return s.port }

func unmap(a netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(a.Addr().Unmap(), a.Port())
}
