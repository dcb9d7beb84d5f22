package video

import (
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"drone-relay/status"
)

func startSession(t *testing.T, opts Options) *Session {
	t.Helper()
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	s, err := Listen(opts)
	require.NoError(t, err)
	s.Start()
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func dialPeer(t *testing.T, port int) *net.UDPConn {
	t.Helper()
	c, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func readWithin(c *net.UDPConn, d time.Duration) ([]byte, error) {
	buf := make([]byte, 2048)
	_ = c.SetReadDeadline(time.Now().Add(d))
	n, err := c.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// TestSessionForwardsBetweenTwoPeers 验证两个对端登记后数据双向原样转发，且不会回送给发送方。
func TestSessionForwardsBetweenTwoPeers(t *testing.T) {
	s := startSession(t, Options{SessionID: "s1", Relay: "relay_0001", Drone: "drone_001"})
	require.Equal(t, status.SessionWaiting, s.Status())

	drone := dialPeer(t, s.Port())
	viewer := dialPeer(t, s.Port())

	_, err := drone.Write([]byte("frame-0"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(s.Peers()) == 1 }, time.Second, 5*time.Millisecond)

	// 第二个对端的首个数据报即完成配对并被转发。
	_, err = viewer.Write([]byte("hello"))
	require.NoError(t, err)
	got, err := readWithin(drone, time.Second)
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))
	require.Equal(t, status.SessionForwarding, s.Status())

	for _, frame := range []string{"frame-1", "frame-2"} {
		_, err = drone.Write([]byte(frame))
		require.NoError(t, err)
		got, err = readWithin(viewer, time.Second)
		require.NoError(t, err)
		require.Equal(t, frame, string(got))
	}

	_, err = readWithin(drone, 100*time.Millisecond)
	require.Error(t, err, "sender must not receive its own datagrams")

	c := s.Counters()
	require.EqualValues(t, 4, c.RxPackets)
	require.EqualValues(t, 3, c.TxPackets)
	require.Zero(t, c.Dropped)
}

// TestSessionDropsThirdSender 验证已有两个对端时，第三方数据报被丢弃且对端集合不变。
func TestSessionDropsThirdSender(t *testing.T) {
	s := startSession(t, Options{SessionID: "s2"})

	p1 := dialPeer(t, s.Port())
	p2 := dialPeer(t, s.Port())
	p3 := dialPeer(t, s.Port())

	_, _ = p1.Write([]byte("a"))
	require.Eventually(t, func() bool { return len(s.Peers()) == 1 }, time.Second, 5*time.Millisecond)
	_, _ = p2.Write([]byte("b"))
	_, err := readWithin(p1, time.Second)
	require.NoError(t, err)

	before := s.Peers()
	_, _ = p3.Write([]byte("intruder"))
	require.Eventually(t, func() bool { return s.Counters().Dropped == 1 }, time.Second, 5*time.Millisecond)

	_, err = readWithin(p1, 100*time.Millisecond)
	require.Error(t, err)
	_, err = readWithin(p2, 100*time.Millisecond)
	require.Error(t, err)

	after := s.Peers()
	require.Len(t, after, 2)
	require.Equal(t, before[0].Addr, after[0].Addr)
	require.Equal(t, before[1].Addr, after[1].Addr)
}

// TestSessionCloseReleasesPort 验证关闭后状态为 Closed、重复关闭无副作用，且端口可被重新绑定。
func TestSessionCloseReleasesPort(t *testing.T) {
	s, err := Listen(Options{Host: "127.0.0.1", SessionID: "s3"})
	require.NoError(t, err)
	s.Start()
	port := s.Port()

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.Equal(t, status.SessionClosed, s.Status())

	s.Start()
	c, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	require.NoError(t, err)
	_ = c.Close()
}

// TestSessionCloseWithoutStart 验证未启动的会话也能正常关闭。
func TestSessionCloseWithoutStart(t *testing.T) {
	s, err := Listen(Options{Host: "127.0.0.1"})
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestListenInvalidHost(t *testing.T) {
	_, err := Listen(Options{Host: "not-an-ip"})
	require.Error(t, err)
}

func routeSession(t *testing.T, idle time.Duration) *Session {
	t.Helper()
	s, err := Listen(Options{Host: "127.0.0.1", PeerIdleTimeout: idle})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// TestRouteReplacesFailedPeer 验证发送失败的对端会被新发送方顶替。
func TestRouteReplacesFailedPeer(t *testing.T) {
	s := routeSession(t, 0)
	now := time.Now()
	a := netip.MustParseAddrPort("10.0.0.1:5000")
	b := netip.MustParseAddrPort("10.0.0.2:5000")
	c := netip.MustParseAddrPort("10.0.0.3:5000")

	_, ok := s.route(a, now)
	require.False(t, ok)
	to, ok := s.route(b, now)
	require.True(t, ok)
	require.Equal(t, a, to)

	_, ok = s.route(c, now.Add(time.Hour))
	require.False(t, ok, "idle replacement is disabled")

	s.markFailed(b)
	to, ok = s.route(c, now.Add(time.Hour))
	require.True(t, ok)
	require.Equal(t, a, to)

	to, ok = s.route(a, now.Add(time.Hour))
	require.True(t, ok)
	require.Equal(t, c, to)
}

// TestRouteReplacesIdlePeer 验证开启空闲超时后，沉默最久的对端被顶替。
func TestRouteReplacesIdlePeer(t *testing.T) {
	s := routeSession(t, time.Second)
	now := time.Now()
	a := netip.MustParseAddrPort("10.0.0.1:5000")
	b := netip.MustParseAddrPort("10.0.0.2:5000")
	c := netip.MustParseAddrPort("10.0.0.3:5000")

	s.route(a, now)
	s.route(b, now)
	s.route(a, now.Add(1500*time.Millisecond))

	_, ok := s.route(c, now.Add(500*time.Millisecond))
	require.False(t, ok)

	to, ok := s.route(c, now.Add(2*time.Second))
	require.True(t, ok)
	require.Equal(t, a, to)

	peers := s.Peers()
	require.Equal(t, a, peers[0].Addr)
	require.Equal(t, c, peers[1].Addr)
	require.EqualValues(t, 1, s.Counters().Dropped)
}

func TestSamplerMbps(t *testing.T) {
	s := routeSession(t, 0)
	sp := NewSampler()
	now := time.Now()

	m := sp.Sample([]*Session{s}, now)
	require.Len(t, m, 1)
	require.Zero(t, m[0].MbpsIn)

	s.counters.rxBytes.Add(125000)
	s.counters.txBytes.Add(250000)
	m = sp.Sample([]*Session{s}, now.Add(time.Second))
	require.InDelta(t, 1.0, m[0].MbpsIn, 1e-9)
	require.InDelta(t, 2.0, m[0].MbpsOut, 1e-9)
	require.Equal(t, status.SessionWaiting, m[0].Status)

	require.Empty(t, sp.Sample(nil, now.Add(2*time.Second)))
}

// TestSessionDropsOversizedDatagram 验证超过长度上限的数据报被整体丢弃并计数，不会被截断后转发。
func TestSessionDropsOversizedDatagram(t *testing.T) {
	s := startSession(t, Options{SessionID: "s-big", MaxDatagram: 16})

	drone := dialPeer(t, s.Port())
	viewer := dialPeer(t, s.Port())

	_, _ = drone.Write([]byte("join"))
	require.Eventually(t, func() bool { return len(s.Peers()) == 1 }, time.Second, 5*time.Millisecond)
	_, _ = viewer.Write([]byte("pair"))
	got, err := readWithin(drone, time.Second)
	require.NoError(t, err)
	require.Equal(t, "pair", string(got))

	big := make([]byte, 64)
	for i := range big {
		big[i] = byte(i)
	}
	_, err = drone.Write(big)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.Counters().Oversized == 1 }, time.Second, 5*time.Millisecond)
	_, err = readWithin(viewer, 100*time.Millisecond)
	require.Error(t, err, "oversized datagram must not be forwarded")

	exact := []byte("0123456789abcdef")
	_, err = drone.Write(exact)
	require.NoError(t, err)
	got, err = readWithin(viewer, time.Second)
	require.NoError(t, err)
	require.Equal(t, exact, got)

	c := s.Counters()
	require.Zero(t, c.Dropped)
	require.Zero(t, c.SendErrors)
}

// TestSessionForwardsLargeDatagramIntact 验证未设置上限时大数据报完整转发。
func TestSessionForwardsLargeDatagramIntact(t *testing.T) {
	s := startSession(t, Options{SessionID: "s-large"})

	drone := dialPeer(t, s.Port())
	viewer := dialPeer(t, s.Port())
	_, _ = drone.Write([]byte("join"))
	require.Eventually(t, func() bool { return len(s.Peers()) == 1 }, time.Second, 5*time.Millisecond)
	_, _ = viewer.Write([]byte("pair"))
	_, err := readWithin(drone, time.Second)
	require.NoError(t, err)

	frame := make([]byte, 8000)
	for i := range frame {
		frame[i] = byte(i % 251)
	}
	_, err = drone.Write(frame)
	require.NoError(t, err)

	buf := make([]byte, 65535)
	_ = viewer.SetReadDeadline(time.Now().Add(time.Second))
	n, err := viewer.Read(buf)
	require.NoError(t, err)
	require.Equal(t, frame, buf[:n])
	require.Zero(t, s.Counters().Oversized)
}
