package ports

import (
	"net"
	"sync"
	"testing"

	derrors "drone-relay/errors"
	"drone-relay/status"
)

// TestPoolAllocateRelease 验证端口 Idle -> Occupied -> Idle 的状态流转与幂等释放。
func TestPoolAllocateRelease(t *testing.T) {
	p, err := NewPool(KindVideo, 30000, 30002)
	if err != nil {
		t.Fatal(err)
	}

	a, err := p.Allocate("relay_0001", "drone_001", "s1")
	if err != nil {
		t.Fatal(err)
	}
	if a.Port != 30000 {
		t.Fatalf("unexpected port: %d", a.Port)
	}
	if snap := p.Snapshot(); snap.Occupied != 1 || snap.Idle != 2 {
		t.Fatalf("snapshot=%+v", snap)
	}
	got, ok := p.Allocation(a.Port)
	if !ok || got.Drone != "drone_001" || got.Relay != "relay_0001" {
		t.Fatalf("allocation=%+v ok=%v", got, ok)
	}

	p.Release(a.Port)
	p.Release(a.Port)
	p.Release(9999)
	if snap := p.Snapshot(); snap.Idle != snap.Total {
		t.Fatalf("idle=%d total=%d", snap.Idle, snap.Total)
	}
	if _, ok := p.Allocation(a.Port); ok {
		t.Fatalf("allocation should be gone")
	}
}

// TestPoolLowestFirst 验证分配顺序确定：总是返回当前最小的空闲端口。
func TestPoolLowestFirst(t *testing.T) {
	p, err := NewPool(KindVideo, 52222, 52224)
	if err != nil {
		t.Fatal(err)
	}
	a, _ := p.Allocate("r", "d1", "")
	b, _ := p.Allocate("r", "d2", "")
	c, _ := p.Allocate("r", "d3", "")
	if a.Port != 52222 || b.Port != 52223 || c.Port != 52224 {
		t.Fatalf("order=%d,%d,%d", a.Port, b.Port, c.Port)
	}
	p.Release(52223)
	p.Release(52222)
	d, err := p.Allocate("r", "d4", "")
	if err != nil {
		t.Fatal(err)
	}
	if d.Port != 52222 {
		t.Fatalf("expected lowest free port, got %d", d.Port)
	}
}

// TestPoolExhausted 验证端口耗尽时返回 Exhausted 错误而不是阻塞或复用。
func TestPoolExhausted(t *testing.T) {
	p, err := NewPool(KindStatus, 32000, 32000)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Allocate("r", "d1", ""); err != nil {
		t.Fatal(err)
	}
	_, err = p.Allocate("r", "d2", "")
	if !derrors.IsExhausted(err) {
		t.Fatalf("expected exhausted, got %v", err)
	}
}

// TestPoolBlock 覆盖阻断路径：被阻断端口不再参与分配，释放对其无效。
func TestPoolBlock(t *testing.T) {
	if _, err := NewPool(KindVideo, 10, 1); err == nil {
		t.Fatalf("expected range error")
	}
	p, err := NewPool(KindVideo, 33000, 33001)
	if err != nil {
		t.Fatal(err)
	}
	if p.Kind() != KindVideo {
		t.Fatalf("kind=%s", p.Kind())
	}
	if err := p.Block(9999, "x"); err == nil {
		t.Fatalf("expected block error")
	}
	if err := p.Block(33000, "in use"); err != nil {
		t.Fatal(err)
	}
	p.Release(33000)
	if p.Status(33000) != status.PortBlocked {
		t.Fatalf("status=%s", p.Status(33000))
	}
	a, err := p.Allocate("r", "d", "")
	if err != nil {
		t.Fatal(err)
	}
	if a.Port != 33001 {
		t.Fatalf("port=%d", a.Port)
	}
	snap := p.Snapshot()
	if snap.Blocked != 1 || snap.Occupied != 1 || snap.Idle != 0 {
		t.Fatalf("snapshot=%+v", snap)
	}
}

// TestPoolConcurrentUnique 验证并发分配时不会出现重复端口。
func TestPoolConcurrentUnique(t *testing.T) {
	p, err := NewPool(KindVideo, 40000, 40099)
	if err != nil {
		t.Fatal(err)
	}
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[int]bool)
		errs int
	)
	for i := 0; i < 120; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := p.Allocate("r", "d", "")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs++
				return
			}
			if seen[a.Port] {
				t.Errorf("duplicate port %d", a.Port)
			}
			seen[a.Port] = true
		}()
	}
	wg.Wait()
	if len(seen) != 100 || errs != 20 {
		t.Fatalf("allocated=%d exhausted=%d", len(seen), errs)
	}
}

// TestBlockUnavailable 验证启动探测会阻断被占用的 UDP 端口。
func TestBlockUnavailable(t *testing.T) {
	c, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	port := c.LocalAddr().(*net.UDPAddr).Port

	p, err := NewPool(KindVideo, port, port)
	if err != nil {
		t.Fatal(err)
	}
	blocked := BlockUnavailable(p, "127.0.0.1")
	if len(blocked) != 1 || blocked[0] != port {
		t.Fatalf("blocked=%v", blocked)
	}
	if _, err := p.Allocate("r", "d", ""); !derrors.IsExhausted(err) {
		t.Fatalf("expected exhausted, got %v", err)
	}
}
