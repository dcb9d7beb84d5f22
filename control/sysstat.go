package control

import (
	"runtime"
	"sync"

	"github.com/prometheus/procfs"
)

// sysSampler 基于 /proc 采样主机 CPU 使用率与本进程常驻内存；非 Linux 平台返回 0 或回退到 Go 堆统计。
type sysSampler struct {
	mu sync.Mutex
	fs *procfs.FS

	lastTotal float64
	lastIdle  float64
}

// newSysSampler 创建系统资源采样器。
func newSysSampler() *sysSampler {
	s := &sysSampler{}
	if fs, err := procfs.NewDefaultFS(); err == nil {
		s.fs = &fs
	}
	return s
}

// CPUPercent 返回两次调用之间的主机 CPU 使用率（0~100），首次调用返回 0。
func (s *sysSampler) CPUPercent() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fs == nil {
		return 0
	}
	st, err := s.fs.Stat()
	if err != nil {
		return 0
	}
	c := st.CPUTotal
	idle := c.Idle + c.Iowait
	total := c.User + c.Nice + c.System + idle + c.IRQ + c.SoftIRQ + c.Steal

	prevTotal, prevIdle := s.lastTotal, s.lastIdle
	s.lastTotal, s.lastIdle = total, idle
	if prevTotal == 0 {
		return 0
	}
	dt := total - prevTotal
	if dt <= 0 {
		return 0
	}
	busy := (dt - (idle - prevIdle)) / dt * 100
	switch {
	case busy < 0:
		return 0
	case busy > 100:
		return 100
	}
	return busy
}

// MemMB 返回本进程常驻内存（MB）；读取失败时回退为 Go 堆分配量。
func (s *sysSampler) MemMB() float64 {
	if s.fs != nil {
		if p, err := s.fs.Self(); err == nil {
			if st, err := p.Stat(); err == nil {
				return float64(st.ResidentMemory()) / (1024 * 1024)
			}
		}
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return float64(ms.Alloc) / (1024 * 1024)
}
