package video

import "sync"

// maxDatagram 是 UDP 载荷的理论上限，缓冲池按此分配。
const maxDatagram = 65535

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, maxDatagram)
		return &b
	},
}

// getBuf 从缓冲池获取一个完整长度（UDP 上限）的接收缓冲区，读取不会截断任何数据报。
func getBuf() []byte {
	p := bufPool.Get().(*[]byte)
	return (*p)[:maxDatagram]
}

// putBuf 将缓冲区放回缓冲池（会忽略容量不足的切片）。
// 参数：
// - b: 待回收缓冲区
func putBuf(b []byte) {
	if cap(b) < maxDatagram {
		return
	}
	b = b[:cap(b)]
	bufPool.Put(&b)
}
