package ports

import (
	"net"
	"time"

	"drone-relay/status"
)

// CheckUDPPortAvailable 检测 UDP 端口是否可用（通过尝试绑定并立即关闭）。
// 参数：
// - host: 绑定地址（空串表示 0.0.0.0）
// - port: 端口号
// 返回：
// - error: 端口不可用或绑定失败原因
func CheckUDPPortAvailable(host string, port int) error {
	ip := net.IPv4zero
	if host != "" {
		if parsed := net.ParseIP(host); parsed != nil {
			ip = parsed
		}
	}
	c, err := net.ListenUDP("udp", &net.UDPAddr{IP: ip, Port: port})
	if err != nil {
		return err
	}
	_ = c.SetDeadline(time.Now())
	_ = c.Close()
	return nil
}

// BlockUnavailable 逐个探测端口池内的端口，把已被外部进程占用的端口标记为 Blocked。
// 返回：
// - []int: 被阻断的端口列表
func BlockUnavailable(p *Pool, host string) []int {
	var blocked []int
	for _, port := range p.ports {
		if p.Status(port) != status.PortIdle {
			continue
		}
		if err := CheckUDPPortAvailable(host, port); err != nil {
			_ = p.Block(port, err.Error())
			blocked = append(blocked, port)
		}
	}
	return blocked
}
