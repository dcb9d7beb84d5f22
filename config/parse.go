package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type PortRange struct {
	Start int
	End   int
}

// ParsePortRange 解析端口范围字符串（形如 "52222-53333"）。
// 参数：
// - s: 端口范围字符串
// 返回：
// - PortRange: 起止端口
// - error: 解析失败原因
func ParsePortRange(s string) (PortRange, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return PortRange{}, fmt.Errorf("invalid port_range: %q", s)
	}
	start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return PortRange{}, fmt.Errorf("invalid port_range start: %q", parts[0])
	}
	end, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return PortRange{}, fmt.Errorf("invalid port_range end: %q", parts[1])
	}
	if start <= 0 || end <= 0 || end < start || end > 65535 {
		return PortRange{}, fmt.Errorf("invalid port_range values: %d-%d", start, end)
	}
	return PortRange{Start: start, End: end}, nil
}

// Size 返回范围内端口数量。
func (r PortRange) Size() int { return r.End - r.Start + 1 }

// Contains 判断端口是否落在范围内（含两端）。
func (r PortRange) Contains(port int) bool { return port >= r.Start && port <= r.End }

// Overlaps 判断两个端口范围是否有交集。
func (r PortRange) Overlaps(o PortRange) bool { return r.Start <= o.End && o.Start <= r.End }

func (r PortRange) String() string { return fmt.Sprintf("%d-%d", r.Start, r.End) }

type ByteSize int64

// Int64 返回字节数的 int64 表达。
func (b ByteSize) Int64() int64 { return int64(b) }

// UnmarshalYAML 支持从 YAML 中解析 ByteSize（如 100MB、64KB、2048B）。
// 参数：
// - value: YAML 节点
// 返回：
// - error: 解析失败原因
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		*b = 0
		return nil
	}
	v := strings.TrimSpace(value.Value)
	if v == "" {
		*b = 0
		return nil
	}
	n, err := parseByteSize(v)
	if err != nil {
		return err
	}
	*b = ByteSize(n)
	return nil
}

// parseByteSize 解析形如 "100MB"/"1.5GB" 的字节数文本。
// 参数：
// - s: 字节数文本
// 返回：
// - int64: 字节数
// - error: 解析失败原因
func parseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "KB"):
		mult = 1024
		s = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "MB"):
		mult = 1024 * 1024
		s = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "GB"):
		mult = 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "B"):
		mult = 1
		s = strings.TrimSuffix(s, "B")
	}
	s = strings.TrimSpace(s)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size: %q", s)
	}
	if f < 0 {
		return 0, fmt.Errorf("invalid byte size: %q", s)
	}
	return int64(f * float64(mult)), nil
}

// DefaultConfig 返回一份可用的默认配置（用于未提供配置文件或作为缺省值合并）。
// 视频端口范围与心跳宽限期沿用现网中继盒的约定：52222 起，8 秒未收到心跳即判定离线。
func DefaultConfig() Config {
	return Config{
		Gateway: GatewayConfig{
			HTTPPort:          8000,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Video: VideoConfig{
			PortRange:       "52222-53333",
			BindHost:        "0.0.0.0",
			MaxDatagram:     ByteSize(65535),
			PeerIdleTimeout: 0,
			ProbeOnStart:    false,
		},
		Status: StatusConfig{
			PortRange: "8890-8999",
		},
		Heartbeat: HeartbeatConfig{
			GraceInterval: 8 * time.Second,
		},
		Auth: AuthConfig{
			CredentialsFile: "configs/credentials.yaml",
		},
		Metrics: MetricsConfig{
			Enabled:        true,
			Path:           "/metrics",
			SampleInterval: 1 * time.Second,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "file",
			FilePath: "/var/log/drone-backend.log",
			MaxSize:  ByteSize(100 * 1024 * 1024),
			MaxAge:   7,
			Compress: true,
		},
	}
}
