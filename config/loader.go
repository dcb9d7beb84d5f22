package config

import (
	"fmt"
	"net"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load 从 YAML 文件读取并解析配置，并做基础校验与默认值补齐。
// 参数：
// - path: 配置文件路径
// 返回：
// - Config: 合并默认值后的配置
// - error: 读取/解析/校验失败原因
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal yaml: %w", err)
	}
	normalize(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// normalize 为 YAML 中显式置空的字段回填默认值。
func normalize(cfg *Config) {
	def := DefaultConfig()
	if strings.TrimSpace(cfg.Video.BindHost) == "" {
		cfg.Video.BindHost = def.Video.BindHost
	}
	if cfg.Video.MaxDatagram <= 0 {
		cfg.Video.MaxDatagram = def.Video.MaxDatagram
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = def.Metrics.Path
	}
	if cfg.Metrics.SampleInterval <= 0 {
		cfg.Metrics.SampleInterval = def.Metrics.SampleInterval
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "file"
	}
}

// Validate 校验配置字段合法性（端口范围、超时、日志输出等）。
// 参数：
// - cfg: 待校验配置
// 返回：
// - error: 校验失败原因
func Validate(cfg Config) error {
	if cfg.Gateway.HTTPPort <= 0 || cfg.Gateway.HTTPPort > 65535 {
		return fmt.Errorf("invalid gateway.http_port: %d", cfg.Gateway.HTTPPort)
	}
	if cfg.Gateway.ReadHeaderTimeout <= 0 {
		return fmt.Errorf("invalid gateway.read_header_timeout: %s", cfg.Gateway.ReadHeaderTimeout)
	}
	if cfg.Gateway.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid gateway.shutdown_timeout: %s", cfg.Gateway.ShutdownTimeout)
	}
	video, err := ParsePortRange(cfg.Video.PortRange)
	if err != nil {
		return fmt.Errorf("invalid video.port_range: %w", err)
	}
	st, err := ParsePortRange(cfg.Status.PortRange)
	if err != nil {
		return fmt.Errorf("invalid status.port_range: %w", err)
	}
	if video.Overlaps(st) {
		return fmt.Errorf("video.port_range %s overlaps status.port_range %s", video, st)
	}
	if video.Contains(cfg.Gateway.HTTPPort) || st.Contains(cfg.Gateway.HTTPPort) {
		return fmt.Errorf("gateway.http_port %d falls inside a port pool", cfg.Gateway.HTTPPort)
	}
	if net.ParseIP(strings.TrimSpace(cfg.Video.BindHost)) == nil {
		return fmt.Errorf("invalid video.bind_host: %q", cfg.Video.BindHost)
	}
	if cfg.Video.MaxDatagram > 65535 {
		return fmt.Errorf("invalid video.max_datagram: %d", cfg.Video.MaxDatagram)
	}
	if cfg.Video.PeerIdleTimeout < 0 {
		return fmt.Errorf("invalid video.peer_idle_timeout: %s", cfg.Video.PeerIdleTimeout)
	}
	if cfg.Heartbeat.GraceInterval <= 0 {
		return fmt.Errorf("invalid heartbeat.grace_interval: %s", cfg.Heartbeat.GraceInterval)
	}
	if cfg.Auth.CredentialsFile == "" {
		return fmt.Errorf("auth.credentials_file is required")
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("invalid metrics.path: %q", cfg.Metrics.Path)
	}
	if cfg.Logging.Output == "file" && cfg.Logging.FilePath == "" {
		return fmt.Errorf("logging.file_path is required when output=file")
	}
	return nil
}
