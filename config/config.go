package config

import "time"

type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway"`
	Video     VideoConfig     `yaml:"video"`
	Status    StatusConfig    `yaml:"status"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Auth      AuthConfig      `yaml:"auth"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type GatewayConfig struct {
	HTTPPort          int           `yaml:"http_port"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

type VideoConfig struct {
	PortRange       string        `yaml:"port_range"`
	BindHost        string        `yaml:"bind_host"`
	MaxDatagram     ByteSize      `yaml:"max_datagram"`
	PeerIdleTimeout time.Duration `yaml:"peer_idle_timeout"`
	ProbeOnStart    bool          `yaml:"probe_on_start"`
}

// StatusConfig 描述每个中继独立持有的状态端口池。
type StatusConfig struct {
	PortRange string `yaml:"port_range"`
}

type HeartbeatConfig struct {
	GraceInterval time.Duration `yaml:"grace_interval"`
}

type AuthConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
}

type MetricsConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Path           string        `yaml:"path"`
	SampleInterval time.Duration `yaml:"sample_interval"`
}

type LoggingConfig struct {
	Level    string   `yaml:"level"`
	Format   string   `yaml:"format"`
	Output   string   `yaml:"output"`
	FilePath string   `yaml:"file_path"`
	MaxSize  ByteSize `yaml:"max_size"`
	MaxAge   int      `yaml:"max_age"`
	Compress bool     `yaml:"compress"`
}
