package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

// TestParsePortRange 验证端口范围字符串解析行为。
func TestParsePortRange(t *testing.T) {
	r, err := ParsePortRange("52222-53333")
	if err != nil {
		t.Fatal(err)
	}
	if r.Start != 52222 || r.End != 53333 {
		t.Fatalf("bad range: %+v", r)
	}
	if r.Size() != 1112 {
		t.Fatalf("size=%d", r.Size())
	}
	if !r.Contains(52222) || r.Contains(53334) {
		t.Fatalf("contains mismatch")
	}
	if _, err := ParsePortRange("bad"); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := ParsePortRange("10-1"); err == nil {
		t.Fatalf("expected error")
	}
}

// TestPortRangeOverlaps 验证端口范围交集判断。
func TestPortRangeOverlaps(t *testing.T) {
	a := PortRange{Start: 100, End: 200}
	if !a.Overlaps(PortRange{Start: 200, End: 300}) {
		t.Fatalf("expected overlap at boundary")
	}
	if a.Overlaps(PortRange{Start: 201, End: 300}) {
		t.Fatalf("unexpected overlap")
	}
}

// TestByteSizeUnmarshal 验证 ByteSize 支持从 YAML 文本解析（如 64KB）。
func TestByteSizeUnmarshal(t *testing.T) {
	var cfg struct {
		Size ByteSize `yaml:"size"`
	}
	if err := yaml.Unmarshal([]byte("size: 64KB\n"), &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Size.Int64() != 64*1024 {
		t.Fatalf("got=%d", cfg.Size.Int64())
	}
}

// TestLoadMergesDefaults 验证 YAML 覆盖部分字段，其余字段保持默认值。
func TestLoadMergesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	raw := "heartbeat:\n  grace_interval: 3s\nlogging:\n  output: console\n"
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Heartbeat.GraceInterval != 3*time.Second {
		t.Fatalf("grace=%s", cfg.Heartbeat.GraceInterval)
	}
	if cfg.Video.PortRange != "52222-53333" {
		t.Fatalf("video range=%s", cfg.Video.PortRange)
	}
	if cfg.Logging.Output != "console" {
		t.Fatalf("output=%s", cfg.Logging.Output)
	}
}

// TestValidateRejectsOverlappingPools 验证视频端口池与状态端口池不得重叠。
func TestValidateRejectsOverlappingPools(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Status.PortRange = "53000-53100"
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected overlap error")
	}
	cfg = DefaultConfig()
	cfg.Heartbeat.GraceInterval = 0
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected grace error")
	}
	if err := Validate(DefaultConfig()); err != nil {
		t.Fatal(err)
	}
}

// TestLoadShippedConfig 验证仓库自带的 configs/config.yaml 可以通过校验。
func TestLoadShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "configs", "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Video.MaxDatagram != 65535 {
		t.Fatalf("max_datagram=%d", cfg.Video.MaxDatagram)
	}
	if cfg.Logging.MaxSize != ByteSize(100*1024*1024) {
		t.Fatalf("max_size=%d", cfg.Logging.MaxSize)
	}
	if !cfg.Video.ProbeOnStart {
		t.Fatalf("probe_on_start should be enabled")
	}
}

// TestValidateRejectsBadBindHost 验证 video.bind_host 必须是 IP 地址。
func TestValidateRejectsBadBindHost(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Video.BindHost = "not-an-ip"
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected bind_host error")
	}
	cfg.Video.BindHost = "127.0.0.1"
	if err := Validate(cfg); err != nil {
		t.Fatal(err)
	}
}
