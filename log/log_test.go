package log

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"drone-relay/config"
)

// TestInitJSONAddsRuntimeFields 验证 JSON 输出包含 goid/ts_ms 等辅助字段。
func TestInitJSONAddsRuntimeFields(t *testing.T) {
	cfg := config.DefaultConfig().Logging
	cfg.Output = "console"
	if err := Init(cfg); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	L().SetOutput(&buf)

	Component("registry").WithField("status", "relay_registered").Info("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if line["component"] != "registry" || line["status"] != "relay_registered" {
		t.Fatalf("fields missing: %v", line)
	}
	if _, ok := line["goid"]; !ok {
		t.Fatalf("goid missing: %v", line)
	}
	if _, ok := line["ts_ms"]; !ok {
		t.Fatalf("ts_ms missing: %v", line)
	}
}

// TestInitFileOutput 验证 file 输出会创建日志目录。
func TestInitFileOutput(t *testing.T) {
	cfg := config.DefaultConfig().Logging
	cfg.FilePath = filepath.Join(t.TempDir(), "nested", "backend.log")
	cfg.Level = "not-a-level"
	if err := Init(cfg); err != nil {
		t.Fatal(err)
	}
	if L().GetLevel().String() != "info" {
		t.Fatalf("level=%s", L().GetLevel())
	}
	cfg.Output = "discard"
	if err := Init(cfg); err != nil {
		t.Fatal(err)
	}
}
