package status

import (
	"encoding/json"
	"testing"
)

// TestStatusParseAndJSON 验证 status 系列枚举的解析与 JSON 编解码。
func TestStatusParseAndJSON(t *testing.T) {
	for _, v := range []string{"Grounded", "TakeoffRequested", "Airborne", "LandingRequested"} {
		if _, err := ParseDroneState(v); err != nil {
			t.Fatalf("drone parse %q: %v", v, err)
		}
	}
	for _, v := range []string{"Idle", "Occupied", "Blocked"} {
		if _, err := ParsePortStatus(v); err != nil {
			t.Fatalf("port parse %q: %v", v, err)
		}
	}
	for _, v := range []string{"Waiting", "Forwarding", "Closed"} {
		if _, err := ParseSessionStatus(v); err != nil {
			t.Fatalf("session parse %q: %v", v, err)
		}
	}

	b, err := json.Marshal(struct {
		State DroneState `json:"state"`
	}{DroneAirborne})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"state":"Airborne"}` {
		t.Fatalf("json=%s", b)
	}
	var ds DroneState
	if err := json.Unmarshal([]byte(`"LandingRequested"`), &ds); err != nil {
		t.Fatal(err)
	}
	if ds != DroneLandingRequested {
		t.Fatalf("ds=%s", ds)
	}

	if _, err := ParseDroneState("X"); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := ParsePortStatus("Reserved"); err == nil {
		t.Fatalf("expected error")
	}
	var bad DroneState
	if err := json.Unmarshal([]byte(`123`), &bad); err == nil {
		t.Fatalf("expected unmarshal error")
	}
	var bad2 PortStatus
	if err := json.Unmarshal([]byte(`"X"`), &bad2); err == nil {
		t.Fatalf("expected unmarshal error")
	}
	var bad3 SessionStatus
	if err := json.Unmarshal([]byte(`"X"`), &bad3); err == nil {
		t.Fatalf("expected unmarshal error")
	}
}

// TestDroneStateAirborne 验证 Airborne 辅助判断。
func TestDroneStateAirborne(t *testing.T) {
	if DroneGrounded.Airborne() || DroneTakeoffRequested.Airborne() {
		t.Fatalf("grounded states reported airborne")
	}
	if !DroneAirborne.Airborne() || !DroneLandingRequested.Airborne() {
		t.Fatalf("airborne states reported grounded")
	}
}
