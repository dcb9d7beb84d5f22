package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"drone-relay/ports"
	"drone-relay/registry"
	"drone-relay/video"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetricsExposeRegistryState(t *testing.T) {
	pool, err := ports.NewPool(ports.KindVideo, 52222, 52222)
	require.NoError(t, err)
	m := New()
	reg, err := registry.New(registry.Options{
		VideoPool: pool,
		Grace:     time.Hour,
		Clock:     clock.NewMock(),
		Observer:  m,
		Listen: func(o video.Options) (*video.Session, error) {
			o.Host, o.Port = "127.0.0.1", 0
			return video.Listen(o)
		},
	})
	require.NoError(t, err)
	defer reg.Close()
	require.NoError(t, m.Watch(reg, pool))
	require.Error(t, m.Watch(reg, pool))

	_, err = reg.RegisterRelay("relay_0001")
	require.NoError(t, err)
	_, err = reg.AddDrone("relay_0001", "drone_001", 1)
	require.NoError(t, err)
	_, err = reg.AddDrone("relay_0001", "drone_002", 1)
	require.Error(t, err)

	body := scrape(t, m)
	require.Contains(t, body, "drone_relay_relays 1")
	require.Contains(t, body, `drone_relay_drones{relay="relay_0001"} 1`)
	require.Contains(t, body, `drone_relay_port_pool_ports{kind="video",state="occupied"} 1`)
	require.Contains(t, body, `drone_relay_port_exhausted_total{kind="video"} 1`)
	require.Contains(t, body, `drone_relay_video_peers{drone="drone_001",port="52222",relay="relay_0001"} 0`)
	require.Contains(t, body, "drone_relay_drones_added_total 1")

	require.NoError(t, reg.DisconnectRelay("relay_0001"))
	body = scrape(t, m)
	require.Contains(t, body, `drone_relay_relays_removed_total{reason="disconnected"} 1`)
	require.Contains(t, body, "drone_relay_drones_removed_total 1")
	require.Contains(t, body, `drone_relay_port_pool_ports{kind="video",state="idle"} 1`)
}
