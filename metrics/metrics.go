package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"drone-relay/ports"
	"drone-relay/registry"
	"drone-relay/video"
)

const namespace = "drone_relay"

// Source 是采集时读取的实时状态。
type Source interface {
	Relays() []registry.Relay
	Sessions() []*video.Session
}

// Metrics 持有独立的 Prometheus 注册表：事件计数来自注册表观察者回调，
// 实时状态（中继/无人机/端口池/会话）在每次抓取时读取。
type Metrics struct {
	reg *prometheus.Registry

	relaysRegistered prometheus.Counter
	relaysRemoved    *prometheus.CounterVec
	dronesAdded      prometheus.Counter
	dronesRemoved    prometheus.Counter
	portsExhausted   *prometheus.CounterVec
}

// New 创建指标集合（含 Go 运行时与进程指标）。
func New() *Metrics {
	r := prometheus.NewRegistry()
	m := &Metrics{
		reg: r,
		relaysRegistered: promauto.With(r).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relays_registered_total",
			Help:      "Relays registered for the first time (reconnects excluded).",
		}),
		relaysRemoved: promauto.With(r).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relays_removed_total",
			Help:      "Relays removed from the registry, by reason.",
		}, []string{"reason"}),
		dronesAdded: promauto.With(r).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drones_added_total",
			Help:      "Drones registered.",
		}),
		dronesRemoved: promauto.With(r).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drones_removed_total",
			Help:      "Drones removed, including cascades from relay removal.",
		}),
		portsExhausted: promauto.With(r).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "port_exhausted_total",
			Help:      "Port allocations that failed because the pool was empty.",
		}, []string{"kind"}),
	}
	r.MustRegister(collectors.NewGoCollector())
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return m
}

// Watch 注册实时状态采集器，每次抓取时读取快照。
// 参数：
// - src: 中继与视频会话来源（通常为 *registry.Registry）
// - pools: 需要暴露状态的端口池
// 返回：
// - error: 重复注册时返回错误
func (m *Metrics) Watch(src Source, pools ...*ports.Pool) error {
	return m.reg.Register(newStateCollector(src, pools))
}

// Handler 返回 /metrics 的 HTTP 处理器。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Gatherer 返回底层注册表（用于测试或聚合）。
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.reg }

func (m *Metrics) RelayRegistered(string) { m.relaysRegistered.Inc() }

func (m *Metrics) RelayRemoved(_ string, evicted bool) {
	reason := "disconnected"
	if evicted {
		reason = "evicted"
	}
	m.relaysRemoved.WithLabelValues(reason).Inc()
}

func (m *Metrics) DroneAdded(string, string)   { m.dronesAdded.Inc() }
func (m *Metrics) DroneRemoved(string, string) { m.dronesRemoved.Inc() }

func (m *Metrics) PortExhausted(kind ports.Kind) {
	m.portsExhausted.WithLabelValues(string(kind)).Inc()
}

var _ registry.Observer = (*Metrics)(nil)
