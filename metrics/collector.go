package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"drone-relay/ports"
)

type stateCollector struct {
	src   Source
	pools []*ports.Pool

	relays     *prometheus.Desc
	drones     *prometheus.Desc
	airborne   *prometheus.Desc
	poolPorts  *prometheus.Desc
	sessRx     *prometheus.Desc
	sessTx     *prometheus.Desc
	sessRxB    *prometheus.Desc
	sessTxB    *prometheus.Desc
	sessDrop   *prometheus.Desc
	sessBig    *prometheus.Desc
	sessSendEr *prometheus.Desc
	sessPeers  *prometheus.Desc
}

func newStateCollector(src Source, pools []*ports.Pool) *stateCollector {
	sessLabels := []string{"relay", "drone", "port"}
	return &stateCollector{
		src:   src,
		pools: pools,
		relays: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "relays"),
			"Relays currently registered.", nil, nil),
		drones: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "drones"),
			"Drones currently registered, per relay.", []string{"relay"}, nil),
		airborne: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "drones_airborne"),
			"Drones currently in the air, per relay.", []string{"relay"}, nil),
		poolPorts: prometheus.NewDesc(prometheus.BuildFQName(namespace, "port_pool", "ports"),
			"Ports per pool and state.", []string{"kind", "state"}, nil),
		sessRx: prometheus.NewDesc(prometheus.BuildFQName(namespace, "video", "received_datagrams_total"),
			"Datagrams received by a video session.", sessLabels, nil),
		sessTx: prometheus.NewDesc(prometheus.BuildFQName(namespace, "video", "forwarded_datagrams_total"),
			"Datagrams forwarded by a video session.", sessLabels, nil),
		sessRxB: prometheus.NewDesc(prometheus.BuildFQName(namespace, "video", "received_bytes_total"),
			"Bytes received by a video session.", sessLabels, nil),
		sessTxB: prometheus.NewDesc(prometheus.BuildFQName(namespace, "video", "forwarded_bytes_total"),
			"Bytes forwarded by a video session.", sessLabels, nil),
		sessDrop: prometheus.NewDesc(prometheus.BuildFQName(namespace, "video", "dropped_datagrams_total"),
			"Datagrams from unrecognized senders dropped by a video session.", sessLabels, nil),
		sessBig: prometheus.NewDesc(prometheus.BuildFQName(namespace, "video", "oversized_datagrams_total"),
			"Datagrams dropped whole for exceeding the configured maximum size.", sessLabels, nil),
		sessSendEr: prometheus.NewDesc(prometheus.BuildFQName(namespace, "video", "send_errors_total"),
			"Failed sends to a peer.", sessLabels, nil),
		sessPeers: prometheus.NewDesc(prometheus.BuildFQName(namespace, "video", "peers"),
			"Peers registered on a video session.", sessLabels, nil),
	}
}

func (c *stateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.relays
	ch <- c.drones
	ch <- c.airborne
	ch <- c.poolPorts
	ch <- c.sessRx
	ch <- c.sessTx
	ch <- c.sessRxB
	ch <- c.sessTxB
	ch <- c.sessDrop
	ch <- c.sessBig
	ch <- c.sessSendEr
	ch <- c.sessPeers
}

func (c *stateCollector) Collect(ch chan<- prometheus.Metric) {
	relays := c.src.Relays()
	ch <- prometheus.MustNewConstMetric(c.relays, prometheus.GaugeValue, float64(len(relays)))

	// 按会话 ID 反查归属与分配端口。
	owner := make(map[string][3]string)
	for _, r := range relays {
		var up int
		for _, d := range r.Drones {
			owner[d.SessionID] = [3]string{r.Name, d.Name, strconv.Itoa(d.VideoPort)}
			if d.State.Airborne() {
				up++
			}
		}
		ch <- prometheus.MustNewConstMetric(c.drones, prometheus.GaugeValue, float64(len(r.Drones)), r.Name)
		ch <- prometheus.MustNewConstMetric(c.airborne, prometheus.GaugeValue, float64(up), r.Name)
	}

	for _, p := range c.pools {
		s := p.Snapshot()
		kind := string(s.Kind)
		ch <- prometheus.MustNewConstMetric(c.poolPorts, prometheus.GaugeValue, float64(s.Idle), kind, "idle")
		ch <- prometheus.MustNewConstMetric(c.poolPorts, prometheus.GaugeValue, float64(s.Occupied), kind, "occupied")
		ch <- prometheus.MustNewConstMetric(c.poolPorts, prometheus.GaugeValue, float64(s.Blocked), kind, "blocked")
	}

	for _, sess := range c.src.Sessions() {
		o, ok := owner[sess.ID()]
		if !ok {
			continue
		}
		labels := o[:]
		ctr := sess.Counters()
		ch <- prometheus.MustNewConstMetric(c.sessRx, prometheus.CounterValue, float64(ctr.RxPackets), labels...)
		ch <- prometheus.MustNewConstMetric(c.sessTx, prometheus.CounterValue, float64(ctr.TxPackets), labels...)
		ch <- prometheus.MustNewConstMetric(c.sessRxB, prometheus.CounterValue, float64(ctr.RxBytes), labels...)
		ch <- prometheus.MustNewConstMetric(c.sessTxB, prometheus.CounterValue, float64(ctr.TxBytes), labels...)
		ch <- prometheus.MustNewConstMetric(c.sessDrop, prometheus.CounterValue, float64(ctr.Dropped), labels...)
		ch <- prometheus.MustNewConstMetric(c.sessBig, prometheus.CounterValue, float64(ctr.Oversized), labels...)
		ch <- prometheus.MustNewConstMetric(c.sessSendEr, prometheus.CounterValue, float64(ctr.SendErrors), labels...)
		ch <- prometheus.MustNewConstMetric(c.sessPeers, prometheus.GaugeValue, float64(len(sess.Peers())), labels...)
	}
}
