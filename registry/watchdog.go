package registry

import "github.com/sirupsen/logrus"

// watch 是单个中继的心跳看门狗。
// 每个宽限期检查一次：若期间未收到任何心跳且此前至少收到过一次心跳，则驱逐该中继。
// 从未心跳过的中继不会被驱逐，直到它首次心跳或被主动断开。
func (r *Registry) watch(rec *relayRecord) {
	defer r.wg.Done()

	for {
		r.mu.Lock()
		seen := rec.beats
		r.mu.Unlock()

		timer := r.clock.Timer(r.opts.Grace)
		select {
		case <-rec.stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		r.mu.Lock()
		if rec.removed {
			r.mu.Unlock()
			return
		}
		if rec.beats == 0 || rec.beats != seen {
			r.mu.Unlock()
			continue
		}
		last := rec.lastHeartbeat
		td := r.detachRelayLocked(rec)
		r.mu.Unlock()

		r.finish(td)
		r.logger.WithFields(logrus.Fields{
			"relay":             rec.name,
			"drones":            len(td.drones),
			"last_heartbeat_at": last,
			"grace_ms":          r.opts.Grace.Milliseconds(),
			"status":            "relay_evicted",
		}).Info("中继心跳超时，已驱逐")
		r.obs.RelayRemoved(rec.name, true)
		return
	}
}
