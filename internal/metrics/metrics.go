// Package metrics holds the Prometheus collectors updated by the monitor,
// the settlement orchestrator and the profile manager.
//
//   - p2p_monitor_cycles_total{result}          completed monitor cycles (ok|idle|error)
//   - p2p_market_fetch_errors_total{fiat}       per-market failures skipped within a cycle
//   - p2p_snapshots_recorded_total{fiat,side}   snapshots appended to the store
//   - p2p_monitor_next_wait_seconds             wait chosen after the last full pass
//   - p2p_settlement_outcomes_total{state}      terminal state of settlement runs
//   - p2p_security_alerts_total                 verification mismatches
//   - p2p_profile_lock_contention_total{profile} fail-fast lock rejections
//   - p2p_profile_heartbeats_total{profile}     lock-file refreshes
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	MonitorCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "p2p_monitor_cycles_total",
			Help: "Price monitor cycles by result",
		},
		[]string{"result"},
	)

	MarketFetchErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "p2p_market_fetch_errors_total",
			Help: "Per-market fetch failures isolated by the monitor",
		},
		[]string{"fiat"},
	)

	SnapshotsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "p2p_snapshots_recorded_total",
			Help: "Market price snapshots appended to the store",
		},
		[]string{"fiat", "side"},
	)

	MonitorNextWait = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "p2p_monitor_next_wait_seconds",
			Help: "Wait chosen after the last full monitor pass",
		},
	)

	SettlementOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "p2p_settlement_outcomes_total",
			Help: "Settlement runs by terminal state",
		},
		[]string{"state"},
	)

	SecurityAlerts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "p2p_security_alerts_total",
			Help: "Payment verifications that failed closed",
		},
	)

	LockContention = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "p2p_profile_lock_contention_total",
			Help: "Profile lock acquisitions rejected because a live owner exists",
		},
		[]string{"profile"},
	)

	Heartbeats = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "p2p_profile_heartbeats_total",
			Help: "Profile lock-file heartbeat refreshes",
		},
		[]string{"profile"},
	)
)

func init() {
	prometheus.MustRegister(
		MonitorCycles,
		MarketFetchErrors,
		SnapshotsRecorded,
		MonitorNextWait,
		SettlementOutcomes,
		SecurityAlerts,
		LockContention,
		Heartbeats,
	)
}
