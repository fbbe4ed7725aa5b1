// Package metrics holds the Prometheus collectors shared by the bridge.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	logLines = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "craftbridge_log_lines_total",
		Help: "Process output lines read, by stream and parse result",
	}, []string{"stream", "result"})
	events = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "craftbridge_events_total",
		Help: "Game events classified from the server log, by kind",
	}, []string{"kind"})
	dispatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "craftbridge_dispatch_total",
		Help: "Chat command dispatches, by outcome",
	}, []string{"outcome"})
	rconAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "craftbridge_rcon_attempts_total",
		Help: "RCON command attempts, including retries",
	})
	rconFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "craftbridge_rcon_failures_total",
		Help: "RCON failures, by reason",
	}, []string{"reason"})
	rconConnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "craftbridge_rcon_connects_total",
		Help: "RCON connections opened and authenticated",
	})
	rconConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "craftbridge_rcon_connected",
		Help: "Whether an authenticated RCON connection is held (1 or 0)",
	})
	shellRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "craftbridge_shell_runs_total",
		Help: "Shell commands executed from chat, by outcome",
	}, []string{"outcome"})
	playersOnline = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "craftbridge_players_online",
		Help: "Players online at the last poll",
	})
)

// Registry is the registry every collector above is registered with.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		logLines,
		events,
		dispatches,
		rconAttempts,
		rconFailures,
		rconConnects,
		rconConnected,
		shellRuns,
		playersOnline,
	)
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

func LogLine(stream, result string) { logLines.WithLabelValues(stream, result).Inc() }

func Event(kind string) { events.WithLabelValues(kind).Inc() }

func Dispatch(outcome string) { dispatches.WithLabelValues(outcome).Inc() }

func RCONAttempt() { rconAttempts.Inc() }

func RCONFailure(reason string) { rconFailures.WithLabelValues(reason).Inc() }

func RCONConnected(v bool) {
	if v {
		rconConnects.Inc()
		rconConnected.Set(1)
	} else {
		rconConnected.Set(0)
	}
}

func ShellRun(outcome string) { shellRuns.WithLabelValues(outcome).Inc() }

func PlayersOnline(n int) { playersOnline.Set(float64(n)) }
