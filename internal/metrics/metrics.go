// Package metrics implements the prometheus instrument set (spec
// §4.10) and the live.Recorder interface LiveBracket/LiveRegistry
// report through, so those packages never import prometheus directly.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics owns the instruments (registered against the Registerer
// passed to New), constructed once at startup and passed by constructor injection (spec §4.9/§4.10).
type Metrics struct {
	subscribers        *prometheus.GaugeVec
	eventsDropped      *prometheus.CounterVec
	lagEvents          *prometheus.CounterVec
	commandDuration    *prometheus.HistogramVec
	storeWriteDuration *prometheus.HistogramVec
	storeWriteFailures *prometheus.CounterVec
}

// New registers every instrument against reg and returns the bound
// Metrics. Use prometheus.NewRegistry() for an isolated registry in
// tests, or prometheus.DefaultRegisterer in production.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		subscribers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "livebracket_subscribers",
			Help: "Current number of live subscribers per bracket.",
		}, []string{"tournament_id", "bracket_id"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livebracket_events_dropped_total",
			Help: "Total events dropped from a subscriber's mailbox on overflow.",
		}, []string{"tournament_id", "bracket_id"}),
		lagEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livebracket_lag_events_total",
			Help: "Total subscriber mailbox overflows, counted on every push that dropped an event.",
		}, []string{"tournament_id", "bracket_id"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "livebracket_command_duration_seconds",
			Help: "Duration of a bracket.State mutation, by command kind.",
		}, []string{"command"}),
		storeWriteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "livebracket_store_write_duration_seconds",
			Help: "Duration of a Store.SaveBracketState call, by backend.",
		}, []string{"backend"}),
		storeWriteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livebracket_store_write_failures_total",
			Help: "Total Store.SaveBracketState calls that exhausted retries.",
		}, []string{"backend"}),
	}
	reg.MustRegister(m.subscribers, m.eventsDropped, m.lagEvents, m.commandDuration, m.storeWriteDuration, m.storeWriteFailures)
	return m
}

func (m *Metrics) SetSubscribers(tournamentID, bracketID uint64, n int) {
	m.subscribers.WithLabelValues(u64(tournamentID), u64(bracketID)).Set(float64(n))
}

func (m *Metrics) IncDropped(tournamentID, bracketID uint64) {
	m.eventsDropped.WithLabelValues(u64(tournamentID), u64(bracketID)).Inc()
}

func (m *Metrics) IncLagged(tournamentID, bracketID uint64) {
	m.lagEvents.WithLabelValues(u64(tournamentID), u64(bracketID)).Inc()
}

func (m *Metrics) ObserveCommand(kind string, d time.Duration) {
	m.commandDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) ObserveStoreWrite(backend string, d time.Duration) {
	m.storeWriteDuration.WithLabelValues(backend).Observe(d.Seconds())
}

func (m *Metrics) IncStoreWriteFailure(backend string) {
	m.storeWriteFailures.WithLabelValues(backend).Inc()
}

func u64(v uint64) string { return strconv.FormatUint(v, 10) }
