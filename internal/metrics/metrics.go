package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors for the signal pipeline. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Evaluations       *prometheus.CounterVec
	SignalChanges     *prometheus.CounterVec
	TickErrors        *prometheus.CounterVec
	ActiveProcessors  prometheus.Gauge
	ConnectionState   prometheus.Gauge
	ReconnectAttempts prometheus.Counter
	Refreshes         *prometheus.CounterVec
	SinkErrors        *prometheus.CounterVec
}

// New builds the collectors and registers them on reg when reg is non-nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_evaluations_total",
			Help: "Decision engine evaluations by candle size",
		}, []string{"candle_size"}),
		SignalChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_changes_total",
			Help: "Reported signal changes by signal and candle size",
		}, []string{"signal", "candle_size"}),
		TickErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_tick_errors_total",
			Help: "Processor ticks that failed to fetch or evaluate candles",
		}, []string{"candle_size"}),
		ActiveProcessors: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signal_active_processors",
			Help: "Instrument processors currently registered",
		}),
		ConnectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "feed_connection_state",
			Help: "Feed connection state (0=disconnected, 1=connecting, 2=connected)",
		}),
		ReconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feed_reconnect_attempts_total",
			Help: "Feed reconnection attempts",
		}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "supervisor_refresh_total",
			Help: "Supervisor refresh cycles by result",
		}, []string{"result"}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_sink_errors_total",
			Help: "Failed signal sink writes by sink",
		}, []string{"sink"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.Evaluations,
			m.SignalChanges,
			m.TickErrors,
			m.ActiveProcessors,
			m.ConnectionState,
			m.ReconnectAttempts,
			m.Refreshes,
			m.SinkErrors,
		)
	}
	return m
}

func (m *Metrics) ObserveEvaluation(candleSize int) {
	if m == nil {
		return
	}
	m.Evaluations.WithLabelValues(strconv.Itoa(candleSize)).Inc()
}

func (m *Metrics) ObserveSignalChange(signal string, candleSize int) {
	if m == nil {
		return
	}
	m.SignalChanges.WithLabelValues(signal, strconv.Itoa(candleSize)).Inc()
}

func (m *Metrics) ObserveTickError(candleSize int) {
	if m == nil {
		return
	}
	m.TickErrors.WithLabelValues(strconv.Itoa(candleSize)).Inc()
}

func (m *Metrics) SetActiveProcessors(n int) {
	if m == nil {
		return
	}
	m.ActiveProcessors.Set(float64(n))
}

func (m *Metrics) SetConnectionState(state int) {
	if m == nil {
		return
	}
	m.ConnectionState.Set(float64(state))
}

func (m *Metrics) ObserveReconnectAttempt() {
	if m == nil {
		return
	}
	m.ReconnectAttempts.Inc()
}

func (m *Metrics) ObserveRefresh(result string) {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveSinkError(sink string) {
	if m == nil {
		return
	}
	m.SinkErrors.WithLabelValues(sink).Inc()
}
