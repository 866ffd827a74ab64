package monitor

import "github.com/prometheus/client_golang/prometheus"

// metrics are the session's instrument readings and poll-loop counters
// exported for scraping
type metrics struct {
	discharge  prometheus.Gauge
	beam       prometheus.Gauge
	pressure   prometheus.Gauge
	permitted  prometheus.Gauge
	polls      prometheus.Counter
	pollErrors prometheus.Counter
	sequences  prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &metrics{
		discharge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ionsrv",
			Name:      "discharge_current_amps",
			Help:      "Discharge current from the last source status read.",
		}),
		beam: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ionsrv",
			Name:      "beam_current_milliamps",
			Help:      "Beam current from the last source status read.",
		}),
		pressure: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ionsrv",
			Name:      "chamber_pressure_mbar",
			Help:      "Chamber pressure from the last gauge read.",
		}),
		permitted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ionsrv",
			Name:      "source_permitted",
			Help:      "1 when the pressure interlock allows source enable.",
		}),
		polls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ionsrv",
			Name:      "polls_total",
			Help:      "Source status polls attempted.",
		}),
		pollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ionsrv",
			Name:      "poll_errors_total",
			Help:      "Source status polls that failed.",
		}),
		sequences: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ionsrv",
			Name:      "beam_sequences_total",
			Help:      "Timed beam sequences completed.",
		}),
	}
	reg.MustRegister(m.discharge, m.beam, m.pressure, m.permitted,
		m.polls, m.pollErrors, m.sequences)
	return m
}
