package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeUnavailable = "unavailable"
	OutcomeRejected    = "rejected"
)

type Metrics struct {
	Generations  *prometheus.CounterVec
	Checks       *prometheus.CounterVec
	VoiceCapture *prometheus.CounterVec
	HistorySaves *prometheus.CounterVec
	TasksPanics  prometheus.Counter
}

var (
	once   sync.Once
	global *Metrics
)

func Global() *Metrics {
	once.Do(func() {
		global = &Metrics{
			Generations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "buddy",
				Name:      "generations_total",
				Help:      "Total provider generations by outcome",
			}, []string{"provider", "outcome"}),
			Checks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "buddy",
				Name:      "connectivity_checks_total",
				Help:      "Total provider connectivity checks by outcome",
			}, []string{"provider", "outcome"}),
			VoiceCapture: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "buddy",
				Name:      "voice_captures_total",
				Help:      "Total voice capture attempts by outcome",
			}, []string{"outcome"}),
			HistorySaves: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "buddy",
				Name:      "history_saves_total",
				Help:      "Total history snapshot saves by outcome",
			}, []string{"outcome"}),
			TasksPanics: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "buddy",
				Name:      "task_panics_total",
				Help:      "Total background tasks that panicked",
			}),
		}
		prometheus.MustRegister(global.Generations, global.Checks, global.VoiceCapture, global.HistorySaves, global.TasksPanics)
	})
	return global
}

func (m *Metrics) ObserveGeneration(provider, outcome string) {
	m.Generations.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) ObserveCheck(provider, outcome string) {
	m.Checks.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) ObserveVoice(outcome string) {
	m.VoiceCapture.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSave(err error) {
	if err != nil {
		m.HistorySaves.WithLabelValues(OutcomeError).Inc()
		return
	}
	m.HistorySaves.WithLabelValues(OutcomeOK).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
