package handler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	intentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goldledger_intents_total",
		Help: "Количество обработанных намерений по видам и исходам.",
	}, []string{"kind", "outcome"})

	intentDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "goldledger_intent_duration_seconds",
		Help:    "Длительность обработки намерений.",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"kind"})
)

func observeIntent(kind, outcome string, d time.Duration) {
	intentsTotal.WithLabelValues(kind, outcome).Inc()
	if d > 0 {
		intentDuration.WithLabelValues(kind).Observe(d.Seconds())
	}
}
