package platform

import "github.com/prometheus/client_golang/prometheus"

// Metrics exports training progress. A nil *Metrics records nothing.
type Metrics struct {
	generations prometheus.Counter
	originals   prometheus.Counter
	saves       prometheus.Counter
	score       prometheus.Gauge
	average     prometheus.Gauge
	edges       prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		generations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cellmind",
			Name:      "generations_total",
			Help:      "Generations trained.",
		}),
		originals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cellmind",
			Name:      "original_wins_total",
			Help:      "Generations won by the unmutated base network.",
		}),
		saves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cellmind",
			Name:      "network_saves_total",
			Help:      "Network checkpoints written.",
		}),
		score: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cellmind",
			Name:      "winner_score",
			Help:      "Aggregate score of the latest generation winner.",
		}),
		average: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cellmind",
			Name:      "window_average_score",
			Help:      "Rolling average of winner scores.",
		}),
		edges: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cellmind",
			Name:      "network_edges",
			Help:      "Edge count of the current network.",
		}),
	}
	for _, c := range []prometheus.Collector{m.generations, m.originals, m.saves, m.score, m.average, m.edges} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeGeneration(score int, average float64, edges int, original bool) {
	if m == nil {
		return
	}
	m.generations.Inc()
	if original {
		m.originals.Inc()
	}
	m.score.Set(float64(score))
	m.average.Set(average)
	m.edges.Set(float64(edges))
}

func (m *Metrics) observeSave() {
	if m == nil {
		return
	}
	m.saves.Inc()
}
