package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records identifier issuance and block reservations. It satisfies
// incrementer.Observer.
type Metrics struct {
	idsIssued          *prometheus.CounterVec
	blocksReserved     *prometheus.CounterVec
	reservationErrors  *prometheus.CounterVec
	reservationSeconds *prometheus.HistogramVec
	currentValue       *prometheus.GaugeVec
}

func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		idsIssued: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "ids_issued_total",
			Help: "Total number of identifiers handed out",
		}, []string{"kind"}),
		blocksReserved: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "blocks_reserved_total",
			Help: "Total number of blocks reserved on the backing store",
		}, []string{"kind"}),
		reservationErrors: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "block_reservation_errors_total",
			Help: "Total number of failed block reservations",
		}, []string{"kind"}),
		reservationSeconds: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "block_reservation_seconds",
			Help:    "Time spent reserving a block",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"kind"}),
		currentValue: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "sequence_current_value",
			Help: "Last identifier issued by a block-backed generator",
		}, []string{"kind"}),
	}
}

// IDsIssued counts n identifiers of kind handed to a caller.
func (m *Metrics) IDsIssued(kind string, n int) {
	m.idsIssued.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) BlockReserved(name string, increment uint64, took time.Duration, err error) {
	if err != nil {
		m.reservationErrors.WithLabelValues(name).Inc()
		return
	}
	m.blocksReserved.WithLabelValues(name).Inc()
	m.reservationSeconds.WithLabelValues(name).Observe(took.Seconds())
}

func (m *Metrics) IDIssued(name string, id uint64) {
	m.currentValue.WithLabelValues(name).Set(float64(id))
}
