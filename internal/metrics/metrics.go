package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics - метрики Prometheus бота. Нулевой указатель допустим: методы ничего не делают.
type Metrics struct {
	UpdatesProcessed     *prometheus.CounterVec
	UpdateProcessingTime prometheus.Histogram
	BookingsCreated      *prometheus.CounterVec
	ReviewsCreated       prometheus.Counter
	VenuesAdded          prometheus.Counter
	VenuesRemoved        prometheus.Counter
	NotifyFailures       prometheus.Counter
	Rejections           *prometheus.CounterVec
	ErrorsTotal          prometheus.Counter
}

// New регистрирует метрики в reg. Для тестов удобно передавать prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		UpdatesProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rezme_updates_processed_total",
			Help: "Total number of processed updates by kind",
		}, []string{"kind"}),

		UpdateProcessingTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rezme_update_processing_time_seconds",
			Help:    "Time spent processing updates",
			Buckets: prometheus.DefBuckets,
		}),

		BookingsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rezme_bookings_created_total",
			Help: "Bookings created by selection mode",
		}, []string{"mode"}),

		ReviewsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "rezme_reviews_created_total",
			Help: "Reviews created",
		}),

		VenuesAdded: factory.NewCounter(prometheus.CounterOpts{
			Name: "rezme_venues_added_total",
			Help: "Venues added by the operator",
		}),

		VenuesRemoved: factory.NewCounter(prometheus.CounterOpts{
			Name: "rezme_venues_removed_total",
			Help: "Venues removed by the operator",
		}),

		NotifyFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "rezme_notify_failures_total",
			Help: "Operator notifications that failed to deliver",
		}),

		Rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rezme_flow_rejections_total",
			Help: "Non-advancing rejections by reason",
		}, []string{"reason"}),

		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "rezme_errors_total",
			Help: "Total number of handler errors",
		}),
	}
}

func (m *Metrics) IncUpdate(kind string) {
	if m != nil {
		m.UpdatesProcessed.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) ObserveUpdate(seconds float64) {
	if m != nil {
		m.UpdateProcessingTime.Observe(seconds)
	}
}

func (m *Metrics) IncBooking(mode string) {
	if m != nil {
		m.BookingsCreated.WithLabelValues(mode).Inc()
	}
}

func (m *Metrics) IncReview() {
	if m != nil {
		m.ReviewsCreated.Inc()
	}
}

func (m *Metrics) IncVenueAdded() {
	if m != nil {
		m.VenuesAdded.Inc()
	}
}

func (m *Metrics) IncVenueRemoved() {
	if m != nil {
		m.VenuesRemoved.Inc()
	}
}

func (m *Metrics) IncNotifyFailure() {
	if m != nil {
		m.NotifyFailures.Inc()
	}
}

func (m *Metrics) IncRejection(reason string) {
	if m != nil {
		m.Rejections.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) IncError() {
	if m != nil {
		m.ErrorsTotal.Inc()
	}
}
