package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type PrometheusMetricsService struct {
	messagesAddedTotal         *prometheus.CounterVec
	messagesReceivedTotal      *prometheus.CounterVec
	messagesDeletedTotal       *prometheus.CounterVec
	messagesUpdatedTotal       *prometheus.CounterVec
	staleHandleRejectionsTotal *prometheus.CounterVec
	queueDepth                 *prometheus.GaugeVec
}

func newPrometheusMetricsService() *PrometheusMetricsService {
	srv := &PrometheusMetricsService{
		messagesAddedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "venq_messages_added_total",
				Help: "Total number of messages added to the queue by producers",
			},
			[]string{"queue_name"},
		),

		messagesReceivedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "venq_messages_received_total",
				Help: "Total number of messages handed to consumers. Note, this counts receive events, not unique messages: a message redelivered after its visibility timeout counts again",
			},
			[]string{"queue_name"},
		),

		messagesDeletedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "venq_messages_deleted_total",
				Help: "Total number of messages permanently removed from the queue",
			},
			[]string{"queue_name", "reason"},
		),

		messagesUpdatedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "venq_messages_updated_total",
				Help: "Total number of message body updates",
			},
			[]string{"queue_name"},
		),

		// stale rejections are indistinguishable from not-found at the API
		// boundary, so this counter is the only place they stay observable
		staleHandleRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "venq_stale_handle_rejections_total",
				Help: "Total number of delete attempts with a receipt handle that no longer matches any record",
			},
			[]string{"queue_name"},
		),

		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "venq_queue_depth",
				Help: "Current number of messages in the queue, split by visibility state",
			},
			[]string{"queue_name", "state"},
		),
	}

	prometheus.MustRegister(srv.messagesAddedTotal)
	prometheus.MustRegister(srv.messagesReceivedTotal)
	prometheus.MustRegister(srv.messagesDeletedTotal)
	prometheus.MustRegister(srv.messagesUpdatedTotal)
	prometheus.MustRegister(srv.staleHandleRejectionsTotal)
	prometheus.MustRegister(srv.queueDepth)

	return srv
}

func (pms *PrometheusMetricsService) IncMessagesAddedTotalBy(count int64, queueName string) {
	pms.messagesAddedTotal.WithLabelValues(queueName).Add(float64(count))
}

func (pms *PrometheusMetricsService) IncMessagesReceivedTotalBy(count int64, queueName string) {
	pms.messagesReceivedTotal.WithLabelValues(queueName).Add(float64(count))
}

func (pms *PrometheusMetricsService) IncMessagesDeletedTotalBy(count int64, queueName string, reason string) {
	pms.messagesDeletedTotal.WithLabelValues(queueName, reason).Add(float64(count))
}

func (pms *PrometheusMetricsService) IncMessagesUpdatedTotalBy(count int64, queueName string) {
	pms.messagesUpdatedTotal.WithLabelValues(queueName).Add(float64(count))
}

func (pms *PrometheusMetricsService) IncStaleHandleRejectionsTotalBy(count int64, queueName string) {
	pms.staleHandleRejectionsTotal.WithLabelValues(queueName).Add(float64(count))
}

func (pms *PrometheusMetricsService) SetQueueDepth(queueName string, state string, depth int64) {
	pms.queueDepth.WithLabelValues(queueName, state).Set(float64(depth))
}
