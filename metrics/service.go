package metrics

const (
	DeletedByHandleReason     = "by_handle"
	DeletedByIDReason         = "by_id"
	DeletedAfterReceiveReason = "after_receive"
	DeletedByClearReason      = "cleared"

	VisibleState   = "visible"
	InvisibleState = "invisible"
)

type Service interface {
	IncMessagesAddedTotalBy(count int64, queueName string)
	IncMessagesReceivedTotalBy(count int64, queueName string)
	IncMessagesDeletedTotalBy(count int64, queueName string, reason string)
	IncMessagesUpdatedTotalBy(count int64, queueName string)
	IncStaleHandleRejectionsTotalBy(count int64, queueName string)
	SetQueueDepth(queueName string, state string, depth int64)
}

func NewMetricsService(metricsEnabled bool) Service {
	if metricsEnabled {
		return newPrometheusMetricsService()
	}
	return newNoopMetricsService()
}
