package metrics

type NoopMetricsService struct {
}

func newNoopMetricsService() *NoopMetricsService {
	return &NoopMetricsService{}
}

func (nms *NoopMetricsService) IncMessagesAddedTotalBy(count int64, queueName string) {
	// no-op
}

func (nms *NoopMetricsService) IncMessagesReceivedTotalBy(count int64, queueName string) {
	// no-op
}

func (nms *NoopMetricsService) IncMessagesDeletedTotalBy(count int64, queueName string, reason string) {
	// no-op
}

func (nms *NoopMetricsService) IncMessagesUpdatedTotalBy(count int64, queueName string) {
	// no-op
}

func (nms *NoopMetricsService) IncStaleHandleRejectionsTotalBy(count int64, queueName string) {
	// no-op
}

func (nms *NoopMetricsService) SetQueueDepth(queueName string, state string, depth int64) {
	// no-op
}
