package metrics

import (
	"context"
	"time"

	"venq/metrics"
	"venq/services"

	"github.com/rs/zerolog/log"
)

// QueuesDepthMetricsJob periodically exports per-queue depth gauges split by
// visibility state. It is observability only: visibility expiry itself stays
// lazy and never depends on this ticker.
type QueuesDepthMetricsJob struct {
	ticker *time.Ticker
	done   chan struct{}
}

func NewQueuesDepthMetricsJob(metricsService metrics.Service, registry *services.QueueRegistry, intervalMs int64) *QueuesDepthMetricsJob {
	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				ctx, cancelFunc := context.WithTimeout(context.Background(), time.Duration(intervalMs-1000)*time.Millisecond)
				for _, queueName := range registry.QueueNames() {
					queueService, err := registry.Queue(queueName)
					if err != nil {
						continue
					}
					stats, err := queueService.Stats(ctx)
					if err != nil {
						log.Error().Err(err).Str("queue", queueName).Msg("failed to fetch queue stats by QueuesDepthMetricsJob")
						continue
					}
					metricsService.SetQueueDepth(queueName, metrics.VisibleState, int64(stats.Visible))
					metricsService.SetQueueDepth(queueName, metrics.InvisibleState, int64(stats.Invisible))
				}
				cancelFunc()
			case <-done:
				return
			}
		}
	}()

	return &QueuesDepthMetricsJob{
		ticker: ticker,
		done:   done,
	}
}

func (j *QueuesDepthMetricsJob) Close() error {
	j.ticker.Stop()
	close(j.done)
	return nil
}
