package configs

import "time"

type AppConfigs struct {
	DefaultVisibilityTimeout time.Duration
	LockAcquireTimeout       time.Duration // upper bound on waiting for the store lock before failing as retryable
	RemoteRequestTimeout     time.Duration // per-request timeout for the remote store adapter
	SaveRetryAttempts        int           // retries on optimistic-concurrency conflicts against the remote store
	JobsIntervals            JobsIntervals
	ServerConfig             ServerConfig
}

type JobsIntervals struct {
	QueuesDepthMetricsMs int64 // Interval for exporting per-queue depth gauges
}

type ServerConfig struct {
	Timeouts ServerTimeouts
}

type ServerTimeouts struct {
	Handle     time.Duration
	Write      time.Duration
	Read       time.Duration
	ReadHeader time.Duration
	Idle       time.Duration
}

func NewAppConfig() *AppConfigs {
	return &AppConfigs{
		DefaultVisibilityTimeout: 30 * time.Second,
		LockAcquireTimeout:       5 * time.Second,
		RemoteRequestTimeout:     10 * time.Second,
		SaveRetryAttempts:        3,
		JobsIntervals: JobsIntervals{
			QueuesDepthMetricsMs: 30 * 1000, // 30 seconds
		},
		ServerConfig: ServerConfig{
			Timeouts: ServerTimeouts{
				Handle:     30 * time.Second,
				Write:      35 * time.Second,
				Read:       35 * time.Second,
				ReadHeader: 10 * time.Second, // headers shouldn't take long
				Idle:       5 * time.Minute,  // keep connections alive
			},
		},
	}
}
