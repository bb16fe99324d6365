package services

import (
	"regexp"
	"sort"
	"sync"

	"venq/common"
	"venq/configs"
	"venq/metrics"
	"venq/store"

	"github.com/rs/zerolog/log"
)

// StoreFactory builds the MessageStore backing a named queue.
type StoreFactory func(queueName string) (store.MessageStore, error)

var queueNameRegexp = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{0,63}$`)

// QueueRegistry lazily creates one QueueService per queue name on the server
// side. Queues come into existence on first use.
type QueueRegistry struct {
	newStore       StoreFactory
	appConfigs     *configs.AppConfigs
	metricsService metrics.Service

	mu     sync.Mutex
	queues map[string]*QueueService
}

func NewQueueRegistry(newStore StoreFactory, appConfigs *configs.AppConfigs, metricsService metrics.Service) *QueueRegistry {
	return &QueueRegistry{
		newStore:       newStore,
		appConfigs:     appConfigs,
		metricsService: metricsService,
		queues:         make(map[string]*QueueService),
	}
}

func (qr *QueueRegistry) Queue(queueName string) (*QueueService, error) {
	if !queueNameRegexp.MatchString(queueName) {
		return nil, common.ErrBadRequestInvalidQueue
	}

	qr.mu.Lock()
	defer qr.mu.Unlock()

	if qs, found := qr.queues[queueName]; found {
		return qs, nil
	}

	messageStore, err := qr.newStore(queueName)
	if err != nil {
		log.Error().Err(err).Str("queue", queueName).Msg("failed to create store for queue")
		return nil, err
	}

	qs := NewQueueService(queueName, messageStore, qr.appConfigs, qr.metricsService)
	qr.queues[queueName] = qs
	return qs, nil
}

// QueueNames lists the queues this registry has instantiated, sorted.
func (qr *QueueRegistry) QueueNames() []string {
	qr.mu.Lock()
	defer qr.mu.Unlock()

	names := make([]string, 0, len(qr.queues))
	for name := range qr.queues {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (qr *QueueRegistry) Close() error {
	qr.mu.Lock()
	defer qr.mu.Unlock()

	for name, qs := range qr.queues {
		if err := qs.Close(); err != nil {
			log.Warn().Err(err).Str("queue", name).Msg("failed to close queue store")
		}
	}
	return nil
}
