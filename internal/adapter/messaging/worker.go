package messaging

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rl1809/shophub/internal/core/domain"
	"github.com/rl1809/shophub/internal/port"
)

const publishTimeout = 5 * time.Second

// StartWorkers drains the queue with n workers until it is closed. The
// returned function blocks until every worker has exited.
func StartWorkers(n int, queue <-chan domain.OrderEvent, publisher port.OrderEventPublisher, logger zerolog.Logger) func() {
	if n < 1 {
		n = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			workerLoop(id, queue, publisher, logger)
		}(i)
	}
	logger.Info().Int("workers", n).Msg("started event workers")

	return wg.Wait
}

func workerLoop(id int, queue <-chan domain.OrderEvent, publisher port.OrderEventPublisher, logger zerolog.Logger) {
	for event := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)

		if err := publisher.PublishOrderEvent(ctx, event); err != nil {
			logger.Error().Err(err).
				Int("worker", id).
				Str("order_id", event.OrderID).
				Str("type", string(event.Type)).
				Msg("failed to publish order event")
		} else {
			logger.Debug().
				Int("worker", id).
				Str("order_id", event.OrderID).
				Str("type", string(event.Type)).
				Msg("published order event")
		}

		cancel()
	}
}
