package eventbus

import (
	"context"

	"github.com/annel0/sandbox-game/internal/logging"
)

// StartLoggingListener пишет каждое событие шины в журнал компонента "events".
// События с приоритетом от HighPriority идут на уровне INFO, прочие на DEBUG.
func StartLoggingListener(ctx context.Context, bus EventBus) (Subscription, error) {
	log := logging.Component("events")
	sub, err := bus.Subscribe(ctx, Filter{}, func(_ context.Context, ev *Envelope) {
		if ev.Priority >= HighPriority {
			log.Info("%s от %s: %d байт", ev.EventType, ev.Source, len(ev.Payload))
			return
		}
		log.Debug("%s от %s: %d байт (id=%s)", ev.EventType, ev.Source, len(ev.Payload), ev.ID)
	})
	if err != nil {
		return nil, err
	}
	log.Info("🪵 журнал событий подключён")
	return sub, nil
}
