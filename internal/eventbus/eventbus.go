package eventbus

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

var ErrBusClosed = errors.New("eventbus: bus is closed")

// Envelope конверт события; в JetStream уходит как JSON.
type Envelope struct {
	ID            string            // UUID, он же Nats-Msg-Id
	Timestamp     time.Time         // UTC
	Source        string            // имя сервиса-источника
	EventType     string            // PlayerJoined, ConsoleMessage...
	Version       int               // версия схемы полезной нагрузки
	CorrelationID string
	Priority      int // 0..9; ниже HighPriority при переполнении отбрасывается
	Payload       []byte
	Metadata      map[string]string
}

// HighPriority события с приоритетом не ниже этого не отбрасываются:
// Publish ждёт места в очереди подписчика
const HighPriority = 5

// Filter отбор событий по типу и источнику; пустой список пропускает всё
type Filter struct {
	Types   []string
	Sources []string
}

// Match true, если событие проходит фильтр
func (f Filter) Match(ev *Envelope) bool {
	return (len(f.Types) == 0 || slices.Contains(f.Types, ev.EventType)) &&
		(len(f.Sources) == 0 || slices.Contains(f.Sources, ev.Source))
}

// Subscription возвращается при подписке; позволяет отписаться.
type Subscription interface {
	Unsubscribe()
}

// Handler потребляет события.
type Handler func(ctx context.Context, ev *Envelope)

// Stats агрегированные метрики шины.
type Stats struct {
	Published uint64
	Consumed  uint64
	Dropped   uint64
	InFlight  int
}

// EventBus абстракция шины событий: в памяти или NATS JetStream.
type EventBus interface {
	Publish(ctx context.Context, ev *Envelope) error
	Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error)
	Metrics() Stats
	Close() error
}

//================ In-Memory implementation =================//

// memoryBus у каждого подписчика своя очередь и своя горутина,
// поэтому события доходят до подписчика в порядке публикации
type memoryBus struct {
	capacity int

	mu     sync.RWMutex
	subs   map[int]*memSub
	nextID int
	closed bool

	published atomic.Uint64
	consumed  atomic.Uint64
	dropped   atomic.Uint64
	workers   sync.WaitGroup
}

type memSub struct {
	bus     *memoryBus
	id      int
	filter  Filter
	handler Handler
	ctx     context.Context
	cancel  context.CancelFunc
	inbox   chan *Envelope
}

// NewMemoryBus создаёт шину в памяти; capacity размер очереди каждого подписчика
func NewMemoryBus(capacity int) EventBus {
	if capacity <= 0 {
		capacity = 64
	}
	return &memoryBus{capacity: capacity, subs: make(map[int]*memSub)}
}

func (mb *memoryBus) Publish(ctx context.Context, ev *Envelope) error {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return ErrBusClosed
	}
	mb.published.Add(1)

	for _, sub := range mb.subs {
		if !sub.filter.Match(ev) {
			continue
		}
		select {
		case sub.inbox <- ev:
			continue
		default:
		}
		if ev.Priority < HighPriority {
			mb.dropped.Add(1)
			continue
		}
		select {
		case sub.inbox <- ev:
		case <-sub.ctx.Done():
			mb.dropped.Add(1)
		case <-ctx.Done():
			mb.dropped.Add(1)
			return ctx.Err()
		}
	}
	return nil
}

func (mb *memoryBus) Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return nil, ErrBusClosed
	}

	sctx, cancel := context.WithCancel(ctx)
	sub := &memSub{
		bus:     mb,
		id:      mb.nextID,
		filter:  f,
		handler: h,
		ctx:     sctx,
		cancel:  cancel,
		inbox:   make(chan *Envelope, mb.capacity),
	}
	mb.nextID++
	mb.subs[sub.id] = sub

	mb.workers.Add(1)
	go sub.deliver()
	return sub, nil
}

// deliver вызывает обработчик до закрытия очереди; после отписки
// оставшиеся события пропускаются
func (s *memSub) deliver() {
	defer s.bus.workers.Done()
	for ev := range s.inbox {
		if s.ctx.Err() != nil {
			continue
		}
		s.handler(s.ctx, ev)
		s.bus.consumed.Add(1)
	}
}

func (s *memSub) Unsubscribe() {
	// отмена раньше блокировки: Publish может ждать места в очереди
	s.cancel()
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if _, ok := s.bus.subs[s.id]; ok {
		delete(s.bus.subs, s.id)
		close(s.inbox)
	}
}

func (mb *memoryBus) Metrics() Stats {
	mb.mu.RLock()
	inflight := 0
	for _, sub := range mb.subs {
		inflight += len(sub.inbox)
	}
	mb.mu.RUnlock()

	return Stats{
		Published: mb.published.Load(),
		Consumed:  mb.consumed.Load(),
		Dropped:   mb.dropped.Load(),
		InFlight:  inflight,
	}
}

// Close прекращает приём событий и дожидается доставки уже принятых
func (mb *memoryBus) Close() error {
	mb.mu.Lock()
	if mb.closed {
		mb.mu.Unlock()
		return nil
	}
	mb.closed = true
	subs := make([]*memSub, 0, len(mb.subs))
	for id, sub := range mb.subs {
		close(sub.inbox)
		delete(mb.subs, id)
		subs = append(subs, sub)
	}
	mb.mu.Unlock()

	mb.workers.Wait()
	for _, sub := range subs {
		sub.cancel()
	}
	return nil
}
