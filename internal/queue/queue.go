// Package queue содержит потокобезопасную очередь передачи данных между
// сетевой горутиной и горутиной симуляции.
package queue

import "sync"

// Queue FIFO очередь под мьютексом. Нулевое значение готово к работе.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	notify chan struct{}
}

// New создаёт очередь
func New[T any]() *Queue[T] {
	return &Queue[T]{notify: make(chan struct{}, 1)}
}

// Push добавляет элемент в хвост
func (q *Queue[T]) Push(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
	q.signal()
}

// Drain забирает всё накопленное одним вызовом
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	return out
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Ready канал, в который приходит сигнал после Push. Сигналы схлопываются.
// Для очереди, созданной без New, возвращает nil.
func (q *Queue[T]) Ready() <-chan struct{} {
	return q.notify
}

func (q *Queue[T]) signal() {
	if q.notify == nil {
		return
	}
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
