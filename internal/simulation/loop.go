// Package simulation крутит мир в отдельной горутине: команды из сетевой
// горутины, шаги физики по прошедшему времени, периодические задачи.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/annel0/sandbox-game/internal/logging"
	"github.com/annel0/sandbox-game/internal/queue"
	"github.com/annel0/sandbox-game/internal/world"
)

var ErrStopped = errors.New("simulation: loop stopped")

// Command изменение мира, выполняемое горутиной симуляции.
// Ошибка команды считается нарушением инварианта и останавливает цикл.
type Command func(w *world.World) error

// StepFunc один под-шаг длиной dt секунд
type StepFunc func(w *world.World, dt float32) error

// UpdateStep полноценная симуляция сервера
func UpdateStep(w *world.World, dt float32) error { return w.Update(dt) }

// ExtrapolateStep продвижение реплики на клиенте
func ExtrapolateStep(w *world.World, dt float32) error {
	w.Extrapolate(dt)
	return nil
}

type Config struct {
	MaxTimestep time.Duration
	FrameSleep  time.Duration
}

type scheduledTask struct {
	interval time.Duration
	next     time.Time
	cmd      Command
}

// Loop цикл обновления мира. Мир принадлежит горутине Run; остальные
// горутины обращаются к нему только через Submit и Query.
type Loop struct {
	world    *world.World
	step     StepFunc
	config   Config
	commands *queue.Queue[Command]
	tasks    chan scheduledTask
	paused   atomic.Bool
	done     chan struct{}
	started  atomic.Bool
	logger   *logging.Logger
}

func New(w *world.World, cfg Config, step StepFunc) *Loop {
	if cfg.MaxTimestep <= 0 {
		cfg.MaxTimestep = 200 * time.Millisecond
	}
	return &Loop{
		world:    w,
		step:     step,
		config:   cfg,
		commands: queue.New[Command](),
		tasks:    make(chan scheduledTask, 16),
		done:     make(chan struct{}),
		logger:   logging.GetGameLogger(),
	}
}

// SubSteps делит прошедшее время на шаги не длиннее maxStep; остаток идёт
// последним более коротким шагом
func SubSteps(elapsed, maxStep time.Duration) []time.Duration {
	if elapsed <= 0 || maxStep <= 0 {
		return nil
	}
	steps := make([]time.Duration, 0, int(elapsed/maxStep)+1)
	for remaining := elapsed; remaining > 0; {
		dt := min(remaining, maxStep)
		steps = append(steps, dt)
		remaining -= dt
	}
	return steps
}

// Advance продвигает мир на elapsed. Вызывается только из горутины мира.
func (l *Loop) Advance(elapsed time.Duration) error {
	for _, dt := range SubSteps(elapsed, l.config.MaxTimestep) {
		if err := l.step(l.world, float32(dt.Seconds())); err != nil {
			return fmt.Errorf("шаг %v: %w", dt, err)
		}
	}
	return nil
}

// Submit ставит команду в очередь
func (l *Loop) Submit(cmd Command) {
	l.commands.Push(cmd)
}

// Query выполняет fn в горутине мира и ждёт результата
func (l *Loop) Query(ctx context.Context, fn func(w *world.World) error) error {
	result := make(chan error, 1)
	l.Submit(func(w *world.World) error {
		result <- fn(w)
		return nil
	})
	select {
	case err := <-result:
		return err
	case <-l.done:
		// команда могла выполниться перед остановкой
		select {
		case err := <-result:
			return err
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Schedule выполняет cmd каждые interval, начиная через interval
func (l *Loop) Schedule(interval time.Duration, cmd Command) {
	if interval <= 0 {
		return
	}
	l.tasks <- scheduledTask{interval: interval, cmd: cmd}
}

// Pause останавливает физику; команды продолжают выполняться
func (l *Loop) Pause() { l.paused.Store(true) }

func (l *Loop) Resume() { l.paused.Store(false) }

func (l *Loop) Paused() bool { return l.paused.Load() }

// Done закрывается после выхода из Run
func (l *Loop) Done() <-chan struct{} { return l.done }

// Run крутит цикл до отмены ctx. Ошибка команды или шага возвращается
// наружу и завершает цикл.
func (l *Loop) Run(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return errors.New("simulation: loop already running")
	}
	defer close(l.done)
	l.logger.Debug("цикл мира запущен, шаг до %v", l.config.MaxTimestep)
	defer l.logger.Debug("цикл мира остановлен")

	var tasks []*scheduledTask
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := l.runCommands(); err != nil {
			return err
		}

		now := time.Now()
		tasks = l.acceptTasks(tasks, now)
		for _, task := range tasks {
			if now.Before(task.next) {
				continue
			}
			task.next = now.Add(task.interval)
			if err := task.cmd(l.world); err != nil {
				return fmt.Errorf("периодическая задача: %w", err)
			}
		}

		elapsed := now.Sub(last)
		last = now
		if !l.paused.Load() {
			if err := l.Advance(elapsed); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-l.commands.Ready():
		case <-time.After(l.config.FrameSleep):
		}
	}
}

func (l *Loop) runCommands() error {
	for _, cmd := range l.commands.Drain() {
		if err := cmd(l.world); err != nil {
			return fmt.Errorf("команда: %w", err)
		}
	}
	return nil
}

func (l *Loop) acceptTasks(tasks []*scheduledTask, now time.Time) []*scheduledTask {
	for {
		select {
		case t := <-l.tasks:
			t.next = now.Add(t.interval)
			tasks = append(tasks, &t)
		default:
			return tasks
		}
	}
}
