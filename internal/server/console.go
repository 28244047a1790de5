package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrStopRequested возвращает Execute на stop, exit и quit
var ErrStopRequested = errors.New("server: остановка по команде оператора")

// ErrNotRunning сетевая горутина уже завершилась
var ErrNotRunning = errors.New("server: сервер не запущен")

const consoleHelp = `команды консоли:
  list              подключённые клиенты
  kick-all          отключить всех
  say ТЕКСТ         сообщение всем игрокам (любая другая строка тоже)
  pause | resume    остановить и запустить физику мира
  stop | exit | quit  остановить сервер`

// Execute выполняет строку консоли оператора и возвращает ответ для вывода.
// Команды над подключениями идут через очередь сетевой горутины.
func (s *GameServer) Execute(ctx context.Context, line string) (string, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", nil
	}
	name, rest, _ := strings.Cut(line, " ")
	switch strings.ToLower(name) {
	case "stop", "exit", "quit":
		return "", ErrStopRequested
	case "help", "?":
		return consoleHelp, nil
	case "pause":
		s.Pause()
		return "мир на паузе", nil
	case "resume":
		s.Resume()
		return "мир запущен", nil
	case "list":
		return s.onNetwork(ctx, s.listConnections)
	case "kick-all", "disconnect":
		return s.onNetwork(ctx, func(now time.Time) string {
			conns := s.conns.All()
			for _, c := range conns {
				s.kick(c.Addr, "отключены оператором", now)
			}
			return fmt.Sprintf("отключено клиентов: %d", len(conns))
		})
	case "say":
		return s.say(ctx, strings.TrimSpace(rest))
	default:
		return s.say(ctx, line)
	}
}

func (s *GameServer) say(ctx context.Context, text string) (string, error) {
	if text == "" {
		return "", errors.New("say: пустое сообщение")
	}
	return s.onNetwork(ctx, func(now time.Time) string {
		s.announce("[сервер] "+text, now)
		return ""
	})
}

// listConnections таблица подключений; только сетевая горутина
func (s *GameServer) listConnections(now time.Time) string {
	conns := s.conns.All()
	if len(conns) == 0 {
		return "нет подключений"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "подключений: %d из %d", len(conns), s.config.MaxClients)
	for _, c := range conns {
		name := c.Username
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(&b, "\n  %-21s %-16s %-10s %v", c.Addr, name, c.State, now.Sub(c.ConnectedAt).Round(time.Second))
	}
	return b.String()
}

// onNetwork выполняет fn в сетевой горутине и ждёт результата
func (s *GameServer) onNetwork(ctx context.Context, fn func(now time.Time) string) (string, error) {
	result := make(chan string, 1)
	s.outbox.Push(outgoing{kind: outTask, task: func(now time.Time) { result <- fn(now) }})
	select {
	case out := <-result:
		return out, nil
	case <-s.netClosed:
		return "", ErrNotRunning
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
