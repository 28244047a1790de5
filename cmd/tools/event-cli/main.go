package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/annel0/sandbox-game/internal/eventbus"
)

const (
	defaultURL = "nats://127.0.0.1:4222"
	timeFormat = "15:04:05"
)

func main() {
	var (
		url        = flag.String("url", defaultURL, "NATS server URL")
		stream     = flag.String("stream", "SANDBOX_EVENTS", "JetStream stream")
		command    = flag.String("cmd", "tail", "Command: tail, types")
		eventTypes = flag.String("types", "", "Event types filter (comma-separated)")
		sources    = flag.String("sources", "", "Sources filter (comma-separated)")
		limit      = flag.Int("limit", 0, "Stop after N events (0 = follow)")
	)
	flag.Parse()

	switch *command {
	case "types":
		showTypes()
		return
	case "tail":
	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: tail, types")
		os.Exit(1)
	}

	bus, err := eventbus.NewJetStreamBus(*url, *stream, 24*time.Hour)
	if err != nil {
		log.Fatalf("❌ Failed to connect to NATS: %v", err)
	}
	defer bus.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	filter := eventbus.Filter{
		Types:   parseStringList(*eventTypes),
		Sources: parseStringList(*sources),
	}
	count, err := tailEvents(ctx, bus, filter, *limit)
	if err != nil {
		log.Fatalf("❌ Tail failed: %v", err)
	}
	fmt.Printf("\n📊 Total events: %d\n", count)
}

// tailEvents печатает события до отмены ctx или до limit штук
func tailEvents(ctx context.Context, bus eventbus.EventBus, filter eventbus.Filter, limit int) (int, error) {
	fmt.Printf("🎬 Tailing events (limit: %d)\n", limit)

	events := make(chan *eventbus.Envelope, 64)
	sub, err := bus.Subscribe(ctx, filter, func(_ context.Context, ev *eventbus.Envelope) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return 0, err
	}
	defer sub.Unsubscribe()

	count := 0
	for {
		select {
		case <-ctx.Done():
			return count, nil
		case ev := <-events:
			fmt.Println(describe(ev))
			count++
			if limit > 0 && count >= limit {
				return count, nil
			}
		}
	}
}

// describe строка события с разобранной полезной нагрузкой
func describe(ev *eventbus.Envelope) string {
	head := fmt.Sprintf("[%s] %s [%s] %s", ev.Timestamp.Local().Format(timeFormat), ev.Source, ev.EventType, ev.ID)

	var detail string
	switch ev.EventType {
	case eventbus.EventPlayerJoined:
		if p, err := eventbus.Decode[eventbus.PlayerJoined](ev); err == nil {
			detail = fmt.Sprintf("%s #%d from %s, online %d", p.Username, p.PlayerID, p.Address, p.Players)
		}
	case eventbus.EventPlayerLeft:
		if p, err := eventbus.Decode[eventbus.PlayerLeft](ev); err == nil {
			detail = fmt.Sprintf("%s #%d: %s, online %d", p.Username, p.PlayerID, p.Reason, p.Players)
		}
	case eventbus.EventConsoleMessage:
		if p, err := eventbus.Decode[eventbus.ConsoleMessage](ev); err == nil {
			detail = p.Text
		}
	case eventbus.EventWorldSaved:
		if p, err := eventbus.Decode[eventbus.WorldSaved](ev); err == nil {
			detail = fmt.Sprintf("%d bytes %s%s", p.Bytes, p.Path, p.Key)
		}
	case eventbus.EventServerStarted, eventbus.EventServerStopped:
		if p, err := eventbus.Decode[eventbus.ServerLifecycle](ev); err == nil {
			detail = fmt.Sprintf("%s at %s", p.Name, p.Address)
		}
	}
	if detail == "" {
		return head
	}
	return head + "\n  " + detail
}

// showTypes выводит известные типы событий
func showTypes() {
	fmt.Println("📋 Available event types")
	for _, t := range []string{
		eventbus.EventServerStarted,
		eventbus.EventServerStopped,
		eventbus.EventPlayerJoined,
		eventbus.EventPlayerLeft,
		eventbus.EventConsoleMessage,
		eventbus.EventWorldSaved,
	} {
		fmt.Printf("  %s\n", t)
	}
}

// parseStringList парсит строку с разделителями-запятыми
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
