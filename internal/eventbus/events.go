package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Типы игровых событий
const (
	EventPlayerJoined   = "PlayerJoined"
	EventPlayerLeft     = "PlayerLeft"
	EventConsoleMessage = "ConsoleMessage"
	EventWorldSaved     = "WorldSaved"
	EventServerStarted  = "ServerStarted"
	EventServerStopped  = "ServerStopped"
)

// PlayerJoined игрок вошёл в мир
type PlayerJoined struct {
	Username string `json:"username"`
	PlayerID uint32 `json:"player_id"`
	Address  string `json:"address"`
	Players  int    `json:"players"`
}

// PlayerLeft игрок покинул мир
type PlayerLeft struct {
	Username string `json:"username"`
	PlayerID uint32 `json:"player_id"`
	Address  string `json:"address"`
	Reason   string `json:"reason"`
	Players  int    `json:"players"`
}

// ConsoleMessage сообщение, разосланное в консоль клиентов
type ConsoleMessage struct {
	Text string `json:"text"`
}

// WorldSaved мир сохранён
type WorldSaved struct {
	Path  string `json:"path,omitempty"`
	Key   string `json:"key,omitempty"`
	Bytes int    `json:"bytes"`
}

// ServerLifecycle запуск и остановка сервера
type ServerLifecycle struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// NewEnvelope упаковывает полезную нагрузку в JSON-конверт с новым UUID
func NewEnvelope(source, eventType string, priority int, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("eventbus: marshal %s: %w", eventType, err)
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    source,
		EventType: eventType,
		Version:   1,
		Priority:  priority,
		Payload:   data,
	}, nil
}

// Decode разбирает полезную нагрузку конверта
func Decode[T any](ev *Envelope) (T, error) {
	var out T
	if err := json.Unmarshal(ev.Payload, &out); err != nil {
		return out, fmt.Errorf("eventbus: decode %s: %w", ev.EventType, err)
	}
	return out, nil
}
