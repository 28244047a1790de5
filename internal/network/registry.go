package network

import (
	"net/netip"
	"sort"
	"time"
)

// ConnectionState стадия подключения
type ConnectionState uint8

const (
	// StateConnected подключение принято, мир ещё не отправлен
	StateConnected ConnectionState = iota
	// StateInGame клиент получил заголовок мира и получает рассылки
	StateInGame
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateInGame:
		return "in-game"
	default:
		return "unknown"
	}
}

// Connection подключённый клиент
type Connection struct {
	Addr        netip.AddrPort
	PlayerID    uint32
	Username    string
	State       ConnectionState
	ConnectedAt time.Time
	LastSeen    time.Time
}

// ConnectionRegistry подключения по адресу с ограничением ёмкости.
// Используется только сетевой горутиной.
type ConnectionRegistry struct {
	capacity int
	conns    map[netip.AddrPort]*Connection
}

func NewConnectionRegistry(capacity int) *ConnectionRegistry {
	return &ConnectionRegistry{capacity: capacity, conns: make(map[netip.AddrPort]*Connection)}
}

// TryAdd регистрирует адрес. При дубликате или заполненном реестре
// возвращает false и ничего не меняет.
func (r *ConnectionRegistry) TryAdd(addr netip.AddrPort, now time.Time) (*Connection, bool) {
	if _, exists := r.conns[addr]; exists {
		return nil, false
	}
	if len(r.conns) >= r.capacity {
		return nil, false
	}
	c := &Connection{Addr: addr, State: StateConnected, ConnectedAt: now, LastSeen: now}
	r.conns[addr] = c
	return c, true
}

// Remove удаляет адрес. Повторный вызов ничего не делает.
func (r *ConnectionRegistry) Remove(addr netip.AddrPort) (*Connection, bool) {
	c, ok := r.conns[addr]
	if ok {
		delete(r.conns, addr)
	}
	return c, ok
}

func (r *ConnectionRegistry) Get(addr netip.AddrPort) (*Connection, bool) {
	c, ok := r.conns[addr]
	return c, ok
}

func (r *ConnectionRegistry) Contains(addr netip.AddrPort) bool {
	_, ok := r.conns[addr]
	return ok
}

func (r *ConnectionRegistry) Count() int    { return len(r.conns) }
func (r *ConnectionRegistry) Capacity() int { return r.capacity }

// Touch отмечает активность клиента
func (r *ConnectionRegistry) Touch(addr netip.AddrPort, now time.Time) {
	if c, ok := r.conns[addr]; ok {
		c.LastSeen = now
	}
}

// All подключения в стабильном порядке адресов
func (r *ConnectionRegistry) All() []*Connection {
	out := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Addr.Compare(out[j].Addr) < 0 })
	return out
}

// InGame подключения, получающие рассылки мира
func (r *ConnectionRegistry) InGame() []*Connection {
	out := make([]*Connection, 0, len(r.conns))
	for _, c := range r.All() {
		if c.State == StateInGame {
			out = append(out, c)
		}
	}
	return out
}

// Stale подключения, молчащие дольше timeout
func (r *ConnectionRegistry) Stale(now time.Time, timeout time.Duration) []*Connection {
	var out []*Connection
	for _, c := range r.All() {
		if now.Sub(c.LastSeen) > timeout {
			out = append(out, c)
		}
	}
	return out
}
