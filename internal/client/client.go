// Package client безголовый клиент: подключение к серверу, сборка мира
// из SERVER_WORLD_HEAD/DATA и локальная реплика, обновляемая сервером.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/sandbox-game/internal/config"
	"github.com/annel0/sandbox-game/internal/logging"
	"github.com/annel0/sandbox-game/internal/network"
	"github.com/annel0/sandbox-game/internal/protocol"
	"github.com/annel0/sandbox-game/internal/queue"
	"github.com/annel0/sandbox-game/internal/serial"
	"github.com/annel0/sandbox-game/internal/simulation"
	"github.com/annel0/sandbox-game/internal/world"
)

var (
	ErrRejected     = errors.New("client: connection rejected by server")
	ErrDisconnected = errors.New("client: disconnected")
	ErrNoWorld      = errors.New("client: world not received yet")
)

// Config параметры клиента
type Config struct {
	Username       string
	Transport      network.TransportConfig
	ReceiveTimeout time.Duration
	PingInterval   time.Duration
	Simulation     simulation.Config
	// Console получает сообщения консоли; вызывается из сетевой горутины
	Console func(text string)
}

// ConfigFrom собирает Config клиента из конфигурации приложения
func ConfigFrom(cfg *config.Config, username string) Config {
	return Config{
		Username: username,
		Transport: network.TransportConfig{
			Attempts:      cfg.Network.ReliableAttempts,
			RetryInterval: cfg.Network.RetryInterval,
		},
		ReceiveTimeout: cfg.Network.ReceiveTimeout,
		PingInterval:   cfg.Network.PingInterval,
		Simulation: simulation.Config{
			MaxTimestep: cfg.World.MaxTimestep,
			FrameSleep:  cfg.World.FrameSleep,
		},
	}
}

// GameClient соединение с сервером. Транспорт принадлежит сетевой горутине,
// публичные методы ставят сообщения в очередь.
type GameClient struct {
	config    Config
	server    netip.AddrPort
	endpoint  *network.UDPEndpoint
	transport *network.ReliableTransport
	inbound   *protocol.Registry
	types     *serial.Registry
	outbox    *queue.Queue[request]

	// сборка мира; только сетевая горутина
	head      *protocol.ServerWorldHead
	headData  []byte
	worldDone bool

	loop       *simulation.Loop
	stopLoop   context.CancelFunc
	playerID   atomic.Uint32
	accepted   chan bool
	worldReady chan struct{}
	worldErr   error

	cancel  context.CancelFunc
	done    chan struct{}
	closing bool

	reasonMu sync.Mutex
	reason   string
	lost     chan struct{}

	logger *logging.Logger
}

// request сообщение для сервера или команда закрытия
type request struct {
	msg   protocol.Message
	close bool
}

// Dial подключается к серверу: CLIENT_CONNECT_REQUEST, ожидание ответа,
// затем CLIENT_INFO с именем. Мир приходит асинхронно, см. WaitForWorld.
func Dial(ctx context.Context, address string, cfg Config) (*GameClient, error) {
	if cfg.ReceiveTimeout <= 0 {
		cfg.ReceiveTimeout = 10 * time.Millisecond
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = time.Second
	}
	server, err := network.ResolveAddr(address)
	if err != nil {
		return nil, err
	}
	endpoint, err := network.Listen(listenAddrFor(server))
	if err != nil {
		return nil, err
	}

	c := &GameClient{
		config:     cfg,
		server:     server,
		endpoint:   endpoint,
		inbound:    protocol.ClientBound(),
		types:      world.NewTypeRegistry(),
		outbox:     queue.New[request](),
		accepted:   make(chan bool, 1),
		worldReady: make(chan struct{}),
		done:       make(chan struct{}),
		lost:       make(chan struct{}),
		logger:     logging.GetClientLogger(),
	}
	c.transport = network.NewReliableTransport(endpoint, c.inbound, protocol.ServerBound(), cfg.Transport)

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.outbox.Push(request{msg: protocol.ClientConnectRequest{}})
	go c.run(runCtx)

	select {
	case ok := <-c.accepted:
		if !ok {
			c.shutdown()
			return nil, ErrRejected
		}
	case <-c.lost:
		c.shutdown()
		return nil, fmt.Errorf("%w: %s", ErrDisconnected, c.Reason())
	case <-ctx.Done():
		c.shutdown()
		return nil, ctx.Err()
	}

	c.logger.Info("🔌 Подключено к %s как %q", server, cfg.Username)
	c.outbox.Push(request{msg: &protocol.ClientInfo{Username: cfg.Username}})
	return c, nil
}

func listenAddrFor(server netip.AddrPort) string {
	if server.Addr().Is4() {
		return "0.0.0.0:0"
	}
	return "[::]:0"
}

// WaitForWorld ждёт полной сборки мира
func (c *GameClient) WaitForWorld(ctx context.Context) error {
	select {
	case <-c.worldReady:
		return c.worldErr
	case <-c.lost:
		return fmt.Errorf("%w: %s", ErrDisconnected, c.Reason())
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PlayerID ID сущности игрока; 0 до получения мира
func (c *GameClient) PlayerID() uint32 { return c.playerID.Load() }

// Query выполняет fn в горутине реплики
func (c *GameClient) Query(ctx context.Context, fn func(w *world.World) error) error {
	select {
	case <-c.worldReady:
	default:
		return ErrNoWorld
	}
	if c.worldErr != nil {
		return c.worldErr
	}
	return c.loop.Query(ctx, fn)
}

func (c *GameClient) SendAction(action world.Action, pressed bool) {
	c.outbox.Push(request{msg: &protocol.ClientPlayerAction{Action: action, Pressed: pressed}})
}

func (c *GameClient) BreakBlock(x, y int) {
	c.outbox.Push(request{msg: &protocol.ClientBreakBlock{X: int32(x), Y: int32(y)}})
}

func (c *GameClient) PlaceBlock(x, y int) {
	c.outbox.Push(request{msg: &protocol.ClientPlaceBlock{X: int32(x), Y: int32(y)}})
}

// ThrowBomb угол в радианах
func (c *GameClient) ThrowBomb(angle float32) {
	c.outbox.Push(request{msg: &protocol.ClientBombThrow{Angle: angle}})
}

// Chat отправляет строку в общую консоль
func (c *GameClient) Chat(text string) {
	c.outbox.Push(request{msg: &protocol.ConsoleMessage{Text: text}})
}

// Lost закрывается, когда сервер отключил клиента или перестал отвечать
func (c *GameClient) Lost() <-chan struct{} { return c.lost }

// Reason причина отключения со стороны сервера
func (c *GameClient) Reason() string {
	c.reasonMu.Lock()
	defer c.reasonMu.Unlock()
	return c.reason
}

// Close отправляет CLIENT_DISCONNECT и ждёт подтверждения, пока не истечёт ctx
func (c *GameClient) Close(ctx context.Context) error {
	c.outbox.Push(request{close: true})
	c.endpoint.Wake()

	var err error
	select {
	case <-c.done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	c.shutdown()
	return err
}

func (c *GameClient) shutdown() {
	c.cancel()
	c.endpoint.Wake()
	<-c.done
	if c.stopLoop != nil {
		c.stopLoop()
		<-c.loop.Done()
	}
	_ = c.endpoint.Close()
}

func (c *GameClient) markLost(reason string) {
	c.reasonMu.Lock()
	if c.reason == "" {
		c.reason = reason
	}
	c.reasonMu.Unlock()
	select {
	case <-c.lost:
	default:
		close(c.lost)
	}
}
