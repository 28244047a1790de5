// Package server авторитетный игровой сервер: сетевая горутина принимает
// датаграммы и рассылает изменения, горутина симуляции владеет миром.
package server

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/sandbox-game/internal/config"
	"github.com/annel0/sandbox-game/internal/eventbus"
	"github.com/annel0/sandbox-game/internal/logging"
	"github.com/annel0/sandbox-game/internal/network"
	"github.com/annel0/sandbox-game/internal/protocol"
	"github.com/annel0/sandbox-game/internal/queue"
	"github.com/annel0/sandbox-game/internal/serial"
	"github.com/annel0/sandbox-game/internal/simulation"
	"github.com/annel0/sandbox-game/internal/storage"
	"github.com/annel0/sandbox-game/internal/world"
)

// Config параметры сервера
type Config struct {
	Name       string
	ListenAddr string
	MaxClients int

	Transport            network.TransportConfig
	ReceiveTimeout       time.Duration
	ConnectionTimeout    time.Duration
	EntityUpdateInterval time.Duration
	RateLimit            float64
	RateBurst            int
	// ShutdownTimeout сколько ждать подтверждений отключения при остановке
	ShutdownTimeout time.Duration

	Simulation simulation.Config

	CompressHead     bool
	SaveFile         string
	CompressSave     bool
	AutosaveInterval time.Duration
	// SnapshotName ключ снапшотов мира в WorldStore
	SnapshotName  string
	KeepSnapshots int
}

// ConfigFrom собирает Config из конфигурации приложения
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Name:       cfg.Server.Name,
		ListenAddr: cfg.Server.ListenAddr(),
		MaxClients: cfg.Server.MaxClients,
		Transport: network.TransportConfig{
			Attempts:      cfg.Network.ReliableAttempts,
			RetryInterval: cfg.Network.RetryInterval,
		},
		ReceiveTimeout:       cfg.Network.ReceiveTimeout,
		ConnectionTimeout:    cfg.Network.ConnectionTimeout,
		EntityUpdateInterval: cfg.Network.EntityUpdateInterval,
		RateLimit:            cfg.Network.RateLimit,
		RateBurst:            cfg.Network.RateBurst,
		ShutdownTimeout:      time.Duration(cfg.Network.ReliableAttempts) * cfg.Network.RetryInterval,
		Simulation: simulation.Config{
			MaxTimestep: cfg.World.MaxTimestep,
			FrameSleep:  cfg.World.FrameSleep,
		},
		CompressHead:     cfg.World.CompressHead,
		SaveFile:         cfg.World.SaveFile,
		CompressSave:     cfg.World.CompressSave,
		AutosaveInterval: cfg.World.AutosaveInterval,
		SnapshotName:     cfg.Server.Name,
		KeepSnapshots:    cfg.Storage.KeepSnapshots,
	}
}

// Deps внешние зависимости сервера. Все поля необязательны.
type Deps struct {
	Positions storage.PositionRepo
	Store     *storage.WorldStore
	Bus       eventbus.EventBus
	Metrics   *network.Metrics
}

// GameServer связывает UDP транспорт, реестр подключений и цикл мира
type GameServer struct {
	config Config
	types  *serial.Registry
	world  *world.World
	loop   *simulation.Loop

	endpoint  *network.UDPEndpoint
	addr      string
	transport *network.ReliableTransport
	inbound   *protocol.Registry
	conns     *network.ConnectionRegistry
	limiter   *network.RateLimiter
	metrics   *network.Metrics

	// outbox единственный канал от горутины мира к сетевой
	outbox *queue.Queue[outgoing]
	// последние обновления сущностей до следующей рассылки; только сетевая горутина
	updates   map[uint32][]byte
	stopping  bool
	netClosed chan struct{} // закрывается при выходе сетевой горутины

	positions storage.PositionRepo
	store     *storage.WorldStore
	bus       eventbus.EventBus

	players    atomic.Int32
	startedAt  time.Time
	saveMu     sync.Mutex
	background sync.WaitGroup
	logger     *logging.Logger
}

// New открывает UDP сокет и готовит сервер. Мир переходит во владение
// сервера: после New к нему нельзя обращаться напрямую.
func New(cfg Config, w *world.World, deps Deps) (*GameServer, error) {
	if cfg.MaxClients <= 0 {
		return nil, fmt.Errorf("server: max clients %d", cfg.MaxClients)
	}
	if cfg.ReceiveTimeout <= 0 {
		cfg.ReceiveTimeout = 10 * time.Millisecond
	}
	if cfg.EntityUpdateInterval <= 0 {
		cfg.EntityUpdateInterval = 50 * time.Millisecond
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = time.Second
	}
	if cfg.SnapshotName == "" {
		cfg.SnapshotName = "world"
	}

	endpoint, err := network.Listen(cfg.ListenAddr)
	if err != nil {
		return nil, err
	}

	positions := deps.Positions
	if positions == nil {
		positions = storage.NewMemoryPositionRepo()
	}

	s := &GameServer{
		config:    cfg,
		types:     world.NewTypeRegistry(),
		world:     w,
		endpoint:  endpoint,
		addr:      endpoint.LocalAddr().String(),
		inbound:   protocol.ServerBound(),
		conns:     network.NewConnectionRegistry(cfg.MaxClients),
		limiter:   network.NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
		metrics:   deps.Metrics,
		outbox:    queue.New[outgoing](),
		updates:   make(map[uint32][]byte),
		netClosed: make(chan struct{}),
		positions: positions,
		store:     deps.Store,
		bus:       deps.Bus,
		logger:    logging.GetServerLogger(),
	}
	s.transport = network.NewReliableTransport(endpoint, s.inbound, protocol.ClientBound(), cfg.Transport)
	s.transport.SetMetrics(deps.Metrics)

	// игроки из сохранения остались без клиентов
	removePlayers(w)
	w.SetObserver(&broadcaster{types: s.types, outbox: s.outbox, logger: s.logger})
	s.loop = simulation.New(w, cfg.Simulation, simulation.UpdateStep)
	return s, nil
}

// Addr фактический адрес UDP сокета
func (s *GameServer) Addr() string { return s.addr }

func (s *GameServer) Name() string { return s.config.Name }

// Players число подключений; безопасно из любой горутины
func (s *GameServer) Players() int { return int(s.players.Load()) }

func (s *GameServer) Capacity() int { return s.config.MaxClients }

func (s *GameServer) StartedAt() time.Time { return s.startedAt }

// Query выполняет fn в горутине мира
func (s *GameServer) Query(ctx context.Context, fn func(w *world.World) error) error {
	return s.loop.Query(ctx, fn)
}

// Pause останавливает физику, подключения продолжают обслуживаться
func (s *GameServer) Pause() {
	s.loop.Pause()
	s.logger.Info("⏸️ Мир на паузе")
}

func (s *GameServer) Resume() {
	s.loop.Resume()
	s.logger.Info("▶️ Мир снова запущен")
}

func (s *GameServer) Paused() bool { return s.loop.Paused() }

// Run обслуживает клиентов до отмены ctx или фатальной ошибки мира.
// При остановке клиенты получают SERVER_CLIENT_DISCONNECT, мир сохраняется.
func (s *GameServer) Run(ctx context.Context) error {
	s.startedAt = time.Now()
	s.scheduleAutosave()

	netCtx, stopNet := context.WithCancel(ctx)
	defer stopNet()
	// мир живёт дольше сети, чтобы принять удаление отключённых игроков
	simCtx, stopSim := context.WithCancel(context.Background())
	defer stopSim()

	simDone := make(chan error, 1)
	go func() { simDone <- s.loop.Run(simCtx) }()
	netDone := make(chan error, 1)
	go func() {
		defer close(s.netClosed)
		netDone <- s.serveNetwork(netCtx)
	}()

	s.logger.Info("🚀 Сервер %q слушает %s (мест: %d)", s.config.Name, s.Addr(), s.config.MaxClients)
	s.publish(eventbus.EventServerStarted, 5, eventbus.ServerLifecycle{Name: s.config.Name, Address: s.Addr()})

	var fatal error
	select {
	case <-ctx.Done():
	case err := <-simDone:
		fatal = fmt.Errorf("цикл мира: %w", err)
		simDone = nil
	case err := <-netDone:
		if err != nil {
			fatal = fmt.Errorf("сеть: %w", err)
		}
		netDone = nil
	}

	stopNet()
	s.endpoint.Wake()
	if netDone != nil {
		if err := <-netDone; err != nil && fatal == nil {
			fatal = fmt.Errorf("сеть: %w", err)
		}
	}
	stopSim()
	if simDone != nil {
		if err := <-simDone; err != nil && fatal == nil {
			fatal = fmt.Errorf("цикл мира: %w", err)
		}
	}
	if fatal != nil {
		s.logger.Error("❌ Аварийная остановка: %v", fatal)
	}

	// горутина мира завершилась, мир снова доступен напрямую
	s.background.Wait()
	s.finalSave(fatal)

	if err := s.endpoint.Close(); err != nil {
		s.logger.Warn("закрытие сокета: %v", err)
	}
	s.publish(eventbus.EventServerStopped, 5, eventbus.ServerLifecycle{Name: s.config.Name, Address: s.Addr()})
	s.background.Wait()
	s.logger.Info("🛑 Сервер %q остановлен", s.config.Name)
	return fatal
}

// publish отправляет событие в шину, не блокируя вызывающую горутину
func (s *GameServer) publish(eventType string, priority int, payload any) {
	if s.bus == nil {
		return
	}
	ev, err := eventbus.NewEnvelope("sandbox-server", eventType, priority, payload)
	if err != nil {
		s.logger.Warn("событие %s: %v", eventType, err)
		return
	}
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.bus.Publish(ctx, ev); err != nil {
			s.logger.Debug("публикация %s: %v", eventType, err)
		}
	}()
}

func removePlayers(w *world.World) {
	var ids []uint32
	w.ForEachEntity(func(e world.Entity) {
		if _, ok := e.(*world.PlayerEntity); ok {
			ids = append(ids, e.ID())
		}
	})
	for _, id := range ids {
		_, _ = w.Remove(id)
	}
}
