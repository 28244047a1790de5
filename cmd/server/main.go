package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/annel0/sandbox-game/internal/config"
	"github.com/annel0/sandbox-game/internal/eventbus"
	"github.com/annel0/sandbox-game/internal/logging"
	"github.com/annel0/sandbox-game/internal/network"
	"github.com/annel0/sandbox-game/internal/observability"
	"github.com/annel0/sandbox-game/internal/server"
	"github.com/annel0/sandbox-game/internal/status"
	"github.com/annel0/sandbox-game/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (по умолчанию $SANDBOX_CONFIG)")
	port := flag.Int("port", 0, "UDP порт, перекрывает конфигурацию")
	name := flag.String("name", "", "имя сервера, перекрывает конфигурацию")
	console := flag.Bool("console", true, "читать команды оператора из stdin (help для списка)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *name != "" {
		cfg.Server.Name = *name
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	logging.Configure(cfg.Logging.Directory, level)
	if err := logging.InitDefaultLogger("server"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()

	instanceID := uuid.NewString()
	logging.Info("🎮 Запуск сервера %q (%s)", cfg.Server.Name, instanceID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// === ТРАССИРОВКА И МЕТРИКИ ===
	if cfg.Observability.OTLPEndpoint != "" {
		shutdown, err := observability.InitTelemetry(ctx, observability.TelemetryConfig{
			ServiceName: "sandbox-server",
			InstanceID:  instanceID,
			Endpoint:    cfg.Observability.OTLPEndpoint,
			SampleRatio: cfg.Observability.TraceSampleRatio,
		})
		if err != nil {
			logging.Warn("⚠️ OpenTelemetry недоступен: %v", err)
		} else {
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdown(sctx)
			}()
		}
	}

	registry := prometheus.NewRegistry()
	metrics := network.NewMetrics(registry)
	if collector, err := observability.NewProcessCollector(); err != nil {
		logging.Warn("⚠️ Метрики процесса недоступны: %v", err)
	} else {
		registry.MustRegister(collector)
	}
	if cfg.Observability.MetricsAddr != "" {
		ms, err := observability.StartMetricsServer(cfg.Observability.MetricsAddr, registry)
		if err != nil {
			log.Fatalf("❌ Ошибка запуска /metrics: %v", err)
		}
		defer ms.Shutdown(context.Background())
	}

	// === ШИНА СОБЫТИЙ ===
	bus, err := openEventBus(cfg.EventBus)
	if err != nil {
		log.Fatalf("❌ Ошибка подключения к шине событий: %v", err)
	}
	defer bus.Close()
	if sub, err := eventbus.StartLoggingListener(ctx, bus); err != nil {
		logging.Warn("⚠️ Журнал событий не запущен: %v", err)
	} else {
		defer sub.Unsubscribe()
	}
	if _, err := eventbus.NewCollector(bus, registry); err != nil {
		logging.Warn("⚠️ Метрики шины событий: %v", err)
	}

	// === ХРАНИЛИЩА ===
	var store *storage.WorldStore
	if cfg.Storage.BadgerPath != "" {
		if store, err = storage.OpenWorldStore(cfg.Storage.BadgerPath); err != nil {
			log.Fatalf("❌ Ошибка открытия BadgerDB: %v", err)
		}
		defer store.Close()
	}

	positions, err := openPositions(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("❌ Ошибка подключения к хранилищу позиций: %v", err)
	}
	defer positions.Close()

	w, err := loadWorld(ctx, cfg, store)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки мира: %v", err)
	}

	// === СЕРВЕР ===
	srv, err := server.New(server.ConfigFrom(cfg), w, server.Deps{
		Positions: positions,
		Store:     store,
		Bus:       bus,
		Metrics:   metrics,
	})
	if err != nil {
		log.Fatalf("❌ Ошибка создания игрового сервера: %v", err)
	}

	if cfg.Status.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Status.RedisAddr})
		defer client.Close()
		publisher := status.NewPublisher(client, cfg.Status.Key, cfg.Status.Interval, func() status.Snapshot {
			return status.Snapshot{
				ID:        instanceID,
				Name:      srv.Name(),
				Address:   srv.Addr(),
				Players:   srv.Players(),
				Capacity:  srv.Capacity(),
				StartedAt: srv.StartedAt(),
			}
		})
		publisher.Start(ctx)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := publisher.Stop(sctx); err != nil {
				logging.Warn("остановка публикации статуса: %v", err)
			}
		}()
	}

	logging.Info("✅ Сервер слушает UDP %s, мест: %d", srv.Addr(), srv.Capacity())
	if *console {
		go runConsole(ctx, srv, os.Stdin, os.Stdout, stop)
	}
	if err := srv.Run(ctx); err != nil {
		logging.Error("❌ Сервер остановлен с ошибкой: %v", err)
		return
	}
	logging.Info("👋 Сервер успешно остановлен")
}

func openEventBus(cfg config.EventBusConfig) (eventbus.EventBus, error) {
	if cfg.URL == "" {
		return eventbus.NewMemoryBus(1024), nil
	}
	retention := time.Duration(cfg.Retention) * time.Hour
	return eventbus.NewJetStreamBus(cfg.URL, cfg.Stream, retention)
}

func openPositions(ctx context.Context, cfg config.StorageConfig) (storage.PositionRepo, error) {
	switch cfg.Positions {
	case "redis":
		rc := storage.DefaultRedisConfig()
		rc.Addr = cfg.RedisAddr
		rc.Password = cfg.RedisPassword
		rc.DB = cfg.RedisDB
		if cfg.PositionTTL > 0 {
			rc.TTL = cfg.PositionTTL
		}
		return storage.NewRedisPositionRepo(ctx, rc)
	case "mysql":
		return storage.NewMariaPositionRepo(ctx, cfg.MySQLDSN)
	default:
		return storage.NewMemoryPositionRepo(), nil
	}
}

// isMissing true, если сохранения просто нет
func isMissing(err error) bool {
	return errors.Is(err, os.ErrNotExist) || errors.Is(err, storage.ErrNoSnapshot)
}
