package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации сервера и клиента.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Network       NetworkConfig       `yaml:"network"`
	World         WorldConfig         `yaml:"world"`
	Storage       StorageConfig       `yaml:"storage"`
	Logging       LoggingConfig       `yaml:"logging"`
	EventBus      EventBusConfig      `yaml:"eventbus"`
	Status        StatusConfig        `yaml:"status"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ServerConfig struct {
	Name       string `yaml:"name"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	MaxClients int    `yaml:"max_clients"`
}

// NetworkConfig параметры UDP транспорта и надёжной доставки.
type NetworkConfig struct {
	ReliableAttempts     int           `yaml:"reliable_attempts"`
	RetryInterval        time.Duration `yaml:"retry_interval"`
	ReceiveTimeout       time.Duration `yaml:"receive_timeout"`
	PingInterval         time.Duration `yaml:"ping_interval"`
	ConnectionTimeout    time.Duration `yaml:"connection_timeout"`
	EntityUpdateInterval time.Duration `yaml:"entity_update_interval"`
	RateLimit            float64       `yaml:"rate_limit"`
	RateBurst            int           `yaml:"rate_burst"`
}

type WorldConfig struct {
	Width            int           `yaml:"width"`
	Height           int           `yaml:"height"`
	Gravity          float32       `yaml:"gravity"`
	Seed             int64         `yaml:"seed"`
	MaxTimestep      time.Duration `yaml:"max_timestep"`
	FrameSleep       time.Duration `yaml:"frame_sleep"`
	SaveFile         string        `yaml:"save_file"`
	CompressSave     bool          `yaml:"compress_save"`
	CompressHead     bool          `yaml:"compress_head"`
	AutosaveInterval time.Duration `yaml:"autosave_interval"`
}

// StorageConfig хранилище снапшотов мира в BadgerDB (пустой путь отключает его)
// и хранилище позиций игроков.
type StorageConfig struct {
	BadgerPath    string        `yaml:"badger_path"`
	KeepSnapshots int           `yaml:"keep_snapshots"`
	// Positions memory | redis | mysql
	Positions     string        `yaml:"positions"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	PositionTTL   time.Duration `yaml:"position_ttl"`
	MySQLDSN      string        `yaml:"mysql_dsn"`
}

type LoggingConfig struct {
	Level     string `yaml:"level"`
	Directory string `yaml:"directory"`
}

// EventBusConfig пустой URL означает in-memory шину.
type EventBusConfig struct {
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
}

// StatusConfig публикация сервера в общий список через Redis.
type StatusConfig struct {
	RedisAddr string        `yaml:"redis_addr"`
	Key       string        `yaml:"key"`
	Interval  time.Duration `yaml:"interval"`
}

type ObservabilityConfig struct {
	MetricsAddr      string  `yaml:"metrics_addr"`
	OTLPEndpoint     string  `yaml:"otlp_endpoint"`
	// TraceSampleRatio доля корневых трасс (0 или 1 означает все)
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`
}

// Default возвращает конфигурацию по умолчанию.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Name:       "sandbox",
			Host:       "0.0.0.0",
			MaxClients: 10,
		},
		Network: NetworkConfig{
			ReliableAttempts:     10,
			RetryInterval:        100 * time.Millisecond,
			ReceiveTimeout:       10 * time.Millisecond,
			PingInterval:         time.Second,
			ConnectionTimeout:    5 * time.Second,
			EntityUpdateInterval: 50 * time.Millisecond,
			RateLimit:            500,
			RateBurst:            1000,
		},
		World: WorldConfig{
			Width:            200,
			Height:           100,
			Gravity:          29.4,
			Seed:             1,
			MaxTimestep:      200 * time.Millisecond,
			FrameSleep:       time.Millisecond,
			SaveFile:         "world.dat",
			CompressSave:     true,
			CompressHead:     true,
			AutosaveInterval: 5 * time.Minute,
		},
		Storage: StorageConfig{
			KeepSnapshots: 5,
			Positions:     "memory",
			RedisAddr:     "localhost:6379",
			PositionTTL:   7 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		EventBus: EventBusConfig{
			Stream:    "SANDBOX_EVENTS",
			Retention: 24,
		},
		Status: StatusConfig{
			Key:      "sandbox:servers",
			Interval: 10 * time.Second,
		},
	}
}

// GetPort возвращает UDP порт с поддержкой fallback значений
func (s *ServerConfig) GetPort() int {
	return getPortWithEnvFallback(s.Port, "SANDBOX_PORT", 50000)
}

// ListenAddr адрес для net.ListenUDP
func (s *ServerConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.GetPort())
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	return defaultPort
}

// Validate проверяет согласованность значений.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.MaxClients <= 0 {
		errs = append(errs, errors.New("server.max_clients должен быть > 0"))
	}
	if c.Server.MaxClients > 0xFFFF {
		errs = append(errs, errors.New("server.max_clients не помещается в u16"))
	}
	if len(c.Server.Name) > 255 {
		errs = append(errs, errors.New("server.name длиннее 255 байт"))
	}
	if c.Network.ReliableAttempts <= 0 {
		errs = append(errs, errors.New("network.reliable_attempts должен быть > 0"))
	}
	if c.Network.RetryInterval <= 0 {
		errs = append(errs, errors.New("network.retry_interval должен быть > 0"))
	}
	if c.Network.ReceiveTimeout <= 0 {
		errs = append(errs, errors.New("network.receive_timeout должен быть > 0"))
	}
	if c.Network.ConnectionTimeout <= c.Network.PingInterval {
		errs = append(errs, errors.New("network.connection_timeout должен превышать ping_interval"))
	}
	if c.World.Width <= 0 || c.World.Height <= 0 {
		errs = append(errs, fmt.Errorf("неверный размер мира %dx%d", c.World.Width, c.World.Height))
	}
	switch c.Storage.Positions {
	case "", "memory", "redis":
	case "mysql":
		if c.Storage.MySQLDSN == "" {
			errs = append(errs, errors.New("storage.mysql_dsn обязателен для positions: mysql"))
		}
	default:
		errs = append(errs, fmt.Errorf("неизвестное хранилище позиций %q", c.Storage.Positions))
	}
	if c.World.MaxTimestep <= 0 {
		errs = append(errs, errors.New("world.max_timestep должен быть > 0"))
	}
	return errors.Join(errs...)
}

// Load читает YAML файл конфигурации поверх значений по умолчанию.
// Если path == "", пытается прочитать из ENV SANDBOX_CONFIG, иначе возвращает Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("SANDBOX_CONFIG")
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("ошибка разбора %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
