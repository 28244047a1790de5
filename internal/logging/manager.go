package logging

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// components логгеры подсистем по имени; создаются при первом обращении
var components = struct {
	sync.Mutex
	byName map[string]*Logger
}{byName: make(map[string]*Logger)}

// Component возвращает логгер подсистемы. Если файл логов открыть не удалось,
// подсистема пишет только в консоль.
func Component(name string) *Logger {
	components.Lock()
	defer components.Unlock()

	if logger, ok := components.byName[name]; ok {
		return logger
	}
	logger, err := NewLogger(name)
	if err != nil {
		logger = newConsoleLogger(name)
		logger.Warn("файл логов недоступен: %v", err)
	}
	components.byName[name] = logger
	return logger
}

// Components имена созданных логгеров по алфавиту
func Components() []string {
	components.Lock()
	defer components.Unlock()
	return slices.Sorted(maps.Keys(components.byName))
}

// SetComponentLevel меняет пороги уже созданного логгера
func SetComponentLevel(name string, console, file LogLevel) error {
	components.Lock()
	logger, ok := components.byName[name]
	components.Unlock()
	if !ok {
		return fmt.Errorf("логгер %q не создан", name)
	}
	logger.SetLevels(console, file)
	return nil
}

// closeComponents закрывает файлы всех подсистем и забывает логгеры
func closeComponents() error {
	components.Lock()
	defer components.Unlock()

	var errs []error
	for name, logger := range components.byName {
		if err := logger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	clear(components.byName)
	return errors.Join(errs...)
}

func GetNetworkLogger() *Logger { return Component("network") }

func GetServerLogger() *Logger { return Component("server") }

func GetGameLogger() *Logger { return Component("game") }

func GetClientLogger() *Logger { return Component("client") }

func GetStorageLogger() *Logger { return Component("storage") }
