package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/annel0/sandbox-game/internal/codec"
	"github.com/annel0/sandbox-game/internal/logging"
)

// MaxWorldSize предел размера сериализованного мира при чтении
const MaxWorldSize = 256 << 20

var ErrCorruptSave = errors.New("storage: corrupt world save")

var tracer = otel.Tracer("github.com/annel0/sandbox-game/internal/storage")

// EncodeWorld упаковывает сериализованный мир в формат файла сохранения:
// u32 длина + данные, при compress весь результат сжат zstd.
func EncodeWorld(world []byte, compress bool) ([]byte, error) {
	out := make([]byte, codec.IntSize+len(world))
	codec.PutInt(out, 0, uint32(len(world)))
	copy(out[codec.IntSize:], world)
	if !compress {
		return out, nil
	}
	return Compress(out)
}

// DecodeWorld обратная операция; сжатие определяется по сигнатуре
func DecodeWorld(data []byte) ([]byte, error) {
	if IsCompressed(data) {
		var err error
		if data, err = Decompress(data, MaxWorldSize+codec.IntSize); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptSave, err)
		}
	}
	length, err := codec.GetInt(data, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: нет заголовка длины", ErrCorruptSave)
	}
	if int64(length) != int64(len(data)-codec.IntSize) {
		return nil, fmt.Errorf("%w: длина %d, данных %d", ErrCorruptSave, length, len(data)-codec.IntSize)
	}
	return data[codec.IntSize:], nil
}

// SaveWorldFile записывает сохранение целиком через временный файл
func SaveWorldFile(ctx context.Context, path string, world []byte, compress bool) error {
	_, span := tracer.Start(ctx, "storage.SaveWorldFile")
	defer span.End()
	span.SetAttributes(attribute.String("path", path), attribute.Int("world.bytes", len(world)))

	data, err := EncodeWorld(world, compress)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("создание каталога %s: %w", dir, err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("запись %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("переименование %s: %w", tmp, err)
	}

	logging.GetStorageLogger().Info("💾 Мир сохранён в %s (%s, на диске %s)",
		path, humanize.Bytes(uint64(len(world))), humanize.Bytes(uint64(len(data))))
	return nil
}

// LoadWorldFile читает сохранение и возвращает сериализованный мир.
// Отсутствующий файл возвращает ошибку, совместимую с os.ErrNotExist.
func LoadWorldFile(ctx context.Context, path string) ([]byte, error) {
	_, span := tracer.Start(ctx, "storage.LoadWorldFile")
	defer span.End()
	span.SetAttributes(attribute.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	world, err := DecodeWorld(data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	span.SetAttributes(attribute.Int("world.bytes", len(world)))
	logging.GetStorageLogger().Info("📂 Мир загружен из %s (%s)", path, humanize.Bytes(uint64(len(world))))
	return world, nil
}
