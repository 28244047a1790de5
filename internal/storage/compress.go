package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// zstdMagic первые байты zstd-кадра
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

var ErrTooLarge = errors.New("storage: decompressed data exceeds limit")

var (
	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	codecErr  error
)

func zstdCodec() (*zstd.Encoder, *zstd.Decoder, error) {
	codecOnce.Do(func() {
		encoder, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if codecErr != nil {
			return
		}
		decoder, codecErr = zstd.NewReader(nil)
	})
	return encoder, decoder, codecErr
}

// Compress сжимает данные одним zstd-кадром
func Compress(data []byte) ([]byte, error) {
	enc, _, err := zstdCodec()
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	return enc.EncodeAll(data, make([]byte, 0, len(data)/2+16)), nil
}

// минимальное окно декодера; ограничение результата задаёт limit
const minDecoderMemory = 8 << 20

// Decompress распаковывает zstd-кадр. limit > 0 ограничивает размер результата
// уже при распаковке: больше limit+1 байт не декодируется.
func Decompress(data []byte, limit int) ([]byte, error) {
	if limit <= 0 {
		_, dec, err := zstdCodec()
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		out, err := dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return out, nil
	}

	maxMemory := uint64(limit)
	if maxMemory < minDecoderMemory {
		maxMemory = minDecoderMemory
	}
	dec, err := zstd.NewReader(bytes.NewReader(data),
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(maxMemory),
	)
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	defer dec.Close()

	out, err := io.ReadAll(io.LimitReader(dec, int64(limit)+1))
	switch {
	case errors.Is(err, zstd.ErrDecoderSizeExceeded), errors.Is(err, zstd.ErrWindowSizeExceeded):
		return nil, fmt.Errorf("%w: %v", ErrTooLarge, err)
	case err != nil:
		return nil, fmt.Errorf("zstd: %w", err)
	case len(out) > limit:
		return nil, fmt.Errorf("%w: больше %d байт", ErrTooLarge, limit)
	}
	return out, nil
}

// IsCompressed проверяет сигнатуру zstd
func IsCompressed(data []byte) bool {
	return bytes.HasPrefix(data, zstdMagic)
}
