package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
	"go.opentelemetry.io/otel/attribute"
)

var (
	ErrNoSnapshot    = errors.New("storage: no snapshot")
	ErrStoreNotReady = errors.New("storage: store is closed")
)

// SnapshotInfo описание снимка без данных
type SnapshotInfo struct {
	Key  string
	Time time.Time
	Size int64
}

// WorldStore именованные снимки мира в BadgerDB. Значение снимка имеет
// тот же формат, что и файл сохранения.
type WorldStore struct {
	db      *badger.DB
	mutex   sync.RWMutex
	isReady bool
	now     func() time.Time
}

// OpenWorldStore открывает хранилище в каталоге path; пустой path
// открывает хранилище в памяти
func OpenWorldStore(path string) (*WorldStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}
	return &WorldStore{db: db, isReady: true, now: time.Now}, nil
}

func (ws *WorldStore) Close() error {
	ws.mutex.Lock()
	defer ws.mutex.Unlock()

	if !ws.isReady {
		return nil
	}
	ws.isReady = false
	return ws.db.Close()
}

func snapshotPrefix(name string) string {
	return "snapshot:" + name + ":"
}

func snapshotKey(name string, t time.Time) string {
	// фиксированная ширина, чтобы лексикографический порядок совпадал с временным
	return fmt.Sprintf("%s%020d", snapshotPrefix(name), t.UnixNano())
}

// SaveSnapshot сохраняет сериализованный мир под именем name
func (ws *WorldStore) SaveSnapshot(ctx context.Context, name string, world []byte, compress bool) (string, error) {
	_, span := tracer.Start(ctx, "storage.SaveSnapshot")
	defer span.End()

	ws.mutex.RLock()
	defer ws.mutex.RUnlock()
	if !ws.isReady {
		return "", ErrStoreNotReady
	}

	data, err := EncodeWorld(world, compress)
	if err != nil {
		return "", err
	}
	key := snapshotKey(name, ws.now())
	span.SetAttributes(attribute.String("key", key), attribute.Int("bytes", len(data)))

	err = ws.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}
	return key, nil
}

// LatestSnapshot возвращает сериализованный мир из последнего снимка
func (ws *WorldStore) LatestSnapshot(ctx context.Context, name string) ([]byte, error) {
	_, span := tracer.Start(ctx, "storage.LatestSnapshot")
	defer span.End()

	snapshots, err := ws.Snapshots(name)
	if err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrNoSnapshot)
	}
	latest := snapshots[len(snapshots)-1]

	ws.mutex.RLock()
	defer ws.mutex.RUnlock()
	if !ws.isReady {
		return nil, ErrStoreNotReady
	}

	var data []byte
	err = ws.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(latest.Key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%s: %w", latest.Key, ErrNoSnapshot)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}
	span.SetAttributes(attribute.String("key", latest.Key))
	return DecodeWorld(data)
}

// Snapshots снимки мира name от старых к новым
func (ws *WorldStore) Snapshots(name string) ([]SnapshotInfo, error) {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()
	if !ws.isReady {
		return nil, ErrStoreNotReady
	}

	prefix := []byte(snapshotPrefix(name))
	var out []SnapshotInfo
	err := ws.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := string(item.KeyCopy(nil))
			nanos, err := strconv.ParseInt(strings.TrimPrefix(key, string(prefix)), 10, 64)
			if err != nil {
				continue
			}
			out = append(out, SnapshotInfo{Key: key, Time: time.Unix(0, nanos), Size: item.ValueSize()})
		}
		return nil
	})
	return out, err
}

// Prune оставляет keep последних снимков и возвращает число удалённых
func (ws *WorldStore) Prune(name string, keep int) (int, error) {
	snapshots, err := ws.Snapshots(name)
	if err != nil {
		return 0, err
	}
	if keep < 0 {
		keep = 0
	}
	if len(snapshots) <= keep {
		return 0, nil
	}
	stale := snapshots[:len(snapshots)-keep]

	ws.mutex.RLock()
	defer ws.mutex.RUnlock()
	if !ws.isReady {
		return 0, ErrStoreNotReady
	}
	err = ws.db.Update(func(txn *badger.Txn) error {
		for _, s := range stale {
			if err := txn.Delete([]byte(s.Key)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления снимков: %w", err)
	}
	return len(stale), nil
}
