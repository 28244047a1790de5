package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/annel0/sandbox-game/internal/vec"
)

const positionsSchema = `CREATE TABLE IF NOT EXISTS player_positions (
	username   VARCHAR(255) NOT NULL PRIMARY KEY,
	x          DOUBLE       NOT NULL,
	y          DOUBLE       NOT NULL,
	updated_at TIMESTAMP    NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

// строк в одном INSERT при BatchSave
const mariaBatchRows = 200

// MariaPositionRepo хранит позиции в таблице player_positions MariaDB/MySQL
type MariaPositionRepo struct {
	db *sql.DB
}

// mariaConfig разбирает DSN (user:pass@tcp(host:port)/db) и дополняет параметры
// соединения, которых нет в строке.
func mariaConfig(dsn string) (*mysql.Config, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: неверный mysql DSN: %w", err)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	cfg.ParseTime = true
	return cfg, nil
}

// NewMariaPositionRepo открывает пул соединений и создаёт таблицу при необходимости
func NewMariaPositionRepo(ctx context.Context, dsn string) (*MariaPositionRepo, error) {
	cfg, err := mariaConfig(dsn)
	if err != nil {
		return nil, err
	}
	conn, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("storage: mysql: %w", err)
	}
	db := sql.OpenDB(conn)
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: mysql %s недоступен: %w", cfg.Addr, err)
	}
	if _, err := db.ExecContext(ctx, positionsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: схема player_positions: %w", err)
	}
	return &MariaPositionRepo{db: db}, nil
}

// upsertQuery INSERT ... ON DUPLICATE KEY UPDATE на rows строк
func upsertQuery(rows int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO player_positions (username, x, y) VALUES ")
	for i := 0; i < rows; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?)")
	}
	b.WriteString(" ON DUPLICATE KEY UPDATE x = VALUES(x), y = VALUES(y)")
	return b.String()
}

func (r *MariaPositionRepo) Save(ctx context.Context, username string, pos vec.Vec2Float) error {
	if err := validateUsername(username); err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, upsertQuery(1), username, pos.X, pos.Y); err != nil {
		return fmt.Errorf("storage: сохранение позиции %s: %w", username, err)
	}
	return nil
}

func (r *MariaPositionRepo) Load(ctx context.Context, username string) (vec.Vec2Float, bool, error) {
	if err := validateUsername(username); err != nil {
		return vec.Vec2Float{}, false, err
	}
	var pos vec.Vec2Float
	row := r.db.QueryRowContext(ctx, "SELECT x, y FROM player_positions WHERE username = ?", username)
	switch err := row.Scan(&pos.X, &pos.Y); {
	case errors.Is(err, sql.ErrNoRows):
		return vec.Vec2Float{}, false, nil
	case err != nil:
		return vec.Vec2Float{}, false, fmt.Errorf("storage: позиция %s: %w", username, err)
	}
	return pos, true, nil
}

func (r *MariaPositionRepo) Delete(ctx context.Context, username string) error {
	if err := validateUsername(username); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, "DELETE FROM player_positions WHERE username = ?", username)
	return err
}

// BatchSave пишет позиции многострочными INSERT в одной транзакции
func (r *MariaPositionRepo) BatchSave(ctx context.Context, positions map[string]vec.Vec2Float) error {
	names, err := sortedNames(positions)
	if err != nil || len(names) == 0 {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: транзакция: %w", err)
	}
	defer tx.Rollback()

	for start := 0; start < len(names); start += mariaBatchRows {
		end := start + mariaBatchRows
		if end > len(names) {
			end = len(names)
		}
		args := make([]interface{}, 0, 3*(end-start))
		for _, name := range names[start:end] {
			p := positions[name]
			args = append(args, name, p.X, p.Y)
		}
		if _, err := tx.ExecContext(ctx, upsertQuery(end-start), args...); err != nil {
			return fmt.Errorf("storage: пакет позиций: %w", err)
		}
	}
	return tx.Commit()
}

// sortedNames проверяет имена и упорядочивает их, чтобы блокировки строк
// брались в одном порядке
func sortedNames(positions map[string]vec.Vec2Float) ([]string, error) {
	names := make([]string, 0, len(positions))
	for name := range positions {
		if err := validateUsername(name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (r *MariaPositionRepo) Close() error {
	return r.db.Close()
}
