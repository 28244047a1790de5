package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/sandbox-game/internal/vec"
)

func TestMariaConfig(t *testing.T) {
	cfg, err := mariaConfig("user:pass@tcp(localhost:3306)/sandbox")
	require.NoError(t, err)
	assert.Equal(t, "localhost:3306", cfg.Addr)
	assert.Equal(t, "sandbox", cfg.DBName)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 10*time.Second, cfg.ReadTimeout)
	assert.True(t, cfg.ParseTime)

	cfg, err = mariaConfig("user@tcp(db:3306)/sandbox?timeout=1s")
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.Timeout, "значение из DSN не перезаписывается")

	_, err = mariaConfig("user:pass@tcp(localhost:3306)")
	assert.Error(t, err)
}

func TestUpsertQuery(t *testing.T) {
	q := upsertQuery(3)
	assert.Equal(t, 3, strings.Count(q, "(?, ?, ?)"))
	assert.True(t, strings.HasSuffix(q, "ON DUPLICATE KEY UPDATE x = VALUES(x), y = VALUES(y)"))
}

func TestSortedNames(t *testing.T) {
	names, err := sortedNames(map[string]vec.Vec2Float{"bob": {}, "alice": {}, "carol": {}})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob", "carol"}, names)

	_, err = sortedNames(map[string]vec.Vec2Float{"": {}})
	assert.ErrorIs(t, err, ErrInvalidUsername)
}
