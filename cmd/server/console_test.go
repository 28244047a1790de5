package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/annel0/sandbox-game/internal/server"
)

type scriptedServer struct {
	seen []string
}

func (s *scriptedServer) Execute(_ context.Context, line string) (string, error) {
	s.seen = append(s.seen, line)
	switch line {
	case "list":
		return "нет подключений", nil
	case "broken":
		return "", errors.New("сломано")
	case "stop":
		return "", server.ErrStopRequested
	}
	return "", nil
}

func TestRunConsole(t *testing.T) {
	srv := &scriptedServer{}
	var out bytes.Buffer
	stopped := false

	in := strings.NewReader("list\n\nbroken\nstop\nlist\n")
	runConsole(context.Background(), srv, in, &out, func() { stopped = true })

	assert.True(t, stopped)
	assert.Equal(t, []string{"list", "", "broken", "stop"}, srv.seen, "после stop строки не читаются")
	assert.Contains(t, out.String(), "нет подключений")
	assert.Contains(t, out.String(), "❌ сломано")
	assert.Contains(t, out.String(), "Остановка сервера")
}

func TestRunConsoleEndsOnEOF(t *testing.T) {
	srv := &scriptedServer{}
	stopped := false
	runConsole(context.Background(), srv, strings.NewReader("list"), &bytes.Buffer{}, func() { stopped = true })
	assert.False(t, stopped)
	assert.Equal(t, []string{"list"}, srv.seen)
}
