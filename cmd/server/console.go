package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/annel0/sandbox-game/internal/server"
)

type commander interface {
	Execute(ctx context.Context, line string) (string, error)
}

// runConsole читает команды оператора построчно до EOF, отмены ctx
// или команды остановки, после которой вызывает stop
func runConsole(ctx context.Context, srv commander, in io.Reader, out io.Writer, stop func()) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		reply, err := srv.Execute(ctx, scanner.Text())
		switch {
		case errors.Is(err, server.ErrStopRequested):
			fmt.Fprintln(out, "🛑 Остановка сервера...")
			stop()
			return
		case errors.Is(err, server.ErrNotRunning), errors.Is(err, context.Canceled):
			return
		case err != nil:
			fmt.Fprintf(out, "❌ %v\n", err)
		case reply != "":
			fmt.Fprintln(out, reply)
		}
	}
}
