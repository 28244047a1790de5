package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/annel0/sandbox-game/internal/client"
	"github.com/annel0/sandbox-game/internal/world"
)

const help = `/left /right /up /down [off]  движение (off отпускает клавишу)
/next /prev                    смена слота
/break X Y                     разрушить блок
/place X Y                     поставить блок из слота
/bomb УГОЛ                     бросить бомбу (радианы)
/where                         позиция игрока
/quit                          выход
остальное уходит в чат`

var actions = map[string]world.Action{
	"/left":  world.ActionLeft,
	"/right": world.ActionRight,
	"/up":    world.ActionUp,
	"/down":  world.ActionDown,
	"/next":  world.ActionNextSlot,
	"/prev":  world.ActionPreviousSlot,
}

// execute выполняет строку ввода; true означает выход
func execute(ctx context.Context, c *client.GameClient, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		c.Chat(line)
		return false
	}

	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]
	if a, ok := actions[cmd]; ok {
		c.SendAction(a, len(args) == 0 || args[0] != "off")
		return false
	}

	switch cmd {
	case "/quit":
		return true
	case "/help":
		fmt.Println(help)
	case "/break", "/place":
		x, y, err := coords(args)
		if err != nil {
			fmt.Println(err)
			return false
		}
		if cmd == "/break" {
			c.BreakBlock(x, y)
		} else {
			c.PlaceBlock(x, y)
		}
	case "/bomb":
		if len(args) != 1 {
			fmt.Println("нужен угол")
			return false
		}
		angle, err := strconv.ParseFloat(args[0], 32)
		if err != nil {
			fmt.Println("неверный угол:", err)
			return false
		}
		c.ThrowBomb(float32(angle))
	case "/where":
		err := c.Query(ctx, func(w *world.World) error {
			p, ok := w.Entity(c.PlayerID())
			if !ok {
				return fmt.Errorf("игрок #%d не найден", c.PlayerID())
			}
			pos := p.Body().Position
			fmt.Printf("(%.2f, %.2f)\n", pos.X, pos.Y)
			return nil
		})
		if err != nil {
			fmt.Println(err)
		}
	default:
		fmt.Println("неизвестная команда, см. /help")
	}
	return false
}

func coords(args []string) (int, int, error) {
	if len(args) != 2 {
		return 0, 0, fmt.Errorf("нужны координаты X Y")
	}
	x, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, 0, fmt.Errorf("X: %w", err)
	}
	y, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, 0, fmt.Errorf("Y: %w", err)
	}
	return x, y, nil
}
