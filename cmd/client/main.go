package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/annel0/sandbox-game/internal/client"
	"github.com/annel0/sandbox-game/internal/config"
	"github.com/annel0/sandbox-game/internal/logging"
	"github.com/annel0/sandbox-game/internal/status"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации")
	addr := flag.String("addr", "127.0.0.1:50000", "адрес сервера")
	username := flag.String("name", "player", "имя игрока")
	info := flag.Bool("info", false, "запросить информацию о сервере и выйти")
	list := flag.Bool("list", false, "показать серверы из Redis и выйти")
	timeout := flag.Duration("timeout", 5*time.Second, "таймаут подключения")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	logging.Configure(cfg.Logging.Directory, level)
	if err := logging.InitDefaultLogger("client"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case *list:
		if err := listServers(ctx, cfg.Status); err != nil {
			log.Fatalf("❌ %v", err)
		}
		return
	case *info:
		ictx, cancel := context.WithTimeout(ctx, *timeout)
		defer cancel()
		si, err := client.RequestInfo(ictx, *addr)
		if err != nil {
			log.Fatalf("❌ Сервер %s не ответил: %v", *addr, err)
		}
		fmt.Printf("%s: %d/%d игроков\n", si.Name, si.Players, si.Capacity)
		return
	}

	ccfg := client.ConfigFrom(cfg, *username)
	ccfg.Console = func(text string) { fmt.Println(text) }

	dctx, cancel := context.WithTimeout(ctx, *timeout)
	c, err := client.Dial(dctx, *addr, ccfg)
	if err == nil {
		err = c.WaitForWorld(dctx)
	}
	cancel()
	if err != nil {
		log.Fatalf("❌ Не удалось подключиться к %s: %v", *addr, err)
	}
	fmt.Printf("Подключено как %s, игрок #%d. Команды: /help\n", *username, c.PlayerID())

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-c.Lost():
			fmt.Printf("Отключено: %s\n", c.Reason())
			return
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			if quit := execute(ctx, c, line); quit {
				break loop
			}
		}
	}

	cctx, ccancel := context.WithTimeout(context.Background(), *timeout)
	defer ccancel()
	if err := c.Close(cctx); err != nil {
		logging.Warn("отключение: %v", err)
	}
}

func listServers(ctx context.Context, cfg config.StatusConfig) error {
	if cfg.RedisAddr == "" {
		return fmt.Errorf("status.redis_addr не задан")
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	servers, err := status.List(ctx, rdb, cfg.Key)
	if err != nil {
		return err
	}
	if len(servers) == 0 {
		fmt.Println("Серверов нет")
		return nil
	}
	for _, s := range servers {
		fmt.Printf("%-20s %-22s %d/%d  запущен %s\n", s.Name, s.Address, s.Players, s.Capacity, s.StartedAt.Format(time.DateTime))
	}
	return nil
}
