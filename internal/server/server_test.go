package server

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/sandbox-game/internal/client"
	"github.com/annel0/sandbox-game/internal/network"
	"github.com/annel0/sandbox-game/internal/protocol"
	"github.com/annel0/sandbox-game/internal/simulation"
	"github.com/annel0/sandbox-game/internal/storage"
	"github.com/annel0/sandbox-game/internal/vec"
	"github.com/annel0/sandbox-game/internal/world"
)

const waitFor = 3 * time.Second

func testConfig(capacity int) Config {
	return Config{
		Name:       "test",
		ListenAddr: "127.0.0.1:0",
		MaxClients: capacity,
		Transport: network.TransportConfig{
			Attempts:      10,
			RetryInterval: 50 * time.Millisecond,
		},
		ReceiveTimeout:       5 * time.Millisecond,
		ConnectionTimeout:    5 * time.Second,
		EntityUpdateInterval: 20 * time.Millisecond,
		ShutdownTimeout:      500 * time.Millisecond,
		Simulation: simulation.Config{
			MaxTimestep: 50 * time.Millisecond,
			FrameSleep:  time.Millisecond,
		},
		CompressHead: true,
	}
}

func clientConfig(name string) client.Config {
	return client.Config{
		Username: name,
		Transport: network.TransportConfig{
			Attempts:      10,
			RetryInterval: 50 * time.Millisecond,
		},
		ReceiveTimeout: 5 * time.Millisecond,
		PingInterval:   200 * time.Millisecond,
		Simulation: simulation.Config{
			MaxTimestep: 50 * time.Millisecond,
			FrameSleep:  time.Millisecond,
		},
	}
}

// flatWorld мир без гравитации: неподвижные сущности остаются на месте
func flatWorld() *world.World {
	return world.New(16, 16, 0)
}

type running struct {
	srv  *GameServer
	stop context.CancelFunc
	done chan error
}

func startServer(t *testing.T, cfg Config, w *world.World, deps Deps) *running {
	t.Helper()
	srv, err := New(cfg, w, deps)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	r := &running{srv: srv, stop: cancel, done: make(chan error, 1)}
	go func() { r.done <- srv.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-r.done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("сервер не остановился")
		}
	})
	return r
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func dial(t *testing.T, ctx context.Context, addr string, cfg client.Config) *client.GameClient {
	t.Helper()
	c, err := client.Dial(ctx, addr, cfg)
	require.NoError(t, err)
	require.NoError(t, c.WaitForWorld(ctx))
	return c
}

func TestConnectRejectDisconnectAccept(t *testing.T) {
	r := startServer(t, testConfig(1), flatWorld(), Deps{})
	ctx := testContext(t)

	alice := dial(t, ctx, r.srv.Addr(), clientConfig("alice"))
	assert.NotZero(t, alice.PlayerID())
	assert.Equal(t, 1, r.srv.Players())

	_, err := client.Dial(ctx, r.srv.Addr(), clientConfig("bob"))
	assert.ErrorIs(t, err, client.ErrRejected, "сервер заполнен")

	require.NoError(t, alice.Close(ctx))
	require.Eventually(t, func() bool { return r.srv.Players() == 0 }, waitFor, 10*time.Millisecond)

	carol := dial(t, ctx, r.srv.Addr(), clientConfig("carol"))
	assert.NotEqual(t, alice.PlayerID(), carol.PlayerID(), "ID сущностей не переиспользуются")
	require.NoError(t, carol.Close(ctx))
}

func TestAddEntityReachesClient(t *testing.T) {
	r := startServer(t, testConfig(4), flatWorld(), Deps{})
	ctx := testContext(t)
	c := dial(t, ctx, r.srv.Addr(), clientConfig("alice"))
	defer c.Close(ctx)

	want := vec.Vec2Float{X: 3.5, Y: 9.25}
	require.NoError(t, r.srv.Query(ctx, func(w *world.World) error {
		return w.Add(world.NewItemEntity(7, &world.BlockItem{Block: world.DirtBlock{}}, want))
	}))

	var (
		got    vec.Vec2Float
		isItem bool
	)
	require.Eventually(t, func() bool {
		found := false
		_ = c.Query(ctx, func(w *world.World) error {
			e, ok := w.Entity(7)
			if ok {
				found = true
				got = e.Body().Position
				_, isItem = e.(*world.ItemEntity)
			}
			return nil
		})
		return found
	}, waitFor, 10*time.Millisecond)
	assert.Equal(t, want, got)
	assert.True(t, isItem)

	require.NoError(t, r.srv.Query(ctx, func(w *world.World) error {
		_, err := w.Remove(7)
		return err
	}))
	require.Eventually(t, func() bool {
		gone := false
		_ = c.Query(ctx, func(w *world.World) error {
			_, ok := w.Entity(7)
			gone = !ok
			return nil
		})
		return gone
	}, waitFor, 10*time.Millisecond)
}

func TestBlockChangesReachClient(t *testing.T) {
	r := startServer(t, testConfig(4), flatWorld(), Deps{})
	ctx := testContext(t)
	c := dial(t, ctx, r.srv.Addr(), clientConfig("alice"))
	defer c.Close(ctx)

	blockAt := func(x, y int) world.Block {
		var b world.Block
		_ = c.Query(ctx, func(w *world.World) error {
			b = w.Foreground().Get(x, y)
			return nil
		})
		return b
	}

	require.NoError(t, r.srv.Query(ctx, func(w *world.World) error {
		_, err := w.PlaceBlock(world.Foreground, 2, 3, world.RedBlock{})
		return err
	}))
	require.Eventually(t, func() bool { return blockAt(2, 3) == world.RedBlock{} }, waitFor, 10*time.Millisecond)

	require.NoError(t, r.srv.Query(ctx, func(w *world.World) error {
		_, err := w.BreakBlock(world.Foreground, 2, 3)
		return err
	}))
	require.Eventually(t, func() bool { return blockAt(2, 3) == nil }, waitFor, 10*time.Millisecond)
}

func TestWorldHeadIncludesEarlierState(t *testing.T) {
	w := flatWorld()
	require.NoError(t, w.SetBlock(world.Background, 1, 1, world.GrassBlock{}))
	r := startServer(t, testConfig(4), w, Deps{})
	ctx := testContext(t)

	require.NoError(t, r.srv.Query(ctx, func(w *world.World) error {
		return w.Add(world.NewItemEntity(w.NextEntityID(), &world.BlockItem{Block: world.RedBlock{}}, vec.Vec2Float{X: 5.5, Y: 2.25}))
	}))

	c := dial(t, ctx, r.srv.Addr(), clientConfig("alice"))
	defer c.Close(ctx)

	require.NoError(t, c.Query(ctx, func(w *world.World) error {
		assert.Equal(t, world.GrassBlock{}, w.Background().Get(1, 1))
		assert.Equal(t, 2, w.EntityCount(), "предмет и сам игрок")
		player, ok := w.Entity(c.PlayerID())
		require.True(t, ok)
		assert.IsType(t, &world.PlayerEntity{}, player)
		return nil
	}))
}

func TestServerInfo(t *testing.T) {
	r := startServer(t, testConfig(3), flatWorld(), Deps{})
	ctx := testContext(t)

	info, err := client.RequestInfo(ctx, r.srv.Addr())
	require.NoError(t, err)
	assert.Equal(t, &protocol.ServerInfo{Players: 0, Capacity: 3, Name: "test"}, info)

	c := dial(t, ctx, r.srv.Addr(), clientConfig("alice"))
	defer c.Close(ctx)

	info, err = client.RequestInfo(ctx, r.srv.Addr())
	require.NoError(t, err)
	assert.Equal(t, uint16(1), info.Players)
}

func TestChatBroadcast(t *testing.T) {
	r := startServer(t, testConfig(4), flatWorld(), Deps{})
	ctx := testContext(t)

	lines := make(chan string, 32)
	bobCfg := clientConfig("bob")
	bobCfg.Console = func(text string) { lines <- text }

	alice := dial(t, ctx, r.srv.Addr(), clientConfig("alice"))
	defer alice.Close(ctx)
	bob := dial(t, ctx, r.srv.Addr(), bobCfg)
	defer bob.Close(ctx)

	alice.Chat("  привет  ")
	deadline := time.After(waitFor)
	for {
		select {
		case line := <-lines:
			if strings.HasPrefix(line, "<alice>") {
				assert.Equal(t, "<alice> привет", line)
				return
			}
		case <-deadline:
			t.Fatal("сообщение чата не дошло")
		}
	}
}

func TestShutdownKicksClients(t *testing.T) {
	r := startServer(t, testConfig(4), flatWorld(), Deps{})
	ctx := testContext(t)
	c := dial(t, ctx, r.srv.Addr(), clientConfig("alice"))

	r.stop()
	select {
	case <-c.Lost():
		assert.Equal(t, "сервер остановлен", c.Reason())
	case <-time.After(waitFor):
		t.Fatal("клиент не получил SERVER_CLIENT_DISCONNECT")
	}
	_ = c.Close(ctx)
}

func TestPositionRestoredOnRejoin(t *testing.T) {
	positions := storage.NewMemoryPositionRepo()
	saved := vec.Vec2Float{X: 5.5, Y: 7}
	require.NoError(t, positions.Save(context.Background(), "dave", saved))

	r := startServer(t, testConfig(4), flatWorld(), Deps{Positions: positions})
	ctx := testContext(t)

	c := dial(t, ctx, r.srv.Addr(), clientConfig("dave"))
	require.NoError(t, c.Query(ctx, func(w *world.World) error {
		p, ok := w.Entity(c.PlayerID())
		require.True(t, ok)
		assert.Equal(t, saved, p.Body().Position)
		return nil
	}))

	// позиция сохраняется при выходе
	require.NoError(t, positions.Delete(context.Background(), "dave"))
	require.NoError(t, c.Close(ctx))
	require.Eventually(t, func() bool {
		pos, found, err := positions.Load(context.Background(), "dave")
		return err == nil && found && pos == saved
	}, waitFor, 10*time.Millisecond)
}

func TestSilentPeerTimesOut(t *testing.T) {
	cfg := testConfig(4)
	cfg.ConnectionTimeout = 300 * time.Millisecond
	r := startServer(t, cfg, flatWorld(), Deps{})

	peer, err := network.Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer peer.Close()
	server, err := network.ResolveAddr(r.srv.Addr())
	require.NoError(t, err)

	// надёжный CONNECT_REQUEST с id 0, дальше тишина
	packet, err := network.EncodePacket(protocol.ClientConnectRequestTag, true, 0, nil)
	require.NoError(t, err)
	require.NoError(t, peer.WriteTo(packet, server))

	require.Eventually(t, func() bool { return r.srv.Players() == 1 }, waitFor, 5*time.Millisecond)
	require.Eventually(t, func() bool { return r.srv.Players() == 0 }, waitFor, 10*time.Millisecond)
}

func TestMalformedDatagramsAreDropped(t *testing.T) {
	r := startServer(t, testConfig(4), flatWorld(), Deps{})
	ctx := testContext(t)

	peer, err := network.Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer peer.Close()
	server, err := network.ResolveAddr(r.srv.Addr())
	require.NoError(t, err)

	for _, garbage := range [][]byte{
		{0x01},                   // короче заголовка
		{0x00, 0x7F},             // неизвестный тег
		{0x00, 0x01, 0, 0},       // надёжный тег без messageId
		{0x00, 0x01, 0, 0, 0, 0}, // CLIENT_INFO без имени
		{0x80, 0x01, 0xFF},       // битый ack
	} {
		require.NoError(t, peer.WriteTo(garbage, server))
	}
	// длиннее MaxPacketSize
	require.NoError(t, peer.WriteTo(append([]byte{0x00, 0x03}, make([]byte, protocol.MaxPacketSize)...), server))

	info, err := client.RequestInfo(ctx, r.srv.Addr())
	require.NoError(t, err)
	assert.Equal(t, "test", info.Name)
	assert.Zero(t, r.srv.Players())
}

func TestFatalWorldErrorKeepsLastSave(t *testing.T) {
	cfg := testConfig(4)
	cfg.SaveFile = filepath.Join(t.TempDir(), "world.dat")
	good := []byte("последнее целое сохранение")
	require.NoError(t, os.WriteFile(cfg.SaveFile, good, 0o644))

	positions := storage.NewMemoryPositionRepo()
	srv, err := New(cfg, flatWorld(), Deps{Positions: positions})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	require.NoError(t, srv.Query(testContext(t), func(w *world.World) error {
		return w.Add(world.NewPlayerEntity(w.NextEntityID(), "erin", vec.Vec2Float{X: 4.5, Y: 6}))
	}))
	broken := errors.New("нарушен инвариант")
	srv.loop.Submit(func(*world.World) error { return broken })

	select {
	case err := <-done:
		assert.ErrorIs(t, err, broken)
	case <-time.After(waitFor):
		t.Fatal("сервер не остановился после ошибки мира")
	}

	data, err := os.ReadFile(cfg.SaveFile)
	require.NoError(t, err)
	assert.Equal(t, good, data, "файл сохранения не перезаписан")

	pos, found, err := positions.Load(context.Background(), "erin")
	require.NoError(t, err)
	assert.True(t, found, "позиции игроков сохраняются и после ошибки")
	assert.Equal(t, vec.Vec2Float{X: 4.5, Y: 6}, pos)
}

func TestInvalidUsernameIsKicked(t *testing.T) {
	r := startServer(t, testConfig(4), flatWorld(), Deps{})
	ctx := testContext(t)

	c, err := client.Dial(ctx, r.srv.Addr(), clientConfig("bad\xff\xfe"))
	require.NoError(t, err)
	defer c.Close(ctx)

	select {
	case <-c.Lost():
		assert.Equal(t, "имя не в UTF-8", c.Reason())
	case <-time.After(waitFor):
		t.Fatal("клиент с битым именем не отключён")
	}
	require.Eventually(t, func() bool { return r.srv.Players() == 0 }, waitFor, 10*time.Millisecond)
}

func TestUnackedPeerIsDroppedWithItsPlayer(t *testing.T) {
	cfg := testConfig(4)
	cfg.ConnectionTimeout = time.Minute
	r := startServer(t, cfg, flatWorld(), Deps{})
	ctx := testContext(t)

	peer, err := network.Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer peer.Close()
	server, err := network.ResolveAddr(r.srv.Addr())
	require.NoError(t, err)

	// вход без единого ack: надёжные ответы сервера исчерпают повторы
	connect, err := network.EncodePacket(protocol.ClientConnectRequestTag, true, 0, nil)
	require.NoError(t, err)
	name := "mallory"
	info, err := network.EncodePacket(protocol.ClientInfoTag, true, 1, append([]byte{byte(len(name))}, name...))
	require.NoError(t, err)
	require.NoError(t, peer.WriteTo(connect, server))
	require.NoError(t, peer.WriteTo(info, server))

	players := func() int {
		n := 0
		_ = r.srv.Query(ctx, func(w *world.World) error {
			w.ForEachEntity(func(e world.Entity) {
				if p, ok := e.(*world.PlayerEntity); ok && p.Name == name {
					n++
				}
			})
			return nil
		})
		return n
	}
	require.Eventually(t, func() bool { return players() == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, 1, r.srv.Players())

	require.Eventually(t, func() bool { return r.srv.Players() == 0 }, waitFor, 10*time.Millisecond)
	require.Eventually(t, func() bool { return players() == 0 }, waitFor, 10*time.Millisecond)
}

func TestConsoleCommands(t *testing.T) {
	r := startServer(t, testConfig(4), flatWorld(), Deps{})
	ctx := testContext(t)

	lines := make(chan string, 32)
	cfg := clientConfig("alice")
	cfg.Console = func(text string) { lines <- text }
	c := dial(t, ctx, r.srv.Addr(), cfg)
	defer c.Close(ctx)

	out, err := r.srv.Execute(ctx, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "подключений: 1 из 4")
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "in-game")

	out, err = r.srv.Execute(ctx, "   ")
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = r.srv.Execute(ctx, "pause")
	require.NoError(t, err)
	assert.True(t, r.srv.Paused())
	_, err = r.srv.Execute(ctx, "RESUME")
	require.NoError(t, err)
	assert.False(t, r.srv.Paused())

	_, err = r.srv.Execute(ctx, "say")
	assert.Error(t, err)
	_, err = r.srv.Execute(ctx, "say техобслуживание через 5 минут")
	require.NoError(t, err)
	_, err = r.srv.Execute(ctx, "всем привет")
	require.NoError(t, err)

	want := []string{"[сервер] техобслуживание через 5 минут", "[сервер] всем привет"}
	var got []string
	deadline := time.After(waitFor)
	for len(got) < len(want) {
		select {
		case line := <-lines:
			if strings.HasPrefix(line, "[сервер]") {
				got = append(got, line)
			}
		case <-deadline:
			t.Fatalf("сообщения консоли не дошли: %v", got)
		}
	}
	assert.Equal(t, want, got)

	for _, cmd := range []string{"stop", "exit", "quit"} {
		_, err = r.srv.Execute(ctx, cmd)
		assert.ErrorIs(t, err, ErrStopRequested, cmd)
	}

	out, err = r.srv.Execute(ctx, "kick-all")
	require.NoError(t, err)
	assert.Equal(t, "отключено клиентов: 1", out)
	select {
	case <-c.Lost():
		assert.Equal(t, "отключены оператором", c.Reason())
	case <-time.After(waitFor):
		t.Fatal("клиент не отключён")
	}

	out, err = r.srv.Execute(ctx, "list")
	require.NoError(t, err)
	assert.Equal(t, "нет подключений", out)
}

func TestConsoleAfterStop(t *testing.T) {
	srv, err := New(testConfig(1), flatWorld(), Deps{})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	cancel()
	require.NoError(t, <-done)

	_, err = srv.Execute(testContext(t), "list")
	assert.ErrorIs(t, err, ErrNotRunning)
}
