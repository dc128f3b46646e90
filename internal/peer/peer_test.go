package peer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binal-re/binal/internal/coordinator"
	"github.com/binal-re/binal/internal/native"
	"github.com/binal-re/binal/internal/native/nativetest"
	"github.com/binal-re/binal/internal/retry"
	"github.com/binal-re/binal/internal/wire"
)

const waitFor = 5 * time.Second

type server struct {
	view   *native.MemView
	coord  *coordinator.Coordinator
	addr   string
	wsURL  string
	cancel context.CancelFunc
	done   chan error
	once   sync.Once
}

func startServer(t *testing.T, view *native.MemView) *server {
	t.Helper()

	tcp, err := wire.ListenTCP("127.0.0.1:0", wire.DefaultOptions())
	require.NoError(t, err)
	ws, err := wire.ListenWebSocket("127.0.0.1:0", "/sync", wire.DefaultOptions(), zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	s := &server{
		view:   view,
		coord:  coordinator.New(view, coordinator.DefaultConfig(), zerolog.Nop(), tcp, ws),
		addr:   tcp.Addr(),
		wsURL:  "ws://" + ws.Addr() + "/sync",
		cancel: cancel,
		done:   make(chan error, 1),
	}
	go func() { s.done <- s.coord.Run(ctx) }()

	t.Cleanup(s.stop)
	return s
}

func (s *server) stop() {
	s.once.Do(func() {
		s.cancel()
		select {
		case <-s.done:
		case <-time.After(waitFor):
		}
	})
}

func runPeer(t *testing.T, view native.View, cfg Config) (*Peer, chan error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	p, err := Dial(ctx, view, cfg, zerolog.Nop())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(waitFor):
		}
	})
	return p, done
}

func hasType(v native.View, name string) func() bool {
	return func() bool {
		_, ok := v.TypeByName(name)
		return ok
	}
}

func TestPeer_ReceivesInitialSync(t *testing.T) {
	remote := native.NewMemView()
	nativetest.Program(t, remote)
	srv := startServer(t, remote)

	local := native.NewMemView()
	runPeer(t, local, DefaultConfig(srv.addr))

	require.Eventually(t, func() bool {
		_, ok := local.DataVarByName("g_color")
		return ok
	}, waitFor, 10*time.Millisecond)

	f, ok := local.FunctionByName("process")
	require.True(t, ok)
	assert.Equal(t, "int32_t(T1*, uint64_t)", f.Type.String())
}

func TestPeer_LocalEditsReachOtherPeersWithoutEcho(t *testing.T) {
	srv := startServer(t, native.NewMemView())

	first := native.NewMemView()
	second := native.NewMemView()
	runPeer(t, first, DefaultConfig(srv.addr))
	runPeer(t, second, DefaultConfig("tcp://"+srv.addr))

	require.Eventually(t, func() bool { return srv.coord.Stats().Active == 2 }, waitFor, 10*time.Millisecond)

	nativetest.LinkedNode(t, first)

	complete := func(v native.View) func() bool {
		return func() bool {
			node, ok := v.TypeByName("node")
			return ok && len(node.Members) == 2
		}
	}
	require.Eventually(t, complete(srv.view), waitFor, 10*time.Millisecond)
	require.Eventually(t, complete(second), waitFor, 10*time.Millisecond)

	node, _ := second.TypeByName("node")
	assert.Equal(t, "node*", node.Members[0].Type.String())

	// Only the editing peer ever sends anything.
	assert.Never(t, func() bool {
		senders := 0
		for _, cs := range srv.coord.Stats().Conns {
			if cs.FramesIn > 0 {
				senders++
			}
		}
		return senders > 1
	}, 300*time.Millisecond, 20*time.Millisecond)
}

func TestPeer_DeletePropagates(t *testing.T) {
	remote := native.NewMemView()
	require.NoError(t, remote.DefineType("E", native.EnumOf("E", 4)))
	srv := startServer(t, remote)

	local := native.NewMemView()
	p, _ := runPeer(t, local, DefaultConfig(srv.addr))
	require.Eventually(t, hasType(local, "E"), waitFor, 10*time.Millisecond)

	require.NoError(t, p.Delete("E"))
	require.Eventually(t, func() bool { return !hasType(remote, "E")() }, waitFor, 10*time.Millisecond)

	require.NoError(t, remote.DefineType("F", native.EnumOf("F", 4)))
	require.Eventually(t, hasType(local, "F"), waitFor, 10*time.Millisecond)
	assert.True(t, remote.UndefineType("F"))
	require.Eventually(t, func() bool { return !hasType(local, "F")() }, waitFor, 10*time.Millisecond)
}

func TestPeer_SyncOnConnectOverWebSocket(t *testing.T) {
	srv := startServer(t, native.NewMemView())

	local := native.NewMemView()
	nativetest.MutualPair(t, local)

	cfg := DefaultConfig(srv.wsURL)
	cfg.SyncOnConnect = true
	runPeer(t, local, cfg)

	require.Eventually(t, hasType(srv.view, "A"), waitFor, 10*time.Millisecond)
	require.Eventually(t, hasType(srv.view, "B"), waitFor, 10*time.Millisecond)

	a, _ := srv.view.TypeByName("A")
	require.Eventually(t, func() bool {
		a, _ = srv.view.TypeByName("A")
		return len(a.Members) == 1
	}, waitFor, 10*time.Millisecond)
	assert.Equal(t, "B*", a.Members[0].Type.String())
}

func TestPeer_RunEndsWhenServerStops(t *testing.T) {
	srv := startServer(t, native.NewMemView())
	_, done := runPeer(t, native.NewMemView(), DefaultConfig(srv.addr))
	require.Eventually(t, func() bool { return srv.coord.Stats().Active == 1 }, waitFor, 10*time.Millisecond)

	srv.stop()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(waitFor):
		t.Fatal("peer did not notice the server stopping")
	}
}

func TestDial_Failures(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig("gopher://127.0.0.1:1")
	cfg.Retry = retry.Config{MaxRetries: 5, InitialBackoff: time.Second}

	start := time.Now()
	_, err := Dial(ctx, native.NewMemView(), cfg, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported endpoint scheme")
	assert.Less(t, time.Since(start), time.Second, "permanent errors are not retried")

	ln, err := wire.ListenTCP("127.0.0.1:0", wire.DefaultOptions())
	require.NoError(t, err)
	addr := ln.Addr()
	require.NoError(t, ln.Close())

	cfg = DefaultConfig(addr)
	cfg.Retry = retry.Config{MaxRetries: 2, InitialBackoff: time.Millisecond}
	_, err = Dial(ctx, native.NewMemView(), cfg, zerolog.Nop())
	assert.Error(t, err)
}
