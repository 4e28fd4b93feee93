package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/webriots/corun"
	"github.com/webriots/corun/internal/config"
)

type testServer struct {
	addr   string
	cancel context.CancelFunc
	done   chan error
}

func startServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ts := &testServer{addr: ln.Addr().String(), cancel: cancel, done: make(chan error, 1)}
	srv := newServer(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	go func() { ts.done <- srv.serve(ctx, ln) }()
	return ts
}

// running reports whether serve has not returned yet.
func (ts *testServer) running() bool {
	select {
	case err := <-ts.done:
		ts.done <- err
		return false
	default:
		return true
	}
}

func (ts *testServer) stop() error {
	ts.cancel()
	select {
	case err := <-ts.done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("server did not stop")
	}
}

// roundTrip sends msg on a new connection and returns the echo.
func roundTrip(addr, msg string) (string, error) {
	c, err := net.Dial("tcp", addr)
	if err != nil {
		return "", err
	}
	defer c.Close()
	if _, err := io.WriteString(c, msg); err != nil {
		return "", err
	}
	buf := make([]byte, len(msg))
	if _, err := io.ReadFull(c, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func TestEchoServer(t *testing.T) {
	r := require.New(t)
	a := assert.New(t)

	cfg := config.Default()
	cfg.Workers.Count = 4
	cfg.Conn.BufferSize = 16
	ts := startServer(t, cfg)
	addr := ts.addr

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := net.Dial("tcp", addr)
			if !a.NoError(err) {
				return
			}
			defer c.Close()

			rd := bufio.NewReader(c)
			for j := 0; j < 5; j++ {
				line := fmt.Sprintf("client %d line %d with more than sixteen bytes\n", i, j)
				_, err := io.WriteString(c, line)
				a.NoError(err)
				got, err := rd.ReadString('\n')
				a.NoError(err)
				a.Equal(line, got)
			}
		}()
	}
	wg.Wait()

	r.NoError(ts.stop())
}

func TestEchoServerIdleTimeout(t *testing.T) {
	r := require.New(t)

	cfg := config.Default()
	cfg.Workers.Count = 1
	cfg.Conn.IdleTimeout = config.Duration(20 * time.Millisecond)
	ts := startServer(t, cfg)
	addr := ts.addr

	c, err := net.Dial("tcp", addr)
	r.NoError(err)
	defer c.Close()

	r.NoError(c.SetReadDeadline(time.Now().Add(5 * time.Second)))
	_, err = c.Read(make([]byte, 1))
	r.ErrorIs(err, io.EOF)

	r.NoError(ts.stop())
}

func TestEchoServerShutdownWithOpenConnection(t *testing.T) {
	r := require.New(t)

	cfg := config.Default()
	cfg.Workers.Count = 2
	ts := startServer(t, cfg)
	addr := ts.addr

	c, err := net.Dial("tcp", addr)
	r.NoError(err)
	defer c.Close()

	_, err = io.WriteString(c, "ping")
	r.NoError(err)
	buf := make([]byte, 4)
	_, err = io.ReadFull(c, buf)
	r.NoError(err)
	r.Equal("ping", string(buf))

	r.NoError(ts.stop())
}

// failingLauncher starts ok threads, then fails.
type failingLauncher struct {
	ok int
}

var errNoThreads = errors.New("out of threads")

func (l *failingLauncher) Launch(fn func(), attr corun.Attributes) (corun.Thread, error) {
	if l.ok == 0 {
		return nil, errNoThreads
	}
	l.ok--
	return corun.Goroutines.Launch(fn, attr)
}

func TestEchoServerPartialWorkerFailure(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	r := require.New(t)

	for _, ok := range []int{0, 1, 2} {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		r.NoError(err)

		cfg := config.Default()
		cfg.Workers.Count = 3
		srv := newServer(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
		srv.launcher = &failingLauncher{ok: ok}

		err = srv.serve(context.Background(), ln)
		r.ErrorIs(err, errNoThreads)

		if ok > 0 {
			// The acceptor saw the cancellation and closed the listener.
			_, err = ln.Accept()
			r.ErrorIs(err, net.ErrClosed)
		} else {
			r.NoError(ln.Close())
		}
	}
}
