package netop

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/webriots/corun"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestEchoRoundTrip(t *testing.T) {
	r := require.New(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	r.NoError(err)
	defer ln.Close()

	s := corun.NewSchedule()
	var reply string

	corun.Spawn(s, func(y corun.Yield) error {
		c := Accept(y, ln)
		defer c.Close()
		buf := make([]byte, 5)
		n := ReadFull(y, c, buf)
		Write(y, c, buf[:n])
		return nil
	}, func(err error) { r.NoError(err) })

	corun.Spawn(s, func(y corun.Yield) error {
		c := Dial(y, "tcp", ln.Addr().String())
		defer c.Close()
		Write(y, c, []byte("hello"))
		buf := make([]byte, 16)
		n := Read(y, c, buf)
		reply = string(buf[:n])
		return nil
	}, func(err error) { r.NoError(err) })

	var g corun.ThreadGroup
	r.NoError(g.CreateThreads(func() { s.Run() }, 2))
	r.NoError(g.Join())
	r.Equal("hello", reply)
}

func TestReadEOF(t *testing.T) {
	r := require.New(t)

	client, server := net.Pipe()
	r.NoError(client.Close())

	s := corun.NewSchedule()
	var ec error
	corun.Spawn(s, func(y corun.Yield) error {
		defer server.Close()
		n := Read(y.Redirect(&ec), server, make([]byte, 8))
		r.Zero(n)
		return nil
	}, func(err error) { r.NoError(err) })

	s.Run()
	r.ErrorIs(ec, io.EOF)
}

func TestCancelAbortsRead(t *testing.T) {
	r := require.New(t)

	client, server := net.Pipe()
	defer client.Close()

	ctx, cancel := context.WithCancelCause(context.Background())
	s := corun.NewSchedule()
	var got error
	corun.Spawn(s, func(y corun.Yield) error {
		defer server.Close()
		Read(y, server, make([]byte, 8))
		return nil
	}, func(err error) { got = err }, corun.WithContext(ctx))

	time.AfterFunc(5*time.Millisecond, func() { cancel(io.ErrClosedPipe) })
	s.Run()

	var ae *corun.AwaitError
	r.ErrorAs(got, &ae)
	r.ErrorIs(got, io.ErrClosedPipe)
}

func TestCancelClosesListener(t *testing.T) {
	r := require.New(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	r.NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	s := corun.NewSchedule()
	var ec error
	corun.Spawn(s, func(y corun.Yield) error {
		c := Accept(y.Redirect(&ec), ln)
		r.Nil(c)
		return nil
	}, func(err error) { r.NoError(err) }, corun.WithContext(ctx))

	time.AfterFunc(5*time.Millisecond, cancel)
	s.Run()
	r.ErrorIs(ec, context.Canceled)
}
