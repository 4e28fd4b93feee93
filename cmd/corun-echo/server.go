package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/webriots/corun"
	"github.com/webriots/corun/internal/config"
	"github.com/webriots/corun/internal/netop"
)

// server runs one acceptor task and one task per connection on a
// Schedule driven by a thread group.
type server struct {
	cfg      *config.Config
	log      *slog.Logger
	sched    *corun.Schedule
	conns    *corun.Semaphore
	active   corun.WaitGroup
	launcher corun.Launcher
	attr     corun.Attributes
}

func newServer(cfg *config.Config, log *slog.Logger) *server {
	s := &server{
		cfg:   cfg,
		log:   log,
		sched: corun.NewSchedule(),
		conns: corun.NewSemaphore(cfg.Conn.MaxConns),
	}
	s.launcher, s.attr = cfg.Launcher()
	return s
}

// serve accepts on ln until ctx is done, then waits for the open
// connections to finish. It returns once the acceptor has finished,
// whether or not the workers are detached.
func (s *server) serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	done := corun.NewFuture[struct{}]()
	corun.Spawn(s.sched, func(y corun.Yield) error {
		err := s.accept(y, ln)
		s.active.Wait(y)
		return err
	}, done.ErrHandler(), corun.WithContext(ctx), corun.WithName("acceptor"))

	g := corun.NewThreadGroup(s.launcher)
	if err := g.CreateThreadsAttr(func() { s.sched.Run() }, s.attr, s.cfg.WorkerCount()); err != nil {
		// Cancelling closes ln; the workers already started then
		// drain the acceptor.
		cancel(err)
		if g.Len() == 0 {
			return err
		}
		_, _ = done.Get(context.Background())
		return errors.Join(err, g.Close())
	}
	s.report(g)

	_, acceptErr := done.Get(context.Background())
	return errors.Join(acceptErr, g.Close())
}

// report logs the tuning the workers ended up with.
func (s *server) report(g *corun.ThreadGroup) {
	tn, ok := g.Tunable()
	if !ok {
		s.log.Info("workers started", "count", g.Len(), "threads", "goroutine")
		return
	}
	cpus, err := tn.Affinity()
	if err != nil {
		s.log.Warn("reading worker affinity", "error", err)
	}
	s.log.Info("workers started",
		"count", g.Len(),
		"threads", "os",
		"priority", tn.Priority(),
		"cpus", cpus,
		"detach", tn.DtorAction() == corun.DtorDetach,
	)
}

func (s *server) accept(y corun.Yield, ln net.Listener) error {
	var ec error
	ry := y.Redirect(&ec)
	for {
		s.conns.Acquire(y)

		c := netop.Accept(ry, ln)
		if ec != nil {
			s.conns.Release()
			if y.Context().Err() != nil {
				s.log.Info("acceptor stopped", "cause", context.Cause(y.Context()))
				return nil
			}
			return ec
		}

		id := uuid.New()
		log := s.log.With("conn", id.String(), "remote", c.RemoteAddr().String())
		log.Debug("accepted")

		s.active.Add(1)
		corun.Spawn(corun.NewStrand(y), func(y corun.Yield) error {
			defer s.conns.Release()
			return s.echo(y, c)
		}, func(err error) {
			defer s.active.Done()
			if err != nil {
				log.Warn("connection failed", "error", err)
				return
			}
			log.Debug("closed")
		},
			corun.WithContext(y.Context()),
			corun.WithStackSize(s.cfg.Conn.BufferSize),
			corun.WithName("conn "+id.String()),
		)
	}
}

// echo copies c back to itself until the peer closes it. The task's
// stack block is the transfer buffer.
func (s *server) echo(y corun.Yield, c net.Conn) error {
	defer c.Close()

	buf := y.Stack()
	idle := time.Duration(s.cfg.Conn.IdleTimeout)

	var ec error
	ry := y.Redirect(&ec)
	for {
		if idle > 0 {
			if err := c.SetReadDeadline(time.Now().Add(idle)); err != nil {
				return err
			}
		}
		n := netop.Read(ry, c, buf)
		switch {
		case errors.Is(ec, io.EOF):
			return nil
		case errors.Is(ec, os.ErrDeadlineExceeded):
			y.Log("IDLE")
			return nil
		case ec != nil:
			if y.Context().Err() != nil {
				return nil
			}
			return ec
		}

		netop.Write(ry, c, buf[:n])
		if ec != nil {
			return ec
		}
	}
}
