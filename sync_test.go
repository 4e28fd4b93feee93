package corun

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMutex(t *testing.T) {
	r := require.New(t)

	s := NewSchedule()
	var (
		mu       Mutex
		critical atomic.Int32
		n        int
	)

	for i := 0; i < 4; i++ {
		Spawn(s, func(y Yield) error {
			for j := 0; j < 3; j++ {
				mu.Lock(y)
				r.EqualValues(1, critical.Add(1))
				Sleep(y, time.Millisecond)
				r.EqualValues(1, critical.Load())
				critical.Add(-1)
				mu.Unlock()
			}
			mu.Lock(y)
			n++
			mu.Unlock()
			return nil
		}, func(err error) { r.NoError(err) })
	}

	runWorkers(t, s, 4)
	r.Equal(4, n)
	r.Zero(mu.WaitCount())
	r.True(mu.TryLock())
	r.False(mu.TryLock())
	mu.Unlock()
	r.Panics(mu.Unlock)
}

func TestMutexHandOffOrder(t *testing.T) {
	r := require.New(t)

	s := NewSchedule()
	var (
		mu    Mutex
		order []int
	)

	r.True(mu.TryLock())
	for i := 0; i < 5; i++ {
		Spawn(s, func(y Yield) error {
			mu.Lock(y)
			order = append(order, i)
			mu.Unlock()
			return nil
		}, Detached)
	}

	r.Equal(5, s.Poll())
	r.Equal(5, mu.WaitCount())
	r.Empty(order)

	s.Restart()
	mu.Unlock()
	s.Run()
	r.Equal([]int{0, 1, 2, 3, 4}, order)
}

func TestMutexKeepsRedirectSlot(t *testing.T) {
	r := require.New(t)

	s := NewSchedule()
	var mu Mutex
	r.True(mu.TryLock())

	sentinel := errors.New("untouched")
	ec := sentinel
	Spawn(s, func(y Yield) error {
		mu.Lock(y.Redirect(&ec))
		mu.Unlock()
		return nil
	}, Detached)

	s.Poll()
	s.Restart()
	mu.Unlock()
	s.Run()
	r.Equal(sentinel, ec)
}

func TestSemaphore(t *testing.T) {
	r := require.New(t)

	s := NewSchedule()
	sem := NewSemaphore(3)
	var (
		inside atomic.Int32
		peak   atomic.Int32
	)

	for i := 0; i < 12; i++ {
		Spawn(s, func(y Yield) error {
			sem.Acquire(y)
			defer sem.Release()
			n := inside.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			Sleep(y, 2*time.Millisecond)
			inside.Add(-1)
			return nil
		}, func(err error) { r.NoError(err) })
	}

	runWorkers(t, s, 4)
	r.EqualValues(3, peak.Load())

	r.True(sem.TryAcquire())
	r.True(sem.TryAcquire())
	r.True(sem.TryAcquire())
	r.False(sem.TryAcquire())
}

func TestWaitGroup(t *testing.T) {
	r := require.New(t)

	s := NewSchedule()
	var (
		wg WaitGroup
		n  atomic.Int32
	)

	Spawn(s, func(y Yield) error {
		for i := 0; i < 10; i++ {
			wg.Add(1)
			Spawn(y, func(y Yield) error {
				defer wg.Done()
				Sleep(y, time.Duration(i)*time.Millisecond)
				n.Add(1)
				return nil
			}, Detached)
		}
		wg.Wait(y)
		r.EqualValues(10, n.Load())
		wg.Wait(y)
		return nil
	}, func(err error) { r.NoError(err) })

	runWorkers(t, s, 4)
	r.EqualValues(10, n.Load())
	r.Panics(wg.Done)
}

func TestGroup(t *testing.T) {
	r := require.New(t)

	s := NewSchedule()
	var x, y, z int

	Spawn(s, func(yy Yield) error {
		g := NewGroup(yy)
		for i := 0; i < 10; i++ {
			g.Go(func(yy Yield) error {
				gn := NewGroup(yy)
				for j := 0; j < 10; j++ {
					gn.Go(func(yy Yield) error {
						Reschedule(yy)
						z++
						return nil
					})
				}
				if err := gn.Wait(yy); err != nil {
					return err
				}
				y++
				return nil
			})
		}
		r.NoError(g.Wait(yy))
		x++
		return nil
	}, func(err error) { r.NoError(err) })

	// One worker: the counters are unsynchronized.
	s.Run()
	r.Equal(1, x)
	r.Equal(10, y)
	r.Equal(100, z)
}

func TestGroupCancelsOnFirstError(t *testing.T) {
	r := require.New(t)

	s := NewSchedule()
	var (
		got       error
		cancelled atomic.Int32
	)

	Spawn(s, func(y Yield) error {
		g := NewGroup(y)
		g.Go(func(y Yield) error {
			Sleep(y, time.Millisecond)
			return errBroken
		})
		for i := 0; i < 5; i++ {
			g.Go(func(y Yield) error {
				var ec error
				Sleep(y.Redirect(&ec), time.Hour)
				if errors.Is(ec, errBroken) {
					cancelled.Add(1)
				}
				return ec
			})
		}
		got = g.Wait(y)
		r.ErrorIs(context.Cause(g.Context()), errBroken)
		return nil
	}, func(err error) { r.NoError(err) })

	runWorkers(t, s, 2)
	r.Equal(errBroken, got)
	r.EqualValues(5, cancelled.Load())
}

func TestSingleFlight(t *testing.T) {
	r := require.New(t)

	s := NewSchedule()
	var (
		sf     SingleFlight
		calls  int
		shared int
	)

	for i := 0; i < 100; i++ {
		Spawn(s, func(y Yield) error {
			v, err, sh := sf.Do(y, "key", func() (any, error) {
				calls++
				Sleep(y, 20*time.Millisecond)
				return fmt.Sprint("value ", calls), nil
			})
			r.NoError(err)
			r.Equal("value 1", v)
			r.True(sh)
			shared++
			return nil
		}, func(err error) { r.NoError(err) })
	}

	s.Run()
	r.Equal(1, calls)
	r.Equal(100, shared)

	Spawn(s, func(y Yield) error {
		v, err, sh := sf.Do(y, "key", func() (any, error) { return nil, errBroken })
		r.Nil(v)
		r.Equal(errBroken, err)
		r.False(sh)
		return nil
	}, Detached)
	s.Restart()
	s.Run()
}
