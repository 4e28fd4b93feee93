package corun

import (
	"context"
	"fmt"
	"runtime/trace"
	"strings"

	"code.hybscloud.com/atomix"
	"github.com/webriots/coro"
)

const (
	taskTraceTaskType   = "corun-task"
	taskTraceRegionType = "corun-region"
	taskTraceCategory   = "corun"
)

// taskSerial hands out task identities.
var taskSerial atomix.Uint32

// task is the record of one spawned coroutine. Between Spawn and its
// first run it belongs to the launcher; afterwards it belongs to
// whichever posted run or pending op currently holds the right to
// resume it.
type task struct {
	id     uint32
	name   string
	ctx    context.Context
	tracer *trace.Task
	ex     Executor
	parent *task

	body   func(Yield) func()
	resume func(struct{}) (*op, bool)
	cancel func()
	yield  func(*op) struct{}
	active atomix.Uint32
	done   bool

	// Result and error holders, filled by the pending op before it
	// posts the resumption and emptied by the body when it resumes.
	result  any
	err     error
	pending bool

	stack Stack
	alloc StackAllocator

	complete func()
}

func newTask(ctx context.Context, ex Executor, parent *task, name string) *task {
	t := &task{
		id:     taskSerial.Add(1),
		name:   name,
		ex:     ex,
		parent: parent,
	}
	t.ctx, t.tracer = trace.NewTask(ctx, taskTraceTaskType)
	return t
}

// allocate obtains the task's stack block, if an allocator was given.
func (t *task) allocate(alloc StackAllocator, size int) error {
	if alloc == nil {
		return nil
	}
	s, err := alloc.Allocate(size)
	if err != nil {
		return err
	}
	t.stack, t.alloc = s, alloc
	return nil
}

// start posts the task's first run. body returns the closure that
// delivers the task's outcome.
func (t *task) start(body func(Yield) func()) {
	t.body = body

	if t.name != "" {
		t.Logf("SPAWN %s", t.name)
	} else {
		t.Log("SPAWN")
	}
	t.ex.Post(t.run)
}

// create builds the coroutine. It happens on the first run, so a task
// whose first run is never executed holds no coroutine.
func (t *task) create() {
	y := Yield{task: t, ex: t.ex}
	t.ctx = withYieldContext(t.ctx, y)
	body := t.body
	t.body = nil

	t.resume, t.cancel = coro.New(
		func(yield func(*op) struct{}, _ func() struct{}) (z *op) {
			region := trace.StartRegion(t.ctx, taskTraceRegionType)
			defer region.End()

			t.yield = yield
			t.complete = body(y)

			return
		},
	)
}

// run resumes the body until its next suspension or its end. It is
// only ever called as a handler posted on t.ex.
func (t *task) run() {
	if t.done {
		panic(ErrTerminated)
	}

	t.enter()
	if t.resume == nil {
		t.create()
	}
	t.Log("RUN")
	o, ok := t.resume(struct{}{})
	t.leave()

	if ok {
		t.initiate(o)
		return
	}

	t.finish()
}

// initiate starts the operation the body suspended on. It runs on the
// driving worker, outside the coroutine, so the operation's handler may
// fire from anywhere, even before initiate returns.
func (t *task) initiate(o *op) {
	workStarted(t.ex)

	err := try(func() { o.initiate(o) })
	if err == nil {
		return
	}

	if o.claim() {
		t.Log("INITIATE PANIC")
		o.deliver(err, nil)
		return
	}

	// The handler already fired and the task is on its way; the panic
	// belongs to the worker.
	panic(err)
}

// suspend parks the body on o and returns the operation's outcome once
// a resumption has been posted and run.
func (t *task) suspend(o *op) (any, error) {
	t.Log("SUSPEND")
	t.yield(o)

	if !t.pending {
		panic("corun: task resumed without a result")
	}
	v, err := t.result, t.err
	t.result, t.err, t.pending = nil, nil, false
	return v, err
}

func (t *task) finish() {
	t.done = true
	t.Log("DONE")

	if t.alloc != nil {
		t.alloc.Deallocate(t.stack)
		t.stack, t.alloc = Stack{}, nil
	}

	t.cancel()
	t.tracer.End()

	complete := t.complete
	t.complete = nil
	complete()
}

func (t *task) enter() {
	if t.active.Add(1) != 1 {
		panic("corun: task resumed while already running")
	}
}

func (t *task) leave() {
	t.active.Add(^uint32(0))
}

// inside reports whether the body is currently executing.
func (t *task) inside() bool {
	return t.active.Load() == 1 && !t.done
}

// Log records msg in the runtime trace, prefixed with the task path.
func (t *task) Log(msg string) {
	if trace.IsEnabled() {
		var sb strings.Builder
		taskpath(&sb, t)
		sb.WriteRune(' ')
		sb.WriteString(msg)
		trace.Log(t.ctx, taskTraceCategory, sb.String())
	}
}

// Logf is Log with formatting.
func (t *task) Logf(format string, args ...any) {
	if trace.IsEnabled() {
		var sb strings.Builder
		taskpath(&sb, t)
		sb.WriteRune(' ')
		fmt.Fprintf(&sb, format, args...)
		trace.Log(t.ctx, taskTraceCategory, sb.String())
	}
}

func taskpath(sb *strings.Builder, t *task) {
	if t == nil {
		return
	}
	taskpath(sb, t.parent)
	fmt.Fprintf(sb, "%d|", t.id)
}

// op is one suspension: the right to resume its task, handed to the
// operation's completion handler. The right is exercised at most once.
type op struct {
	t        *task
	fired    atomix.Uint32
	initiate func(*op)
}

func (o *op) claim() bool {
	return o.fired.Add(1) == 1
}

// complete is the body of every completion handler given out by Await.
func (o *op) complete(err error, v any) {
	if !o.claim() {
		panic(ErrDoubleResume)
	}
	o.deliver(err, v)
}

// deliver fills the task's holders and posts its resumption. The post
// precedes the release of the op's work so the executor never observes
// an idle moment in between.
func (o *op) deliver(err error, v any) {
	t := o.t
	t.result, t.err, t.pending = v, err, true
	t.ex.Post(t.run)
	workFinished(t.ex)
}
