// Package corun runs sequential-style code as stackful coroutines on
// top of executors, suspending a task at each asynchronous operation
// and resuming it on the same executor when the operation completes.
//
// Key components:
//
//   - Spawn / SpawnResult: start a task bound to a Target (a Schedule,
//     a Strand, any Executor via On, or a parent Yield). The first run
//     is always posted; the outcome is delivered to a completion
//     handler of signature func(error) or func(error, T).
//
//   - Yield: the handle passed to every task body. Handing it to Await
//     or AwaitVoid marks a suspension point. A failed operation panics
//     with *AwaitError at the call site unless the Yield was derived
//     with Redirect, in which case the error is stored instead.
//
//   - Executor, Schedule and Strand: Post-based executors. A Schedule
//     is a run queue shared by any number of workers; a Strand
//     guarantees that work posted through it never overlaps.
//
//   - ThreadGroup: owns the workers that drive a Schedule, with
//     optional priority and affinity tuning on backends that support it.
//
//   - Synchronization primitives: Mutex, Semaphore, WaitGroup, Group
//     and SingleFlight, which suspend the calling task rather than
//     blocking the worker.
package corun
