//go:build !linux

package corun

// osThread is a worker pinned to one OS thread. Tuning is not
// available on this platform, so it is a plain Thread.
type osThread struct {
	done chan struct{}
	err  error
}

func newOSThread() *osThread {
	return &osThread{done: make(chan struct{})}
}

func (t *osThread) bind(attr Attributes) error {
	if !attr.isZero() {
		return ErrTuningUnsupported
	}
	return nil
}

func (t *osThread) retire() {}

func (t *osThread) Join() error {
	<-t.done
	return t.err
}
