package bridge

import (
	"sync"

	"github.com/mywio/reelsaver/pkg/reel"
)

// Future is a reply slot a handler returns to keep the reply channel open
// until it has an answer.
type Future struct {
	once   sync.Once
	done   chan struct{}
	result reel.Result
}

// NewFuture returns an unresolved future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolve stores the result and wakes waiters. Only the first call has effect;
// it reports whether this call resolved the future.
func (f *Future) Resolve(res reel.Result) bool {
	resolved := false
	f.once.Do(func() {
		f.result = res
		close(f.done)
		resolved = true
	})
	return resolved
}

// Done is closed once the future has been resolved.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Result returns the resolved value. It must only be read after Done is closed.
func (f *Future) Result() reel.Result {
	return f.result
}
