package eventlog

import (
	"context"
	"time"
)

// WaitForAppend blocks until an append at or after index `after` is
// visible, the timeout elapses, or ctx is done. It reports whether such an
// append exists.
func (l *Log) WaitForAppend(ctx context.Context, after uint64, timeout time.Duration) bool {
	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}
	for {
		l.mu.Lock()
		next, ch := l.next, l.notifyCh
		l.mu.Unlock()
		if next > after {
			return true
		}
		select {
		case <-ch:
		case <-deadline:
			return false
		case <-ctx.Done():
			return false
		}
	}
}
