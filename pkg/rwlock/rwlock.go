// Package rwlock provides a reentrant, writer-preferring reader/writer lock.
//
// Unlike [sync.RWMutex], a [RWLock] may be re-acquired by the same logical
// caller while already held, in either mode, and a caller holding a read
// lock may upgrade to a write lock if it is the only reader. Go has no
// stable, portable notion of "the current thread" the way the documented
// design calls for, so reentrancy is tracked per goroutine using
// goroutine-local storage ([github.com/jtolds/gls]) rather than by
// recovering a goroutine id through runtime/stack introspection.
package rwlock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jtolds/gls"
)

// ErrWouldBlock is returned by the Try* variants when the lock cannot be
// acquired within the requested timeout.
var ErrWouldBlock = errors.New("rwlock: would block")

// mgr associates goroutine-local lock state with the *RWLock the state
// belongs to. A single manager is shared by all locks; entries are keyed
// by the lock's own pointer, so distinct locks never collide.
var mgr = gls.NewContextManager()

const (
	modeNone = iota
	modeRead
	modeWrite
)

// holdState is the goroutine-local record of this goroutine's relationship
// to one particular RWLock. It is created once per top-level acquisition
// and lives for the dynamic extent of the gls.SetValues callback that
// installed it; nested calls on the same goroutine observe and mutate the
// very same *holdState.
type holdState struct {
	mode  int
	depth int
}

// RWLock is a reentrant, writer-preferring reader/writer lock.
//
// The zero value is ready to use.
type RWLock struct {
	mu             sync.Mutex
	cond           *sync.Cond
	readers        int // number of distinct goroutines currently holding a read lock
	writerActive   bool
	writersWaiting int
}

func (l *RWLock) init() *sync.Cond {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cond == nil {
		l.cond = sync.NewCond(&l.mu)
	}

	return l.cond
}

func (l *RWLock) held() (*holdState, bool) {
	v, ok := mgr.GetValue(l)
	if !ok {
		return nil, false
	}

	st, ok := v.(*holdState)

	return st, ok
}

// WithRLock runs fn while holding a read lock.
//
// If the calling goroutine already holds this lock (read or write), the
// call is a cheap recursion: no blocking occurs and fn runs against the
// already-held mode.
func (l *RWLock) WithRLock(fn func() error) error {
	if st, ok := l.held(); ok {
		st.depth++
		defer func() { st.depth-- }()

		return fn()
	}

	l.acquireRead()
	defer l.releaseRead()

	return l.runWith(&holdState{mode: modeRead, depth: 1}, fn)
}

// WithLock runs fn while holding a write lock.
//
// If the calling goroutine already holds a write lock, the call recurses
// cheaply. If it already holds a read lock, it attempts to upgrade: this
// succeeds immediately if it is the only reader, otherwise it waits until
// it becomes the only reader (spec: "or all others are also
// pending-writers" is the same wait in practice, since a pending writer
// blocks new readers from joining).
func (l *RWLock) WithLock(fn func() error) error {
	if st, ok := l.held(); ok {
		switch st.mode {
		case modeWrite:
			st.depth++
			defer func() { st.depth-- }()

			return fn()
		case modeRead:
			l.upgrade()
			defer l.downgrade()

			prev := st.mode
			st.mode = modeWrite
			defer func() { st.mode = prev }()

			return fn()
		}
	}

	l.acquireWrite()
	defer l.releaseWrite()

	return l.runWith(&holdState{mode: modeWrite, depth: 1}, fn)
}

func (l *RWLock) runWith(st *holdState, fn func() error) error {
	var err error

	mgr.SetValues(gls.Values{l: st}, func() {
		err = fn()
	})

	return err
}

// TryWithRLock attempts to run fn while holding a read lock, waiting up to
// timeout. timeout < 0 blocks indefinitely (equivalent to [RWLock.WithRLock]),
// timeout == 0 tests without waiting, timeout > 0 waits up to that duration.
// If the lock cannot be acquired in time, fn is not run and ErrWouldBlock is
// returned.
func (l *RWLock) TryWithRLock(timeout time.Duration, fn func() error) error {
	if st, ok := l.held(); ok {
		st.depth++
		defer func() { st.depth-- }()

		return fn()
	}

	if !l.tryAcquireRead(timeout) {
		return ErrWouldBlock
	}
	defer l.releaseRead()

	return l.runWith(&holdState{mode: modeRead, depth: 1}, fn)
}

// TryWithLock is the write-lock analogue of [RWLock.TryWithRLock]. Upgrade
// from an already-held read lock is attempted with the same timeout
// semantics as a fresh acquisition.
func (l *RWLock) TryWithLock(timeout time.Duration, fn func() error) error {
	if st, ok := l.held(); ok {
		switch st.mode {
		case modeWrite:
			st.depth++
			defer func() { st.depth-- }()

			return fn()
		case modeRead:
			if !l.tryUpgrade(timeout) {
				return ErrWouldBlock
			}
			defer l.downgrade()

			prev := st.mode
			st.mode = modeWrite
			defer func() { st.mode = prev }()

			return fn()
		}
	}

	if !l.tryAcquireWrite(timeout) {
		return ErrWouldBlock
	}
	defer l.releaseWrite()

	return l.runWith(&holdState{mode: modeWrite, depth: 1}, fn)
}

func (l *RWLock) acquireRead() {
	cond := l.init()

	l.mu.Lock()
	defer l.mu.Unlock()

	for l.writerActive || l.writersWaiting > 0 {
		cond.Wait()
	}

	l.readers++
}

func (l *RWLock) releaseRead() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.readers--
	if l.readers == 0 {
		l.cond.Broadcast()
	}
}

func (l *RWLock) acquireWrite() {
	cond := l.init()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.writersWaiting++

	for l.writerActive || l.readers > 0 {
		cond.Wait()
	}

	l.writersWaiting--
	l.writerActive = true
}

func (l *RWLock) releaseWrite() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.writerActive = false
	l.cond.Broadcast()
}

// upgrade blocks until the calling goroutine's existing read hold is the
// only outstanding reader, then atomically converts it into the write
// lock. The caller must already hold a read lock on l.
func (l *RWLock) upgrade() {
	cond := l.init()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.writersWaiting++

	for l.readers > 1 || l.writerActive {
		cond.Wait()
	}

	l.writersWaiting--
	l.readers = 0
	l.writerActive = true
}

func (l *RWLock) downgrade() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.writerActive = false
	l.readers = 1
	l.cond.Broadcast()
}

func (l *RWLock) tryAcquireRead(timeout time.Duration) bool {
	if timeout < 0 {
		l.acquireRead()
		return true
	}

	cond := l.init()

	l.mu.Lock()
	defer l.mu.Unlock()

	if timeout == 0 {
		if l.writerActive || l.writersWaiting > 0 {
			return false
		}

		l.readers++

		return true
	}

	return waitWithDeadline(cond, &l.mu, timeout, func() bool {
		return !l.writerActive && l.writersWaiting == 0
	}, func() {
		l.readers++
	})
}

func (l *RWLock) tryAcquireWrite(timeout time.Duration) bool {
	if timeout < 0 {
		l.acquireWrite()
		return true
	}

	cond := l.init()

	l.mu.Lock()
	defer l.mu.Unlock()

	if timeout == 0 {
		if l.writerActive || l.readers > 0 {
			return false
		}

		l.writerActive = true

		return true
	}

	l.writersWaiting++
	defer func() { l.writersWaiting-- }()

	return waitWithDeadline(cond, &l.mu, timeout, func() bool {
		return !l.writerActive && l.readers == 0
	}, func() {
		l.writerActive = true
	})
}

func (l *RWLock) tryUpgrade(timeout time.Duration) bool {
	if timeout < 0 {
		l.upgrade()
		return true
	}

	cond := l.init()

	l.mu.Lock()
	defer l.mu.Unlock()

	if timeout == 0 {
		if l.readers > 1 || l.writerActive {
			return false
		}

		l.readers = 0
		l.writerActive = true

		return true
	}

	l.writersWaiting++
	defer func() { l.writersWaiting-- }()

	return waitWithDeadline(cond, &l.mu, timeout, func() bool {
		return l.readers <= 1 && !l.writerActive
	}, func() {
		l.readers = 0
		l.writerActive = true
	})
}

// waitWithDeadline waits on cond (whose Locker is already held by the
// caller) until ready() holds or timeout elapses, running commit() and
// returning true exactly when ready() held in time. It polls on a timer
// since [sync.Cond] has no built-in deadline support.
func waitWithDeadline(cond *sync.Cond, mu *sync.Mutex, timeout time.Duration, ready func() bool, commit func()) bool {
	if ready() {
		commit()
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
			mu.Lock()
			cond.Broadcast()
			mu.Unlock()
		case <-done:
		}
	}()
	defer close(done)

	for !ready() {
		if ctx.Err() != nil {
			return false
		}

		cond.Wait()
	}

	commit()

	return true
}
