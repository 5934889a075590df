package rwlock_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zenwarr/microhex/pkg/rwlock"
)

func TestConcurrentReadersProceed(t *testing.T) {
	var l rwlock.RWLock

	var inFlight atomic.Int32

	var maxSeen atomic.Int32

	var wg sync.WaitGroup

	for range 4 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			err := l.WithRLock(func() error {
				n := inFlight.Add(1)
				defer inFlight.Add(-1)

				for {
					cur := maxSeen.Load()
					if n <= cur || maxSeen.CompareAndSwap(cur, n) {
						break
					}
				}

				time.Sleep(20 * time.Millisecond)

				return nil
			})
			require.NoError(t, err)
		}()
	}

	wg.Wait()
	require.GreaterOrEqual(t, maxSeen.Load(), int32(2))
}

func TestWriterBlocksUntilReadersRelease(t *testing.T) {
	var l rwlock.RWLock

	started := make(chan struct{})
	release := make(chan struct{})

	var readerDone atomic.Bool

	go func() {
		_ = l.WithRLock(func() error {
			close(started)
			<-release

			return nil
		})

		readerDone.Store(true)
	}()

	<-started

	writerStarted := make(chan struct{})

	go func() {
		close(writerStarted)

		err := l.TryWithLock(50*time.Millisecond, func() error { return nil })
		require.ErrorIs(t, err, rwlock.ErrWouldBlock)
	}()

	<-writerStarted
	time.Sleep(70 * time.Millisecond)
	require.False(t, readerDone.Load())

	close(release)

	err := l.WithLock(func() error { return nil })
	require.NoError(t, err)
}

func TestReentrantReadThenUpgrade(t *testing.T) {
	var l rwlock.RWLock

	err := l.WithRLock(func() error {
		return l.WithRLock(func() error {
			return l.WithLock(func() error {
				return nil
			})
		})
	})
	require.NoError(t, err)
}

func TestReentrantWrite(t *testing.T) {
	var l rwlock.RWLock

	calls := 0

	err := l.WithLock(func() error {
		calls++
		return l.WithLock(func() error {
			calls++
			return l.WithRLock(func() error {
				calls++
				return nil
			})
		})
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestTryWithRLockTimesOutUnderWriter(t *testing.T) {
	var l rwlock.RWLock

	writerHolding := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_ = l.WithLock(func() error {
			close(writerHolding)
			<-release

			return nil
		})
	}()

	<-writerHolding

	err := l.TryWithRLock(30*time.Millisecond, func() error { return nil })
	require.ErrorIs(t, err, rwlock.ErrWouldBlock)

	close(release)
}
