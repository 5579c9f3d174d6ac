package reactor

import (
	"os"
	"testing"

	"github.com/teleivo/assertive/assert"
	"github.com/teleivo/assertive/require"
)

func pipe(t *testing.T) (*os.File, *os.File) {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoErrorf(t, err, "creating pipe failed")
	t.Cleanup(func() {
		r.Close()
		w.Close()
	})
	return r, w
}

func TestOnReadableAlreadyRegistered(t *testing.T) {
	r := New()
	rd, _ := pipe(t)
	fd := int(rd.Fd())

	err := r.OnReadable(fd, func(int) bool { return true })
	require.NoErrorf(t, err, "first registration must succeed")

	err = r.OnReadable(fd, func(int) bool { return true })
	require.Truef(t, err == ErrAlreadyRegistered, "want ErrAlreadyRegistered on duplicate registration")
}

func TestSingleCycleFiresReadyFD(t *testing.T) {
	r := New()
	rd, wr := pipe(t)
	fd := int(rd.Fd())

	var fired bool
	require.NoErrorf(t, r.OnReadable(fd, func(int) bool {
		fired = true
		buf := make([]byte, 1)
		rd.Read(buf)
		return true
	}), "registration failed")

	wr.Write([]byte("x"))

	stop := r.SingleCycle(1000)
	assert.Falsef(t, stop, "successful cycle must not report stop")
	assert.Truef(t, fired, "want the readability callback invoked")
	assert.EqualValuesf(t, r.Stats().RegisteredFDs, 1, "callback returning true must stay registered")
}

func TestSingleCycleRemovesFDWhenCallbackReturnsFalse(t *testing.T) {
	r := New()
	rd, wr := pipe(t)
	fd := int(rd.Fd())

	require.NoErrorf(t, r.OnReadable(fd, func(int) bool {
		buf := make([]byte, 1)
		rd.Read(buf)
		return false
	}), "registration failed")

	wr.Write([]byte("x"))
	r.SingleCycle(1000)

	assert.EqualValuesf(t, r.Stats().RegisteredFDs, 0, "callback returning false must deregister its fd")
}

func TestSingleCycleIdleOnTimeout(t *testing.T) {
	r := New()
	rd, _ := pipe(t)
	fd := int(rd.Fd())
	require.NoErrorf(t, r.OnReadable(fd, func(int) bool { return true }), "registration failed")

	var idleRan bool
	r.OnIdle(func() bool {
		idleRan = true
		return true
	})

	stop := r.SingleCycle(50)
	assert.Falsef(t, stop, "timeout with no fd ready must not report stop")
	assert.Truef(t, idleRan, "want idle callback invoked on timeout")
}

func TestSingleCycleIdleRemovedWhenFalse(t *testing.T) {
	r := New()
	rd, _ := pipe(t)
	require.NoErrorf(t, r.OnReadable(int(rd.Fd()), func(int) bool { return true }), "registration failed")

	r.OnIdle(func() bool { return false })
	r.SingleCycle(10)

	assert.EqualValuesf(t, r.Stats().IdleCallbacks, 0, "idle callback returning false must be removed")
}

func TestSingleCycleIdlePanicIsRecoveredAndCounted(t *testing.T) {
	r := New()
	rd, _ := pipe(t)
	require.NoErrorf(t, r.OnReadable(int(rd.Fd()), func(int) bool { return true }), "registration failed")

	r.OnIdle(func() bool { panic("boom") })
	stop := r.SingleCycle(10)

	assert.Falsef(t, stop, "a panicking idle callback must not be reported as a wait failure")
	assert.EqualValuesf(t, r.Stats().IdlePanics, int64(1), "want panic counted")
	assert.EqualValuesf(t, r.Stats().IdleCallbacks, 1, "a panicking idle callback stays registered, same as returning true")
}

func TestRunStopsWhenNoFDsRemain(t *testing.T) {
	r := New()
	rd, wr := pipe(t)
	require.NoErrorf(t, r.OnReadable(int(rd.Fd()), func(fd int) bool {
		buf := make([]byte, 1)
		rd.Read(buf)
		return false
	}), "registration failed")

	wr.Write([]byte("x"))
	r.Run(1000)

	assert.EqualValuesf(t, r.Stats().RegisteredFDs, 0, "Run must stop once the last fd deregisters itself")
}

func TestRemoveReadable(t *testing.T) {
	r := New()
	rd, _ := pipe(t)
	require.NoErrorf(t, r.OnReadable(int(rd.Fd()), func(int) bool { return true }), "registration failed")

	r.RemoveReadable(int(rd.Fd()))
	assert.EqualValuesf(t, r.Stats().RegisteredFDs, 0, "want fd removed")

	r.RemoveReadable(int(rd.Fd())) // removing an already-absent fd must be a no-op, not a panic
}

func TestSingleCycleAscendingFDOrder(t *testing.T) {
	r := New()
	var order []int

	rd1, wr1 := pipe(t)
	rd2, wr2 := pipe(t)
	fd1, fd2 := int(rd1.Fd()), int(rd2.Fd())
	first, second := fd1, fd2
	if first > second {
		first, second = second, first
	}

	require.NoErrorf(t, r.OnReadable(fd2, func(fd int) bool {
		order = append(order, fd)
		buf := make([]byte, 1)
		rd2.Read(buf)
		return true
	}), "registering fd2 failed")
	require.NoErrorf(t, r.OnReadable(fd1, func(fd int) bool {
		order = append(order, fd)
		buf := make([]byte, 1)
		rd1.Read(buf)
		return true
	}), "registering fd1 failed")

	wr1.Write([]byte("x"))
	wr2.Write([]byte("y"))

	r.SingleCycle(1000)

	require.EqualValuesf(t, len(order), 2, "want both fds fired")
	assert.EqualValuesf(t, order[0], first, "ready fds must fire in ascending order")
	assert.EqualValuesf(t, order[1], second, "ready fds must fire in ascending order")
}
