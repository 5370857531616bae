//go:build linux

package sem

import (
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	futexWaitOp = 0
	futexWakeOp = 1
)

// futexWait sleeps while *addr == val, at most timeout
func futexWait(addr *int32, val int32, timeout time.Duration) error {
	ts := unix.NsecToTimespec(timeout.Nanoseconds())
	_, _, errno := unix.Syscall6(unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		futexWaitOp,
		uintptr(uint32(val)),
		uintptr(unsafe.Pointer(&ts)),
		0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// futexWake wakes up to n sleepers on addr
func futexWake(addr *int32, n int) (int, error) {
	woken, _, errno := unix.Syscall6(unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		futexWakeOp,
		uintptr(n),
		0, 0, 0)
	if errno != 0 {
		return 0, errno
	}
	return int(woken), nil
}

// transient reports futex results that only mean "look again"
func transient(err error) bool {
	return err == unix.EAGAIN || err == unix.ETIMEDOUT || err == unix.EINTR
}
