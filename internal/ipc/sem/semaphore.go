package sem

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/GriffinCanCode/threecolor/internal/ipc/shm"
)

const (
	// FilePrefix is prepended to the semaphore name to form its segment name
	FilePrefix = "sem."

	// DefaultPollInterval bounds how long a waiter sleeps between checks
	DefaultPollInterval = 50 * time.Millisecond

	segmentSize = 8
)

var (
	ErrOverflow = errors.New("sem: counter overflow")
	ErrCorrupt  = errors.New("sem: segment has unexpected size")
)

// Error reports a failed operation on a semaphore
type Error struct {
	Name string
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("semaphore %s: %s: %v", e.Name, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Semaphore is a process-shared counting semaphore
type Semaphore struct {
	name    string
	seg     *shm.Segment
	value   *int32
	waiters *int32
	poll    time.Duration
}

// SegmentName returns the shared memory name used for a semaphore
func SegmentName(name string) string {
	return FilePrefix + name
}

// Create creates a new named semaphore with the given initial count.
// It fails if the semaphore already exists.
func Create(dir, name string, initial int) (*Semaphore, error) {
	if initial < 0 || initial > math.MaxInt32 {
		return nil, &Error{Name: name, Op: "create", Err: ErrOverflow}
	}
	seg, err := shm.Create(dir, SegmentName(name), segmentSize)
	if err != nil {
		return nil, &Error{Name: name, Op: "create", Err: err}
	}
	s := newSemaphore(name, seg)
	atomic.StoreInt32(s.value, int32(initial))
	return s, nil
}

// Open opens an existing named semaphore
func Open(dir, name string) (*Semaphore, error) {
	seg, err := shm.Open(dir, SegmentName(name))
	if err != nil {
		return nil, &Error{Name: name, Op: "open", Err: err}
	}
	if seg.Size() < segmentSize {
		seg.Close()
		return nil, &Error{Name: name, Op: "open", Err: ErrCorrupt}
	}
	return newSemaphore(name, seg), nil
}

// Unlink removes the semaphore name; open handles keep working
func Unlink(dir, name string) error {
	if err := shm.Unlink(dir, SegmentName(name)); err != nil {
		return &Error{Name: name, Op: "unlink", Err: err}
	}
	return nil
}

func newSemaphore(name string, seg *shm.Segment) *Semaphore {
	mem := seg.Bytes()
	return &Semaphore{
		name:    name,
		seg:     seg,
		value:   (*int32)(unsafe.Pointer(&mem[0])),
		waiters: (*int32)(unsafe.Pointer(&mem[4])),
		poll:    DefaultPollInterval,
	}
}

// SetPollInterval changes the wake-up slice of blocking waits
func (s *Semaphore) SetPollInterval(d time.Duration) {
	if d > 0 {
		s.poll = d
	}
}

// Name returns the semaphore name
func (s *Semaphore) Name() string {
	return s.name
}

// Value returns the current count
func (s *Semaphore) Value() int {
	return int(atomic.LoadInt32(s.value))
}

// Post increments the count and wakes one waiter
func (s *Semaphore) Post() error {
	for {
		v := atomic.LoadInt32(s.value)
		if v == math.MaxInt32 {
			return &Error{Name: s.name, Op: "post", Err: ErrOverflow}
		}
		if atomic.CompareAndSwapInt32(s.value, v, v+1) {
			break
		}
	}
	if atomic.LoadInt32(s.waiters) == 0 {
		return nil
	}
	if _, err := futexWake(s.value, 1); err != nil {
		return &Error{Name: s.name, Op: "post", Err: err}
	}
	return nil
}

// TryWait decrements the count if it is positive
func (s *Semaphore) TryWait() bool {
	for {
		v := atomic.LoadInt32(s.value)
		if v <= 0 {
			return false
		}
		if atomic.CompareAndSwapInt32(s.value, v, v-1) {
			return true
		}
	}
}

// TimedWait decrements the count, blocking at most timeout.
// It returns false without error when the timeout expires.
func (s *Semaphore) TimedWait(ctx context.Context, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		if s.TryWait() {
			return true, nil
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}
		if err := s.sleep(min(remaining, s.poll)); err != nil {
			return false, err
		}
	}
}

// Wait decrements the count, blocking until it is positive or ctx is done
func (s *Semaphore) Wait(ctx context.Context) error {
	for {
		ok, err := s.TimedWait(ctx, s.poll)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
}

func (s *Semaphore) sleep(d time.Duration) error {
	atomic.AddInt32(s.waiters, 1)
	defer atomic.AddInt32(s.waiters, -1)

	err := futexWait(s.value, 0, d)
	if err == nil || transient(err) {
		return nil
	}
	return &Error{Name: s.name, Op: "wait", Err: err}
}

// Close releases this process's handle
func (s *Semaphore) Close() error {
	if err := s.seg.Close(); err != nil {
		return &Error{Name: s.name, Op: "close", Err: err}
	}
	return nil
}
