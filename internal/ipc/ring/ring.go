package ring

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/GriffinCanCode/threecolor/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/threecolor/internal/ipc/sem"
	"github.com/GriffinCanCode/threecolor/internal/ipc/shm"
	"github.com/GriffinCanCode/threecolor/internal/logging"
)

const (
	// DefaultCapacity is the storage size of the ring in bytes
	DefaultCapacity = 1024

	// DefaultName is the well-known base name of the region and its semaphores
	DefaultName = "threecolor"
)

// Semaphore suffixes
const (
	freeSuffix  = ".free"
	usedSuffix  = ".used"
	writeSuffix = ".write"
)

// Role tells which side of the ring a handle belongs to
type Role int

const (
	RoleSupervisor Role = iota
	RoleGenerator
)

func (r Role) String() string {
	if r == RoleSupervisor {
		return "supervisor"
	}
	return "generator"
}

// Options configures a ring handle
type Options struct {
	Dir          string
	Name         string
	Capacity     int // only used by Create
	PollInterval time.Duration
	Logger       *logging.Logger
	Metrics      *monitoring.Metrics
}

func (o Options) withDefaults() Options {
	if o.Dir == "" {
		o.Dir = shm.DefaultDir
	}
	if o.Name == "" {
		o.Name = DefaultName
	}
	if o.Capacity == 0 {
		o.Capacity = DefaultCapacity
	}
	if o.PollInterval <= 0 {
		o.PollInterval = sem.DefaultPollInterval
	}
	if o.Logger == nil {
		o.Logger = logging.NewNop()
	}
	return o
}

// Stats is a snapshot of the ring state
type Stats struct {
	Capacity   int  `json:"capacity"`
	Used       int  `json:"used"`
	Free       int  `json:"free"`
	WriteIndex int  `json:"write_index"`
	ReadIndex  int  `json:"read_index"`
	Alive      bool `json:"alive"`
}

// Ring is one process's handle on the shared ring buffer
type Ring struct {
	opts    Options
	role    Role
	log     *logging.Logger
	metrics *monitoring.Metrics

	seg    *shm.Segment
	region region
	free   *sem.Semaphore
	used   *sem.Semaphore
	write  *sem.Semaphore

	// pid recorded as write-lock holder
	pid          int32
	holding      atomic.Bool
	processAlive func(pid int) bool

	readMu sync.Mutex
	frames deframer

	shutdownOnce sync.Once
	shutdownErr  error
	closed       atomic.Bool
}

// Create allocates the region and its semaphores. It fails if any of them
// already exists, removing whatever it created before the failure.
func Create(opts Options) (r *Ring, err error) {
	opts = opts.withDefaults()
	if !validCapacity(opts.Capacity) {
		return nil, &SetupError{Object: opts.Name, Op: "create", Err: fmt.Errorf("%w: %d", ErrBadCapacity, opts.Capacity)}
	}

	var rollback []func() error
	defer func() {
		if err == nil {
			return
		}
		var rbErr error
		for i := len(rollback) - 1; i >= 0; i-- {
			rbErr = multierr.Append(rbErr, rollback[i]())
		}
		if rbErr != nil {
			opts.Logger.Warn("Ring rollback incomplete", zap.String("name", opts.Name), zap.Error(rbErr))
		}
	}()

	seg, err := shm.Create(opts.Dir, opts.Name, regionSize(opts.Capacity))
	if err != nil {
		return nil, &SetupError{Object: opts.Name, Op: "create", Err: err}
	}
	rollback = append(rollback, seg.Close, func() error { return shm.Unlink(opts.Dir, opts.Name) })

	reg := mapRegion(seg)
	reg.init(opts.Capacity)

	create := func(suffix string, initial int) (*sem.Semaphore, error) {
		name := opts.Name + suffix
		s, err := sem.Create(opts.Dir, name, initial)
		if err != nil {
			return nil, &SetupError{Object: sem.SegmentName(name), Op: "create", Err: err}
		}
		s.SetPollInterval(opts.PollInterval)
		rollback = append(rollback, s.Close, func() error { return sem.Unlink(opts.Dir, name) })
		return s, nil
	}

	free, err := create(freeSuffix, opts.Capacity)
	if err != nil {
		return nil, err
	}
	used, err := create(usedSuffix, 0)
	if err != nil {
		return nil, err
	}
	write, err := create(writeSuffix, 1)
	if err != nil {
		return nil, err
	}

	r = newRing(opts, RoleSupervisor, seg, reg, free, used, write)
	r.log.Info("Ring created",
		zap.String("dir", opts.Dir),
		zap.Int("capacity", opts.Capacity))
	return r, nil
}

// Attach opens a region created by the supervisor
func Attach(opts Options) (r *Ring, err error) {
	opts = opts.withDefaults()

	var opened []func() error
	defer func() {
		if err == nil {
			return
		}
		for i := len(opened) - 1; i >= 0; i-- {
			_ = opened[i]()
		}
	}()

	seg, err := shm.Open(opts.Dir, opts.Name)
	if err != nil {
		return nil, &SetupError{Object: opts.Name, Op: "attach", Err: err}
	}
	opened = append(opened, seg.Close)

	if seg.Size() <= headerSize {
		return nil, &SetupError{Object: opts.Name, Op: "attach", Err: ErrBadMagic}
	}
	reg := mapRegion(seg)
	if atomic.LoadUint32(&reg.hdr.magic) != Magic {
		return nil, &SetupError{Object: opts.Name, Op: "attach", Err: ErrBadMagic}
	}
	if capacity := reg.capacity(); !validCapacity(capacity) || regionSize(capacity) != seg.Size() {
		return nil, &SetupError{Object: opts.Name, Op: "attach", Err: fmt.Errorf("%w: %d", ErrBadCapacity, capacity)}
	}
	opts.Capacity = reg.capacity()

	open := func(suffix string) (*sem.Semaphore, error) {
		name := opts.Name + suffix
		s, err := sem.Open(opts.Dir, name)
		if err != nil {
			return nil, &SetupError{Object: sem.SegmentName(name), Op: "attach", Err: err}
		}
		s.SetPollInterval(opts.PollInterval)
		opened = append(opened, s.Close)
		return s, nil
	}

	free, err := open(freeSuffix)
	if err != nil {
		return nil, err
	}
	used, err := open(usedSuffix)
	if err != nil {
		return nil, err
	}
	write, err := open(writeSuffix)
	if err != nil {
		return nil, err
	}

	r = newRing(opts, RoleGenerator, seg, reg, free, used, write)
	r.log.Debug("Ring attached", zap.Int("capacity", opts.Capacity))
	return r, nil
}

func newRing(opts Options, role Role, seg *shm.Segment, reg region, free, used, write *sem.Semaphore) *Ring {
	return &Ring{
		opts:         opts,
		role:         role,
		log:          opts.Logger.With(zap.String("ring", opts.Name), zap.Stringer("role", role)),
		metrics:      opts.Metrics,
		seg:          seg,
		region:       reg,
		free:         free,
		used:         used,
		write:        write,
		pid:          int32(os.Getpid()),
		processAlive: processExists,
	}
}

// processExists probes pid with signal 0
func processExists(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// Role returns the side this handle belongs to
func (r *Ring) Role() Role {
	return r.role
}

// Capacity returns the storage size in bytes
func (r *Ring) Capacity() int {
	return r.opts.Capacity
}

// SupervisorAlive reports whether the supervisor is still running
func (r *Ring) SupervisorAlive() bool {
	if r.closed.Load() {
		return false
	}
	return r.region.alive()
}

// Put writes payload as one framed message. It blocks while the ring is full
// or another writer holds the lock, and returns ErrSupervisorGone if the
// supervisor shuts down before the message is complete.
func (r *Ring) Put(ctx context.Context, payload []byte) error {
	if err := ValidatePayload(payload); err != nil {
		return err
	}
	if !r.SupervisorAlive() {
		return ErrSupervisorGone
	}

	if err := r.lockWrite(ctx); err != nil {
		return err
	}

	framed := Frame(payload)
	err := r.writeFrame(ctx, framed)
	err = multierr.Append(err, r.unlockWrite())
	if err != nil {
		return err
	}

	r.metrics.RecordFrameWritten(len(framed))
	r.metrics.SetBufferUsed(r.used.Value())
	return nil
}

func (r *Ring) writeFrame(ctx context.Context, framed []byte) error {
	for _, b := range framed {
		if !r.SupervisorAlive() {
			r.metrics.RecordWriteAbandoned(monitoring.AbandonSupervisorGone)
			return ErrSupervisorGone
		}
		if err := r.acquireFree(ctx); err != nil {
			if errors.Is(err, ErrSupervisorGone) {
				r.metrics.RecordWriteAbandoned(monitoring.AbandonSupervisorGone)
			} else if ctx.Err() != nil {
				r.metrics.RecordWriteAbandoned(monitoring.AbandonCanceled)
			}
			return err
		}
		r.region.putByte(b)
		if err := r.used.Post(); err != nil {
			return &SyncError{Primitive: r.used.Name(), Op: "post", Err: err}
		}
	}
	return nil
}

// acquireFree takes one free slot, checking liveness between wait slices
func (r *Ring) acquireFree(ctx context.Context) error {
	for {
		ok, err := r.free.TimedWait(ctx, r.opts.PollInterval)
		if err != nil {
			return r.waitError(ctx, r.free, err)
		}
		if !r.SupervisorAlive() {
			// the slot may be the shutdown nudge; nothing reads it any more
			return ErrSupervisorGone
		}
		if ok {
			return nil
		}
	}
}

// lockWrite takes the write lock, reclaiming it from a dead holder
func (r *Ring) lockWrite(ctx context.Context) error {
	for {
		ok, err := r.write.TimedWait(ctx, r.opts.PollInterval)
		if err != nil {
			return r.waitError(ctx, r.write, err)
		}
		if ok {
			r.holding.Store(true)
			atomic.StoreInt32(&r.region.hdr.holder, r.pid)
			if !r.SupervisorAlive() {
				if err := r.unlockWrite(); err != nil {
					return err
				}
				return ErrSupervisorGone
			}
			return nil
		}
		if !r.SupervisorAlive() {
			return ErrSupervisorGone
		}
		if err := r.recoverLock(); err != nil {
			return err
		}
	}
}

// recoverLock releases the write lock if its holder process no longer exists
func (r *Ring) recoverLock() error {
	holder := atomic.LoadInt32(&r.region.hdr.holder)
	if holder == 0 || holder == r.pid || r.processAlive(int(holder)) {
		return nil
	}
	if !atomic.CompareAndSwapInt32(&r.region.hdr.holder, holder, 0) {
		return nil
	}
	r.log.Warn("Reclaimed write lock from dead writer", zap.Int32("holder_pid", holder))
	r.metrics.RecordLockRecovered()
	if err := r.write.Post(); err != nil {
		return &SyncError{Primitive: r.write.Name(), Op: "post", Err: err}
	}
	return nil
}

func (r *Ring) unlockWrite() error {
	if !r.holding.CompareAndSwap(true, false) {
		return nil
	}
	if !atomic.CompareAndSwapInt32(&r.region.hdr.holder, r.pid, 0) {
		// already released on our behalf
		return nil
	}
	if err := r.write.Post(); err != nil {
		return &SyncError{Primitive: r.write.Name(), Op: "post", Err: err}
	}
	return nil
}

func (r *Ring) waitError(ctx context.Context, s *sem.Semaphore, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return err
	}
	return &SyncError{Primitive: s.Name(), Op: "wait", Err: err}
}

// Get blocks until a whole message has been read and returns its payload.
// A fragment left by a writer that died is discarded when the next START
// arrives. An END with no START yields ErrMalformedFrame.
func (r *Ring) Get(ctx context.Context) ([]byte, error) {
	r.readMu.Lock()
	defer r.readMu.Unlock()

	read := 0
	for {
		if err := r.used.Wait(ctx); err != nil {
			return nil, r.waitError(ctx, r.used, err)
		}
		b := r.region.takeByte()
		if err := r.free.Post(); err != nil {
			return nil, &SyncError{Primitive: r.free.Name(), Op: "post", Err: err}
		}
		read++

		switch r.frames.feed(b) {
		case complete:
			payload := r.frames.payload()
			r.metrics.RecordFrameRead(read)
			r.metrics.SetBufferUsed(r.used.Value())
			return payload, nil
		case resynced:
			r.log.Debug("Discarded truncated message", zap.Int("bytes_read", read))
			r.metrics.RecordFrameDiscarded(monitoring.DiscardTruncated)
			read = 1
		case unframed:
			r.metrics.RecordFrameDiscarded(monitoring.DiscardUnframed)
			return nil, ErrMalformedFrame
		}
	}
}

// PublishBest records n as the best removal count if it improves on the current one
func (r *Ring) PublishBest(n int) bool {
	if n < 0 {
		return false
	}
	return r.region.lowerBest(int32(n))
}

// SharedBest returns the best removal count published by the supervisor
func (r *Ring) SharedBest() (int, bool) {
	best := atomic.LoadInt32(&r.region.hdr.best)
	if best == noBest {
		return 0, false
	}
	return int(best), true
}

// Stats returns a snapshot of the cursors and semaphore counts
func (r *Ring) Stats() Stats {
	return Stats{
		Capacity:   r.opts.Capacity,
		Used:       r.used.Value(),
		Free:       r.free.Value(),
		WriteIndex: int(atomic.LoadUint32(&r.region.hdr.writeIdx)),
		ReadIndex:  int(atomic.LoadUint32(&r.region.hdr.readIdx)),
		Alive:      r.SupervisorAlive(),
	}
}

// Shutdown detaches from the ring. The supervisor also clears the liveness
// flag, wakes one blocked writer and removes every name so nobody can
// attach afterwards. It is safe to call more than once.
func (r *Ring) Shutdown() error {
	r.shutdownOnce.Do(func() {
		r.closed.Store(true)
		var err error

		if r.role == RoleSupervisor {
			atomic.StoreInt32(&r.region.hdr.alive, 0)
			err = multierr.Append(err, r.free.Post())
		} else {
			err = multierr.Append(err, r.unlockWrite())
		}

		err = multierr.Combine(err, r.free.Close(), r.used.Close(), r.write.Close())

		if r.role == RoleSupervisor {
			for _, suffix := range []string{freeSuffix, usedSuffix, writeSuffix} {
				err = multierr.Append(err, sem.Unlink(r.opts.Dir, r.opts.Name+suffix))
			}
			err = multierr.Append(err, shm.Unlink(r.opts.Dir, r.opts.Name))
		}

		// the mapping goes last: the nudged writer may still be reading the header
		err = multierr.Append(err, r.seg.Close())

		r.shutdownErr = err
		r.log.Debug("Ring shut down", zap.Error(err))
	})
	return r.shutdownErr
}
