package ring

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/threecolor/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/threecolor/internal/ipc/sem"
	"github.com/GriffinCanCode/threecolor/internal/ipc/shm"
	"github.com/GriffinCanCode/threecolor/internal/logging"
)

const testPoll = 5 * time.Millisecond

func testOptions(t *testing.T, dir string, capacity int) Options {
	return Options{
		Dir:          dir,
		Name:         "ring",
		Capacity:     capacity,
		PollInterval: testPoll,
		Logger:       logging.Wrap(zaptest.NewLogger(t)),
	}
}

func newSupervisor(t *testing.T, capacity int) (*Ring, Options) {
	t.Helper()
	opts := testOptions(t, t.TempDir(), capacity)
	r, err := Create(opts)
	require.NoError(t, err)
	t.Cleanup(func() { r.Shutdown() })
	return r, opts
}

func attach(t *testing.T, opts Options) *Ring {
	t.Helper()
	r, err := Attach(opts)
	require.NoError(t, err)
	return r
}

func withTimeout(t *testing.T, d time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	t.Cleanup(cancel)
	return ctx
}

func TestPutGetRoundTrip(t *testing.T) {
	sup, opts := newSupervisor(t, 16)
	gen := attach(t, opts)
	defer gen.Shutdown()

	tests := []struct {
		name    string
		payload string
	}{
		{name: "empty means colorable", payload: ""},
		{name: "single edge", payload: "0-1"},
		{name: "several edges", payload: "0-1 2-3 10-4"},
		{name: "blank bytes survive", payload: "a_b"},
		{name: "longer than capacity", payload: strings.Repeat("12-34 ", 20)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := withTimeout(t, 5*time.Second)

			errc := make(chan error, 1)
			go func() { errc <- gen.Put(ctx, []byte(tt.payload)) }()

			got, err := sup.Get(ctx)
			require.NoError(t, err)
			require.NoError(t, <-errc)
			assert.Equal(t, tt.payload, string(got))
		})
	}

	stats := sup.Stats()
	assert.Equal(t, 0, stats.Used)
	assert.Equal(t, 16, stats.Free)
	assert.Equal(t, stats.WriteIndex, stats.ReadIndex)
}

func TestPutRejectsSentinels(t *testing.T) {
	_, opts := newSupervisor(t, 16)
	gen := attach(t, opts)
	defer gen.Shutdown()

	for _, payload := range []string{"[0-1", "0-1]", "[]"} {
		err := gen.Put(context.Background(), []byte(payload))
		assert.ErrorIs(t, err, ErrInvalidPayload, payload)
	}
	assert.Equal(t, 0, gen.Stats().Used, "nothing reaches the ring")
}

func TestCreateIsExclusive(t *testing.T) {
	_, opts := newSupervisor(t, 16)

	_, err := Create(opts)
	require.Error(t, err)

	var setupErr *SetupError
	require.True(t, errors.As(err, &setupErr))
	assert.ErrorIs(t, err, os.ErrExist)
}

func TestCreateRollsBackOnFailure(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions(t, dir, 16)

	// occupy the name of the second semaphore
	blocker, err := sem.Create(dir, opts.Name+usedSuffix, 0)
	require.NoError(t, err)
	defer blocker.Close()

	_, err = Create(opts)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrExist)

	_, statErr := os.Stat(shm.Path(dir, opts.Name))
	assert.True(t, os.IsNotExist(statErr), "region must be removed")
	_, statErr = os.Stat(shm.Path(dir, sem.SegmentName(opts.Name+freeSuffix)))
	assert.True(t, os.IsNotExist(statErr), "free semaphore must be removed")

	require.NoError(t, sem.Unlink(dir, opts.Name+usedSuffix))
	r, err := Create(opts)
	require.NoError(t, err, "a clean retry succeeds")
	require.NoError(t, r.Shutdown())
}

func TestCreateRejectsBadCapacity(t *testing.T) {
	opts := testOptions(t, t.TempDir(), -1)
	_, err := Create(opts)
	assert.ErrorIs(t, err, ErrBadCapacity)
}

func TestAttachBeforeCreate(t *testing.T) {
	_, err := Attach(testOptions(t, t.TempDir(), 0))
	require.Error(t, err)

	var setupErr *SetupError
	require.True(t, errors.As(err, &setupErr))
	assert.Equal(t, "attach", setupErr.Op)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestAttachRejectsForeignSegment(t *testing.T) {
	dir := t.TempDir()
	seg, err := shm.Create(dir, "ring", 128)
	require.NoError(t, err)
	defer seg.Close()

	_, err = Attach(testOptions(t, dir, 0))
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestAttachUsesCreatorCapacity(t *testing.T) {
	_, opts := newSupervisor(t, 24)
	opts.Capacity = 0

	gen := attach(t, opts)
	defer gen.Shutdown()
	assert.Equal(t, 24, gen.Capacity())
	assert.Equal(t, RoleGenerator, gen.Role())
}

func TestPutBlocksWhenFull(t *testing.T) {
	const capacity = 8
	sup, opts := newSupervisor(t, capacity)
	gen := attach(t, opts)
	defer gen.Shutdown()

	ctx := withTimeout(t, 5*time.Second)
	payload := strings.Repeat("1-2 ", 10)

	var done atomic.Bool
	errc := make(chan error, 1)
	go func() {
		errc <- gen.Put(ctx, []byte(payload))
		done.Store(true)
	}()

	require.Eventually(t, func() bool { return sup.Stats().Free == 0 }, 2*time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.False(t, done.Load(), "put must wait for the reader")

	stats := sup.Stats()
	assert.Equal(t, capacity, stats.Used)
	for _, b := range sup.region.storage {
		assert.NotEqual(t, Blank, b, "full ring has no blank slot")
	}

	got, err := sup.Get(ctx)
	require.NoError(t, err)
	require.NoError(t, <-errc)
	assert.Equal(t, payload, string(got))
}

func TestConcurrentWritersDoNotInterleave(t *testing.T) {
	const (
		capacity  = 32
		writers   = 6
		perWriter = 40
	)
	sup, opts := newSupervisor(t, capacity)
	ctx := withTimeout(t, 20*time.Second)

	want := make(map[string]bool)
	for w := 0; w < writers; w++ {
		for i := 0; i < perWriter; i++ {
			want[message(w, i)] = true
		}
	}

	handles := make([]*Ring, writers)
	for w := range handles {
		handles[w] = attach(t, opts)
	}

	var g errgroup.Group
	for w, h := range handles {
		g.Go(func() error {
			for i := 0; i < perWriter; i++ {
				if err := h.Put(ctx, []byte(message(w, i))); err != nil {
					return err
				}
			}
			return nil
		})
	}

	stop := make(chan struct{})
	var maxUsed atomic.Int64
	var sampler sync.WaitGroup
	sampler.Add(1)
	go func() {
		defer sampler.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			if used := int64(sup.Stats().Used); used > maxUsed.Load() {
				maxUsed.Store(used)
			}
		}
	}()

	for n := 0; n < writers*perWriter; n++ {
		got, err := sup.Get(ctx)
		require.NoError(t, err)
		require.True(t, want[string(got)], "unexpected or repeated payload %q", got)
		delete(want, string(got))
	}
	close(stop)
	sampler.Wait()

	require.NoError(t, g.Wait())
	assert.Empty(t, want)
	assert.LessOrEqual(t, maxUsed.Load(), int64(capacity))

	for _, h := range handles {
		require.NoError(t, h.Shutdown())
	}
}

// message builds a payload longer than one byte per writer so interleaving would show
func message(w, i int) string {
	return strings.TrimSpace(strings.Repeat(fmt.Sprintf("%d-%d ", w, i), 3))
}

func TestGetResyncsAfterDeadWriter(t *testing.T) {
	const deadPID = 1 << 30

	sup, opts := newSupervisor(t, 64)
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	sup.metrics = metrics
	ctx := withTimeout(t, 5*time.Second)

	dead := attach(t, opts)
	defer dead.Shutdown()
	dead.pid = deadPID
	require.NoError(t, dead.lockWrite(ctx))
	require.NoError(t, dead.writeFrame(ctx, []byte("[0-1 2")))
	// the writer dies here: no END, lock still held

	live := attach(t, opts)
	defer live.Shutdown()
	live.metrics = metrics
	live.processAlive = func(pid int) bool { return pid != deadPID }

	require.NoError(t, live.Put(ctx, []byte("5-6")))

	got, err := sup.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "5-6", string(got))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.LocksRecovered))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FramesDiscarded.WithLabelValues(monitoring.DiscardTruncated)))
	assert.Equal(t, 0, sup.Stats().Used)
}

func TestLiveHolderIsNotReclaimed(t *testing.T) {
	_, opts := newSupervisor(t, 64)
	ctx := withTimeout(t, 5*time.Second)

	holder := attach(t, opts)
	defer holder.Shutdown()
	holder.pid = 7
	require.NoError(t, holder.lockWrite(ctx))

	waiter := attach(t, opts)
	defer waiter.Shutdown()
	waiter.processAlive = func(int) bool { return true }

	short, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	err := waiter.Put(short, []byte("1-2"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, holder.unlockWrite())
	require.NoError(t, waiter.Put(ctx, []byte("1-2")))
}

const crashHelperEnv = "RING_CRASH_HELPER_DIR"

func TestCrashedWriterProcess(t *testing.T) {
	if dir := os.Getenv(crashHelperEnv); dir != "" {
		crashMidMessage(dir)
		return
	}

	sup, opts := newSupervisor(t, 64)
	ctx := withTimeout(t, 10*time.Second)

	cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=^TestCrashedWriterProcess$")
	cmd.Env = append(os.Environ(), crashHelperEnv+"="+opts.Dir)
	err := cmd.Run()
	var exitErr *exec.ExitError
	require.True(t, errors.As(err, &exitErr), "helper must exit abnormally: %v", err)
	assert.Equal(t, 3, exitErr.ExitCode())

	require.Eventually(t, func() bool { return sup.Stats().Used == len("[9-9 1") }, 2*time.Second, time.Millisecond)

	live := attach(t, opts)
	defer live.Shutdown()
	require.NoError(t, live.Put(ctx, []byte("1-2")))

	got, err := sup.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1-2", string(got))
}

// crashMidMessage runs in the helper process
func crashMidMessage(dir string) {
	ctx := context.Background()
	r, err := Attach(Options{Dir: dir, Name: "ring", PollInterval: testPoll})
	if err != nil {
		os.Exit(2)
	}
	if err := r.lockWrite(ctx); err != nil {
		os.Exit(2)
	}
	if err := r.writeFrame(ctx, []byte("[9-9 1")); err != nil {
		os.Exit(2)
	}
	os.Exit(3)
}

func TestGetRejectsEndWithoutStart(t *testing.T) {
	sup, opts := newSupervisor(t, 16)
	gen := attach(t, opts)
	defer gen.Shutdown()
	ctx := withTimeout(t, 5*time.Second)

	require.NoError(t, gen.lockWrite(ctx))
	require.NoError(t, gen.writeFrame(ctx, []byte("3-4]")))
	require.NoError(t, gen.unlockWrite())

	_, err := sup.Get(ctx)
	assert.ErrorIs(t, err, ErrMalformedFrame)

	require.NoError(t, gen.Put(ctx, []byte("1-2")))
	got, err := sup.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1-2", string(got))
}

func TestGetHonorsContext(t *testing.T) {
	sup, _ := newSupervisor(t, 16)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := sup.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var syncErr *SyncError
	assert.False(t, errors.As(err, &syncErr))
}

func TestShutdownReleasesBlockedWriters(t *testing.T) {
	sup, opts := newSupervisor(t, 4)
	ctx := withTimeout(t, 5*time.Second)

	const writers = 3
	handles := make([]*Ring, writers)
	for i := range handles {
		handles[i] = attach(t, opts)
	}

	errs := make(chan error, writers)
	for _, h := range handles {
		go func() { errs <- h.Put(ctx, []byte("10-11 12-13")) }()
	}

	require.Eventually(t, func() bool { return sup.Stats().Free == 0 }, 2*time.Second, time.Millisecond)
	require.NoError(t, sup.Shutdown())

	for i := 0; i < writers; i++ {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, ErrSupervisorGone)
		case <-time.After(2 * time.Second):
			t.Fatal("writer still blocked after shutdown")
		}
	}

	for _, h := range handles {
		assert.False(t, h.SupervisorAlive())
		require.NoError(t, h.Shutdown())
	}

	_, err := Attach(opts)
	assert.ErrorIs(t, err, os.ErrNotExist, "names are removed on shutdown")
}

func TestPutAfterShutdown(t *testing.T) {
	sup, opts := newSupervisor(t, 16)
	gen := attach(t, opts)

	require.NoError(t, sup.Shutdown())
	assert.ErrorIs(t, gen.Put(context.Background(), []byte("0-1")), ErrSupervisorGone)

	require.NoError(t, gen.Shutdown())
	require.NoError(t, gen.Shutdown(), "shutdown is idempotent")
	assert.ErrorIs(t, gen.Put(context.Background(), []byte("0-1")), ErrSupervisorGone)
}

func TestPublishBest(t *testing.T) {
	sup, opts := newSupervisor(t, 16)
	gen := attach(t, opts)
	defer gen.Shutdown()

	_, ok := gen.SharedBest()
	assert.False(t, ok)

	assert.True(t, sup.PublishBest(5))
	assert.False(t, sup.PublishBest(6), "only improvements are published")
	assert.True(t, sup.PublishBest(2))
	assert.False(t, sup.PublishBest(-1))

	best, ok := gen.SharedBest()
	require.True(t, ok)
	assert.Equal(t, 2, best)
}

func TestFrame(t *testing.T) {
	assert.Equal(t, []byte("[]"), Frame(nil))
	assert.Equal(t, []byte("[0-1]"), Frame([]byte("0-1")))
	assert.NoError(t, ValidatePayload([]byte("0-1 2-3")))
	assert.ErrorIs(t, ValidatePayload([]byte("0]")), ErrInvalidPayload)
}

func TestDeframer(t *testing.T) {
	tests := []struct {
		name   string
		stream string
		want   []deframeResult
	}{
		{name: "whole frame", stream: "[ab]", want: []deframeResult{needMore, needMore, needMore, complete}},
		{name: "restart", stream: "[a[b]", want: []deframeResult{needMore, needMore, resynced, needMore, complete}},
		{name: "stray end", stream: "x]", want: []deframeResult{needMore, unframed}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d deframer
			var got []deframeResult
			for i := 0; i < len(tt.stream); i++ {
				got = append(got, d.feed(tt.stream[i]))
			}
			assert.Equal(t, tt.want, got)
		})
	}

	var d deframer
	for _, b := range []byte("[x[yz]") {
		d.feed(b)
	}
	assert.Equal(t, []byte("yz"), d.payload())
}
