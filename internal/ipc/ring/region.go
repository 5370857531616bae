package ring

import (
	"math"
	"sync/atomic"
	"unsafe"

	"github.com/GriffinCanCode/threecolor/internal/ipc/shm"
)

const (
	// Magic identifies a region laid out by this package ("LOC3")
	Magic uint32 = 0x33434f4c

	headerSize = 32

	noBest = -1
)

// header is the fixed prefix of the region. Every field is accessed atomically.
type header struct {
	magic    uint32
	capacity uint32
	writeIdx uint32
	readIdx  uint32
	alive    int32
	holder   int32
	best     int32
	_        int32
}

var _ [headerSize - unsafe.Sizeof(header{})]byte

// region is a typed view over the mapped segment
type region struct {
	hdr     *header
	storage []byte
}

func regionSize(capacity int) int {
	return headerSize + capacity
}

func validCapacity(capacity int) bool {
	return capacity > 0 && capacity <= math.MaxInt32-headerSize
}

func mapRegion(seg *shm.Segment) region {
	mem := seg.Bytes()
	return region{
		hdr:     (*header)(unsafe.Pointer(&mem[0])),
		storage: mem[headerSize:],
	}
}

// init lays out a freshly created region
func (r region) init(capacity int) {
	for i := range r.storage {
		r.storage[i] = Blank
	}
	atomic.StoreUint32(&r.hdr.capacity, uint32(capacity))
	atomic.StoreUint32(&r.hdr.writeIdx, 0)
	atomic.StoreUint32(&r.hdr.readIdx, 0)
	atomic.StoreInt32(&r.hdr.holder, 0)
	atomic.StoreInt32(&r.hdr.best, noBest)
	atomic.StoreInt32(&r.hdr.alive, 1)
	// magic last: an attacher that sees it sees a complete header
	atomic.StoreUint32(&r.hdr.magic, Magic)
}

func (r region) capacity() int {
	return int(atomic.LoadUint32(&r.hdr.capacity))
}

func (r region) alive() bool {
	return atomic.LoadInt32(&r.hdr.alive) == 1
}

// putByte writes at the write cursor. The caller holds the write lock and a free slot.
func (r region) putByte(b byte) {
	idx := atomic.LoadUint32(&r.hdr.writeIdx)
	r.storage[idx] = b
	atomic.StoreUint32(&r.hdr.writeIdx, (idx+1)%uint32(len(r.storage)))
}

// takeByte reads and blanks the slot at the read cursor. The caller holds a used slot.
func (r region) takeByte() byte {
	idx := atomic.LoadUint32(&r.hdr.readIdx)
	b := r.storage[idx]
	r.storage[idx] = Blank
	atomic.StoreUint32(&r.hdr.readIdx, (idx+1)%uint32(len(r.storage)))
	return b
}

// lowerBest stores n if it beats the published best
func (r region) lowerBest(n int32) bool {
	for {
		cur := atomic.LoadInt32(&r.hdr.best)
		if cur != noBest && cur <= n {
			return false
		}
		if atomic.CompareAndSwapInt32(&r.hdr.best, cur, n) {
			return true
		}
	}
}
