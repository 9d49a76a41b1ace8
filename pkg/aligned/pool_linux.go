//go:build linux

package aligned

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/brickingsoft/errors"
)

const (
	minClassBits = 9
	classes      = 12

	minClassSize = 1 << minClassBits
	maxClassSize = minClassSize << (classes - 1)

	calibrateThreshold = 42000
	keepPercentile     = 0.95
)

// Pool caches released buffers of one alignment so steady direct-I/O
// workloads stop paying an mmap round trip per acquisition. Release traffic
// is bucketed into size classes and the kept band recalibrated from the hot
// classes, so a burst of oversized buffers does not pin memory forever.
type Pool struct {
	align       int
	calls       [classes]uint64
	calibrating uint64
	defaultSize uint64
	maxSize     uint64
	pool        sync.Pool
}

func NewPool(align int) (*Pool, error) {
	if align <= 0 || align&(align-1) != 0 {
		return nil, errors.From(ErrInvalidAlignment, errors.WithMeta(errMetaPkgKey, errMetaPkgVal))
	}
	return &Pool{align: align, defaultSize: minClassSize}, nil
}

// Alignment returns the alignment every pooled buffer carries.
func (p *Pool) Alignment() int { return p.align }

// Acquire returns a buffer of at least size bytes. A pooled buffer comes
// back with unspecified content and zero valid bytes; only freshly mapped
// ones are zeroed.
func (p *Pool) Acquire(size int) (*Buf, error) {
	if size <= 0 {
		return nil, errors.From(ErrInvalidSize, errors.WithMeta(errMetaPkgKey, errMetaPkgVal))
	}
	if v := p.pool.Get(); v != nil {
		b := v.(*Buf)
		if b.Len() >= size {
			b.valid = 0
			return b, nil
		}
		_ = b.Release()
	}
	want := int(atomic.LoadUint64(&p.defaultSize))
	if want < size {
		want = size
	}
	return Acquire(want, p.align)
}

// Release puts b back for reuse, unmapping it instead when it belongs to
// another alignment or falls outside the calibrated size band. The buffer
// must not be used afterwards either way.
func (p *Pool) Release(b *Buf) error {
	if b == nil || b.raw == nil {
		return errors.From(ErrReleased, errors.WithMeta(errMetaPkgKey, errMetaPkgVal))
	}
	if b.align != p.align || b.Len() > maxClassSize {
		return b.Release()
	}
	idx := classIndex(b.Len())
	if atomic.AddUint64(&p.calls[idx], 1) > calibrateThreshold {
		p.calibrate()
	}
	if limit := int(atomic.LoadUint64(&p.maxSize)); limit != 0 && b.Len() > limit {
		return b.Release()
	}
	b.valid = 0
	p.pool.Put(b)
	return nil
}

func classIndex(n int) int {
	n--
	n >>= minClassBits
	idx := 0
	for n > 0 {
		n >>= 1
		idx++
	}
	if idx >= classes {
		idx = classes - 1
	}
	return idx
}

func (p *Pool) calibrate() {
	if !atomic.CompareAndSwapUint64(&p.calibrating, 0, 1) {
		return
	}

	loads := make(classLoads, 0, classes)
	var sum uint64
	for i := uint64(0); i < classes; i++ {
		calls := atomic.SwapUint64(&p.calls[i], 0)
		sum += calls
		loads = append(loads, classLoad{calls: calls, size: minClassSize << i})
	}
	sort.Sort(loads)

	defaultSize := loads[0].size
	keptSize := defaultSize

	keepSum := uint64(float64(sum) * keepPercentile)
	sum = 0
	for i := 0; i < classes; i++ {
		if sum > keepSum {
			break
		}
		sum += loads[i].calls
		if loads[i].size > keptSize {
			keptSize = loads[i].size
		}
	}

	atomic.StoreUint64(&p.defaultSize, defaultSize)
	atomic.StoreUint64(&p.maxSize, keptSize)

	atomic.StoreUint64(&p.calibrating, 0)
}

type classLoad struct {
	calls uint64
	size  uint64
}

type classLoads []classLoad

func (cl classLoads) Len() int {
	return len(cl)
}

func (cl classLoads) Less(i, j int) bool {
	return cl[i].calls > cl[j].calls
}

func (cl classLoads) Swap(i, j int) {
	cl[i], cl[j] = cl[j], cl[i]
}
