package arena

import (
	"math"
	"unsafe"
)

// Allocator is the memory source consumed by controllers and stages.
type Allocator interface {
	Allocate(size, align int) ([]byte, bool)
	Used() int
	Capacity() int
}

// Arena is a bump allocator over a caller-owned byte buffer. Regions are
// never freed individually; Reset rewinds the offset without clearing.
type Arena struct {
	buf []byte
	off int
}

func New(capacity int) *Arena {
	if capacity < 0 {
		capacity = 0
	}
	return &Arena{buf: make([]byte, capacity)}
}

func FromBuffer(buf []byte) *Arena {
	return &Arena{buf: buf}
}

// Allocate returns size bytes aligned to align, or false when align is not
// a power of two, size is not positive, or the request does not fit.
// A failed call leaves Used unchanged.
func (a *Arena) Allocate(size, align int) ([]byte, bool) {
	if size <= 0 || align <= 0 || align&(align-1) != 0 {
		return nil, false
	}
	remaining := len(a.buf) - a.off
	if remaining <= 0 {
		return nil, false
	}

	addr := uintptr(unsafe.Pointer(unsafe.SliceData(a.buf))) + uintptr(a.off)
	pad := int((-addr) & uintptr(align-1))
	if pad > remaining || size > remaining-pad {
		return nil, false
	}

	start := a.off + pad
	a.off = start + size
	return a.buf[start:a.off:a.off], true
}

func (a *Arena) Reset() { a.off = 0 }

func (a *Arena) Used() int      { return a.off }
func (a *Arena) Capacity() int  { return len(a.buf) }
func (a *Arena) Remaining() int { return len(a.buf) - a.off }

const float64Size = int(unsafe.Sizeof(float64(0)))

// Float64s carves a zeroed, aligned []float64 of length n from a.
func Float64s(a Allocator, n int) ([]float64, bool) {
	if n <= 0 || n > math.MaxInt/float64Size {
		return nil, false
	}
	b, ok := a.Allocate(n*float64Size, int(unsafe.Alignof(float64(0))))
	if !ok {
		return nil, false
	}
	f := unsafe.Slice((*float64)(unsafe.Pointer(unsafe.SliceData(b))), n)
	clear(f)
	return f, true
}

// Tracked wraps an Allocator and counts calls made through it. Tests inject
// it at the boundary to prove a code path performs no arena traffic.
type Tracked struct {
	Inner    Allocator
	Calls    int
	Failures int
}

func (t *Tracked) Allocate(size, align int) ([]byte, bool) {
	t.Calls++
	b, ok := t.Inner.Allocate(size, align)
	if !ok {
		t.Failures++
	}
	return b, ok
}

func (t *Tracked) Used() int     { return t.Inner.Used() }
func (t *Tracked) Capacity() int { return t.Inner.Capacity() }
