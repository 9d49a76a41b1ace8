package kaio

// WriteBuf is the source capability of a write. While the operation is in
// flight the returned bytes are owned shared-immutable by the context: the
// caller may still read them but must not mutate, reslice or free the backing
// memory until the completion is observed.
type WriteBuf interface {
	// WrBytes returns the initialized bytes to write.
	WrBytes() []byte
}

// ReadBuf is the destination capability of a read. While the operation is in
// flight the returned bytes are owned mutable-exclusive by the context: the
// caller must not touch them at all until the completion is observed, and
// their content is unspecified until then.
type ReadBuf interface {
	// RdBytes returns the writable region the kernel fills.
	RdBytes() []byte
	// RdDone is called by the completion path with the transferred count.
	RdDone(n int)
}

// SliceBuf adapts a plain byte slice to both capability directions, for
// buffered (non-direct) descriptors with no alignment obligations. N records
// the last completed read's transfer count.
type SliceBuf struct {
	B []byte
	N int
}

func (b *SliceBuf) WrBytes() []byte { return b.B }

func (b *SliceBuf) RdBytes() []byte { return b.B }

func (b *SliceBuf) RdDone(n int) { b.N = n }
