//go:build linux

package libaio

import (
	"unsafe"
)

// Opcodes of struct iocb, from <uapi/linux/aio_abi.h>. Kernel ABI, fixed.
const (
	CmdPread   uint16 = 0
	CmdPwrite  uint16 = 1
	CmdFsync   uint16 = 2
	CmdFdsync  uint16 = 3
	CmdNoop    uint16 = 6
	CmdPreadv  uint16 = 7
	CmdPwritev uint16 = 8
)

// FlagResfd makes the kernel signal Resfd (an eventfd) on completion.
const FlagResfd uint32 = 1 << 0

// IOCB is struct iocb, the submission record of one operation. 64 bytes.
// Data round-trips untouched into IOEvent.Data and carries the correlation
// token.
type IOCB struct {
	Data      uint64
	Key       uint32
	RwFlags   uint32
	Opcode    uint16
	ReqPrio   int16
	FD        uint32
	Buf       uint64
	Nbytes    uint64
	Offset    int64
	Reserved2 uint64
	Flags     uint32
	Resfd     uint32
}

// IOEvent is struct io_event, the completion record of one operation.
// 32 bytes. Res is bytes transferred, or a negated errno.
type IOEvent struct {
	Data uint64
	Obj  uint64
	Res  int64
	Res2 int64
}

// IOVec is struct iovec, for CmdPreadv and CmdPwritev.
type IOVec struct {
	Base unsafe.Pointer
	Len  uint64
}

func (cb *IOCB) PrepPread(fd int, buf unsafe.Pointer, nbytes int, offset int64) {
	*cb = IOCB{
		Opcode: CmdPread,
		FD:     uint32(fd),
		Buf:    uint64(uintptr(buf)),
		Nbytes: uint64(nbytes),
		Offset: offset,
	}
}

func (cb *IOCB) PrepPwrite(fd int, buf unsafe.Pointer, nbytes int, offset int64) {
	*cb = IOCB{
		Opcode: CmdPwrite,
		FD:     uint32(fd),
		Buf:    uint64(uintptr(buf)),
		Nbytes: uint64(nbytes),
		Offset: offset,
	}
}

func (cb *IOCB) PrepPreadv(fd int, iov []IOVec, offset int64) {
	*cb = IOCB{
		Opcode: CmdPreadv,
		FD:     uint32(fd),
		Buf:    uint64(uintptr(unsafe.Pointer(&iov[0]))),
		Nbytes: uint64(len(iov)),
		Offset: offset,
	}
}

func (cb *IOCB) PrepPwritev(fd int, iov []IOVec, offset int64) {
	*cb = IOCB{
		Opcode: CmdPwritev,
		FD:     uint32(fd),
		Buf:    uint64(uintptr(unsafe.Pointer(&iov[0]))),
		Nbytes: uint64(len(iov)),
		Offset: offset,
	}
}

func (cb *IOCB) PrepFsync(fd int) {
	*cb = IOCB{
		Opcode: CmdFsync,
		FD:     uint32(fd),
	}
}

func (cb *IOCB) PrepFdsync(fd int) {
	*cb = IOCB{
		Opcode: CmdFdsync,
		FD:     uint32(fd),
	}
}

// SetEventFD requests a completion signal on an eventfd.
func (cb *IOCB) SetEventFD(efd int) {
	cb.Flags |= FlagResfd
	cb.Resfd = uint32(efd)
}
