//go:build linux

package libaio_test

import (
	"testing"
	"unsafe"

	"github.com/brickingsoft/kaio/pkg/libaio"
)

func TestABISizes(t *testing.T) {
	if n := unsafe.Sizeof(libaio.IOCB{}); n != 64 {
		t.Error("struct iocb size mismatch:", n)
	}
	if n := unsafe.Sizeof(libaio.IOEvent{}); n != 32 {
		t.Error("struct io_event size mismatch:", n)
	}
	if n := unsafe.Sizeof(libaio.IOVec{}); n != 16 {
		t.Error("struct iovec size mismatch:", n)
	}
}

func TestPrepPread(t *testing.T) {
	buf := make([]byte, 4096)
	cb := &libaio.IOCB{}
	cb.PrepPread(3, unsafe.Pointer(&buf[0]), len(buf), 8192)
	if cb.Opcode != libaio.CmdPread {
		t.Error("opcode:", cb.Opcode)
	}
	if cb.FD != 3 {
		t.Error("fd:", cb.FD)
	}
	if cb.Nbytes != 4096 {
		t.Error("nbytes:", cb.Nbytes)
	}
	if cb.Offset != 8192 {
		t.Error("offset:", cb.Offset)
	}
	if cb.Buf != uint64(uintptr(unsafe.Pointer(&buf[0]))) {
		t.Error("buf pointer mismatch")
	}
}

func TestSetEventFD(t *testing.T) {
	cb := &libaio.IOCB{}
	cb.PrepFsync(1)
	cb.SetEventFD(9)
	if cb.Flags&libaio.FlagResfd == 0 {
		t.Error("resfd flag not set")
	}
	if cb.Resfd != 9 {
		t.Error("resfd:", cb.Resfd)
	}
}

func TestSetupDestroy(t *testing.T) {
	var ctx libaio.Context
	if err := ctx.Setup(8); err != nil {
		t.Fatal(err)
	}
	if ctx == 0 {
		t.Error("context handle is zero after io_setup")
	}
	if err := ctx.Destroy(); err != nil {
		t.Error(err)
	}
}
