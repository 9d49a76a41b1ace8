package kernel_test

import (
	"testing"

	"github.com/brickingsoft/kaio/pkg/kernel"
)

func TestGet(t *testing.T) {
	v, err := kernel.Get()
	if err != nil {
		t.Fatal(err)
	}
	if v.Major < 2 {
		t.Error("implausible kernel version:", v)
	}
	t.Log(v)
}

func TestCompare(t *testing.T) {
	a := kernel.Version{Major: 5, Minor: 10, Patch: 1}
	b := kernel.Version{Major: 5, Minor: 4, Patch: 200}
	if kernel.Compare(a, b) != 1 {
		t.Error("5.10.1 should be newer than 5.4.200")
	}
	if kernel.Compare(b, a) != -1 {
		t.Error("5.4.200 should be older than 5.10.1")
	}
	if kernel.Compare(a, a) != 0 {
		t.Error("equal versions should compare to 0")
	}
}

func TestCheck(t *testing.T) {
	if !kernel.Check(2, 6, 0) {
		t.Error("running kernel should satisfy 2.6.0")
	}
	if kernel.Check(999, 0, 0) {
		t.Error("running kernel should not satisfy 999.0.0")
	}
}
