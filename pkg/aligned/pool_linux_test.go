//go:build linux

package aligned_test

import (
	"testing"

	"github.com/brickingsoft/kaio/pkg/aligned"
)

func TestPoolAcquireRelease(t *testing.T) {
	p, err := aligned.NewPool(512)
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.Acquire(1000)
	if err != nil {
		t.Fatal(err)
	}
	if b.Len() < 1000 || b.Len()%512 != 0 {
		t.Fatalf("allocated length = %d", b.Len())
	}
	if b.Alignment() != 512 {
		t.Fatalf("alignment = %d, want 512", b.Alignment())
	}
	if b.Valid() != 0 {
		t.Fatalf("fresh buffer valid = %d, want 0", b.Valid())
	}
	if err = p.Release(b); err != nil {
		t.Fatal(err)
	}
	if err = p.Release(nil); err == nil {
		t.Fatal("releasing nil must fail")
	}
}

func TestPoolReuseResetsValid(t *testing.T) {
	p, err := aligned.NewPool(512)
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.Acquire(512)
	if err != nil {
		t.Fatal(err)
	}
	b.SetValid(512)
	if err = p.Release(b); err != nil {
		t.Fatal(err)
	}
	// The next acquisition of a compatible size may reuse the mapping, and
	// must not inherit the previous valid count.
	c, err := p.Acquire(256)
	if err != nil {
		t.Fatal(err)
	}
	if c.Valid() != 0 {
		t.Fatalf("reused buffer valid = %d, want 0", c.Valid())
	}
	_ = p.Release(c)
}

func TestPoolForeignAlignment(t *testing.T) {
	p, err := aligned.NewPool(512)
	if err != nil {
		t.Fatal(err)
	}
	b, err := aligned.Acquire(512, 4096)
	if err != nil {
		t.Fatal(err)
	}
	// A foreign buffer is unmapped rather than cached.
	if err = p.Release(b); err != nil {
		t.Fatal(err)
	}
	if b.Len() != 0 {
		t.Fatal("foreign buffer should have been released")
	}
}

func TestPoolBadAlignment(t *testing.T) {
	if _, err := aligned.NewPool(3); err == nil {
		t.Fatal("expected error for non power of two alignment")
	}
	if _, err := aligned.NewPool(0); err == nil {
		t.Fatal("expected error for zero alignment")
	}
}
