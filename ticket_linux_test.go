//go:build linux

package kaio

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTicketRecycleOnDelivery(t *testing.T) {
	p, err := NewPipe(WithCapacity(2))
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if closeErr := p.Close(); closeErr != nil {
			t.Fatal(closeErr)
		}
	}()

	f, err := os.Create(filepath.Join(t.TempDir(), "ticket.dat"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = f.Close()
	}()

	ticket, err := p.Send(WriteAt(f, &SliceBuf{B: make([]byte, 64)}, 0))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err = ticket.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	// Delivery hands the ticket back to the pool, stripped of its request.
	if ticket.req.F != nil || ticket.req.WBuf != nil || ticket.promise != nil {
		t.Fatal("delivered ticket was not recycled")
	}
}
