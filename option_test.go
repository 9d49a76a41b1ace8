package kaio_test

import (
	"testing"
	"time"

	"github.com/brickingsoft/kaio"
)

func TestOptions(t *testing.T) {
	opts := kaio.Options{}
	applied := []kaio.Option{
		kaio.WithCapacity(64),
		kaio.WithLowWater(8),
		kaio.WithWaitTimeout(20 * time.Millisecond),
		kaio.WithEventFD(),
		kaio.WithFailWhenFull(),
	}
	for _, opt := range applied {
		if err := opt(&opts); err != nil {
			t.Fatal(err)
		}
	}
	if opts.Capacity != 64 || opts.LowWater != 8 || opts.WaitTimeout != 20*time.Millisecond {
		t.Fatalf("options = %+v", opts)
	}
	if !opts.UseEventFD || !opts.FailWhenFull {
		t.Fatalf("options = %+v", opts)
	}
}

func TestOptionsValidation(t *testing.T) {
	opts := kaio.Options{}
	if err := kaio.WithCapacity(0)(&opts); !kaio.IsInvalidArgument(err) {
		t.Fatalf("zero capacity: got %v", err)
	}
	if err := kaio.WithCapacity(kaio.MaxCapacity + 1)(&opts); !kaio.IsInvalidArgument(err) {
		t.Fatalf("oversized capacity: got %v", err)
	}
	if err := kaio.WithLowWater(0)(&opts); !kaio.IsInvalidArgument(err) {
		t.Fatalf("zero low water: got %v", err)
	}
}
