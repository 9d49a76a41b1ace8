package kaio_test

import (
	"context"
	"testing"

	"github.com/brickingsoft/kaio"
)

type pingTask struct {
	done chan struct{}
}

func (task *pingTask) Handle(ctx context.Context) {
	close(task.done)
}

func TestStartup(t *testing.T) {
	if err := kaio.Startup(); err != nil {
		t.Fatal(err)
	}
	task := &pingTask{done: make(chan struct{})}
	if err := kaio.Executors().Execute(kaio.Background(), task); err != nil {
		t.Fatal(err)
	}
	<-task.done
	// The executors stay up for the async tests; Shutdown belongs to the
	// process, not a test.
}
