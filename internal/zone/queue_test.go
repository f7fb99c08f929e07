package zone

import (
	"testing"
	"time"
)

func TestQueueRunsCompletionsInOrder(t *testing.T) {
	q := NewQueue(0, TypeLogical, 8)
	defer q.Stop()

	var order []int
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		i := i
		if err := q.Run(func() { order = append(order, i) }); err != nil {
			t.Fatalf("Run: %v", err)
		}
	}
	if err := q.Run(func() { close(done) }); err != nil {
		t.Fatalf("Run: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for queue to drain")
	}

	for i, v := range order {
		if v != i {
			t.Fatalf("expected in-order execution, got %v", order)
		}
	}
}

func TestQueueOnErrorInsteadOfRun(t *testing.T) {
	q := NewQueue(0, TypePhysical, 4)
	defer q.Stop()

	ran := false
	var gotErr error
	done := make(chan struct{})
	errBoom := errTest("boom")
	if err := q.Enqueue(Completion{
		Run:     func() { ran = true },
		OnError: func(e error) { gotErr = e; close(done) },
		Err:     errBoom,
	}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("timed out")
	}
	if ran {
		t.Fatalf("Run must not execute when Err is set")
	}
	if gotErr != errBoom {
		t.Fatalf("expected OnError to receive the completion's error")
	}
}

func TestQueueEnqueueAfterStopFails(t *testing.T) {
	q := NewQueue(0, TypeHash, 1)
	q.Stop()
	if err := q.Run(func() {}); err == nil {
		t.Fatalf("expected Enqueue on a stopped queue to fail")
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
