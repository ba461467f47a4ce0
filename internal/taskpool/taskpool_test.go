package taskpool

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestTaskProcessesMessagesInOrder(t *testing.T) {
	var mu sync.Mutex
	var got []int

	task := New(context.Background(), "test", 8, nil, func(ctx context.Context, msg Message) {
		mu.Lock()
		got = append(got, msg.Body.(int))
		mu.Unlock()
	})
	defer task.Stop()

	for i := 0; i < 5; i++ {
		task.Post(0, i)
	}

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == 5 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for messages, got %d/5", n)
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		if v != i {
			t.Fatalf("out of order: got %v", got)
		}
	}
}

func TestStopWaitsForGoroutineExit(t *testing.T) {
	task := New(context.Background(), "test", 1, nil, func(ctx context.Context, msg Message) {})
	task.Stop()
	select {
	case <-task.Done():
	default:
		t.Fatal("expected Done to be closed after Stop returns")
	}
}

func TestPostAfterStopDoesNotBlock(t *testing.T) {
	task := New(context.Background(), "test", 1, nil, func(ctx context.Context, msg Message) {})
	task.Stop()
	done := make(chan struct{})
	go func() {
		task.Post(0, "late")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Post after Stop should not block")
	}
}
