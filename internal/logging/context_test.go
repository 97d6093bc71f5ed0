package logging

import (
	"context"
	"testing"
	"time"
)

func TestDetachContext_SurvivesParentCancel(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	detached := DetachContext(parent)
	cancel()

	if parent.Err() == nil {
		t.Fatal("parent should be cancelled")
	}
	if detached.Err() != nil {
		t.Errorf("detached should not be cancelled, got: %v", detached.Err())
	}
}

func TestDetachContextWithTimeout_HasOwnDeadline(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	detached, cancel := DetachContextWithTimeout(parent, 50*time.Millisecond)
	defer cancel()
	cancelParent()

	if _, ok := detached.Deadline(); !ok {
		t.Fatal("detached context should have a deadline")
	}
	if detached.Err() != nil {
		t.Fatalf("detached should outlive parent cancel, got: %v", detached.Err())
	}

	<-detached.Done()
	if detached.Err() != context.DeadlineExceeded {
		t.Errorf("expected deadline exceeded, got: %v", detached.Err())
	}
}

func TestDetachContext_PreservesValues(t *testing.T) {
	type key string
	parent := context.WithValue(context.Background(), key("session"), "abc")

	if v := DetachContext(parent).Value(key("session")); v != "abc" {
		t.Errorf("expected value abc, got %v", v)
	}
}
