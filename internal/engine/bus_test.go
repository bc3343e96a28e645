package engine

import (
	"errors"
	"fmt"
	"testing"
)

func TestBusDropsWhenSubscriberIsFull(t *testing.T) {
	b := NewBus(2)
	id, ch := b.Subscribe()

	for i := range 5 {
		b.Publish(Notification{Kind: NotifyActionQueued, Tick: uint64(i)})
	}
	if len(ch) != 2 {
		t.Fatalf("buffered = %d, want 2", len(ch))
	}
	if n := <-ch; n.Tick != 0 || n.Time.IsZero() {
		t.Fatalf("first notification = %+v", n)
	}

	b.Unsubscribe(id)
	<-ch
	if _, ok := <-ch; ok {
		t.Fatal("channel open after Unsubscribe")
	}
	b.Unsubscribe(id)
}

func TestBusClose(t *testing.T) {
	b := NewBus(0)
	_, ch := b.Subscribe()
	b.Close()
	b.Close()
	if _, ok := <-ch; ok {
		t.Fatal("channel open after Close")
	}
	if _, late := b.Subscribe(); late == nil {
		t.Fatal("nil channel after Close")
	} else if _, ok := <-late; ok {
		t.Fatal("late subscriber got an open channel")
	}
	b.Publish(Notification{Kind: NotifyStarted})
}

func TestErrorMatchesByCode(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("commit: %w", tickError(CodePersistenceFailure, "c1", 7, cause))

	if !errors.Is(err, ErrPersistenceFailure) {
		t.Fatal("wrapped error does not match its sentinel")
	}
	if errors.Is(err, ErrProducerUnavailable) {
		t.Fatal("error matched another code")
	}
	if !errors.Is(err, cause) {
		t.Fatal("cause lost")
	}
	if got, want := err.Error(), "commit: persistence_failure: campaign c1 tick 7: disk full"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
	if got := newError(CodeNotRegistered, "x", nil).Error(); got != "not_registered: campaign x" {
		t.Fatalf("Error() = %q", got)
	}
}
