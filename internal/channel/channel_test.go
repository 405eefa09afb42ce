package channel

import "testing"

func TestBuffered_SendUntilFull(t *testing.T) {
	b := NewBuffered[int](2)

	if !b.Send(1) || !b.Send(2) {
		t.Fatal("sends within capacity must succeed")
	}
	if b.Send(3) {
		t.Error("send past capacity must be dropped")
	}
	if b.Len() != 2 {
		t.Errorf("expected 2 queued, got %d", b.Len())
	}
	if b.Dropped() != 1 {
		t.Errorf("expected 1 drop, got %d", b.Dropped())
	}
}

func TestBuffered_DrainRestoresCapacity(t *testing.T) {
	b := NewBuffered[string](1)
	b.Send("a")
	b.Send("b")

	if got := <-b.Receive(); got != "a" {
		t.Errorf("expected first queued value, got %q", got)
	}
	if !b.Send("c") {
		t.Error("send after drain must succeed")
	}
}

func TestUnbuffered_DropsWithoutReceiver(t *testing.T) {
	u := NewUnbuffered[int]()

	if u.Send(1) {
		t.Error("send with no parked receiver must be dropped")
	}
	if u.Dropped() != 1 {
		t.Errorf("expected 1 drop, got %d", u.Dropped())
	}
	if u.Len() != 0 {
		t.Errorf("nothing can queue, got Len %d", u.Len())
	}
}

func TestUnbuffered_HandsOffToParkedReceiver(t *testing.T) {
	u := NewUnbuffered[int]()

	got := make(chan int)
	ready := make(chan struct{})
	go func() {
		close(ready)
		got <- <-u.Receive()
	}()
	<-ready

	// The receiver goroutine may not be parked on Receive yet; retry until
	// the handoff lands.
	for !u.Send(42) {
	}
	if v := <-got; v != 42 {
		t.Errorf("expected 42, got %d", v)
	}
}
