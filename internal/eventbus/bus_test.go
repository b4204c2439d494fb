package eventbus

import (
	"context"
	"testing"
	"time"
)

func TestPublishFansOut(t *testing.T) {
	t.Parallel()

	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(1)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: "dispatch.cycle"})
	for _, ch := range []<-chan Event{a, c} {
		e := <-ch
		if e.Type != "dispatch.cycle" || e.Time.IsZero() {
			t.Fatalf("event = %+v", e)
		}
	}
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: "one"})
	b.Publish(Event{Type: "two"})
	if e := <-ch; e.Type != "one" {
		t.Fatalf("first = %q", e.Type)
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected %q", e.Type)
	default:
	}
}

func TestUnsubscribeClosesAndIsIdempotent(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("channel still open")
	}
	b.Publish(Event{Type: "after"})
}

func TestLatestTracksNewestPerType(t *testing.T) {
	t.Parallel()

	b := New()
	l := NewLatest()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx, b)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		b.Publish(Event{Type: "dispatch.cycle", Data: 2})
		if e, ok := l.Get("dispatch.cycle"); ok && e.Data == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("event never recorded")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, ok := l.Get("other"); ok {
		t.Fatal("unexpected type recorded")
	}
	cancel()
	<-done
}
