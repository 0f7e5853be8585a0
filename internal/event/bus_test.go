package event

import (
	"testing"
	"time"
)

func TestBus_RoutesByDesk(t *testing.T) {
	bus := NewBus()
	deskA, closeA := bus.Subscribe("desk-a", 4)
	defer closeA()
	all, closeAll := bus.Subscribe("", 4)
	defer closeAll()

	bus.Emit(NewTick("desk-a", time.Now(), 1))
	bus.Emit(NewTick("desk-b", time.Now(), 2))

	if got := len(deskA); got != 1 {
		t.Fatalf("expected one event for desk-a, got %d", got)
	}
	if got := len(all); got != 2 {
		t.Fatalf("expected two events for wildcard subscriber, got %d", got)
	}
	e := <-deskA
	if e.Kind != KindTick || *e.Elapsed != 1 {
		t.Fatalf("unexpected event: %+v", e)
	}
}

func TestBus_DropsWhenSubscriberIsFull(t *testing.T) {
	bus := NewBus()
	ch, unsubscribe := bus.Subscribe("desk-a", 1)
	defer unsubscribe()

	bus.Emit(NewTick("desk-a", time.Now(), 1))
	bus.Emit(NewTick("desk-a", time.Now(), 2))

	if got := len(ch); got != 1 {
		t.Fatalf("expected buffer to hold one event, got %d", got)
	}
}

func TestBus_UnsubscribeClosesChannelOnce(t *testing.T) {
	bus := NewBus()
	ch, unsubscribe := bus.Subscribe("desk-a", 1)
	unsubscribe()
	unsubscribe()

	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
	bus.Emit(NewTick("desk-a", time.Now(), 1))
}

func TestBus_AttachDeliversSynchronously(t *testing.T) {
	bus := NewBus()
	var got []Kind
	detach := bus.Attach("", SinkFunc(func(e Event) { got = append(got, e.Kind) }))

	bus.Emit(NewNotice("desk-a", time.Now(), NoticeInfo, "x", "y"))
	detach()
	bus.Emit(NewNotice("desk-a", time.Now(), NoticeInfo, "x", "y"))

	if len(got) != 1 || got[0] != KindNotice {
		t.Fatalf("unexpected delivered kinds: %v", got)
	}
}
