package waiter

import (
	"testing"
	"time"
)

func TestNotifyWakesRegisteredEntry(t *testing.T) {
	var q Queue
	e, ch := NewChannelEntry(EventIn)
	q.EventRegister(&e)
	defer q.EventUnregister(&e)

	q.Notify(EventOut) // should not wake
	select {
	case <-ch:
		t.Fatal("unexpected wake on unrelated event")
	case <-time.After(10 * time.Millisecond):
	}

	q.Notify(EventIn)
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected wake on EventIn")
	}
}

func TestUnregisterStopsNotifications(t *testing.T) {
	var q Queue
	e, ch := NewChannelEntry(EventIn)
	q.EventRegister(&e)
	q.EventUnregister(&e)

	q.Notify(EventIn)
	select {
	case <-ch:
		t.Fatal("unregistered entry must not be notified")
	case <-time.After(10 * time.Millisecond):
	}
}
