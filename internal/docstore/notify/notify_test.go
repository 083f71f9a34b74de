package notify

import (
	"context"
	"testing"
)

func TestLocalDispatchesPerPath(t *testing.T) {
	l := NewLocal()
	a, b := 0, 0
	cancelA := l.Subscribe("favorites/u1/pieces/p1", func() { a++ })
	l.Subscribe("favorites/u1/pieces/p2", func() { b++ })

	_ = l.Publish(context.Background(), "favorites/u1/pieces/p1")
	if a != 1 || b != 0 {
		t.Fatalf("dispatch: want a=1 b=0 got a=%d b=%d", a, b)
	}

	cancelA()
	cancelA()
	_ = l.Publish(context.Background(), "favorites/u1/pieces/p1")
	if a != 1 {
		t.Fatalf("cancelled callback ran: a=%d", a)
	}
	if n := l.Count("favorites/u1/pieces/p1"); n != 0 {
		t.Fatalf("Count: want=0 got=%d", n)
	}
}
