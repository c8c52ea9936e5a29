package capture

import (
	"context"
	"testing"
	"time"

	"github.com/mhelsper/cr35cap/internal/cr35"
)

func TestControllerCachesLastImage(t *testing.T) {
	c := New(Options{Host: "192.0.2.1", Port: 2006})

	if img, _ := c.LastImage(); img != nil {
		t.Fatal("fresh controller reports an exposure")
	}

	want := testExposure()
	c.imageReady(want)

	got, at := c.LastImage()
	if got != want {
		t.Error("cached exposure differs from the delivered one")
	}
	if at.IsZero() {
		t.Error("capture time not recorded")
	}
}

func TestControllerNotifiesWaiters(t *testing.T) {
	c := New(Options{Host: "192.0.2.1", Port: 2006})

	ch := make(chan *cr35.Image, 1)
	c.mu.Lock()
	c.waiters = append(c.waiters, ch)
	c.mu.Unlock()

	want := testExposure()
	c.imageReady(want)

	select {
	case got := <-ch:
		if got != want {
			t.Error("waiter received a different exposure")
		}
	case <-time.After(time.Second):
		t.Fatal("waiter was not notified")
	}

	// The waiter list is cleared after delivery.
	c.mu.Lock()
	n := len(c.waiters)
	c.mu.Unlock()
	if n != 0 {
		t.Errorf("waiters remaining = %d, want 0", n)
	}
}

func TestAcquireRequiresConnection(t *testing.T) {
	c := New(Options{Host: "192.0.2.1", Port: 2006})
	if _, err := c.Acquire(context.Background(), 5); err == nil {
		t.Error("Acquire succeeded without a connection")
	}
}

func TestWaitModeListTimesOut(t *testing.T) {
	c := New(Options{Host: "192.0.2.1", Port: 2006})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := c.WaitModeList(ctx); err == nil {
		t.Error("WaitModeList returned without modes")
	}
}
