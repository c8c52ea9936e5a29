package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mhelsper/cr35cap/internal/cr35"
)

// Options configures a Controller.
type Options struct {
	Host string
	Port uint16

	// OnNewData, when set, is called for every large image slice the
	// device delivers. Used for progress display.
	OnNewData func()
}

// Controller is a high-level wrapper over the CR35 session engine: it
// turns the event-driven start/poll/image-ready cycle into a blocking
// Acquire call and caches the most recent exposure.
type Controller struct {
	host      string
	port      uint16
	dev       *cr35.Device
	onNewData func()

	mu      sync.Mutex
	last    *cr35.Image
	lastAt  time.Time
	waiters []chan *cr35.Image
}

// New creates a Controller targeting the given device address.
func New(opts Options) *Controller {
	c := &Controller{host: opts.Host, port: opts.Port, onNewData: opts.OnNewData}
	c.dev = cr35.New(cr35.Events{
		NewData:    func() { c.newData() },
		ImageReady: func(img *cr35.Image) { c.imageReady(img) },
	})
	return c
}

// Connect establishes the device session.
func (c *Controller) Connect() error {
	return c.dev.Connect(c.host, c.port)
}

// Disconnect runs the device shutdown choreography.
func (c *Controller) Disconnect() {
	c.dev.Disconnect()
}

// Host returns the device address.
func (c *Controller) Host() string { return c.host }

// Connected reports whether the device session is up.
func (c *Controller) Connected() bool { return c.dev.IsConnected() }

// State returns the last reported device state.
func (c *Controller) State() uint32 { return c.dev.State() }

// ModeList returns the cached acquisition mode list.
func (c *Controller) ModeList() []string { return c.dev.ModeList() }

// Erase triggers a plate erase cycle.
func (c *Controller) Erase() { c.dev.Erase() }

// LastImage returns the most recent assembled exposure, if any.
func (c *Controller) LastImage() (*cr35.Image, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.lastAt
}

// WaitModeList blocks until the login sequence has delivered the mode
// list or ctx expires.
func (c *Controller) WaitModeList(ctx context.Context) ([]string, error) {
	for {
		if modes := c.dev.ModeList(); len(modes) > 0 {
			return modes, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// Acquire starts an acquisition in the given mode and blocks until the
// assembled exposure arrives or ctx expires. The acquisition is stopped
// on the way out in both cases.
func (c *Controller) Acquire(ctx context.Context, mode uint32) (*cr35.Image, error) {
	if !c.dev.IsConnected() {
		return nil, errors.New("not connected")
	}

	ch := make(chan *cr35.Image, 1)
	c.mu.Lock()
	c.waiters = append(c.waiters, ch)
	c.mu.Unlock()

	slog.Info("acquisition requested", "mode", mode)
	c.dev.Start(mode)

	select {
	case img := <-ch:
		c.dev.Stop()
		return img, nil
	case <-ctx.Done():
		c.dev.Stop()
		c.removeWaiter(ch)
		return nil, ctx.Err()
	}
}

func (c *Controller) newData() {
	if c.onNewData != nil {
		c.onNewData()
	}
}

func (c *Controller) imageReady(img *cr35.Image) {
	c.mu.Lock()
	c.last = img
	c.lastAt = time.Now()
	waiters := c.waiters
	c.waiters = nil
	c.mu.Unlock()
	for _, ch := range waiters {
		ch <- img
	}
}

func (c *Controller) removeWaiter(ch chan *cr35.Image) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, w := range c.waiters {
		if w == ch {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}
