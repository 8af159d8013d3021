// Package brightness holds the leader's single source of truth for the
// requested backlight level and lets workers follow it.
package brightness

import (
	"context"
	"sync"
)

// Percent is a brightness level in [0,100].
type Percent uint8

const (
	Min Percent = 0
	Max Percent = 100
)

// Clamp bounds v to [0,100].
func Clamp(v int) Percent {
	switch {
	case v < int(Min):
		return Min
	case v > int(Max):
		return Max
	}
	return Percent(v)
}

// Apply adds delta to current and clamps the result. Both the command
// server and the control surface step through here.
func Apply(current Percent, delta int) Percent {
	return Clamp(int(current) + delta)
}

// Cell is a mutex guarded brightness value. Each assignment bumps a
// version and wakes every subscriber, even when the value is unchanged.
type Cell struct {
	mu      sync.Mutex
	value   Percent
	version uint64
	changed chan struct{}
}

func New(initial int) *Cell {
	return &Cell{
		value:   Clamp(initial),
		changed: make(chan struct{}),
	}
}

func (c *Cell) Get() Percent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Set replaces the value unconditionally.
func (c *Cell) Set(v int) Percent {
	return c.Replace(func(Percent) int { return v })
}

// Replace applies f to the current value and stores the clamped result.
// Concurrent callers are serialized; f must not call back into c.
func (c *Cell) Replace(f func(Percent) int) Percent {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.value = Clamp(f(c.value))
	c.version++
	close(c.changed)
	c.changed = make(chan struct{})
	return c.value
}

func (c *Cell) snapshot() (Percent, uint64, <-chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.version, c.changed
}

// Subscribe returns an independent cursor positioned before the current
// value, so its first Next returns immediately.
func (c *Cell) Subscribe() *Subscription {
	_, version, _ := c.snapshot()
	return &Subscription{cell: c, seen: version, primed: true}
}

// Subscription is a latest-value cursor over a Cell. It never queues:
// a slow reader skips straight to the newest value.
type Subscription struct {
	cell   *Cell
	seen   uint64
	primed bool
}

// Next blocks until the cell holds a value newer than the last one
// returned and returns it along with its version.
func (s *Subscription) Next(ctx context.Context) (Percent, uint64, error) {
	for {
		value, version, changed := s.cell.snapshot()
		if s.primed || version > s.seen {
			s.primed = false
			s.seen = version
			return value, version, nil
		}

		select {
		case <-ctx.Done():
			return 0, s.seen, ctx.Err()
		case <-changed:
		}
	}
}

// Watch delivers values on a single slot channel. A value that has not
// been received yet is overwritten by the next one. The channel closes
// when ctx ends.
func (c *Cell) Watch(ctx context.Context) <-chan Percent {
	out := make(chan Percent, 1)
	sub := c.Subscribe()

	go func() {
		defer close(out)
		for {
			value, _, err := sub.Next(ctx)
			if err != nil {
				return
			}
			select {
			case out <- value:
			default:
				select {
				case <-out:
				default:
				}
				out <- value
			}
		}
	}()

	return out
}
