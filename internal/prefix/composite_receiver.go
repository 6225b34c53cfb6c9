/*
Copyright 2026 jr42.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package prefix

import (
	"context"
	"sync"
)

// failoverThreshold is how many consecutive primary failures trigger a
// switch to the fallback receiver.
const failoverThreshold = 3

// CompositeReceiver layers an active DHCPv6-PD client over a passive RA
// observer: the primary's delegation wins whenever it holds one, and the
// fallback takes over after repeated primary failures or expiry.
type CompositeReceiver struct {
	mu       sync.RWMutex
	primary  Receiver
	fallback Receiver

	events     chan Event
	done       chan struct{}
	started    bool
	onFallback bool
	failures   int
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewCompositeReceiver combines primary (typically DHCPv6-PD) with
// fallback (typically RA observation).
func NewCompositeReceiver(primary, fallback Receiver) *CompositeReceiver {
	return &CompositeReceiver{
		primary:  primary,
		fallback: fallback,
		events:   make(chan Event, eventBuffer),
		done:     make(chan struct{}),
	}
}

// Start launches both underlying receivers and the event merge loop.
func (c *CompositeReceiver) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}
	c.ctx, c.cancel = context.WithCancel(ctx)

	if err := c.primary.Start(c.ctx); err != nil {
		return err
	}
	if err := c.fallback.Start(c.ctx); err != nil {
		_ = c.primary.Stop()
		return err
	}
	c.started = true
	go c.merge()
	return nil
}

// Stop stops both underlying receivers.
func (c *CompositeReceiver) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return nil
	}
	c.started = false
	if c.cancel != nil {
		c.cancel()
	}
	close(c.done)

	err := c.primary.Stop()
	if ferr := c.fallback.Stop(); err == nil {
		err = ferr
	}
	return err
}

// Events returns the merged lifecycle channel.
func (c *CompositeReceiver) Events() <-chan Event { return c.events }

// Current prefers the primary's delegation when it holds one.
func (c *CompositeReceiver) Current() *Delegation {
	if d := c.primary.Current(); d != nil {
		return d
	}
	return c.fallback.Current()
}

// Source reports the path that produced the current delegation.
func (c *CompositeReceiver) Source() Source {
	if c.primary.Current() != nil {
		return c.primary.Source()
	}
	if c.fallback.Current() != nil {
		return c.fallback.Source()
	}
	return c.primary.Source()
}

// UsingFallback reports whether the fallback currently drives events.
func (c *CompositeReceiver) UsingFallback() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.onFallback
}

// merge folds both receivers' events into one stream, tracking which
// side is authoritative.
func (c *CompositeReceiver) merge() {
	for {
		select {
		case <-c.done:
			return
		case <-c.ctx.Done():
			return
		case ev, ok := <-c.primary.Events():
			if ok {
				c.fromPrimary(ev)
			}
		case ev, ok := <-c.fallback.Events():
			if ok {
				c.fromFallback(ev)
			}
		}
	}
}

func (c *CompositeReceiver) fromPrimary(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Kind {
	case EventAcquired, EventRenewed, EventChanged:
		c.failures = 0
		c.onFallback = false
		c.forward(ev)

	case EventFailed:
		c.failures++
		if c.failures >= failoverThreshold {
			c.failover()
		}
		c.forward(ev)

	case EventExpired:
		if !c.failover() {
			c.forward(ev)
		}
	}
}

func (c *CompositeReceiver) fromFallback(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// The fallback stays silent while the primary is authoritative; its
	// delegation is still tracked for a later failover.
	if c.onFallback {
		c.forward(ev)
	}
}

// failover switches to the fallback, announcing its delegation if it has
// one. Returns whether anything was announced. Caller holds the lock.
func (c *CompositeReceiver) failover() bool {
	c.onFallback = true
	if d := c.fallback.Current(); d != nil {
		c.forward(Event{Kind: EventAcquired, Delegation: d})
		return true
	}
	return false
}

// forward sends without blocking; a full channel drops. Caller holds the
// lock.
func (c *CompositeReceiver) forward(ev Event) {
	select {
	case c.events <- ev:
	default:
	}
}
