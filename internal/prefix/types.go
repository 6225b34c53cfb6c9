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
	"net/netip"
	"time"
)

// Source indicates how a delegation was obtained.
type Source string

const (
	SourceDHCPv6PD            Source = "dhcpv6-pd"
	SourceRouterAdvertisement Source = "router-advertisement"
	SourceStatic              Source = "static"
	SourceUnknown             Source = "unknown"
)

// Delegated is a single delegated prefix within a Delegation, together
// with the lifetimes the upstream attached to it.
type Delegated struct {
	// Network is the delegated range.
	Network netip.Prefix

	// ValidLifetime is how long the prefix remains usable.
	ValidLifetime time.Duration

	// PreferredLifetime is how long the prefix remains preferred.
	PreferredLifetime time.Duration
}

// Delegation is everything one upstream handed us in a single lease or
// advertisement. A DHCPv6 IA_PD may carry several IAPREFIX options and a
// Router Advertisement several prefix-information options; each becomes
// one Delegated entry, most-preferred first.
type Delegation struct {
	// Prefixes is the delegated set, never empty, most-preferred first.
	Prefixes []Delegated

	// Source indicates which acquisition path produced this delegation.
	Source Source

	// ReceivedAt is when the lease or advertisement arrived.
	ReceivedAt time.Time
}

// Primary returns the most-preferred delegated prefix, or nil if the
// delegation is empty.
func (d *Delegation) Primary() *Delegated {
	if d == nil || len(d.Prefixes) == 0 {
		return nil
	}
	return &d.Prefixes[0]
}

// Networks returns the delegated ranges in preference order.
func (d *Delegation) Networks() []netip.Prefix {
	if d == nil {
		return nil
	}
	nets := make([]netip.Prefix, len(d.Prefixes))
	for i, p := range d.Prefixes {
		nets[i] = p.Network
	}
	return nets
}

// Expiry returns when the delegation's shortest valid lifetime runs out.
// A delegation with no finite lifetime returns the zero time.
func (d *Delegation) Expiry() time.Time {
	if d == nil {
		return time.Time{}
	}
	var soonest time.Time
	for _, p := range d.Prefixes {
		if p.ValidLifetime == 0 {
			continue
		}
		at := d.ReceivedAt.Add(p.ValidLifetime)
		if soonest.IsZero() || at.Before(soonest) {
			soonest = at
		}
	}
	return soonest
}

// SameNetworks reports whether two delegations cover exactly the same
// ranges in the same order, ignoring lifetimes.
func (d *Delegation) SameNetworks(other *Delegation) bool {
	if d == nil || other == nil {
		return d == other
	}
	if len(d.Prefixes) != len(other.Prefixes) {
		return false
	}
	for i := range d.Prefixes {
		if d.Prefixes[i].Network != other.Prefixes[i].Network {
			return false
		}
	}
	return true
}

// EventKind classifies what happened to a receiver's delegation.
type EventKind string

const (
	// EventAcquired fires when a receiver obtains its first delegation.
	EventAcquired EventKind = "acquired"
	// EventRenewed fires when the upstream extended an unchanged delegation.
	EventRenewed EventKind = "renewed"
	// EventChanged fires when the delegated ranges themselves changed.
	EventChanged EventKind = "changed"
	// EventExpired fires when a delegation lapsed without renewal.
	EventExpired EventKind = "expired"
	// EventFailed carries an acquisition or renewal error.
	EventFailed EventKind = "failed"
)

// Event is one step in a receiver's delegation lifecycle.
type Event struct {
	Kind EventKind

	// Delegation is the delegation involved; nil for EventFailed and for
	// an expiry with nothing left to report.
	Delegation *Delegation

	// Err is set for EventFailed.
	Err error
}

// Receiver acquires delegations from an upstream and reports their
// lifecycle. Implementations are safe for concurrent use.
type Receiver interface {
	// Start begins acquisition. Calling Start on a started receiver is a
	// no-op.
	Start(ctx context.Context) error

	// Stop ends acquisition and releases resources.
	Stop() error

	// Events returns the lifecycle event channel. Events are dropped,
	// not blocked on, when the consumer falls behind.
	Events() <-chan Event

	// Current returns the live delegation, or nil before the first
	// acquisition or after expiry.
	Current() *Delegation

	// Source identifies the acquisition path.
	Source() Source
}
