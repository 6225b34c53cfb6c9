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
	"sync"
	"time"
)

// MockReceiver is a manually-driven Receiver for tests.
type MockReceiver struct {
	receiverState
	source Source
}

// NewMockReceiver creates a mock receiver reporting the given source.
func NewMockReceiver(source Source) *MockReceiver {
	m := &MockReceiver{source: source}
	m.receiverState.init()
	return m
}

// Start implements Receiver.
func (m *MockReceiver) Start(ctx context.Context) error {
	m.begin(ctx)
	return nil
}

// Stop implements Receiver.
func (m *MockReceiver) Stop() error {
	m.end()
	return nil
}

// Source implements Receiver.
func (m *MockReceiver) Source() Source { return m.source }

// Delegate simulates the upstream handing down the given networks with a
// shared lifetime, emitting acquired/changed/renewed as appropriate.
func (m *MockReceiver) Delegate(validLifetime time.Duration, networks ...netip.Prefix) *Delegation {
	prefixes := make([]Delegated, len(networks))
	for i, n := range networks {
		prefixes[i] = Delegated{
			Network:           n,
			ValidLifetime:     validLifetime,
			PreferredLifetime: validLifetime,
		}
	}
	delegation := &Delegation{
		Prefixes:   prefixes,
		Source:     m.source,
		ReceivedAt: time.Now(),
	}

	m.mu.Lock()
	previous := m.delegation
	m.delegation = delegation
	m.mu.Unlock()

	kind := EventRenewed
	switch {
	case previous == nil:
		kind = EventAcquired
	case !previous.SameNetworks(delegation):
		kind = EventChanged
	}
	m.events <- Event{Kind: kind, Delegation: delegation}
	return delegation
}

// Expire simulates the delegation lapsing.
func (m *MockReceiver) Expire() {
	m.mu.Lock()
	previous := m.delegation
	m.delegation = nil
	m.mu.Unlock()

	if previous != nil {
		m.events <- Event{Kind: EventExpired, Delegation: previous}
	}
}

// Fail simulates an acquisition error.
func (m *MockReceiver) Fail(err error) {
	m.events <- Event{Kind: EventFailed, Err: err}
}

// MockISP simulates a delegating router handing out (and occasionally
// renumbering) a set of prefixes under one lease.
type MockISP struct {
	mu        sync.RWMutex
	networks  []netip.Prefix
	leaseTime time.Duration
	renumber  func() []netip.Prefix
}

// NewMockISP creates a mock delegating router offering the given
// networks for leaseTime at a time.
func NewMockISP(leaseTime time.Duration, networks ...netip.Prefix) *MockISP {
	return &MockISP{networks: networks, leaseTime: leaseTime}
}

// SetRenumberFn installs a function consulted on each lease; when it
// returns a non-empty set differing from the current one, the ISP
// renumbers.
func (isp *MockISP) SetRenumberFn(fn func() []netip.Prefix) {
	isp.mu.Lock()
	defer isp.mu.Unlock()
	isp.renumber = fn
}

// Networks returns the currently offered delegation set.
func (isp *MockISP) Networks() []netip.Prefix {
	isp.mu.RLock()
	defer isp.mu.RUnlock()
	return append([]netip.Prefix(nil), isp.networks...)
}

// Renumber replaces the offered delegation set.
func (isp *MockISP) Renumber(networks ...netip.Prefix) {
	isp.mu.Lock()
	defer isp.mu.Unlock()
	isp.networks = networks
}

// LeaseTime returns the lease duration.
func (isp *MockISP) LeaseTime() time.Duration { return isp.leaseTime }

// Lease simulates one DHCPv6-PD exchange, returning the delegated set
// and its lifetime.
func (isp *MockISP) Lease() ([]netip.Prefix, time.Duration) {
	isp.mu.Lock()
	defer isp.mu.Unlock()
	if isp.renumber != nil {
		if next := isp.renumber(); len(next) > 0 && !samePrefixes(next, isp.networks) {
			isp.networks = next
		}
	}
	return append([]netip.Prefix(nil), isp.networks...), isp.leaseTime
}

func samePrefixes(a, b []netip.Prefix) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
