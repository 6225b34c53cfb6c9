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
	"fmt"
	"net"
	"net/netip"
	"sort"
	"time"

	"github.com/go-logr/logr"
	"github.com/mdlayher/ndp"
)

// RAReceiver observes Router Advertisements to passively track the
// prefixes in use on a link. Useful when another service (Talos,
// systemd-networkd) runs DHCPv6-PD and this node only needs to follow
// along. Every usable prefix-information option in an advertisement
// becomes one Delegated entry, global-unicast ranges first.
type RAReceiver struct {
	receiverState

	iface string
	log   logr.Logger
	conn  *ndp.Conn
}

// NewRAReceiver creates a Router Advertisement receiver bound to iface.
func NewRAReceiver(iface string) *RAReceiver {
	r := &RAReceiver{iface: iface, log: logr.Discard()}
	r.receiverState.init()
	return r
}

// WithLogger sets the receiver's logger; the default discards.
func (r *RAReceiver) WithLogger(log logr.Logger) *RAReceiver {
	r.log = log.WithName("ra-receiver")
	return r
}

// Start opens the NDP listener and begins following advertisements.
func (r *RAReceiver) Start(ctx context.Context) error {
	if !r.begin(ctx) {
		return nil
	}

	ifi, err := net.InterfaceByName(r.iface)
	if err != nil {
		r.end()
		return fmt.Errorf("resolving interface %s: %w", r.iface, err)
	}

	conn, addr, err := ndp.Listen(ifi, ndp.LinkLocal)
	if err != nil {
		r.end()
		return fmt.Errorf("opening NDP listener on %s: %w", r.iface, err)
	}
	r.log.Info("listening for router advertisements",
		"interface", r.iface, "localAddr", addr.String())

	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()

	go r.follow()
	return nil
}

// Stop closes the listener.
func (r *RAReceiver) Stop() error {
	if !r.end() {
		return nil
	}
	r.mu.RLock()
	conn := r.conn
	r.mu.RUnlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Source returns SourceRouterAdvertisement.
func (r *RAReceiver) Source() Source { return SourceRouterAdvertisement }

// follow reads advertisements until stopped.
func (r *RAReceiver) follow() {
	for {
		select {
		case <-r.done:
			return
		case <-r.ctx.Done():
			return
		default:
		}

		// A short deadline keeps the loop responsive to Stop.
		if err := r.conn.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
			r.fail(fmt.Errorf("setting read deadline: %w", err))
			continue
		}
		msg, _, from, err := r.conn.ReadFrom()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			r.fail(fmt.Errorf("reading NDP message: %w", err))
			continue
		}

		ra, ok := msg.(*ndp.RouterAdvertisement)
		if !ok {
			continue
		}
		r.log.V(1).Info("router advertisement", "from", from, "options", len(ra.Options))
		r.observe(ra)
	}
}

// observe folds one advertisement's prefix-information options into the
// current delegation.
func (r *RAReceiver) observe(ra *ndp.RouterAdvertisement) {
	delegated := usablePrefixes(ra)
	if len(delegated) == 0 {
		r.log.V(1).Info("advertisement carried no usable prefix")
		return
	}

	delegation := &Delegation{
		Prefixes:   delegated,
		Source:     SourceRouterAdvertisement,
		ReceivedAt: time.Now(),
	}

	r.mu.Lock()
	previous := r.delegation
	r.delegation = delegation
	r.mu.Unlock()

	kind := EventRenewed
	switch {
	case previous == nil:
		kind = EventAcquired
	case !previous.SameNetworks(delegation):
		kind = EventChanged
	}
	r.log.Info("delegation observed", "event", kind, "primary", delegation.Primary().Network)
	r.emit(Event{Kind: kind, Delegation: delegation})
}

// usablePrefixes extracts the advertisement's on-link, still-valid
// prefixes, global-unicast ranges sorted ahead of ULAs.
func usablePrefixes(ra *ndp.RouterAdvertisement) []Delegated {
	var out []Delegated
	for _, opt := range ra.Options {
		pi, ok := opt.(*ndp.PrefixInformation)
		if !ok {
			continue
		}
		// Autonomous only controls SLAAC; ISPs running stateful DHCPv6
		// advertise usable prefixes with autonomous=false, so only the
		// on-link flag and a nonzero lifetime gate here.
		if !pi.OnLink || pi.ValidLifetime == 0 {
			continue
		}
		if addrScope(pi.Prefix) == scopeOther {
			continue
		}
		out = append(out, Delegated{
			Network:           netip.PrefixFrom(pi.Prefix, int(pi.PrefixLength)).Masked(),
			ValidLifetime:     pi.ValidLifetime,
			PreferredLifetime: pi.PreferredLifetime,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return addrScope(out[i].Network.Addr()) < addrScope(out[j].Network.Addr())
	})
	return out
}

type scope int

const (
	scopeGlobal scope = iota
	scopeULA
	scopeOther
)

// addrScope classifies an address for preference ordering: global
// unicast (2000::/3) over unique-local (fc00::/7) over everything else.
func addrScope(addr netip.Addr) scope {
	if !addr.Is6() {
		return scopeOther
	}
	switch b := addr.As16()[0]; {
	case b&0xE0 == 0x20:
		return scopeGlobal
	case b&0xFE == 0xFC:
		return scopeULA
	default:
		return scopeOther
	}
}
