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
	"time"

	"github.com/insomniacslk/dhcp/dhcpv6"
	"github.com/insomniacslk/dhcp/dhcpv6/nclient6"
	"github.com/insomniacslk/dhcp/iana"
)

// exchangeTimeout bounds one SOLICIT/REQUEST/RENEW/REBIND round trip.
const exchangeTimeout = 30 * time.Second

// reacquireInterval is how long to wait before retrying after a failed
// acquisition while no lease is held.
const reacquireInterval = 10 * time.Second

// DHCPv6PDReceiver is a DHCPv6 Prefix Delegation client. It requests an
// IA_PD from the upstream delegating router, tracks every delegated
// prefix the reply carries, and drives renew/rebind per RFC 8415 timing.
type DHCPv6PDReceiver struct {
	receiverState

	iface      string
	hintLength int
	lease      *pdLease
}

// pdLease is the live IA_PD binding.
type pdLease struct {
	iaid       [4]byte
	serverID   dhcpv6.DUID
	t1, t2     time.Duration
	receivedAt time.Time
	prefixes   []Delegated
}

// valid reports the shortest valid lifetime across the lease's prefixes.
func (l *pdLease) valid() time.Duration {
	var shortest time.Duration
	for _, p := range l.prefixes {
		if shortest == 0 || (p.ValidLifetime > 0 && p.ValidLifetime < shortest) {
			shortest = p.ValidLifetime
		}
	}
	return shortest
}

// NewDHCPv6PDReceiver creates a DHCPv6-PD receiver bound to iface.
// hintLength is the prefix-length hint sent to the server; zero picks the
// customary /56.
func NewDHCPv6PDReceiver(iface string, hintLength int) *DHCPv6PDReceiver {
	if hintLength == 0 {
		hintLength = 56
	}
	r := &DHCPv6PDReceiver{iface: iface, hintLength: hintLength}
	r.receiverState.init()
	return r
}

// Start launches the acquisition and renewal loop.
func (r *DHCPv6PDReceiver) Start(ctx context.Context) error {
	if !r.begin(ctx) {
		return nil
	}
	go r.run()
	return nil
}

// Stop ends the client loop.
func (r *DHCPv6PDReceiver) Stop() error {
	r.end()
	return nil
}

// Source returns SourceDHCPv6PD.
func (r *DHCPv6PDReceiver) Source() Source { return SourceDHCPv6PD }

// run acquires a lease and then keeps it renewed until stopped.
func (r *DHCPv6PDReceiver) run() {
	if err := r.solicit(); err != nil {
		r.fail(fmt.Errorf("initial delegation failed: %w", err))
	}

	for {
		r.mu.RLock()
		lease := r.lease
		r.mu.RUnlock()

		if lease == nil {
			if !r.sleep(reacquireInterval) {
				return
			}
			if err := r.solicit(); err != nil {
				r.fail(fmt.Errorf("delegation failed: %w", err))
			}
			continue
		}

		elapsed := time.Since(lease.receivedAt)
		if elapsed < lease.t1 {
			wait := lease.t1 - elapsed
			if wait > time.Minute {
				wait = time.Minute
			}
			if !r.sleep(wait) {
				return
			}
			continue
		}

		// Past T1: renew with the binding server; past T2, fall back to
		// any server via rebind; past the valid lifetime, start over.
		if err := r.renew(lease); err == nil {
			continue
		} else if elapsed < lease.t2 {
			r.fail(fmt.Errorf("renew failed: %w", err))
			if !r.sleep(reacquireInterval) {
				return
			}
			continue
		}

		if err := r.rebind(lease); err != nil {
			r.fail(fmt.Errorf("rebind failed: %w", err))
			if elapsed >= lease.valid() {
				r.mu.Lock()
				r.lease = nil
				r.delegation = nil
				r.mu.Unlock()
				r.emit(Event{Kind: EventExpired})
			} else if !r.sleep(reacquireInterval) {
				return
			}
		}
	}
}

// solicit runs the four-message SOLICIT/ADVERTISE/REQUEST/REPLY exchange.
func (r *DHCPv6PDReceiver) solicit() error {
	ifi, client, err := r.dial()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	iaid := iaidFor(ifi)
	solicit, err := dhcpv6.NewSolicit(ifi.HardwareAddr,
		dhcpv6.WithClientID(duidFor(ifi)),
		dhcpv6.WithRequestedOptions(dhcpv6.OptionDNSRecursiveNameServer),
	)
	if err != nil {
		return fmt.Errorf("building SOLICIT: %w", err)
	}
	solicit.AddOption(r.iapd(iaid, nil))

	ctx, cancel := context.WithTimeout(r.ctx, exchangeTimeout)
	defer cancel()

	advertise, err := client.SendAndRead(ctx, nclient6.AllDHCPRelayAgentsAndServers, solicit,
		nclient6.IsMessageType(dhcpv6.MessageTypeAdvertise))
	if err != nil {
		return fmt.Errorf("waiting for ADVERTISE: %w", err)
	}
	if advertise.GetOneOption(dhcpv6.OptionIAPD) == nil {
		return fmt.Errorf("ADVERTISE carries no IA_PD")
	}
	serverID := advertise.Options.ServerID()
	if serverID == nil {
		return fmt.Errorf("ADVERTISE carries no server ID")
	}

	request, err := dhcpv6.NewRequestFromAdvertise(advertise)
	if err != nil {
		return fmt.Errorf("building REQUEST: %w", err)
	}
	reply, err := client.SendAndRead(ctx, nclient6.AllDHCPRelayAgentsAndServers, request,
		nclient6.IsMessageType(dhcpv6.MessageTypeReply))
	if err != nil {
		return fmt.Errorf("waiting for REPLY: %w", err)
	}
	return r.commitReply(reply, iaid, serverID)
}

// renew extends the current binding with the server that granted it.
func (r *DHCPv6PDReceiver) renew(lease *pdLease) error {
	return r.refresh(lease, dhcpv6.MessageTypeRenew, lease.serverID)
}

// rebind asks any server on the link to take over an expiring binding.
func (r *DHCPv6PDReceiver) rebind(lease *pdLease) error {
	return r.refresh(lease, dhcpv6.MessageTypeRebind, nil)
}

// refresh is the shared RENEW/REBIND round trip.
func (r *DHCPv6PDReceiver) refresh(lease *pdLease, msgType dhcpv6.MessageType, serverID dhcpv6.DUID) error {
	ifi, client, err := r.dial()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	msg, err := dhcpv6.NewMessage()
	if err != nil {
		return fmt.Errorf("building %s: %w", msgType, err)
	}
	msg.MessageType = msgType
	msg.AddOption(dhcpv6.OptClientID(duidFor(ifi)))
	if serverID != nil {
		msg.AddOption(dhcpv6.OptServerID(serverID))
	}
	msg.AddOption(r.iapd(lease.iaid, lease.prefixes))

	ctx, cancel := context.WithTimeout(r.ctx, exchangeTimeout)
	defer cancel()

	reply, err := client.SendAndRead(ctx, nclient6.AllDHCPRelayAgentsAndServers, msg,
		nclient6.IsMessageType(dhcpv6.MessageTypeReply))
	if err != nil {
		return fmt.Errorf("waiting for REPLY to %s: %w", msgType, err)
	}

	replyServer := serverID
	if replyServer == nil {
		if replyServer = reply.Options.ServerID(); replyServer == nil {
			return fmt.Errorf("REPLY carries no server ID")
		}
	}
	return r.commitReply(reply, lease.iaid, replyServer)
}

// commitReply installs the lease a REPLY grants and emits the matching
// lifecycle event.
func (r *DHCPv6PDReceiver) commitReply(reply *dhcpv6.Message, iaid [4]byte, serverID dhcpv6.DUID) error {
	lease, err := leaseFromReply(reply, iaid, serverID)
	if err != nil {
		return err
	}

	delegation := &Delegation{
		Prefixes:   lease.prefixes,
		Source:     SourceDHCPv6PD,
		ReceivedAt: lease.receivedAt,
	}

	r.mu.Lock()
	previous := r.delegation
	r.delegation = delegation
	r.lease = lease
	r.mu.Unlock()

	kind := EventRenewed
	switch {
	case previous == nil:
		kind = EventAcquired
	case !previous.SameNetworks(delegation):
		kind = EventChanged
	}
	r.emit(Event{Kind: kind, Delegation: delegation})
	return nil
}

// leaseFromReply extracts every still-valid delegated prefix from the
// REPLY's matching IA_PD.
func leaseFromReply(reply *dhcpv6.Message, iaid [4]byte, serverID dhcpv6.DUID) (*pdLease, error) {
	var iapd *dhcpv6.OptIAPD
	for _, opt := range reply.Options.Get(dhcpv6.OptionIAPD) {
		if pd := opt.(*dhcpv6.OptIAPD); pd.IaId == iaid {
			iapd = pd
			break
		}
	}
	if iapd == nil {
		return nil, fmt.Errorf("REPLY carries no matching IA_PD")
	}
	if status := iapd.Options.Status(); status != nil && status.StatusCode != iana.StatusSuccess {
		return nil, fmt.Errorf("IA_PD refused: %s (%s)", status.StatusCode, status.StatusMessage)
	}

	var delegated []Delegated
	for _, p := range iapd.Options.Prefixes() {
		if p.ValidLifetime == 0 {
			continue
		}
		addr, ok := netip.AddrFromSlice(p.Prefix.IP)
		if !ok {
			return nil, fmt.Errorf("IA_PD prefix %v is not an address", p.Prefix.IP)
		}
		ones, _ := p.Prefix.Mask.Size()
		delegated = append(delegated, Delegated{
			Network:           netip.PrefixFrom(addr, ones).Masked(),
			ValidLifetime:     p.ValidLifetime,
			PreferredLifetime: p.PreferredLifetime,
		})
	}
	if len(delegated) == 0 {
		return nil, fmt.Errorf("IA_PD carries no valid prefix")
	}

	lease := &pdLease{
		iaid:       iaid,
		serverID:   serverID,
		t1:         iapd.T1,
		t2:         iapd.T2,
		receivedAt: time.Now(),
		prefixes:   delegated,
	}
	// Servers may leave T1/T2 to the client; 50%/80% of the shortest
	// valid lifetime are the usual choices.
	if lease.t1 == 0 {
		lease.t1 = lease.valid() / 2
	}
	if lease.t2 == 0 {
		lease.t2 = lease.valid() * 4 / 5
	}
	return lease, nil
}

// iapd builds the IA_PD option: the current binding's prefixes on a
// refresh, or a bare length hint on first solicit.
func (r *DHCPv6PDReceiver) iapd(iaid [4]byte, bound []Delegated) *dhcpv6.OptIAPD {
	var opts dhcpv6.Options
	if len(bound) == 0 {
		opts = append(opts, &dhcpv6.OptIAPrefix{
			Prefix: &net.IPNet{IP: net.IPv6zero, Mask: net.CIDRMask(r.hintLength, 128)},
		})
	}
	for _, p := range bound {
		opts = append(opts, &dhcpv6.OptIAPrefix{
			PreferredLifetime: p.PreferredLifetime,
			ValidLifetime:     p.ValidLifetime,
			Prefix: &net.IPNet{
				IP:   p.Network.Addr().AsSlice(),
				Mask: net.CIDRMask(p.Network.Bits(), 128),
			},
		})
	}
	return &dhcpv6.OptIAPD{IaId: iaid, Options: dhcpv6.PDOptions{Options: opts}}
}

// dial resolves the interface and opens a DHCPv6 client on it.
func (r *DHCPv6PDReceiver) dial() (*net.Interface, *nclient6.Client, error) {
	ifi, err := net.InterfaceByName(r.iface)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving interface %s: %w", r.iface, err)
	}
	client, err := nclient6.New(r.iface)
	if err != nil {
		return nil, nil, fmt.Errorf("opening DHCPv6 client on %s: %w", r.iface, err)
	}
	return ifi, client, nil
}

// iaidFor derives a stable IAID from the interface index.
func iaidFor(ifi *net.Interface) [4]byte {
	return [4]byte{
		byte(ifi.Index >> 24),
		byte(ifi.Index >> 16),
		byte(ifi.Index >> 8),
		byte(ifi.Index),
	}
}

// duidFor builds a DUID-LL from the interface's hardware address.
func duidFor(ifi *net.Interface) dhcpv6.DUID {
	return &dhcpv6.DUIDLL{HWType: iana.HWTypeEthernet, LinkLayerAddr: ifi.HardwareAddr}
}
