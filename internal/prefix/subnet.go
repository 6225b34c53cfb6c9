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
	"encoding/binary"
	"fmt"
	"math/bits"
	"net/netip"
)

// SubnetConfig selects one subnet to carve out of a delegated prefix.
type SubnetConfig struct {
	// Name identifies the subnet.
	Name string

	// Offset is the ordinal of the subnet within the base: with a /48
	// base and /64 target, offset 0 is the first /64, offset 1 the
	// second, and so on.
	Offset int64

	// PrefixLength is the desired length of the carved subnet.
	PrefixLength int
}

// Subnet is a carved subnet.
type Subnet struct {
	Name string
	CIDR netip.Prefix
}

// CalculateSubnets carves every configured subnet out of basePrefix.
func CalculateSubnets(basePrefix netip.Prefix, configs []SubnetConfig) ([]Subnet, error) {
	if !basePrefix.Addr().Is6() {
		return nil, fmt.Errorf("base prefix must be IPv6: %s", basePrefix)
	}
	subnets := make([]Subnet, 0, len(configs))
	for _, cfg := range configs {
		subnet, err := CalculateSubnet(basePrefix, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to calculate subnet %q: %w", cfg.Name, err)
		}
		subnets = append(subnets, subnet)
	}
	return subnets, nil
}

// CalculateSubnet carves the cfg.Offset-th cfg.PrefixLength-sized subnet
// out of basePrefix.
func CalculateSubnet(basePrefix netip.Prefix, cfg SubnetConfig) (Subnet, error) {
	if cfg.PrefixLength < basePrefix.Bits() {
		return Subnet{}, fmt.Errorf(
			"subnet prefix length %d is shorter than base prefix length %d",
			cfg.PrefixLength, basePrefix.Bits())
	}
	if cfg.PrefixLength > 128 {
		return Subnet{}, fmt.Errorf("subnet prefix length %d exceeds 128", cfg.PrefixLength)
	}
	if cfg.Offset < 0 {
		return Subnet{}, fmt.Errorf("subnet offset %d is negative", cfg.Offset)
	}

	addr := addAtBit(basePrefix.Masked().Addr(), uint64(cfg.Offset), cfg.PrefixLength)
	subnetPrefix, err := addr.Prefix(cfg.PrefixLength)
	if err != nil {
		return Subnet{}, fmt.Errorf("failed to create subnet prefix: %w", err)
	}
	return Subnet{Name: cfg.Name, CIDR: subnetPrefix}, nil
}

// addAtBit adds ordinal units of size 2^(128-bitPos) to addr, treating
// the address as one 128-bit integer split across two uint64 halves.
func addAtBit(addr netip.Addr, ordinal uint64, bitPos int) netip.Addr {
	b := addr.As16()
	hi := binary.BigEndian.Uint64(b[:8])
	lo := binary.BigEndian.Uint64(b[8:])

	shift := uint(128 - bitPos)
	var addHi, addLo uint64
	switch {
	case shift >= 128:
		// Adding multiples of 2^128 wraps to zero.
	case shift >= 64:
		addHi = ordinal << (shift - 64)
	default:
		addLo = ordinal << shift
		addHi = ordinal >> (64 - shift)
	}

	var carry uint64
	lo, carry = bits.Add64(lo, addLo, 0)
	hi, _ = bits.Add64(hi, addHi, carry)

	binary.BigEndian.PutUint64(b[:8], hi)
	binary.BigEndian.PutUint64(b[8:], lo)
	return netip.AddrFrom16(b)
}

// ValidateSubnetFitsInPrefix checks that cfg's subnet lands inside
// basePrefix rather than overflowing past its end.
func ValidateSubnetFitsInPrefix(basePrefix netip.Prefix, cfg SubnetConfig) error {
	subnet, err := CalculateSubnet(basePrefix, cfg)
	if err != nil {
		return err
	}
	if !basePrefix.Contains(subnet.CIDR.Addr()) {
		return fmt.Errorf("subnet %s (%s) is outside base prefix %s",
			cfg.Name, subnet.CIDR, basePrefix)
	}
	return nil
}

// ParsePrefix parses a CIDR string, normalized to the network address.
func ParsePrefix(cidr string) (netip.Prefix, error) {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid CIDR %q: %w", cidr, err)
	}
	return prefix.Masked(), nil
}
