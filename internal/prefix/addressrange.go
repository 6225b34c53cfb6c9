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

// AddressRangeConfig defines an address range inside a delegated prefix
// by its start and end suffixes.
type AddressRangeConfig struct {
	// Name identifies this address range.
	Name string

	// Start is the start offset suffix (e.g. "::f000:0:0:0").
	Start string

	// End is the end offset suffix (e.g. "::ffff:ffff:ffff:ffff").
	End string
}

// AddressRange is a resolved range.
type AddressRange struct {
	Name  string
	Start netip.Addr
	End   netip.Addr
}

// CalculateAddressRanges resolves every configured range against
// basePrefix.
func CalculateAddressRanges(basePrefix netip.Prefix, configs []AddressRangeConfig) ([]AddressRange, error) {
	if !basePrefix.Addr().Is6() {
		return nil, fmt.Errorf("address ranges only supported for IPv6 prefixes")
	}
	results := make([]AddressRange, 0, len(configs))
	for _, cfg := range configs {
		ar, err := CalculateAddressRange(basePrefix, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to calculate address range %q: %w", cfg.Name, err)
		}
		results = append(results, ar)
	}
	return results, nil
}

// CalculateAddressRange resolves one range against basePrefix.
func CalculateAddressRange(basePrefix netip.Prefix, cfg AddressRangeConfig) (AddressRange, error) {
	start, err := graftSuffix(basePrefix, cfg.Start)
	if err != nil {
		return AddressRange{}, fmt.Errorf("invalid start offset %q: %w", cfg.Start, err)
	}
	end, err := graftSuffix(basePrefix, cfg.End)
	if err != nil {
		return AddressRange{}, fmt.Errorf("invalid end offset %q: %w", cfg.End, err)
	}

	if start.Compare(end) > 0 {
		return AddressRange{}, fmt.Errorf("start address %s is greater than end address %s", start, end)
	}
	if !basePrefix.Contains(start) {
		return AddressRange{}, fmt.Errorf("start address %s is outside prefix %s", start, basePrefix)
	}
	if !basePrefix.Contains(end) {
		return AddressRange{}, fmt.Errorf("end address %s is outside prefix %s", end, basePrefix)
	}

	return AddressRange{Name: cfg.Name, Start: start, End: end}, nil
}

// graftSuffix combines basePrefix's network bits with the host bits of a
// textual suffix like "::f000:0:0:0".
func graftSuffix(basePrefix netip.Prefix, suffix string) (netip.Addr, error) {
	suffixAddr, err := netip.ParseAddr(suffix)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("invalid suffix address: %w", err)
	}
	if !suffixAddr.Is6() {
		return netip.Addr{}, fmt.Errorf("suffix must be an IPv6 address")
	}

	base := basePrefix.Masked().Addr().As16()
	host := suffixAddr.As16()

	// Byte by byte: network bits come from the base, host bits from the
	// suffix, split mid-byte where the prefix length demands it.
	var out [16]byte
	remaining := basePrefix.Bits()
	for i := range out {
		switch {
		case remaining >= 8:
			out[i] = base[i]
			remaining -= 8
		case remaining > 0:
			mask := byte(0xFF) << (8 - remaining)
			out[i] = base[i]&mask | host[i]&^mask
			remaining = 0
		default:
			out[i] = host[i]
		}
	}
	return netip.AddrFrom16(out), nil
}

// RangeToCIDR returns the smallest CIDR containing the whole range.
func RangeToCIDR(start, end netip.Addr) netip.Prefix {
	s, e := start.As16(), end.As16()

	common := 0
	for i := range s {
		if s[i] == e[i] {
			common += 8
			continue
		}
		common += bits.LeadingZeros8(s[i] ^ e[i])
		break
	}

	prefix, _ := start.Prefix(common)
	return prefix.Masked()
}

// AddressCount returns the number of addresses in the range, or 0 when
// the count does not fit in a uint64 (2^64 addresses or more).
func AddressCount(start, end netip.Addr) uint64 {
	s, e := start.As16(), end.As16()
	lo, borrow := bits.Sub64(binary.BigEndian.Uint64(e[8:]), binary.BigEndian.Uint64(s[8:]), 0)
	hi, _ := bits.Sub64(binary.BigEndian.Uint64(e[:8]), binary.BigEndian.Uint64(s[:8]), borrow)
	if hi != 0 || lo == ^uint64(0) {
		return 0
	}
	return lo + 1
}
