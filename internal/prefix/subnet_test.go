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
	"net/netip"
	"testing"
)

func TestCalculateSubnet(t *testing.T) {
	tests := []struct {
		name       string
		basePrefix string
		config     SubnetConfig
		wantCIDR   string
		wantErr    bool
	}{
		{
			name:       "first /64 from /48",
			basePrefix: "2001:db8::/48",
			config:     SubnetConfig{Name: "default", Offset: 0, PrefixLength: 64},
			wantCIDR:   "2001:db8::/64",
		},
		{
			name:       "second /64 from /48",
			basePrefix: "2001:db8::/48",
			config:     SubnetConfig{Name: "second", Offset: 1, PrefixLength: 64},
			wantCIDR:   "2001:db8:0:1::/64",
		},
		{
			name:       "256th /64 from /48",
			basePrefix: "2001:db8::/48",
			config:     SubnetConfig{Name: "services", Offset: 256, PrefixLength: 64},
			wantCIDR:   "2001:db8:0:100::/64",
		},
		{
			name:       "first /64 from /56",
			basePrefix: "2001:db8:1:100::/56",
			config:     SubnetConfig{Name: "lan", Offset: 0, PrefixLength: 64},
			wantCIDR:   "2001:db8:1:100::/64",
		},
		{
			name:       "/72 from /64 stays in the low uint64 half",
			basePrefix: "2001:db8:0:1::/64",
			config:     SubnetConfig{Name: "tiny", Offset: 3, PrefixLength: 72},
			wantCIDR:   "2001:db8:0:1:300::/72",
		},
		{
			name:       "/80 subnet deep offset",
			basePrefix: "2001:db8::/64",
			config:     SubnetConfig{Name: "deep", Offset: 65535, PrefixLength: 80},
			wantCIDR:   "2001:db8:0:0:ffff::/80",
		},
		{
			name:       "same length as base",
			basePrefix: "2001:db8::/64",
			config:     SubnetConfig{Name: "whole", Offset: 0, PrefixLength: 64},
			wantCIDR:   "2001:db8::/64",
		},
		{
			name:       "shorter than base fails",
			basePrefix: "2001:db8::/48",
			config:     SubnetConfig{Name: "bad", Offset: 0, PrefixLength: 32},
			wantErr:    true,
		},
		{
			name:       "length beyond 128 fails",
			basePrefix: "2001:db8::/48",
			config:     SubnetConfig{Name: "bad", Offset: 0, PrefixLength: 129},
			wantErr:    true,
		},
		{
			name:       "negative offset fails",
			basePrefix: "2001:db8::/48",
			config:     SubnetConfig{Name: "bad", Offset: -1, PrefixLength: 64},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := netip.MustParsePrefix(tt.basePrefix)
			got, err := CalculateSubnet(base, tt.config)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("CalculateSubnet() expected error, got %v", got.CIDR)
				}
				return
			}
			if err != nil {
				t.Fatalf("CalculateSubnet() error: %v", err)
			}
			if got.CIDR != netip.MustParsePrefix(tt.wantCIDR) {
				t.Errorf("CalculateSubnet() = %v, want %v", got.CIDR, tt.wantCIDR)
			}
			if got.Name != tt.config.Name {
				t.Errorf("CalculateSubnet() name = %q, want %q", got.Name, tt.config.Name)
			}
		})
	}
}

func TestCalculateSubnets(t *testing.T) {
	base := netip.MustParsePrefix("2001:db8::/48")
	configs := []SubnetConfig{
		{Name: "lan", Offset: 0, PrefixLength: 64},
		{Name: "guest", Offset: 1, PrefixLength: 64},
		{Name: "iot", Offset: 16, PrefixLength: 64},
	}

	subnets, err := CalculateSubnets(base, configs)
	if err != nil {
		t.Fatalf("CalculateSubnets() error: %v", err)
	}
	if len(subnets) != 3 {
		t.Fatalf("CalculateSubnets() returned %d subnets, want 3", len(subnets))
	}

	want := []string{"2001:db8::/64", "2001:db8:0:1::/64", "2001:db8:0:10::/64"}
	for i, s := range subnets {
		if s.CIDR != netip.MustParsePrefix(want[i]) {
			t.Errorf("subnet %q = %v, want %v", s.Name, s.CIDR, want[i])
		}
	}
}

func TestCalculateSubnets_FailsOnAnyBadConfig(t *testing.T) {
	base := netip.MustParsePrefix("2001:db8::/48")
	configs := []SubnetConfig{
		{Name: "ok", Offset: 0, PrefixLength: 64},
		{Name: "bad", Offset: 0, PrefixLength: 8},
	}
	if _, err := CalculateSubnets(base, configs); err == nil {
		t.Fatal("CalculateSubnets() expected error for bad config")
	}
}

func TestCalculateSubnets_IPv4Error(t *testing.T) {
	base := netip.MustParsePrefix("192.0.2.0/24")
	if _, err := CalculateSubnets(base, []SubnetConfig{{Name: "x", PrefixLength: 28}}); err == nil {
		t.Fatal("CalculateSubnets() expected error for IPv4 base")
	}
}

func TestValidateSubnetFitsInPrefix(t *testing.T) {
	base := netip.MustParsePrefix("2001:db8::/48")

	if err := ValidateSubnetFitsInPrefix(base, SubnetConfig{Name: "in", Offset: 65535, PrefixLength: 64}); err != nil {
		t.Errorf("last /64 should fit: %v", err)
	}
	// Offset 65536 of a /64 is one past the /48's end.
	if err := ValidateSubnetFitsInPrefix(base, SubnetConfig{Name: "out", Offset: 65536, PrefixLength: 64}); err == nil {
		t.Error("offset past the base prefix should not fit")
	}
}

func TestParsePrefix(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "2001:db8::/56", want: "2001:db8::/56"},
		{in: "2001:db8::1:0:0:1/64", want: "2001:db8::/64"},
		{in: "192.0.2.17/24", want: "192.0.2.0/24"},
		{in: "not-a-prefix", wantErr: true},
		{in: "2001:db8::", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParsePrefix(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParsePrefix(%q) expected error, got %v", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParsePrefix(%q) error: %v", tt.in, err)
			continue
		}
		if got != netip.MustParsePrefix(tt.want) {
			t.Errorf("ParsePrefix(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAddAtBit_CarryAcrossHalves(t *testing.T) {
	// Adding one /68 unit to an address with the low half all ones must
	// carry into the high half.
	addr := netip.MustParseAddr("2001:db8:0:0:ffff:ffff:ffff:ffff")
	got := addAtBit(addr, 1, 68)
	want := netip.MustParseAddr("2001:db8:0:1:0fff:ffff:ffff:ffff")
	if got != want {
		t.Errorf("addAtBit() = %v, want %v", got, want)
	}
}
