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
	"testing"
)

func TestCreateReceiver(t *testing.T) {
	factory := NewReceiverFactory()

	dhcpOnly := AcquisitionSpec{DHCPv6PD: &DHCPv6PDSpec{Interface: "eth0"}}
	raOnly := AcquisitionSpec{RouterAdvertisement: &RouterAdvertisementSpec{Interface: "eth0", Enabled: true}}
	both := AcquisitionSpec{DHCPv6PD: dhcpOnly.DHCPv6PD, RouterAdvertisement: raOnly.RouterAdvertisement}
	raDisabled := AcquisitionSpec{
		DHCPv6PD:            dhcpOnly.DHCPv6PD,
		RouterAdvertisement: &RouterAdvertisementSpec{Interface: "eth0"},
	}

	tests := []struct {
		name       string
		spec       AcquisitionSpec
		wantSource Source
		wantErr    bool
	}{
		{name: "DHCPv6-PD only", spec: dhcpOnly, wantSource: SourceDHCPv6PD},
		{name: "RA only", spec: raOnly, wantSource: SourceRouterAdvertisement},
		{name: "both composes, DHCPv6-PD primary", spec: both, wantSource: SourceDHCPv6PD},
		{name: "RA disabled leaves DHCPv6-PD alone", spec: raDisabled, wantSource: SourceDHCPv6PD},
		{name: "nothing configured", spec: AcquisitionSpec{}, wantErr: true},
		{name: "DHCPv6-PD needs an interface", spec: AcquisitionSpec{DHCPv6PD: &DHCPv6PDSpec{}}, wantErr: true},
		{
			name:    "RA needs an interface",
			spec:    AcquisitionSpec{RouterAdvertisement: &RouterAdvertisementSpec{Enabled: true}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			receiver, err := factory.CreateReceiver(tt.spec)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("CreateReceiver() expected error, got %T", receiver)
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateReceiver() error: %v", err)
			}
			if got := receiver.Source(); got != tt.wantSource {
				t.Errorf("Source() = %v, want %v", got, tt.wantSource)
			}
		})
	}

	// Both configured yields the composite wrapper specifically.
	receiver, err := factory.CreateReceiver(both)
	if err != nil {
		t.Fatalf("CreateReceiver(both) error: %v", err)
	}
	if _, ok := receiver.(*CompositeReceiver); !ok {
		t.Errorf("CreateReceiver(both) = %T, want *CompositeReceiver", receiver)
	}
}

func TestCreateReceiverPrefixLengthHint(t *testing.T) {
	factory := NewReceiverFactory()

	tests := []struct {
		name string
		hint *int
		want int
	}{
		{name: "nil hint defaults to /56", hint: nil, want: 56},
		{name: "explicit /48", hint: intPtr(48), want: 48},
		{name: "explicit /60", hint: intPtr(60), want: 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			receiver, err := factory.CreateReceiver(AcquisitionSpec{
				DHCPv6PD: &DHCPv6PDSpec{Interface: "eth0", RequestedPrefixLength: tt.hint},
			})
			if err != nil {
				t.Fatalf("CreateReceiver() error: %v", err)
			}
			pd, ok := receiver.(*DHCPv6PDReceiver)
			if !ok {
				t.Fatalf("CreateReceiver() = %T, want *DHCPv6PDReceiver", receiver)
			}
			if pd.hintLength != tt.want {
				t.Errorf("hintLength = %d, want %d", pd.hintLength, tt.want)
			}
		})
	}
}

func intPtr(i int) *int { return &i }
