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

package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// DelegatedPrefixSpec defines the desired state of DelegatedPrefix: how
// the delegated prefix is populated, and how it should be carved up for
// downstream consumers.
type DelegatedPrefixSpec struct {
	// Acquisition configures how to receive the delegated prefix from
	// upstream. Mutually exclusive with Static.
	// +optional
	Acquisition *AcquisitionSpec `json:"acquisition,omitempty"`

	// Static pins the delegated prefix to a fixed CIDR instead of
	// receiving it dynamically. Mutually exclusive with Acquisition.
	// +optional
	Static string `json:"static,omitempty"`

	// AddressRanges defines address ranges within the delegated prefix.
	// Use this for Mode 1 (recommended): reserve a range within your /64
	// that the router's DHCPv6/SLAAC won't hand out. No BGP required.
	// +optional
	AddressRanges []AddressRangeSpec `json:"addressRanges,omitempty"`

	// Subnets defines how to subdivide the delegated prefix into smaller
	// subnets. Use this for Mode 2 (advanced): carve out dedicated /64s
	// from a larger prefix. Requires BGP to announce the subnets.
	// +optional
	Subnets []SubnetSpec `json:"subnets,omitempty"`

	// Transition defines graceful transition settings when the prefix changes.
	// +optional
	Transition *TransitionSpec `json:"transition,omitempty"`
}

// AcquisitionSpec defines how to acquire/receive the delegated prefix.
type AcquisitionSpec struct {
	// DHCPv6PD configures DHCPv6 Prefix Delegation to receive the prefix
	// from an upstream router.
	// +optional
	DHCPv6PD *DHCPv6PDSpec `json:"dhcpv6pd,omitempty"`

	// RouterAdvertisement configures Router Advertisement monitoring as
	// a fallback acquisition method.
	// +optional
	RouterAdvertisement *RouterAdvertisementSpec `json:"routerAdvertisement,omitempty"`
}

// DHCPv6PDSpec configures the DHCPv6 Prefix Delegation client.
type DHCPv6PDSpec struct {
	// Interface is the network interface to receive the delegated prefix on.
	// +required
	// +kubebuilder:validation:MinLength=1
	Interface string `json:"interface"`

	// RequestedPrefixLength hints the desired prefix length to request.
	// +optional
	// +kubebuilder:validation:Minimum=48
	// +kubebuilder:validation:Maximum=64
	RequestedPrefixLength *int `json:"requestedPrefixLength,omitempty"`
}

// RouterAdvertisementSpec configures Router Advertisement monitoring.
type RouterAdvertisementSpec struct {
	// Interface is the network interface to monitor for Router Advertisements.
	// +optional
	Interface string `json:"interface,omitempty"`

	// Enabled controls whether RA monitoring is active.
	// +optional
	// +kubebuilder:default=true
	Enabled bool `json:"enabled,omitempty"`
}

// AddressRangeSpec defines an address range within the delegated prefix.
type AddressRangeSpec struct {
	// +required
	// +kubebuilder:validation:MinLength=1
	// +kubebuilder:validation:MaxLength=63
	// +kubebuilder:validation:Pattern=`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`
	Name string `json:"name"`

	// Start is the start of the range, specified as a suffix to the prefix.
	// +required
	Start string `json:"start"`

	// End is the end of the range (inclusive), specified as a suffix.
	// +required
	End string `json:"end"`
}

// SubnetSpec defines a subnet to be carved out of the delegated prefix.
type SubnetSpec struct {
	// +required
	// +kubebuilder:validation:MinLength=1
	// +kubebuilder:validation:MaxLength=63
	// +kubebuilder:validation:Pattern=`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`
	Name string `json:"name"`

	// Offset selects which Nth subnet of PrefixLength to carve out.
	// +optional
	// +kubebuilder:default=0
	Offset int64 `json:"offset,omitempty"`

	// PrefixLength is the prefix length of the subnet (e.g., 64 for a /64).
	// +required
	// +kubebuilder:validation:Minimum=48
	// +kubebuilder:validation:Maximum=128
	PrefixLength int `json:"prefixLength"`

	// BGP, when set, requests that this subnet be advertised via BGP by
	// BGPSyncReconciler.
	// +optional
	BGP *SubnetBGPSpec `json:"bgp,omitempty"`
}

// SubnetBGPSpec controls BGP advertisement of a subnet.
type SubnetBGPSpec struct {
	// Advertise enables CiliumBGPAdvertisement reconciliation for this subnet.
	// +optional
	Advertise bool `json:"advertise,omitempty"`
}

// TransitionMode defines the transition behavior mode.
type TransitionMode string

const (
	// TransitionModeSimple keeps multiple blocks in pool; Services keep old IPs until the block is removed.
	TransitionModeSimple TransitionMode = "simple"

	// TransitionModeHA keeps both old and new IPs on Service, with DNS pointing to the new IP only.
	TransitionModeHA TransitionMode = "ha"
)

// TransitionSpec defines settings for graceful prefix transitions.
type TransitionSpec struct {
	// +optional
	// +kubebuilder:validation:Enum=simple;ha
	// +kubebuilder:default=simple
	Mode TransitionMode `json:"mode,omitempty"`

	// MaxPrefixHistory is the maximum number of previous prefixes retained.
	// +optional
	// +kubebuilder:default=2
	// +kubebuilder:validation:Minimum=1
	// +kubebuilder:validation:Maximum=10
	MaxPrefixHistory int `json:"maxPrefixHistory,omitempty"`
}

// DelegatedPrefixStatus defines the observed state of DelegatedPrefix.
type DelegatedPrefixStatus struct {
	// CurrentPrefix is the most-preferred delegated prefix.
	// +optional
	CurrentPrefix string `json:"currentPrefix,omitempty"`

	// DelegatedPrefixes lists every prefix the upstream delegated in the
	// current lease, most-preferred first. A DHCPv6 IA_PD may carry more
	// than one.
	// +optional
	DelegatedPrefixes []string `json:"delegatedPrefixes,omitempty"`

	// +optional
	PrefixSource PrefixSource `json:"prefixSource,omitempty"`

	// +optional
	LeaseExpiresAt *metav1.Time `json:"leaseExpiresAt,omitempty"`

	// +optional
	AddressRanges []AddressRangeStatus `json:"addressRanges,omitempty"`

	// +optional
	Subnets []SubnetStatus `json:"subnets,omitempty"`

	// +optional
	History []PrefixHistoryEntry `json:"history,omitempty"`

	// +listType=map
	// +listMapKey=type
	// +optional
	Conditions []metav1.Condition `json:"conditions,omitempty"`
}

// PrefixSource indicates how a prefix was obtained.
// +kubebuilder:validation:Enum=dhcpv6-pd;router-advertisement;static;unknown
type PrefixSource string

const (
	PrefixSourceDHCPv6PD            PrefixSource = "dhcpv6-pd"
	PrefixSourceRouterAdvertisement PrefixSource = "router-advertisement"
	PrefixSourceStatic              PrefixSource = "static"
	PrefixSourceUnknown             PrefixSource = "unknown"
)

// AddressRangeStatus represents the current state of an address range.
type AddressRangeStatus struct {
	Name  string `json:"name"`
	Start string `json:"start"`
	End   string `json:"end"`
	// CIDR is an approximate CIDR representation for compatibility; for
	// Cilium pools, prefer Start/End for precise range definition.
	CIDR string `json:"cidr,omitempty"`
}

// SubnetStatus represents the current state of a subnet.
type SubnetStatus struct {
	Name string `json:"name"`
	CIDR string `json:"cidr"`
}

// PrefixHistoryEntry represents a historical prefix.
type PrefixHistoryEntry struct {
	Prefix       string       `json:"prefix"`
	AcquiredAt   metav1.Time  `json:"acquiredAt"`
	DeprecatedAt *metav1.Time `json:"deprecatedAt,omitempty"`
	// +optional
	State PrefixState `json:"state,omitempty"`
}

// PrefixState indicates the state of a historical prefix.
// +kubebuilder:validation:Enum=active;draining;expired
type PrefixState string

const (
	PrefixStateActive   PrefixState = "active"
	PrefixStateDraining PrefixState = "draining"
	PrefixStateExpired  PrefixState = "expired"
)

// Condition types for DelegatedPrefix.
const (
	ConditionTypePrefixAcquired = "PrefixAcquired"
)

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:scope=Cluster,shortName=dprefix
// +kubebuilder:printcolumn:name="Prefix",type=string,JSONPath=`.status.currentPrefix`
// +kubebuilder:printcolumn:name="Source",type=string,JSONPath=`.status.prefixSource`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`

// DelegatedPrefix is the Schema for the delegatedprefixes API. It wraps a
// pa.DP, optionally populated by a DHCPv6-PD/RA receiver.
type DelegatedPrefix struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	// +required
	Spec DelegatedPrefixSpec `json:"spec"`
	// +optional
	Status DelegatedPrefixStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// DelegatedPrefixList contains a list of DelegatedPrefix.
type DelegatedPrefixList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []DelegatedPrefix `json:"items"`
}

func init() {
	SchemeBuilder.Register(&DelegatedPrefix{}, &DelegatedPrefixList{})
}
