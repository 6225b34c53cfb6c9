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

// PrefixLinkSpec defines a Link to register with the
// assignment core.
type PrefixLinkSpec struct {
	// Type optionally tags the link for Filter matching in AssignmentRule
	// (e.g. "lan", "guest", "uplink").
	// +optional
	Type string `json:"type,omitempty"`
}

// PrefixLinkStatus reports the link's registration state.
type PrefixLinkStatus struct {
	// Conditions represent the current state of the PrefixLink.
	// +listType=map
	// +listMapKey=type
	// +optional
	Conditions []metav1.Condition `json:"conditions,omitempty"`
}

// Condition types shared across this package's CRDs.
const (
	ConditionTypeRegistered = "Registered"
	ConditionTypeDegraded   = "Degraded"
)

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:scope=Cluster,shortName=plink
// +kubebuilder:printcolumn:name="Type",type=string,JSONPath=`.spec.type`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`

// PrefixLink is the Schema for the prefixlinks API. It wraps a pa.Link.
type PrefixLink struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	// +required
	Spec PrefixLinkSpec `json:"spec"`
	// +optional
	Status PrefixLinkStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// PrefixLinkList contains a list of PrefixLink.
type PrefixLinkList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []PrefixLink `json:"items"`
}

func init() {
	SchemeBuilder.Register(&PrefixLink{}, &PrefixLinkList{})
}
